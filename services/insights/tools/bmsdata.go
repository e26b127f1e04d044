// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/AleutianAI/gridsage/pkg/sampling"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// Raw-granularity sampling policy: windows larger than this are
// stride-sampled down to roughly the cap, always keeping the newest
// record.
const rawSampleCap = 500

var bmsMetrics = []string{"all", "voltage", "current", "power", "soc", "capacity", "temperature", "cell_voltage_difference"}

func (r *Registry) requestBMSData() *Tool {
	return &Tool{
		Name:        "request_bms_data",
		Description: "Fetch historical BMS readings for a system over a time range, raw or bucketed by hour/day with avg/min/max.",
		Params: []Param{
			{Name: "systemId", Type: "string", Description: "System identifier", Required: true},
			{Name: "metric", Type: "string", Description: "Which reading to return", Required: true, Enum: bmsMetrics},
			{Name: "time_range_start", Type: "string", Description: "ISO-8601 start, inclusive", Required: true},
			{Name: "time_range_end", Type: "string", Description: "ISO-8601 end, exclusive", Required: true},
			{Name: "granularity", Type: "string", Description: "Resolution of the result", Required: true, Enum: []string{"raw", "hourly_avg", "daily_avg"}},
		},
		Handler: r.handleRequestBMSData,
	}
}

func (r *Registry) handleRequestBMSData(ctx context.Context, args map[string]any) (any, error) {
	systemID := stringArg(args, "systemId", "")
	metric := stringArg(args, "metric", "all")
	granularity := stringArg(args, "granularity", "raw")

	start, err := parseISO(stringArg(args, "time_range_start", ""))
	if err != nil {
		return nil, fmt.Errorf("time_range_start: %w", err)
	}
	end, err := parseISO(stringArg(args, "time_range_end", ""))
	if err != nil {
		return nil, fmt.Errorf("time_range_end: %w", err)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("time_range_start must be before time_range_end")
	}

	if !start.Before(time.Now()) {
		return nil, fmt.Errorf("time_range_start is in the future")
	}
	inRange, err := r.store.RecordsRange(ctx, systemID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	response := map[string]any{
		"system_id":   systemID,
		"metric":      metric,
		"granularity": granularity,
		"range":       map[string]string{"start": start.Format(time.RFC3339), "end": end.Format(time.RFC3339)},
	}

	switch granularity {
	case "raw":
		points := rawPoints(inRange, metric)
		if len(points) > rawSampleCap {
			original := len(points)
			points = sampling.Stride(points, rawSampleCap)
			response["note"] = fmt.Sprintf(
				"result resampled from %d to %d points (newest preserved); narrow the time range or use hourly_avg for full resolution",
				original, len(points))
		}
		response["data"] = points
		response["count"] = len(points)
	case "hourly_avg":
		buckets := bucketRecords(inRange, metric, time.Hour)
		response["data"] = buckets
		response["count"] = len(buckets)
	case "daily_avg":
		buckets := bucketRecords(inRange, metric, 24*time.Hour)
		response["data"] = buckets
		response["count"] = len(buckets)
	}

	return response, nil
}

// parseISO accepts RFC 3339 or a bare date.
func parseISO(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("timestamp is required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 timestamp", raw)
}

// metricValue extracts one named metric from a snapshot.
func metricValue(s *datatypes.Snapshot, metric string) *float64 {
	switch metric {
	case "voltage":
		return s.OverallVoltage
	case "current":
		return s.Current
	case "power":
		return s.Power
	case "soc":
		return s.SOC
	case "capacity":
		return s.RemainingCapacity
	case "temperature":
		return s.TemperatureC
	case "cell_voltage_difference":
		return s.CellVoltageDiff
	}
	return nil
}

// rawPoints projects records into flat timestamped values. For "all",
// every present metric is included.
func rawPoints(records []datatypes.HistoricalRecord, metric string) []map[string]any {
	points := make([]map[string]any, 0, len(records))
	for i := range records {
		rec := &records[i]
		point := map[string]any{"time": rec.Timestamp.Format(time.RFC3339)}
		if metric == "all" {
			for _, m := range bmsMetrics[1:] {
				if v := metricValue(&rec.Analysis, m); v != nil {
					point[m] = *v
				}
			}
			if rec.Analysis.CycleCount != nil {
				point["cycle_count"] = *rec.Analysis.CycleCount
			}
		} else if v := metricValue(&rec.Analysis, metric); v != nil {
			point[metric] = *v
		}
		points = append(points, point)
	}
	return points
}

type metricStats struct {
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

// bucketRecords groups records by hour or day and computes avg/min/max
// per requested metric.
func bucketRecords(records []datatypes.HistoricalRecord, metric string, size time.Duration) []map[string]any {
	metrics := []string{metric}
	if metric == "all" {
		metrics = bmsMetrics[1:]
	}

	type agg struct {
		sum, min, max float64
		count         int
	}
	buckets := map[string]map[string]*agg{}
	for i := range records {
		key := records[i].Timestamp.Truncate(size).Format(time.RFC3339)
		b := buckets[key]
		if b == nil {
			b = map[string]*agg{}
			buckets[key] = b
		}
		for _, m := range metrics {
			v := metricValue(&records[i].Analysis, m)
			if v == nil {
				continue
			}
			a := b[m]
			if a == nil {
				a = &agg{min: math.Inf(1), max: math.Inf(-1)}
				b[m] = a
			}
			a.sum += *v
			a.min = math.Min(a.min, *v)
			a.max = math.Max(a.max, *v)
			a.count++
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		row := map[string]any{"bucket": k}
		for m, a := range buckets[k] {
			row[m] = metricStats{
				Avg:   a.sum / float64(a.count),
				Min:   a.min,
				Max:   a.max,
				Count: a.count,
			}
		}
		out = append(out, row)
	}
	return out
}

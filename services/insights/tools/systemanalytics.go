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
	"time"

	"github.com/AleutianAI/gridsage/services/insights/analytics"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

const defaultLookbackDays = 60

func (r *Registry) getSystemAnalytics() *Tool {
	return &Tool{
		Name:        "getSystemAnalytics",
		Description: "Hourly averages, a median performance baseline, and grouped alert events over a lookback window.",
		Params: []Param{
			{Name: "systemId", Type: "string", Description: "System identifier", Required: true},
			{Name: "lookbackDays", Type: "integer", Description: "Days of history to analyze (default 60)", Required: false},
		},
		Handler: r.handleSystemAnalytics,
	}
}

func (r *Registry) handleSystemAnalytics(ctx context.Context, args map[string]any) (any, error) {
	systemID := stringArg(args, "systemId", "")
	lookback := intArg(args, "lookbackDays", defaultLookbackDays)
	if lookback < 1 {
		lookback = defaultLookbackDays
	}

	records, err := r.store.Records(ctx, systemID, time.Duration(lookback)*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records in the last %d days for %s", lookback, systemID)
	}

	response := map[string]any{
		"system_id":     systemID,
		"lookback_days": lookback,
		"record_count":  len(records),
		"hourly":        hourlyAverages(records),
		"baseline":      performanceBaseline(records),
		"alert_events":  GroupAlertEvents(records),
	}
	return response, nil
}

// hourlyAverages summarizes each metric by hour-of-day.
func hourlyAverages(records []datatypes.HistoricalRecord) []map[string]any {
	type agg struct {
		sum   float64
		count int
	}
	var byHour [24]map[string]*agg
	for i := range byHour {
		byHour[i] = map[string]*agg{}
	}

	for i := range records {
		h := records[i].Timestamp.Hour()
		for _, m := range bmsMetrics[1:] {
			if v := metricValue(&records[i].Analysis, m); v != nil {
				a := byHour[h][m]
				if a == nil {
					a = &agg{}
					byHour[h][m] = a
				}
				a.sum += *v
				a.count++
			}
		}
	}

	out := make([]map[string]any, 0, 24)
	for h := 0; h < 24; h++ {
		row := map[string]any{"hour": h}
		for m, a := range byHour[h] {
			row[m] = a.sum / float64(a.count)
		}
		out = append(out, row)
	}
	return out
}

// performanceBaseline is the median of each metric over the window.
func performanceBaseline(records []datatypes.HistoricalRecord) map[string]float64 {
	baseline := map[string]float64{}
	for _, m := range bmsMetrics[1:] {
		var values []float64
		for i := range records {
			if v := metricValue(&records[i].Analysis, m); v != nil {
				values = append(values, *v)
			}
		}
		if len(values) > 0 {
			baseline[m] = analytics.Median(values)
		}
	}
	return baseline
}

// AlertEvent is one grouped run of a recurring alert tag.
type AlertEvent struct {
	Tag string `json:"tag"`

	// EventCount is how many distinct runs of this tag occurred.
	EventCount int `json:"event_count"`

	// OccurrenceCount is the total snapshots carrying the tag.
	OccurrenceCount int `json:"occurrence_count"`

	// AvgDurationHours is the mean run length estimated from snapshot
	// timestamps.
	AvgDurationHours float64 `json:"avg_duration_hours"`

	// AvgTriggerSOC is the mean SOC at the first snapshot of each run;
	// nil when SOC was never present at a trigger.
	AvgTriggerSOC *float64 `json:"avg_trigger_soc,omitempty"`
}

// GroupAlertEvents folds consecutive snapshots carrying the same alert
// tag into events. A run closes when the tag is absent for a snapshot,
// or when SOC crosses back through the value it triggered at: a stale
// tag that lingers after the condition recovered must not stretch the
// event. A tag closed by recovery stays ignored until it drops off once.
//
// Deterministic and side-effect free: calling it twice on the same
// window yields identical groups.
func GroupAlertEvents(records []datatypes.HistoricalRecord) []AlertEvent {
	type openRun struct {
		start      time.Time
		last       time.Time
		triggerSOC *float64
		socSide    int
		count      int
	}
	type tagAgg struct {
		events        int
		occurrences   int
		totalDuration time.Duration
		socSum        float64
		socCount      int
		firstSeen     int
	}

	open := map[string]*openRun{}
	suppressed := map[string]bool{}
	aggs := map[string]*tagAgg{}
	order := 0

	// socSide classifies a SOC sample against a run's trigger SOC. The
	// first off-trigger sample fixes which side the alert sits on; a
	// later sample on the opposite side is the recovery crossing.
	socSide := func(run *openRun, soc *float64) int {
		if run.triggerSOC == nil || soc == nil {
			return 0
		}
		switch {
		case *soc > *run.triggerSOC:
			return 1
		case *soc < *run.triggerSOC:
			return -1
		}
		return 0
	}

	closeRun := func(tag string, run *openRun) {
		a := aggs[tag]
		a.events++
		a.occurrences += run.count
		a.totalDuration += run.last.Sub(run.start)
		if run.triggerSOC != nil {
			a.socSum += *run.triggerSOC
			a.socCount++
		}
	}

	for i := range records {
		rec := &records[i]
		active := map[string]bool{}
		for _, tag := range rec.Alerts {
			active[tag] = true
			if suppressed[tag] {
				continue
			}
			if run, ok := open[tag]; ok {
				side := socSide(run, rec.Analysis.SOC)
				if side != 0 && run.socSide != 0 && side != run.socSide {
					closeRun(tag, run)
					delete(open, tag)
					suppressed[tag] = true
					continue
				}
				if side != 0 {
					run.socSide = side
				}
				run.last = rec.Timestamp
				run.count++
				continue
			}
			open[tag] = &openRun{
				start:      rec.Timestamp,
				last:       rec.Timestamp,
				triggerSOC: rec.Analysis.SOC,
				count:      1,
			}
			// First appearance fixes the output position, so the
			// grouping is deterministic regardless of map order.
			if aggs[tag] == nil {
				aggs[tag] = &tagAgg{firstSeen: order}
				order++
			}
		}
		for tag, run := range open {
			if !active[tag] {
				closeRun(tag, run)
				delete(open, tag)
			}
		}
		for tag := range suppressed {
			if !active[tag] {
				delete(suppressed, tag)
			}
		}
	}
	for tag, run := range open {
		closeRun(tag, run)
	}

	// Stable output order: by first appearance.
	tags := make([]string, 0, len(aggs))
	for tag := range aggs {
		tags = append(tags, tag)
	}
	for i := 0; i < len(tags); i++ {
		for j := i + 1; j < len(tags); j++ {
			if aggs[tags[j]].firstSeen < aggs[tags[i]].firstSeen {
				tags[i], tags[j] = tags[j], tags[i]
			}
		}
	}

	out := make([]AlertEvent, 0, len(tags))
	for _, tag := range tags {
		a := aggs[tag]
		ev := AlertEvent{
			Tag:              tag,
			EventCount:       a.events,
			OccurrenceCount:  a.occurrences,
			AvgDurationHours: a.totalDuration.Hours() / float64(a.events),
		}
		if a.socCount > 0 {
			soc := a.socSum / float64(a.socCount)
			ev.AvgTriggerSOC = &soc
		}
		out = append(out, ev)
	}
	return out
}

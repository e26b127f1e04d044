// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/pkg/validation"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// Influx measurement names.
const (
	telemetryMeasurement = "bms_telemetry"
	weatherMeasurement   = "weather_observations"
)

// Remote query retry policy.
const (
	influxRetryAttempts = 3
	influxRetryBase     = 500 * time.Millisecond
)

// weatherMatchWindow is how far a weather observation may sit from a
// telemetry record and still be attached to it.
const weatherMatchWindow = time.Hour

// InfluxConfig configures the telemetry reader.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// Logger defaults to the process logger when nil.
	Logger *logging.Logger
}

// InfluxStore reads BMS telemetry and weather history from InfluxDB.
type InfluxStore struct {
	client   influxdb2.Client
	queryAPI api.QueryAPI
	bucket   string
	log      *logging.Logger
}

var _ TelemetryReader = (*InfluxStore)(nil)

// NewInfluxStore connects to InfluxDB and verifies health.
//
// Outputs:
//
//	*InfluxStore - The reader. Caller must Close() when done.
//	error - Non-nil when the server is unreachable or unhealthy.
func NewInfluxStore(ctx context.Context, cfg InfluxConfig) (*InfluxStore, error) {
	if cfg.URL == "" || cfg.Token == "" {
		return nil, opErr("connect", "", fmt.Errorf("influx URL and token are required"))
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, opErr("connect", "", err)
	}
	if health.Status != "pass" {
		client.Close()
		msg := "unknown"
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, opErr("connect", "", fmt.Errorf("influx health %s: %s", health.Status, msg))
	}

	log.Info("connected to InfluxDB", "url", cfg.URL, "bucket", cfg.Bucket)
	return &InfluxStore{
		client:   client,
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		log:      log,
	}, nil
}

// Close releases the underlying client.
func (s *InfluxStore) Close() { s.client.Close() }

// Records returns the telemetry window for a system, ascending, with
// weather observations attached where one exists within an hour.
func (s *InfluxStore) Records(ctx context.Context, systemID string, window time.Duration) ([]datatypes.HistoricalRecord, error) {
	hours := int(window.Hours())
	if hours < 1 {
		hours = 1
	}
	return s.queryRecords(ctx, systemID, fmt.Sprintf("range(start: -%dh)", hours))
}

// RecordsRange returns the records with timestamps in [from, to),
// ascending, with weather attached. Flux range stops are exclusive, so
// the half-open window maps directly.
func (s *InfluxStore) RecordsRange(ctx context.Context, systemID string, from, to time.Time) ([]datatypes.HistoricalRecord, error) {
	if !from.Before(to) {
		return nil, opErr("records", systemID, fmt.Errorf("range start must precede its end"))
	}
	return s.queryRecords(ctx, systemID, fmt.Sprintf("range(start: %s, stop: %s)",
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339)))
}

func (s *InfluxStore) queryRecords(ctx context.Context, systemID, rangeClause string) ([]datatypes.HistoricalRecord, error) {
	if err := validation.ValidateSystemID(systemID); err != nil {
		return nil, opErr("records", systemID, err)
	}

	// System ID is validated above, so interpolation cannot inject Flux.
	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> %s
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.system_id == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, s.bucket, rangeClause, telemetryMeasurement, systemID)

	var records []datatypes.HistoricalRecord
	err := withRetry(ctx, influxRetryAttempts, influxRetryBase, func() error {
		result, err := s.queryAPI.Query(ctx, query)
		if err != nil {
			return err
		}
		if result == nil {
			records = nil
			return nil
		}
		records = records[:0]
		for result.Next() {
			records = append(records, recordFromFlux(systemID, result.Record()))
		}
		return result.Err()
	})
	if err != nil {
		return nil, opErr("records", systemID, err)
	}

	weather, err := s.weatherWindow(ctx, systemID, rangeClause)
	if err != nil {
		// Missing weather degrades the analysis but does not block it.
		s.log.Warn("weather query failed, continuing without weather",
			"system_id", systemID, "error", err)
	} else {
		attachWeather(records, weather)
	}

	return records, nil
}

// RecentSnapshots returns the latest n snapshots, newest first.
func (s *InfluxStore) RecentSnapshots(ctx context.Context, systemID string, n int) ([]datatypes.Snapshot, error) {
	if err := validation.ValidateSystemID(systemID); err != nil {
		return nil, opErr("recent_snapshots", systemID, err)
	}
	if n < 1 {
		n = 1
	}

	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -7d)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.system_id == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: true)
		  |> limit(n: %d)
	`, s.bucket, telemetryMeasurement, systemID, n)

	var snaps []datatypes.Snapshot
	err := withRetry(ctx, influxRetryAttempts, influxRetryBase, func() error {
		result, err := s.queryAPI.Query(ctx, query)
		if err != nil {
			return err
		}
		if result == nil {
			snaps = nil
			return nil
		}
		snaps = snaps[:0]
		for result.Next() {
			rec := recordFromFlux(systemID, result.Record())
			snaps = append(snaps, rec.Analysis)
		}
		return result.Err()
	})
	if err != nil {
		return nil, opErr("recent_snapshots", systemID, err)
	}
	return snaps, nil
}

// weatherWindow queries weather observations over the same range clause
// as the telemetry they attach to.
func (s *InfluxStore) weatherWindow(ctx context.Context, systemID, rangeClause string) ([]datatypes.WeatherObservation, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> %s
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.system_id == "%s")
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, s.bucket, rangeClause, weatherMeasurement, systemID)

	var obs []datatypes.WeatherObservation
	err := withRetry(ctx, influxRetryAttempts, influxRetryBase, func() error {
		result, err := s.queryAPI.Query(ctx, query)
		if err != nil {
			return err
		}
		if result == nil {
			obs = nil
			return nil
		}
		obs = obs[:0]
		for result.Next() {
			record := result.Record()
			w := datatypes.WeatherObservation{Timestamp: record.Time()}
			if v, ok := record.ValueByKey("temp_c").(float64); ok {
				w.TempC = datatypes.Float(v)
			}
			if v, ok := record.ValueByKey("clouds_pct").(float64); ok {
				w.CloudsPct = datatypes.Float(v)
			}
			if v, ok := record.ValueByKey("uvi").(float64); ok {
				w.UVI = datatypes.Float(v)
			}
			if v, ok := record.ValueByKey("condition").(string); ok {
				w.Condition = v
			}
			obs = append(obs, w)
		}
		return result.Err()
	})
	return obs, err
}

// recordFromFlux maps one pivoted Flux row into a historical record.
// Absent fields stay nil; a reading of "no data" and a reading of zero
// are different facts.
func recordFromFlux(systemID string, record *query.FluxRecord) datatypes.HistoricalRecord {
	rec := datatypes.HistoricalRecord{
		SystemID:  systemID,
		Timestamp: record.Time(),
	}
	s := &rec.Analysis
	s.Timestamp = rec.Timestamp

	fieldFloat(record, "voltage", &s.OverallVoltage)
	fieldFloat(record, "current", &s.Current)
	fieldFloat(record, "power", &s.Power)
	fieldFloat(record, "soc", &s.SOC)
	fieldFloat(record, "remaining_capacity", &s.RemainingCapacity)
	fieldFloat(record, "full_capacity", &s.FullCapacity)
	fieldFloat(record, "cell_voltage_diff", &s.CellVoltageDiff)
	fieldFloat(record, "temperature", &s.TemperatureC)
	fieldFloat(record, "mos_temperature", &s.MosTemperatureC)

	if v, ok := record.ValueByKey("cycle_count").(int64); ok {
		c := int(v)
		s.CycleCount = &c
	} else if v, ok := record.ValueByKey("cycle_count").(float64); ok {
		c := int(v)
		s.CycleCount = &c
	}
	if v, ok := record.ValueByKey("chemistry").(string); ok {
		s.Chemistry = v
	}
	if v, ok := record.ValueByKey("alerts").(string); ok && v != "" {
		rec.Alerts = strings.Split(v, ",")
		s.Alerts = rec.Alerts
	}

	return rec
}

func fieldFloat(record *query.FluxRecord, key string, dst **float64) {
	if v, ok := record.ValueByKey(key).(float64); ok {
		val := v
		*dst = &val
	}
}

// attachWeather pairs each record with the nearest observation inside
// the match window. Both slices are ascending, so one forward pass
// suffices.
func attachWeather(records []datatypes.HistoricalRecord, weather []datatypes.WeatherObservation) {
	if len(weather) == 0 {
		return
	}
	j := 0
	for i := range records {
		t := records[i].Timestamp
		for j+1 < len(weather) && absDuration(weather[j+1].Timestamp.Sub(t)) <= absDuration(weather[j].Timestamp.Sub(t)) {
			j++
		}
		if absDuration(weather[j].Timestamp.Sub(t)) <= weatherMatchWindow {
			w := weather[j]
			records[i].Weather = &w
		}
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"testing"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

func TestAnomalies_VoltageOutlier(t *testing.T) {
	records := hourlyRecords(100, func(i int, s *datatypes.Snapshot) {
		volts := 52.0 + 0.1*float64(i%5) // tight band around 52.2
		if i == 60 {
			volts = 40.0 // way outside 3 sigma
		}
		s.OverallVoltage = &volts
	})

	result, insuf := Anomalies(records)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}
	if result.HighCount != 1 {
		t.Fatalf("high = %d, want 1 voltage outlier", result.HighCount)
	}
	a := result.Anomalies[0]
	if a.Metric != "voltage" || a.Value != 40 || a.Severity != AnomalyHigh {
		t.Errorf("anomaly = %+v", a)
	}
}

func TestAnomalies_TemperatureCriticalUpgrade(t *testing.T) {
	records := hourlyRecords(100, func(i int, s *datatypes.Snapshot) {
		temp := 20.0 + 0.2*float64(i%4)
		if i == 30 {
			temp = 50.0 // outlier and past the hot envelope
		}
		s.TemperatureC = &temp
	})

	result, insuf := Anomalies(records)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}
	if result.CriticalCount != 1 {
		t.Fatalf("critical = %d, want 1", result.CriticalCount)
	}
	if result.Anomalies[0].Metric != "temperature" {
		t.Errorf("metric = %q", result.Anomalies[0].Metric)
	}
}

func TestAnomalies_RapidSOCChange(t *testing.T) {
	records := hourlyRecords(60, func(i int, s *datatypes.Snapshot) {
		soc := 70.0
		if i == 40 {
			soc = 40.0 // 30-point drop in one hour... but dt == 1h
		}
		s.SOC = &soc
	})
	// An exactly one-hour gap is outside the sub-hour window; tighten
	// the drop to 30 minutes.
	records[40].Timestamp = records[39].Timestamp.Add(30 * time.Minute)

	result, insuf := Anomalies(records)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}

	var rapid int
	for _, a := range result.Anomalies {
		if a.Metric == "soc" {
			rapid++
			if a.Severity != AnomalyHigh {
				t.Errorf("severity = %v, want high", a.Severity)
			}
		}
	}
	// Only the 30-minute drop qualifies; the recovery into record 41
	// spans 1.5 hours and is outside the window.
	if rapid != 1 {
		t.Errorf("rapid SOC anomalies = %d, want 1", rapid)
	}
}

func TestAnomalies_ConstantSeriesClean(t *testing.T) {
	records := hourlyRecords(80, func(i int, s *datatypes.Snapshot) {
		volts := 52.0
		s.OverallVoltage = &volts
	})
	result, insuf := Anomalies(records)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}
	if len(result.Anomalies) != 0 {
		t.Errorf("anomalies = %d, want 0 for a flat series", len(result.Anomalies))
	}
}

func TestAnomalies_Insufficient(t *testing.T) {
	records := hourlyRecords(49, solarCycleSnapshot)
	_, insuf := Anomalies(records)
	if insuf == nil || insuf.MinimumRequired != 50 {
		t.Fatalf("marker = %+v", insuf)
	}
}

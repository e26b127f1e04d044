// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"testing"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

func healthySnapshot(i int, s *datatypes.Snapshot) {
	solarCycleSnapshot(i, s)
	diff := 0.02 // 20mV spread
	temp := 20.0
	s.CellVoltageDiff = &diff
	s.TemperatureC = &temp
}

func TestBatteryHealth_AllExcellent(t *testing.T) {
	records := hourlyRecords(48, healthySnapshot)
	cycles := 100
	snap := &datatypes.Snapshot{CycleCount: &cycles, Chemistry: "LiFePO4"}

	result, insuf := BatteryHealth(records, testProfile(), snap)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}

	if result.Imbalance == nil || result.Imbalance.Status != HealthExcellent {
		t.Errorf("imbalance = %+v, want excellent", result.Imbalance)
	}
	if result.Temperature == nil || result.Temperature.Status != HealthExcellent {
		t.Errorf("temperature = %+v, want excellent", result.Temperature)
	}
	if result.CycleLife == nil || result.CycleLife.Status != HealthExcellent {
		t.Errorf("cycle life = %+v, want excellent (100/3000)", result.CycleLife)
	}
	if result.Score != 100 {
		t.Errorf("score = %d, want 100", result.Score)
	}
}

func TestBatteryHealth_TemperatureCritical(t *testing.T) {
	records := hourlyRecords(48, func(i int, s *datatypes.Snapshot) {
		healthySnapshot(i, s)
		if i == 10 {
			hot := 47.0
			s.TemperatureC = &hot
		}
	})

	result, insuf := BatteryHealth(records, nil, nil)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}
	if result.Temperature.Status != HealthCritical {
		t.Errorf("status = %v, want critical for 47C excursion", result.Temperature.Status)
	}
	if result.Score > 100-healthPenalty[HealthCritical] {
		t.Errorf("score = %d, critical penalty not applied", result.Score)
	}
	if result.Recommendation == "" {
		t.Error("expected a recommendation")
	}
}

func TestBatteryHealth_ImbalanceBuckets(t *testing.T) {
	tests := []struct {
		diffV float64
		want  HealthStatus
	}{
		{0.025, HealthExcellent},
		{0.045, HealthGood},
		{0.090, HealthFair},
		{0.150, HealthPoor},
	}
	for _, tt := range tests {
		records := hourlyRecords(24, func(i int, s *datatypes.Snapshot) {
			solarCycleSnapshot(i, s)
			d := tt.diffV
			s.CellVoltageDiff = &d
		})
		result, insuf := BatteryHealth(records, nil, nil)
		if insuf != nil {
			t.Fatalf("unexpected insufficient: %+v", insuf)
		}
		if result.Imbalance.Status != tt.want {
			t.Errorf("diff %vV: status = %v, want %v", tt.diffV, result.Imbalance.Status, tt.want)
		}
	}
}

func TestBatteryHealth_ImbalanceFromCells(t *testing.T) {
	records := hourlyRecords(24, func(i int, s *datatypes.Snapshot) {
		solarCycleSnapshot(i, s)
		s.CellVoltages = []float64{3.30, 3.32, 3.31, 3.34}
	})
	result, insuf := BatteryHealth(records, nil, nil)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}
	// Spread 3.34-3.30 = 40mV.
	if result.Imbalance == nil || result.Imbalance.Status != HealthGood {
		t.Errorf("imbalance = %+v, want good at 40mV", result.Imbalance)
	}
}

func TestBatteryHealth_CapacityRetention(t *testing.T) {
	// SOC 90 with remaining 72Ah extrapolates to 80Ah full, 80% of the
	// 100Ah rating: poor.
	records := hourlyRecords(24, func(i int, s *datatypes.Snapshot) {
		solarCycleSnapshot(i, s)
		soc, rem := 90.0, 72.0
		s.SOC = &soc
		s.RemainingCapacity = &rem
	})
	result, insuf := BatteryHealth(records, testProfile(), nil)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}
	if result.Capacity == nil {
		t.Fatal("expected capacity retention with 24 high-SOC samples")
	}
	if result.Capacity.Status != HealthPoor {
		t.Errorf("status = %v, want poor at 80%% retention", result.Capacity.Status)
	}
}

func TestBatteryHealth_Insufficient(t *testing.T) {
	records := hourlyRecords(23, healthySnapshot)
	if _, insuf := BatteryHealth(records, nil, nil); insuf == nil {
		t.Fatal("expected insufficient under 24 records")
	}
}

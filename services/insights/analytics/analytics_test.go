// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

func TestIntegrationDelta(t *testing.T) {
	base := testWindowStart
	tests := []struct {
		name   string
		delta  time.Duration
		wantOK bool
	}{
		{"one hour", time.Hour, true},
		{"exactly two hours", 2 * time.Hour, true},
		{"just over two hours", 2*time.Hour + time.Second, false},
		{"zero", 0, false},
		{"negative", -time.Minute, false},
		{"one second", time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := integrationDelta(base, base.Add(tt.delta))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && d != tt.delta {
				t.Errorf("delta = %v, want %v", d, tt.delta)
			}
		})
	}
}

// A gap beyond the clamp must drop that interval's energy entirely, not
// attribute a clamped amount.
func TestEnergyBalance_GapDropsEnergy(t *testing.T) {
	records := hourlyRecords(72, solarCycleSnapshot)
	baseline, insuf := EnergyBalance(records, nil, nil)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}

	// Open a 6h gap mid-window by shifting the second half forward.
	gapped := hourlyRecords(72, solarCycleSnapshot)
	for i := 36; i < len(gapped); i++ {
		gapped[i].Timestamp = gapped[i].Timestamp.Add(6 * time.Hour)
	}
	shifted, insuf := EnergyBalance(gapped, nil, nil)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}

	var baseTotal, gapTotal float64
	for _, d := range baseline.Days {
		baseTotal += d.GenerationWh + d.ConsumptionWh
	}
	for _, d := range shifted.Days {
		gapTotal += d.GenerationWh + d.ConsumptionWh
	}
	if gapTotal >= baseTotal {
		t.Errorf("gapped total %v should be below baseline %v", gapTotal, baseTotal)
	}
}

func TestEnergyBalance_Insufficient(t *testing.T) {
	records := hourlyRecords(47, solarCycleSnapshot)
	result, insuf := EnergyBalance(records, nil, nil)
	if result != nil {
		t.Error("expected nil result")
	}
	if insuf == nil || !insuf.InsufficientData {
		t.Fatal("expected insufficient marker")
	}
	if insuf.MinimumRequired != 48 || insuf.Actual != 47 {
		t.Errorf("marker = %+v", insuf)
	}
}

func TestEnergyBalance_Autonomy(t *testing.T) {
	records := hourlyRecords(72, solarCycleSnapshot)
	soc := 50.0
	snap := &datatypes.Snapshot{SOC: &soc}

	result, insuf := EnergyBalance(records, testProfile(), snap)
	if insuf != nil {
		t.Fatalf("unexpected insufficient: %+v", insuf)
	}
	if result.AutonomyHours == nil {
		t.Fatal("expected autonomy with profile and SOC")
	}

	// 100Ah x 51.2V x 0.5 SOC x 0.8 DoD / avgLoadW
	want := 100 * 51.2 * 0.5 * 0.8 / result.AvgLoadW
	if math.Abs(*result.AutonomyHours-want) > 1e-9 {
		t.Errorf("autonomy = %v, want %v", *result.AutonomyHours, want)
	}
	if *result.AutonomyDays != *result.AutonomyHours/24 {
		t.Error("days must be hours/24")
	}
}

// The lone-snapshot fallback: 52.1V, 48% SOC, -12A discharge gives about
// 1.67 hours of runtime.
func TestSnapshotAutonomyHours(t *testing.T) {
	volts, soc, amps := 52.1, 48.0, -12.0
	snap := &datatypes.Snapshot{OverallVoltage: &volts, SOC: &soc, Current: &amps}

	hours, ok := SnapshotAutonomyHours(snap)
	if !ok {
		t.Fatal("expected estimate")
	}
	if math.Abs(hours-1.67) > 0.01 {
		t.Errorf("hours = %v, want about 1.67", hours)
	}

	charging := 5.0
	snap.Current = &charging
	if _, ok := SnapshotAutonomyHours(snap); ok {
		t.Error("charging snapshot must not yield an autonomy estimate")
	}
	if _, ok := SnapshotAutonomyHours(nil); ok {
		t.Error("nil snapshot must not yield an estimate")
	}
}

func TestBrandNewLikely(t *testing.T) {
	for _, tt := range []struct {
		cycles *int
		want   bool
	}{
		{nil, false},
		{intp(0), true},
		{intp(50), true},
		{intp(51), false},
		{intp(500), false},
	} {
		if got := BrandNewLikely(tt.cycles); got != tt.want {
			t.Errorf("BrandNewLikely(%v) = %v, want %v", tt.cycles, got, tt.want)
		}
	}
}

func intp(v int) *int { return &v }

func TestExpectedCycleLife(t *testing.T) {
	for _, tt := range []struct {
		chemistry string
		want      int
	}{
		{"LiFePO4", 3000},
		{"lfp", 3000},
		{"NMC", 1000},
		{"", 1000},
	} {
		if got := ExpectedCycleLife(tt.chemistry); got != tt.want {
			t.Errorf("ExpectedCycleLife(%q) = %d, want %d", tt.chemistry, got, tt.want)
		}
	}
}

func TestPeakSunHours(t *testing.T) {
	for _, tt := range []struct {
		clouds float64
		want   float64
	}{
		{0, 5},
		{50, 3.5},
		{100, 2},
		{-10, 5},
		{150, 2},
	} {
		if got := PeakSunHours(tt.clouds); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("PeakSunHours(%v) = %v, want %v", tt.clouds, got, tt.want)
		}
	}
}

func TestSolarWindows(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2025, 6, 1, h, 30, 0, 0, time.UTC) }
	if !inSolarWindow(at(6)) || !inSolarWindow(at(17)) {
		t.Error("06:30 and 17:30 are solar hours")
	}
	if inSolarWindow(at(18)) || inSolarWindow(at(5)) {
		t.Error("18:30 and 05:30 are night hours")
	}
	if !inNightWindow(at(23)) {
		t.Error("23:30 is a night hour")
	}
}

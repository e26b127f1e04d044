// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import "testing"

func f(v float64) *float64 { return &v }

func TestValidateSystemID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"sys-001", false},
		{"Cabin_Battery_2", false},
		{"a", false},
		{"", true},
		{"sys 001", true},
		{`sys"; drop`, true},
		{"-leading", true},
	}

	for _, tt := range tests {
		err := ValidateSystemID(tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateSystemID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
		}
	}
}

func TestValidateSnapshot_CellSumDeviation(t *testing.T) {
	// 16 cells at 3.25V sum to 52.0V.
	cells := make([]float64, 16)
	for i := range cells {
		cells[i] = 3.25
	}

	tests := []struct {
		name         string
		packV        float64
		wantCode     string
		wantSeverity Severity
	}{
		{"within half volt", 52.3, "", ""},
		{"warning band", 52.8, "cell_sum_mismatch", SeverityWarning},
		{"critical band", 53.5, "cell_sum_mismatch", SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := ValidateSnapshot(SnapshotReadings{
				OverallVoltage: f(tt.packV),
				CellVoltages:   cells,
			})

			var found *Flag
			for i := range flags {
				if flags[i].Code == "cell_sum_mismatch" {
					found = &flags[i]
				}
			}

			if tt.wantCode == "" {
				if found != nil {
					t.Fatalf("unexpected flag: %v", *found)
				}
				return
			}
			if found == nil {
				t.Fatal("expected cell_sum_mismatch flag")
			}
			if found.Severity != tt.wantSeverity {
				t.Errorf("severity = %s, want %s", found.Severity, tt.wantSeverity)
			}
		})
	}
}

func TestValidateSnapshot_PowerMismatch(t *testing.T) {
	tests := []struct {
		name         string
		power        float64
		wantSeverity Severity
	}{
		// I*V = -12 * 52 = -624W
		{"consistent", -640, ""},
		{"warning", -720, SeverityWarning},
		{"critical", -100, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := ValidateSnapshot(SnapshotReadings{
				OverallVoltage: f(52),
				Current:        f(-12),
				Power:          f(tt.power),
			})

			var got Severity
			for _, fl := range flags {
				if fl.Code == "power_mismatch" {
					got = fl.Severity
				}
			}
			if got != tt.wantSeverity {
				t.Errorf("power_mismatch severity = %q, want %q", got, tt.wantSeverity)
			}
		})
	}
}

func TestValidateSnapshot_RangesAndCapacity(t *testing.T) {
	flags := ValidateSnapshot(SnapshotReadings{
		SOC:               f(104),
		CellVoltages:      []float64{1.8, 3.3},
		TemperatureC:      f(-3),
		RemainingCapacity: f(720),
		FullCapacity:      f(660),
	})

	want := map[string]bool{
		"soc_range":          false,
		"cell_voltage_range": false,
		"temperature_range":  false,
		"capacity_overflow":  false,
	}
	for _, fl := range flags {
		if _, ok := want[fl.Code]; ok {
			want[fl.Code] = true
		}
	}
	for code, seen := range want {
		if !seen {
			t.Errorf("expected flag %s, not found in %v", code, flags)
		}
	}
}

func TestValidateSnapshot_CleanSnapshot(t *testing.T) {
	if flags := ValidateSnapshot(SnapshotReadings{
		OverallVoltage: f(52.1),
		Current:        f(-12),
		Power:          f(-625),
		SOC:            f(48),
	}); flags != nil {
		t.Errorf("expected no flags, got %v", flags)
	}
}

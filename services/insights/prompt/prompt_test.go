// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompt

import (
	"strings"
	"testing"

	"github.com/AleutianAI/gridsage/services/insights/analytics"
	"github.com/AleutianAI/gridsage/services/insights/contextbuild"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
	"github.com/AleutianAI/gridsage/services/insights/store"
	"github.com/AleutianAI/gridsage/services/insights/tools"
)

func testCatalog() []*tools.Tool {
	return tools.NewRegistry(store.NewMemoryStore(), nil, nil).Catalog.List()
}

func leanBundle() *contextbuild.Bundle {
	return &contextbuild.Bundle{
		SystemID: "cabin-1",
		Snapshot: &datatypes.Snapshot{
			OverallVoltage: datatypes.Float(52.1),
			Current:        datatypes.Float(-12),
			SOC:            datatypes.Float(48),
		},
		Facts: contextbuild.BatteryFacts{
			ExpectedCycleLife:     3000,
			SnapshotAutonomyHours: datatypes.Float(1.6672),
		},
		Meta: contextbuild.Meta{Mode: datatypes.ModeSync},
	}
}

func TestBuild_PersonaAndRules(t *testing.T) {
	text := Build(Input{Bundle: leanBundle(), Tools: testCatalog(), Mode: datatypes.ModeSync})

	for _, want := range []string{
		"HEALTH", "SUFFICIENCY", "PROACTIVE ACTION",
		`{"tool_call": "<tool name>", "parameters": {...}}`,
		`{"final_answer": "<markdown string>"}`,
		"## KEY FINDINGS", "## RECOMMENDATIONS",
		"battery autonomy/runtime",
		"service life/lifetime",
		"🔴", "🟡", "🟢",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuild_ToolCatalogExcludesDeprecated(t *testing.T) {
	text := Build(Input{Bundle: leanBundle(), Tools: testCatalog(), Mode: datatypes.ModeSync})

	if strings.Contains(text, "getSystemHistory") {
		t.Error("deprecated alias must not be offered to the model")
	}
	for _, name := range []string{
		"request_bms_data", "getSystemAnalytics", "getWeatherData",
		"getSolarEstimate", "predict_battery_trends",
		"analyze_usage_patterns", "calculate_energy_budget",
	} {
		if !strings.Contains(text, name) {
			t.Errorf("catalog missing %s", name)
		}
	}
	// Parameter names are serialized with each tool.
	if !strings.Contains(text, "request_bms_data(systemId, metric, time_range_start, time_range_end, granularity)") {
		t.Error("tool line should list parameter names")
	}
}

func TestBuild_InsufficientSections(t *testing.T) {
	b := leanBundle()
	b.Load = contextbuild.Section[analytics.LoadProfileResult]{
		Insufficient: &analytics.Insufficient{InsufficientData: true, MinimumRequired: 48, Actual: 0, Reason: "load profiling needs two days of records"},
	}
	text := Build(Input{Bundle: b, Tools: testCatalog(), Mode: datatypes.ModeSync})

	if !strings.Contains(text, "insufficient data: load profiling needs two days of records (need 48, have 0)") {
		t.Error("insufficient sections must carry the reason and counts")
	}
	// Unassembled sections point at tools instead.
	if !strings.Contains(text, "not assembled; fetch via tools") {
		t.Error("unassembled sections need an explicit note")
	}
}

func TestBuild_SnapshotAutonomyLine(t *testing.T) {
	text := Build(Input{Bundle: leanBundle(), Tools: testCatalog(), Mode: datatypes.ModeSync})
	if !strings.Contains(text, "battery autonomy at current load: 1.67 h (runtime, not service life)") {
		t.Error("autonomy line missing or mislabeled")
	}
}

func TestBuild_BrandNewGuidance(t *testing.T) {
	b := leanBundle()
	b.Facts.BrandNewLikely = true
	b.Snapshot.CycleCount = datatypes.Int(12)
	text := Build(Input{Bundle: b, Tools: testCatalog(), Mode: datatypes.ModeSync})

	if !strings.Contains(text, "recently installed") {
		t.Error("guidance should flag the recent install")
	}
	if !strings.Contains(text, "(recent install)") {
		t.Error("snapshot cycle-count line should carry the note")
	}
}

func TestBuild_SolarShortfallGuidance(t *testing.T) {
	b := leanBundle()
	b.SolarVariance = contextbuild.Section[analytics.SolarVarianceResult]{
		Value: &analytics.SolarVarianceResult{
			ExpectedAh:  100,
			ObservedAh:  60,
			VariancePct: -40,
			WithinBand:  false,
		},
	}
	text := Build(Input{Bundle: b, Tools: testCatalog(), Mode: datatypes.ModeSync})
	if !strings.Contains(text, "Investigate panel output") {
		t.Error("below-band variance should steer toward hardware, not weather")
	}
}

func TestBuild_MissionOverride(t *testing.T) {
	in := Input{Bundle: leanBundle(), Tools: testCatalog(), Mode: datatypes.ModeSync}

	text := Build(in)
	if !strings.Contains(text, defaultMission) {
		t.Error("default mission missing")
	}

	in.UserPrompt = "Why did my \x1b[31mbattery\x07 drain overnight?"
	text = Build(in)
	if strings.Contains(text, defaultMission) {
		t.Error("user mission should replace the default")
	}
	if !strings.Contains(text, "Why did my [31mbattery drain overnight?") {
		t.Error("control characters should be stripped from the mission")
	}
}

func TestSanitizeMission(t *testing.T) {
	long := strings.Repeat("x", 3000)
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  plain question  ", "plain question"},
		{"line1\nline2\ttabbed", "line1\nline2\ttabbed"},
		{"\x00\x01\x02", ""},
		{long, long[:maxMissionLen]},
	}
	for _, tc := range cases {
		if got := SanitizeMission(tc.in); got != tc.want {
			t.Errorf("SanitizeMission(%.20q) = %.20q, want %.20q", tc.in, got, tc.want)
		}
	}
}

func TestBuildContextSummary(t *testing.T) {
	b := leanBundle()
	hours := 30.5
	days := hours / 24
	b.EnergyBalance = contextbuild.Section[analytics.EnergyBalanceResult]{
		Value: &analytics.EnergyBalanceResult{
			Days: []analytics.DailyEnergy{
				{Day: "2025-06-01", GenerationWh: 1000, ConsumptionWh: 2400},
				{Day: "2025-06-02", GenerationWh: 1800, ConsumptionWh: 2500},
				{Day: "2025-06-03", GenerationWh: 1500, ConsumptionWh: 2300},
			},
			AutonomyHours: &hours,
			AutonomyDays:  &days,
		},
	}
	b.Profile = &datatypes.SystemProfile{ID: "cabin-1", NominalVoltage: 51.2, RatedCapacityAh: 200}
	b.Prediction = contextbuild.Section[analytics.PredictionResult]{
		Value: &analytics.PredictionResult{EnsembleDaysToThreshold: 412.5},
	}
	b.Anomalies = contextbuild.Section[analytics.AnomaliesResult]{
		Value: &analytics.AnomaliesResult{
			Anomalies:     []analytics.Anomaly{{}, {}, {}},
			CriticalCount: 1,
		},
	}
	// Newest first: SOC fell from 60 to 55 across the window.
	b.RecentSnapshots = []datatypes.Snapshot{
		{SOC: datatypes.Float(55), OverallVoltage: datatypes.Float(52.15)},
		{SOC: datatypes.Float(60), OverallVoltage: datatypes.Float(52.4)},
	}

	s := BuildContextSummary(b)

	if s.VoltageV == nil || *s.VoltageV != 52.1 {
		t.Errorf("voltage = %v", s.VoltageV)
	}
	// Energy-balance autonomy wins over the snapshot estimate.
	if s.AutonomyHours == nil || *s.AutonomyHours != 30.5 {
		t.Errorf("autonomy = %v, want 30.5", s.AutonomyHours)
	}
	if s.PredictedDaysToThreshold == nil || *s.PredictedDaysToThreshold != 412.5 {
		t.Errorf("predicted days = %v, want 412.5", s.PredictedDaysToThreshold)
	}
	if s.AnomalyCount != 3 || s.CriticalAnomalyCount != 1 {
		t.Errorf("anomaly counts = %d/%d", s.AnomalyCount, s.CriticalAnomalyCount)
	}
	if s.RecentSOCDelta == nil || *s.RecentSOCDelta != -5 {
		t.Errorf("soc delta = %v, want -5", s.RecentSOCDelta)
	}
	if s.RecentVoltageDelta == nil || *s.RecentVoltageDelta != -0.25 {
		t.Errorf("voltage delta = %v, want -0.25", s.RecentVoltageDelta)
	}

	// Worst case: 90th pct consumption 2500, 10th pct generation 1000,
	// deficit 1500 Wh/day against 200x51.2x0.48x0.8 = 3932 Wh usable.
	if s.WorstCaseDays == nil {
		t.Fatal("want a worst-case estimate")
	}
	if *s.WorstCaseDays < 2.5 || *s.WorstCaseDays > 2.7 {
		t.Errorf("worst case = %v days, want about 2.62", *s.WorstCaseDays)
	}
}

func TestBuildContextSummary_Minimal(t *testing.T) {
	b := &contextbuild.Bundle{SystemID: "bare"}
	s := BuildContextSummary(b)
	if s.VoltageV != nil || s.AutonomyHours != nil || s.WorstCaseDays != nil {
		t.Errorf("summary = %+v, want empty fields", s)
	}
	if s.AnomalyCount != 0 {
		t.Errorf("anomaly count = %d", s.AnomalyCount)
	}
}

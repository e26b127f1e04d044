// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package format

import (
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

func calls(names ...string) []datatypes.ToolInvocation {
	out := make([]datatypes.ToolInvocation, len(names))
	for i, n := range names {
		out[i] = datatypes.ToolInvocation{Name: n, Iteration: i + 1}
	}
	return out
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		calls []datatypes.ToolInvocation
		want  int
	}{
		{"baseline with tools", "The battery is healthy.", calls("request_bms_data"), 100},
		{"no tools", "The battery is healthy.", nil, 85},
		{"uncertainty", "Insufficient data for load profiling.", calls("request_bms_data"), 80},
		{"uncertainty applies once", "insufficient data and we cannot determine the trend", calls("request_bms_data"), 80},
		{"quality", "Strong correlation between temperature and capacity.", calls("request_bms_data"), 100},
		{"predict boost", "Capacity will reach threshold in 400 days.", calls("predict_battery_trends"), 100},
		{"pattern boost under cap", "High confidence in the daily cycle.", calls("analyze_usage_patterns"), 100},
		{"boost offsets uncertainty", "Insufficient data for one kernel.", calls("calculate_energy_budget"), 90},
		{"no tools and uncertain", "Cannot determine autonomy without history.", nil, 65},
	}
	for _, tc := range cases {
		if got := Confidence(tc.text, tc.calls); got != tc.want {
			t.Errorf("%s: Confidence = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestConfidence_Deterministic(t *testing.T) {
	text := "Insufficient data. High confidence in the rest."
	trace := calls("request_bms_data", "predict_battery_trends")
	first := Confidence(text, trace)
	for i := 0; i < 10; i++ {
		if got := Confidence(text, trace); got != first {
			t.Fatalf("score changed across calls: %d then %d", first, got)
		}
	}
}

func TestRender_PassthroughWhenFramed(t *testing.T) {
	for _, text := range []string{
		"## KEY FINDINGS\n- 🟢 all good\n\n## RECOMMENDATIONS\n- none",
		"## OPERATIONAL STATUS\nnominal",
		headerMarker + "\nalready framed",
	} {
		out := Render(Input{RawText: text, GenerationTime: time.Second})
		if out.FormattedText != text {
			t.Errorf("framed text must pass through, got %.60q", out.FormattedText)
		}
		if out.RawText != text {
			t.Error("raw text must be preserved verbatim")
		}
	}
}

func TestRender_WrapsPlainText(t *testing.T) {
	out := Render(Input{
		RawText:        "  The battery looks fine overall.  ",
		ToolCalls:      calls("request_bms_data", "getWeatherData"),
		GenerationTime: 12340 * time.Millisecond,
	})

	f := out.FormattedText
	if !strings.HasPrefix(f, headerMarker) {
		t.Errorf("missing header: %.60q", f)
	}
	for _, want := range []string{
		"Confidence: 🟢 100/100",
		"2 data lookups",
		"---",
		"The battery looks fine overall.",
		"Generated in 12.3 s",
	} {
		if !strings.Contains(f, want) {
			t.Errorf("formatted text missing %q:\n%s", want, f)
		}
	}
	if strings.Contains(f, "  The battery") {
		t.Error("body must be trimmed inside the frame")
	}
}

func TestRender_BadgeTiers(t *testing.T) {
	low := Render(Input{RawText: "cannot determine much here"}) // 100-15-20 = 65
	if low.Performance != 65 || !strings.Contains(low.FormattedText, "🟡 65/100") {
		t.Errorf("performance = %d, text = %.80q", low.Performance, low.FormattedText)
	}
}

func TestHealthStatus(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"", "unknown"},
		{"   \n", "unknown"},
		{"## KEY FINDINGS\n- 🔴 cell imbalance at 120 mV", "critical"},
		{"temperature is in the CRITICAL range", "critical"},
		{"- 🟡 monitor overnight drain", "warning"},
		{"early warning signs in the voltage trend", "warning"},
		{"- 🟢 system healthy", "good"},
		{"everything looks nominal", "good"},
	}
	for _, tc := range cases {
		if got := healthStatus(tc.text); got != tc.want {
			t.Errorf("healthStatus(%.30q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestRender_CarriesContextSummary(t *testing.T) {
	soc := 64.0
	summary := &datatypes.ContextSummary{SOCPct: &soc, AnomalyCount: 2}
	out := Render(Input{RawText: "fine", ContextSummary: summary})
	if out.ContextSummary != summary {
		t.Error("context summary must be attached unchanged")
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompt renders the initial reasoning prompt from a context
// bundle, and mirrors it into the compact summary returned to callers.
package prompt

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/gridsage/services/insights/analytics"
	"github.com/AleutianAI/gridsage/services/insights/contextbuild"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
	"github.com/AleutianAI/gridsage/services/insights/tools"
)

// toolDescriptionLimit truncates catalog descriptions in the prompt.
const toolDescriptionLimit = 120

// defaultMission is used when the caller supplies no prompt.
const defaultMission = "Assess this battery system's current health, whether its energy supply is sufficient for its load, and what the owner should do next. Surface problems before they become outages."

// Input is everything the builder renders from.
type Input struct {
	Bundle *contextbuild.Bundle

	// Tools is the catalog in registration order; deprecated aliases are
	// not rendered.
	Tools []*tools.Tool

	Mode datatypes.Mode

	// UserPrompt overrides the default mission after sanitization.
	UserPrompt string

	// CriticalFlags are the critical snapshot-validation findings.
	CriticalFlags []string
}

// Build composes the initial prompt.
//
// Description:
//
//	Fixed persona, execution guidance tuned to the bundle, the tool
//	catalog, one headed block per assembled context section (with
//	explicit insufficient-data notes), the mission, and the closed
//	response-rule list. Order is stable so prompt diffs are readable
//	in logs.
func Build(in Input) string {
	var w strings.Builder
	b := in.Bundle

	writePersona(&w)
	writeGuidance(&w, in)
	writeToolCatalog(&w, in.Tools)
	writeContext(&w, b, in.CriticalFlags)
	writeMission(&w, in.UserPrompt)
	writeRules(&w)

	return w.String()
}

func writePersona(w *strings.Builder) {
	w.WriteString(`You are an expert off-grid battery systems analyst. You have deep working knowledge of BMS telemetry, lithium chemistry behavior, solar charging, and load management.

Your three goals, in order:
1. HEALTH: determine whether the battery pack itself is healthy or degrading.
2. SUFFICIENCY: determine whether energy supply covers the load, now and in the coming days.
3. PROACTIVE ACTION: tell the owner what to do before a problem becomes an outage.

`)
}

// writeGuidance tunes the model's plan to what is already loaded.
func writeGuidance(w *strings.Builder, in Input) {
	b := in.Bundle
	w.WriteString("EXECUTION GUIDANCE\n")

	if in.Mode == datatypes.ModeBackground {
		w.WriteString("- The context below is fully preloaded from 90 days of history. Prefer reasoning over it; call tools only to drill into specifics.\n")
	} else {
		w.WriteString("- This is an interactive request with a lean preloaded context. Use tools to fetch history, analytics, predictions, and budgets before concluding.\n")
	}
	if b.Meta.Truncated {
		w.WriteString("- Context assembly hit its time budget; some sections are missing. Fetch what you need via tools.\n")
	}
	if b.Facts.BrandNewLikely {
		w.WriteString("- The pack looks recently installed (low cycle count). Treat capacity-decline signals as monitoring items, not failures; baselines are still forming.\n")
	}
	if sv := b.SolarVariance.Value; sv != nil && !sv.WithinBand && sv.VariancePct < 0 {
		w.WriteString("- Observed solar charge is below the weather-adjusted expectation. Investigate panel output, wiring, and shading before blaming weather.\n")
	}
	w.WriteString("\n")
}

func writeToolCatalog(w *strings.Builder, catalog []*tools.Tool) {
	w.WriteString("AVAILABLE TOOLS\n")
	for _, t := range catalog {
		if t.ReplacedBy != "" {
			continue
		}
		desc := t.Description
		if len(desc) > toolDescriptionLimit {
			desc = desc[:toolDescriptionLimit-3] + "..."
		}
		names := make([]string, 0, len(t.Params))
		for _, p := range t.Params {
			names = append(names, p.Name)
		}
		fmt.Fprintf(w, "- %s(%s): %s\n", t.Name, strings.Join(names, ", "), desc)
	}
	w.WriteString("\n")
}

func writeMission(w *strings.Builder, userPrompt string) {
	mission := defaultMission
	if s := SanitizeMission(userPrompt); s != "" {
		mission = s
	}
	w.WriteString("MISSION\n")
	w.WriteString(mission)
	w.WriteString("\n\n")
}

func writeRules(w *strings.Builder) {
	w.WriteString(`RESPONSE RULES
1. Emit exactly one JSON value per turn. Either {"tool_call": "<tool name>", "parameters": {...}} or {"final_answer": "<markdown string>"}. No prose outside the JSON.
2. The final answer must contain "## KEY FINDINGS" and "## RECOMMENDATIONS" sections.
3. Mark each recommendation's urgency with one marker: 🔴 (act now), 🟡 (soon), 🟢 (routine).
4. Cite the data source for each finding parenthetically in the bullet, e.g. (energy balance, 30d) or (predict_battery_trends).
5. Terminology discipline: "battery autonomy/runtime" means time until discharge at current load; "service life/lifetime" means time until replacement due to degradation. Never conflate the two.
6. If data coverage is below 60%, say so plainly and do not report an energy deficit as established fact.
7. Energy deficits within 10% of daily consumption are within tolerance; solar variance within 15% of expectation is normal.
8. Do not invent numbers. If a section says insufficient data, either fetch it with a tool or state the limitation.
`)
}

// writeContext renders one headed block per assembled section.
func writeContext(w *strings.Builder, b *contextbuild.Bundle, criticalFlags []string) {
	w.WriteString("SYSTEM CONTEXT\n\n")

	writeProfile(w, b)
	writeSnapshot(w, b, criticalFlags)
	writeSummaryBlock(w, "LAST 7 DAYS", b.InitialSummary)
	writeHealthBlock(w, b)
	writeSectionBlock(w, "TRENDS (90d)", b.Trends, renderTrends)
	writeSectionBlock(w, "USAGE PATTERN", b.Usage, renderUsage)
	writeSectionBlock(w, "LOAD PROFILE", b.Load, renderLoad)
	writeSectionBlock(w, "ENERGY BALANCE", b.EnergyBalance, renderEnergyBalance)
	writeSectionBlock(w, "ANOMALIES", b.Anomalies, renderAnomalies)
	writeSectionBlock(w, "OVERNIGHT LOAD", b.NightUse, renderNightUse)
	writeSectionBlock(w, "SOLAR VARIANCE", b.SolarVariance, renderSolarVariance)
	writeSectionBlock(w, "SOLAR PERFORMANCE", b.Solar, renderSolar)
	writeSectionBlock(w, "DEGRADATION FORECAST", b.Prediction, renderPrediction)
	writeWeatherBlock(w, b)
}

func writeProfile(w *strings.Builder, b *contextbuild.Bundle) {
	fmt.Fprintf(w, "SYSTEM: %s\n", b.SystemID)
	if p := b.Profile; p != nil {
		if p.Name != "" {
			fmt.Fprintf(w, "- name: %s\n", p.Name)
		}
		if p.Chemistry != "" {
			fmt.Fprintf(w, "- chemistry: %s (expected cycle life %d)\n", p.Chemistry, b.Facts.ExpectedCycleLife)
		}
		if p.NominalVoltage > 0 && p.RatedCapacityAh > 0 {
			fmt.Fprintf(w, "- rated: %.1f V, %.0f Ah (%.1f kWh)\n",
				p.NominalVoltage, p.RatedCapacityAh, p.NominalVoltage*p.RatedCapacityAh/1000)
		}
		if p.MaxSolarChargeCurrent != nil {
			fmt.Fprintf(w, "- max solar charge current: %.0f A\n", *p.MaxSolarChargeCurrent)
		}
	} else {
		w.WriteString("- no system profile on record\n")
	}
	w.WriteString("\n")
}

func writeSnapshot(w *strings.Builder, b *contextbuild.Bundle, criticalFlags []string) {
	w.WriteString("CURRENT SNAPSHOT\n")
	s := b.Snapshot
	if s == nil {
		w.WriteString("- no live snapshot supplied\n\n")
		return
	}
	line := func(label string, v *float64, unit string) {
		if v != nil {
			fmt.Fprintf(w, "- %s: %.2f %s\n", label, *v, unit)
		}
	}
	line("voltage", s.OverallVoltage, "V")
	line("current", s.Current, "A (positive = charging)")
	line("power", s.Power, "W")
	line("SOC", s.SOC, "%")
	line("temperature", s.TemperatureC, "C")
	if s.CycleCount != nil {
		fmt.Fprintf(w, "- cycle count: %d", *s.CycleCount)
		if b.Facts.BrandNewLikely {
			w.WriteString(" (recent install)")
		}
		w.WriteString("\n")
	}
	if b.Facts.SnapshotAutonomyHours != nil {
		fmt.Fprintf(w, "- battery autonomy at current load: %.2f h (runtime, not service life)\n", *b.Facts.SnapshotAutonomyHours)
	}
	for _, flag := range criticalFlags {
		fmt.Fprintf(w, "- VALIDATION: %s\n", flag)
	}
	w.WriteString("\n")
}

func writeSummaryBlock(w *strings.Builder, title string, days []analytics.DailySummary) {
	fmt.Fprintf(w, "%s\n", title)
	if len(days) == 0 {
		w.WriteString("- insufficient data: no records in the window\n\n")
		return
	}
	for _, d := range days {
		line := fmt.Sprintf("- %s: SOC avg %.0f (min %.0f, max %.0f), net %+.1f Ah", d.Day, d.AvgSOC, d.MinSOC, d.MaxSOC, d.NetAh)
		if d.AvgCloudsPct != nil {
			line += fmt.Sprintf(", clouds %.0f%%", *d.AvgCloudsPct)
		}
		if d.AlertCount > 0 {
			line += fmt.Sprintf(", %d alerts", d.AlertCount)
		}
		w.WriteString(line + "\n")
	}
	w.WriteString("\n")
}

func writeHealthBlock(w *strings.Builder, b *contextbuild.Bundle) {
	w.WriteString("BATTERY HEALTH\n")
	switch {
	case b.Health.Value != nil:
		h := b.Health.Value
		fmt.Fprintf(w, "- composite score %d/100 (%s)\n", h.Score, h.Overall)
		if h.Imbalance != nil {
			fmt.Fprintf(w, "- cell imbalance: avg %.0f mV, max %.0f mV (%s)\n", h.Imbalance.AvgMV, h.Imbalance.MaxMV, h.Imbalance.Status)
		}
		if h.Temperature != nil {
			fmt.Fprintf(w, "- temperature: avg %.1f C, range %.1f to %.1f C (%s)\n", h.Temperature.AvgC, h.Temperature.MinC, h.Temperature.MaxC, h.Temperature.Status)
		}
		if h.Capacity != nil {
			fmt.Fprintf(w, "- capacity retention: %.0f%% of rating (%s)\n", h.Capacity.RetentionPct, h.Capacity.Status)
		}
		if h.CycleLife != nil {
			fmt.Fprintf(w, "- cycle life: %d of %d expected cycles used (%.0f%%)\n", h.CycleLife.CycleCount, h.CycleLife.ExpectedCycles, h.CycleLife.UsedPct)
		}
		if h.Recommendation != "" {
			fmt.Fprintf(w, "- note: %s\n", h.Recommendation)
		}
	case b.Health.Insufficient != nil:
		writeInsufficient(w, b.Health.Insufficient)
	default:
		w.WriteString("- not assembled; fetch via getSystemAnalytics\n")
	}
	w.WriteString("\n")
}

// writeSectionBlock renders a kernel section or its absence note.
func writeSectionBlock[T any](w *strings.Builder, title string, s contextbuild.Section[T], render func(*strings.Builder, *T)) {
	fmt.Fprintf(w, "%s\n", title)
	switch {
	case s.Value != nil:
		render(w, s.Value)
	case s.Insufficient != nil:
		writeInsufficient(w, s.Insufficient)
	default:
		w.WriteString("- not assembled; fetch via tools if needed\n")
	}
	w.WriteString("\n")
}

func writeInsufficient(w *strings.Builder, insuf *analytics.Insufficient) {
	fmt.Fprintf(w, "- insufficient data: %s (need %d, have %d)\n", insuf.Reason, insuf.MinimumRequired, insuf.Actual)
}

func renderTrends(w *strings.Builder, t *analytics.TrendsResult) {
	one := func(mt *analytics.MetricTrend) {
		if mt == nil {
			return
		}
		fmt.Fprintf(w, "- %s: %s, %+.3f/day (%s confidence, R2 %.2f)\n", mt.Metric, mt.Direction, mt.SlopePerDay, mt.Confidence, mt.R2)
	}
	one(t.SOC)
	one(t.Voltage)
	one(t.Current)
}

func renderUsage(w *strings.Builder, u *analytics.UsagePatternsResult) {
	fmt.Fprintf(w, "- pattern: %s, %.2f cycles/day\n", u.Pattern, u.CyclesPerDay)
	fmt.Fprintf(w, "- avg discharge depth %.0f%% over %.1f h; deepest %.0f%%\n", u.AvgDischargeDepthPct, u.AvgDischargeHours, u.DeepestDischargePct)
}

func renderLoad(w *strings.Builder, l *analytics.LoadProfileResult) {
	fmt.Fprintf(w, "- baseload %.0f W; day avg %.0f W, night avg %.0f W\n", l.BaseloadW, l.DayAvgW, l.NightAvgW)
	fmt.Fprintf(w, "- peak %.0f W around %02d:00; interpretation: %s\n", l.PeakAvgW, l.PeakHour, l.Interpretation)
}

func renderEnergyBalance(w *strings.Builder, e *analytics.EnergyBalanceResult) {
	fmt.Fprintf(w, "- generation %.0f Wh/day vs consumption %.0f Wh/day (net %+.0f)\n", e.AvgDailyGenerationWh, e.AvgDailyConsumptionWh, e.AvgDailyNetWh)
	fmt.Fprintf(w, "- solar sufficiency %.0f%%, data completeness %.0f%%\n", e.SolarSufficiencyPct, e.CompletenessPct)
	if e.DeficitSuppressed {
		w.WriteString("- deficit reporting suppressed: coverage below 60%\n")
	} else if e.DeficitWhPerDay > 0 {
		fmt.Fprintf(w, "- daily deficit %.0f Wh (beyond the 10%% tolerance)\n", e.DeficitWhPerDay)
	}
	if e.AutonomyHours != nil {
		fmt.Fprintf(w, "- battery autonomy %.1f h (%.1f days) at the average load; runtime, not service life\n", *e.AutonomyHours, *e.AutonomyDays)
	}
}

func renderAnomalies(w *strings.Builder, a *analytics.AnomaliesResult) {
	fmt.Fprintf(w, "- %d anomalies: %d critical, %d high, %d medium\n", len(a.Anomalies), a.CriticalCount, a.HighCount, a.MediumCount)
	shown := 0
	for _, an := range a.Anomalies {
		if an.Severity != analytics.AnomalyCritical && an.Severity != analytics.AnomalyHigh {
			continue
		}
		fmt.Fprintf(w, "- [%s] %s %.2f at %s (%s)\n", an.Severity, an.Metric, an.Value, an.Timestamp.Format("2006-01-02 15:04"), an.Detail)
		shown++
		if shown == 5 {
			break
		}
	}
}

func renderNightUse(w *strings.Builder, n *analytics.NightDischargeResult) {
	fmt.Fprintf(w, "- overnight draw avg %.1f A (%.0f W), %.1f Ah per night\n", n.AvgA, n.AvgW, n.AvgNightlyAh)
}

func renderSolarVariance(w *strings.Builder, sv *analytics.SolarVarianceResult) {
	fmt.Fprintf(w, "- expected %.0f Ah vs observed %.0f Ah (%+.0f%%), over %d days\n", sv.ExpectedAh, sv.ObservedAh, sv.VariancePct, sv.DaysObserved)
	if sv.WithinBand {
		w.WriteString("- within the 15% tolerance band\n")
	} else {
		w.WriteString("- outside the 15% tolerance band\n")
	}
	fmt.Fprintf(w, "- implied daytime load %.0f Ah\n", sv.DaytimeLoadAh)
}

func renderSolar(w *strings.Builder, s *analytics.SolarPerformanceResult) {
	fmt.Fprintf(w, "- actual %.0f Wh/day vs modeled %.0f Wh/day, performance ratio %.2f (%s)\n", s.AvgDailyActualWh, s.ExpectedDailyWh, s.PerformanceRatio, s.Rating)
}

func renderPrediction(w *strings.Builder, p *analytics.PredictionResult) {
	fmt.Fprintf(w, "- capacity %.0f Ah of %.0f Ah rated; threshold %.0f Ah\n", p.CurrentCapacityAh, p.RatedCapacityAh, p.ThresholdAh)
	fmt.Fprintf(w, "- service life: ~%.0f days to threshold (this is degradation, not runtime)\n", p.EnsembleDaysToThreshold)
	for _, fp := range p.FailureProbabilities {
		fmt.Fprintf(w, "- P(replacement needed within %d days) = %.1f%%\n", fp.HorizonDays, fp.Probability*100)
	}
}

func writeWeatherBlock(w *strings.Builder, b *contextbuild.Bundle) {
	if b.CurrentWeather == nil {
		return
	}
	obs := b.CurrentWeather
	w.WriteString("CURRENT WEATHER\n")
	if obs.Condition != "" {
		fmt.Fprintf(w, "- condition: %s\n", obs.Condition)
	}
	if obs.TempC != nil {
		fmt.Fprintf(w, "- temperature: %.1f C\n", *obs.TempC)
	}
	if obs.CloudsPct != nil {
		fmt.Fprintf(w, "- cloud cover: %.0f%%\n", *obs.CloudsPct)
	}
	w.WriteString("\n")
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// ContextSummary is the machine-consumable mirror of the prompt context,
// returned to the caller for UI display. It carries presentation-rounded
// numbers; the internal bundle keeps full precision.
type ContextSummary struct {
	// Current snapshot numbers.
	VoltageV *float64 `json:"voltage_v,omitempty"`
	CurrentA *float64 `json:"current_a,omitempty"`
	PowerW   *float64 `json:"power_w,omitempty"`
	SOCPct   *float64 `json:"soc_pct,omitempty"`

	// AutonomyHours is runtime until discharge at the current load.
	// This is never service life.
	AutonomyHours *float64 `json:"autonomy_hours,omitempty"`

	// WorstCaseDays is the worst-case energy-budget autonomy in days.
	WorstCaseDays *float64 `json:"worst_case_days,omitempty"`

	// PredictedDaysToThreshold is service-life days until the capacity
	// threshold is reached, from the prediction ensemble.
	PredictedDaysToThreshold *float64 `json:"predicted_days_to_threshold,omitempty"`

	// AnomalyCount is the number of anomalies flagged in the window.
	AnomalyCount int `json:"anomaly_count"`

	// CriticalAnomalyCount is the number flagged critical.
	CriticalAnomalyCount int `json:"critical_anomaly_count"`

	// Weather is the current weather at the system location, if known.
	Weather *WeatherObservation `json:"weather,omitempty"`

	// RecentSOCDelta is the SOC change across the recent-snapshot window.
	RecentSOCDelta *float64 `json:"recent_soc_delta,omitempty"`

	// RecentVoltageDelta is the voltage change across the same window.
	RecentVoltageDelta *float64 `json:"recent_voltage_delta,omitempty"`

	// BrandNewLikely is true when the pack looks recently installed.
	BrandNewLikely bool `json:"brand_new_likely"`

	// ContextTruncated is true when the assembly time budget expired
	// before all steps ran.
	ContextTruncated bool `json:"context_truncated"`
}

// Insights is the formatted output payload of one engine run.
type Insights struct {
	// RawText is the model's final answer as emitted.
	RawText string `json:"raw_text"`

	// FormattedText is RawText wrapped with the standard frame, or
	// RawText unchanged when it already carries the frame.
	FormattedText string `json:"formatted_text"`

	// HealthStatus is the coarse health tag derived from the answer.
	HealthStatus string `json:"health_status"`

	// Performance is the confidence score (0-100). A UX signal only,
	// never a gate.
	Performance int `json:"performance"`

	// ContextSummary mirrors what the model was shown.
	ContextSummary *ContextSummary `json:"context_summary,omitempty"`
}

// Result is the full return value of GenerateInsights.
type Result struct {
	Insights *Insights `json:"insights"`

	// ToolCalls is the ordered tool trace, indexed by iteration.
	ToolCalls []ToolInvocation `json:"tool_calls"`

	// Iterations is how many loop iterations ran.
	Iterations int `json:"iterations"`

	// UsedFunctionCalling is true when at least one tool was dispatched.
	UsedFunctionCalling bool `json:"used_function_calling"`

	// Warning is set on degraded completions (e.g. iteration budget
	// exhausted before a final answer).
	Warning string `json:"warning,omitempty"`

	// ValidationFlags carries physical-invariant violations found in the
	// input snapshot. Violations are recorded, not fatal.
	ValidationFlags []string `json:"validation_flags,omitempty"`
}

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
)

func (r *Registry) analyzeUsagePatterns() *Tool {
	return &Tool{
		Name:        "analyze_usage_patterns",
		Description: "Charge/discharge rhythm and load profile (daily) or statistical outliers (anomalies) over a time range.",
		Params: []Param{
			{Name: "systemId", Type: "string", Description: "System identifier", Required: true},
			{Name: "patternType", Type: "string", Description: "Which analysis to run", Required: true, Enum: []string{"daily", "anomalies"}},
			{Name: "timeRange", Type: "string", Description: "Lookback window like \"7d\" or \"30d\" (default 7d)", Required: false},
		},
		Handler: r.handleUsagePatterns,
	}
}

func (r *Registry) handleUsagePatterns(ctx context.Context, args map[string]any) (any, error) {
	systemID := stringArg(args, "systemId", "")
	window, err := parseTimeRange(stringArg(args, "timeRange", "7d"))
	if err != nil {
		return nil, err
	}

	records, err := r.store.Records(ctx, systemID, window)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	switch stringArg(args, "patternType", "daily") {
	case "anomalies":
		result, insuf := analytics.Anomalies(records)
		if insuf != nil {
			return insuf, nil
		}
		return map[string]any{"anomalies": result}, nil
	default:
		response := map[string]any{}
		if usage, insuf := analytics.UsagePatterns(records); insuf != nil {
			response["usage"] = insuf
		} else {
			response["usage"] = usage
		}
		if profile, insuf := analytics.LoadProfile(records); insuf != nil {
			response["load_profile"] = insuf
		} else {
			response["load_profile"] = profile
		}
		return response, nil
	}
}

// parseTimeRange accepts "Nd" or "Nh" lookback expressions.
func parseTimeRange(raw string) (time.Duration, error) {
	var n int
	var unit byte
	if _, err := fmt.Sscanf(raw, "%d%c", &n, &unit); err != nil || n < 1 {
		return 0, fmt.Errorf("timeRange %q must look like \"7d\" or \"48h\"", raw)
	}
	switch unit {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	}
	return 0, fmt.Errorf("timeRange unit %q must be d or h", string(unit))
}

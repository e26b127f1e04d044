// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/gridsage/services/insights/analytics"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
	"github.com/AleutianAI/gridsage/services/insights/store"
)

func (r *Registry) calculateEnergyBudget() *Tool {
	return &Tool{
		Name:        "calculate_energy_budget",
		Description: "Daily generation vs consumption budget: typical averages, a percentile worst case, or an emergency (no generation) scenario.",
		Params: []Param{
			{Name: "systemId", Type: "string", Description: "System identifier", Required: true},
			{Name: "scenario", Type: "string", Description: "Budget scenario", Required: true, Enum: []string{"current", "worst_case", "emergency"}},
			{Name: "timeframe", Type: "string", Description: "Lookback window like \"30d\" (default 30d)", Required: false},
			{Name: "includeWeather", Type: "boolean", Description: "Attach the weather-impact comparison", Required: false},
		},
		Handler: r.handleEnergyBudget,
	}
}

func (r *Registry) handleEnergyBudget(ctx context.Context, args map[string]any) (any, error) {
	systemID := stringArg(args, "systemId", "")
	scenario := stringArg(args, "scenario", "current")
	window, err := parseTimeRange(stringArg(args, "timeframe", "30d"))
	if err != nil {
		return nil, err
	}

	records, err := r.store.Records(ctx, systemID, window)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	profile, err := r.store.System(ctx, systemID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load system profile: %w", err)
	}

	snap := latestSnapshot(records)
	balance, insuf := analytics.EnergyBalance(records, profile, snap)
	if insuf != nil {
		return insuf, nil
	}

	response := map[string]any{
		"system_id": systemID,
		"scenario":  scenario,
		"window":    window.String(),
	}

	var genWh, consWh []float64
	for _, d := range balance.Days {
		genWh = append(genWh, d.GenerationWh)
		consWh = append(consWh, d.ConsumptionWh)
	}

	switch scenario {
	case "worst_case":
		// Pessimistic but observed: the worst decile of generation
		// against the worst decile of consumption.
		gen := analytics.Percentile(genWh, 10)
		cons := analytics.Percentile(consWh, 90)
		response["generation_wh_per_day"] = gen
		response["consumption_wh_per_day"] = cons
		response["net_wh_per_day"] = gen - cons
		response["basis"] = "10th percentile generation vs 90th percentile consumption"
		response["days_of_reserve"] = reserveDays(profile, snap, cons-gen)
	case "emergency":
		// No generation at all: reserve against peak consumption.
		cons := analytics.Percentile(consWh, 90)
		response["generation_wh_per_day"] = 0.0
		response["consumption_wh_per_day"] = cons
		response["net_wh_per_day"] = -cons
		response["basis"] = "zero generation vs 90th percentile consumption"
		response["days_of_reserve"] = reserveDays(profile, snap, cons)
	default:
		response["balance"] = balance
	}

	if boolArg(args, "includeWeather", false) {
		if impact, insuf := analytics.WeatherImpact(records); insuf != nil {
			response["weather_impact"] = insuf
		} else {
			response["weather_impact"] = impact
		}
	}

	return response, nil
}

// reserveDays converts the usable stored energy into days at a daily
// deficit. Runtime, not service life. Nil when inputs are missing or
// the budget is not in deficit.
func reserveDays(profile *datatypes.SystemProfile, snap *datatypes.Snapshot, deficitWhPerDay float64) *float64 {
	if profile == nil || snap == nil || snap.SOC == nil || deficitWhPerDay <= 0 {
		return nil
	}
	if profile.RatedCapacityAh <= 0 || profile.NominalVoltage <= 0 {
		return nil
	}
	usableWh := profile.RatedCapacityAh * profile.NominalVoltage * (*snap.SOC / 100) * analytics.DepthOfDischarge
	days := usableWh / deficitWhPerDay
	return &days
}

// latestSnapshot returns the most recent telemetry snapshot in the
// window, or nil for an empty window.
func latestSnapshot(records []datatypes.HistoricalRecord) *datatypes.Snapshot {
	if len(records) == 0 {
		return nil
	}
	return &records[len(records)-1].Analysis
}

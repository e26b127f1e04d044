// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"math"
	"sort"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

const energyBalanceMinRecords = 48

// completenessDeficitFloor is the data-quality percentage below which
// deficit reporting is suppressed.
const completenessDeficitFloor = 60.0

// deficitTolerance is the fraction of daily consumption a deficit must
// exceed before it is reported.
const deficitTolerance = 0.10

// DailyEnergy is the integrated energy for one calendar day.
type DailyEnergy struct {
	Day string `json:"day"`

	// GenerationWh is energy flowing in (power > 0).
	GenerationWh float64 `json:"generation_wh"`

	// ConsumptionWh is energy flowing out (power < 0), positive.
	ConsumptionWh float64 `json:"consumption_wh"`

	// NetWh is generation minus consumption.
	NetWh float64 `json:"net_wh"`

	// Samples is the number of records integrated into this day.
	Samples int `json:"samples"`
}

// EnergyBalanceResult summarizes generation vs consumption over a window.
type EnergyBalanceResult struct {
	Days []DailyEnergy `json:"days"`

	AvgDailyGenerationWh  float64 `json:"avg_daily_generation_wh"`
	AvgDailyConsumptionWh float64 `json:"avg_daily_consumption_wh"`
	AvgDailyNetWh         float64 `json:"avg_daily_net_wh"`

	// SolarSufficiencyPct is min(100, avgGen/avgCons x 100).
	SolarSufficiencyPct float64 `json:"solar_sufficiency_pct"`

	// DeficitWhPerDay is the average daily shortfall. Zero when within
	// tolerance or when deficit reporting is suppressed.
	DeficitWhPerDay float64 `json:"deficit_wh_per_day"`

	// DeficitSuppressed is true when data completeness was below the
	// reporting floor, so DeficitWhPerDay must not be trusted.
	DeficitSuppressed bool `json:"deficit_suppressed"`

	// AutonomyHours and AutonomyDays are runtime until empty at the
	// average load. Runtime, never service life.
	AutonomyHours *float64 `json:"autonomy_hours,omitempty"`
	AutonomyDays  *float64 `json:"autonomy_days,omitempty"`

	// AvgLoadW is the average consumption expressed as watts.
	AvgLoadW float64 `json:"avg_load_w"`

	// CompletenessPct is (samples per day / 24) x 100, capped at 100.
	CompletenessPct float64 `json:"completeness_pct"`
}

// EnergyBalance integrates power over a record window into per-day
// generation and consumption.
//
// Description:
//
//	Energy is |P| x dt between adjacent records, with dt clamped to
//	(0, 2h]; out-of-range deltas are dropped entirely. Each interval's
//	energy is attributed to the calendar day of its starting record.
//	Requires at least 48 records.
//
//	Battery autonomy is capacity x SOC x DoD / avgLoadW, in hours and
//	days. This is runtime until empty and must never be presented as
//	service life.
//
// Inputs:
//
//	records - The window, ascending by timestamp.
//	profile - Optional system profile (enables capacity-based autonomy).
//	snap - Optional current snapshot (supplies SOC).
//
// Outputs:
//
//	*EnergyBalanceResult - The balance, nil when insufficient.
//	*Insufficient - Set when the window is too small.
func EnergyBalance(records []datatypes.HistoricalRecord, profile *datatypes.SystemProfile, snap *datatypes.Snapshot) (*EnergyBalanceResult, *Insufficient) {
	if len(records) < energyBalanceMinRecords {
		return nil, notEnough(energyBalanceMinRecords, len(records), "energy balance needs two days of records")
	}

	byDay := map[string]*DailyEnergy{}
	for i := 1; i < len(records); i++ {
		prev := &records[i-1]
		dt, ok := integrationDelta(prev.Timestamp, records[i].Timestamp)
		if !ok {
			continue
		}
		watts, ok := power(prev)
		if !ok {
			continue
		}

		day := dayKey(prev.Timestamp)
		de := byDay[day]
		if de == nil {
			de = &DailyEnergy{Day: day}
			byDay[day] = de
		}

		wh := math.Abs(watts) * dt.Hours()
		if watts > 0 {
			de.GenerationWh += wh
		} else if watts < 0 {
			de.ConsumptionWh += wh
		}
		de.Samples++
	}

	days := make([]DailyEnergy, 0, len(byDay))
	for _, de := range byDay {
		de.NetWh = de.GenerationWh - de.ConsumptionWh
		days = append(days, *de)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })

	result := &EnergyBalanceResult{Days: days}
	if len(days) == 0 {
		return result, nil
	}

	var genSum, consSum, sampleSum float64
	for _, de := range days {
		genSum += de.GenerationWh
		consSum += de.ConsumptionWh
		sampleSum += float64(de.Samples)
	}
	nDays := float64(len(days))
	result.AvgDailyGenerationWh = genSum / nDays
	result.AvgDailyConsumptionWh = consSum / nDays
	result.AvgDailyNetWh = result.AvgDailyGenerationWh - result.AvgDailyConsumptionWh
	result.AvgLoadW = result.AvgDailyConsumptionWh / 24

	if result.AvgDailyConsumptionWh > 0 {
		result.SolarSufficiencyPct = math.Min(100, result.AvgDailyGenerationWh/result.AvgDailyConsumptionWh*100)
	}

	result.CompletenessPct = math.Min(100, sampleSum/nDays/24*100)

	deficit := result.AvgDailyConsumptionWh - result.AvgDailyGenerationWh
	switch {
	case result.CompletenessPct < completenessDeficitFloor:
		result.DeficitSuppressed = true
	case deficit > result.AvgDailyConsumptionWh*deficitTolerance:
		result.DeficitWhPerDay = deficit
	}

	if hours, ok := capacityAutonomyHours(profile, snap, result.AvgLoadW); ok {
		days := hours / 24
		result.AutonomyHours = &hours
		result.AutonomyDays = &days
	}

	return result, nil
}

// capacityAutonomyHours computes runtime until empty from rated capacity,
// current SOC, and the average load.
func capacityAutonomyHours(profile *datatypes.SystemProfile, snap *datatypes.Snapshot, avgLoadW float64) (float64, bool) {
	if profile == nil || snap == nil || snap.SOC == nil || avgLoadW <= 0 {
		return 0, false
	}
	if profile.RatedCapacityAh <= 0 || profile.NominalVoltage <= 0 {
		return 0, false
	}
	capacityWh := profile.RatedCapacityAh * profile.NominalVoltage
	return capacityWh * (*snap.SOC / 100) * DepthOfDischarge / avgLoadW, true
}

// SnapshotAutonomyHours approximates runtime until empty from a lone
// snapshot when no history or profile exists: voltage x SOC x DoD
// divided by the discharge current. A coarse first-order estimate; the
// energy-balance autonomy supersedes it whenever history is available.
func SnapshotAutonomyHours(snap *datatypes.Snapshot) (float64, bool) {
	if snap == nil || snap.OverallVoltage == nil || snap.SOC == nil || snap.Current == nil {
		return 0, false
	}
	amps := *snap.Current
	if amps >= 0 {
		// Charging or idle; runtime is unbounded at this instant.
		return 0, false
	}
	return *snap.OverallVoltage * (*snap.SOC / 100) * DepthOfDischarge / (-amps), true
}

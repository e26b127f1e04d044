// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"sort"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

const solarMinRecords = 24

// SolarRating buckets a performance ratio.
type SolarRating string

const (
	SolarExcellent SolarRating = "excellent"
	SolarGood      SolarRating = "good"
	SolarFair      SolarRating = "fair"
	SolarPoor      SolarRating = "poor"
)

// ChargingPeriod is one maximal run of solar-window charging samples.
type ChargingPeriod struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"duration_hours"`
	EnergyWh float64   `json:"energy_wh"`
	AvgA     float64   `json:"avg_a"`
}

// SolarPerformanceResult compares observed charging against the modeled
// expectation for the installed solar capacity.
type SolarPerformanceResult struct {
	Periods []ChargingPeriod `json:"periods"`

	// AvgDailyActualWh is the observed charging energy per day.
	AvgDailyActualWh float64 `json:"avg_daily_actual_wh"`

	// ExpectedDailyWh is maxSolarCurrent x nominalVoltage x peak sun
	// hours.
	ExpectedDailyWh float64 `json:"expected_daily_wh"`

	// PerformanceRatio is actual / expected.
	PerformanceRatio float64 `json:"performance_ratio"`

	Rating SolarRating `json:"rating"`
}

// SolarPerformance detects charging periods during solar hours and rates
// them against the configured solar capacity.
//
// Description:
//
//	A charging period is a maximal run of adjacent records whose current
//	exceeds +0.5A with timestamps inside [06:00, 18:00). The daily
//	expectation is maxSolarChargeCurrent x nominalVoltage x 5h. Ratio
//	buckets: >=0.8 excellent, >=0.6 good, >=0.4 fair, else poor.
//
// Inputs:
//
//	records - The window, ascending by timestamp.
//	profile - Must carry MaxSolarChargeCurrent, otherwise insufficient.
//
// Outputs:
//
//	*SolarPerformanceResult - The assessment, nil when insufficient.
//	*Insufficient - Set when solar capacity is unconfigured or the
//	window is too small.
func SolarPerformance(records []datatypes.HistoricalRecord, profile *datatypes.SystemProfile) (*SolarPerformanceResult, *Insufficient) {
	if profile == nil || profile.MaxSolarChargeCurrent == nil || *profile.MaxSolarChargeCurrent <= 0 {
		return nil, notEnough(0, len(records), "solar charge capacity not configured for this system")
	}
	if len(records) < solarMinRecords {
		return nil, notEnough(solarMinRecords, len(records), "solar performance needs a full day of records")
	}

	periods := chargingPeriods(records)

	byDay := map[string]float64{}
	for _, p := range periods {
		byDay[dayKey(p.Start)] += p.EnergyWh
	}

	result := &SolarPerformanceResult{Periods: periods}
	if len(byDay) > 0 {
		var total float64
		for _, wh := range byDay {
			total += wh
		}
		result.AvgDailyActualWh = total / float64(len(byDay))
	}

	result.ExpectedDailyWh = *profile.MaxSolarChargeCurrent * profile.NominalVoltage * peakSunHoursClear
	if result.ExpectedDailyWh > 0 {
		result.PerformanceRatio = result.AvgDailyActualWh / result.ExpectedDailyWh
	}
	result.Rating = rateSolar(result.PerformanceRatio)

	return result, nil
}

// chargingPeriods extracts maximal charging runs inside the solar window.
func chargingPeriods(records []datatypes.HistoricalRecord) []ChargingPeriod {
	var periods []ChargingPeriod
	var run []*datatypes.HistoricalRecord

	flush := func() {
		if p, ok := buildPeriod(run); ok {
			periods = append(periods, p)
		}
		run = run[:0]
	}

	for i := range records {
		r := &records[i]
		amps, ok := current(r)
		if ok && amps > idleCurrentA && inSolarWindow(r.Timestamp) {
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()

	sort.Slice(periods, func(i, j int) bool { return periods[i].Start.Before(periods[j].Start) })
	return periods
}

// buildPeriod integrates one charging run. Runs with fewer than two
// samples have no measurable duration and are dropped.
func buildPeriod(run []*datatypes.HistoricalRecord) (ChargingPeriod, bool) {
	if len(run) < 2 {
		return ChargingPeriod{}, false
	}

	p := ChargingPeriod{
		Start: run[0].Timestamp,
		End:   run[len(run)-1].Timestamp,
	}

	var ampSum float64
	for i := 1; i < len(run); i++ {
		dt, ok := integrationDelta(run[i-1].Timestamp, run[i].Timestamp)
		if !ok {
			continue
		}
		if watts, ok := power(run[i-1]); ok && watts > 0 {
			p.EnergyWh += watts * dt.Hours()
		}
	}
	for _, r := range run {
		if amps, ok := current(r); ok {
			ampSum += amps
		}
	}

	p.Duration = p.End.Sub(p.Start).Hours()
	p.AvgA = ampSum / float64(len(run))
	return p, true
}

// rateSolar buckets a performance ratio.
func rateSolar(ratio float64) SolarRating {
	switch {
	case ratio >= 0.8:
		return SolarExcellent
	case ratio >= 0.6:
		return SolarGood
	case ratio >= 0.4:
		return SolarFair
	default:
		return SolarPoor
	}
}

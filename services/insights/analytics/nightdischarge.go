// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

const nightDischargeMinRecords = 24

// NightRun is one discharge run attributed to the night window.
type NightRun struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Hours float64   `json:"hours"`
	Ah    float64   `json:"ah"`
	AvgA  float64   `json:"avg_a"`
}

// NightDischargeResult totals overnight consumption.
type NightDischargeResult struct {
	Runs []NightRun `json:"runs"`

	TotalAh    float64 `json:"total_ah"`
	TotalHours float64 `json:"total_hours"`

	// AvgA is the amp-hour weighted average discharge current.
	AvgA float64 `json:"avg_a"`

	// AvgW is the amp-weighted average power across the runs.
	AvgW float64 `json:"avg_w"`

	// AvgNightlyAh is TotalAh divided by nights observed.
	AvgNightlyAh float64 `json:"avg_nightly_ah"`
}

// NightDischarge totals the discharge that happens overnight.
//
// A discharge run (adjacent records with current < -0.5A) counts as a
// night run when at least half its samples fall inside [18:00, 06:00).
// Amp-hours integrate |I| x dt with the standard delta clamp.
func NightDischarge(records []datatypes.HistoricalRecord) (*NightDischargeResult, *Insufficient) {
	if len(records) < nightDischargeMinRecords {
		return nil, notEnough(nightDischargeMinRecords, len(records), "night discharge needs a full day of records")
	}

	result := &NightDischargeResult{}
	var run []*datatypes.HistoricalRecord

	flush := func() {
		if nr, ok := buildNightRun(run); ok {
			result.Runs = append(result.Runs, nr)
		}
		run = run[:0]
	}

	for i := range records {
		r := &records[i]
		if amps, ok := current(r); ok && amps < -idleCurrentA {
			run = append(run, r)
			continue
		}
		flush()
	}
	flush()

	nights := map[string]bool{}
	var wattSum, ampWeight float64
	for _, nr := range result.Runs {
		result.TotalAh += nr.Ah
		result.TotalHours += nr.Hours
		nights[dayKey(nr.Start)] = true
		wattSum += nr.AvgA * nr.Ah // weight power contribution by Ah
		ampWeight += nr.Ah
	}
	if result.TotalHours > 0 {
		result.AvgA = result.TotalAh / result.TotalHours
	}
	if ampWeight > 0 {
		// AvgW approximates V*I with the run's own average current as
		// the weighting; callers wanting exact watts use EnergyBalance.
		result.AvgW = wattSum / ampWeight * nominalVoltageFallback
	}
	if len(nights) > 0 {
		result.AvgNightlyAh = result.TotalAh / float64(len(nights))
	}

	return result, nil
}

// nominalVoltageFallback converts amps to watts when no profile voltage
// is in scope. 48V class systems dominate the fleet.
const nominalVoltageFallback = 48.0

// buildNightRun integrates one discharge run and keeps it only when at
// least half its samples are in the night window.
func buildNightRun(run []*datatypes.HistoricalRecord) (NightRun, bool) {
	if len(run) < 2 {
		return NightRun{}, false
	}

	night := 0
	for _, r := range run {
		if inNightWindow(r.Timestamp) {
			night++
		}
	}
	if night*2 < len(run) {
		return NightRun{}, false
	}

	nr := NightRun{
		Start: run[0].Timestamp,
		End:   run[len(run)-1].Timestamp,
	}
	nr.Hours = nr.End.Sub(nr.Start).Hours()

	var ampSum float64
	for i := 1; i < len(run); i++ {
		dt, ok := integrationDelta(run[i-1].Timestamp, run[i].Timestamp)
		if !ok {
			continue
		}
		if amps, ok := current(run[i-1]); ok && amps < 0 {
			nr.Ah += -amps * dt.Hours()
		}
	}
	for _, r := range run {
		if amps, ok := current(r); ok {
			ampSum += -amps
		}
	}
	nr.AvgA = ampSum / float64(len(run))

	return nr, true
}

// PeakSunHours interpolates modeled peak sun hours from cloud cover:
// 5h at 0% clouds down to 2h at 100%, linearly.
func PeakSunHours(cloudsPct float64) float64 {
	if cloudsPct < 0 {
		cloudsPct = 0
	}
	if cloudsPct > 100 {
		cloudsPct = 100
	}
	return peakSunHoursClear - (peakSunHoursClear-peakSunHoursOvercast)*cloudsPct/100
}

// SolarVarianceResult reconciles expected vs observed solar charge.
type SolarVarianceResult struct {
	// ExpectedAh is sun-hours (from cloud cover) x max solar charge
	// current, summed per day.
	ExpectedAh float64 `json:"expected_ah"`

	// ObservedAh is the integrated charging amp-hours in the solar
	// window.
	ObservedAh float64 `json:"observed_ah"`

	// VariancePct is (observed - expected) / expected x 100.
	VariancePct float64 `json:"variance_pct"`

	// WithinBand is true when the variance sits inside +/-15%.
	WithinBand bool `json:"within_band"`

	// DaytimeLoadAh is expected minus observed: charge current the
	// array produced that loads consumed before it reached the pack.
	// Reported even when the variance is in band.
	DaytimeLoadAh float64 `json:"daytime_load_ah"`

	DaysObserved int `json:"days_observed"`
}

// solarVarianceBandPct bounds normal expected-vs-observed disagreement.
const solarVarianceBandPct = 15.0

// SolarVariance compares weather-modeled solar charge against observed
// charging amp-hours.
//
// Needs the profile's max solar charge current, weather observations on
// the records, and at least a day of data.
func SolarVariance(records []datatypes.HistoricalRecord, profile *datatypes.SystemProfile) (*SolarVarianceResult, *Insufficient) {
	if profile == nil || profile.MaxSolarChargeCurrent == nil || *profile.MaxSolarChargeCurrent <= 0 {
		return nil, notEnough(0, len(records), "solar charge capacity not configured for this system")
	}
	if len(records) < nightDischargeMinRecords {
		return nil, notEnough(nightDischargeMinRecords, len(records), "solar variance needs a full day of records")
	}

	type dayAgg struct {
		cloudSum   float64
		cloudCount int
	}
	days := map[string]*dayAgg{}
	result := &SolarVarianceResult{}

	for i := range records {
		r := &records[i]
		// An observation without cloud cover tells us nothing about sun
		// hours, so it must not count as a clear sky.
		if r.Weather != nil && r.Weather.CloudsPct != nil && inSolarWindow(r.Timestamp) {
			key := dayKey(r.Timestamp)
			agg := days[key]
			if agg == nil {
				agg = &dayAgg{}
				days[key] = agg
			}
			agg.cloudSum += *r.Weather.CloudsPct
			agg.cloudCount++
		}
		if i == 0 {
			continue
		}
		dt, ok := integrationDelta(records[i-1].Timestamp, records[i].Timestamp)
		if !ok {
			continue
		}
		if amps, ok := current(&records[i-1]); ok && amps > idleCurrentA && inSolarWindow(records[i-1].Timestamp) {
			result.ObservedAh += amps * dt.Hours()
		}
	}

	if len(days) == 0 {
		return nil, notEnough(1, 0, "no weather observations in the solar window")
	}

	for _, agg := range days {
		avgClouds := agg.cloudSum / float64(agg.cloudCount)
		result.ExpectedAh += PeakSunHours(avgClouds) * *profile.MaxSolarChargeCurrent
	}
	result.DaysObserved = len(days)

	if result.ExpectedAh > 0 {
		result.VariancePct = (result.ObservedAh - result.ExpectedAh) / result.ExpectedAh * 100
	}
	result.WithinBand = result.VariancePct >= -solarVarianceBandPct && result.VariancePct <= solarVarianceBandPct

	// Always reported: in-band variance still represents daytime load
	// the array served directly.
	result.DaytimeLoadAh = result.ExpectedAh - result.ObservedAh

	return result, nil
}

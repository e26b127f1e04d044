// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// Cloud-cover cutoffs for day classification.
const (
	clearDayCloudsPct  = 30.0
	cloudyDayCloudsPct = 70.0

	weatherImpactMinDays = 3
)

// WeatherImpactResult quantifies how cloud cover suppresses charging.
type WeatherImpactResult struct {
	ClearDays  int `json:"clear_days"`
	CloudyDays int `json:"cloudy_days"`

	// AvgClearChargeA / AvgCloudyChargeA are the mean charging currents
	// across samples in each day class (charging samples only).
	AvgClearChargeA  float64 `json:"avg_clear_charge_a"`
	AvgCloudyChargeA float64 `json:"avg_cloudy_charge_a"`

	// ChargeReductionPct is how much cloudy-day charging current drops
	// relative to clear days.
	ChargeReductionPct float64 `json:"charge_reduction_pct"`
}

// WeatherImpact compares charging current on clear days (mean cloud
// cover < 30%) against cloudy days (> 70%).
//
// Days with intermediate cloud cover are excluded. Needs at least 3 days
// in each class; records without a cloud-cover observation do not
// contribute.
func WeatherImpact(records []datatypes.HistoricalRecord) (*WeatherImpactResult, *Insufficient) {
	type dayAgg struct {
		cloudSum    float64
		cloudCount  int
		chargeSum   float64
		chargeCount int
	}
	days := map[string]*dayAgg{}

	for i := range records {
		r := &records[i]
		if r.Weather == nil || r.Weather.CloudsPct == nil {
			continue
		}
		key := dayKey(r.Timestamp)
		agg := days[key]
		if agg == nil {
			agg = &dayAgg{}
			days[key] = agg
		}
		agg.cloudSum += *r.Weather.CloudsPct
		agg.cloudCount++
		if amps, ok := current(r); ok && amps > idleCurrentA {
			agg.chargeSum += amps
			agg.chargeCount++
		}
	}

	result := &WeatherImpactResult{}
	var clearSum, cloudySum float64
	var clearN, cloudyN int
	for _, agg := range days {
		if agg.cloudCount == 0 || agg.chargeCount == 0 {
			continue
		}
		avgClouds := agg.cloudSum / float64(agg.cloudCount)
		avgCharge := agg.chargeSum / float64(agg.chargeCount)
		switch {
		case avgClouds < clearDayCloudsPct:
			result.ClearDays++
			clearSum += avgCharge
			clearN++
		case avgClouds > cloudyDayCloudsPct:
			result.CloudyDays++
			cloudySum += avgCharge
			cloudyN++
		}
	}

	if clearN < weatherImpactMinDays || cloudyN < weatherImpactMinDays {
		return nil, notEnough(weatherImpactMinDays, min(clearN, cloudyN),
			"weather impact needs at least 3 clear and 3 cloudy days with charging data")
	}

	result.AvgClearChargeA = clearSum / float64(clearN)
	result.AvgCloudyChargeA = cloudySum / float64(cloudyN)
	if result.AvgClearChargeA > 0 {
		result.ChargeReductionPct = (1 - result.AvgCloudyChargeA/result.AvgClearChargeA) * 100
	}

	return result, nil
}

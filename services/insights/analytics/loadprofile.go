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

const loadProfileMinRecords = 24

// LoadInterpretation tags the shape of a load profile.
type LoadInterpretation string

const (
	LoadNightHeavy LoadInterpretation = "night-heavy"
	LoadDayHeavy   LoadInterpretation = "day-heavy"
	LoadBalanced   LoadInterpretation = "balanced"
)

// loadSkewRatio is the day/night ratio beyond which a profile is tagged
// heavy on one side.
const loadSkewRatio = 1.5

// LoadProfileResult describes when and how hard the system is loaded.
type LoadProfileResult struct {
	// HourlyAvgW holds the average discharge watts per hour-of-day.
	// Hours with no discharge samples are 0.
	HourlyAvgW [24]float64 `json:"hourly_avg_w"`

	// WeekdayAvgW holds the average discharge watts per weekday
	// (0=Sunday, matching time.Weekday).
	WeekdayAvgW [7]float64 `json:"weekday_avg_w"`

	// DayAvgW and NightAvgW split the profile at the night window
	// [18:00, 06:00).
	DayAvgW   float64 `json:"day_avg_w"`
	NightAvgW float64 `json:"night_avg_w"`

	// BaseloadW is the minimum non-zero hourly average.
	BaseloadW float64 `json:"baseload_w"`

	// PeakHour is the hour-of-day with the highest average load.
	PeakHour int `json:"peak_hour"`

	// PeakAvgW is the average load during PeakHour.
	PeakAvgW float64 `json:"peak_avg_w"`

	// Interpretation tags the day/night balance.
	Interpretation LoadInterpretation `json:"interpretation"`

	// SampleCount is the number of discharge samples used.
	SampleCount int `json:"sample_count"`
}

// LoadProfile builds 24-hour and day-of-week load buckets from discharge
// samples.
//
// Description:
//
//	A record is a discharge sample when its current is below -0.5A. The
//	absolute power of each sample is accumulated into its hour-of-day
//	and weekday bucket, then averaged. Requires at least 24 records in
//	the window.
//
// Inputs:
//
//	records - The window, ascending by timestamp.
//
// Outputs:
//
//	*LoadProfileResult - The profile, nil when insufficient.
//	*Insufficient - Set when the window is too small.
func LoadProfile(records []datatypes.HistoricalRecord) (*LoadProfileResult, *Insufficient) {
	if len(records) < loadProfileMinRecords {
		return nil, notEnough(loadProfileMinRecords, len(records), "load profile needs a full day of records")
	}

	var (
		hourSum    [24]float64
		hourCount  [24]int
		weekSum    [7]float64
		weekCount  [7]int
		daySum     float64
		dayCount   int
		nightSum   float64
		nightCount int
		samples    int
	)

	for i := range records {
		r := &records[i]
		amps, ok := current(r)
		if !ok || amps >= -idleCurrentA {
			continue
		}
		watts, ok := power(r)
		if !ok {
			continue
		}
		if watts < 0 {
			watts = -watts
		}

		h := r.Timestamp.Hour()
		hourSum[h] += watts
		hourCount[h]++

		wd := int(r.Timestamp.Weekday())
		weekSum[wd] += watts
		weekCount[wd]++

		if inNightWindow(r.Timestamp) {
			nightSum += watts
			nightCount++
		} else {
			daySum += watts
			dayCount++
		}
		samples++
	}

	result := &LoadProfileResult{SampleCount: samples}

	baseload := 0.0
	peakHour, peakAvg := 0, 0.0
	for h := 0; h < 24; h++ {
		if hourCount[h] == 0 {
			continue
		}
		avg := hourSum[h] / float64(hourCount[h])
		result.HourlyAvgW[h] = avg
		if avg > peakAvg {
			peakAvg = avg
			peakHour = h
		}
		if avg > 0 && (baseload == 0 || avg < baseload) {
			baseload = avg
		}
	}
	for wd := 0; wd < 7; wd++ {
		if weekCount[wd] > 0 {
			result.WeekdayAvgW[wd] = weekSum[wd] / float64(weekCount[wd])
		}
	}

	if dayCount > 0 {
		result.DayAvgW = daySum / float64(dayCount)
	}
	if nightCount > 0 {
		result.NightAvgW = nightSum / float64(nightCount)
	}
	result.BaseloadW = baseload
	result.PeakHour = peakHour
	result.PeakAvgW = peakAvg
	result.Interpretation = interpretLoad(result.DayAvgW, result.NightAvgW)

	return result, nil
}

// interpretLoad tags the profile by the ratio of night to day load.
func interpretLoad(dayAvg, nightAvg float64) LoadInterpretation {
	switch {
	case nightAvg > dayAvg*loadSkewRatio:
		return LoadNightHeavy
	case dayAvg > nightAvg*loadSkewRatio:
		return LoadDayHeavy
	default:
		return LoadBalanced
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics is the pure analysis kernel of the insights engine.
//
// Every function in this package follows one shape: given a window of
// historical records (and optionally a system profile and the current
// snapshot) it returns either a typed result or an Insufficient marker
// describing how much data would have been needed. Functions never touch
// storage, never log, and hold no state, so they are safe to evaluate
// concurrently.
//
// Terminology discipline (enforced across result types and doc comments):
//
//   - "autonomy" / "runtime" is time until discharge at the current load;
//   - "service life" / "lifetime" is time until replacement due to
//     degradation.
//
// The two are never interchangeable.
package analytics

import (
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// Shared kernel constants.
const (
	// idleCurrentA is the band treated as neither charging nor
	// discharging.
	idleCurrentA = 0.5

	// maxIntegrationDelta caps the time delta between adjacent records
	// for energy integration. Gaps beyond this are non-integrable.
	maxIntegrationDelta = 2 * time.Hour

	// DepthOfDischarge is the usable fraction of capacity for autonomy
	// math.
	DepthOfDischarge = 0.8

	// solarDayStartHour and solarDayEndHour bound the solar window
	// [06:00, 18:00).
	solarDayStartHour = 6
	solarDayEndHour   = 18

	// peakSunHoursClear is the modeled peak-sun-hours on a cloudless
	// day; peakSunHoursOvercast the floor at 100% cloud cover. The
	// degradation between them is linear. Policy constants, not physics.
	peakSunHoursClear    = 5.0
	peakSunHoursOvercast = 2.0

	// highSOCThreshold selects samples reliable enough for capacity
	// estimation.
	highSOCThreshold = 80.0

	// brandNewCycleCount is the cycle count at or below which a pack is
	// treated as recently installed.
	brandNewCycleCount = 50
)

// Expected cycle life by chemistry. Two-way policy: LiFePO4 vs everything
// else.
const (
	ExpectedCyclesLiFePO4 = 3000
	ExpectedCyclesDefault = 1000
)

// Insufficient marks an analysis that could not run on the given window.
type Insufficient struct {
	InsufficientData bool   `json:"insufficient_data"`
	MinimumRequired  int    `json:"minimum_required"`
	Actual           int    `json:"actual"`
	Reason           string `json:"reason,omitempty"`
}

// notEnough builds the standard Insufficient marker.
func notEnough(minimum, actual int, reason string) *Insufficient {
	return &Insufficient{
		InsufficientData: true,
		MinimumRequired:  minimum,
		Actual:           actual,
		Reason:           reason,
	}
}

// ExpectedCycleLife returns the expected cycle life for a chemistry tag.
func ExpectedCycleLife(chemistry string) int {
	if isLiFePO4(chemistry) {
		return ExpectedCyclesLiFePO4
	}
	return ExpectedCyclesDefault
}

func isLiFePO4(chemistry string) bool {
	switch chemistry {
	case "LiFePO4", "LFP", "lifepo4", "lfp":
		return true
	}
	return false
}

// BrandNewLikely reports whether a cycle count indicates a recent install.
func BrandNewLikely(cycleCount *int) bool {
	return cycleCount != nil && *cycleCount <= brandNewCycleCount
}

// inSolarWindow reports whether t falls inside [06:00, 18:00) local time.
func inSolarWindow(t time.Time) bool {
	h := t.Hour()
	return h >= solarDayStartHour && h < solarDayEndHour
}

// inNightWindow reports whether t falls inside [18:00, 06:00) local time.
func inNightWindow(t time.Time) bool {
	return !inSolarWindow(t)
}

// integrationDelta returns the time delta between two adjacent records,
// clamped to (0, 2h]. ok is false when the delta is non-integrable.
func integrationDelta(prev, cur time.Time) (time.Duration, bool) {
	d := cur.Sub(prev)
	if d <= 0 || d > maxIntegrationDelta {
		return 0, false
	}
	return d, true
}

// current returns the signed current of a record, ok=false when absent.
func current(r *datatypes.HistoricalRecord) (float64, bool) {
	if r.Analysis.Current == nil {
		return 0, false
	}
	return *r.Analysis.Current, true
}

// power returns the signed power of a record, deriving I*V when the BMS
// does not report power directly.
func power(r *datatypes.HistoricalRecord) (float64, bool) {
	if r.Analysis.Power != nil {
		return *r.Analysis.Power, true
	}
	if r.Analysis.Current != nil && r.Analysis.OverallVoltage != nil {
		return *r.Analysis.Current * *r.Analysis.OverallVoltage, true
	}
	return 0, false
}

// estimatedCapacityAh extrapolates full capacity from a high-SOC sample:
// remaining / (SOC/100). Only meaningful when SOC >= highSOCThreshold.
func estimatedCapacityAh(s *datatypes.Snapshot) (float64, bool) {
	if s.SOC == nil || s.RemainingCapacity == nil {
		return 0, false
	}
	if *s.SOC < highSOCThreshold || *s.SOC <= 0 {
		return 0, false
	}
	return *s.RemainingCapacity / (*s.SOC / 100), true
}

// dayKey buckets a timestamp by calendar day.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

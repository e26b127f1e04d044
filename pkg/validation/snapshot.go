// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for security-critical and
// physics-critical values.
//
// ValidateSystemID guards identifiers that end up inside Flux queries and
// Badger keys. ValidateSnapshot checks BMS readings against physical
// invariants; violations are reported as flags, never as aborts, because a
// misbehaving BMS is exactly what the engine is asked to reason about.
package validation

import (
	"fmt"
	"math"
	"regexp"
)

// systemIDPattern matches valid system identifiers.
// Allows: letters, digits, hyphens, underscores. Max length: 64.
var systemIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,63}$`)

// ValidateSystemID validates a system identifier to prevent Flux injection.
//
// Returns an error if the id is empty or contains characters outside
// [A-Za-z0-9_-] or exceeds 64 characters.
func ValidateSystemID(id string) error {
	if id == "" {
		return fmt.Errorf("system id cannot be empty")
	}
	if !systemIDPattern.MatchString(id) {
		return fmt.Errorf("invalid system id format: %q (must be 1-64 alphanumeric chars, hyphens, or underscores)", id)
	}
	return nil
}

// Severity classifies a validation flag.
type Severity string

const (
	// SeverityInfo marks an observation worth logging.
	SeverityInfo Severity = "info"

	// SeverityWarning marks a reading outside the expected envelope.
	SeverityWarning Severity = "warning"

	// SeverityCritical marks a physically implausible reading.
	SeverityCritical Severity = "critical"
)

// Flag is one physical-invariant violation found in a snapshot.
type Flag struct {
	// Code identifies the check that fired (stable, machine-matchable).
	Code string `json:"code"`

	Severity Severity `json:"severity"`

	// Message is a human-readable description including the offending
	// values.
	Message string `json:"message"`
}

// String renders the flag for inclusion in results and prompts.
func (f Flag) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Code, f.Message)
}

// SnapshotReadings is the subset of snapshot fields the validator needs.
// Pointers distinguish "absent" from zero; absent fields skip their checks.
type SnapshotReadings struct {
	OverallVoltage    *float64
	Current           *float64
	Power             *float64
	SOC               *float64
	RemainingCapacity *float64
	FullCapacity      *float64
	CellVoltages      []float64
	TemperatureC      *float64
}

// Validation thresholds.
const (
	// cellVoltageMin/Max bound a plausible lithium cell voltage.
	cellVoltageMin = 2.0
	cellVoltageMax = 4.5

	// cellSumWarnV and cellSumCriticalV bound the allowed deviation
	// between the cell-voltage sum and the reported pack voltage.
	cellSumWarnV     = 0.5
	cellSumCriticalV = 1.0

	// powerWarnRatio and powerCriticalRatio bound the allowed relative
	// deviation between reported power and current x voltage.
	powerWarnRatio     = 0.10
	powerCriticalRatio = 0.50

	// capacityTolerance allows remaining capacity to exceed full
	// capacity slightly (coulomb-counter drift).
	capacityTolerance = 1.05
)

// ValidateSnapshot checks a snapshot against the physical invariants.
//
// Description:
//
//	Runs every applicable check and returns all flags found. A check only
//	runs when the fields it needs are present. The returned slice is nil
//	when the snapshot is clean.
//
// Inputs:
//
//	r - The snapshot readings to validate.
//
// Outputs:
//
//	[]Flag - All violations found, critical first is NOT guaranteed;
//	callers needing ordering should inspect Severity.
func ValidateSnapshot(r SnapshotReadings) []Flag {
	var flags []Flag

	if r.SOC != nil && (*r.SOC < 0 || *r.SOC > 100) {
		flags = append(flags, Flag{
			Code:     "soc_range",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("SOC %.1f%% outside [0,100]", *r.SOC),
		})
	}

	for i, cv := range r.CellVoltages {
		if cv < cellVoltageMin || cv > cellVoltageMax {
			flags = append(flags, Flag{
				Code:     "cell_voltage_range",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("cell %d voltage %.3fV outside [%.1f,%.1f]", i+1, cv, cellVoltageMin, cellVoltageMax),
			})
		}
	}

	if r.TemperatureC != nil && (*r.TemperatureC <= 0 || *r.TemperatureC > 100) {
		flags = append(flags, Flag{
			Code:     "temperature_range",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("temperature %.1fC outside (0,100]", *r.TemperatureC),
		})
	}

	if f := checkCellSum(r); f != nil {
		flags = append(flags, *f)
	}
	if f := checkPower(r); f != nil {
		flags = append(flags, *f)
	}

	if r.RemainingCapacity != nil && r.FullCapacity != nil && *r.FullCapacity > 0 {
		if *r.RemainingCapacity > *r.FullCapacity*capacityTolerance {
			flags = append(flags, Flag{
				Code:     "capacity_overflow",
				Severity: SeverityWarning,
				Message: fmt.Sprintf("remaining capacity %.1fAh exceeds full capacity %.1fAh by more than %d%%",
					*r.RemainingCapacity, *r.FullCapacity, int((capacityTolerance-1)*100)),
			})
		}
	}

	return flags
}

// checkCellSum flags deviation between the cell sum and pack voltage.
// Within 0.5V: clean. Above 0.5V: warning. Above 1.0V: critical.
func checkCellSum(r SnapshotReadings) *Flag {
	if r.OverallVoltage == nil || len(r.CellVoltages) == 0 {
		return nil
	}

	var sum float64
	for _, cv := range r.CellVoltages {
		sum += cv
	}

	dev := math.Abs(sum - *r.OverallVoltage)
	switch {
	case dev > cellSumCriticalV:
		return &Flag{
			Code:     "cell_sum_mismatch",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("cell voltage sum %.2fV deviates %.2fV from pack voltage %.2fV", sum, dev, *r.OverallVoltage),
		}
	case dev > cellSumWarnV:
		return &Flag{
			Code:     "cell_sum_mismatch",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("cell voltage sum %.2fV deviates %.2fV from pack voltage %.2fV", sum, dev, *r.OverallVoltage),
		}
	}
	return nil
}

// checkPower flags deviation between reported power and current x voltage.
func checkPower(r SnapshotReadings) *Flag {
	if r.Power == nil || r.Current == nil || r.OverallVoltage == nil {
		return nil
	}

	expected := *r.Current * *r.OverallVoltage
	if expected == 0 {
		return nil
	}

	dev := math.Abs(*r.Power-expected) / math.Abs(expected)
	switch {
	case dev > powerCriticalRatio:
		return &Flag{
			Code:     "power_mismatch",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("power %.1fW deviates %.0f%% from I*V %.1fW", *r.Power, dev*100, expected),
		}
	case dev > powerWarnRatio:
		return &Flag{
			Code:     "power_mismatch",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("power %.1fW deviates %.0f%% from I*V %.1fW", *r.Power, dev*100, expected),
		}
	}
	return nil
}

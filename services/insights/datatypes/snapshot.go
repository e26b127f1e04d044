// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the shared domain types for the insights engine.
//
// Every field that can be unknown uses an explicit pointer; a missing
// reading is nil, never zero. Rounding is applied only at presentation
// time, so all numeric fields carry full precision.
package datatypes

import "time"

// Snapshot is one instantaneous BMS reading.
//
// Sign convention: Current is positive while charging and negative while
// discharging. All fields are optional because BMS vendors differ in what
// they report.
type Snapshot struct {
	// OverallVoltage is the pack voltage in volts.
	OverallVoltage *float64 `json:"overall_voltage,omitempty"`

	// Current is the pack current in amperes (positive = charging).
	Current *float64 `json:"current,omitempty"`

	// Power is the instantaneous power in watts.
	Power *float64 `json:"power,omitempty"`

	// SOC is the state of charge as a percentage (0-100).
	SOC *float64 `json:"soc,omitempty"`

	// RemainingCapacity is the remaining capacity in ampere-hours.
	RemainingCapacity *float64 `json:"remaining_capacity,omitempty"`

	// FullCapacity is the full-charge capacity in ampere-hours.
	FullCapacity *float64 `json:"full_capacity,omitempty"`

	// CellVoltages are the per-cell voltages in pack order.
	CellVoltages []float64 `json:"cell_voltages,omitempty"`

	// CellVoltageDiff is the max-min cell voltage spread in volts.
	CellVoltageDiff *float64 `json:"cell_voltage_diff,omitempty"`

	// TemperatureC is the pack temperature in Celsius.
	TemperatureC *float64 `json:"temperature_c,omitempty"`

	// MosTemperatureC is the MOSFET temperature in Celsius.
	MosTemperatureC *float64 `json:"mos_temperature_c,omitempty"`

	// CycleCount is the BMS-reported charge cycle count.
	CycleCount *int `json:"cycle_count,omitempty"`

	// Chemistry is the pack chemistry tag (e.g. "LiFePO4").
	Chemistry string `json:"chemistry,omitempty"`

	// Timestamp is when the reading was taken.
	Timestamp time.Time `json:"timestamp"`

	// Alerts are the short alert tags active at snapshot time.
	Alerts []string `json:"alerts,omitempty"`
}

// HistoricalRecord is one persisted telemetry sample for a system.
type HistoricalRecord struct {
	SystemID  string              `json:"system_id"`
	Timestamp time.Time           `json:"timestamp"`
	Analysis  Snapshot            `json:"analysis"`
	Weather   *WeatherObservation `json:"weather,omitempty"`
	Alerts    []string            `json:"alerts,omitempty"`
}

// WeatherObservation is a weather sample joined to telemetry.
type WeatherObservation struct {
	Timestamp time.Time `json:"timestamp"`
	TempC     *float64  `json:"temp_c,omitempty"`
	CloudsPct *float64  `json:"clouds_pct,omitempty"`
	UVI       *float64  `json:"uvi,omitempty"`
	Condition string    `json:"condition,omitempty"`
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SystemProfile describes one installed battery system.
type SystemProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Chemistry is the pack chemistry, if configured.
	Chemistry string `json:"chemistry,omitempty"`

	// NominalVoltage is the nameplate pack voltage in volts.
	NominalVoltage float64 `json:"nominal_voltage"`

	// RatedCapacityAh is the nameplate capacity in ampere-hours.
	RatedCapacityAh float64 `json:"rated_capacity_ah"`

	// MaxSolarChargeCurrent is the solar charger limit in amperes.
	MaxSolarChargeCurrent *float64 `json:"max_solar_charge_current,omitempty"`

	// MaxGeneratorChargeCurrent is the generator charger limit in amperes.
	MaxGeneratorChargeCurrent *float64 `json:"max_generator_charge_current,omitempty"`

	// Location is the install site, used for weather lookups.
	Location *GeoPoint `json:"location,omitempty"`

	// AssociatedDevices lists device ids feeding this system.
	AssociatedDevices []string `json:"associated_devices,omitempty"`
}

// Float returns a pointer to v. Convenience for building literals.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v. Convenience for building literals.
func Int(v int) *int { return &v }

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"fmt"
	"math"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

const (
	healthMinRecords          = 24
	capacityRetentionMinCount = 10
)

// HealthStatus buckets one health dimension.
type HealthStatus string

const (
	HealthExcellent HealthStatus = "excellent"
	HealthGood      HealthStatus = "good"
	HealthFair      HealthStatus = "fair"
	HealthPoor      HealthStatus = "poor"
	HealthCritical  HealthStatus = "critical"
	HealthUnknown   HealthStatus = "unknown"
)

// Imbalance thresholds in millivolts.
const (
	imbalanceExcellentMV = 30
	imbalanceGoodMV      = 50
	imbalanceFairMV      = 100
)

// Temperature envelope in Celsius.
const (
	tempOptimalLow  = 15.0
	tempOptimalHigh = 25.0
	tempCriticalLow = 0.0
	tempCriticalHot = 45.0
)

// Score penalties per status bucket. The composite starts at 100 and
// subtracts one penalty per dimension.
var healthPenalty = map[HealthStatus]int{
	HealthExcellent: 0,
	HealthGood:      5,
	HealthFair:      15,
	HealthPoor:      30,
	HealthCritical:  40,
	HealthUnknown:   0,
}

// ImbalanceStats summarizes cell voltage spread over the window.
type ImbalanceStats struct {
	AvgMV  float64      `json:"avg_mv"`
	MaxMV  float64      `json:"max_mv"`
	Status HealthStatus `json:"status"`
	Count  int          `json:"count"`
}

// TemperatureStats summarizes pack temperature over the window.
type TemperatureStats struct {
	AvgC   float64      `json:"avg_c"`
	MinC   float64      `json:"min_c"`
	MaxC   float64      `json:"max_c"`
	Status HealthStatus `json:"status"`
	Count  int          `json:"count"`
}

// CapacityRetention estimates remaining capacity against the rating using
// high-SOC samples only.
type CapacityRetention struct {
	// EstimatedCapacityAh is the average extrapolated full capacity.
	EstimatedCapacityAh float64 `json:"estimated_capacity_ah"`

	// RetentionPct is estimated / rated x 100.
	RetentionPct float64 `json:"retention_pct"`

	Status HealthStatus `json:"status"`

	// SampleCount is the number of high-SOC samples used (>=10 needed).
	SampleCount int `json:"sample_count"`
}

// CycleLifeStatus positions the cycle count against the chemistry's
// expected life.
type CycleLifeStatus struct {
	CycleCount     int          `json:"cycle_count"`
	ExpectedCycles int          `json:"expected_cycles"`
	UsedPct        float64      `json:"used_pct"`
	Status         HealthStatus `json:"status"`
}

// BatteryHealthResult is the composite health assessment.
type BatteryHealthResult struct {
	Imbalance   *ImbalanceStats    `json:"imbalance,omitempty"`
	Temperature *TemperatureStats  `json:"temperature,omitempty"`
	Capacity    *CapacityRetention `json:"capacity,omitempty"`
	CycleLife   *CycleLifeStatus   `json:"cycle_life,omitempty"`

	// Score is 0-100: 100 minus fixed penalties per dimension status.
	Score int `json:"score"`

	Overall HealthStatus `json:"overall"`

	// Recommendation is one actionable sentence.
	Recommendation string `json:"recommendation"`
}

// BatteryHealth aggregates imbalance, temperature, capacity retention, and
// cycle life into a composite 0-100 score.
//
// Inputs:
//
//	records - The window, ascending by timestamp.
//	profile - Optional; enables capacity retention and chemistry lookup.
//	snap - Optional current snapshot; supplies cycle count and chemistry
//	when the history does not.
//
// Outputs:
//
//	*BatteryHealthResult - Always non-nil when enough records exist;
//	dimensions without data are nil with no penalty.
//	*Insufficient - Set when the window is too small.
func BatteryHealth(records []datatypes.HistoricalRecord, profile *datatypes.SystemProfile, snap *datatypes.Snapshot) (*BatteryHealthResult, *Insufficient) {
	if len(records) < healthMinRecords {
		return nil, notEnough(healthMinRecords, len(records), "battery health needs a full day of records")
	}

	result := &BatteryHealthResult{
		Imbalance:   imbalanceStats(records),
		Temperature: temperatureStats(records),
		Capacity:    capacityRetention(records, profile),
		CycleLife:   cycleLife(records, profile, snap),
	}

	score := 100
	worst := HealthExcellent
	for _, st := range []HealthStatus{statusOf(result.Imbalance), statusOf(result.Temperature), statusOf(result.Capacity), statusOf(result.CycleLife)} {
		if st == HealthUnknown {
			continue
		}
		score -= healthPenalty[st]
		if healthPenalty[st] > healthPenalty[worst] {
			worst = st
		}
	}
	if score < 0 {
		score = 0
	}
	result.Score = score
	result.Overall = worst
	result.Recommendation = healthRecommendation(result)

	return result, nil
}

// statusOf extracts the status from any health dimension, tolerating nils.
func statusOf(dim any) HealthStatus {
	switch d := dim.(type) {
	case *ImbalanceStats:
		if d != nil {
			return d.Status
		}
	case *TemperatureStats:
		if d != nil {
			return d.Status
		}
	case *CapacityRetention:
		if d != nil {
			return d.Status
		}
	case *CycleLifeStatus:
		if d != nil {
			return d.Status
		}
	}
	return HealthUnknown
}

func imbalanceStats(records []datatypes.HistoricalRecord) *ImbalanceStats {
	var sum, max float64
	var count int

	for i := range records {
		mv, ok := imbalanceMV(&records[i].Analysis)
		if !ok {
			continue
		}
		sum += mv
		if mv > max {
			max = mv
		}
		count++
	}
	if count == 0 {
		return nil
	}

	stats := &ImbalanceStats{
		AvgMV: sum / float64(count),
		MaxMV: max,
		Count: count,
	}
	switch {
	case stats.AvgMV <= imbalanceExcellentMV:
		stats.Status = HealthExcellent
	case stats.AvgMV <= imbalanceGoodMV:
		stats.Status = HealthGood
	case stats.AvgMV <= imbalanceFairMV:
		stats.Status = HealthFair
	default:
		stats.Status = HealthPoor
	}
	return stats
}

// imbalanceMV reads the cell spread in millivolts, deriving max-min from
// per-cell voltages when the BMS does not report the spread directly.
func imbalanceMV(s *datatypes.Snapshot) (float64, bool) {
	if s.CellVoltageDiff != nil {
		return *s.CellVoltageDiff * 1000, true
	}
	if len(s.CellVoltages) < 2 {
		return 0, false
	}
	lo, hi := s.CellVoltages[0], s.CellVoltages[0]
	for _, cv := range s.CellVoltages[1:] {
		lo = math.Min(lo, cv)
		hi = math.Max(hi, cv)
	}
	return (hi - lo) * 1000, true
}

func temperatureStats(records []datatypes.HistoricalRecord) *TemperatureStats {
	var sum float64
	var count int
	lo, hi := math.Inf(1), math.Inf(-1)

	for i := range records {
		t := records[i].Analysis.TemperatureC
		if t == nil {
			continue
		}
		sum += *t
		lo = math.Min(lo, *t)
		hi = math.Max(hi, *t)
		count++
	}
	if count == 0 {
		return nil
	}

	stats := &TemperatureStats{
		AvgC:  sum / float64(count),
		MinC:  lo,
		MaxC:  hi,
		Count: count,
	}
	switch {
	case lo <= tempCriticalLow || hi > tempCriticalHot:
		stats.Status = HealthCritical
	case stats.AvgC >= tempOptimalLow && stats.AvgC <= tempOptimalHigh:
		stats.Status = HealthExcellent
	case stats.AvgC >= 5 && stats.AvgC <= 35:
		stats.Status = HealthGood
	default:
		stats.Status = HealthFair
	}
	return stats
}

func capacityRetention(records []datatypes.HistoricalRecord, profile *datatypes.SystemProfile) *CapacityRetention {
	if profile == nil || profile.RatedCapacityAh <= 0 {
		return nil
	}

	var sum float64
	var count int
	for i := range records {
		if est, ok := estimatedCapacityAh(&records[i].Analysis); ok {
			sum += est
			count++
		}
	}
	if count < capacityRetentionMinCount {
		return nil
	}

	ret := &CapacityRetention{
		EstimatedCapacityAh: sum / float64(count),
		SampleCount:         count,
	}
	ret.RetentionPct = ret.EstimatedCapacityAh / profile.RatedCapacityAh * 100

	switch {
	case ret.RetentionPct >= 95:
		ret.Status = HealthExcellent
	case ret.RetentionPct >= 85:
		ret.Status = HealthGood
	case ret.RetentionPct >= 75:
		ret.Status = HealthFair
	case ret.RetentionPct >= 60:
		ret.Status = HealthPoor
	default:
		ret.Status = HealthCritical
	}
	return ret
}

func cycleLife(records []datatypes.HistoricalRecord, profile *datatypes.SystemProfile, snap *datatypes.Snapshot) *CycleLifeStatus {
	var cycles *int
	chemistry := ""
	if snap != nil {
		cycles = snap.CycleCount
		chemistry = snap.Chemistry
	}
	if cycles == nil {
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].Analysis.CycleCount != nil {
				cycles = records[i].Analysis.CycleCount
				if chemistry == "" {
					chemistry = records[i].Analysis.Chemistry
				}
				break
			}
		}
	}
	if cycles == nil {
		return nil
	}
	if chemistry == "" && profile != nil {
		chemistry = profile.Chemistry
	}

	st := &CycleLifeStatus{
		CycleCount:     *cycles,
		ExpectedCycles: ExpectedCycleLife(chemistry),
	}
	st.UsedPct = float64(st.CycleCount) / float64(st.ExpectedCycles) * 100

	switch {
	case st.UsedPct < 25:
		st.Status = HealthExcellent
	case st.UsedPct < 50:
		st.Status = HealthGood
	case st.UsedPct < 75:
		st.Status = HealthFair
	case st.UsedPct < 100:
		st.Status = HealthPoor
	default:
		st.Status = HealthCritical
	}
	return st
}

// healthRecommendation produces one actionable sentence for the worst
// dimension.
func healthRecommendation(r *BatteryHealthResult) string {
	if r.Temperature != nil && r.Temperature.Status == HealthCritical {
		return fmt.Sprintf("Pack temperature reached %.1fC; move the pack into the 15-25C envelope before further cycling.", r.Temperature.MaxC)
	}
	if r.Imbalance != nil && (r.Imbalance.Status == HealthPoor || r.Imbalance.Status == HealthFair) {
		return fmt.Sprintf("Cell imbalance averages %.0fmV; run a balancing charge and re-check within a week.", r.Imbalance.AvgMV)
	}
	if r.Capacity != nil && healthPenalty[r.Capacity.Status] >= healthPenalty[HealthFair] {
		return fmt.Sprintf("Capacity retention is %.0f%% of rating; plan replacement budgeting and avoid deep discharges.", r.Capacity.RetentionPct)
	}
	if r.CycleLife != nil && healthPenalty[r.CycleLife.Status] >= healthPenalty[HealthFair] {
		return fmt.Sprintf("Pack has used %.0f%% of its expected cycle life; monitor capacity trend monthly.", r.CycleLife.UsedPct)
	}
	return "No corrective action needed; continue routine monitoring."
}

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

const usageMinRecords = 72

// CyclePhase is the direction of one charge/discharge segment.
type CyclePhase string

const (
	PhaseCharge    CyclePhase = "charge"
	PhaseDischarge CyclePhase = "discharge"
)

// CycleSegment is one contiguous charge or discharge run.
type CycleSegment struct {
	Phase CyclePhase `json:"phase"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`

	// DurationHours is the segment length.
	DurationHours float64 `json:"duration_hours"`

	// DepthPct is the SOC swing across the segment (positive).
	DepthPct float64 `json:"depth_pct"`
}

// UsagePatternsResult characterizes the charge/discharge rhythm.
type UsagePatternsResult struct {
	Segments []CycleSegment `json:"segments"`

	AvgDischargeDepthPct float64 `json:"avg_discharge_depth_pct"`
	AvgChargeDepthPct    float64 `json:"avg_charge_depth_pct"`

	AvgDischargeHours float64 `json:"avg_discharge_hours"`
	AvgChargeHours    float64 `json:"avg_charge_hours"`

	// DeepestDischargePct is the largest single SOC drop observed.
	DeepestDischargePct float64 `json:"deepest_discharge_pct"`

	// CyclesPerDay counts discharge segments per day in the window.
	CyclesPerDay float64 `json:"cycles_per_day"`

	// Pattern is a qualitative tag: shallow-cycling, moderate-cycling,
	// deep-cycling, or irregular.
	Pattern string `json:"pattern"`
}

// UsagePatterns builds alternating charge/discharge segments from the
// sign of the current (|I| > 0.5A) and aggregates their shape.
//
// Requires at least 72 records (three days at hourly cadence).
func UsagePatterns(records []datatypes.HistoricalRecord) (*UsagePatternsResult, *Insufficient) {
	if len(records) < usageMinRecords {
		return nil, notEnough(usageMinRecords, len(records), "usage patterns need three days of records")
	}

	segments := cycleSegments(records)
	result := &UsagePatternsResult{Segments: segments}

	var disDepth, disHours, chDepth, chHours float64
	var disCount, chCount int
	for _, seg := range segments {
		switch seg.Phase {
		case PhaseDischarge:
			disDepth += seg.DepthPct
			disHours += seg.DurationHours
			disCount++
			if seg.DepthPct > result.DeepestDischargePct {
				result.DeepestDischargePct = seg.DepthPct
			}
		case PhaseCharge:
			chDepth += seg.DepthPct
			chHours += seg.DurationHours
			chCount++
		}
	}

	if disCount > 0 {
		result.AvgDischargeDepthPct = disDepth / float64(disCount)
		result.AvgDischargeHours = disHours / float64(disCount)
	}
	if chCount > 0 {
		result.AvgChargeDepthPct = chDepth / float64(chCount)
		result.AvgChargeHours = chHours / float64(chCount)
	}

	windowDays := records[len(records)-1].Timestamp.Sub(records[0].Timestamp).Hours() / 24
	if windowDays > 0 {
		result.CyclesPerDay = float64(disCount) / windowDays
	}

	result.Pattern = classifyUsage(result, disCount)
	return result, nil
}

// cycleSegments splits the window into alternating charge/discharge runs.
// Idle samples (|I| <= 0.5A) end the current run without starting one.
func cycleSegments(records []datatypes.HistoricalRecord) []CycleSegment {
	var segments []CycleSegment
	var run []*datatypes.HistoricalRecord
	var phase CyclePhase

	flush := func() {
		if seg, ok := buildSegment(run, phase); ok {
			segments = append(segments, seg)
		}
		run = run[:0]
	}

	for i := range records {
		r := &records[i]
		amps, ok := current(r)
		if !ok || (amps >= -idleCurrentA && amps <= idleCurrentA) {
			flush()
			continue
		}

		p := PhaseCharge
		if amps < 0 {
			p = PhaseDischarge
		}
		if len(run) > 0 && p != phase {
			flush()
		}
		phase = p
		run = append(run, r)
	}
	flush()

	return segments
}

func buildSegment(run []*datatypes.HistoricalRecord, phase CyclePhase) (CycleSegment, bool) {
	if len(run) < 2 {
		return CycleSegment{}, false
	}

	seg := CycleSegment{
		Phase: phase,
		Start: run[0].Timestamp,
		End:   run[len(run)-1].Timestamp,
	}
	seg.DurationHours = seg.End.Sub(seg.Start).Hours()

	first, last := run[0].Analysis.SOC, run[len(run)-1].Analysis.SOC
	if first != nil && last != nil {
		depth := *last - *first
		if depth < 0 {
			depth = -depth
		}
		seg.DepthPct = depth
	}
	return seg, true
}

func classifyUsage(r *UsagePatternsResult, dischargeCount int) string {
	if dischargeCount == 0 {
		return "irregular"
	}
	switch {
	case r.AvgDischargeDepthPct >= 50:
		return "deep-cycling"
	case r.AvgDischargeDepthPct >= 20:
		return "moderate-cycling"
	case r.CyclesPerDay > 3:
		return "irregular"
	default:
		return "shallow-cycling"
	}
}

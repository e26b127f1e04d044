// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompt

import (
	"math"

	"github.com/AleutianAI/gridsage/services/insights/analytics"
	"github.com/AleutianAI/gridsage/services/insights/contextbuild"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// BuildContextSummary mirrors the prompt context into the compact
// machine-consumable summary returned to callers. Numbers are rounded
// for presentation here and only here.
func BuildContextSummary(b *contextbuild.Bundle) *datatypes.ContextSummary {
	s := &datatypes.ContextSummary{
		BrandNewLikely:   b.Facts.BrandNewLikely,
		ContextTruncated: b.Meta.Truncated,
		Weather:          b.CurrentWeather,
	}

	if snap := b.Snapshot; snap != nil {
		s.VoltageV = round2(snap.OverallVoltage)
		s.CurrentA = round2(snap.Current)
		s.PowerW = round2(snap.Power)
		s.SOCPct = round2(snap.SOC)
	}

	// Energy-balance autonomy supersedes the snapshot estimate.
	if eb := b.EnergyBalance.Value; eb != nil && eb.AutonomyHours != nil {
		s.AutonomyHours = round2(eb.AutonomyHours)
	} else {
		s.AutonomyHours = round2(b.Facts.SnapshotAutonomyHours)
	}

	if days := worstCaseDays(b); days != nil {
		s.WorstCaseDays = round2(days)
	}

	if p := b.Prediction.Value; p != nil {
		s.PredictedDaysToThreshold = round2(&p.EnsembleDaysToThreshold)
	}

	if a := b.Anomalies.Value; a != nil {
		s.AnomalyCount = len(a.Anomalies)
		s.CriticalAnomalyCount = a.CriticalCount
	}

	if deltas := recentDeltas(b.RecentSnapshots); deltas != nil {
		s.RecentSOCDelta = round2(deltas.soc)
		s.RecentVoltageDelta = round2(deltas.voltage)
	}

	return s
}

// worstCaseDays is the reserve in days under the pessimistic budget:
// 10th percentile generation against 90th percentile consumption.
func worstCaseDays(b *contextbuild.Bundle) *float64 {
	eb := b.EnergyBalance.Value
	if eb == nil || len(eb.Days) == 0 || b.Profile == nil || b.Snapshot == nil || b.Snapshot.SOC == nil {
		return nil
	}
	if b.Profile.RatedCapacityAh <= 0 || b.Profile.NominalVoltage <= 0 {
		return nil
	}

	var gen, cons []float64
	for _, d := range eb.Days {
		gen = append(gen, d.GenerationWh)
		cons = append(cons, d.ConsumptionWh)
	}
	deficit := analytics.Percentile(cons, 90) - analytics.Percentile(gen, 10)
	if deficit <= 0 {
		return nil // surplus even in the worst case
	}

	usableWh := b.Profile.RatedCapacityAh * b.Profile.NominalVoltage *
		(*b.Snapshot.SOC / 100) * analytics.DepthOfDischarge
	days := usableWh / deficit
	return &days
}

type snapshotDeltas struct {
	soc     *float64
	voltage *float64
}

// recentDeltas measures the change across the recent window. The slice
// is newest first, so the delta is the head minus the tail.
func recentDeltas(snaps []datatypes.Snapshot) *snapshotDeltas {
	if len(snaps) < 2 {
		return nil
	}
	newest, oldest := &snaps[0], &snaps[len(snaps)-1]
	d := &snapshotDeltas{}
	if newest.SOC != nil && oldest.SOC != nil {
		v := *newest.SOC - *oldest.SOC
		d.soc = &v
	}
	if newest.OverallVoltage != nil && oldest.OverallVoltage != nil {
		v := *newest.OverallVoltage - *oldest.OverallVoltage
		d.voltage = &v
	}
	if d.soc == nil && d.voltage == nil {
		return nil
	}
	return d
}

func round2(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*100) / 100
	return &r
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"math"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

const (
	predictMinSamples = 10

	// capacityThresholdFrac is the end-of-service capacity fraction.
	// Crossing 80% of the rating is the replacement trigger.
	capacityThresholdFrac = 0.8

	// Ensemble weights. Exponential decay dominates because lithium
	// fade is closer to exponential than linear over long horizons.
	weightExponential = 0.40
	weightLinear      = 0.35
	weightCycle       = 0.25

	// Weibull failure model parameters. Shape 2.5 gives a wear-out
	// hazard; the scale stretches 20% past the projected threshold
	// crossing.
	weibullShape       = 2.5
	weibullScaleFactor = 1.2
)

// ModelProjection is one member of the prediction ensemble.
type ModelProjection struct {
	Model string `json:"model"`

	// DaysToThreshold is this model's projected days until capacity
	// crosses 80% of rating. Negative means already past.
	DaysToThreshold float64 `json:"days_to_threshold"`

	// FitR2 is the goodness of fit where a regression backs the model;
	// zero for the cycle-count projection.
	FitR2 float64 `json:"fit_r2,omitempty"`

	Weight float64 `json:"weight"`
}

// FailureProbability is the Weibull CDF evaluated at a horizon.
type FailureProbability struct {
	HorizonDays int     `json:"horizon_days"`
	Probability float64 `json:"probability"`
}

// PredictionResult is the full degradation forecast. The struct is plain
// data so it can be cached as JSON and served without recomputation.
type PredictionResult struct {
	GeneratedAt time.Time `json:"generated_at"`

	// CurrentCapacityAh is the latest estimated full capacity.
	CurrentCapacityAh float64 `json:"current_capacity_ah"`

	// RatedCapacityAh echoes the profile rating the threshold derives
	// from.
	RatedCapacityAh float64 `json:"rated_capacity_ah"`

	// ThresholdAh is 80% of the rating.
	ThresholdAh float64 `json:"threshold_ah"`

	Models []ModelProjection `json:"models"`

	// EnsembleDaysToThreshold is the weighted blend of the model
	// projections. This measures service life, not autonomy.
	EnsembleDaysToThreshold float64 `json:"ensemble_days_to_threshold"`

	// ProjectedThresholdDate is GeneratedAt plus the ensemble days.
	ProjectedThresholdDate time.Time `json:"projected_threshold_date"`

	FailureProbabilities []FailureProbability `json:"failure_probabilities"`

	SampleCount int `json:"sample_count"`

	// SpanDays is the time covered by the capacity samples.
	SpanDays float64 `json:"span_days"`
}

// PredictDegradation forecasts when capacity will cross 80% of rating.
//
// Description:
//
//	High-SOC samples (SOC >= 80) yield capacity estimates via
//	remaining/(SOC/100). Three models project the threshold crossing:
//	an exponential decay fit, a linear fit, and a cycle-count
//	projection against the chemistry's expected life. The ensemble
//	blends them 0.40/0.35/0.25. Failure probability at 30/90/365 days
//	comes from a Weibull CDF with shape 2.5 and scale 1.2x the
//	ensemble days-to-threshold.
//
// Inputs:
//
//	records - The window, ascending by timestamp. 90 days recommended.
//	profile - Must carry RatedCapacityAh.
//	snap - Optional; supplies cycle count for the cycle model.
//
// Outputs:
//
//	*PredictionResult - The forecast, nil when insufficient.
//	*Insufficient - Set when fewer than 10 capacity samples exist or
//	the rating is unknown.
func PredictDegradation(records []datatypes.HistoricalRecord, profile *datatypes.SystemProfile, snap *datatypes.Snapshot) (*PredictionResult, *Insufficient) {
	if profile == nil || profile.RatedCapacityAh <= 0 {
		return nil, notEnough(0, len(records), "rated capacity not configured for this system")
	}

	points, last := capacitySamples(records)
	if len(points) < predictMinSamples {
		return nil, notEnough(predictMinSamples, len(points), "degradation forecasting needs 10 high-SOC capacity samples")
	}

	result := &PredictionResult{
		GeneratedAt:       time.Now().UTC(),
		CurrentCapacityAh: last,
		RatedCapacityAh:   profile.RatedCapacityAh,
		ThresholdAh:       profile.RatedCapacityAh * capacityThresholdFrac,
		SampleCount:       len(points),
		SpanDays:          points[len(points)-1].X - points[0].X,
	}

	if m, ok := exponentialModel(points, result.ThresholdAh); ok {
		result.Models = append(result.Models, m)
	}
	if m, ok := linearModel(points, result.ThresholdAh); ok {
		result.Models = append(result.Models, m)
	}
	if m, ok := cycleModel(records, profile, snap); ok {
		result.Models = append(result.Models, m)
	}
	if len(result.Models) == 0 {
		return nil, notEnough(predictMinSamples, len(points), "no degradation model converged on this window")
	}

	var weighted, totalWeight float64
	for _, m := range result.Models {
		weighted += m.DaysToThreshold * m.Weight
		totalWeight += m.Weight
	}
	result.EnsembleDaysToThreshold = weighted / totalWeight
	result.ProjectedThresholdDate = result.GeneratedAt.Add(time.Duration(result.EnsembleDaysToThreshold * 24 * float64(time.Hour)))

	for _, horizon := range []int{30, 90, 365} {
		result.FailureProbabilities = append(result.FailureProbabilities, FailureProbability{
			HorizonDays: horizon,
			Probability: weibullCDF(float64(horizon), result.EnsembleDaysToThreshold),
		})
	}

	return result, nil
}

// capacitySamples extracts (days-since-first, estimated Ah) points from
// high-SOC records, plus the most recent estimate.
func capacitySamples(records []datatypes.HistoricalRecord) ([]Point, float64) {
	var points []Point
	var t0 int64
	var last float64
	for i := range records {
		est, ok := estimatedCapacityAh(&records[i].Analysis)
		if !ok {
			continue
		}
		if len(points) == 0 {
			t0 = records[i].Timestamp.Unix()
		}
		days := float64(records[i].Timestamp.Unix()-t0) / 86400
		points = append(points, Point{X: days, Y: est})
		last = est
	}
	return points, last
}

// exponentialModel solves C0*exp(-k*t) = threshold for t, relative to the
// last sample's day.
func exponentialModel(points []Point, thresholdAh float64) (ModelProjection, bool) {
	fit, ok := ExponentialDecayFit(points)
	if !ok || fit.K <= 0 || fit.C0 <= thresholdAh {
		return ModelProjection{}, false
	}
	crossDay := math.Log(fit.C0/thresholdAh) / fit.K
	return ModelProjection{
		Model:           "exponential",
		DaysToThreshold: crossDay - points[len(points)-1].X,
		FitR2:           fit.R2,
		Weight:          weightExponential,
	}, true
}

// linearModel solves slope*t + intercept = threshold for t.
func linearModel(points []Point, thresholdAh float64) (ModelProjection, bool) {
	reg, ok := LinearRegression(points)
	if !ok || reg.Slope >= 0 {
		return ModelProjection{}, false
	}
	crossDay := (thresholdAh - reg.Intercept) / reg.Slope
	return ModelProjection{
		Model:           "linear",
		DaysToThreshold: crossDay - points[len(points)-1].X,
		FitR2:           reg.R2,
		Weight:          weightLinear,
	}, true
}

// cycleModel projects from cycle accumulation rate against expected cycle
// life.
func cycleModel(records []datatypes.HistoricalRecord, profile *datatypes.SystemProfile, snap *datatypes.Snapshot) (ModelProjection, bool) {
	var firstCycles, lastCycles *int
	var firstT, lastT time.Time
	for i := range records {
		if c := records[i].Analysis.CycleCount; c != nil {
			if firstCycles == nil {
				firstCycles = c
				firstT = records[i].Timestamp
			}
			lastCycles = c
			lastT = records[i].Timestamp
		}
	}
	chemistry := ""
	if snap != nil {
		if snap.CycleCount != nil {
			lastCycles = snap.CycleCount
		}
		chemistry = snap.Chemistry
	}
	if chemistry == "" && profile != nil {
		chemistry = profile.Chemistry
	}
	if firstCycles == nil || lastCycles == nil {
		return ModelProjection{}, false
	}

	spanDays := lastT.Sub(firstT).Hours() / 24
	cyclesGained := *lastCycles - *firstCycles
	if spanDays <= 0 || cyclesGained <= 0 {
		return ModelProjection{}, false
	}

	rate := float64(cyclesGained) / spanDays
	remaining := float64(ExpectedCycleLife(chemistry) - *lastCycles)
	return ModelProjection{
		Model:           "cycle",
		DaysToThreshold: remaining / rate,
		Weight:          weightCycle,
	}, true
}

// weibullCDF is 1 - exp(-(t/scale)^shape) with scale = 1.2x the projected
// days-to-threshold. Negative projections mean the threshold is already
// crossed, so the probability saturates.
func weibullCDF(t, daysToThreshold float64) float64 {
	if daysToThreshold <= 0 {
		return 1
	}
	scale := weibullScaleFactor * daysToThreshold
	return 1 - math.Exp(-math.Pow(t/scale, weibullShape))
}

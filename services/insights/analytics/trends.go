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

const trendsMinPoints = 30

// TrendConfidence tiers the R2 of a trend fit.
type TrendConfidence string

const (
	TrendConfidenceHigh   TrendConfidence = "high"
	TrendConfidenceMedium TrendConfidence = "medium"
	TrendConfidenceLow    TrendConfidence = "low"
)

// TrendDirection tags the thresholded per-day change.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Per-day change thresholds below which a metric counts as stable.
var trendStableThreshold = map[string]float64{
	"soc":     1.0,  // percent per day
	"voltage": 0.05, // volts per day
	"current": 0.5,  // amps per day
}

// MetricTrend is the OLS fit for one metric over the window.
type MetricTrend struct {
	Metric string `json:"metric"`

	// SlopePerDay is the fitted change per day in the metric's unit.
	SlopePerDay float64 `json:"slope_per_day"`

	R2         float64         `json:"r2"`
	Confidence TrendConfidence `json:"confidence"`
	Direction  TrendDirection  `json:"direction"`
	Points     int             `json:"points"`
}

// TrendsResult holds the fitted trends for SOC, voltage, and current.
type TrendsResult struct {
	SOC     *MetricTrend `json:"soc,omitempty"`
	Voltage *MetricTrend `json:"voltage,omitempty"`
	Current *MetricTrend `json:"current,omitempty"`
}

// Trends fits ordinary least squares to (timestamp, value) pairs for SOC,
// voltage, and current.
//
// Each metric needs at least 30 points; metrics with fewer are nil in the
// result. When no metric has enough points the whole call is
// insufficient.
func Trends(records []datatypes.HistoricalRecord) (*TrendsResult, *Insufficient) {
	if len(records) < trendsMinPoints {
		return nil, notEnough(trendsMinPoints, len(records), "trend fitting needs 30 points")
	}

	result := &TrendsResult{
		SOC:     metricTrend("soc", records, func(s *datatypes.Snapshot) *float64 { return s.SOC }),
		Voltage: metricTrend("voltage", records, func(s *datatypes.Snapshot) *float64 { return s.OverallVoltage }),
		Current: metricTrend("current", records, func(s *datatypes.Snapshot) *float64 { return s.Current }),
	}

	if result.SOC == nil && result.Voltage == nil && result.Current == nil {
		return nil, notEnough(trendsMinPoints, 0, "no metric had 30 usable points")
	}
	return result, nil
}

// metricTrend fits one metric. X is days since the first sample so the
// slope reads directly as change-per-day.
func metricTrend(name string, records []datatypes.HistoricalRecord, value func(*datatypes.Snapshot) *float64) *MetricTrend {
	var points []Point
	var t0 int64
	for i := range records {
		v := value(&records[i].Analysis)
		if v == nil {
			continue
		}
		if len(points) == 0 {
			t0 = records[i].Timestamp.Unix()
		}
		days := float64(records[i].Timestamp.Unix()-t0) / 86400
		points = append(points, Point{X: days, Y: *v})
	}
	if len(points) < trendsMinPoints {
		return nil
	}

	reg, ok := LinearRegression(points)
	if !ok {
		return nil
	}

	trend := &MetricTrend{
		Metric:      name,
		SlopePerDay: reg.Slope,
		R2:          reg.R2,
		Points:      reg.N,
	}

	switch {
	case reg.R2 >= 0.7:
		trend.Confidence = TrendConfidenceHigh
	case reg.R2 >= 0.4:
		trend.Confidence = TrendConfidenceMedium
	default:
		trend.Confidence = TrendConfidenceLow
	}

	threshold := trendStableThreshold[name]
	switch {
	case reg.Slope > threshold:
		trend.Direction = TrendIncreasing
	case reg.Slope < -threshold:
		trend.Direction = TrendDecreasing
	default:
		trend.Direction = TrendStable
	}

	return trend
}

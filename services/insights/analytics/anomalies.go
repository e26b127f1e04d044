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
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

const anomaliesMinPoints = 50

// AnomalySeverity ranks a flagged point.
type AnomalySeverity string

const (
	AnomalyCritical AnomalySeverity = "critical"
	AnomalyHigh     AnomalySeverity = "high"
	AnomalyMedium   AnomalySeverity = "medium"
)

// Rapid-SOC-change thresholds.
const (
	rapidSOCDeltaPct = 20.0
	rapidSOCWindow   = time.Hour
)

// sigmaThreshold is the outlier cutoff in standard deviations.
const sigmaThreshold = 3.0

// Anomaly is one flagged data point.
type Anomaly struct {
	Timestamp time.Time       `json:"timestamp"`
	Metric    string          `json:"metric"`
	Value     float64         `json:"value"`
	Severity  AnomalySeverity `json:"severity"`
	Detail    string          `json:"detail"`
}

// AnomaliesResult lists all flagged points in the window.
type AnomaliesResult struct {
	Anomalies []Anomaly `json:"anomalies"`

	CriticalCount int `json:"critical_count"`
	HighCount     int `json:"high_count"`
	MediumCount   int `json:"medium_count"`
}

// Anomalies flags statistical outliers and rapid SOC swings.
//
// Description:
//
//	For voltage, current, and temperature, a point is an outlier when it
//	sits more than 3 sigma from the window mean. Adjacent records whose
//	SOC changes more than 20 points inside one hour are flagged as rapid
//	SOC change. Severity: critical for out-of-range temperature, high
//	for voltage outliers and rapid SOC, medium otherwise.
//
// Requires at least 50 points.
func Anomalies(records []datatypes.HistoricalRecord) (*AnomaliesResult, *Insufficient) {
	if len(records) < anomaliesMinPoints {
		return nil, notEnough(anomaliesMinPoints, len(records), "anomaly detection needs 50 points")
	}

	result := &AnomaliesResult{}

	result.add(sigmaOutliers(records, "voltage", func(s *datatypes.Snapshot) *float64 { return s.OverallVoltage }, AnomalyHigh)...)
	result.add(sigmaOutliers(records, "current", func(s *datatypes.Snapshot) *float64 { return s.Current }, AnomalyMedium)...)
	result.add(temperatureOutliers(records)...)
	result.add(rapidSOCChanges(records)...)

	return result, nil
}

func (r *AnomaliesResult) add(anomalies ...Anomaly) {
	for _, a := range anomalies {
		r.Anomalies = append(r.Anomalies, a)
		switch a.Severity {
		case AnomalyCritical:
			r.CriticalCount++
		case AnomalyHigh:
			r.HighCount++
		case AnomalyMedium:
			r.MediumCount++
		}
	}
}

// sigmaOutliers flags |x - mean| > 3 sigma for one metric.
func sigmaOutliers(records []datatypes.HistoricalRecord, metric string, value func(*datatypes.Snapshot) *float64, severity AnomalySeverity) []Anomaly {
	var values []float64
	for i := range records {
		if v := value(&records[i].Analysis); v != nil {
			values = append(values, *v)
		}
	}
	mean, sigma := meanStddev(values)
	if sigma == 0 {
		return nil
	}

	var out []Anomaly
	for i := range records {
		v := value(&records[i].Analysis)
		if v == nil {
			continue
		}
		if math.Abs(*v-mean) > sigmaThreshold*sigma {
			out = append(out, Anomaly{
				Timestamp: records[i].Timestamp,
				Metric:    metric,
				Value:     *v,
				Severity:  severity,
				Detail:    fmt.Sprintf("%.2f deviates %.1f sigma from mean %.2f", *v, math.Abs(*v-mean)/sigma, mean),
			})
		}
	}
	return out
}

// temperatureOutliers flags 3-sigma outliers, upgrading to critical when
// the reading is outside the physical envelope.
func temperatureOutliers(records []datatypes.HistoricalRecord) []Anomaly {
	out := sigmaOutliers(records, "temperature", func(s *datatypes.Snapshot) *float64 { return s.TemperatureC }, AnomalyMedium)
	for i := range out {
		if out[i].Value <= tempCriticalLow || out[i].Value > tempCriticalHot {
			out[i].Severity = AnomalyCritical
		}
	}
	return out
}

// rapidSOCChanges flags |dSOC| > 20 points within one hour between
// adjacent records.
func rapidSOCChanges(records []datatypes.HistoricalRecord) []Anomaly {
	var out []Anomaly
	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1].Analysis.SOC, records[i].Analysis.SOC
		if prev == nil || cur == nil {
			continue
		}
		dt := records[i].Timestamp.Sub(records[i-1].Timestamp)
		if dt <= 0 || dt >= rapidSOCWindow {
			continue
		}
		delta := *cur - *prev
		if math.Abs(delta) > rapidSOCDeltaPct {
			out = append(out, Anomaly{
				Timestamp: records[i].Timestamp,
				Metric:    "soc",
				Value:     *cur,
				Severity:  AnomalyHigh,
				Detail:    fmt.Sprintf("SOC moved %+.0f points in %s", delta, dt.Round(time.Minute)),
			})
		}
	}
	return out
}

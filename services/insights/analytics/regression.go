// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analytics

import (
	"math"
	"sort"
)

// Point is one (x, y) observation for regression.
type Point struct {
	X float64
	Y float64
}

// Regression holds an ordinary least-squares linear fit y = Slope*x +
// Intercept.
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`

	// R2 is the coefficient of determination, clamped to [0,1].
	R2 float64 `json:"r2"`

	// N is the number of points fitted.
	N int `json:"n"`
}

// LinearRegression computes an OLS fit over the points.
//
// Description:
//
//	Standard least squares. Degenerate inputs (fewer than 2 points, or
//	zero x-variance) return ok=false. R2 is clamped to [0,1] so
//	floating-point noise on perfect fits cannot leak out of range.
//
// Inputs:
//
//	points - The observations. Not modified.
//
// Outputs:
//
//	Regression - The fit.
//	bool - False when no fit is possible.
func LinearRegression(points []Point) (Regression, bool) {
	n := len(points)
	if n < 2 {
		return Regression{}, false
	}

	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var ssXX, ssXY, ssYY float64
	for _, p := range points {
		dx := p.X - meanX
		dy := p.Y - meanY
		ssXX += dx * dx
		ssXY += dx * dy
		ssYY += dy * dy
	}

	if ssXX == 0 {
		return Regression{}, false
	}

	slope := ssXY / ssXX
	intercept := meanY - slope*meanX

	// R2 = 1 - SSres/SStot. A constant series (ssYY == 0) fitted exactly
	// gets R2 = 1.
	r2 := 1.0
	if ssYY > 0 {
		var ssRes float64
		for _, p := range points {
			pred := slope*p.X + intercept
			d := p.Y - pred
			ssRes += d * d
		}
		r2 = 1 - ssRes/ssYY
	}
	r2 = math.Max(0, math.Min(1, r2))

	return Regression{
		Slope:     slope,
		Intercept: intercept,
		R2:        r2,
		N:         n,
	}, true
}

// ExponentialFit holds a decay fit C(t) = C0 * exp(-K*t).
type ExponentialFit struct {
	C0 float64 `json:"c0"`

	// K is the decay constant per unit of x. Positive K means decay.
	K float64 `json:"k"`

	// R2 is from the underlying log-linear regression.
	R2 float64 `json:"r2"`

	N int `json:"n"`
}

// ExponentialDecayFit fits C(t) = C0*exp(-k*t) by linear regression on
// ln C. Points with non-positive y are skipped (no logarithm).
func ExponentialDecayFit(points []Point) (ExponentialFit, bool) {
	logPoints := make([]Point, 0, len(points))
	for _, p := range points {
		if p.Y <= 0 {
			continue
		}
		logPoints = append(logPoints, Point{X: p.X, Y: math.Log(p.Y)})
	}

	reg, ok := LinearRegression(logPoints)
	if !ok {
		return ExponentialFit{}, false
	}

	return ExponentialFit{
		C0: math.Exp(reg.Intercept),
		K:  -reg.Slope,
		R2: reg.R2,
		N:  reg.N,
	}, true
}

// Percentile returns the p-th percentile (0-100) of values using nearest-
// rank on a sorted copy. Returns 0 for an empty slice.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Median returns the 50th percentile.
func Median(values []float64) float64 {
	return Percentile(values, 50)
}

// meanStddev returns the mean and population standard deviation.
func meanStddev(values []float64) (mean, stddev float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / n

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / n)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package insights

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's prometheus collectors.
type Metrics struct {
	// Runs counts finished runs by outcome: ok, fallback, deadline,
	// unresponsive, cancelled, context_error, error.
	Runs *prometheus.CounterVec

	// Duration observes wall time per run in seconds.
	Duration prometheus.Histogram

	// Iterations observes loop iterations per completed run.
	Iterations prometheus.Histogram

	// ToolLatency observes tool execution time in seconds, per tool.
	ToolLatency *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gridsage",
			Subsystem: "insights",
			Name:      "runs_total",
			Help:      "Finished insight runs by outcome.",
		}, []string{"outcome"}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridsage",
			Subsystem: "insights",
			Name:      "run_duration_seconds",
			Help:      "Wall time per insight run.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		}),
		Iterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridsage",
			Subsystem: "insights",
			Name:      "run_iterations",
			Help:      "Reasoning loop iterations per completed run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		ToolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gridsage",
			Subsystem: "insights",
			Name:      "tool_duration_seconds",
			Help:      "Tool execution time by tool name.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"tool"}),
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contextbuild assembles the data bundle the reasoning prompt is
// rendered from.
//
// Assembly is budgeted, not best-effort-forever: a sync request gets a
// lean bundle in a few seconds and the model fetches anything else
// through tools, while a background run preloads the full analytics
// suite. Every step is timed and reported so a truncated bundle says
// exactly what is missing.
package contextbuild

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights/analytics"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
	"github.com/AleutianAI/gridsage/services/insights/store"
	"github.com/AleutianAI/gridsage/services/insights/weather"
)

const (
	// syncBudget bounds assembly for interactive requests. The heavy
	// kernels are skipped outright; the model reaches them via tools.
	syncBudget = 5 * time.Second

	// backgroundBudget bounds assembly for scheduled runs.
	backgroundBudget = 45 * time.Second

	// summaryWindow feeds the initial rollup shown near the top of the
	// prompt.
	summaryWindow = 7 * 24 * time.Hour

	// analyticsWindow feeds the kernel suite and the degradation models.
	analyticsWindow = 90 * 24 * time.Hour

	recentSnapshotCount = 24
)

// Section pairs a kernel result with its insufficient-data marker.
// Exactly one side is set when the step ran; both are nil when it was
// skipped.
type Section[T any] struct {
	Value        *T                      `json:"value,omitempty"`
	Insufficient *analytics.Insufficient `json:"insufficient,omitempty"`
}

func section[T any](v *T, insuf *analytics.Insufficient) Section[T] {
	return Section[T]{Value: v, Insufficient: insuf}
}

// StepReport is the timing record for one assembly step.
type StepReport struct {
	Label      string `json:"label"`
	DurationMs int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Meta describes how the bundle was assembled.
type Meta struct {
	Mode       datatypes.Mode `json:"mode"`
	Steps      []StepReport   `json:"steps"`
	Truncated  bool           `json:"truncated"`
	AssemblyMs int64          `json:"assembly_ms"`
}

// BatteryFacts are the cheap derived facts about the pack itself.
type BatteryFacts struct {
	BrandNewLikely    bool `json:"brand_new_likely"`
	ExpectedCycleLife int  `json:"expected_cycle_life"`

	// SnapshotAutonomyHours is the coarse runtime estimate from the lone
	// snapshot; superseded by the energy-balance autonomy when present.
	SnapshotAutonomyHours *float64 `json:"snapshot_autonomy_hours,omitempty"`
}

// Bundle is everything the prompt builder may render. Skipped sections
// stay zero-valued; the prompt notes their absence instead of guessing.
type Bundle struct {
	SystemID string                     `json:"system_id"`
	Profile  *datatypes.SystemProfile   `json:"profile,omitempty"`
	Snapshot *datatypes.Snapshot        `json:"snapshot,omitempty"`
	Facts    BatteryFacts               `json:"facts"`

	// InitialSummary is the 7-day daily rollup.
	InitialSummary []analytics.DailySummary `json:"initial_summary,omitempty"`

	// RecentSnapshots is the short tail of history, newest first.
	RecentSnapshots []datatypes.Snapshot `json:"recent_snapshots,omitempty"`

	CurrentWeather *datatypes.WeatherObservation `json:"current_weather,omitempty"`

	// Heavy kernel sections, background mode only.
	Health        Section[analytics.BatteryHealthResult]  `json:"health,omitempty"`
	Trends        Section[analytics.TrendsResult]         `json:"trends,omitempty"`
	Usage         Section[analytics.UsagePatternsResult]  `json:"usage,omitempty"`
	Load          Section[analytics.LoadProfileResult]    `json:"load,omitempty"`
	EnergyBalance Section[analytics.EnergyBalanceResult]  `json:"energy_balance,omitempty"`
	Anomalies     Section[analytics.AnomaliesResult]      `json:"anomalies,omitempty"`
	NightUse      Section[analytics.NightDischargeResult] `json:"night_use,omitempty"`
	SolarVariance Section[analytics.SolarVarianceResult]  `json:"solar_variance,omitempty"`
	Solar         Section[analytics.SolarPerformanceResult] `json:"solar,omitempty"`
	Prediction    Section[analytics.PredictionResult]     `json:"prediction,omitempty"`

	// Rollup90d backs the long-horizon trend discussion.
	Rollup90d []analytics.DailySummary `json:"rollup_90d,omitempty"`

	Meta Meta `json:"meta"`
}

// Assembler builds bundles from the store and the weather provider.
type Assembler struct {
	store   store.Store
	weather weather.Provider
	log     *logging.Logger
}

// NewAssembler wires an assembler. The weather provider may be nil.
func NewAssembler(st store.Store, wp weather.Provider, log *logging.Logger) *Assembler {
	if log == nil {
		log = logging.Default()
	}
	return &Assembler{store: st, weather: wp, log: log}
}

// Build assembles the context bundle for one system.
//
// Description:
//
//	Runs the assembly steps under the mode's time budget. Steps that
//	would start after the budget expired are skipped and the bundle is
//	marked truncated. A failed step never fails the build; its error
//	lands in the step report and the section stays empty.
//
// Inputs:
//
//	systemID - Validated system identifier.
//	snap - The current snapshot supplied by the caller; may be nil.
//	mode - Sync (lean) or background (full preload).
//
// Thread Safety: safe for concurrent use; each call owns its bundle.
func (a *Assembler) Build(ctx context.Context, systemID string, snap *datatypes.Snapshot, mode datatypes.Mode) (*Bundle, error) {
	budget := syncBudget
	if mode == datatypes.ModeBackground {
		budget = backgroundBudget
	}
	started := time.Now()
	deadline := started.Add(budget)

	b := &Bundle{
		SystemID: systemID,
		Snapshot: snap,
		Meta:     Meta{Mode: mode},
	}

	a.step(b, deadline, "profile", func() error {
		profile, err := a.store.System(ctx, systemID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil // unconfigured systems still get insights
			}
			return err
		}
		b.Profile = profile
		return nil
	})

	a.step(b, deadline, "battery_facts", func() error {
		chemistry := ""
		if snap != nil {
			chemistry = snap.Chemistry
			b.Facts.BrandNewLikely = analytics.BrandNewLikely(snap.CycleCount)
			if hours, ok := analytics.SnapshotAutonomyHours(snap); ok {
				b.Facts.SnapshotAutonomyHours = &hours
			}
		}
		if chemistry == "" && b.Profile != nil {
			chemistry = b.Profile.Chemistry
		}
		b.Facts.ExpectedCycleLife = analytics.ExpectedCycleLife(chemistry)
		return nil
	})

	a.step(b, deadline, "recent_snapshots", func() error {
		snaps, err := a.store.RecentSnapshots(ctx, systemID, recentSnapshotCount)
		if err != nil {
			return err
		}
		b.RecentSnapshots = snaps
		return nil
	})

	var weekRecords []datatypes.HistoricalRecord
	a.step(b, deadline, "initial_summary", func() error {
		records, err := a.store.Records(ctx, systemID, summaryWindow)
		if err != nil {
			return err
		}
		weekRecords = records
		b.InitialSummary = analytics.DailyRollup(records)
		return nil
	})

	a.step(b, deadline, "current_weather", func() error {
		if a.weather == nil || b.Profile == nil || b.Profile.Location == nil {
			return nil
		}
		obs, err := a.weather.Current(ctx, *b.Profile.Location)
		if err != nil {
			return err
		}
		b.CurrentWeather = obs
		return nil
	})

	if mode == datatypes.ModeBackground {
		a.assembleKernels(ctx, b, deadline)
	} else {
		// The lean bundle still carries the cheap overnight-load and
		// solar-variance reads over the week; everything heavier is
		// fetched through tools.
		a.step(b, deadline, "night_discharge", func() error {
			result, insuf := analytics.NightDischarge(weekRecords)
			b.NightUse = section(result, insuf)
			return nil
		})
		a.step(b, deadline, "solar_variance", func() error {
			result, insuf := analytics.SolarVariance(weekRecords, b.Profile)
			b.SolarVariance = section(result, insuf)
			return nil
		})
	}

	b.Meta.AssemblyMs = time.Since(started).Milliseconds()
	a.log.Info("context assembled",
		"system_id", systemID,
		"mode", string(mode),
		"steps", len(b.Meta.Steps),
		"truncated", b.Meta.Truncated,
		"duration_ms", b.Meta.AssemblyMs)
	return b, nil
}

// assembleKernels runs the heavy analytics suite over 90 days of
// history. The kernels are pure functions over the same slice, so they
// evaluate in parallel.
func (a *Assembler) assembleKernels(ctx context.Context, b *Bundle, deadline time.Time) {
	var records []datatypes.HistoricalRecord
	a.step(b, deadline, "history_90d", func() error {
		var err error
		records, err = a.store.Records(ctx, b.SystemID, analyticsWindow)
		return err
	})
	if records == nil {
		return
	}
	if time.Now().After(deadline) {
		b.Meta.Truncated = true
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	kernel := func(label string, fn func() error) {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			report := a.measure(label, fn)
			mu.Lock()
			b.Meta.Steps = append(b.Meta.Steps, report)
			mu.Unlock()
			return nil
		})
	}

	kernel("health", func() error {
		result, insuf := analytics.BatteryHealth(records, b.Profile, b.Snapshot)
		b.Health = section(result, insuf)
		return nil
	})
	kernel("trends", func() error {
		result, insuf := analytics.Trends(records)
		b.Trends = section(result, insuf)
		return nil
	})
	kernel("usage", func() error {
		result, insuf := analytics.UsagePatterns(records)
		b.Usage = section(result, insuf)
		return nil
	})
	kernel("load_profile", func() error {
		result, insuf := analytics.LoadProfile(records)
		b.Load = section(result, insuf)
		return nil
	})
	kernel("energy_balance", func() error {
		result, insuf := analytics.EnergyBalance(records, b.Profile, b.Snapshot)
		b.EnergyBalance = section(result, insuf)
		return nil
	})
	kernel("anomalies", func() error {
		result, insuf := analytics.Anomalies(records)
		b.Anomalies = section(result, insuf)
		return nil
	})
	kernel("night_discharge", func() error {
		result, insuf := analytics.NightDischarge(records)
		b.NightUse = section(result, insuf)
		return nil
	})
	kernel("solar_variance", func() error {
		result, insuf := analytics.SolarVariance(records, b.Profile)
		b.SolarVariance = section(result, insuf)
		return nil
	})
	kernel("solar_performance", func() error {
		result, insuf := analytics.SolarPerformance(records, b.Profile)
		b.Solar = section(result, insuf)
		return nil
	})
	kernel("rollup_90d", func() error {
		b.Rollup90d = analytics.DailyRollup(records)
		return nil
	})
	_ = g.Wait()

	a.step(b, deadline, "prediction", func() error {
		result, insuf := a.prediction(ctx, b.SystemID, records, b.Profile, b.Snapshot)
		b.Prediction = section(result, insuf)
		return nil
	})
}

// prediction serves the degradation forecast through the model cache so
// scheduled runs and the prediction tool share one day-old-is-fine copy.
func (a *Assembler) prediction(ctx context.Context, systemID string, records []datatypes.HistoricalRecord, profile *datatypes.SystemProfile, snap *datatypes.Snapshot) (*analytics.PredictionResult, *analytics.Insufficient) {
	if cached, err := a.store.CachedModel(ctx, systemID, store.ModelKindCapacity); err == nil {
		var result analytics.PredictionResult
		if err := json.Unmarshal(cached, &result); err == nil {
			return &result, nil
		}
	}
	result, insuf := analytics.PredictDegradation(records, profile, snap)
	if insuf != nil {
		return nil, insuf
	}
	if raw, err := json.Marshal(result); err == nil {
		if err := a.store.PutCachedModel(ctx, systemID, store.ModelKindCapacity, raw); err != nil {
			a.log.Warn("prediction cache write failed", "system_id", systemID, "error", err)
		}
	}
	return result, nil
}

// step runs one assembly step unless the budget has expired.
func (a *Assembler) step(b *Bundle, deadline time.Time, label string, fn func() error) {
	if time.Now().After(deadline) {
		b.Meta.Truncated = true
		a.log.Warn("assembly budget expired, step skipped", "step", label)
		return
	}
	b.Meta.Steps = append(b.Meta.Steps, a.measure(label, fn))
}

// measure times a step and converts panics into step errors.
func (a *Assembler) measure(label string, fn func() error) (report StepReport) {
	start := time.Now()
	report.Label = label
	defer func() {
		report.DurationMs = time.Since(start).Milliseconds()
		if r := recover(); r != nil {
			a.log.Error("assembly step panicked", "step", label, "panic", r)
			report.Success = false
			report.Error = fmt.Sprintf("panic: %v", r)
		}
	}()
	if err := fn(); err != nil {
		a.log.Warn("assembly step failed", "step", label, "error", err)
		report.Error = err.Error()
		return report
	}
	report.Success = true
	return report
}

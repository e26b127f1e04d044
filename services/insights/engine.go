// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package insights generates battery health and energy-sufficiency
// analysis for one telemetry snapshot, backed by historical data and an
// LLM reasoning loop.
package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/pkg/validation"
	"github.com/AleutianAI/gridsage/services/insights/contextbuild"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
	"github.com/AleutianAI/gridsage/services/insights/format"
	"github.com/AleutianAI/gridsage/services/insights/llm"
	"github.com/AleutianAI/gridsage/services/insights/prompt"
	"github.com/AleutianAI/gridsage/services/insights/runner"
	"github.com/AleutianAI/gridsage/services/insights/store"
	"github.com/AleutianAI/gridsage/services/insights/tools"
	"github.com/AleutianAI/gridsage/services/insights/weather"
)

// Request is one insight generation call.
type Request struct {
	// Snapshot is the live BMS reading to analyze. Required.
	Snapshot *datatypes.Snapshot

	// SystemID selects the historical data. Optional; without it the
	// analysis runs on the snapshot alone.
	SystemID string

	// UserPrompt overrides the default mission. Sanitized before use.
	UserPrompt string

	// Mode selects the context assembly depth. Defaults to sync.
	Mode datatypes.Mode

	// Budgets overrides the runner budgets. Nil uses the defaults.
	Budgets *runner.Config

	// Hooks observe the run. All fields optional, best-effort.
	Hooks runner.Hooks
}

// Engine wires the store, weather provider, and LLM client into the
// full generation pipeline.
//
// Thread Safety: safe for concurrent use; each call builds its own
// runner.
type Engine struct {
	store     store.Store
	weather   weather.Provider
	llm       llm.Client
	log       *logging.Logger
	metrics   *Metrics
	cfg       runner.Config
	assembler *contextbuild.Assembler
	registry  *tools.Registry
	exec      *tools.Executor
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRunnerConfig sets the default runner budgets.
func WithRunnerConfig(cfg runner.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// New builds an engine.
//
// Inputs:
//
//	st - Telemetry, profile, and model-cache backend.
//	wp - Weather provider; nil disables weather context and tools.
//	client - The LLM client to reason with.
func New(st store.Store, wp weather.Provider, client llm.Client, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		weather: wp,
		llm:     client,
		log:     logging.Default(),
		cfg:     runner.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.assembler = contextbuild.NewAssembler(st, wp, e.log)
	e.registry = tools.NewRegistry(st, wp, e.log)
	e.exec = tools.NewExecutor(e.registry.Catalog, e.log)
	return e
}

// GenerateInsights runs the full pipeline for one request.
//
// Description:
//
//	Validates the snapshot (violations are recorded, never fatal),
//	assembles the context bundle within the mode's time budget, renders
//	the initial prompt, drives the reasoning loop, and formats the
//	final answer. Deadline, unresponsive-model, and cancellation
//	failures are returned as their typed errors.
func (e *Engine) GenerateInsights(ctx context.Context, req Request) (*datatypes.Result, error) {
	start := time.Now()
	if req.Snapshot == nil {
		return nil, fmt.Errorf("snapshot is required")
	}
	if req.SystemID != "" {
		if err := validation.ValidateSystemID(req.SystemID); err != nil {
			return nil, err
		}
	}
	mode := req.Mode
	if mode == "" {
		mode = datatypes.ModeSync
	}

	flags := validation.ValidateSnapshot(readings(req.Snapshot))
	flagStrings, criticalFlags := renderFlags(flags)
	if len(criticalFlags) > 0 {
		e.log.Warn("snapshot failed physical validation",
			"system_id", req.SystemID, "critical_flags", len(criticalFlags))
	}

	bundle, err := e.assembler.Build(ctx, req.SystemID, req.Snapshot, mode)
	if err != nil {
		e.observeRun("context_error", 0, start)
		return nil, fmt.Errorf("context assembly failed: %w", err)
	}

	summary := prompt.BuildContextSummary(bundle)
	if req.Hooks.OnContextBuilt != nil {
		req.Hooks.OnContextBuilt(summary)
	}

	initialPrompt := prompt.Build(prompt.Input{
		Bundle:        bundle,
		Tools:         e.registry.Catalog.List(),
		Mode:          mode,
		UserPrompt:    req.UserPrompt,
		CriticalFlags: criticalFlags,
	})

	cfg := e.cfg
	if req.Budgets != nil {
		cfg = *req.Budgets
	}
	run := runner.New(e.llm, e.exec, cfg, req.Hooks, e.log)
	outcome, err := run.Run(ctx, initialPrompt)
	if err != nil {
		e.observeRun(errOutcome(err), 0, start)
		return nil, err
	}
	e.observeRun(runOutcome(outcome), outcome.Iterations, start)
	e.observeTools(outcome.ToolCalls)

	insights := format.Render(format.Input{
		RawText:        outcome.FinalText,
		ToolCalls:      outcome.ToolCalls,
		GenerationTime: time.Since(start),
		ContextSummary: summary,
	})

	return &datatypes.Result{
		Insights:            insights,
		ToolCalls:           outcome.ToolCalls,
		Iterations:          outcome.Iterations,
		UsedFunctionCalling: len(outcome.ToolCalls) > 0,
		Warning:             outcome.Warning,
		ValidationFlags:     flagStrings,
	}, nil
}

// readings adapts a snapshot to the validator's field set.
func readings(s *datatypes.Snapshot) validation.SnapshotReadings {
	return validation.SnapshotReadings{
		OverallVoltage:    s.OverallVoltage,
		Current:           s.Current,
		Power:             s.Power,
		SOC:               s.SOC,
		RemainingCapacity: s.RemainingCapacity,
		FullCapacity:      s.FullCapacity,
		CellVoltages:      s.CellVoltages,
		TemperatureC:      s.TemperatureC,
	}
}

// renderFlags splits validation findings into the full recorded list and
// the critical subset shown to the model.
func renderFlags(flags []validation.Flag) (all, critical []string) {
	for _, f := range flags {
		all = append(all, f.String())
		if f.Severity == validation.SeverityCritical {
			critical = append(critical, f.String())
		}
	}
	return all, critical
}

func runOutcome(out *runner.Outcome) string {
	if out.Warning != "" {
		return "fallback"
	}
	return "ok"
}

func errOutcome(err error) string {
	var deadline *runner.DeadlineError
	var unresponsive *runner.ModelUnresponsiveError
	switch {
	case errors.As(err, &deadline):
		return "deadline"
	case errors.As(err, &unresponsive):
		return "unresponsive"
	case errors.Is(err, runner.ErrCancelled):
		return "cancelled"
	default:
		return "error"
	}
}

func (e *Engine) observeRun(outcome string, iterations int, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.Runs.WithLabelValues(outcome).Inc()
	e.metrics.Duration.Observe(time.Since(start).Seconds())
	if iterations > 0 {
		e.metrics.Iterations.Observe(float64(iterations))
	}
}

func (e *Engine) observeTools(calls []datatypes.ToolInvocation) {
	if e.metrics == nil {
		return
	}
	for _, tc := range calls {
		e.metrics.ToolLatency.WithLabelValues(tc.Name).Observe(float64(tc.DurationMs) / 1000)
	}
}

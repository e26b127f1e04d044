// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights/store"
	"github.com/AleutianAI/gridsage/services/insights/weather"
)

// Registry bundles the standard catalog with its collaborators.
type Registry struct {
	Catalog  *Catalog
	Executor *Executor

	store   store.Store
	weather weather.Provider
	log     *logging.Logger
}

// NewRegistry builds the standard tool set over a store and a weather
// provider.
//
// Inputs:
//
//	st - Persistence. Required.
//	wp - Weather provider. May be nil; weather tools then report their
//	unavailability as tool errors rather than being absent, so the
//	model gets a useful message instead of "unknown tool".
//	log - Defaults to the process logger.
func NewRegistry(st store.Store, wp weather.Provider, log *logging.Logger) *Registry {
	if log == nil {
		log = logging.Default()
	}
	r := &Registry{
		Catalog: NewCatalog(),
		store:   st,
		weather: wp,
		log:     log,
	}

	r.Catalog.Register(r.requestBMSData())
	r.Catalog.Register(r.getSystemAnalytics())
	r.Catalog.Register(r.getWeatherData())
	r.Catalog.Register(r.getSolarEstimate())
	r.Catalog.Register(r.predictBatteryTrends())
	r.Catalog.Register(r.analyzeUsagePatterns())
	r.Catalog.Register(r.calculateEnergyBudget())

	// Legacy name kept for older prompts; rewritten on dispatch.
	r.Catalog.Register(&Tool{
		Name:        "getSystemHistory",
		Description: "Deprecated. Use request_bms_data.",
		ReplacedBy:  "request_bms_data",
	})

	r.Executor = NewExecutor(r.Catalog, log)
	return r
}

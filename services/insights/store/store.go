// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides persistence for the insights engine.
//
// Telemetry history lives in InfluxDB; system profiles and cached
// degradation models live in BadgerDB. The tiering follows the usual
// split: time-series queries go to the remote store, low-latency
// key-value lookups stay embedded.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// ErrNotFound marks a missing profile or cache entry. Callers that can
// proceed without the record should errors.Is against this.
var ErrNotFound = errors.New("not found")

// Model cache kinds. The capacity kind holds the degradation forecast;
// lifetime is reserved for the service-life rollup.
const (
	ModelKindCapacity = "capacity"
	ModelKindLifetime = "lifetime"
)

// StoreError wraps a storage failure with the operation and system it
// belongs to.
type StoreError struct {
	Op       string
	SystemID string
	Err      error
}

func (e *StoreError) Error() string {
	if e.SystemID != "" {
		return fmt.Sprintf("store: %s (system %s): %v", e.Op, e.SystemID, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// opErr builds a StoreError.
func opErr(op, systemID string, err error) error {
	return &StoreError{Op: op, SystemID: systemID, Err: err}
}

// TelemetryReader reads historical BMS records.
type TelemetryReader interface {
	// Records returns the window of records for a system, ascending by
	// timestamp. The window is measured back from now.
	Records(ctx context.Context, systemID string, window time.Duration) ([]datatypes.HistoricalRecord, error)

	// RecentSnapshots returns the latest n snapshots, newest first.
	RecentSnapshots(ctx context.Context, systemID string, n int) ([]datatypes.Snapshot, error)

	// RecordsRange returns the records with timestamps in [from, to),
	// ascending by timestamp.
	RecordsRange(ctx context.Context, systemID string, from, to time.Time) ([]datatypes.HistoricalRecord, error)
}

// ProfileStore reads and writes system profiles.
type ProfileStore interface {
	// System returns the profile for a system ID, or ErrNotFound.
	System(ctx context.Context, systemID string) (*datatypes.SystemProfile, error)

	// PutSystem upserts a profile.
	PutSystem(ctx context.Context, profile *datatypes.SystemProfile) error
}

// ModelCache caches serialized analysis artifacts (degradation
// forecasts) so expensive fits are not recomputed on every request.
// Payloads are opaque bytes; the caller owns the encoding.
type ModelCache interface {
	// CachedModel returns the cached payload for a system and model
	// kind, or ErrNotFound when absent or expired.
	CachedModel(ctx context.Context, systemID, kind string) ([]byte, error)

	// PutCachedModel stores a payload with the cache's TTL.
	PutCachedModel(ctx context.Context, systemID, kind string, payload []byte) error
}

// Store is the full persistence surface the engine needs.
type Store interface {
	TelemetryReader
	ProfileStore
	ModelCache
}

// Composite assembles a Store from independent backends.
type Composite struct {
	Telemetry TelemetryReader
	Profiles  ProfileStore
	Models    ModelCache
}

var _ Store = (*Composite)(nil)

func (c *Composite) Records(ctx context.Context, systemID string, window time.Duration) ([]datatypes.HistoricalRecord, error) {
	return c.Telemetry.Records(ctx, systemID, window)
}

func (c *Composite) RecentSnapshots(ctx context.Context, systemID string, n int) ([]datatypes.Snapshot, error) {
	return c.Telemetry.RecentSnapshots(ctx, systemID, n)
}

func (c *Composite) RecordsRange(ctx context.Context, systemID string, from, to time.Time) ([]datatypes.HistoricalRecord, error) {
	return c.Telemetry.RecordsRange(ctx, systemID, from, to)
}

func (c *Composite) System(ctx context.Context, systemID string) (*datatypes.SystemProfile, error) {
	return c.Profiles.System(ctx, systemID)
}

func (c *Composite) PutSystem(ctx context.Context, profile *datatypes.SystemProfile) error {
	return c.Profiles.PutSystem(ctx, profile)
}

func (c *Composite) CachedModel(ctx context.Context, systemID, kind string) ([]byte, error) {
	return c.Models.CachedModel(ctx, systemID, kind)
}

func (c *Composite) PutCachedModel(ctx context.Context, systemID, kind string, payload []byte) error {
	return c.Models.PutCachedModel(ctx, systemID, kind, payload)
}

// withRetry runs fn up to attempts times with exponential backoff,
// respecting context cancellation between attempts. Used around the
// remote telemetry store; embedded stores do not retry.
func withRetry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

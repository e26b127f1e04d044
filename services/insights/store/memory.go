// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// MemoryStore is an in-process Store for tests and local development.
// Seed it with SeedRecords and SeedProfile.
//
// Thread Safety: safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string][]datatypes.HistoricalRecord
	profiles map[string]*datatypes.SystemProfile
	models   map[string][]byte

	// Err, when set, is returned by every operation. For failure-path
	// tests.
	Err error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  map[string][]datatypes.HistoricalRecord{},
		profiles: map[string]*datatypes.SystemProfile{},
		models:   map[string][]byte{},
	}
}

// SeedRecords replaces the record window for a system.
func (m *MemoryStore) SeedRecords(systemID string, records []datatypes.HistoricalRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[systemID] = records
}

// SeedProfile stores a profile.
func (m *MemoryStore) SeedProfile(profile *datatypes.SystemProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.ID] = profile
}

func (m *MemoryStore) Records(ctx context.Context, systemID string, window time.Duration) ([]datatypes.HistoricalRecord, error) {
	if err := m.failure(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.records[systemID]
	if window <= 0 || len(all) == 0 {
		return append([]datatypes.HistoricalRecord(nil), all...), nil
	}
	cutoff := all[len(all)-1].Timestamp.Add(-window)
	var out []datatypes.HistoricalRecord
	for _, r := range all {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) RecentSnapshots(ctx context.Context, systemID string, n int) ([]datatypes.Snapshot, error) {
	if err := m.failure(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.records[systemID]
	if n > len(all) {
		n = len(all)
	}
	// Newest first.
	out := make([]datatypes.Snapshot, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		out = append(out, all[i].Analysis)
	}
	return out, nil
}

func (m *MemoryStore) RecordsRange(ctx context.Context, systemID string, from, to time.Time) ([]datatypes.HistoricalRecord, error) {
	if err := m.failure(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []datatypes.HistoricalRecord
	for _, r := range m.records[systemID] {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) System(ctx context.Context, systemID string) (*datatypes.SystemProfile, error) {
	if err := m.failure(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[systemID]
	if !ok {
		return nil, opErr("system", systemID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) PutSystem(ctx context.Context, profile *datatypes.SystemProfile) error {
	if err := m.failure(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *profile
	m.profiles[profile.ID] = &cp
	return nil
}

func (m *MemoryStore) CachedModel(ctx context.Context, systemID, kind string) ([]byte, error) {
	if err := m.failure(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	payload, ok := m.models[systemID+"/"+kind]
	if !ok {
		return nil, opErr("cached_model", systemID, ErrNotFound)
	}
	return append([]byte(nil), payload...), nil
}

func (m *MemoryStore) PutCachedModel(ctx context.Context, systemID, kind string, payload []byte) error {
	if err := m.failure(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[systemID+"/"+kind] = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryStore) failure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Err
}

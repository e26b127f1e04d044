// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

func TestBadgerStore_Profiles(t *testing.T) {
	s, err := NewBadgerStore(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.System(ctx, "cabin-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	maxSolar := 30.0
	profile := &datatypes.SystemProfile{
		ID:                    "cabin-1",
		Name:                  "North Cabin",
		Chemistry:             "LiFePO4",
		NominalVoltage:        51.2,
		RatedCapacityAh:       200,
		MaxSolarChargeCurrent: &maxSolar,
	}
	if err := s.PutSystem(ctx, profile); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.System(ctx, "cabin-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "North Cabin" || got.RatedCapacityAh != 200 {
		t.Errorf("profile = %+v", got)
	}
	if got.MaxSolarChargeCurrent == nil || *got.MaxSolarChargeCurrent != 30 {
		t.Errorf("max solar = %v, want 30", got.MaxSolarChargeCurrent)
	}
}

func TestBadgerStore_PutSystemValidation(t *testing.T) {
	s, err := NewBadgerStore(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.PutSystem(context.Background(), &datatypes.SystemProfile{}); err == nil {
		t.Fatal("expected error for empty profile ID")
	}
	if err := s.PutSystem(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil profile")
	}
}

func TestBadgerStore_ModelCache(t *testing.T) {
	s, err := NewBadgerStore(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.CachedModel(ctx, "cabin-1", "degradation"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	payload := []byte(`{"ensemble_days_to_threshold":740}`)
	if err := s.PutCachedModel(ctx, "cabin-1", "degradation", payload); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.CachedModel(ctx, "cabin-1", "degradation")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %s", got)
	}

	// Kinds are namespaced per system.
	if _, err := s.CachedModel(ctx, "cabin-2", "degradation"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for other system", err)
	}
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	if _, err := NewBadgerStore(BadgerConfig{}); err == nil {
		t.Fatal("expected error without a path")
	}
}

func TestMemoryStore_RecordsWindow(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var records []datatypes.HistoricalRecord
	for i := 0; i < 48; i++ {
		records = append(records, datatypes.HistoricalRecord{
			SystemID:  "cabin-1",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}
	m.SeedRecords("cabin-1", records)

	got, err := m.Records(context.Background(), "cabin-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	// Window measured back from the latest record: 24h covers 25 hourly
	// samples inclusive.
	if len(got) != 25 {
		t.Errorf("len = %d, want 25", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(23 * time.Hour)) {
		t.Errorf("first = %v", got[0].Timestamp)
	}
}

func TestMemoryStore_RecentSnapshots(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var records []datatypes.HistoricalRecord
	for i := 0; i < 10; i++ {
		soc := float64(50 + i)
		rec := datatypes.HistoricalRecord{Timestamp: base.Add(time.Duration(i) * time.Hour)}
		rec.Analysis.SOC = &soc
		rec.Analysis.Timestamp = rec.Timestamp
		records = append(records, rec)
	}
	m.SeedRecords("cabin-1", records)

	snaps, err := m.RecentSnapshots(context.Background(), "cabin-1", 3)
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("len = %d, want 3", len(snaps))
	}
	// Newest first: the latest snapshot leads.
	if *snaps[0].SOC != 59 || *snaps[1].SOC != 58 || *snaps[2].SOC != 57 {
		t.Errorf("SOC order = %v, %v, %v, want 59, 58, 57",
			*snaps[0].SOC, *snaps[1].SOC, *snaps[2].SOC)
	}
	for i := 1; i < len(snaps); i++ {
		if !snaps[i].Timestamp.Before(snaps[i-1].Timestamp) {
			t.Errorf("snapshot %d is not older than %d", i, i-1)
		}
	}
}

func TestMemoryStore_RecordsRange(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var records []datatypes.HistoricalRecord
	for i := 0; i < 10; i++ {
		records = append(records, datatypes.HistoricalRecord{
			SystemID:  "cabin-1",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}
	m.SeedRecords("cabin-1", records)

	got, err := m.RecordsRange(context.Background(), "cabin-1", base.Add(2*time.Hour), base.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	// Half-open: hours 2, 3, 4; the 5 o'clock record is excluded.
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("first = %v", got[0].Timestamp)
	}
	if !got[2].Timestamp.Equal(base.Add(4 * time.Hour)) {
		t.Errorf("last = %v", got[2].Timestamp)
	}
}

func TestMemoryStore_InjectedError(t *testing.T) {
	m := NewMemoryStore()
	m.Err = errors.New("backend down")
	if _, err := m.Records(context.Background(), "cabin-1", time.Hour); err == nil {
		t.Fatal("expected injected error")
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return errors.New("persistent")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := withRetry(ctx, 5, time.Minute, func() error {
			return errors.New("transient")
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	})
}

func TestStoreError(t *testing.T) {
	inner := errors.New("boom")
	err := opErr("records", "cabin-1", inner)
	if !errors.Is(err, inner) {
		t.Error("wrapped error must unwrap")
	}
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "records" || se.SystemID != "cabin-1" {
		t.Errorf("error = %+v", se)
	}
}

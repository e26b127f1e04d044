// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/gridsage/pkg/logging"
	"github.com/AleutianAI/gridsage/services/insights/datatypes"
)

// Key prefixes inside the embedded database.
const (
	profileKeyPrefix = "profile/"
	modelKeyPrefix   = "model/"
)

// DefaultModelTTL is how long a cached degradation model stays valid.
// Daily recomputation tracks capacity fade closely enough.
const DefaultModelTTL = 24 * time.Hour

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory.
	Path string

	// InMemory skips disk persistence. For tests.
	InMemory bool

	// ModelTTL overrides DefaultModelTTL when positive.
	ModelTTL time.Duration

	// Logger defaults to the process logger when nil.
	Logger *logging.Logger
}

// BadgerStore holds system profiles and cached model payloads in an
// embedded BadgerDB.
//
// Thread Safety: safe for concurrent use.
type BadgerStore struct {
	db       *badger.DB
	modelTTL time.Duration
	log      *logging.Logger
}

var (
	_ ProfileStore = (*BadgerStore)(nil)
	_ ModelCache   = (*BadgerStore)(nil)
)

// badgerSlog adapts our logger to BadgerDB's Logger interface.
type badgerSlog struct {
	log *logging.Logger
}

func (l *badgerSlog) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...))
}
func (l *badgerSlog) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...))
}
func (l *badgerSlog) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}
func (l *badgerSlog) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerStore opens the embedded database.
//
// Outputs:
//
//	*BadgerStore - The store. Caller must Close() when done.
//	error - Non-nil when the path is invalid or the database cannot
//	open.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, opErr("open", "", errors.New("path is required for a persistent store"))
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, opErr("open", "", fmt.Errorf("create database directory %s: %w", cfg.Path, err))
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(&badgerSlog{log: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, opErr("open", "", err)
	}

	ttl := cfg.ModelTTL
	if ttl <= 0 {
		ttl = DefaultModelTTL
	}

	return &BadgerStore{db: db, modelTTL: ttl, log: log}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error { return s.db.Close() }

// System returns the stored profile, or ErrNotFound.
func (s *BadgerStore) System(ctx context.Context, systemID string) (*datatypes.SystemProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var profile datatypes.SystemProfile
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(profileKeyPrefix + systemID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, opErr("system", systemID, ErrNotFound)
	}
	if err != nil {
		return nil, opErr("system", systemID, err)
	}
	return &profile, nil
}

// PutSystem upserts a profile.
func (s *BadgerStore) PutSystem(ctx context.Context, profile *datatypes.SystemProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if profile == nil || profile.ID == "" {
		return opErr("put_system", "", errors.New("profile with a non-empty ID is required"))
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return opErr("put_system", profile.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(profileKeyPrefix+profile.ID), raw)
	})
	if err != nil {
		return opErr("put_system", profile.ID, err)
	}
	return nil
}

// CachedModel returns a cached payload, or ErrNotFound when absent or
// expired. Expiry is handled by BadgerDB's entry TTL.
func (s *BadgerStore) CachedModel(ctx context.Context, systemID, kind string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(modelKey(systemID, kind))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, opErr("cached_model", systemID, ErrNotFound)
	}
	if err != nil {
		return nil, opErr("cached_model", systemID, err)
	}
	return payload, nil
}

// PutCachedModel stores a payload with the configured TTL.
func (s *BadgerStore) PutCachedModel(ctx context.Context, systemID, kind string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(modelKey(systemID, kind), payload).WithTTL(s.modelTTL)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return opErr("put_cached_model", systemID, err)
	}
	s.log.Debug("model cached", "system_id", systemID, "kind", kind, "bytes", len(payload), "ttl", s.modelTTL)
	return nil
}

func modelKey(systemID, kind string) []byte {
	return []byte(modelKeyPrefix + systemID + "/" + kind)
}

// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"gopkg.in/yaml.v3"
)

// envelopeKey is the single key the planner uses in BadgerDB.
var envelopeKey = []byte("planner/envelope")

// BadgerConfig holds configuration for a Badger-backed envelope store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful
	// for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. If nil, that
	// logging is disabled.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns durable defaults for a persistent store.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryBadgerConfig returns configuration optimized for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{
		InMemory:   true,
		SyncWrites: false,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore persists the envelope in an embedded BadgerDB.
//
// An alternative to FileStore for hosts that already run a planner
// daemon with a data directory: updates are transactional, so the
// atomic-swap requirement holds without temp-file plumbing.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions
// serialize the single envelope key.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a BadgerDB-backed envelope store.
//
// Callers must Close the store when done.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent badger store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context) (*Envelope, error) {
	var env Envelope
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(envelopeKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return yaml.Unmarshal(val, &env)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNoEnvelope
		}
		if s.db.IsClosed() {
			return nil, ErrStoreClosed
		}
		// Undecodable value is a miss, same as a corrupt file.
		return nil, ErrCorruptEnvelope
	}
	return &env, nil
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, env *Envelope) error {
	data, err := yaml.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(envelopeKey, data)
	})
	if err != nil {
		return fmt.Errorf("store envelope: %w", err)
	}
	return nil
}

// Delete implements Store; deleting an absent key is a no-op in badger.
func (s *BadgerStore) Delete(ctx context.Context) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(envelopeKey)
	})
	if err != nil {
		return fmt.Errorf("delete envelope: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"sync"
)

// Store persists graph envelopes.
//
// The cache owns the stored format and is the only writer. Load must
// report a corrupt or unreadable envelope as ErrNoEnvelope so callers
// treat it as a plain miss; Delete must be idempotent.
type Store interface {
	// Load returns the stored envelope, or ErrNoEnvelope.
	Load(ctx context.Context) (*Envelope, error)

	// Save replaces the stored envelope. Implementations must swap
	// durably enough that a concurrent Load never observes a
	// half-written envelope.
	Save(ctx context.Context, env *Envelope) error

	// Delete removes the stored envelope. Deleting an absent envelope
	// is not an error.
	Delete(ctx context.Context) error
}

// MemoryStore is an in-memory Store for tests and ephemeral planners.
//
// Thread Safety: safe for concurrent use.
type MemoryStore struct {
	mu  sync.RWMutex
	env *Envelope
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context) (*Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.env == nil {
		return nil, ErrNoEnvelope
	}
	return s.env, nil
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = env
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env = nil
	return nil
}

// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"time"

	"github.com/nhi-ops/nhi-core/services/planner/registry"
)

// Envelope wraps a graph snapshot with its generation metadata.
//
// Envelopes are immutable once written: a refresh always produces a
// brand-new envelope, never an in-place mutation. ServiceCount is
// denormalized so operators can read it off the cache file without
// loading the graph.
type Envelope struct {
	Generated    time.Time      `yaml:"generated"`
	TTLSeconds   int            `yaml:"ttl_seconds"`
	ServiceCount int            `yaml:"service_count"`
	Graph        registry.Graph `yaml:"graph"`
}

// NewEnvelope wraps a graph in a fresh envelope.
func NewEnvelope(g registry.Graph, ttl time.Duration, now time.Time) *Envelope {
	return &Envelope{
		Generated:    now,
		TTLSeconds:   int(ttl / time.Second),
		ServiceCount: g.Len(),
		Graph:        g,
	}
}

// TTL returns the envelope's time-to-live as a duration.
func (e *Envelope) TTL() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}

// Fresh reports whether the envelope is still within its TTL at now.
//
// An envelope with a non-positive TTL is never fresh; that keeps a
// zero-valued or hand-damaged envelope from pinning a stale graph
// forever.
func (e *Envelope) Fresh(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return now.Sub(e.Generated) < e.TTL()
}

// Age returns how old the envelope is at now.
func (e *Envelope) Age(now time.Time) time.Duration {
	return now.Sub(e.Generated)
}

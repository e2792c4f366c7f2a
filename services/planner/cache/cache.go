// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache keeps a time-bounded snapshot of the dependency graph.
//
// The cache sits between the registry builder and everything that reads
// the graph (resolver, policy engine, cross-checker). A fresh envelope
// is served without touching the descriptor store; a stale, missing, or
// corrupt envelope triggers a rebuild. Rebuilds are deduplicated with
// singleflight, but redundant rebuilds racing from separate processes
// are harmless because the builder is a pure function of store contents
// and every Store swaps envelopes atomically.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/nhi-ops/nhi-core/services/planner/registry"
)

var cacheTracer = otel.Tracer("nhi.planner.cache")

// DefaultTTL is the envelope time-to-live when none is configured.
const DefaultTTL = time.Hour

// BuildFunc produces a fresh graph from the descriptor store.
type BuildFunc func(ctx context.Context) (registry.Graph, error)

// GraphCache serves the dependency graph, rebuilding when the cached
// envelope is stale or explicitly invalidated.
//
// Thread Safety: safe for concurrent use. Reads of a fresh envelope are
// lock-free; concurrent rebuilds collapse into one build per process
// via singleflight.
type GraphCache struct {
	store      Store
	build      BuildFunc
	ttl        time.Duration
	classifier registry.InfraClassifier
	logger     *slog.Logger
	now        func() time.Time
	flight     singleflight.Group

	hits        int64
	misses      int64
	rebuilds    int64
	saveErrors  int64
	invalidated int64
}

// Option is a functional option for configuring GraphCache.
type Option func(*GraphCache)

// WithTTL sets the envelope time-to-live.
func WithTTL(ttl time.Duration) Option {
	return func(c *GraphCache) {
		c.ttl = ttl
	}
}

// WithLogger sets the logger for cache diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *GraphCache) {
		c.logger = l
	}
}

// WithClassifier sets the infrastructure classifier applied to every
// graph the cache hands out. Loaded envelopes carry no classification,
// so the flag is always recomputed here.
func WithClassifier(cl registry.InfraClassifier) Option {
	return func(c *GraphCache) {
		c.classifier = cl
	}
}

// WithClock overrides the cache's clock. For tests.
func WithClock(now func() time.Time) Option {
	return func(c *GraphCache) {
		c.now = now
	}
}

// New creates a GraphCache over the given store and build function.
func New(store Store, build BuildFunc, opts ...Option) *GraphCache {
	c := &GraphCache{
		store: store,
		build: build,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.classifier == nil {
		c.classifier = registry.DefaultClassifier()
	}
	return c
}

// GetGraph returns the current dependency graph.
//
// With forceRebuild false, a fresh cached envelope is returned without
// touching the descriptor store. Otherwise the graph is rebuilt, wrapped
// in a new envelope, and persisted. A persist failure is logged and
// counted but never fails the call: the freshly built graph is still
// returned.
func (c *GraphCache) GetGraph(ctx context.Context, forceRebuild bool) (registry.Graph, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetGraph",
		trace.WithAttributes(attribute.Bool("force_rebuild", forceRebuild)),
	)
	defer span.End()

	if !forceRebuild {
		env, err := c.store.Load(ctx)
		if err == nil && env.Fresh(c.now()) {
			atomic.AddInt64(&c.hits, 1)
			cacheHitsTotal.Inc()
			span.SetAttributes(
				attribute.Bool("cache_hit", true),
				attribute.Int("services", env.Graph.Len()),
			)
			// Classify a clone: the stored snapshot is shared with every
			// earlier caller and must never change under them.
			g := env.Graph.Clone()
			g.Classify(c.classifier)
			return g, nil
		}
		switch {
		case err == nil:
			cacheMissesTotal.WithLabelValues(missReasonExpired).Inc()
		case errors.Is(err, ErrCorruptEnvelope):
			cacheMissesTotal.WithLabelValues(missReasonCorrupt).Inc()
		default:
			cacheMissesTotal.WithLabelValues(missReasonAbsent).Inc()
		}
	} else {
		cacheMissesTotal.WithLabelValues(missReasonForced).Inc()
	}
	atomic.AddInt64(&c.misses, 1)
	span.SetAttributes(attribute.Bool("cache_hit", false))

	g, err := c.rebuild(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("services", g.Len()))
	return g, nil
}

// rebuild builds a new graph, persists its envelope, and returns it.
// Concurrent callers in this process share one build.
func (c *GraphCache) rebuild(ctx context.Context) (registry.Graph, error) {
	v, err, _ := c.flight.Do("graph", func() (interface{}, error) {
		start := c.now()
		g, err := c.build(ctx)
		if err != nil {
			return nil, err
		}
		if g == nil {
			g = registry.Graph{}
		}
		g.Classify(c.classifier)

		atomic.AddInt64(&c.rebuilds, 1)
		cacheRebuildsTotal.Inc()
		rebuildDuration.Observe(c.now().Sub(start).Seconds())
		graphServices.Set(float64(g.Len()))

		// The envelope gets its own copy so the stored snapshot stays
		// immutable whatever callers do with the returned graph.
		env := NewEnvelope(g.Clone(), c.ttl, c.now())
		if err := c.store.Save(ctx, env); err != nil {
			// The graph is good even when the envelope is not; serve it
			// and let the next call rebuild again.
			atomic.AddInt64(&c.saveErrors, 1)
			cacheSaveFailuresTotal.Inc()
			c.logger.Warn("failed to persist graph envelope",
				"services", g.Len(),
				"error", err.Error(),
			)
		}
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(registry.Graph), nil
}

// Invalidate deletes the persisted envelope so the next GetGraph
// rebuilds unconditionally. Idempotent.
func (c *GraphCache) Invalidate(ctx context.Context) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Invalidate")
	defer span.End()

	if err := c.store.Delete(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	atomic.AddInt64(&c.invalidated, 1)
	cacheInvalidationsTotal.Inc()
	c.logger.Info("dependency graph cache invalidated")
	return nil
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits          int64
	Misses        int64
	Rebuilds      int64
	SaveErrors    int64
	Invalidations int64
}

// Stats returns current cache statistics.
func (c *GraphCache) Stats() Stats {
	return Stats{
		Hits:          atomic.LoadInt64(&c.hits),
		Misses:        atomic.LoadInt64(&c.misses),
		Rebuilds:      atomic.LoadInt64(&c.rebuilds),
		SaveErrors:    atomic.LoadInt64(&c.saveErrors),
		Invalidations: atomic.LoadInt64(&c.invalidated),
	}
}

// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package planner assembles the backup planning core.
//
// The planner reads service descriptor documents from a registry
// directory, keeps a time-bounded cache of the resulting dependency
// graph, and computes backup target sets under the configured policies.
// HTTP and CLI surfaces live with the callers; this package is the
// whole of the core they consume.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhi-ops/nhi-core/pkg/logging"
	"github.com/nhi-ops/nhi-core/services/planner/cache"
	"github.com/nhi-ops/nhi-core/services/planner/config"
	"github.com/nhi-ops/nhi-core/services/planner/crosscheck"
	"github.com/nhi-ops/nhi-core/services/planner/policy"
	"github.com/nhi-ops/nhi-core/services/planner/registry"
	"github.com/nhi-ops/nhi-core/services/planner/watch"
)

// Planner is the assembled planning core.
//
// Thread Safety: safe for concurrent use; all shared state lives in
// the graph cache, which is concurrency-safe by construction.
type Planner struct {
	cfg     config.Config
	logger  *slog.Logger
	builder *registry.Builder
	cache   *cache.GraphCache
	engine  *policy.Engine
	checker *crosscheck.Checker
	watcher *watch.Watcher
	closers []func() error
}

// Option is a functional option for configuring Planner.
type Option func(*options)

type options struct {
	logger *slog.Logger
	store  cache.Store
	clock  func() time.Time
}

// WithLogger sets the logger shared by all planner components.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithStore overrides the envelope store, bypassing the configured
// backend. Useful for tests.
func WithStore(s cache.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithClock overrides the cache clock. For tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// New assembles a Planner from configuration.
//
// Callers must Close the planner to release the envelope store and any
// running watcher.
func New(cfg config.Config, opts ...Option) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Planner{cfg: cfg}
	logger := o.logger
	if logger == nil {
		lg := logging.New(logging.Config{
			Level:   logging.ParseLevel(cfg.Logging.Level),
			LogDir:  cfg.Logging.Dir,
			Service: "planner",
		})
		p.closers = append(p.closers, lg.Close)
		logger = lg.Slog()
	}
	p.logger = logger

	classifier := cfg.Classifier()
	p.builder = registry.NewBuilder(cfg.Registry.Path,
		registry.WithClassifier(classifier),
		registry.WithLogger(logger),
	)

	store := o.store
	if store == nil {
		var err error
		store, err = p.openStore(cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	cacheOpts := []cache.Option{
		cache.WithTTL(time.Duration(cfg.Cache.TTLSeconds) * time.Second),
		cache.WithClassifier(classifier),
		cache.WithLogger(logger),
	}
	if o.clock != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(o.clock))
	}
	p.cache = cache.New(store, p.builder.BuildGraph, cacheOpts...)

	p.engine = policy.NewEngine(p.cache,
		policy.WithCoreService(cfg.Planner.CoreService),
		policy.WithLogger(logger),
	)
	p.checker = crosscheck.NewChecker(crosscheck.WithLogger(logger))
	return p, nil
}

// openStore builds the envelope store the config asks for.
func (p *Planner) openStore(cfg config.Config, logger *slog.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case config.BackendBadger:
		bs, err := cache.NewBadgerStore(cache.DefaultBadgerConfig(cfg.Cache.Dir))
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, bs.Close)
		return bs, nil
	case config.BackendFile:
		return cache.NewFileStore(cfg.Cache.Dir, cache.WithFileStoreLogger(logger))
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Graph returns the dependency graph, rebuilding when forced or stale.
func (p *Planner) Graph(ctx context.Context, forceRebuild bool) (registry.Graph, error) {
	return p.cache.GetGraph(ctx, forceRebuild)
}

// Resolve returns the transitive dependency closure of a service.
func (p *Planner) Resolve(ctx context.Context, name string, includeOptional bool) ([]string, error) {
	return p.engine.Resolve(ctx, name, includeOptional)
}

// BackupTargets computes the target set for a policy request. When the
// request does not name a status filter, the configured one applies.
func (p *Planner) BackupTargets(ctx context.Context, req policy.TargetRequest) ([]policy.BackupTarget, error) {
	if req.IncludeStatuses == nil {
		req.IncludeStatuses = p.cfg.Statuses()
	}
	return p.engine.Targets(ctx, req)
}

// InvalidateCache drops the persisted envelope. Idempotent.
func (p *Planner) InvalidateCache(ctx context.Context) error {
	return p.cache.Invalidate(ctx)
}

// InfrastructureServices lists registered infrastructure services.
func (p *Planner) InfrastructureServices(ctx context.Context) ([]string, error) {
	return p.engine.InfrastructureServices(ctx)
}

// CrossCheck matches the graph against a live resource snapshot.
func (p *Planner) CrossCheck(ctx context.Context, live []crosscheck.LiveResource) (crosscheck.Report, error) {
	g, err := p.cache.GetGraph(ctx, false)
	if err != nil {
		return crosscheck.Report{}, err
	}
	return p.checker.CrossCheck(ctx, g, live), nil
}

// CrossCheckFeed is CrossCheck against a live feed file.
func (p *Planner) CrossCheckFeed(ctx context.Context, feedPath string) (crosscheck.Report, error) {
	live, err := crosscheck.LoadLiveFeed(feedPath)
	if err != nil {
		return crosscheck.Report{}, err
	}
	return p.CrossCheck(ctx, live)
}

// Watch starts invalidating the cache whenever descriptors change.
// Safe to call once; the watcher stops on Close or ctx cancellation.
func (p *Planner) Watch(ctx context.Context) error {
	if p.watcher != nil {
		return nil
	}
	w, err := watch.New(p.cfg.Registry.Path, func(paths []string) {
		if err := p.cache.Invalidate(context.Background()); err != nil {
			p.logger.Warn("cache invalidation after descriptor change failed",
				"error", err.Error(),
			)
		}
	}, watch.WithLogger(p.logger))
	if err != nil {
		return err
	}
	p.watcher = w
	w.Start(ctx)
	return nil
}

// Stats returns graph cache statistics.
func (p *Planner) Stats() cache.Stats {
	return p.cache.Stats()
}

// Close releases the watcher and any store resources.
func (p *Planner) Close() error {
	if p.watcher != nil {
		p.watcher.Stop()
	}
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

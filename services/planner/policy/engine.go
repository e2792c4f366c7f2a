// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package policy computes backup target sets over the cached
// dependency graph.
//
// Target selection is driven by a Mode plus include/exclude lists and a
// status filter. Every selected target carries exactly one audit reason;
// when selection rules overlap, the first reason assigned wins, which
// yields the precedence explicit/core > infrastructure > dependency-of
// > all.
package policy

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nhi-ops/nhi-core/services/planner/cache"
	"github.com/nhi-ops/nhi-core/services/planner/registry"
)

var policyTracer = otel.Tracer("nhi.planner.policy")

// DefaultCoreService is the designated core system service when none
// is configured.
const DefaultCoreService = "nhi-core"

// Engine computes backup target sets from the cached graph.
//
// Thread Safety: safe for concurrent use; the engine holds no state of
// its own beyond configuration and reads immutable graph snapshots.
type Engine struct {
	cache       *cache.GraphCache
	coreService string
	logger      *slog.Logger
}

// EngineOption is a functional option for configuring Engine.
type EngineOption func(*Engine)

// WithCoreService overrides the designated core system service name.
func WithCoreService(name string) EngineOption {
	return func(e *Engine) {
		e.coreService = name
	}
}

// WithLogger sets the logger for selection diagnostics.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an Engine over the given graph cache.
func NewEngine(c *cache.GraphCache, opts ...EngineOption) *Engine {
	e := &Engine{
		cache:       c,
		coreService: DefaultCoreService,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Resolve returns the transitive dependency closure of name against
// the current cached graph.
func (e *Engine) Resolve(ctx context.Context, name string, includeOptional bool) ([]string, error) {
	ctx, span := policyTracer.Start(ctx, "policy.Resolve",
		trace.WithAttributes(
			attribute.String("service", name),
			attribute.Bool("include_optional", includeOptional),
		),
	)
	defer span.End()

	g, err := e.cache.GetGraph(ctx, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resolved := Resolve(g, name, includeOptional)
	span.SetAttributes(attribute.Int("resolved", len(resolved)))
	return resolved, nil
}

// targetSet accumulates targets with first-assigned-wins dedup while
// preserving insertion order, so identical requests against an
// unchanged graph produce identical ordered results.
type targetSet struct {
	byName map[string]BackupTarget
	order  []string
}

func newTargetSet() *targetSet {
	return &targetSet{byName: make(map[string]BackupTarget)}
}

// add records a target unless the name is already present. An earlier
// reason is never overwritten by a later-computed candidate.
func (s *targetSet) add(t BackupTarget) {
	if _, ok := s.byName[t.Name]; ok {
		return
	}
	s.byName[t.Name] = t
	s.order = append(s.order, t.Name)
}

func (s *targetSet) list() []BackupTarget {
	out := make([]BackupTarget, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Targets computes the backup target set for a request.
//
// Names in Include that have no graph node yield nothing beyond the
// bare self-reference from Resolve, which is then dropped by the
// present-in-graph check; that is not an error. An unknown Mode is.
func (e *Engine) Targets(ctx context.Context, req TargetRequest) ([]BackupTarget, error) {
	ctx, span := policyTracer.Start(ctx, "policy.Targets",
		trace.WithAttributes(attribute.String("mode", string(req.Mode))),
	)
	defer span.End()

	if !req.Mode.Valid() {
		err := fmt.Errorf("unknown backup policy %q", req.Mode)
		span.RecordError(err)
		return nil, err
	}

	g, err := e.cache.GetGraph(ctx, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	exclude := make(map[string]bool, len(req.Exclude))
	for _, name := range req.Exclude {
		exclude[name] = true
	}
	statuses := req.IncludeStatuses
	if statuses == nil {
		statuses = DefaultIncludeStatuses()
	}
	statusOK := make(map[registry.Status]bool, len(statuses))
	for _, s := range statuses {
		statusOK[s] = true
	}

	targets := newTargetSet()

	// The core system service is always seeded when registered,
	// whatever the mode. It outranks every other selection reason.
	if node, ok := g.Node(e.coreService); ok {
		targets.add(BackupTarget{
			Name:   node.Name,
			VMID:   node.VMID,
			IP:     node.IP,
			Reason: ReasonCore,
		})
	}

	switch req.Mode {
	case ModeCore:
		// Core only; nothing else is selected automatically.

	case ModeCoreInfra:
		for _, name := range g.Names() {
			node := g[name]
			if !node.Infrastructure || exclude[name] || !statusOK[node.Status] {
				continue
			}
			targets.add(BackupTarget{
				Name:   name,
				VMID:   node.VMID,
				IP:     node.IP,
				Reason: ReasonInfrastructure,
			})
		}

	case ModeSelective:
		// Explicit seeds first, so a service named in the request is
		// always recorded as explicit even when an earlier seed's
		// closure would have reached it as a dependency.
		for _, seed := range req.Include {
			node, ok := g.Node(seed)
			if !ok || exclude[seed] || !statusOK[node.Status] {
				continue
			}
			targets.add(BackupTarget{
				Name:   seed,
				VMID:   node.VMID,
				IP:     node.IP,
				Reason: ReasonExplicit,
			})
		}
		for _, seed := range req.Include {
			if exclude[seed] {
				continue
			}
			// Required-only closure: optional dependencies are not
			// forced into backups even though Resolve supports them.
			for _, dep := range Resolve(g, seed, false) {
				if dep == seed {
					continue
				}
				node, ok := g.Node(dep)
				if !ok || exclude[dep] || !statusOK[node.Status] {
					continue
				}
				targets.add(BackupTarget{
					Name:   dep,
					VMID:   node.VMID,
					IP:     node.IP,
					Reason: DependencyReason(seed),
				})
			}
		}

	case ModeAll:
		for _, name := range g.Names() {
			node := g[name]
			if exclude[name] || !statusOK[node.Status] {
				continue
			}
			targets.add(BackupTarget{
				Name:   name,
				VMID:   node.VMID,
				IP:     node.IP,
				Reason: ReasonAll,
			})
		}
	}

	out := targets.list()
	span.SetAttributes(attribute.Int("targets", len(out)))
	e.logger.Debug("computed backup targets",
		"policy", string(req.Mode),
		"targets", len(out),
	)
	return out, nil
}

// InfrastructureServices returns the names of registered services
// classified as infrastructure, in sorted order.
func (e *Engine) InfrastructureServices(ctx context.Context) ([]string, error) {
	g, err := e.cache.GetGraph(ctx, false)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range g.Names() {
		if g[name].Infrastructure {
			names = append(names, name)
		}
	}
	return names, nil
}

// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var builderTracer = otel.Tracer("nhi.planner.registry")

// DefaultBuildWorkers is the parse parallelism of a build pass.
const DefaultBuildWorkers = 8

// Builder turns a directory of descriptor documents into a dependency
// graph.
//
// A build pass is a pure function of store contents: identical files
// produce an identical graph regardless of parse parallelism. Malformed
// documents are skipped and recorded; there is no fatal failure mode
// short of a cancelled context, and even that returns the partial graph
// assembled so far.
//
// Thread Safety: Builder is safe for concurrent use; each Build call
// works on its own state.
type Builder struct {
	root       string
	classifier InfraClassifier
	logger     *slog.Logger
	workers    int
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*Builder)

// WithClassifier overrides the infrastructure classifier.
func WithClassifier(c InfraClassifier) BuilderOption {
	return func(b *Builder) {
		b.classifier = c
	}
}

// WithLogger sets the logger for build diagnostics.
func WithLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// WithWorkers sets the parse parallelism. Values below 1 mean serial.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		b.workers = n
	}
}

// NewBuilder creates a Builder over the given descriptor store root.
func NewBuilder(root string, opts ...BuilderOption) *Builder {
	b := &Builder{
		root:    root,
		workers: DefaultBuildWorkers,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.classifier == nil {
		b.classifier = DefaultClassifier()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.workers < 1 {
		b.workers = 1
	}
	return b
}

// Root returns the descriptor store root the builder scans.
func (b *Builder) Root() string {
	return b.root
}

// BuildResult is the outcome of one build pass.
type BuildResult struct {
	// Graph is the assembled dependency graph. Never nil.
	Graph Graph

	// Skipped lists descriptors that failed to parse. The build
	// continued past every one of them.
	Skipped []ScanError

	// Skeletons counts descriptors still carrying the skeleton marker.
	Skeletons int

	// DurationMilli is how long the pass took.
	DurationMilli int64
}

// Build scans the store and assembles the dependency graph.
//
// Documents are parsed concurrently but merged in sorted file order, so
// the last-duplicate-wins rule is deterministic. A missing or unreadable
// store root yields an empty graph, not an error; downstream policies
// degrade to "no targets" instead of crashing.
func (b *Builder) Build(ctx context.Context) *BuildResult {
	ctx, span := builderTracer.Start(ctx, "registry.Build")
	defer span.End()

	start := time.Now()
	result := &BuildResult{Graph: Graph{}}

	files, err := b.listDescriptors()
	if err != nil {
		b.logger.Warn("descriptor store is not readable, returning empty graph",
			"root", b.root,
			"error", err.Error(),
		)
		span.RecordError(err)
		result.DurationMilli = time.Since(start).Milliseconds()
		return result
	}

	type parsed struct {
		desc *Descriptor
		err  error
	}
	results := make([]parsed, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(b.root, file))
			if err != nil {
				results[i] = parsed{err: err}
				return nil
			}
			desc, err := ParseDescriptor(data)
			results[i] = parsed{desc: desc, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Cancelled mid-scan; fold whatever finished and hand back the
		// partial snapshot.
		b.logger.Warn("build pass cancelled, returning partial graph", "error", err.Error())
	}

	// Fold in sorted file order so duplicate names resolve the same way
	// on every pass.
	for i, file := range files {
		r := results[i]
		if r.desc == nil {
			if r.err == nil {
				continue // never parsed before cancellation
			}
			b.logger.Error("skipping descriptor",
				"file", file,
				"error", r.err.Error(),
			)
			result.Skipped = append(result.Skipped, ScanError{Path: file, Err: r.err})
			continue
		}
		if _, dup := result.Graph[r.desc.Name]; dup {
			b.logger.Warn("duplicate service name, last descriptor wins",
				"name", r.desc.Name,
				"file", file,
			)
		}
		if r.desc.IsSkeleton() {
			result.Skeletons++
		}
		result.Graph[r.desc.Name] = r.desc.Node(b.classifier)
	}

	result.DurationMilli = time.Since(start).Milliseconds()
	span.SetAttributes(
		attribute.Int("services", result.Graph.Len()),
		attribute.Int("skipped", len(result.Skipped)),
		attribute.Int64("duration_ms", result.DurationMilli),
	)
	b.logger.Debug("built dependency graph",
		"services", result.Graph.Len(),
		"skipped", len(result.Skipped),
		"skeletons", result.Skeletons,
		"duration_ms", result.DurationMilli,
	)
	return result
}

// BuildGraph adapts Build to the cache's build function signature.
//
// It never returns a non-nil error: every failure already degrades to a
// smaller graph inside Build.
func (b *Builder) BuildGraph(ctx context.Context) (Graph, error) {
	return b.Build(ctx).Graph, nil
}

// listDescriptors returns the store's descriptor filenames in sorted
// order, relative to the root.
func (b *Builder) listDescriptors() ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

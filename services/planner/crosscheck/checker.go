// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package crosscheck flags drift between the service registry and the
// live infrastructure.
//
// It is a read-only analysis over the same graph the backup planner
// uses: descriptors with no matching live resource are reported as
// orphans, and every descriptor is checked against a minimal
// compliance rule set. Results are advisory and never block anything.
package crosscheck

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nhi-ops/nhi-core/services/planner/registry"
)

var checkTracer = otel.Tracer("nhi.planner.crosscheck")

// Checker runs cross-check passes.
type Checker struct {
	logger *slog.Logger
}

// CheckerOption is a functional option for configuring Checker.
type CheckerOption func(*Checker)

// WithLogger sets the logger for check diagnostics.
func WithLogger(l *slog.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = l
	}
}

// NewChecker creates a Checker.
func NewChecker(opts ...CheckerOption) *Checker {
	c := &Checker{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// CrossCheck matches every graph node against the live resource
// snapshot and evaluates the compliance rules.
//
// Matching is a best-effort heuristic, not exact: a node matches a live
// resource on equal identity, or when the node's name appears
// case-insensitively inside the resource's name. Nodes are visited in
// sorted order so reports are deterministic for identical inputs.
func (c *Checker) CrossCheck(ctx context.Context, g registry.Graph, live []LiveResource) Report {
	_, span := checkTracer.Start(ctx, "crosscheck.CrossCheck")
	defer span.End()

	report := Report{
		ID:          uuid.NewString(),
		GeneratedAt: time.Now(),
		Summary: Summary{
			Services:      g.Len(),
			LiveResources: len(live),
		},
	}

	for _, name := range g.Names() {
		node := g[name]

		if !matchesLive(node, live) {
			report.Orphans = append(report.Orphans, Orphan{
				Name:         name,
				DeclaredVMID: node.VMID,
			})
		}

		result := checkCompliance(node)
		report.Compliance = append(report.Compliance, result)
		if !result.Compliant {
			report.Summary.ComplianceIssues++
		}
	}
	report.Summary.Orphans = len(report.Orphans)

	span.SetAttributes(
		attribute.Int("services", report.Summary.Services),
		attribute.Int("orphans", report.Summary.Orphans),
		attribute.Int("compliance_issues", report.Summary.ComplianceIssues),
	)
	c.logger.Debug("cross-check complete",
		"report_id", report.ID,
		"services", report.Summary.Services,
		"orphans", report.Summary.Orphans,
		"compliance_issues", report.Summary.ComplianceIssues,
	)
	return report
}

// matchesLive reports whether a node corresponds to any live resource.
func matchesLive(node registry.ServiceNode, live []LiveResource) bool {
	nameLower := strings.ToLower(node.Name)
	for _, r := range live {
		if node.VMID != 0 && r.VMID == node.VMID {
			return true
		}
		if nameLower != "" && strings.Contains(strings.ToLower(r.Name), nameLower) {
			return true
		}
	}
	return false
}

// checkCompliance evaluates the minimal rule set against one node.
//
// Missing identity is an issue; a placeholder description or an empty
// dependency declaration is only a warning.
func checkCompliance(node registry.ServiceNode) ComplianceResult {
	result := ComplianceResult{
		Name:      node.Name,
		Compliant: true,
	}

	if node.VMID == 0 {
		result.Compliant = false
		result.Issues = append(result.Issues, "missing vmid")
	}
	if node.Description == "" || strings.Contains(strings.ToLower(node.Description), "skeleton") {
		result.Warnings = append(result.Warnings, "description needs review")
	}
	if len(node.Requires) == 0 && len(node.Optional) == 0 {
		result.Warnings = append(result.Warnings, "no dependencies declared")
	}
	return result
}

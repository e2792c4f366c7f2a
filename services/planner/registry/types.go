// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"maps"
	"sort"
	"strings"
)

// Status is a service lifecycle label.
//
// The set is open on disk: descriptors may carry anything, but values
// outside the known set normalize to StatusUnknown so that policy
// filtering never has to reason about free-form text.
type Status string

const (
	// StatusActive indicates a service in normal operation.
	StatusActive Status = "active"

	// StatusDevelopment indicates a service still being built out.
	StatusDevelopment Status = "development"

	// StatusMaintenance indicates a service temporarily under maintenance.
	StatusMaintenance Status = "maintenance"

	// StatusDeprecated indicates a service scheduled for removal.
	StatusDeprecated Status = "deprecated"

	// StatusUnknown is the fallback for missing or unrecognized labels.
	StatusUnknown Status = "unknown"
)

// knownStatuses is the closed set of labels that pass through unchanged.
var knownStatuses = map[Status]bool{
	StatusActive:      true,
	StatusDevelopment: true,
	StatusMaintenance: true,
	StatusDeprecated:  true,
	StatusUnknown:     true,
}

// NormalizeStatus maps a raw descriptor label to a Status.
//
// Matching is case-insensitive. Empty and unrecognized labels become
// StatusUnknown.
func NormalizeStatus(raw string) Status {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if knownStatuses[s] {
		return s
	}
	return StatusUnknown
}

// Kind is the category of compute resource backing a service.
//
// Unlike Status, unrecognized kinds pass through verbatim: the planner
// only branches on kind for display defaults, never for correctness.
type Kind string

const (
	// KindLXC is a Linux container (the registry default).
	KindLXC Kind = "lxc"

	// KindVM is a full virtual machine.
	KindVM Kind = "vm"

	// KindProject is a logical project with no dedicated machine.
	KindProject Kind = "project"
)

// NormalizeKind maps a raw descriptor type to a Kind, defaulting to KindLXC.
func NormalizeKind(raw string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if k == "" {
		return KindLXC
	}
	return k
}

// ServiceNode is one entry in the dependency graph, built from a single
// descriptor document.
//
// VMID is the handle to the underlying compute resource; zero means the
// service is data-only and has no machine of its own.
//
// Infrastructure is derived from the name by an InfraClassifier on every
// build and on every cache load. It is deliberately excluded from
// serialization so a stale allow-list can never leak out of a cached
// envelope.
type ServiceNode struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	VMID        int      `yaml:"vmid,omitempty" json:"vmid,omitempty"`
	IP          string   `yaml:"ip,omitempty" json:"ip,omitempty"`
	Status      Status   `yaml:"status" json:"status"`
	Kind        Kind     `yaml:"type" json:"type"`
	Requires    []string `yaml:"requires" json:"requires"`
	Optional    []string `yaml:"optional" json:"optional"`

	Infrastructure bool `yaml:"-" json:"is_infrastructure"`
}

// Graph maps service names to their nodes.
//
// Names are case-sensitive identity. Edges may reference names with no
// node of their own; dangling references are tolerated everywhere.
//
// A Graph is a snapshot: it is built once, optionally cached, and read
// many times. Nothing mutates a graph after it has been handed out; the
// cache classifies a Clone of the stored snapshot, never the snapshot
// itself.
type Graph map[string]ServiceNode

// Node returns the node for name, if present.
func (g Graph) Node(name string) (ServiceNode, bool) {
	n, ok := g[name]
	return n, ok
}

// Len returns the number of services in the graph.
func (g Graph) Len() int {
	return len(g)
}

// Names returns all service names in sorted order.
//
// Sorted iteration keeps every downstream computation deterministic for
// identical store contents.
func (g Graph) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a shallow copy of the graph. Nodes are values, so the
// copy can be classified without touching the original; the dependency
// slices are shared and read-only everywhere. A nil graph clones to an
// empty one.
func (g Graph) Clone() Graph {
	out := make(Graph, len(g))
	maps.Copy(out, g)
	return out
}

// Classify recomputes the Infrastructure flag on every node.
//
// The flag is a pure function of the name; it must be re-derived after
// any deserialization so allow-list changes take effect immediately.
func (g Graph) Classify(c InfraClassifier) {
	if c == nil {
		return
	}
	for name, node := range g {
		node.Infrastructure = c(name)
		g[name] = node
	}
}

// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"fmt"

	"github.com/nhi-ops/nhi-core/services/planner/registry"
)

// Mode is a named backup target selection strategy.
type Mode string

const (
	// ModeCore selects only the designated core service.
	ModeCore Mode = "core"

	// ModeCoreInfra selects the core service plus every
	// infrastructure-classified service.
	ModeCoreInfra Mode = "core+infra"

	// ModeSelective selects named services and their required
	// dependency closures.
	ModeSelective Mode = "selective"

	// ModeAll selects every service in the graph.
	ModeAll Mode = "all"
)

// Valid reports whether m is a known policy mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeCore, ModeCoreInfra, ModeSelective, ModeAll:
		return true
	default:
		return false
	}
}

// Audit reasons attached to backup targets. Exactly one reason per
// target; the first reason assigned wins.
const (
	ReasonCore           = "core"
	ReasonInfrastructure = "infrastructure"
	ReasonExplicit       = "explicit"
	ReasonAll            = "all"
)

// DependencyReason is the audit reason for a service pulled in as a
// transitive dependency of seed.
func DependencyReason(seed string) string {
	return fmt.Sprintf("dependency-of:%s", seed)
}

// BackupTarget is one service selected for backup, with the audit
// reason it was selected.
type BackupTarget struct {
	Name   string `json:"name"`
	VMID   int    `json:"vmid,omitempty"`
	IP     string `json:"ip,omitempty"`
	Reason string `json:"reason"`
}

// TargetRequest describes one backup target computation.
type TargetRequest struct {
	// Mode is the selection strategy.
	Mode Mode

	// Include seeds the selective mode. Ignored by other modes.
	Include []string

	// Exclude names services never selected automatically.
	Exclude []string

	// IncludeStatuses limits automatic selection to services in these
	// states. Nil means DefaultIncludeStatuses.
	IncludeStatuses []registry.Status
}

// DefaultIncludeStatuses is the status filter applied when a request
// does not name one. Deprecated and unknown services are left out of
// automatic policies unless a caller opts in explicitly.
func DefaultIncludeStatuses() []registry.Status {
	return []registry.Status{
		registry.StatusActive,
		registry.StatusDevelopment,
		registry.StatusMaintenance,
	}
}

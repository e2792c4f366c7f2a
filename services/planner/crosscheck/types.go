// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package crosscheck

import "time"

// LiveResource is one entry of the externally maintained snapshot of
// running compute resources.
type LiveResource struct {
	VMID   int    `json:"vmid"`
	Name   string `json:"name"`
	Status string `json:"status"`
	IP     string `json:"ip,omitempty"`
	Kind   string `json:"type,omitempty"`
}

// Orphan is a descriptor with no matching live resource.
type Orphan struct {
	// Name is the orphaned service.
	Name string `json:"name"`

	// DeclaredVMID is the identity the descriptor claims, zero when
	// the service is data-only.
	DeclaredVMID int `json:"declared_vmid,omitempty"`
}

// ComplianceResult is the advisory rule outcome for one service.
//
// Issues make the service non-compliant; warnings do not. Nothing here
// ever blocks an operation.
type ComplianceResult struct {
	Name      string   `json:"name"`
	Compliant bool     `json:"compliant"`
	Issues    []string `json:"issues,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Summary aggregates a cross-check report.
type Summary struct {
	Services         int `json:"services"`
	LiveResources    int `json:"live_resources"`
	Orphans          int `json:"orphans"`
	ComplianceIssues int `json:"compliance_issues"`
}

// Report is the outcome of one cross-check pass over the graph.
type Report struct {
	ID          string             `json:"id"`
	GeneratedAt time.Time          `json:"generated_at"`
	Orphans     []Orphan           `json:"orphans"`
	Compliance  []ComplianceResult `json:"compliance"`
	Summary     Summary            `json:"summary"`
}

// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package crosscheck

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhi-ops/nhi-core/services/planner/registry"
)

func TestCrossCheck_Orphans(t *testing.T) {
	g := registry.Graph{
		"warroom": {
			Name: "warroom", VMID: 204,
			Description: "Incident dashboard",
			Requires:    []string{"postgresql"},
		},
		"abandoned": {
			Name: "abandoned", VMID: 999,
			Description: "Nothing runs this anymore",
			Requires:    []string{"postgresql"},
		},
	}
	live := []LiveResource{
		{VMID: 204, Name: "warroom-ct", Status: "running"},
	}

	report := NewChecker().CrossCheck(context.Background(), g, live)

	require.Len(t, report.Orphans, 1)
	assert.Equal(t, "abandoned", report.Orphans[0].Name)
	assert.Equal(t, 999, report.Orphans[0].DeclaredVMID)
	assert.Equal(t, 1, report.Summary.Orphans)
	assert.Equal(t, 2, report.Summary.Services)
	assert.Equal(t, 1, report.Summary.LiveResources)
	assert.NotEmpty(t, report.ID)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestCrossCheck_Matching(t *testing.T) {
	live := []LiveResource{
		{VMID: 101, Name: "ct-postgresql-prod", Status: "running"},
	}

	t.Run("by vmid", func(t *testing.T) {
		node := registry.ServiceNode{Name: "totally-renamed", VMID: 101}
		assert.True(t, matchesLive(node, live))
	})

	t.Run("by name substring", func(t *testing.T) {
		node := registry.ServiceNode{Name: "PostgreSQL", VMID: 555}
		assert.True(t, matchesLive(node, live))
	})

	t.Run("no match", func(t *testing.T) {
		node := registry.ServiceNode{Name: "warroom", VMID: 204}
		assert.False(t, matchesLive(node, live))
	})

	t.Run("zero vmid does not match zero", func(t *testing.T) {
		node := registry.ServiceNode{Name: "data-only"}
		assert.False(t, matchesLive(node, []LiveResource{{VMID: 0, Name: "something-else"}}))
	})
}

func TestCheckCompliance(t *testing.T) {
	t.Run("clean node", func(t *testing.T) {
		result := checkCompliance(registry.ServiceNode{
			Name:        "warroom",
			VMID:        204,
			Description: "Incident dashboard",
			Requires:    []string{"postgresql"},
		})
		assert.True(t, result.Compliant)
		assert.Empty(t, result.Issues)
		assert.Empty(t, result.Warnings)
	})

	t.Run("missing vmid is an issue", func(t *testing.T) {
		result := checkCompliance(registry.ServiceNode{
			Name:        "data-only",
			Description: "Flat files",
			Requires:    []string{"minio"},
		})
		assert.False(t, result.Compliant)
		assert.Contains(t, result.Issues, "missing vmid")
	})

	t.Run("skeleton description is a warning", func(t *testing.T) {
		result := checkCompliance(registry.ServiceNode{
			Name:        "fresh",
			VMID:        300,
			Description: "Service fresh (auto-generated skeleton)",
			Requires:    []string{"postgresql"},
		})
		assert.True(t, result.Compliant, "warnings never break compliance")
		assert.Contains(t, result.Warnings, "description needs review")
	})

	t.Run("no dependencies is a warning", func(t *testing.T) {
		result := checkCompliance(registry.ServiceNode{
			Name:        "island",
			VMID:        301,
			Description: "Standalone box",
		})
		assert.True(t, result.Compliant)
		assert.Contains(t, result.Warnings, "no dependencies declared")
	})
}

func TestCrossCheck_Deterministic(t *testing.T) {
	g := registry.Graph{
		"zulu":  {Name: "zulu", VMID: 3, Description: "z", Requires: []string{"alpha"}},
		"alpha": {Name: "alpha", VMID: 1, Description: "a", Requires: []string{"zulu"}},
	}
	checker := NewChecker()

	first := checker.CrossCheck(context.Background(), g, nil)
	second := checker.CrossCheck(context.Background(), g, nil)

	assert.NotEqual(t, first.ID, second.ID, "every report gets its own id")
	assert.Equal(t, first.Orphans, second.Orphans)
	assert.Equal(t, first.Compliance, second.Compliance)
	assert.Equal(t, "alpha", first.Compliance[0].Name, "nodes visited in sorted order")
}

func TestLoadLiveFeed(t *testing.T) {
	dir := t.TempDir()

	t.Run("bare array", func(t *testing.T) {
		path := filepath.Join(dir, "bare.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"vmid":101,"name":"postgresql","status":"running"}]`), 0644))

		live, err := LoadLiveFeed(path)
		require.NoError(t, err)
		require.Len(t, live, 1)
		assert.Equal(t, 101, live[0].VMID)
	})

	t.Run("wrapped object", func(t *testing.T) {
		path := filepath.Join(dir, "wrapped.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"resources":[{"vmid":204,"name":"warroom","status":"running"}]}`), 0644))

		live, err := LoadLiveFeed(path)
		require.NoError(t, err)
		require.Len(t, live, 1)
		assert.Equal(t, "warroom", live[0].Name)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadLiveFeed(filepath.Join(dir, "nope.json"))
		assert.Error(t, err)
	})

	t.Run("unparseable", func(t *testing.T) {
		path := filepath.Join(dir, "garbage.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
		_, err := LoadLiveFeed(path)
		assert.Error(t, err)
	})
}

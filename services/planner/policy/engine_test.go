// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhi-ops/nhi-core/services/planner/cache"
	"github.com/nhi-ops/nhi-core/services/planner/registry"
)

// testGraph is a small homelab: a core service, an application chain
// ending in shared infrastructure, and a couple of filtered stragglers.
func testGraph() registry.Graph {
	return registry.Graph{
		"nhi-core": {
			Name: "nhi-core", VMID: 100, IP: "192.168.1.100",
			Status: registry.StatusActive,
		},
		"warroom": {
			Name: "warroom", VMID: 204, IP: "192.168.1.204",
			Status:   registry.StatusActive,
			Requires: []string{"dashboard", "worker"},
			Optional: []string{"chromadb"},
		},
		"dashboard": {
			Name: "dashboard", VMID: 205,
			Status: registry.StatusActive,
		},
		"worker": {
			Name: "worker", VMID: 206,
			Status:   registry.StatusActive,
			Requires: []string{"postgresql"},
		},
		"postgresql": {
			Name: "postgresql", VMID: 101, IP: "192.168.1.101",
			Status: registry.StatusActive,
		},
		"redis": {
			Name: "redis", VMID: 103,
			Status: registry.StatusMaintenance,
		},
		"chromadb": {
			Name: "chromadb", VMID: 105,
			Status: registry.StatusActive,
		},
		"legacy-wiki": {
			Name: "legacy-wiki", VMID: 150,
			Status: registry.StatusDeprecated,
		},
	}
}

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	c := cache.New(cache.NewMemoryStore(), func(ctx context.Context) (registry.Graph, error) {
		return testGraph(), nil
	})
	return NewEngine(c, opts...)
}

func reasons(targets []BackupTarget) map[string]string {
	out := make(map[string]string, len(targets))
	for _, t := range targets {
		out[t.Name] = t.Reason
	}
	return out
}

func names(targets []BackupTarget) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Name)
	}
	return out
}

func TestEngine_Targets_CoreMode(t *testing.T) {
	e := newTestEngine(t)
	targets, err := e.Targets(context.Background(), TargetRequest{Mode: ModeCore})
	require.NoError(t, err)

	require.Len(t, targets, 1)
	assert.Equal(t, "nhi-core", targets[0].Name)
	assert.Equal(t, ReasonCore, targets[0].Reason)
	assert.Equal(t, 100, targets[0].VMID)
	assert.Equal(t, "192.168.1.100", targets[0].IP)
}

func TestEngine_Targets_CoreInfraMode(t *testing.T) {
	e := newTestEngine(t)
	targets, err := e.Targets(context.Background(), TargetRequest{Mode: ModeCoreInfra})
	require.NoError(t, err)

	// Infrastructure classification comes from the stock allow-list;
	// maintenance passes the default status filter.
	assert.Equal(t, []string{"nhi-core", "chromadb", "postgresql", "redis"}, names(targets))
	r := reasons(targets)
	assert.Equal(t, ReasonCore, r["nhi-core"])
	assert.Equal(t, ReasonInfrastructure, r["postgresql"])
	assert.Equal(t, ReasonInfrastructure, r["redis"])
}

func TestEngine_Targets_SelectiveMode(t *testing.T) {
	e := newTestEngine(t)
	targets, err := e.Targets(context.Background(), TargetRequest{
		Mode:    ModeSelective,
		Include: []string{"warroom"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"nhi-core", "warroom", "dashboard", "worker", "postgresql"}, names(targets))
	r := reasons(targets)
	assert.Equal(t, ReasonCore, r["nhi-core"])
	assert.Equal(t, ReasonExplicit, r["warroom"])
	assert.Equal(t, DependencyReason("warroom"), r["dashboard"])
	assert.Equal(t, DependencyReason("warroom"), r["worker"])
	assert.Equal(t, DependencyReason("warroom"), r["postgresql"])

	// Optional dependencies are never forced into the target set.
	assert.NotContains(t, r, "chromadb")
}

func TestEngine_Targets_SelectiveExplicitOutranksDependency(t *testing.T) {
	// worker is both named outright and reachable from warroom's
	// closure; the explicit reason must win whichever way the include
	// list is ordered.
	for _, include := range [][]string{
		{"warroom", "worker"},
		{"worker", "warroom"},
	} {
		e := newTestEngine(t)
		targets, err := e.Targets(context.Background(), TargetRequest{
			Mode:    ModeSelective,
			Include: include,
		})
		require.NoError(t, err)

		r := reasons(targets)
		assert.Equal(t, ReasonExplicit, r["worker"], "include order %v", include)
		assert.Equal(t, ReasonExplicit, r["warroom"], "include order %v", include)
	}
}

func TestEngine_Targets_SelectiveUnknownSeed(t *testing.T) {
	e := newTestEngine(t)
	targets, err := e.Targets(context.Background(), TargetRequest{
		Mode:    ModeSelective,
		Include: []string{"ghost"},
	})
	require.NoError(t, err, "unknown seeds are dropped, not an error")
	assert.Equal(t, []string{"nhi-core"}, names(targets))
}

func TestEngine_Targets_AllMode(t *testing.T) {
	e := newTestEngine(t)
	targets, err := e.Targets(context.Background(), TargetRequest{Mode: ModeAll})
	require.NoError(t, err)

	got := names(targets)
	assert.NotContains(t, got, "legacy-wiki", "deprecated services are filtered by default")
	assert.Equal(t, []string{"nhi-core", "chromadb", "dashboard", "postgresql", "redis", "warroom", "worker"}, got)

	r := reasons(targets)
	assert.Equal(t, ReasonCore, r["nhi-core"], "core reason outranks all")
	assert.Equal(t, ReasonAll, r["warroom"])
}

func TestEngine_Targets_StatusOptIn(t *testing.T) {
	e := newTestEngine(t)
	targets, err := e.Targets(context.Background(), TargetRequest{
		Mode:            ModeAll,
		IncludeStatuses: []registry.Status{registry.StatusDeprecated},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"nhi-core", "legacy-wiki"}, names(targets))
}

func TestEngine_Targets_Exclude(t *testing.T) {
	t.Run("exclude infrastructure", func(t *testing.T) {
		e := newTestEngine(t)
		targets, err := e.Targets(context.Background(), TargetRequest{
			Mode:    ModeCoreInfra,
			Exclude: []string{"redis"},
		})
		require.NoError(t, err)
		assert.NotContains(t, names(targets), "redis")
	})

	t.Run("exclude dependency", func(t *testing.T) {
		e := newTestEngine(t)
		targets, err := e.Targets(context.Background(), TargetRequest{
			Mode:    ModeSelective,
			Include: []string{"warroom"},
			Exclude: []string{"postgresql"},
		})
		require.NoError(t, err)
		assert.NotContains(t, names(targets), "postgresql")
		assert.Contains(t, names(targets), "worker")
	})

	t.Run("core is exempt from exclusion", func(t *testing.T) {
		e := newTestEngine(t)
		targets, err := e.Targets(context.Background(), TargetRequest{
			Mode:    ModeCore,
			Exclude: []string{"nhi-core"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"nhi-core"}, names(targets))
	})
}

func TestEngine_Targets_UnknownMode(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Targets(context.Background(), TargetRequest{Mode: "everything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backup policy")
}

func TestEngine_Targets_DeterministicOrder(t *testing.T) {
	e := newTestEngine(t)
	req := TargetRequest{
		Mode:    ModeSelective,
		Include: []string{"warroom", "redis"},
	}

	first, err := e.Targets(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Targets(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEngine_Targets_CustomCoreService(t *testing.T) {
	e := newTestEngine(t, WithCoreService("warroom"))
	targets, err := e.Targets(context.Background(), TargetRequest{Mode: ModeCore})
	require.NoError(t, err)

	require.Len(t, targets, 1)
	assert.Equal(t, "warroom", targets[0].Name)
	assert.Equal(t, ReasonCore, targets[0].Reason)
}

func TestEngine_Targets_CoreAbsentFromGraph(t *testing.T) {
	e := newTestEngine(t, WithCoreService("not-registered"))
	targets, err := e.Targets(context.Background(), TargetRequest{Mode: ModeCore})
	require.NoError(t, err)
	assert.Empty(t, targets, "an unregistered core service yields no target")
}

func TestEngine_Resolve(t *testing.T) {
	e := newTestEngine(t)
	resolved, err := e.Resolve(context.Background(), "warroom", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"warroom", "dashboard", "worker", "postgresql"}, resolved)
}

func TestEngine_InfrastructureServices(t *testing.T) {
	e := newTestEngine(t)
	infra, err := e.InfrastructureServices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"chromadb", "postgresql", "redis"}, infra)
}

func TestMode_Valid(t *testing.T) {
	for _, m := range []Mode{ModeCore, ModeCoreInfra, ModeSelective, ModeAll} {
		assert.True(t, m.Valid(), "mode %s", m)
	}
	assert.False(t, Mode("").Valid())
	assert.False(t, Mode("everything").Valid())
}

func TestDependencyReason(t *testing.T) {
	assert.Equal(t, "dependency-of:warroom", DependencyReason("warroom"))
}

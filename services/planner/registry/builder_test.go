// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDescriptor drops a raw descriptor document into dir.
func writeDescriptor(t *testing.T, dir, file, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(body), 0644))
}

func TestBuilder_Build_SkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "warroom.yaml", "name: warroom\nvmid: 204\ndependencies: [postgresql]\n")
	writeDescriptor(t, dir, "postgresql.yaml", "name: postgresql\nvmid: 101\n")
	writeDescriptor(t, dir, "broken.yaml", "description: forgot the name\n")

	result := NewBuilder(dir).Build(context.Background())

	assert.Equal(t, 2, result.Graph.Len())
	assert.Contains(t, result.Graph, "warroom")
	assert.Contains(t, result.Graph, "postgresql")

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "broken.yaml", result.Skipped[0].Path)
	assert.True(t, errors.Is(result.Skipped[0].Err, ErrMissingName))
}

func TestBuilder_Build_MissingRoot(t *testing.T) {
	b := NewBuilder(filepath.Join(t.TempDir(), "does-not-exist"))
	result := b.Build(context.Background())

	require.NotNil(t, result.Graph)
	assert.Equal(t, 0, result.Graph.Len())
	assert.Empty(t, result.Skipped)
}

func TestBuilder_Build_DuplicateNameLastFileWins(t *testing.T) {
	dir := t.TempDir()
	// Same service name in two files; sorted file order decides.
	writeDescriptor(t, dir, "a-warroom.yaml", "name: warroom\nvmid: 100\n")
	writeDescriptor(t, dir, "z-warroom.yaml", "name: warroom\nvmid: 200\n")

	result := NewBuilder(dir).Build(context.Background())

	require.Equal(t, 1, result.Graph.Len())
	node, ok := result.Graph.Node("warroom")
	require.True(t, ok)
	assert.Equal(t, 200, node.VMID)
}

func TestBuilder_Build_IgnoresNonDescriptorFiles(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "warroom.yaml", "name: warroom\n")
	writeDescriptor(t, dir, "notes.txt", "not a descriptor")
	writeDescriptor(t, dir, "README.md", "# registry")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0755))

	result := NewBuilder(dir).Build(context.Background())
	assert.Equal(t, 1, result.Graph.Len())
}

func TestBuilder_Build_CountsSkeletons(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "fresh.yaml", "name: fresh\n_status: skeleton\n")
	writeDescriptor(t, dir, "mature.yaml", "name: mature\n")

	result := NewBuilder(dir).Build(context.Background())
	assert.Equal(t, 2, result.Graph.Len())
	assert.Equal(t, 1, result.Skeletons)
}

func TestBuilder_Build_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "a.yaml", "name: svc\nvmid: 1\n")
	writeDescriptor(t, dir, "b.yaml", "name: svc\nvmid: 2\n")
	writeDescriptor(t, dir, "c.yaml", "name: other\nvmid: 3\n")

	b := NewBuilder(dir, WithWorkers(4))
	first := b.Build(context.Background())
	for i := 0; i < 10; i++ {
		again := b.Build(context.Background())
		assert.Equal(t, first.Graph, again.Graph)
	}
}

func TestBuilder_Build_ClassifiesInfrastructure(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "redis.yaml", "name: redis\nvmid: 103\n")
	writeDescriptor(t, dir, "warroom.yaml", "name: warroom\nvmid: 204\n")

	t.Run("default allow-list", func(t *testing.T) {
		g := NewBuilder(dir).Build(context.Background()).Graph
		assert.True(t, g["redis"].Infrastructure)
		assert.False(t, g["warroom"].Infrastructure)
	})

	t.Run("custom allow-list", func(t *testing.T) {
		b := NewBuilder(dir, WithClassifier(NewInfraClassifier([]string{"warroom"})))
		g := b.Build(context.Background()).Graph
		assert.False(t, g["redis"].Infrastructure)
		assert.True(t, g["warroom"].Infrastructure)
	})
}

func TestBuildGraph_NeverErrors(t *testing.T) {
	b := NewBuilder(filepath.Join(t.TempDir(), "missing"))
	g, err := b.BuildGraph(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, g)
}

func TestWriteSkeleton(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteSkeleton(dir, "scout", 310, "192.168.1.310", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scout.yaml"), path)

	// The written file must parse back as a skeleton descriptor.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	d, err := ParseDescriptor(data)
	require.NoError(t, err)
	assert.Equal(t, "scout", d.Name)
	assert.Equal(t, 310, d.VMID)
	assert.Equal(t, "192.168.1.310", d.Network.IP)
	assert.True(t, d.IsSkeleton())
	assert.Contains(t, d.Description, "auto-generated")

	t.Run("refuses overwrite", func(t *testing.T) {
		_, err := WriteSkeleton(dir, "scout", 999, "", "")
		assert.True(t, errors.Is(err, ErrDescriptorExists))
	})
}

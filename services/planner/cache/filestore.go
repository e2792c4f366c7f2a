// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvelopeFileName is the envelope file under the cache directory.
const EnvelopeFileName = "dependency_graph.yaml"

// FileStore persists the envelope as a single YAML file.
//
// Writes go to a temp file in the same directory followed by a rename,
// so concurrent rebuilds racing on a stale cache can both write safely:
// a reader observes either the old envelope or the new one, never a
// torn file.
type FileStore struct {
	dir    string
	path   string
	logger *slog.Logger
}

// FileStoreOption is a functional option for configuring FileStore.
type FileStoreOption func(*FileStore)

// WithFileStoreLogger sets the logger for store diagnostics.
func WithFileStoreLogger(l *slog.Logger) FileStoreOption {
	return func(s *FileStore) {
		s.logger = l
	}
}

// NewFileStore creates a FileStore under dir, creating dir if needed.
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	s := &FileStore{
		dir:  dir,
		path: filepath.Join(dir, EnvelopeFileName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Path returns the envelope file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store. A missing, unreadable, or corrupt file is a
// cache miss, never a failure.
func (s *FileStore) Load(ctx context.Context) (*Envelope, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cache file unreadable, treating as miss",
				"path", s.path,
				"error", err.Error(),
			)
		}
		return nil, ErrNoEnvelope
	}
	var env Envelope
	if err := yaml.Unmarshal(data, &env); err != nil {
		s.logger.Warn("cache file corrupt, treating as miss",
			"path", s.path,
			"error", err.Error(),
		)
		return nil, ErrCorruptEnvelope
	}
	return &env, nil
}

// Save implements Store using write-to-temp-then-rename.
func (s *FileStore) Save(ctx context.Context, env *Envelope) error {
	data, err := yaml.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".envelope-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp envelope: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp envelope: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp envelope: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("swap envelope into place: %w", err)
	}
	return nil
}

// Delete implements Store; removing an absent envelope is a no-op.
func (s *FileStore) Delete(ctx context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete envelope %s: %w", s.path, err)
	}
	return nil
}

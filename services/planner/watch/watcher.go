// Copyright (C) 2025 NHI Systems (ops@nhi.systems)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch invalidates the graph cache when descriptors change.
//
// The registry directory is edited by humans and by catalog sync jobs;
// rather than waiting out the envelope TTL, a watcher notices the edit
// and invalidates immediately. Changes are debounced so a burst of
// writes (an editor save, a sync pass touching many files) collapses
// into one invalidation.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a change burst to
// settle before firing.
const DefaultDebounce = 500 * time.Millisecond

// ChangeHandler is called once per settled batch of descriptor changes
// with the affected file paths.
type ChangeHandler func(paths []string)

// Watcher watches a descriptor directory and reports settled batches
// of changes.
//
// Thread Safety: safe for concurrent use. The handler is called from a
// single goroutine.
type Watcher struct {
	dir      string
	handler  ChangeHandler
	debounce time.Duration
	logger   *slog.Logger

	fsw      *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
}

// WatcherOption is a functional option for configuring Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the settle window for change batching.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger for watch diagnostics.
func WithLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// New creates a Watcher over the descriptor directory. The handler
// fires after each settled batch of changes to YAML files in dir.
func New(dir string, handler ChangeHandler, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		dir:      dir,
		handler:  handler,
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	w.fsw = fsw
	return w, nil
}

// Start begins watching. It returns immediately; the watch loop runs
// until Stop is called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go w.loop(ctx)
}

// Stop shuts the watcher down. Idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
}

// loop collects events and fires the handler after the debounce window
// passes without further changes.
func (w *Watcher) loop(ctx context.Context) {
	var pending []string
	seen := make(map[string]bool)
	var timer *time.Timer
	var fire <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		seen = make(map[string]bool)
		fire = nil
		w.logger.Debug("descriptor changes settled", "files", len(batch))
		w.handler(batch)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isDescriptor(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !seen[event.Name] {
				seen[event.Name] = true
				pending = append(pending, event.Name)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("descriptor watch error", "error", err.Error())
		case <-fire:
			flush()
		}
	}
}

// isDescriptor reports whether a changed path is a descriptor file.
func isDescriptor(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

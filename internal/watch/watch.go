// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package watch notifies the Task Store when files under its tasksRoot
// change, coalescing bursts of writes (an executor finishing a batch of
// tasks, a splitter fanning out several files at once) into a single
// re-scan instead of one per file.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config controls the debounce behaviour.
type Config struct {
	// Quiet is how long the watcher waits after the most recent event before
	// firing onChange. Every new event during the window resets it.
	Quiet time.Duration
	// MaxWait bounds total latency under sustained write pressure: once
	// MaxWait has elapsed since the first unflushed event, onChange fires
	// regardless of whether events are still arriving.
	MaxWait time.Duration
}

// DefaultConfig matches what the kernel uses in production: quick enough
// that a UI feels live, slow enough to coalesce a splitter's fan-out writes
// into one re-scan.
func DefaultConfig() Config {
	return Config{Quiet: 150 * time.Millisecond, MaxWait: 750 * time.Millisecond}
}

// Watcher watches a fixed set of directories non-recursively (the kernel's
// task buckets are flat) and debounces fsnotify events before notifying.
type Watcher struct {
	fsw    *fsnotify.Watcher
	logger *slog.Logger
}

// New creates a Watcher over root and every entry in subdirs. Missing
// directories are skipped rather than erroring,
// since a run's tasksRoot may not yet have every kind bucket populated.
func New(root string, subdirs []string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	paths := make([]string, 0, len(subdirs)+1)
	paths = append(paths, root)
	for _, d := range subdirs {
		paths = append(paths, filepath.Join(root, d))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := fsw.Add(p); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", p, err)
		}
	}

	return &Watcher{fsw: fsw, logger: logger.With(slog.String("component", "watch"))}, nil
}

// Close releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run blocks, debouncing fsnotify events per cfg and invoking onChange after
// each settled burst, until ctx is cancelled. onChange receives no event
// payload by design: callers always re-scan the full task set, since a
// debounced burst may span creates, writes, and renames across several
// files and partial reconciliation would be more complex than a re-list.
func (w *Watcher) Run(ctx context.Context, cfg Config, onChange func()) error {
	var (
		quietTimer   *time.Timer
		maxWaitTimer *time.Timer
		pending      bool
	)
	defer func() {
		if quietTimer != nil {
			quietTimer.Stop()
		}
		if maxWaitTimer != nil {
			maxWaitTimer.Stop()
		}
	}()

	quietC := make(chan struct{})
	maxWaitC := make(chan struct{})

	fire := func() {
		if !pending {
			return
		}
		pending = false
		if quietTimer != nil {
			quietTimer.Stop()
		}
		if maxWaitTimer != nil {
			maxWaitTimer.Stop()
		}
		onChange()
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != ".json" {
				continue
			}
			if !pending {
				pending = true
				maxWaitTimer = time.AfterFunc(cfg.MaxWait, func() { maxWaitC <- struct{}{} })
			}
			if quietTimer != nil {
				quietTimer.Stop()
			}
			quietTimer = time.AfterFunc(cfg.Quiet, func() { quietC <- struct{}{} })

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-quietC:
			fire()

		case <-maxWaitC:
			fire()
		}
	}
}

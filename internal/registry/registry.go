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

// Package registry is a minimal stand-in for the desktop shell's worktree
// registry (spec.md §6, "external collaborator the core consumes"). It maps
// a worktreeId to an absolute path on disk, loaded from a small YAML file
// for the daemon and dev CLI to exercise the Coordinator against real
// directories without the full shell.
package registry

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// File is the on-disk shape: worktree id -> absolute path.
type File struct {
	Worktrees map[string]string `yaml:"worktrees"`
}

// Registry resolves worktree ids to paths, safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	paths map[string]string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{paths: make(map[string]string)}
}

// Load reads a YAML file of the File shape and returns a populated Registry.
// A missing path yields an empty Registry rather than an error, so a fresh
// dev setup doesn't need the file to exist yet.
func Load(path string) (*Registry, error) {
	r := New()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("reading worktree registry %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing worktree registry %s: %w", path, err)
	}
	for id, p := range f.Worktrees {
		r.paths[id] = p
	}
	return r, nil
}

// Set registers or replaces worktreeID's path.
func (r *Registry) Set(worktreeID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[worktreeID] = path
}

// Remove forgets worktreeID.
func (r *Registry) Remove(worktreeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, worktreeID)
}

// Resolve implements coordinator.ResolveWorktreePath.
func (r *Registry) Resolve(worktreeID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.paths[worktreeID]
	return p, ok
}

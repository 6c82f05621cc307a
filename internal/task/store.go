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

package task

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	kerrors "github.com/orchkit/kernel/pkg/errors"
)

// Store reads and writes task records under a run's tasksRoot, and appends
// to per-task conversation files under conversationRoot.
type Store struct {
	tasksRoot        string
	conversationRoot string
	logger           *slog.Logger
}

// NewStore creates a Store rooted at tasksRoot/conversationRoot. Both
// directory trees (and every kind bucket under tasksRoot) are created if
// missing.
func NewStore(tasksRoot, conversationRoot string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{tasksRoot: tasksRoot, conversationRoot: conversationRoot, logger: logger}
	if err := s.ensureDirs(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureDirs() error {
	for _, d := range directories {
		if err := os.MkdirAll(filepath.Join(s.tasksRoot, d), 0o755); err != nil {
			return fmt.Errorf("creating task directory %s: %w", d, err)
		}
	}
	return os.MkdirAll(s.conversationRoot, 0o755)
}

// LoadOptions narrows a scan; a zero value loads everything.
type LoadOptions struct {
	Role Role
	Kind Kind
}

// LoadTasks scans every kind directory, parses each JSON file, and returns
// the resulting records. A corrupted file is logged and skipped rather than
// aborting the whole scan (§7 Corrupted).
func (s *Store) LoadTasks(opts LoadOptions) ([]Task, error) {
	entries, err := s.ReadTaskEntries(opts)
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(entries))
	for _, e := range entries {
		tasks = append(tasks, e.Task)
	}
	return tasks, nil
}

// ReadTaskEntries is LoadTasks plus the absolute backing file path each
// record came from, which the Claim Store needs to build a lock path.
func (s *Store) ReadTaskEntries(opts LoadOptions) ([]Entry, error) {
	var entries []Entry

	for _, dir := range directories {
		dirPath := filepath.Join(s.tasksRoot, dir)
		files, err := os.ReadDir(dirPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading directory %s: %w", dir, err)
		}

		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			path := filepath.Join(dirPath, f.Name())
			t, err := readTaskFile(path, dir)
			if err != nil {
				s.logger.Warn("skipping corrupted task file", "path", path, "error", err)
				continue
			}
			if opts.Role != "" && t.Role != opts.Role {
				continue
			}
			if opts.Kind != "" && t.Kind != opts.Kind {
				continue
			}
			entries = append(entries, Entry{Task: *t, Path: path})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Task.CreatedAt.Before(entries[j].Task.CreatedAt)
	})
	return entries, nil
}

// readTaskFile parses a task JSON file and, when its status field is absent
// or unrecognised, infers one from the directory it was found in.
func readTaskFile(path, dir string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &kerrors.CorruptedError{Path: path, Cause: err}
	}
	if !validStatus(t.Status) {
		t.Status = inferStatus(dir)
	}
	return &t, nil
}

func validStatus(s Status) bool {
	switch s {
	case StatusReady, StatusInProgress, StatusAwaitingReview, StatusChangesRequested,
		StatusApproved, StatusBlocked, StatusDone, StatusError:
		return true
	default:
		return false
	}
}

// inferStatus implements the Task Store's directory-as-hint fallback.
func inferStatus(dir string) Status {
	switch dir {
	case "done":
		return StatusDone
	case string(KindReview):
		return StatusAwaitingReview
	default:
		return StatusReady
	}
}

// TasksRoot returns the directory tree this store reads and writes under.
// The Claim Store needs it to sweep stale lock directories at startup.
func (s *Store) TasksRoot() string { return s.tasksRoot }

// ReadTaskAt re-parses a single task file at an absolute path, inferring
// status from its parent directory the same way ReadTaskEntries does. The
// Claim Store uses this to re-read a task immediately after locking it,
// without re-scanning the whole tree.
func (s *Store) ReadTaskAt(path string) (*Task, error) {
	return readTaskFile(path, filepath.Base(filepath.Dir(path)))
}

// pathFor returns the canonical on-disk path for a task: its kind bucket,
// not the status-derived directory (§3 invariant 1 — directory membership
// tracks Kind, Status is the authoritative field read from the file itself).
func (s *Store) pathFor(t *Task) string {
	return filepath.Join(s.tasksRoot, string(t.Kind), t.ID+".json")
}

// WriteTask persists t to its canonical path. Writes are whole-file: a
// direct WriteFile of the full record followed by a best-effort directory
// fsync, with no temp file and no rename (§4.2 Durability). A reader racing
// the write can see a partial file; ReadTaskEntries logs such a file as
// corrupted and skips it.
func (s *Store) WriteTask(t *Task) error {
	t.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling task %s: %w", t.ID, err)
	}
	data = append(data, '\n')

	path := s.pathFor(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing task %s: %w", t.ID, err)
	}
	return fsyncDir(filepath.Dir(path))
}

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return nil // best-effort; not all platforms support directory fsync
	}
	defer f.Close()
	_ = f.Sync()
	return nil
}

// GetTask returns the current on-disk record for id, or a NotFoundError.
func (s *Store) GetTask(id string) (*Entry, error) {
	entries, err := s.ReadTaskEntries(LoadOptions{})
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Task.ID == id {
			return &entries[i], nil
		}
	}
	return nil, &kerrors.NotFoundError{Resource: "task", ID: id}
}

// ApproveTask appends approver to task id's Approvals list if not already
// present, idempotently (§8 round-trip law).
func (s *Store) ApproveTask(id, approver string) (*Task, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, &kerrors.InvalidInputError{Field: "approver", Message: "must not be empty"}
	}
	entry, err := s.GetTask(id)
	if err != nil {
		return nil, err
	}
	t := entry.Task
	found := false
	for _, a := range t.Approvals {
		if a == approver {
			found = true
			break
		}
	}
	if !found {
		t.Approvals = append(t.Approvals, approver)
	}
	if len(t.Approvals) >= t.ApprovalsRequired && t.Status == StatusAwaitingReview {
		t.Status = StatusApproved
	}
	if err := s.WriteTask(&t); err != nil {
		return nil, err
	}
	return &t, nil
}

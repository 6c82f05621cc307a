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

// Package claim implements the Claim Store: atomic, filesystem-mediated
// claim/finalize of a task by at most one worker, with no central broker.
// Directory creation is the mutual-exclusion primitive — atomic "already
// exists" failure is the mutex.
package claim

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/orchkit/kernel/internal/task"
)

// Store wraps a task.Store with the claim/finalize protocol.
type Store struct {
	tasks  *task.Store
	logger *slog.Logger
}

// NewStore builds a Store over tasks and sweeps lock directories older than
// staleAfter. A crashed worker leaves a stale lock behind; scanning at
// startup is the policy this kernel chose over requiring manual recovery
// (spec.md §9 Open Questions — lock cleanup policy).
func NewStore(tasks *task.Store, logger *slog.Logger, staleAfter time.Duration) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{tasks: tasks, logger: logger.With(slog.String("component", "claim"))}
	if staleAfter > 0 {
		if err := s.sweepStaleLocks(staleAfter); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) sweepStaleLocks(staleAfter time.Duration) error {
	root := s.tasks.TasksRoot()
	cutoff := time.Now().Add(-staleAfter)
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort sweep; a transient stat error shouldn't block startup
		}
		if !d.IsDir() || !strings.HasSuffix(path, ".lock") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			s.logger.Warn("sweeping stale lock directory", "path", path, "age", time.Since(info.ModTime()))
			if err := os.RemoveAll(path); err != nil {
				s.logger.Warn("failed to sweep stale lock", "path", path, "error", err)
			}
		}
		return nil
	})
}

// ClaimedTask is the receipt returned by a successful ClaimNext: the task
// record as it stood the instant the claim was won, the role that claimed
// it, and the lock directory path the holder must eventually remove.
type ClaimedTask struct {
	Entry    task.Entry
	Role     task.Role
	LockPath string
}

func lockPathFor(taskPath string) string { return taskPath + ".lock" }

func dependenciesSatisfied(dependsOn []string, byID map[string]task.Task) bool {
	for _, id := range dependsOn {
		dep, ok := byID[id]
		if !ok || !dep.Status.Satisfied() {
			return false
		}
	}
	return true
}

// ClaimNext runs one claim attempt for role: enumerate, filter, sort, then
// try each candidate's lock in order until one is won or the list is
// exhausted. Returns (nil, nil) when there is currently nothing claimable.
func (s *Store) ClaimNext(role task.Role) (*ClaimedTask, error) {
	all, err := s.tasks.ReadTaskEntries(task.LoadOptions{})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]task.Task, len(all))
	for _, e := range all {
		byID[e.Task.ID] = e.Task
	}

	var candidates []task.Entry
	for _, e := range all {
		if e.Task.Role != role || e.Task.Status != task.StatusReady {
			continue
		}
		if !dependenciesSatisfied(e.Task.DependsOn, byID) {
			continue
		}
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Task.CreatedAt.Before(candidates[j].Task.CreatedAt)
	})

	for _, c := range candidates {
		lockPath := lockPathFor(c.Path)
		if err := os.Mkdir(lockPath, 0o755); err != nil {
			if os.IsExist(err) {
				recordConflict(string(role))
				continue
			}
			recordFailure(string(role))
			return nil, fmt.Errorf("creating lock directory %s: %w", lockPath, err)
		}

		fresh, err := s.tasks.ReadTaskAt(c.Path)
		if err != nil {
			os.RemoveAll(lockPath)
			s.logger.Warn("dropping candidate with unreadable task file", "path", c.Path, "error", err)
			continue
		}
		if fresh.Status != task.StatusReady {
			os.RemoveAll(lockPath)
			continue
		}

		fresh.Status = task.StatusInProgress
		fresh.LastClaimedBy = role
		if err := s.tasks.WriteTask(fresh); err != nil {
			os.RemoveAll(lockPath)
			recordFailure(string(role))
			return nil, err
		}

		recordSucceeded(string(role))
		return &ClaimedTask{
			Entry:    task.Entry{Task: *fresh, Path: c.Path},
			Role:     role,
			LockPath: lockPath,
		}, nil
	}

	return nil, nil
}

// Updates carries the finalization fields MarkDone applies. A zero Status
// means "default to done".
type Updates struct {
	Status        task.Status
	Summary       string
	Artifacts     []string
	WorkerOutcome *task.Outcome
}

// ownedClaim re-reads the on-disk record and verifies it still shows
// in_progress under this claim's role. A false return means the claim has
// already been invalidated (e.g. a stale finalization racing a sweep) and
// the caller must silently drop it rather than mutate the record.
func (s *Store) ownedClaim(claim *ClaimedTask) (*task.Task, bool, error) {
	fresh, err := s.tasks.ReadTaskAt(claim.Entry.Path)
	if err != nil {
		return nil, false, err
	}
	if fresh.Status != task.StatusInProgress || fresh.LastClaimedBy != claim.Role {
		return fresh, false, nil
	}
	return fresh, true, nil
}

// MarkDone finalizes a successful execution. If the on-disk record no
// longer shows this claim as the owner, the call is a silent no-op: the
// claim was already dropped (e.g. by a lock sweep) and no stale write
// should land.
func (s *Store) MarkDone(claim *ClaimedTask, updates Updates) error {
	fresh, owned, err := s.ownedClaim(claim)
	if err != nil {
		recordFailure(string(claim.Role))
		return err
	}
	if !owned {
		s.logger.Warn("dropping finalization for claim that is no longer owned", "task_id", claim.Entry.Task.ID, "role", claim.Role)
		return nil
	}

	status := updates.Status
	if status == "" {
		status = task.StatusDone
	}
	fresh.Status = status
	fresh.Summary = updates.Summary
	if updates.Artifacts != nil {
		fresh.Artifacts = updates.Artifacts
	}
	fresh.WorkerOutcome = updates.WorkerOutcome

	if err := s.tasks.WriteTask(fresh); err != nil {
		recordFailure(string(claim.Role))
		return err
	}
	if err := os.RemoveAll(claim.LockPath); err != nil {
		s.logger.Warn("failed to remove lock directory after finalize", "path", claim.LockPath, "error", err)
	}
	return nil
}

// MarkBlocked finalizes a failed execution as status=blocked with message
// as the task's summary. Same ownership check as MarkDone.
func (s *Store) MarkBlocked(claim *ClaimedTask, message string) error {
	fresh, owned, err := s.ownedClaim(claim)
	if err != nil {
		recordFailure(string(claim.Role))
		return err
	}
	if !owned {
		s.logger.Warn("dropping block-finalization for claim that is no longer owned", "task_id", claim.Entry.Task.ID, "role", claim.Role)
		return nil
	}

	fresh.Status = task.StatusBlocked
	fresh.Summary = message
	if err := s.tasks.WriteTask(fresh); err != nil {
		recordFailure(string(claim.Role))
		return err
	}
	if err := os.RemoveAll(claim.LockPath); err != nil {
		s.logger.Warn("failed to remove lock directory after block", "path", claim.LockPath, "error", err)
	}
	return nil
}

// Release drops a claim without mutating the task record, used when a
// worker is cancelled before finishing (spec.md §9: release, not
// markBlocked, on stop).
func (s *Store) Release(claim *ClaimedTask) error {
	if err := os.RemoveAll(claim.LockPath); err != nil {
		return fmt.Errorf("releasing lock %s: %w", claim.LockPath, err)
	}
	recordRelease(string(claim.Role))
	return nil
}

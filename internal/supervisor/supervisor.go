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

// Package supervisor implements the Worker Supervisor: it maintains the
// desired worker set per (worktreeId, role), starting, stopping, and
// restarting Role Workers to match declared RoleConfigs idempotently.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/orchkit/kernel/internal/claim"
	"github.com/orchkit/kernel/internal/config"
	"github.com/orchkit/kernel/internal/executor"
	"github.com/orchkit/kernel/internal/task"
	"github.com/orchkit/kernel/internal/worker"
	"github.com/orchkit/kernel/internal/bus"
)

// maxModelPriority is the boundary behaviour of §8: longer lists are
// truncated, not rejected.
const maxModelPriority = 4

// RoleConfig is one entry of a configure() call.
type RoleConfig struct {
	Role          task.Role
	Count         int
	ModelPriority []string
}

// RunContext is the runtime wiring a worktree's workers need, registered via
// RegisterContext before Configure can start anything.
type RunContext struct {
	WorktreePath string
	RunRoot      string
	RunID        string
	Claims       *claim.Store
	Bus          *bus.Bus
	Cfg          *config.Config
	Factory      ExecutorFactory
}

// ExecutorFactory produces the Capability a worker of role should run.
// Supervisor.DefaultFactory implements the role → executor binding of §4.6.
type ExecutorFactory func(role task.Role, rc RunContext) executor.Capability

// DefaultFactory returns the implementer executor (lock-wired to the run)
// for "implementer", the tester executor for "tester", the reviewer
// executor for "reviewer", and the generic CLI executor otherwise.
func DefaultFactory(role task.Role, rc RunContext) executor.Capability {
	cli := executor.GenericCLI{Binary: rc.Cfg.CLIBinary, Args: rc.Cfg.CLIArgs}
	switch role {
	case task.RoleImplementer:
		return executor.Implementer{CLI: cli}
	case task.RoleTester:
		return executor.Tester{Command: rc.Cfg.TestCommand}
	case task.RoleReviewer:
		return executor.Reviewer{CLI: cli}
	default:
		return cli
	}
}

type workerSlot struct {
	w     *worker.Worker
	model string
}

// Supervisor owns every worktree's worker set.
type Supervisor struct {
	mu       sync.Mutex
	contexts map[string]RunContext
	workers  map[string]map[task.Role][]*workerSlot // worktreeId -> role -> ordered by index
	logger   *slog.Logger
}

// New creates an empty Supervisor.
func New(logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		contexts: make(map[string]RunContext),
		workers:  make(map[string]map[task.Role][]*workerSlot),
		logger:   logger.With(slog.String("component", "supervisor")),
	}
}

// RegisterContext sets or replaces the runtime context for worktreeId.
func (s *Supervisor) RegisterContext(worktreeID string, rc RunContext) {
	if rc.Factory == nil {
		rc.Factory = DefaultFactory
	}
	s.mu.Lock()
	s.contexts[worktreeID] = rc
	s.mu.Unlock()
}

func clampCount(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func truncatePriority(models []string) []string {
	if len(models) <= maxModelPriority {
		return models
	}
	return models[:maxModelPriority]
}

func modelFor(priority []string, index int, fallback string) string {
	if index-1 < len(priority) && priority[index-1] != "" {
		return priority[index-1]
	}
	return fallback
}

// Configure reconciles worktreeId's worker set to match configs. Existing
// workers whose (role, index, model) already match are left untouched;
// mismatched workers are stopped and replaced; workers beyond the new count
// are stopped and dropped. Starts/stops across roles run concurrently.
func (s *Supervisor) Configure(ctx context.Context, worktreeID string, configs []RoleConfig) error {
	s.mu.Lock()
	rc, ok := s.contexts[worktreeID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: no context registered for worktree %s", worktreeID)
	}
	byRole, ok := s.workers[worktreeID]
	if !ok {
		byRole = make(map[task.Role][]*workerSlot)
		s.workers[worktreeID] = byRole
	}
	s.mu.Unlock()

	wanted := make(map[task.Role]RoleConfig, len(configs))
	for _, c := range configs {
		c.Count = clampCount(c.Count)
		c.ModelPriority = truncatePriority(c.ModelPriority)
		wanted[c.Role] = c
	}

	roles := make(map[task.Role]struct{})
	s.mu.Lock()
	for r := range byRole {
		roles[r] = struct{}{}
	}
	s.mu.Unlock()
	for r := range wanted {
		roles[r] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	for role := range roles {
		role := role
		g.Go(func() error {
			return s.reconcileRole(gctx, worktreeID, role, wanted[role], rc)
		})
	}
	return g.Wait()
}

func (s *Supervisor) reconcileRole(ctx context.Context, worktreeID string, role task.Role, want RoleConfig, rc RunContext) error {
	fallback := ""
	if len(want.ModelPriority) > 0 {
		fallback = want.ModelPriority[0]
	}

	s.mu.Lock()
	existing := append([]*workerSlot(nil), s.workers[worktreeID][role]...)
	s.mu.Unlock()

	next := make([]*workerSlot, 0, want.Count)
	for index := 1; index <= want.Count; index++ {
		desiredModel := modelFor(want.ModelPriority, index, fallback)
		if index-1 < len(existing) && existing[index-1] != nil && existing[index-1].model == desiredModel {
			next = append(next, existing[index-1])
			continue
		}
		if index-1 < len(existing) && existing[index-1] != nil {
			existing[index-1].w.Stop()
		}
		id := fmt.Sprintf("%s-%d", role, index)
		depth := rc.Cfg.ReasoningFor(string(role))
		execCap := rc.Factory(role, rc)
		w := worker.New(id, role, index, desiredModel, depth, rc.Claims, execCap, rc.Bus,
			rc.Cfg.PollInterval, rc.Cfg.HeartbeatInterval, worktreeID, rc.WorktreePath, rc.RunRoot, rc.RunID, s.logger)
		w.Start(context.WithoutCancel(ctx))
		next = append(next, &workerSlot{w: w, model: desiredModel})
	}
	for i := want.Count; i < len(existing); i++ {
		if existing[i] != nil {
			existing[i].w.Stop()
		}
	}

	s.mu.Lock()
	if s.workers[worktreeID] == nil {
		s.workers[worktreeID] = make(map[task.Role][]*workerSlot)
	}
	s.workers[worktreeID][role] = next
	s.mu.Unlock()
	return nil
}

// StopRoles configures every role in roles to count=0.
func (s *Supervisor) StopRoles(ctx context.Context, worktreeID string, roles []task.Role) error {
	configs := make([]RoleConfig, len(roles))
	for i, r := range roles {
		configs[i] = RoleConfig{Role: r, Count: 0}
	}
	return s.Configure(ctx, worktreeID, configs)
}

// StopAll stops every currently declared role for worktreeID.
func (s *Supervisor) StopAll(ctx context.Context, worktreeID string) error {
	s.mu.Lock()
	roles := make([]task.Role, 0, len(s.workers[worktreeID]))
	for r := range s.workers[worktreeID] {
		roles = append(roles, r)
	}
	s.mu.Unlock()
	return s.StopRoles(ctx, worktreeID, roles)
}

// GetStatuses returns a snapshot of every currently running worker for
// worktreeID.
func (s *Supervisor) GetStatuses(worktreeID string) []worker.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []worker.Status
	for _, slots := range s.workers[worktreeID] {
		for _, slot := range slots {
			if slot != nil {
				out = append(out, slot.w.Status())
			}
		}
	}
	return out
}

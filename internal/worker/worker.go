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

// Package worker implements the Role Worker: one (role, index) slot that
// repeatedly claims a task, runs it through an Executor, persists the
// result, and publishes its state to the event bus.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/orchkit/kernel/internal/bus"
	"github.com/orchkit/kernel/internal/claim"
	"github.com/orchkit/kernel/internal/config"
	"github.com/orchkit/kernel/internal/executor"
	"github.com/orchkit/kernel/internal/outcome"
	"github.com/orchkit/kernel/internal/task"
	"github.com/orchkit/kernel/internal/tracing"
)

// State is where a worker sits in its own lifecycle.
type State string

const (
	StateWaiting State = "waiting"
	StateWorking State = "working"
	StateStopped State = "stopped"
	StateError   State = "error"
)

// Status is the public snapshot of a worker, published on the bus and
// returned by the Worker Supervisor's getStatuses.
type Status struct {
	ID              string
	Role            task.Role
	State           State
	Description     string
	Model           string
	ReasoningDepth  config.ReasoningDepth
	LogTail         string
	StartedAt       time.Time
	UpdatedAt       time.Time
	LastHeartbeatAt time.Time
}

// Worker is one role/index slot.
type Worker struct {
	ID             string
	Role           task.Role
	Index          int
	Model          string
	ReasoningDepth config.ReasoningDepth

	WorktreeID   string
	WorktreePath string
	RunRoot      string
	RunID        string

	claims   *claim.Store
	exec     executor.Capability
	bus      *bus.Bus
	logger   *slog.Logger
	limiter  *rate.Limiter
	heartbeat time.Duration

	mu        sync.RWMutex
	state     State
	desc      string
	startedAt time.Time
	updatedAt time.Time
	lastBeat  time.Time
	tail      outcome.Tail

	stopOnce sync.Once
	cancel   context.CancelFunc
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a Worker in state waiting whose loop is not yet running.
// Callers call Start to begin its loop.
func New(id string, role task.Role, index int, model string, depth config.ReasoningDepth,
	claims *claim.Store, exec executor.Capability, b *bus.Bus, pollInterval, heartbeatInterval time.Duration,
	worktreeID, worktreePath, runRoot, runID string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		ID: id, Role: role, Index: index, Model: model, ReasoningDepth: depth,
		WorktreeID: worktreeID, WorktreePath: worktreePath, RunRoot: runRoot, RunID: runID,
		claims: claims, exec: exec, bus: b,
		logger:    logger.With(slog.String("worker_id", id), slog.String("role", string(role))),
		limiter:   rate.NewLimiter(rate.Every(pollInterval), 1),
		heartbeat: heartbeatInterval,
		state:     StateWaiting,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Status returns a snapshot safe for concurrent publication.
func (w *Worker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Status{
		ID: w.ID, Role: w.Role, State: w.state, Description: w.desc,
		Model: w.Model, ReasoningDepth: w.ReasoningDepth, LogTail: w.tail.String(),
		StartedAt: w.startedAt, UpdatedAt: w.updatedAt, LastHeartbeatAt: w.lastBeat,
	}
}

func (w *Worker) setState(state State, desc string) {
	w.mu.Lock()
	w.state = state
	w.desc = desc
	w.updatedAt = time.Now()
	w.mu.Unlock()
	w.publishStatus()
}

func (w *Worker) publishStatus() {
	if w.bus == nil {
		return
	}
	w.bus.Publish(bus.Event{Kind: bus.KindWorkersUpdated, WorktreeID: w.WorktreeID, Payload: w.Status()})
}

// Start runs the claim loop in its own goroutine until Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	w.startedAt = time.Now()
	w.mu.Unlock()
	go w.loop(ctx)
}

// Stop cancels any in-flight execution, waits for the loop to exit, and
// publishes state=stopped. Idempotent.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	<-w.doneCh
	w.setState(StateStopped, "stopped")
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return
		}

		claimed, err := w.claims.ClaimNext(w.Role)
		if err != nil {
			w.logger.Warn("claim attempt failed", "error", err)
			continue
		}
		if claimed == nil {
			continue
		}

		w.runClaim(ctx, claimed)
	}
}

func (w *Worker) runClaim(ctx context.Context, claimed *claim.ClaimedTask) {
	w.setState(StateWorking, fmt.Sprintf("Working on %s", claimed.Entry.Task.Title))

	execCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.runHeartbeat(execCtx, heartbeatDone)

	ectx := executor.Context{
		WorktreePath: w.WorktreePath,
		RunRoot:      w.RunRoot,
		RunID:        w.RunID,
		Task:         claimed.Entry.Task,
		Role:         w.Role,
		Model:        w.Model,
		OnLog:        w.onLog,
	}

	spanCtx, endSpan := tracing.StartTaskSpan(execCtx, claimed.Entry.Task.ID, string(w.Role))
	result, err := w.exec.Execute(spanCtx, ectx)
	cancel()
	<-heartbeatDone

	if err != nil {
		endSpan("", err)
		select {
		case <-w.stopCh:
			if relErr := w.claims.Release(claimed); relErr != nil {
				w.logger.Warn("release after stop failed", "error", relErr)
			}
			return
		default:
		}
		w.setState(StateError, err.Error())
		if mbErr := w.claims.MarkBlocked(claimed, err.Error()); mbErr != nil {
			w.logger.Warn("mark-blocked failed", "error", mbErr)
		}
		w.setState(StateWaiting, "")
		return
	}

	outcomeStatus := ""
	if result.Outcome != nil {
		outcomeStatus = result.Outcome.Status
	}
	endSpan(outcomeStatus, nil)

	persisted, persistErr := w.persistArtifacts(claimed.Entry.Task.ID, result.Artifacts, result.Outcome)
	if persistErr != nil {
		w.setState(StateError, persistErr.Error())
		if mbErr := w.claims.MarkBlocked(claimed, persistErr.Error()); mbErr != nil {
			w.logger.Warn("mark-blocked after persist failure failed", "error", mbErr)
		}
		w.setState(StateWaiting, "")
		return
	}

	statusOverride := statusOverrideFor(result.Outcome, w.Role)
	if err := w.claims.MarkDone(claimed, claim.Updates{
		Status:        statusOverride,
		Summary:       result.Summary,
		Artifacts:     persisted,
		WorkerOutcome: result.Outcome,
	}); err != nil {
		w.logger.Warn("mark-done failed", "error", err)
	}
	w.setState(StateWaiting, "")
}

// statusOverrideFor implements the Role Worker's outcome → status mapping.
// A zero Status means no override (the default "done" applies).
func statusOverrideFor(outcome *task.Outcome, role task.Role) task.Status {
	if outcome == nil {
		return ""
	}
	switch outcome.Status {
	case "blocked":
		return task.StatusBlocked
	case "changes_requested":
		return task.StatusChangesRequested
	case "ok":
		if role == task.RoleReviewer {
			return task.StatusApproved
		}
	}
	return ""
}

func (w *Worker) runHeartbeat(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			w.lastBeat = time.Now()
			w.mu.Unlock()
			w.publishStatus()
		}
	}
}

func (w *Worker) onLog(chunk, source string) {
	w.mu.Lock()
	w.tail.Append(chunk)
	w.mu.Unlock()
	if w.bus == nil {
		return
	}
	w.bus.Publish(bus.Event{
		Kind:       bus.KindWorkerLog,
		WorktreeID: w.WorktreeID,
		Payload:    WorkerLog{WorkerID: w.ID, Source: source, Chunk: chunk},
	})
}

// WorkerLog is the payload of a worker-log bus event.
type WorkerLog struct {
	WorkerID string
	Source   string
	Chunk    string
}

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

package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orchkit/kernel/internal/bus"
	"github.com/orchkit/kernel/internal/claim"
	"github.com/orchkit/kernel/internal/config"
	"github.com/orchkit/kernel/internal/supervisor"
	"github.com/orchkit/kernel/internal/task"
	"github.com/orchkit/kernel/internal/watch"
	"github.com/orchkit/kernel/internal/worker"
	kerrors "github.com/orchkit/kernel/pkg/errors"
)

// ResolveWorktreePath looks up the absolute path for a worktree id. The
// shell's worktree registry is the real implementation; the core only
// consumes this function (§6 "external collaborator the core consumes").
type ResolveWorktreePath func(worktreeID string) (string, bool)

type runState struct {
	mu                    sync.RWMutex
	run                   Run
	store                 *task.Store
	claims                *claim.Store
	watcher               *watch.Watcher
	cancelWatch           context.CancelFunc
	tasks                 []task.Task
	implementerLockHolder string
	workerConfigs         map[task.Role]supervisor.RoleConfig
}

// Coordinator owns every worktree's Run state exclusively.
type Coordinator struct {
	mu         sync.RWMutex
	runs       map[string]*runState
	bus        *bus.Bus
	supervisor *supervisor.Supervisor
	cfg        *config.Config
	resolve    ResolveWorktreePath
	logger     *slog.Logger

	unsubscribe bus.Unsubscribe
	stopCleanup context.CancelFunc
}

// New builds a Coordinator. Callers should defer Close() to unsubscribe from
// the bus. A cleanup loop started with StartCleanupLoop is stopped only by
// the func StartCleanupLoop returns.
func New(b *bus.Bus, sup *supervisor.Supervisor, cfg *config.Config, resolve ResolveWorktreePath, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		runs:       make(map[string]*runState),
		bus:        b,
		supervisor: sup,
		cfg:        cfg,
		resolve:    resolve,
		logger:     logger.With(slog.String("component", "coordinator")),
	}
	c.unsubscribe = b.Subscribe(c.onBusEvent)
	return c
}

// Close unsubscribes from the bus. StartCleanupLoop does not set
// stopCleanup, so Close does not stop a running cleanup loop; the func
// returned by StartCleanupLoop does.
func (c *Coordinator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.stopCleanup != nil {
		c.stopCleanup()
	}
}

// onBusEvent tracks the implementer lock holder from workers-updated events,
// the one piece of cross-component wiring the Coordinator performs passively
// (spec.md §4.7, §9: one-way dependency, Coordinator subscribes to the Bus).
func (c *Coordinator) onBusEvent(e bus.Event) {
	if e.Kind != bus.KindWorkersUpdated {
		return
	}
	status, ok := e.Payload.(worker.Status)
	if !ok || status.Role != task.RoleImplementer {
		return
	}

	c.mu.RLock()
	rs, ok := c.runs[e.WorktreeID]
	c.mu.RUnlock()
	if !ok {
		return
	}

	rs.mu.Lock()
	switch status.State {
	case worker.StateWorking:
		rs.implementerLockHolder = status.ID
	case worker.StateWaiting, worker.StateStopped, worker.StateError:
		if rs.implementerLockHolder == status.ID {
			rs.implementerLockHolder = ""
		}
	}
	rs.mu.Unlock()
}

func defaultWorkerConfigs() map[task.Role]supervisor.RoleConfig {
	roles := []task.Role{
		task.RoleAnalystA, task.RoleAnalystB, task.RoleConsensusBuilder,
		task.RoleSplitter, task.RoleImplementer, task.RoleTester, task.RoleReviewer,
	}
	out := make(map[task.Role]supervisor.RoleConfig, len(roles))
	for _, r := range roles {
		out[r] = supervisor.RoleConfig{Role: r, Count: 1}
	}
	return out
}

// StartRun resolves worktreeID, allocates a new run id and its paths, stops
// any prior watcher for this worktree, seeds analysis tasks, publishes the
// initial snapshot and run-status, and starts the file watcher.
func (c *Coordinator) StartRun(ctx context.Context, worktreeID string, briefing Briefing) (*RunSummary, error) {
	path, ok := c.resolve(worktreeID)
	if !ok {
		return nil, &kerrors.NotFoundError{Resource: "worktree", ID: worktreeID}
	}
	if strings.TrimSpace(briefing.Description) == "" {
		return nil, &kerrors.InvalidInputError{Field: "description", Message: "must not be empty"}
	}

	mode := briefing.Mode
	if mode == "" {
		mode = task.ModeImplementFeature
	}
	analysisCount := briefing.AnalysisCount
	if analysisCount <= 0 {
		analysisCount = c.cfg.AnalysisCount
	}
	bugHunterCount := briefing.BugHunterCount
	if bugHunterCount <= 0 {
		bugHunterCount = c.cfg.BugHunterCount
	}

	c.stopWatcherLocked(worktreeID)

	runID := uuid.NewString()
	runRoot := filepath.Join(path, "codex-runs", runID)
	tasksRoot := filepath.Join(runRoot, "tasks")
	conversationRoot := filepath.Join(runRoot, "conversations")

	store, err := task.NewStore(tasksRoot, conversationRoot, c.logger)
	if err != nil {
		return nil, err
	}
	claims, err := claim.NewStore(store, c.logger, c.cfg.LockSweepThreshold)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	run := Run{
		ID: runID, WorktreeID: worktreeID, Description: briefing.Description, Guidance: briefing.Guidance,
		Mode: mode, Status: StatusRunning, CreatedAt: now, UpdatedAt: now,
		WorktreePath: path, RunRoot: runRoot, TasksRoot: tasksRoot, ConversationRoot: conversationRoot,
	}

	rs := &runState{run: run, store: store, claims: claims, workerConfigs: defaultWorkerConfigs()}
	c.mu.Lock()
	c.runs[worktreeID] = rs
	c.mu.Unlock()

	rc := task.RunContext{RunID: runID, Description: briefing.Description, Guidance: briefing.Guidance,
		Mode: mode, AnalysisCount: analysisCount, BugHunterCount: bugHunterCount}
	if _, err := store.EnsureAnalysisSeeds(rc); err != nil {
		return nil, err
	}

	c.supervisor.RegisterContext(worktreeID, supervisor.RunContext{
		WorktreePath: path, RunRoot: runRoot, RunID: runID,
		Claims: claims, Bus: c.bus, Cfg: c.cfg, Factory: supervisor.DefaultFactory,
	})

	if err := c.refreshTasks(worktreeID, rc); err != nil {
		return nil, err
	}
	c.publishRunStatus(worktreeID)
	c.publishSnapshot(worktreeID)

	if err := c.startWatcher(worktreeID, tasksRoot, rc); err != nil {
		return nil, err
	}

	if briefing.AutoStartWorkers {
		if err := c.StartWorkers(ctx, worktreeID); err != nil {
			return nil, err
		}
	}

	return &RunSummary{Run: run}, nil
}

func (c *Coordinator) startWatcher(worktreeID, tasksRoot string, rc task.RunContext) error {
	w, err := watch.New(tasksRoot, task.Directories(), c.logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.RLock()
	rs := c.runs[worktreeID]
	c.mu.RUnlock()
	rs.mu.Lock()
	rs.watcher = w
	rs.cancelWatch = cancel
	rs.mu.Unlock()

	go func() {
		_ = w.Run(ctx, watch.DefaultConfig(), func() {
			if err := c.refreshTasks(worktreeID, rc); err != nil {
				c.logger.Warn("refreshing tasks after watch event failed", "worktree_id", worktreeID, "error", err)
				return
			}
			c.publishSnapshot(worktreeID)
		})
	}()
	return nil
}

func (c *Coordinator) stopWatcherLocked(worktreeID string) {
	c.mu.RLock()
	rs, ok := c.runs[worktreeID]
	c.mu.RUnlock()
	if !ok {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.cancelWatch != nil {
		rs.cancelWatch()
		rs.cancelWatch = nil
	}
	if rs.watcher != nil {
		rs.watcher.Close()
		rs.watcher = nil
	}
}

// refreshTasks reloads the task set, runs workflow expansion, and caches
// the result on the run state.
func (c *Coordinator) refreshTasks(worktreeID string, rc task.RunContext) error {
	rsCopy, err := c.getRunState(worktreeID)
	if err != nil {
		return err
	}
	tasks, _, err := rsCopy.store.EnsureWorkflowExpansion(rc)
	if err != nil {
		return err
	}
	rsCopy.mu.Lock()
	rsCopy.tasks = tasks
	rsCopy.run.UpdatedAt = time.Now()
	rsCopy.mu.Unlock()
	return nil
}

func (c *Coordinator) getRunState(worktreeID string) (*runState, error) {
	c.mu.RLock()
	rs, ok := c.runs[worktreeID]
	c.mu.RUnlock()
	if !ok {
		return nil, &kerrors.NotFoundError{Resource: "run", ID: worktreeID}
	}
	return rs, nil
}

func (c *Coordinator) runContextFor(rs *runState) task.RunContext {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return task.RunContext{RunID: rs.run.ID, Description: rs.run.Description, Guidance: rs.run.Guidance, Mode: rs.run.Mode}
}

// SubmitFollowUp updates the run's description/guidance and re-marks it
// running.
func (c *Coordinator) SubmitFollowUp(worktreeID, description, guidance string) (*RunSummary, error) {
	rs, err := c.getRunState(worktreeID)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	rs.run.Description = description
	rs.run.Guidance = guidance
	rs.run.Status = StatusRunning
	rs.run.UpdatedAt = time.Now()
	run := rs.run
	rs.mu.Unlock()

	c.publishRunStatus(worktreeID)
	c.publishSnapshot(worktreeID)
	return &RunSummary{Run: run}, nil
}

// ApproveTask requires a non-empty approver, delegates to the Task Store,
// re-runs workflow expansion, and republishes the snapshot.
func (c *Coordinator) ApproveTask(worktreeID, taskID, approver string) error {
	rs, err := c.getRunState(worktreeID)
	if err != nil {
		return err
	}
	if _, err := rs.store.ApproveTask(taskID, approver); err != nil {
		return err
	}
	if err := c.refreshTasks(worktreeID, c.runContextFor(rs)); err != nil {
		return err
	}
	c.publishSnapshot(worktreeID)
	return nil
}

// AddComment requires a non-empty message, appends a conversation entry, and
// publishes conversation-appended.
func (c *Coordinator) AddComment(worktreeID string, input CommentInput) error {
	rs, err := c.getRunState(worktreeID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(input.Message) == "" {
		return &kerrors.InvalidInputError{Field: "message", Message: "must not be empty"}
	}
	if err := rs.store.AppendConversationEntry(input.TaskID, input.Author, input.Message); err != nil {
		return err
	}
	c.bus.Publish(bus.Event{
		Kind:       bus.KindConversationAppended,
		WorktreeID: worktreeID,
		Payload:    ConversationAppended{TaskID: input.TaskID, Author: input.Author, Message: input.Message},
	})
	return nil
}

// GetSnapshot returns a deep copy of worktreeID's run, tasks, workers, and
// metadata.
func (c *Coordinator) GetSnapshot(worktreeID string) (*Snapshot, error) {
	rs, err := c.getRunState(worktreeID)
	if err != nil {
		return nil, err
	}
	return c.snapshotFor(worktreeID, rs), nil
}

func (c *Coordinator) snapshotFor(worktreeID string, rs *runState) *Snapshot {
	rs.mu.RLock()
	run := rs.run
	tasks := append([]task.Task(nil), rs.tasks...)
	holder := rs.implementerLockHolder
	configs := make([]supervisor.RoleConfig, 0, len(rs.workerConfigs))
	for _, cfg := range rs.workerConfigs {
		configs = append(configs, cfg)
	}
	rs.mu.RUnlock()

	return &Snapshot{
		Run:                   run,
		Tasks:                 tasks,
		Workers:               c.supervisor.GetStatuses(worktreeID),
		ImplementerLockHolder: holder,
		WorkerConfigs:         configs,
	}
}

func (c *Coordinator) publishSnapshot(worktreeID string) {
	rs, err := c.getRunState(worktreeID)
	if err != nil {
		return
	}
	c.bus.Publish(bus.Event{Kind: bus.KindSnapshot, WorktreeID: worktreeID, Payload: c.snapshotFor(worktreeID, rs)})
	c.bus.Publish(bus.Event{Kind: bus.KindTasksUpdated, WorktreeID: worktreeID, Payload: rs.tasks})
}

func (c *Coordinator) publishRunStatus(worktreeID string) {
	rs, err := c.getRunState(worktreeID)
	if err != nil {
		return
	}
	rs.mu.RLock()
	run := rs.run
	rs.mu.RUnlock()
	c.bus.Publish(bus.Event{Kind: bus.KindRunStatus, WorktreeID: worktreeID, Payload: run})
}

// GetWorkerConfigurations returns the desired counts/priorities currently
// declared for worktreeID.
func (c *Coordinator) GetWorkerConfigurations(worktreeID string) ([]supervisor.RoleConfig, error) {
	rs, err := c.getRunState(worktreeID)
	if err != nil {
		return nil, err
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]supervisor.RoleConfig, 0, len(rs.workerConfigs))
	for _, cfg := range rs.workerConfigs {
		out = append(out, cfg)
	}
	return out, nil
}

// UpdateWorkerConfigurations clamps counts to >=0, truncates model
// priorities to 4 entries, applies the new desired state to the Worker
// Supervisor, and republishes a snapshot.
func (c *Coordinator) UpdateWorkerConfigurations(ctx context.Context, worktreeID string, configs []supervisor.RoleConfig) error {
	rs, err := c.getRunState(worktreeID)
	if err != nil {
		return err
	}

	normalized := make([]supervisor.RoleConfig, len(configs))
	for i, cfg := range configs {
		if cfg.Count < 0 {
			cfg.Count = 0
		}
		if len(cfg.ModelPriority) > 4 {
			cfg.ModelPriority = cfg.ModelPriority[:4]
		}
		normalized[i] = cfg
	}

	if err := c.supervisor.Configure(ctx, worktreeID, normalized); err != nil {
		return err
	}

	rs.mu.Lock()
	for _, cfg := range normalized {
		rs.workerConfigs[cfg.Role] = cfg
	}
	rs.mu.Unlock()

	c.publishSnapshot(worktreeID)
	return nil
}

// StartWorkers applies worktreeID's currently declared worker configuration.
func (c *Coordinator) StartWorkers(ctx context.Context, worktreeID string) error {
	rs, err := c.getRunState(worktreeID)
	if err != nil {
		return err
	}
	return c.UpdateWorkerConfigurations(ctx, worktreeID, c.configSlice(rs))
}

// StopWorkers stops every role for worktreeID without forgetting the
// declared configuration (a subsequent StartWorkers restores it).
func (c *Coordinator) StopWorkers(ctx context.Context, worktreeID string) error {
	return c.supervisor.StopAll(ctx, worktreeID)
}

func (c *Coordinator) configSlice(rs *runState) []supervisor.RoleConfig {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]supervisor.RoleConfig, 0, len(rs.workerConfigs))
	for _, cfg := range rs.workerConfigs {
		out = append(out, cfg)
	}
	return out
}

// StopRun stops the watcher and all workers for worktreeID, marking the run
// stopped, without discarding its state (a fresh StartRun still replaces
// it).
func (c *Coordinator) StopRun(ctx context.Context, worktreeID string) error {
	rs, err := c.getRunState(worktreeID)
	if err != nil {
		return err
	}
	c.stopWatcherLocked(worktreeID)
	if err := c.supervisor.StopAll(ctx, worktreeID); err != nil {
		return err
	}
	rs.mu.Lock()
	rs.run.Status = StatusStopped
	rs.run.UpdatedAt = time.Now()
	rs.mu.Unlock()
	c.publishRunStatus(worktreeID)
	return nil
}

// HandleWorktreeRemoved stops the watcher and workers, then deletes all run
// state for worktreeID.
func (c *Coordinator) HandleWorktreeRemoved(ctx context.Context, worktreeID string) error {
	c.stopWatcherLocked(worktreeID)
	if err := c.supervisor.StopAll(ctx, worktreeID); err != nil {
		c.logger.Warn("stopping workers during worktree removal failed", "worktree_id", worktreeID, "error", err)
	}
	c.mu.Lock()
	delete(c.runs, worktreeID)
	c.mu.Unlock()
	return nil
}

// Dispose tears down every run the Coordinator currently holds. Intended
// for process shutdown.
func (c *Coordinator) Dispose(ctx context.Context) error {
	c.mu.RLock()
	worktreeIDs := make([]string, 0, len(c.runs))
	for id := range c.runs {
		worktreeIDs = append(worktreeIDs, id)
	}
	c.mu.RUnlock()

	var firstErr error
	for _, id := range worktreeIDs {
		if err := c.HandleWorktreeRemoved(ctx, id); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("disposing worktree %s: %w", id, err)
		}
	}
	c.Close()
	return firstErr
}

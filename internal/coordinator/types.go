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

// Package coordinator implements the Coordinator: it owns per-worktree run
// state exclusively, seeds initial tasks, watches task files, and drives
// workflow expansion, publishing snapshots to the event bus as state
// changes.
package coordinator

import (
	"time"

	"github.com/orchkit/kernel/internal/supervisor"
	"github.com/orchkit/kernel/internal/task"
	"github.com/orchkit/kernel/internal/worker"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
)

// Briefing is the caller-supplied input to startRun/submitFollowUp.
type Briefing struct {
	Description      string
	Guidance         string
	Mode             task.Mode
	AutoStartWorkers bool
	AnalysisCount    int
	BugHunterCount   int
}

// Run is the Coordinator's view of one pipeline invocation.
type Run struct {
	ID               string
	WorktreeID       string
	Description      string
	Guidance         string
	Mode             task.Mode
	Status           Status
	CreatedAt        time.Time
	UpdatedAt        time.Time
	WorktreePath     string
	RunRoot          string
	TasksRoot        string
	ConversationRoot string
}

// RunSummary is what startRun/submitFollowUp hand back to the caller.
type RunSummary struct {
	Run Run
}

// Snapshot is the deep-copied state getSnapshot returns: run, tasks,
// workers, and the metadata the shell needs (implementer lock holder,
// desired worker counts and model priorities).
type Snapshot struct {
	Run                   Run
	Tasks                 []task.Task
	Workers               []worker.Status
	ImplementerLockHolder string
	WorkerConfigs         []supervisor.RoleConfig
}

// CommentInput is addComment's payload.
type CommentInput struct {
	TaskID  string
	Author  string
	Message string
}

// ConversationAppended is the payload of a conversation-appended bus event.
type ConversationAppended struct {
	TaskID  string
	Author  string
	Message string
}

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

// Package executor runs one task to completion. Every variant streams its
// child process's output through a caller-supplied log sink and returns a
// summary, any artifacts to persist, and an optional structured outcome.
package executor

import (
	"context"

	"github.com/orchkit/kernel/internal/task"
)

// Artifact is a file an executor wants written into the run directory. Path
// is relative to runRoot (not to the worktree); the Role Worker resolves and
// bounds-checks it against runRoot before writing (§4.5).
type Artifact struct {
	Path     string
	Contents string
}

// Result is what an executor produces for a finished task.
type Result struct {
	Summary   string
	Artifacts []Artifact
	Outcome   *task.Outcome
}

// Context is everything an executor needs to run one task.
type Context struct {
	WorktreePath string
	RunRoot      string
	RunID        string
	Task         task.Task
	Role         task.Role
	Model        string
	OnLog        func(chunk, source string)
}

// Capability runs ctx.Task to completion or returns an error. Implementations
// must terminate their child process and stop any pending I/O as soon as ctx
// is cancelled.
type Capability interface {
	Execute(ctx context.Context, ectx Context) (*Result, error)
}

func logf(onLog func(chunk, source string), source, chunk string) {
	if onLog != nil && chunk != "" {
		onLog(chunk, source)
	}
}

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

package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/orchkit/kernel/internal/task"
)

// Implementer wraps GenericCLI with the per-run implementer lock: at most
// one implementer task may mutate the worktree at a time (§4.4, §5).
type Implementer struct {
	CLI GenericCLI
}

func implementerLockPath(runRoot string) string {
	return filepath.Join(runRoot, "locks", "implementer.lock")
}

// acquireImplementerLock creates the lock file with O_CREATE|O_EXCL
// semantics — the same atomicity argument as the Claim Store's lock
// directories, applied to a single-file sentinel since there is exactly one
// lock per run rather than one per task.
func acquireImplementerLock(runRoot string) (*os.File, error) {
	path := implementerLockPath(runRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating locks directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("acquiring implementer lock: %w", err)
	}
	return f, nil
}

func releaseImplementerLock(f *os.File, runRoot string) {
	f.Close()
	os.Remove(implementerLockPath(runRoot))
}

// Execute holds the implementer lock for the duration of the CLI run, then
// captures `git diff` in the worktree as the change artifact.
func (e Implementer) Execute(ctx context.Context, ectx Context) (*Result, error) {
	lock, err := acquireImplementerLock(ectx.RunRoot)
	if err != nil {
		return nil, err
	}
	defer releaseImplementerLock(lock, ectx.RunRoot)

	result, err := e.CLI.Execute(ctx, ectx)
	if err != nil {
		return nil, err
	}

	diff, err := exec.CommandContext(ctx, "git", "-C", ectx.WorktreePath, "diff").Output()
	if err != nil {
		return nil, fmt.Errorf("capturing git diff: %w", err)
	}
	if len(diff) > 0 {
		result.Artifacts = append(result.Artifacts, Artifact{
			Path:     fmt.Sprintf("artifacts/%s.diff", ectx.Task.ID),
			Contents: string(diff),
		})
	}
	if result.Outcome == nil {
		result.Outcome = &task.Outcome{Status: "ok", Summary: result.Summary}
	}
	return result, nil
}

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
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/orchkit/kernel/internal/task"
)

// Tester runs a shell command (default `npm test`) in the worktree. A
// non-zero exit is an executor error; the captured combined output is the
// artifact on success.
type Tester struct {
	Command string
}

func (e Tester) Execute(ctx context.Context, ectx Context) (*Result, error) {
	command := e.Command
	if command == "" {
		command = "npm test"
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = ectx.WorktreePath

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	var log strings.Builder
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting test command: %w", err)
	}

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text() + "\n"
		logf(ectx.OnLog, "stdout", line)
		log.WriteString(line)
	}

	runErr := cmd.Wait()
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("test command %q failed: %w", command, runErr)
	}

	return &Result{
		Summary:   "tests passed",
		Artifacts: []Artifact{{Path: fmt.Sprintf("artifacts/%s.test.log", ectx.Task.ID), Contents: log.String()}},
		Outcome:   &task.Outcome{Status: "ok", Summary: "tests passed"},
	}, nil
}

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
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/orchkit/kernel/internal/outcome"
	"github.com/orchkit/kernel/internal/task"
)

// GenericCLI spawns the configured AI CLI for analyst/consensus/splitter
// roles (and backs the Reviewer executor, which is behaviourally identical
// — only the factory binding in the Worker Supervisor differs).
type GenericCLI struct {
	Binary string
	Args   []string // rendered by the caller; {{.Prompt}} etc already substituted
}

// Execute spawns the CLI with Args, feeding task.Prompt on stdin, and
// streams stdout/stderr line by line through outcome.NormalizeLine into
// ectx.OnLog. The accumulated agent_message text is the task's summary; a
// trailing outcome event, if any, becomes the structured outcome.
func (g GenericCLI) Execute(ctx context.Context, ectx Context) (*Result, error) {
	cmd := exec.CommandContext(ctx, g.Binary, g.Args...)
	cmd.Dir = ectx.WorktreePath
	cmd.Stdin = strings.NewReader(ectx.Task.Prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", g.Binary, err)
	}

	var summary strings.Builder
	var resultMu sync.Mutex
	var result *task.Outcome
	done := make(chan struct{})

	// stdout and stderr are pumped by separate goroutines; either stream can
	// carry the outcome convention line, so writes to result are guarded.
	pump := func(r io.Reader, source string) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			if doc, ok := outcome.ExtractOutcome(line); ok {
				resultMu.Lock()
				result = doc.ToTaskOutcome()
				resultMu.Unlock()
				continue
			}
			chunk, ok := outcome.NormalizeLine(line)
			if !ok {
				continue
			}
			logf(ectx.OnLog, source, chunk)
			if source == "stdout" {
				var ev struct {
					Msg struct {
						Type string `json:"type"`
					} `json:"msg"`
				}
				if json.Unmarshal([]byte(line), &ev) == nil && ev.Msg.Type == "agent_message" {
					summary.WriteString(chunk)
				}
			}
		}
	}

	go func() { pump(stdout, "stdout"); close(done) }()
	stderrDone := make(chan struct{})
	go func() { pump(stderr, "stderr"); close(stderrDone) }()

	<-done
	<-stderrDone
	err = cmd.Wait()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s exited with error: %w", g.Binary, err)
	}

	return &Result{Summary: strings.TrimSpace(summary.String()), Outcome: result}, nil
}

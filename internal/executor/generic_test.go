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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orchkit/kernel/internal/task"
)

func testContext(t *testing.T) Context {
	t.Helper()
	return Context{
		WorktreePath: t.TempDir(),
		RunRoot:      t.TempDir(),
		RunID:        "run-1",
		Task:         task.Task{ID: "TASK-1", Prompt: "do the thing"},
		Role:         task.RoleAnalystA,
	}
}

func TestGenericCLIAccumulatesSummaryFromAgentMessages(t *testing.T) {
	script := `#!/bin/sh
echo '{"msg":{"type":"agent_message","text":"first"}}'
echo '{"msg":{"type":"agent_message","text":"second"}}'
`
	g := GenericCLI{Binary: "sh", Args: []string{"-c", script}}
	var lines []string
	ectx := testContext(t)
	ectx.OnLog = func(chunk, source string) { lines = append(lines, chunk) }

	result, err := g.Execute(context.Background(), ectx)
	require.NoError(t, err)
	require.Equal(t, "first\nsecond", result.Summary)
	require.Len(t, lines, 2)
}

func TestGenericCLIExtractsOutcomeConventionLineFromEitherStream(t *testing.T) {
	script := `#!/bin/sh
echo '{"msg":{"type":"agent_message","text":"working"}}'
echo '{"msg":{"type":"outcome","status":"ok","summary":"LGTM"}}' 1>&2
`
	g := GenericCLI{Binary: "sh", Args: []string{"-c", script}}
	result, err := g.Execute(context.Background(), testContext(t))
	require.NoError(t, err)
	require.NotNil(t, result.Outcome)
	require.Equal(t, "ok", result.Outcome.Status)
	require.Equal(t, "LGTM", result.Outcome.Summary)
}

func TestGenericCLINonZeroExitReturnsError(t *testing.T) {
	g := GenericCLI{Binary: "sh", Args: []string{"-c", "exit 1"}}
	_, err := g.Execute(context.Background(), testContext(t))
	require.Error(t, err)
}

func TestGenericCLIContextCancellationStopsProcess(t *testing.T) {
	g := GenericCLI{Binary: "sh", Args: []string{"-c", "sleep 5"}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := g.Execute(ctx, testContext(t))
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGenericCLIMalformedLinePassesThroughAsLog(t *testing.T) {
	g := GenericCLI{Binary: "sh", Args: []string{"-c", "echo 'not json'"}}
	var captured string
	ectx := testContext(t)
	ectx.OnLog = func(chunk, source string) { captured += chunk }

	result, err := g.Execute(context.Background(), ectx)
	require.NoError(t, err)
	require.True(t, strings.Contains(captured, "not json"))
	require.Empty(t, result.Summary)
}

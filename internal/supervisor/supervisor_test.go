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

package supervisor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orchkit/kernel/internal/bus"
	"github.com/orchkit/kernel/internal/claim"
	"github.com/orchkit/kernel/internal/config"
	"github.com/orchkit/kernel/internal/executor"
	"github.com/orchkit/kernel/internal/task"
)

// noopExecutor never actually runs anything; reconcileRole only needs a
// Capability value to construct a worker, it never calls Execute in these
// tests since no task is ever claimable.
type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, ectx executor.Context) (*executor.Result, error) {
	return &executor.Result{}, nil
}

func newTestSupervisor(t *testing.T) (*Supervisor, string) {
	t.Helper()
	root := t.TempDir()
	ts, err := task.NewStore(filepath.Join(root, "tasks"), filepath.Join(root, "conversations"), nil)
	require.NoError(t, err)
	cs, err := claim.NewStore(ts, nil, 0)
	require.NoError(t, err)

	sup := New(nil)
	worktreeID := "wt-1"
	sup.RegisterContext(worktreeID, RunContext{
		WorktreePath: root, RunRoot: root, RunID: "run-1",
		Claims: cs, Bus: bus.New(), Cfg: config.Default(),
		Factory: func(task.Role, RunContext) executor.Capability { return noopExecutor{} },
	})
	return sup, worktreeID
}

func TestClampCount(t *testing.T) {
	require.Equal(t, 0, clampCount(-5))
	require.Equal(t, 0, clampCount(0))
	require.Equal(t, 3, clampCount(3))
}

func TestTruncatePriority(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, truncatePriority([]string{"a", "b"}))
	require.Equal(t, []string{"a", "b", "c", "d"}, truncatePriority([]string{"a", "b", "c", "d", "e"}))
}

func TestConfigureStartsAndStopsWorkers(t *testing.T) {
	sup, worktreeID := newTestSupervisor(t)
	ctx := context.Background()

	require.NoError(t, sup.Configure(ctx, worktreeID, []RoleConfig{
		{Role: task.RoleImplementer, Count: 2},
	}))
	require.Len(t, sup.GetStatuses(worktreeID), 2)

	require.NoError(t, sup.Configure(ctx, worktreeID, []RoleConfig{
		{Role: task.RoleImplementer, Count: 0},
	}))
	// Give Stop()'s synchronous wait a moment to settle across goroutines.
	time.Sleep(10 * time.Millisecond)
	require.Empty(t, sup.GetStatuses(worktreeID))
}

func TestConfigureClampsNegativeCount(t *testing.T) {
	sup, worktreeID := newTestSupervisor(t)
	require.NoError(t, sup.Configure(context.Background(), worktreeID, []RoleConfig{
		{Role: task.RoleTester, Count: -3},
	}))
	require.Empty(t, sup.GetStatuses(worktreeID))
}

func TestConfigureIsIdempotentForUnchangedInputs(t *testing.T) {
	sup, worktreeID := newTestSupervisor(t)
	ctx := context.Background()
	configs := []RoleConfig{{Role: task.RoleReviewer, Count: 1, ModelPriority: []string{"gpt"}}}

	require.NoError(t, sup.Configure(ctx, worktreeID, configs))
	first := sup.GetStatuses(worktreeID)
	require.Len(t, first, 1)
	firstID := first[0].ID

	require.NoError(t, sup.Configure(ctx, worktreeID, configs))
	second := sup.GetStatuses(worktreeID)
	require.Len(t, second, 1)
	require.Equal(t, firstID, second[0].ID)
}

func TestDefaultFactoryBindsRolesToExecutors(t *testing.T) {
	rc := RunContext{Cfg: config.Default()}
	require.IsType(t, executor.Implementer{}, DefaultFactory(task.RoleImplementer, rc))
	require.IsType(t, executor.Tester{}, DefaultFactory(task.RoleTester, rc))
	require.IsType(t, executor.Reviewer{}, DefaultFactory(task.RoleReviewer, rc))
	require.IsType(t, executor.GenericCLI{}, DefaultFactory(task.RoleAnalystA, rc))
}

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

package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureWorkflowExpansionSeedsConsensus(t *testing.T) {
	s := newTestStore(t)
	rc := RunContext{RunID: "R1", Mode: ModeImplementFeature}

	_, err := s.EnsureAnalysisSeeds(rc)
	require.NoError(t, err)

	tasks, err := s.LoadTasks(LoadOptions{})
	require.NoError(t, err)
	for i := range tasks {
		tasks[i].Status = StatusDone
		require.NoError(t, s.WriteTask(&tasks[i]))
	}

	updated, mutated, err := s.EnsureWorkflowExpansion(rc)
	require.NoError(t, err)
	require.True(t, mutated)
	require.Condition(t, func() bool {
		for _, tk := range updated {
			if tk.ID == consensusID("R1") {
				return true
			}
		}
		return false
	})
}

func TestEnsureWorkflowExpansionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	rc := RunContext{RunID: "R1", Mode: ModeImplementFeature}
	_, err := s.EnsureAnalysisSeeds(rc)
	require.NoError(t, err)

	_, _, err = s.EnsureWorkflowExpansion(rc)
	require.NoError(t, err)

	_, mutated, err := s.EnsureWorkflowExpansion(rc)
	require.NoError(t, err)
	require.False(t, mutated)
}

func TestEnsureWorkflowExpansionFullChain(t *testing.T) {
	s := newTestStore(t)
	rc := RunContext{RunID: "R1", Mode: ModeImplementFeature}
	_, err := s.EnsureAnalysisSeeds(rc)
	require.NoError(t, err)

	markDone := func(id string) {
		entry, err := s.GetTask(id)
		require.NoError(t, err)
		tk := entry.Task
		tk.Status = StatusDone
		require.NoError(t, s.WriteTask(&tk))
	}

	for _, id := range AnalysisSeedIDs(rc) {
		markDone(id)
	}
	_, _, err = s.EnsureWorkflowExpansion(rc)
	require.NoError(t, err)

	markDone(consensusID("R1"))
	_, _, err = s.EnsureWorkflowExpansion(rc)
	require.NoError(t, err)

	markDone(splitterID("R1"))
	tasks, _, err := s.EnsureWorkflowExpansion(rc)
	require.NoError(t, err)

	var impl, test, review *Task
	for i := range tasks {
		switch tasks[i].ID {
		case implID("R1"):
			impl = &tasks[i]
		case testID("R1"):
			test = &tasks[i]
		case reviewID("R1"):
			review = &tasks[i]
		}
	}
	require.NotNil(t, impl)
	require.NotNil(t, test)
	require.NotNil(t, review)
	require.Equal(t, []string{splitterID("R1")}, impl.DependsOn)
	require.Equal(t, []string{implID("R1")}, test.DependsOn)
	require.ElementsMatch(t, []string{implID("R1"), testID("R1")}, review.DependsOn)
	require.Equal(t, 1, review.ApprovalsRequired)
}

func TestReviewChangesRequestedResetsDependencies(t *testing.T) {
	tasks := []Task{
		{ID: "IMPL-1", Kind: KindImpl, Status: StatusDone},
		{ID: "TEST-1", Kind: KindTest, Status: StatusDone, DependsOn: []string{"IMPL-1"}},
		{
			ID: "REVIEW-1", Kind: KindReview, Status: StatusChangesRequested,
			DependsOn: []string{"IMPL-1", "TEST-1"},
		},
	}
	plan := planExpansion(tasks, RunContext{RunID: "R1"})
	require.ElementsMatch(t, []string{"IMPL-1", "TEST-1", "REVIEW-1"}, plan.Resets)
}

func TestReviewChangesRequestedSkipsAlreadyReadyDependencies(t *testing.T) {
	tasks := []Task{
		{ID: "IMPL-1", Kind: KindImpl, Status: StatusReady},
		{ID: "TEST-1", Kind: KindTest, Status: StatusDone, DependsOn: []string{"IMPL-1"}},
		{
			ID: "REVIEW-1", Kind: KindReview, Status: StatusChangesRequested,
			DependsOn: []string{"IMPL-1", "TEST-1"},
		},
	}
	plan := planExpansion(tasks, RunContext{RunID: "R1"})
	require.ElementsMatch(t, []string{"TEST-1", "REVIEW-1"}, plan.Resets)
}

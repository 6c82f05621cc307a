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
	"fmt"
	"time"
)

// expansionPlan is what a pure planning pass over the current task set
// proposes: files to create, and existing tasks to reset to ready. Treating
// this as a value makes the rules in §4.2.1/§4.2.2 independently testable
// without any filesystem I/O (Design Notes §9, "workflow expansion as a
// pure function").
type expansionPlan struct {
	Creates []Task
	Resets  []string // task ids to reset to ready, approvals cleared
}

func consensusID(runID string) string { return fmt.Sprintf("CONSENSUS-%s", runID) }
func splitterID(runID string) string  { return fmt.Sprintf("SPLIT-%s", runID) }
func implID(runID string) string      { return fmt.Sprintf("IMPL-%s", runID) }
func testID(runID string) string      { return fmt.Sprintf("TEST-%s", runID) }
func reviewID(runID string) string    { return fmt.Sprintf("REVIEW-%s", runID) }

// planExpansion evaluates the DAG-growth rules (§4.2.1) and the review
// feedback rule (§4.2.2) against tasks, a snapshot of the current task set.
// It is pure: same tasks/rc in, same plan out, no side effects.
func planExpansion(tasks []Task, rc RunContext) expansionPlan {
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	exists := func(id string) bool { _, ok := byID[id]; return ok }

	var plan expansionPlan
	now := time.Now()

	// §4.2.2 Review feedback: any review in changes_requested resets its
	// dependencies and itself to ready; dependencies already ready or
	// in_progress are left alone (idempotence: never re-open them).
	for _, t := range tasks {
		if t.Kind != KindReview || t.Status != StatusChangesRequested {
			continue
		}
		for _, depID := range t.DependsOn {
			dep, ok := byID[depID]
			if !ok {
				continue
			}
			if dep.Status == StatusReady || dep.Status == StatusInProgress {
				continue
			}
			plan.Resets = append(plan.Resets, depID)
		}
		plan.Resets = append(plan.Resets, t.ID)
	}

	// §4.2.1 rule 1: consensus once every seeded analysis task is done.
	cid := consensusID(rc.RunID)
	if !exists(cid) {
		seedIDs := AnalysisSeedIDs(rc)
		var completed []string
		for _, id := range seedIDs {
			if t, ok := byID[id]; ok && t.Status == StatusDone {
				completed = append(completed, id)
			}
		}
		if len(completed) == len(seedIDs) && len(seedIDs) > 0 {
			prompt, _ := RenderPrompt(RoleConsensusBuilder, rc.Mode, rc)
			plan.Creates = append(plan.Creates, Task{
				ID: cid, Epic: rc.RunID, Kind: KindConsensus, Role: RoleConsensusBuilder,
				Title: "Build consensus", Prompt: prompt, Status: StatusReady,
				DependsOn: completed, Approvals: []string{}, Artifacts: []string{},
				CreatedAt: now, UpdatedAt: now,
			})
		}
	}

	// §4.2.1 rule 2: splitter once consensus is done.
	sid := splitterID(rc.RunID)
	if !exists(sid) {
		if c, ok := byID[cid]; ok && c.Status == StatusDone {
			prompt, _ := RenderPrompt(RoleSplitter, rc.Mode, rc)
			plan.Creates = append(plan.Creates, Task{
				ID: sid, Epic: rc.RunID, Kind: KindAnalysis, Role: RoleSplitter,
				Title: "Split into implement/test/review", Prompt: prompt, Status: StatusReady,
				DependsOn: []string{cid}, Approvals: []string{}, Artifacts: []string{},
				CreatedAt: now, UpdatedAt: now,
			})
		}
	}

	// §4.2.1 rule 3: implement/test/review once the splitter is done.
	iid := implID(rc.RunID)
	if !exists(iid) {
		if sp, ok := byID[sid]; ok && sp.Status == StatusDone {
			tid := testID(rc.RunID)
			rid := reviewID(rc.RunID)
			implPrompt, _ := RenderPrompt(RoleImplementer, rc.Mode, rc)
			testPrompt, _ := RenderPrompt(RoleTester, rc.Mode, rc)
			reviewPrompt, _ := RenderPrompt(RoleReviewer, rc.Mode, rc)

			plan.Creates = append(plan.Creates,
				Task{
					ID: iid, Epic: rc.RunID, Kind: KindImpl, Role: RoleImplementer,
					Title: "Implement", Prompt: implPrompt, Status: StatusReady,
					DependsOn: []string{sid}, Approvals: []string{}, Artifacts: []string{},
					CreatedAt: now, UpdatedAt: now,
				},
				Task{
					ID: tid, Epic: rc.RunID, Kind: KindTest, Role: RoleTester,
					Title: "Test", Prompt: testPrompt, Status: StatusReady,
					DependsOn: []string{iid}, Approvals: []string{}, Artifacts: []string{},
					CreatedAt: now, UpdatedAt: now,
				},
				Task{
					ID: rid, Epic: rc.RunID, Kind: KindReview, Role: RoleReviewer,
					Title: "Review", Prompt: reviewPrompt, Status: StatusReady,
					DependsOn: []string{iid, tid}, ApprovalsRequired: 1,
					Approvals: []string{}, Artifacts: []string{},
					CreatedAt: now, UpdatedAt: now,
				},
			)
		}
	}

	return plan
}

// EnsureWorkflowExpansion loads the current task set, plans the next round
// of expansion, and applies it. It returns the task set after applying the
// plan and whether anything was mutated. Re-invoking with unchanged inputs
// creates no new tasks (§8 idempotence law).
func (s *Store) EnsureWorkflowExpansion(rc RunContext) ([]Task, bool, error) {
	tasks, err := s.LoadTasks(LoadOptions{})
	if err != nil {
		return nil, false, err
	}

	plan := planExpansion(tasks, rc)
	if len(plan.Creates) == 0 && len(plan.Resets) == 0 {
		return tasks, false, nil
	}

	byID := make(map[string]int, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = i
	}

	for _, id := range plan.Resets {
		idx, ok := byID[id]
		if !ok {
			continue
		}
		t := tasks[idx]
		t.Status = StatusReady
		t.Approvals = []string{}
		t.LastClaimedBy = ""
		if err := s.WriteTask(&t); err != nil {
			return nil, false, err
		}
		tasks[idx] = t
	}

	for _, t := range plan.Creates {
		nt := t
		if err := s.WriteTask(&nt); err != nil {
			return nil, false, err
		}
		tasks = append(tasks, nt)
	}

	return tasks, true, nil
}

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

// AnalysisSeedIDs returns the task ids ensureAnalysisSeeds will create for
// rc, in order. Exposed so the consensus rule can compute its dependsOn
// list without re-deriving the naming scheme.
func AnalysisSeedIDs(rc RunContext) []string {
	if rc.Mode == ModeBugHunt {
		n := rc.BugHunterCount
		if n <= 0 {
			n = 1
		}
		ids := make([]string, n)
		for i := 0; i < n; i++ {
			ids[i] = fmt.Sprintf("ANALYSIS-%s-H%d", rc.RunID, i+1)
		}
		return ids
	}
	return []string{
		fmt.Sprintf("ANALYSIS-%s-A", rc.RunID),
		fmt.Sprintf("ANALYSIS-%s-B", rc.RunID),
	}
}

// analysisRole returns the role assigned to the i'th seeded analysis task
// (0-based). Bug-hunt mode has no dedicated "hunter" role in the taxonomy,
// so hunters alternate between the two analyst roles: even indexes get
// analyst_a, odd indexes analyst_b.
func analysisRole(mode Mode, i int) Role {
	if i%2 == 0 {
		return RoleAnalystA
	}
	return RoleAnalystB
}

// EnsureAnalysisSeeds idempotently creates the run's starting analysis
// tasks. Existing files with matching ids are left untouched.
func (s *Store) EnsureAnalysisSeeds(rc RunContext) ([]Task, error) {
	existing, err := s.ReadTaskEntries(LoadOptions{Kind: KindAnalysis})
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, e := range existing {
		have[e.Task.ID] = true
	}

	ids := AnalysisSeedIDs(rc)
	var created []Task
	now := time.Now()
	for i, id := range ids {
		if have[id] {
			continue
		}
		role := analysisRole(rc.Mode, i)
		prompt, err := RenderPrompt(role, rc.Mode, rc)
		if err != nil {
			return nil, err
		}
		t := Task{
			ID:        id,
			Epic:      rc.RunID,
			Kind:      KindAnalysis,
			Role:      role,
			Title:     fmt.Sprintf("Analysis %s", id),
			Prompt:    prompt,
			Status:    StatusReady,
			DependsOn: nil,
			Approvals: []string{},
			Artifacts: []string{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.WriteTask(&t); err != nil {
			return nil, err
		}
		created = append(created, t)
	}
	return created, nil
}

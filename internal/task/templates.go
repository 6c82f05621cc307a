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
	"bytes"
	"fmt"
	"text/template"
)

// Mode is the briefing's pipeline mode.
type Mode string

const (
	ModeImplementFeature Mode = "implement_feature"
	ModeBugHunt          Mode = "bug_hunt"
)

// RunContext is the subset of run state the template renderer and the
// expansion rules both need. It carries no storage handles, keeping both
// pure functions of their inputs (Design Notes §9).
type RunContext struct {
	RunID          string
	Description    string
	Guidance       string
	Mode           Mode
	AnalysisCount  int
	BugHunterCount int
}

// promptTemplates holds one text/template per (role, mode) pair. A flat
// literal-interpolation templating language is all role prompts need —
// run description, guidance, and run id are substituted verbatim, the only
// logic being an {{if}} around the optional guidance, so text/template
// (stdlib) is used here
// rather than pulling in an expression-evaluation library.
var promptTemplates = map[Role]map[Mode]*template.Template{
	RoleAnalystA: {
		ModeImplementFeature: must("analyst_a.feature", `You are analyst A on run {{.RunID}}. Study the codebase and propose an implementation approach for:

{{.Description}}
{{if .Guidance}}
Guidance: {{.Guidance}}
{{end}}
Produce a written analysis: affected files, risks, and a recommended approach.`),
		ModeBugHunt: must("analyst_a.bug", `You are bug hunter A on run {{.RunID}}. Search the codebase for defects related to:

{{.Description}}
{{if .Guidance}}
Guidance: {{.Guidance}}
{{end}}
Report every concrete bug you find with a reproduction and a suggested fix.`),
	},
	RoleAnalystB: {
		ModeImplementFeature: must("analyst_b.feature", `You are analyst B on run {{.RunID}}. Independently study the codebase and propose an implementation approach for:

{{.Description}}
{{if .Guidance}}
Guidance: {{.Guidance}}
{{end}}
Produce a written analysis: affected files, risks, and a recommended approach. Do not coordinate with analyst A.`),
		ModeBugHunt: must("analyst_b.bug", `You are bug hunter B on run {{.RunID}}. Independently search the codebase for defects related to:

{{.Description}}
{{if .Guidance}}
Guidance: {{.Guidance}}
{{end}}
Report every concrete bug you find with a reproduction and a suggested fix.`),
	},
	RoleConsensusBuilder: {
		ModeImplementFeature: must("consensus.feature", `You are the consensus builder on run {{.RunID}}. Read the analyses produced by the upstream analyst tasks and reconcile them into a single recommended approach for:

{{.Description}}

Resolve disagreements explicitly and state the final plan.`),
		ModeBugHunt: must("consensus.bug", `You are the consensus builder on run {{.RunID}}. Read the bug reports produced by the upstream hunter tasks, deduplicate overlapping findings, and rank the remaining bugs by severity for:

{{.Description}}`),
	},
	RoleSplitter: {
		ModeImplementFeature: must("splitter.feature", `You are the planner/splitter on run {{.RunID}}. Given the consensus plan, break it into a single coherent implementation task, a test task, and a review task. Record any sequencing constraints.`),
		ModeBugHunt:          must("splitter.bug", `You are the planner/splitter on run {{.RunID}}. Given the ranked bug list, select the highest-priority fix and scope a single implementation task, a test task, and a review task for it.`),
	},
	RoleImplementer: {
		ModeImplementFeature: must("impl.feature", `You are the implementer on run {{.RunID}}. Implement the plan produced by the splitter for:

{{.Description}}
{{if .Guidance}}
Guidance: {{.Guidance}}
{{end}}
Make the smallest correct change. Do not modify tests.`),
		ModeBugHunt: must("impl.bug", `You are the implementer on run {{.RunID}}. Fix the bug selected by the splitter for:

{{.Description}}

Make the smallest correct change that fixes the root cause, not just the symptom.`),
	},
	RoleTester: {
		ModeImplementFeature: must("test.feature", `You are the tester on run {{.RunID}}. Verify the implementer's change for:

{{.Description}}

Run the test suite and report any failures in detail.`),
		ModeBugHunt: must("test.bug", `You are the tester on run {{.RunID}}. Verify the implementer's fix for:

{{.Description}}

Confirm the original reproduction no longer fails and the suite otherwise passes.`),
	},
	RoleReviewer: {
		ModeImplementFeature: must("review.feature", `You are the reviewer on run {{.RunID}}. Review the implementer's diff and the tester's results for:

{{.Description}}

Approve only if the change is correct, minimal, and adequately tested. Otherwise request changes with specific, actionable feedback.`),
		ModeBugHunt: must("review.bug", `You are the reviewer on run {{.RunID}}. Review the implementer's fix and the tester's verification for:

{{.Description}}

Approve only if the root cause is fixed and regressions are covered. Otherwise request changes.`),
	},
}

func must(name, body string) *template.Template {
	return template.Must(template.New(name).Parse(body))
}

// RenderPrompt renders the role/mode template for rc. Falls back to the
// implement_feature variant if mode has no dedicated template.
func RenderPrompt(role Role, mode Mode, rc RunContext) (string, error) {
	byMode, ok := promptTemplates[role]
	if !ok {
		return "", fmt.Errorf("no prompt template for role %s", role)
	}
	tmpl, ok := byMode[mode]
	if !ok {
		tmpl, ok = byMode[ModeImplementFeature]
		if !ok {
			return "", fmt.Errorf("no prompt template for role %s mode %s", role, mode)
		}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rc); err != nil {
		return "", fmt.Errorf("rendering prompt for role %s: %w", role, err)
	}
	return buf.String(), nil
}

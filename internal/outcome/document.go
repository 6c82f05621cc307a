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

package outcome

import (
	"encoding/json"
	"fmt"

	"github.com/orchkit/kernel/internal/task"
)

// Document is the structured verdict an executor extracts from its CLI's
// output — the "optional structured outcome" of §4.4.
type Document struct {
	Status  string `json:"status"` // "ok" | "blocked" | "changes_requested"
	Summary string `json:"summary"`
	Details string `json:"details"`
}

// ExtractOutcome inspects one normalised CLI event line for an outcome
// announcement (`{"msg":{"type":"outcome","status":...}}`), the convention
// the generic and reviewer executors use to learn the CLI's structured
// verdict without a separate output file. Returns ok=false for any line
// that is not an outcome event, including malformed JSON.
func ExtractOutcome(line string) (doc *Document, ok bool) {
	var ev struct {
		Msg struct {
			Type    string `json:"type"`
			Status  string `json:"status"`
			Summary string `json:"summary"`
			Details string `json:"details"`
		} `json:"msg"`
	}
	if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Msg.Type != "outcome" {
		return nil, false
	}
	d, err := Parse([]byte(fmt.Sprintf(`{"status":%q,"summary":%q,"details":%q}`, ev.Msg.Status, ev.Msg.Summary, ev.Msg.Details)))
	if err != nil {
		return nil, false
	}
	return d, true
}

// Parse decodes a CLI-emitted outcome document. The structured field always
// takes precedence over any textual fallback parsing a caller might attempt
// (spec.md §9 Open Questions).
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing outcome document: %w", err)
	}
	switch doc.Status {
	case "ok", "blocked", "changes_requested":
	default:
		return nil, fmt.Errorf("outcome document has unrecognised status %q", doc.Status)
	}
	return &doc, nil
}

// diskStatus renders a Document's status in the task.outcome.json vocabulary
// (§4.5 artifact persistence: OK|BLOCKED|CHANGES_REQUESTED, upper case).
func diskStatus(status string) string {
	switch status {
	case "ok":
		return "OK"
	case "blocked":
		return "BLOCKED"
	case "changes_requested":
		return "CHANGES_REQUESTED"
	default:
		return status
	}
}

// FromTaskOutcome converts a task.Outcome back into a Document so it can be
// re-marshalled as the runRoot/artifacts/<taskId>.outcome.json artifact.
func FromTaskOutcome(o *task.Outcome) *Document {
	return &Document{Status: o.Status, Summary: o.Summary, Details: o.Details}
}

// ToTaskOutcome converts a parsed Document into the task.Outcome persisted
// on the task record itself (camelCase, lower-case status).
func (d *Document) ToTaskOutcome() *task.Outcome {
	return &task.Outcome{Status: d.Status, Summary: d.Summary, Details: d.Details}
}

// MarshalArtifact renders the runRoot/artifacts/<taskId>.outcome.json
// contents: upper-case status, summary, and details when present.
func (d *Document) MarshalArtifact() ([]byte, error) {
	payload := struct {
		Status  string `json:"status"`
		Summary string `json:"summary,omitempty"`
		Details string `json:"details,omitempty"`
	}{Status: diskStatus(d.Status), Summary: d.Summary, Details: d.Details}
	return json.MarshalIndent(payload, "", "  ")
}

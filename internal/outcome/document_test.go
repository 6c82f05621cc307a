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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRejectsUnknownStatus(t *testing.T) {
	_, err := Parse([]byte(`{"status":"maybe"}`))
	require.Error(t, err)
}

func TestParseAcceptsKnownStatuses(t *testing.T) {
	for _, status := range []string{"ok", "blocked", "changes_requested"} {
		doc, err := Parse([]byte(`{"status":"` + status + `","summary":"s"}`))
		require.NoError(t, err)
		require.Equal(t, status, doc.Status)
	}
}

func TestExtractOutcomeFindsConventionLine(t *testing.T) {
	doc, ok := ExtractOutcome(`{"msg":{"type":"outcome","status":"ok","summary":"LGTM"}}`)
	require.True(t, ok)
	require.Equal(t, "ok", doc.Status)
	require.Equal(t, "LGTM", doc.Summary)
}

func TestExtractOutcomeIgnoresOtherEventTypes(t *testing.T) {
	_, ok := ExtractOutcome(`{"msg":{"type":"agent_message","text":"hi"}}`)
	require.False(t, ok)
}

func TestMarshalArtifactUppercasesStatus(t *testing.T) {
	doc := &Document{Status: "ok", Summary: "LGTM"}
	data, err := doc.MarshalArtifact()
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"OK","summary":"LGTM"}`, string(data))
}

func TestToTaskOutcomeRoundTrip(t *testing.T) {
	doc := &Document{Status: "changes_requested", Summary: "needs work", Details: "see diff"}
	out := doc.ToTaskOutcome()
	require.Equal(t, "changes_requested", out.Status)

	back := FromTaskOutcome(out)
	require.Equal(t, doc.Status, back.Status)
	require.Equal(t, doc.Summary, back.Summary)
}

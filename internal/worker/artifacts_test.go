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

package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orchkit/kernel/internal/executor"
	"github.com/orchkit/kernel/internal/task"
)

func TestWriteUnderRootRejectsTraversal(t *testing.T) {
	runRoot := t.TempDir()
	_, err := writeUnderRoot(runRoot, "../escape.txt", []byte("x"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes run root")
}

func TestWriteUnderRootWritesWithinRoot(t *testing.T) {
	runRoot := t.TempDir()
	rel, err := writeUnderRoot(runRoot, "artifacts/IMPL-1.diff", []byte("diff content"))
	require.NoError(t, err)
	require.Equal(t, "artifacts/IMPL-1.diff", rel)

	data, err := os.ReadFile(filepath.Join(runRoot, "artifacts", "IMPL-1.diff"))
	require.NoError(t, err)
	require.Equal(t, "diff content", string(data))
}

func TestPersistArtifactsRejectsEscapingPath(t *testing.T) {
	w := &Worker{RunRoot: t.TempDir()}
	_, err := w.persistArtifacts("IMPL-1", []executor.Artifact{{Path: "../../escape.txt", Contents: "x"}}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes run root")
}

func TestPersistArtifactsWritesOutcomeDocument(t *testing.T) {
	w := &Worker{RunRoot: t.TempDir()}
	out := &task.Outcome{Status: "ok", Summary: "LGTM"}
	paths, err := w.persistArtifacts("REVIEW-1", nil, out)
	require.NoError(t, err)
	require.Empty(t, paths)
	require.Equal(t, "artifacts/REVIEW-1.outcome.json", out.DocumentPath)

	data, err := os.ReadFile(filepath.Join(w.RunRoot, "artifacts", "REVIEW-1.outcome.json"))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"OK","summary":"LGTM"}`, string(data))
}

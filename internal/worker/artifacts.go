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
	"strings"

	kerrors "github.com/orchkit/kernel/pkg/errors"
	"github.com/orchkit/kernel/internal/executor"
	"github.com/orchkit/kernel/internal/outcome"
	"github.com/orchkit/kernel/internal/task"
)

// persistArtifacts resolves and writes each artifact under w.RunRoot,
// rejecting any path that would escape it (§3 invariant 5, §8 scenario 5).
// When outcome is non-nil it is additionally written as
// runRoot/artifacts/<taskId>.outcome.json and outcome.DocumentPath is set to
// its runRoot-relative path. Recorded paths are relative to runRoot, not to
// the worktree.
func (w *Worker) persistArtifacts(taskID string, artifacts []executor.Artifact, out *task.Outcome) ([]string, error) {
	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		rel, err := writeUnderRoot(w.RunRoot, a.Path, []byte(a.Contents))
		if err != nil {
			return nil, err
		}
		paths = append(paths, rel)
	}

	if out != nil {
		docPath := filepath.Join("artifacts", taskID+".outcome.json")
		data, err := outcome.FromTaskOutcome(out).MarshalArtifact()
		if err != nil {
			return nil, err
		}
		if _, err := writeUnderRoot(w.RunRoot, docPath, data); err != nil {
			return nil, err
		}
		out.DocumentPath = docPath
	}

	return paths, nil
}

// writeUnderRoot resolves relPath against runRoot, rejects traversal, and
// writes contents. Returns the cleaned runRoot-relative path recorded on the
// task.
func writeUnderRoot(runRoot, relPath string, contents []byte) (string, error) {
	cleanRoot, err := filepath.Abs(runRoot)
	if err != nil {
		return "", err
	}
	resolved := filepath.Join(cleanRoot, relPath)
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return "", err
	}
	if resolved != cleanRoot && !strings.HasPrefix(resolved, cleanRoot+string(filepath.Separator)) {
		return "", &kerrors.PathEscapeError{Path: relPath, RunRoot: runRoot}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(resolved, contents, 0o644); err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Clean(relPath)), nil
}

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

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsEmptyRegistry(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	_, ok := r.Resolve("wt-1")
	require.False(t, ok)
}

func TestLoadParsesWorktreeMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worktrees:\n  wt-1: /repos/wt-1\n"), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	p, ok := r.Resolve("wt-1")
	require.True(t, ok)
	require.Equal(t, "/repos/wt-1", p)
}

func TestSetAndRemove(t *testing.T) {
	r := New()
	r.Set("wt-2", "/repos/wt-2")
	p, ok := r.Resolve("wt-2")
	require.True(t, ok)
	require.Equal(t, "/repos/wt-2", p)

	r.Remove("wt-2")
	_, ok = r.Resolve("wt-2")
	require.False(t, ok)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worktrees: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

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

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastTestConfig() Config {
	return Config{Quiet: 20 * time.Millisecond, MaxWait: 200 * time.Millisecond}
}

func TestWatcherFiresOnChangeAfterQuietPeriod(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, nil, nil)
	require.NoError(t, err)
	defer w.Close()

	var fired atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, fastTestConfig(), func() { fired.Add(1) })

	require.NoError(t, os.WriteFile(filepath.Join(root, "task.json"), []byte("{}"), 0o644))

	require.Eventually(t, func() bool { return fired.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcherCoalescesBurstsIntoOneFire(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, nil, nil)
	require.NoError(t, err)
	defer w.Close()

	var fired atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, fastTestConfig(), func() { fired.Add(1) })

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "burst.json"), []byte(`{"n":1}`), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return fired.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), fired.Load())
}

func TestWatcherIgnoresNonJSONFiles(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, nil, nil)
	require.NoError(t, err)
	defer w.Close()

	var fired atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx, fastTestConfig(), func() { fired.Add(1) })

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o644))
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())
}

func TestWatcherStopsOnContextCancel(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, nil, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { w.Run(ctx, fastTestConfig(), func() {}); close(done) }()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestNewSkipsMissingSubdirectories(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, []string{"does-not-exist"}, nil)
	require.NoError(t, err)
	defer w.Close()
}

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

package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCleanupLoopPrunesStoppedRunsOlderThanRetention(t *testing.T) {
	c, _, closeFn := newTestCoordinator(t)
	defer closeFn()

	_, err := c.StartRun(context.Background(), "wt-1", Briefing{Description: "add a feature"})
	require.NoError(t, err)
	require.NoError(t, c.StopRun(context.Background(), "wt-1"))

	rs, err := c.getRunState("wt-1")
	require.NoError(t, err)
	rs.mu.Lock()
	rs.run.UpdatedAt = time.Now().Add(-time.Hour)
	rs.mu.Unlock()

	stop := c.StartCleanupLoop(10*time.Millisecond, time.Minute)
	defer stop()

	require.Eventually(t, func() bool {
		_, err := c.GetSnapshot("wt-1")
		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestCleanupLoopLeavesRunningRunsAlone(t *testing.T) {
	c, _, closeFn := newTestCoordinator(t)
	defer closeFn()

	_, err := c.StartRun(context.Background(), "wt-1", Briefing{Description: "add a feature"})
	require.NoError(t, err)

	stop := c.StartCleanupLoop(10*time.Millisecond, 0)
	time.Sleep(50 * time.Millisecond)
	stop()

	_, err = c.GetSnapshot("wt-1")
	require.NoError(t, err)
}

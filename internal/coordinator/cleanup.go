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
	"time"
)

// cleanupLoop periodically prunes run state for stopped/completed runs
// older than retention. This is a supplement beyond the base spec: the
// kernel otherwise keeps every run's state in memory for the life of the
// process, which is fine for a single dev session but leaks across a
// long-lived daemon watching many worktrees over days.
type cleanupLoop struct {
	c         *Coordinator
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// StartCleanupLoop begins pruning stopped/completed runs older than
// retention, checking every interval. Call the returned func to stop it.
func (c *Coordinator) StartCleanupLoop(interval, retention time.Duration) func() {
	if interval <= 0 {
		interval = time.Hour
	}
	loop := &cleanupLoop{c: c, interval: interval, retention: retention, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
	go loop.run()
	return loop.stop
}

func (l *cleanupLoop) stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *cleanupLoop) run() {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

func (l *cleanupLoop) sweep() {
	c := l.c
	cutoff := time.Now().Add(-l.retention)

	c.mu.RLock()
	var stale []string
	for worktreeID, rs := range c.runs {
		rs.mu.RLock()
		if (rs.run.Status == StatusStopped || rs.run.Status == StatusCompleted) && rs.run.UpdatedAt.Before(cutoff) {
			stale = append(stale, worktreeID)
		}
		rs.mu.RUnlock()
	}
	c.mu.RUnlock()

	for _, worktreeID := range stale {
		if err := c.HandleWorktreeRemoved(context.Background(), worktreeID); err != nil {
			c.logger.Warn("pruning stale run failed", "worktree_id", worktreeID, "error", err)
			continue
		}
		c.logger.Info("pruned stale run state", "worktree_id", worktreeID)
	}
}

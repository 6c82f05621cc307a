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

// Command orchkitctl is a thin local CLI exercising the Coordinator's
// command surface (spec.md §6) for manual testing without the desktop
// shell: submit a briefing, inspect a snapshot, approve a task, leave a
// comment. It talks to the kernel in-process rather than over a wire
// protocol — cross-host distribution is an explicit Non-goal, so there is
// no daemon RPC client here, only direct construction of the same packages
// orchkitd wires up.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orchkit/kernel/internal/bus"
	"github.com/orchkit/kernel/internal/config"
	"github.com/orchkit/kernel/internal/coordinator"
	"github.com/orchkit/kernel/internal/log"
	"github.com/orchkit/kernel/internal/registry"
	"github.com/orchkit/kernel/internal/supervisor"
	"github.com/orchkit/kernel/internal/task"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		worktreePath string
		worktreeID   string
		configPath   string
	)

	logger := log.New(log.FromEnv())

	root := &cobra.Command{
		Use:   "orchkitctl",
		Short: "Manual harness for the orchestration kernel",
	}
	root.PersistentFlags().StringVar(&worktreePath, "worktree-path", "", "Absolute path to the git worktree")
	root.PersistentFlags().StringVar(&worktreeID, "worktree-id", "dev", "Worktree identifier")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to kernel YAML config")

	root.AddCommand(newStartRunCommand(&worktreePath, &worktreeID, &configPath, logger))
	root.AddCommand(newSnapshotCommand(&worktreePath, logger))
	root.AddCommand(newApproveCommand(&worktreePath, logger))
	root.AddCommand(newCommentCommand(&worktreePath, logger))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("orchkitctl %s (commit: %s)\n", version, commit)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func requireWorktreePath(path string) error {
	if path == "" {
		return fmt.Errorf("--worktree-path is required")
	}
	return nil
}

func newStartRunCommand(worktreePath, worktreeID, configPath *string, logger *slog.Logger) *cobra.Command {
	var description, guidance, mode string
	var autoStart bool

	cmd := &cobra.Command{
		Use:   "start-run",
		Short: "Submit a briefing and start a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorktreePath(*worktreePath); err != nil {
				return err
			}
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			reg := registry.New()
			reg.Set(*worktreeID, *worktreePath)

			b := bus.New()
			sup := supervisor.New(logger)
			coord := coordinator.New(b, sup, cfg, reg.Resolve, logger)
			defer coord.Close()

			briefing := coordinator.Briefing{
				Description:      description,
				Guidance:         guidance,
				Mode:             task.Mode(mode),
				AutoStartWorkers: autoStart,
			}
			summary, err := coord.StartRun(context.Background(), *worktreeID, briefing)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Feature description")
	cmd.Flags().StringVar(&guidance, "guidance", "", "Optional guidance")
	cmd.Flags().StringVar(&mode, "mode", string(task.ModeImplementFeature), "implement_feature | bug_hunt")
	cmd.Flags().BoolVar(&autoStart, "auto-start-workers", false, "Start the default worker set immediately")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func newSnapshotCommand(worktreePath *string, logger *slog.Logger) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print a run's current tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorktreePath(*worktreePath); err != nil {
				return err
			}
			store, _, err := openRun(*worktreePath, runID, logger)
			if err != nil {
				return err
			}
			tasks, err := store.LoadTasks(task.LoadOptions{})
			if err != nil {
				return err
			}
			return printJSON(tasks)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id (defaults to the most recently modified run)")
	return cmd
}

func newApproveCommand(worktreePath *string, logger *slog.Logger) *cobra.Command {
	var runID, taskID, approver string
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve a task awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorktreePath(*worktreePath); err != nil {
				return err
			}
			store, rc, err := openRun(*worktreePath, runID, logger)
			if err != nil {
				return err
			}
			t, err := store.ApproveTask(taskID, approver)
			if err != nil {
				return err
			}
			if _, _, err := store.EnsureWorkflowExpansion(rc); err != nil {
				return err
			}
			return printJSON(t)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id (defaults to the most recently modified run)")
	cmd.Flags().StringVar(&taskID, "task-id", "", "Task id to approve")
	cmd.Flags().StringVar(&approver, "approver", "", "Approver name")
	_ = cmd.MarkFlagRequired("task-id")
	_ = cmd.MarkFlagRequired("approver")
	return cmd
}

func newCommentCommand(worktreePath *string, logger *slog.Logger) *cobra.Command {
	var runID, taskID, author, message string
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Append a comment to a task's conversation log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireWorktreePath(*worktreePath); err != nil {
				return err
			}
			store, _, err := openRun(*worktreePath, runID, logger)
			if err != nil {
				return err
			}
			if err := store.AppendConversationEntry(taskID, author, message); err != nil {
				return err
			}
			fmt.Println("comment recorded")
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "Run id (defaults to the most recently modified run)")
	cmd.Flags().StringVar(&taskID, "task-id", "", "Task id to comment on")
	cmd.Flags().StringVar(&author, "author", "", "Comment author")
	cmd.Flags().StringVar(&message, "message", "", "Comment text")
	_ = cmd.MarkFlagRequired("task-id")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

// openRun resolves runID (or the most recently modified run under
// worktreePath/codex-runs) and opens its Task Store, along with a RunContext
// that carries only the run id: expansion driven from it uses the
// implement_feature seed ids and renders prompts without the run's
// description or guidance.
func openRun(worktreePath, runID string, logger *slog.Logger) (*task.Store, task.RunContext, error) {
	runsDir := filepath.Join(worktreePath, "codex-runs")
	if runID == "" {
		entries, err := os.ReadDir(runsDir)
		if err != nil {
			return nil, task.RunContext{}, fmt.Errorf("listing runs under %s: %w", runsDir, err)
		}
		var newest os.DirEntry
		var newestTime int64
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if mt := info.ModTime().Unix(); newest == nil || mt > newestTime {
				newest = e
				newestTime = mt
			}
		}
		if newest == nil {
			return nil, task.RunContext{}, fmt.Errorf("no runs found under %s", runsDir)
		}
		runID = newest.Name()
	}

	runRoot := filepath.Join(runsDir, runID)
	store, err := task.NewStore(filepath.Join(runRoot, "tasks"), filepath.Join(runRoot, "conversations"), logger)
	if err != nil {
		return nil, task.RunContext{}, err
	}
	return store, task.RunContext{RunID: runID}, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

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

// Package errors defines the kernel's error taxonomy: typed errors that
// callers can match with errors.As, each carrying the context needed to
// explain a failure without string-matching the message.
package errors

import "fmt"

// NotFoundError represents a reference to an unknown worktree, run, or task.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// InvalidInputError represents a malformed or missing caller-supplied value
// (an empty approver name, an empty comment message, a malformed briefing).
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid input: %s", e.Message)
}

// BusyError represents an operation attempted while a task is not in a
// compatible state for it (e.g. approving a task that is not awaiting review).
type BusyError struct {
	TaskID string
	Status string
	Want   string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("task %s is %s, want %s", e.TaskID, e.Status, e.Want)
}

// ClaimConflictError represents a lock directory that already exists.
// Expected under contention; never surfaced to the caller as a failure.
type ClaimConflictError struct {
	TaskID string
}

func (e *ClaimConflictError) Error() string {
	return fmt.Sprintf("task %s is already claimed", e.TaskID)
}

// ExecutorFailureError represents a child process that exited non-zero or an
// executor that threw before producing a result. The message is preserved
// and stored on the task's summary.
type ExecutorFailureError struct {
	TaskID string
	Role   string
	Cause  error
}

func (e *ExecutorFailureError) Error() string {
	return fmt.Sprintf("executor failed for task %s (role %s): %v", e.TaskID, e.Role, e.Cause)
}

func (e *ExecutorFailureError) Unwrap() error { return e.Cause }

// PathEscapeError represents an artifact path that would resolve outside
// runRoot. Treated as an ExecutorFailureError for the owning task.
type PathEscapeError struct {
	Path    string
	RunRoot string
}

func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("artifact path %q escapes run root %q", e.Path, e.RunRoot)
}

// CorruptedError represents a task JSON file that could not be parsed.
// Callers log and skip; they never abort a scan because of one bad file.
type CorruptedError struct {
	Path  string
	Cause error
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("corrupted task file %q: %v", e.Path, e.Cause)
}

func (e *CorruptedError) Unwrap() error { return e.Cause }

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

package executor

import "context"

// Reviewer is behaviourally identical to GenericCLI — it is a distinct type
// only so the Worker Supervisor's executor factory can bind it to the
// "reviewer" role by type rather than by a string comparison. Its outcome
// status is what the Role Worker's status-override table acts on.
type Reviewer struct {
	CLI GenericCLI
}

func (e Reviewer) Execute(ctx context.Context, ectx Context) (*Result, error) {
	return e.CLI.Execute(ctx, ectx)
}

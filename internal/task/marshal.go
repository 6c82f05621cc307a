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

package task

import "encoding/json"

// taskAlias has the same fields as Task but without the custom
// Marshal/UnmarshalJSON methods, so encoding/json's reflection-based coding
// can be reused from inside them without infinite recursion.
type taskAlias Task

// knownFields lists every JSON key taskAlias encodes, used to split a raw
// object into "recognised" vs "extra" during UnmarshalJSON.
var knownFields = map[string]bool{
	"id": true, "epic": true, "kind": true, "role": true, "title": true,
	"prompt": true, "status": true, "cwd": true, "depends_on": true,
	"approvals_required": true, "approvals": true, "artifacts": true,
	"summary": true, "worker_outcome": true, "last_claimed_by": true,
	"created_at": true, "updated_at": true,
}

// MarshalJSON projects the closed record plus the opaque Extra bag back into
// a single flat object, so unknown fields a newer build wrote survive a
// read-modify-write cycle by this build.
func (t Task) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(taskAlias(t))
	if err != nil {
		return nil, err
	}
	if len(t.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range t.Extra {
		if _, known := knownFields[k]; known {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the closed record and stashes any unrecognised keys
// in Extra instead of discarding them.
func (t *Task) UnmarshalJSON(data []byte) error {
	var alias taskAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*t = Task(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if knownFields[k] {
			continue
		}
		extra[k] = v
	}
	if len(extra) > 0 {
		t.Extra = extra
	}
	return nil
}

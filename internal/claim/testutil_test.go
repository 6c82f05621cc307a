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

package claim

import (
	"os"
	"time"
)

// mkdirAllOld creates dir and backdates its mtime by -age (age is negative,
// e.g. -time.Hour), simulating a lock directory left behind by a crashed
// worker.
func mkdirAllOld(dir string, age time.Duration) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	old := time.Now().Add(age)
	return os.Chtimes(dir, old, old)
}

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

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kerrors "github.com/orchkit/kernel/pkg/errors"
)

// conversationPath returns the markdown file backing taskID's comment log.
func (s *Store) conversationPath(taskID string) string {
	return filepath.Join(s.conversationRoot, taskID+".md")
}

// AppendConversationEntry appends one markdown block to taskID's
// conversation file. Concurrent appends from different writers are safe:
// interleaved blocks are acceptable, the file is never rewritten wholesale.
func (s *Store) AppendConversationEntry(taskID, author, message string) error {
	if strings.TrimSpace(message) == "" {
		return &kerrors.InvalidInputError{Field: "message", Message: "must not be empty"}
	}
	if strings.TrimSpace(author) == "" {
		return &kerrors.InvalidInputError{Field: "author", Message: "must not be empty"}
	}

	path := s.conversationPath(taskID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening conversation file for %s: %w", taskID, err)
	}
	defer f.Close()

	block := fmt.Sprintf("## %s — %s\n\n%s\n\n", time.Now().UTC().Format(time.RFC3339), author, message)
	if _, err := f.WriteString(block); err != nil {
		return fmt.Errorf("appending conversation entry for %s: %w", taskID, err)
	}
	return nil
}

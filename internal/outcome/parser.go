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

// Package outcome normalises the newline-delimited JSON event stream an
// external AI CLI writes to stdout into human-readable chunks, and maintains
// the bounded rolling tail a Role Worker attaches to status updates.
package outcome

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TailLimit bounds the rolling log tail kept for status updates.
const TailLimit = 4 * 1024

type cliEvent struct {
	Msg struct {
		Type    string   `json:"type"`
		Text    string   `json:"text"`
		Command []string `json:"command"`
		Cwd     string   `json:"cwd"`
		Stdout  string   `json:"stdout"`
		Stderr  string   `json:"stderr"`
		Chunk   string   `json:"chunk"`
		Code    int      `json:"exit_code"`
	} `json:"msg"`
}

// NormalizeLine parses one line of CLI output and returns the text a worker
// should append to its log, and whether the line produced any output at all
// ("" is also a valid, intentional result for token_count events).
func NormalizeLine(line string) (string, bool) {
	trimmed := strings.TrimRight(line, "\r\n")
	if trimmed == "" {
		return "", false
	}

	var ev cliEvent
	if err := json.Unmarshal([]byte(trimmed), &ev); err != nil {
		return trimmed + "\n", true
	}

	switch ev.Msg.Type {
	case "agent_reasoning":
		return "🧠 " + ev.Msg.Text + "\n", true
	case "agent_message":
		return ev.Msg.Text + "\n", true
	case "exec_command_begin":
		return fmt.Sprintf("$ %s (cwd: %s)\n", strings.Join(ev.Msg.Command, " "), ev.Msg.Cwd), true
	case "exec_command_output_delta", "exec_command_output":
		return decodeMaybeBase64(ev.Msg.Chunk) + "\n", true
	case "exec_command_end":
		var b strings.Builder
		if ev.Msg.Stdout != "" {
			b.WriteString(ev.Msg.Stdout)
			if !strings.HasSuffix(ev.Msg.Stdout, "\n") {
				b.WriteString("\n")
			}
		}
		if ev.Msg.Stderr != "" {
			b.WriteString(ev.Msg.Stderr)
			if !strings.HasSuffix(ev.Msg.Stderr, "\n") {
				b.WriteString("\n")
			}
		}
		fmt.Fprintf(&b, "✔ command finished (code %d)\n", ev.Msg.Code)
		return b.String(), true
	case "token_count":
		return "", false
	default:
		return trimmed + "\n", true
	}
}

// decodeMaybeBase64 decodes chunk as standard base64 if it looks padded and
// decodes cleanly to valid UTF-8 with no replacement characters; otherwise
// it returns chunk unmodified (§8 boundary behaviour).
func decodeMaybeBase64(chunk string) string {
	if chunk == "" || len(chunk)%4 != 0 {
		return chunk
	}
	decoded, err := base64.StdEncoding.DecodeString(chunk)
	if err != nil {
		return chunk
	}
	if !utf8.Valid(decoded) || strings.ContainsRune(string(decoded), utf8.RuneError) {
		return chunk
	}
	return string(decoded)
}

// Tail is a bounded rolling buffer of normalised log text.
type Tail struct {
	buf string
}

// Append adds text to the tail, dropping the oldest bytes once TailLimit is
// exceeded. Trimming happens at a line boundary where possible so the tail
// never starts mid-sentence.
func (t *Tail) Append(text string) {
	t.buf += text
	if len(t.buf) <= TailLimit {
		return
	}
	cut := len(t.buf) - TailLimit
	if idx := strings.IndexByte(t.buf[cut:], '\n'); idx >= 0 && cut+idx+1 < len(t.buf) {
		t.buf = t.buf[cut+idx+1:]
	} else {
		t.buf = t.buf[cut:]
	}
}

// String returns the current tail contents.
func (t *Tail) String() string { return t.buf }

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

package outcome

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeLineReasoningAndExecBegin(t *testing.T) {
	var tail Tail
	for _, line := range []string{
		`{"msg":{"type":"agent_reasoning","text":"Check tests"}}`,
		`{"msg":{"type":"exec_command_begin","command":["cargo","test"],"cwd":"/w"}}`,
	} {
		text, ok := NormalizeLine(line)
		require.True(t, ok)
		tail.Append(text)
	}
	require.Equal(t, "🧠 Check tests\n$ cargo test (cwd: /w)\n", tail.String())
}

func TestNormalizeLineTokenCountProducesNoOutput(t *testing.T) {
	text, ok := NormalizeLine(`{"msg":{"type":"token_count"}}`)
	require.False(t, ok)
	require.Empty(t, text)
}

func TestNormalizeLineExecCommandEnd(t *testing.T) {
	text, ok := NormalizeLine(`{"msg":{"type":"exec_command_end","stdout":"ok\n","exit_code":0}}`)
	require.True(t, ok)
	require.Equal(t, "ok\n✔ command finished (code 0)\n", text)
}

func TestNormalizeLineMalformedJSONPassesThrough(t *testing.T) {
	text, ok := NormalizeLine("not json at all")
	require.True(t, ok)
	require.Equal(t, "not json at all\n", text)
}

func TestNormalizeLineEmptyLineProducesNoOutput(t *testing.T) {
	_, ok := NormalizeLine("\n")
	require.False(t, ok)
}

func TestDecodeMaybeBase64ValidUTF8(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("hello world"))
	text, ok := NormalizeLine(`{"msg":{"type":"exec_command_output","chunk":"` + encoded + `"}}`)
	require.True(t, ok)
	require.Equal(t, "hello world\n", text)
}

func TestDecodeMaybeBase64InvalidPassesThrough(t *testing.T) {
	text, ok := NormalizeLine(`{"msg":{"type":"exec_command_output","chunk":"not-base64!!"}}`)
	require.True(t, ok)
	require.Equal(t, "not-base64!!\n", text)
}

func TestDecodeMaybeBase64WithReplacementCharPassesThrough(t *testing.T) {
	invalidUTF8 := []byte{0xff, 0xfe, 0xfd, 0xfc}
	encoded := base64.StdEncoding.EncodeToString(invalidUTF8)
	text, ok := NormalizeLine(`{"msg":{"type":"exec_command_output","chunk":"` + encoded + `"}}`)
	require.True(t, ok)
	require.Equal(t, encoded+"\n", text)
}

func TestTailTrimsAtLineBoundaryOnceOverLimit(t *testing.T) {
	var tail Tail
	for i := 0; i < TailLimit/8; i++ {
		tail.Append("0123456\n")
	}
	tail.Append("final line\n")
	require.LessOrEqual(t, len(tail.String()), TailLimit+len("final line\n"))
	require.Contains(t, tail.String(), "final line\n")
}

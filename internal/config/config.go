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

// Package config resolves the environment the executors and workers need:
// the AI CLI binary, sandbox/approval policy, reasoning-depth defaults, the
// test command, and the kernel's internal timing knobs. Environment
// variables take precedence; a YAML file (loaded the way the teacher loads
// its daemon config) supplies defaults for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ReasoningDepth is the effort level passed through to the AI CLI.
type ReasoningDepth string

const (
	ReasoningLow    ReasoningDepth = "low"
	ReasoningMedium ReasoningDepth = "medium"
	ReasoningHigh   ReasoningDepth = "high"
)

// Config is the kernel's resolved runtime configuration.
type Config struct {
	// CLIBinary is the AI CLI executable invoked by executors.
	CLIBinary string `yaml:"cli_binary"`
	// CLIArgs are extra arguments appended to every invocation.
	CLIArgs []string `yaml:"cli_args,omitempty"`

	// TestCommand is the shell command the tester executor runs.
	TestCommand string `yaml:"test_command"`

	// SandboxPolicy controls the implementer executor's filesystem sandbox
	// (e.g. "workspace-write", "read-only").
	SandboxPolicy string `yaml:"sandbox_policy"`
	// ApprovalPolicy controls whether the CLI may act without confirmation.
	ApprovalPolicy string `yaml:"approval_policy"`
	// UnsafeSandbox disables the sandbox entirely. Escape hatch; off by default.
	UnsafeSandbox bool `yaml:"unsafe_sandbox"`

	// ReasoningDefault is the effort level used when no role override applies.
	ReasoningDefault ReasoningDepth `yaml:"reasoning_default"`
	// ReasoningByRole overrides ReasoningDefault for specific roles.
	ReasoningByRole map[string]ReasoningDepth `yaml:"reasoning_by_role,omitempty"`

	// AnalysisCount is passed into each run's RunContext. implement_feature
	// runs always seed exactly two analyst tasks (A and B); this value does
	// not change that number.
	AnalysisCount int `yaml:"analysis_count"`
	// BugHunterCount is the number of hunter tasks seeded for bug_hunt runs.
	BugHunterCount int `yaml:"bug_hunter_count"`

	// PollInterval is how often an idle role worker retries claimNext.
	PollInterval time.Duration `yaml:"poll_interval"`
	// HeartbeatInterval is how often a working role worker republishes status.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// LockSweepThreshold is the age at which a stale lock directory is
	// considered abandoned and eligible for startup cleanup.
	LockSweepThreshold time.Duration `yaml:"lock_sweep_threshold"`
	// RunRetention is how long completed/stopped run state is kept before
	// the coordinator's cleanup loop prunes it.
	RunRetention time.Duration `yaml:"run_retention"`
}

// Default returns the kernel's hardcoded defaults.
func Default() *Config {
	return &Config{
		CLIBinary:          "codex",
		TestCommand:        "npm test",
		SandboxPolicy:      "workspace-write",
		ApprovalPolicy:     "on-failure",
		ReasoningDefault:   ReasoningLow,
		ReasoningByRole:    map[string]ReasoningDepth{},
		AnalysisCount:      2,
		BugHunterCount:     3,
		PollInterval:       500 * time.Millisecond,
		HeartbeatInterval:  2 * time.Second,
		LockSweepThreshold: 15 * time.Minute,
		RunRetention:       24 * time.Hour,
	}
}

// Load reads a YAML file at path (if non-empty and present) over the
// hardcoded defaults, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ORCHKIT_CLI_BIN"); v != "" {
		cfg.CLIBinary = v
	}
	if v := os.Getenv("ORCHKIT_TEST_COMMAND"); v != "" {
		cfg.TestCommand = v
	}
	if v := os.Getenv("ORCHKIT_SANDBOX_POLICY"); v != "" {
		cfg.SandboxPolicy = v
	}
	if v := os.Getenv("ORCHKIT_APPROVAL_POLICY"); v != "" {
		cfg.ApprovalPolicy = v
	}
	if v := os.Getenv("ORCHKIT_UNSAFE_SANDBOX"); v == "true" || v == "1" {
		cfg.UnsafeSandbox = true
	}
	if v := os.Getenv("ORCHKIT_REASONING_DEPTH"); v != "" {
		cfg.ReasoningDefault = ReasoningDepth(strings.ToLower(v))
	}
	if v := os.Getenv("ORCHKIT_ANALYSIS_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AnalysisCount = n
		}
	}
	if v := os.Getenv("ORCHKIT_BUG_HUNTER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BugHunterCount = n
		}
	}
	if v := os.Getenv("ORCHKIT_POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PollInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("ORCHKIT_HEARTBEAT_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HeartbeatInterval = time.Duration(n) * time.Millisecond
		}
	}

	if cfg.ReasoningByRole == nil {
		cfg.ReasoningByRole = map[string]ReasoningDepth{}
	}
	const prefix = "ORCHKIT_REASONING_DEPTH_"
	for _, kv := range os.Environ() {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) || val == "" {
			continue
		}
		role := strings.ToLower(strings.TrimPrefix(key, prefix))
		cfg.ReasoningByRole[role] = ReasoningDepth(strings.ToLower(val))
	}
}

// ReasoningFor resolves the effective reasoning depth for role: per-role
// override, then global default, then ReasoningLow.
func (c *Config) ReasoningFor(role string) ReasoningDepth {
	if c == nil {
		return ReasoningLow
	}
	if d, ok := c.ReasoningByRole[role]; ok && d != "" {
		return d
	}
	if c.ReasoningDefault != "" {
		return c.ReasoningDefault
	}
	return ReasoningLow
}

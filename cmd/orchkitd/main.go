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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/orchkit/kernel/internal/bus"
	"github.com/orchkit/kernel/internal/config"
	"github.com/orchkit/kernel/internal/coordinator"
	"github.com/orchkit/kernel/internal/log"
	"github.com/orchkit/kernel/internal/metrics"
	"github.com/orchkit/kernel/internal/registry"
	"github.com/orchkit/kernel/internal/supervisor"
	"github.com/orchkit/kernel/internal/tracing"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to kernel YAML config")
		registryPath = flag.String("worktrees", "", "Path to worktree registry YAML file")
		metricsAddr  = flag.String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics on")
		cleanupEvery = flag.Duration("cleanup-interval", 0, "How often to sweep stale run state (0 = use the configured run retention)")
		showVersion  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("orchkitd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	worktrees, err := registry.Load(*registryPath)
	if err != nil {
		logger.Error("failed to load worktree registry", slog.Any("error", err))
		os.Exit(1)
	}

	tp, err := tracing.NewProvider("orchkitd", os.Stdout)
	if err != nil {
		logger.Error("failed to start tracing", slog.Any("error", err))
		os.Exit(1)
	}

	b := bus.New()
	sup := supervisor.New(logger)
	coord := coordinator.New(b, sup, cfg, worktrees.Resolve, logger)

	interval := *cleanupEvery
	if interval <= 0 {
		interval = cfg.RunRetention
	}
	stopCleanup := coord.StartCleanupLoop(interval, cfg.RunRetention)

	metricsServer := metrics.NewServer(*metricsAddr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- metricsServer.Run()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("orchkitd started", slog.String("metrics_addr", *metricsAddr))

	select {
	case sig := <-sigCh:
		fmt.Printf("\nreceived signal %v, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("metrics server error", slog.Any("error", err))
		}
	}

	cancel()
	stopCleanup()
	if err := coord.Dispose(context.Background()); err != nil {
		logger.Error("error disposing coordinator", slog.Any("error", err))
	}
	if err := metricsServer.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down metrics server", slog.Any("error", err))
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down tracing", slog.Any("error", err))
	}
}

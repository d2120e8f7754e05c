// Copyright 2025 Kadir Pekel
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

// Command orchestrator is the batch CLI wrapping the orchestrator facade:
// it owns the one piece of wiring the facade deliberately stays ignorant
// of (concrete checkpoint/session backends, the LLM gateway's HTTP
// endpoints), and drives a single task to completion from the terminal.
// This binary is the "batch CLI" transport §2 names, nothing more; the
// module contains no HTTP/SSE or TUI front end.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentic-coder/orchestrator/pkg/cache"
	"github.com/agentic-coder/orchestrator/pkg/checkpoint"
	"github.com/agentic-coder/orchestrator/pkg/config"
	"github.com/agentic-coder/orchestrator/pkg/llms"
	"github.com/agentic-coder/orchestrator/pkg/observability"
	"github.com/agentic-coder/orchestrator/pkg/orchestrator"
	"github.com/agentic-coder/orchestrator/pkg/router"
	"github.com/agentic-coder/orchestrator/pkg/safety"
	"github.com/agentic-coder/orchestrator/pkg/session"
	"github.com/agentic-coder/orchestrator/pkg/subagent"
)

// built bundles the wired Orchestrator with the pieces main needs to
// close down cleanly (the observability manager owns the OTel tracer
// provider and the Prometheus handler's background state; the DB pool
// owns any SQL connections opened for a relational persistence backend).
type built struct {
	orch    *orchestrator.Orchestrator
	obs     *observability.Manager
	dbPool  *config.DBPool
	policy  *safety.DynamicPolicy
	cleanup func(ctx context.Context)
}

// ReloadPolicy swaps in the tool-safety rules from a freshly loaded
// Config, the one piece of configuration this binary supports hot-
// reloading (development.hot_reload) while a task is in flight: command/
// file rules take effect on the very next guard check, with no
// disruption to any running workflow.
func (b *built) ReloadPolicy(cfg *config.Config) {
	b.policy.Replace(safety.Config{
		Enabled:          toolsEnabled(cfg.Tools),
		CommandAllowlist: cfg.Tools.CommandAllowlist,
		CommandDenylist:  cfg.Tools.CommandDenylist,
		ProtectedFiles:   append(append([]string{}, cfg.Tools.ProtectedFiles...), cfg.Tools.ProtectedPaths...),
		ProtectedGlobs:   cfg.Tools.ProtectedGlobs,
	})
}

// buildOrchestrator wires every C1-C9 component named in §2 from a
// validated Config, breaking the one real circular dependency in the
// graph (the sub-agent manager's Runner is the same Dispatcher the
// top-level facade builds for itself) via subagent.Manager.SetRunner.
func buildOrchestrator(ctx context.Context, cfg *config.Config) (*built, error) {
	obsMgr, err := observability.NewManager(ctx, &observability.Config{
		Tracing: observability.TracingConfig{
			Enabled:  cfg.Development.TracingExporter != "none" && cfg.Development.TracingExporter != "",
			Exporter: cfg.Development.TracingExporter,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: observability: %w", err)
	}
	metrics := observability.Recorder(obsMgr.Metrics())

	responseCache := cache.NewLRUCache(cfg.Performance.CacheSize)
	gateway, err := llms.NewGateway(cfg.LLM,
		llms.WithCache(responseCache),
		llms.WithMetrics(metrics),
		llms.WithTracer(obsMgr.Tracer()),
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: llm gateway: %w", err)
	}

	policy := safety.NewDynamicPolicy(safety.Config{
		Enabled:          toolsEnabled(cfg.Tools),
		CommandAllowlist: cfg.Tools.CommandAllowlist,
		CommandDenylist:  cfg.Tools.CommandDenylist,
		ProtectedFiles:   append(append([]string{}, cfg.Tools.ProtectedFiles...), cfg.Tools.ProtectedPaths...),
		ProtectedGlobs:   cfg.Tools.ProtectedGlobs,
	})

	rtr := router.New(gateway, router.Config{})

	dbPool := config.NewDBPool()
	backend, err := buildCheckpointBackend(ctx, cfg, dbPool)
	if err != nil {
		dbPool.Close()
		return nil, err
	}
	checkpoints := checkpoint.NewManager(&cfg.Workflows.Checkpoint, backend)
	sessions := session.NewManager(checkpoints)

	decomposer := subagent.NewDecomposer(gateway)
	subagents := subagent.NewManager(decomposer, nil, subagent.Config{
		MaxParallel: cfg.Workflows.MaxParallel,
	})

	optimizer := cache.NewOptimizer(cache.OptimizerConfig{
		MaxMessages:  cfg.Performance.MaxMessages,
		MaxToolCalls: cfg.Performance.MaxToolCalls,
		MaxContextKB: cfg.Performance.MaxContextKB,
	})

	registry := orchestrator.NewToolRegistry()

	orch := orchestrator.New(
		cfg.Workflows,
		gateway,
		registry,
		policy,
		rtr,
		checkpoints,
		sessions,
		subagents,
		optimizer,
		metrics,
		cfg.Workspace.Root,
	)

	// The facade's own Dispatcher also implements subagent.Runner (a
	// delegated subtask is just a child workflow dispatched the same
	// way); bind it now that both halves exist.
	subagents.SetRunner(orch.Dispatcher())

	cleanup := func(ctx context.Context) {
		_ = obsMgr.Shutdown(ctx)
		dbPool.Close()
	}

	return &built{orch: orch, obs: obsMgr, dbPool: dbPool, policy: policy, cleanup: cleanup}, nil
}

// startHotReload watches path for changes and re-applies whatever b
// supports reloading without restarting the process. Only the
// tool-safety policy is live-swappable today (§7: config errors outside
// startup must never crash an in-flight task) — other components (the
// LLM gateway's endpoint list, persistence backend) stay fixed for the
// process lifetime and require a restart, same as the teacher's own
// config watcher only pushes change notifications rather than rebuilding
// its whole runtime on every edit.
func startHotReload(ctx context.Context, path string, b *built) {
	w, err := config.NewWatcher(path)
	if err != nil {
		slog.Error("hot-reload: failed to start config watcher", "error", err)
		return
	}
	if err := w.Start(ctx, func(cfg *config.Config) {
		b.ReloadPolicy(cfg)
	}); err != nil {
		slog.Error("hot-reload: failed to watch config file", "path", path, "error", err)
		return
	}
	go func() {
		<-ctx.Done()
		_ = w.Close()
	}()
}

func toolsEnabled(cfg config.ToolsConfig) bool {
	if cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}

// buildCheckpointBackend opens the configured persistence backend: an
// embedded file store rooted under the workspace, or a relational store
// over the shared DB pool.
func buildCheckpointBackend(ctx context.Context, cfg *config.Config, pool *config.DBPool) (checkpoint.Backend, error) {
	switch cfg.Persistence.Backend {
	case "sqlite", "postgresql":
		dbCfg, err := cfg.Persistence.DatabaseConfig()
		if err != nil {
			return nil, err
		}
		db, err := pool.Get(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: open persistence backend: %w", err)
		}
		return checkpoint.NewSQLBackend(ctx, db, dbCfg.DriverName())
	default:
		return checkpoint.NewFileBackend(cfg.Workspace.Root)
	}
}

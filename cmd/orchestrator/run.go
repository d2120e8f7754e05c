// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agentic-coder/orchestrator/pkg/config"
	"github.com/agentic-coder/orchestrator/pkg/orchestrator"
)

// RunCmd submits a new task and streams its Updates to stdout as
// newline-delimited JSON, one object per line, per §6's Update stream
// contract. It exits with the code §6 assigns to the task's outcome.
type RunCmd struct {
	Task      string `arg:"" help:"Natural-language task description."`
	Workspace string `help:"Workspace directory for this task (defaults to workspace.root)."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	trapSignals(cancel)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return withExitCode(err, exitStartup)
	}

	b, err := buildOrchestrator(ctx, cfg)
	if err != nil {
		return withExitCode(err, exitStartup)
	}
	defer b.cleanup(context.Background())

	if cfg.Development.HotReload {
		startHotReload(ctx, cli.Config, b)
	}

	handle, err := b.orch.Submit(ctx, c.Task, c.Workspace)
	if err != nil {
		return withExitCode(err, exitStartup)
	}

	fmt.Fprintf(os.Stderr, "task %s (thread %s) submitted\n", handle.TaskID, handle.ThreadID)
	return withExitCode(streamUpdates(handle), 0)
}

// streamUpdates prints every Update on handle.Updates as it arrives and
// translates the terminal Update into the matching process exit code.
// Returning a non-nil error from here only ever carries an exit code
// (via withExitCode at the call site); the actual diagnostic was already
// printed to stdout as the terminal Update itself.
func streamUpdates(handle *orchestrator.Handle) error {
	enc := json.NewEncoder(os.Stdout)
	var final orchestrator.Update
	for u := range handle.Updates {
		final = u
		if err := enc.Encode(u); err != nil {
			return withExitCode(fmt.Errorf("orchestrator: write update: %w", err), exitFailed)
		}
	}

	switch final.Type {
	case orchestrator.TypeCompleted:
		return nil
	case orchestrator.TypeCancelled:
		return withExitCode(fmt.Errorf("orchestrator: task cancelled"), exitCancelled)
	case orchestrator.TypeError:
		return withExitCode(fmt.Errorf("orchestrator: task failed: %s", final.Error), exitFailed)
	default:
		return withExitCode(fmt.Errorf("orchestrator: stream ended without a terminal update"), exitFailed)
	}
}

// trapSignals cancels ctx on SIGINT/SIGTERM so an in-flight task reaches
// its cancelled terminal status (§5's cooperative-cancellation contract)
// instead of the process dying mid-run.
func trapSignals(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
}

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

	"github.com/agentic-coder/orchestrator/pkg/config"
)

// ResumeCmd reopens a thread id from its last checkpoint (§4.7's resume
// contract) and continues streaming Updates from wherever the task left
// off.
type ResumeCmd struct {
	ThreadID string `arg:"" help:"Thread id to resume."`
}

func (c *ResumeCmd) Run(cli *CLI) error {
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

	handle, err := b.orch.Resume(ctx, c.ThreadID)
	if err != nil {
		return withExitCode(err, exitStartup)
	}

	return withExitCode(streamUpdates(handle), 0)
}

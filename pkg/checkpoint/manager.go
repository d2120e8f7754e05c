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

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/agentic-coder/orchestrator/pkg/session"
	"github.com/agentic-coder/orchestrator/pkg/workflow"
)

// Manager wraps a Backend with JSON (de)serialization of workflow.State
// and the checkpoint-cadence policy in Config. It implements
// session.Store, so a session.Manager can load and validate checkpoints
// without importing this package.
type Manager struct {
	cfg     *Config
	backend Backend
}

// NewManager builds a Manager. A nil cfg checkpoints nothing (IsEnabled
// returns false) but Load/Exists still work, so resuming a thread written
// before checkpointing was turned off still succeeds.
func NewManager(cfg *Config, backend Backend) *Manager {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.SetDefaults()
	return &Manager{cfg: cfg, backend: backend}
}

// IsEnabled returns whether checkpointing is enabled.
func (m *Manager) IsEnabled() bool { return m.cfg.IsEnabled() }

// Config returns the checkpoint configuration.
func (m *Manager) Config() *Config { return m.cfg }

// SaveSnapshot serializes s and writes it as the latest snapshot for its
// thread id.
func (m *Manager) SaveSnapshot(ctx context.Context, s *workflow.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("checkpoint: marshal state: %w", err)
	}
	return m.backend.Save(ctx, s.ThreadID, data)
}

// LoadSnapshot retrieves and validates the latest snapshot for threadID.
// A snapshot that exists but fails workflow validation is rejected with
// an error; the caller decides whether to restart the task or abort, per
// §4.7's resume contract.
func (m *Manager) LoadSnapshot(ctx context.Context, threadID string) (*workflow.State, error) {
	data, err := m.backend.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	var s workflow.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal thread %s: %w", threadID, err)
	}
	if !s.Validate() {
		return nil, fmt.Errorf("checkpoint: snapshot for thread %s failed validation", threadID)
	}
	return &s, nil
}

// DeleteSnapshot removes a thread's snapshot, e.g. once its session
// completes.
func (m *Manager) DeleteSnapshot(ctx context.Context, threadID string) error {
	return m.backend.Delete(ctx, threadID)
}

// PendingThreads lists every thread id with a persisted snapshot, for a
// startup recovery sweep.
func (m *Manager) PendingThreads(ctx context.Context) ([]string, error) {
	return m.backend.ListThreads(ctx)
}

// Load implements session.Store.
func (m *Manager) Load(ctx context.Context, threadID string) (session.State, bool, error) {
	s, err := m.LoadSnapshot(ctx, threadID)
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	view := workflow.AsSessionView(s)
	return view, true, nil
}

// Exists implements session.Store.
func (m *Manager) Exists(ctx context.Context, threadID string) (bool, error) {
	return m.backend.Exists(ctx, threadID)
}

var _ session.Store = (*Manager)(nil)

// Hooks wires Manager's cadence policy into the running engine: the
// workflow engine (or the orchestrator facade driving it) calls these at
// the points named by Config's strategy, and the Manager decides, per
// call, whether a checkpoint is actually due.
type Hooks struct {
	manager *Manager
}

// NewHooks creates cadence hooks bound to manager. A nil manager produces
// a Hooks whose methods are all no-ops.
func NewHooks(manager *Manager) *Hooks {
	return &Hooks{manager: manager}
}

func (h *Hooks) save(ctx context.Context, s *workflow.State, label string) {
	if h == nil || h.manager == nil || !h.manager.IsEnabled() {
		return
	}
	if err := h.manager.SaveSnapshot(ctx, s); err != nil {
		slog.Warn("failed to save checkpoint", "thread_id", s.ThreadID, "point", label, "error", err)
	}
}

// BeforeLLMCall checkpoints before a plan-node LLM call, if configured to.
func (h *Hooks) BeforeLLMCall(ctx context.Context, s *workflow.State) {
	if h == nil || h.manager == nil || !h.manager.cfg.ShouldCheckpointBeforeLLM() {
		return
	}
	h.save(ctx, s, "before_llm")
}

// AfterToolExecution checkpoints after an execute-node dispatch, if
// configured to.
func (h *Hooks) AfterToolExecution(ctx context.Context, s *workflow.State) {
	if h == nil || h.manager == nil || !h.manager.cfg.ShouldCheckpointAfterTools() {
		return
	}
	h.save(ctx, s, "after_tools")
}

// OnIterationEnd checkpoints at the configured interval cadence.
func (h *Hooks) OnIterationEnd(ctx context.Context, s *workflow.State) {
	if h == nil || h.manager == nil || !h.manager.cfg.ShouldCheckpointAtIteration(s.Iteration) {
		return
	}
	h.save(ctx, s, "iteration_end")
}

// OnApprovalRequired always checkpoints (an awaiting_approval pause must
// survive a process restart) when checkpointing is enabled at all.
func (h *Hooks) OnApprovalRequired(ctx context.Context, s *workflow.State) {
	if h == nil || h.manager == nil || !h.manager.IsEnabled() {
		return
	}
	h.save(ctx, s, "approval_required")
}

// OnError always checkpoints on an unrecoverable engine error.
func (h *Hooks) OnError(ctx context.Context, s *workflow.State) {
	if h == nil || h.manager == nil || !h.manager.IsEnabled() {
		return
	}
	h.save(ctx, s, "error")
}

// OnComplete clears the thread's checkpoint once its task reaches a
// terminal status.
func (h *Hooks) OnComplete(ctx context.Context, threadID string) {
	if h == nil || h.manager == nil || !h.manager.IsEnabled() {
		return
	}
	if err := h.manager.DeleteSnapshot(ctx, threadID); err != nil {
		slog.Warn("failed to clear checkpoint on completion", "thread_id", threadID, "error", err)
	}
}

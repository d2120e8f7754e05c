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

package subagent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner executes one subtask as a child workflow run. Implementations
// own the tool allowlist-by-agent-type mapping, the isolated child state,
// and the shorter iteration cap described for this component; this
// package only owns ordering, fan-out, and aggregation.
type Runner interface {
	Run(ctx context.Context, subtask Subtask, sharedContext map[string]any) (string, error)
}

// Config configures a Manager.
type Config struct {
	MaxParallel     int
	SubtaskTimeout  time.Duration
	AggregationMode AggregationStrategy
}

func (c *Config) setDefaults() {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 4
	}
	if c.SubtaskTimeout <= 0 {
		c.SubtaskTimeout = 5 * time.Minute
	}
	if c.AggregationMode == "" {
		c.AggregationMode = AggregateConcatenate
	}
}

// Manager decomposes a task, runs its subtasks with at most MaxParallel in
// flight per ExecuteWithSubagents call, and aggregates results. The cap is
// not shared between concurrent ExecuteWithSubagents calls.
type Manager struct {
	decomposer *Decomposer
	runner     Runner
	cfg        Config
	summarizer Summarizer

	mu       sync.Mutex
	spawned  int64
	succeded int64
	failed   int64
}

// NewManager builds a Manager. runner may be nil at construction time and
// supplied later via SetRunner — the orchestrator's own Dispatcher is a
// Runner that, in turn, needs a constructed Manager to delegate to, so
// production wiring builds the Manager first with a nil runner and closes
// the loop once the Dispatcher exists.
func NewManager(decomposer *Decomposer, runner Runner, cfg Config) *Manager {
	cfg.setDefaults()
	return &Manager{decomposer: decomposer, runner: runner, cfg: cfg}
}

// SetRunner binds (or replaces) the Runner a Manager delegates subtasks
// to. Safe to call once before any Execute call is in flight.
func (m *Manager) SetRunner(runner Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runner = runner
}

// Aggregated is the outcome of running a (possibly decomposed) task
// through zero or more sub-agents.
type Aggregated struct {
	Success        bool
	Summary        string
	Results        []SubtaskResult
	CombinedResult string
	SucceededCount int
	FailedCount    int
	TotalDuration  time.Duration
}

// ExecuteWithSubagents decomposes task, runs every subtask respecting
// dependency order and the configured fan-out cap, and aggregates the
// results. sharedContext is passed, uncopied, to every subtask.
func (m *Manager) ExecuteWithSubagents(ctx context.Context, task string, sharedContext map[string]any) Aggregated {
	start := time.Now()
	decomp := m.decomposer.Decompose(ctx, task)

	batches, err := topoBatches(decomp.Subtasks)
	if err != nil {
		slog.Warn("subagent: dependency cycle detected, falling back to sequential execution", "error", err)
		batches = make([][]Subtask, len(decomp.Subtasks))
		for i, st := range decomp.Subtasks {
			batches[i] = []Subtask{st}
		}
	}

	var results []SubtaskResult
	for _, batch := range batches {
		results = append(results, m.runBatch(ctx, batch, sharedContext)...)
	}

	agg := m.aggregate(results)
	agg.TotalDuration = time.Since(start)
	return agg
}

// runBatch runs every subtask in batch concurrently, capped at the
// manager's configured fan-out limit (one errgroup.Group per batch;
// batches run one after another, so a single ExecuteWithSubagents call has
// at most MaxParallel subtasks in flight, while concurrent calls each get
// their own limit). A
// sibling subtask never cancels another: runOne always returns nil to the
// group, so one failing subtask cannot trip the group's shared context.
func (m *Manager) runBatch(ctx context.Context, batch []Subtask, sharedContext map[string]any) []SubtaskResult {
	results := make([]SubtaskResult, len(batch))

	grp := &errgroup.Group{}
	grp.SetLimit(m.cfg.MaxParallel)

	for i, st := range batch {
		i, st := i, st
		grp.Go(func() error {
			results[i] = m.runOne(ctx, st, sharedContext)
			return nil
		})
	}
	_ = grp.Wait()
	return results
}

func (m *Manager) runOne(parentCtx context.Context, st Subtask, sharedContext map[string]any) SubtaskResult {
	m.mu.Lock()
	m.spawned++
	m.mu.Unlock()

	start := time.Now()
	runCtx, cancel := context.WithTimeout(parentCtx, m.cfg.SubtaskTimeout)
	defer cancel()

	output, err := m.runner.Run(runCtx, st, sharedContext)
	duration := time.Since(start)

	result := SubtaskResult{Subtask: st, Duration: duration.Seconds()}
	if err != nil {
		result.Status = SubtaskFailed
		result.Err = err
		m.mu.Lock()
		m.failed++
		m.mu.Unlock()
		return result
	}
	result.Status = SubtaskCompleted
	result.Output = output
	m.mu.Lock()
	m.succeded++
	m.mu.Unlock()
	return result
}

// Stats is a point-in-time snapshot of manager usage.
type Stats struct {
	Spawned   int64
	Succeeded int64
	Failed    int64
}

// Stats returns a snapshot of accumulated statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Spawned: m.spawned, Succeeded: m.succeded, Failed: m.failed}
}

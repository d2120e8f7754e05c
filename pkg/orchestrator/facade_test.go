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

package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-coder/orchestrator/pkg/cache"
	"github.com/agentic-coder/orchestrator/pkg/checkpoint"
	"github.com/agentic-coder/orchestrator/pkg/config"
	"github.com/agentic-coder/orchestrator/pkg/router"
	"github.com/agentic-coder/orchestrator/pkg/session"
	"github.com/agentic-coder/orchestrator/pkg/subagent"
	"github.com/agentic-coder/orchestrator/pkg/workflow"
)

// memSessionStore and memCheckpointBackend are minimal in-memory stand-ins
// for the durable backends cmd/orchestrator would wire in production.
type memSessionStore struct {
	mu    sync.Mutex
	saved map[string]session.State
}

func (s *memSessionStore) Load(ctx context.Context, threadID string) (session.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.saved[threadID]
	return st, ok, nil
}

func (s *memSessionStore) Exists(ctx context.Context, threadID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.saved[threadID]
	return ok, nil
}

type memCheckpointBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCheckpointBackend() *memCheckpointBackend {
	return &memCheckpointBackend{data: map[string][]byte{}}
}

func (b *memCheckpointBackend) Save(ctx context.Context, threadID string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[threadID] = data
	return nil
}

func (b *memCheckpointBackend) Load(ctx context.Context, threadID string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[threadID]
	if !ok {
		return nil, checkpoint.ErrNotFound
	}
	return data, nil
}

func (b *memCheckpointBackend) Exists(ctx context.Context, threadID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[threadID]
	return ok, nil
}

func newOrchestrator(t *testing.T, gen Generator, registry *ToolRegistry) *Orchestrator {
	t.Helper()
	sessions := session.NewManager(&memSessionStore{saved: map[string]session.State{}})
	checkpoints := checkpoint.NewManager(&checkpoint.Config{}, newMemCheckpointBackend())
	subagents := subagent.NewManager(subagent.NewDecomposer(nil), fakeSubRunner{}, subagent.Config{})
	optimizer := cache.NewOptimizer(cache.OptimizerConfig{MaxMessages: 50, MaxToolCalls: 50})

	return New(
		config.WorkflowsConfig{MaxIterations: 5, Domains: map[string]config.DomainConfig{}},
		gen,
		registry,
		nil,
		router.New(nil, router.Config{}),
		checkpoints,
		sessions,
		subagents,
		optimizer,
		nil,
		"/workspace",
	)
}

func drain(t *testing.T, updates <-chan Update, timeout time.Duration) []Update {
	t.Helper()
	var got []Update
	deadline := time.After(timeout)
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return got
			}
			got = append(got, u)
			if u.Type == TypeCompleted || u.Type == TypeError || u.Type == TypeStatus && u.Node == string(workflow.NodeAwaitingApproval) {
				return got
			}
		case <-deadline:
			t.Fatal("timed out waiting for updates")
			return got
		}
	}
}

func TestOrchestrator_SubmitRunsPlanExecuteCompleteAndClosesChannel(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&fakeTool{name: "read_file", callFn: func(args map[string]any) (map[string]any, error) {
		return map[string]any{"content": "hi"}, nil
	}})

	gen := fakeGenerator{response: `{"steps": [
		{"action": "READ_FILE", "parameters": {"path": "a.txt"}, "success_predicate": "read"},
		{"action": "COMPLETE", "parameters": {"result": "done reading"}, "success_predicate": "done"}
	]}`}

	o := newOrchestrator(t, gen, registry)
	handle, err := o.Submit(context.Background(), "read a file", "")
	require.NoError(t, err)

	got := drain(t, handle.Updates, 2*time.Second)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.Equal(t, TypeCompleted, last.Type)
	assert.Equal(t, "done reading", last.Result)

	for _, u := range got {
		assert.Equal(t, handle.TaskID, u.TaskID)
		assert.Equal(t, handle.ThreadID, u.ThreadID)
	}
}

func TestOrchestrator_ApprovalPauseThenResolveResumesOnSameChannel(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&fakeTool{name: "delete_file", requiresApproval: true, callFn: func(args map[string]any) (map[string]any, error) {
		return map[string]any{"deleted": true}, nil
	}})

	gen := fakeGenerator{response: `{"steps": [
		{"action": "DELETE_FILE", "parameters": {"path": "a.txt"}, "success_predicate": "deleted"},
		{"action": "COMPLETE", "parameters": {"result": "deleted a.txt"}, "success_predicate": "done"}
	]}`}

	o := newOrchestrator(t, gen, registry)
	handle, err := o.Submit(context.Background(), "delete a file", "")
	require.NoError(t, err)

	got := drain(t, handle.Updates, 2*time.Second)
	require.NotEmpty(t, got)
	assert.Equal(t, TypeStatus, got[len(got)-1].Type)
	assert.Equal(t, string(workflow.NodeAwaitingApproval), got[len(got)-1].Node)

	require.NoError(t, o.ResolveApproval(context.Background(), handle.ThreadID, true, "looks fine"))

	rest := drain(t, handle.Updates, 2*time.Second)
	require.NotEmpty(t, rest)
	last := rest[len(rest)-1]
	assert.Equal(t, TypeCompleted, last.Type)
	assert.Equal(t, "deleted a.txt", last.Result)
}

func TestOrchestrator_RejectedApprovalFailsTheRun(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&fakeTool{name: "delete_file", requiresApproval: true})

	gen := fakeGenerator{response: `{"steps": [
		{"action": "DELETE_FILE", "parameters": {"path": "a.txt"}, "success_predicate": "deleted"}
	]}`}

	o := newOrchestrator(t, gen, registry)
	handle, err := o.Submit(context.Background(), "delete a file", "")
	require.NoError(t, err)

	_ = drain(t, handle.Updates, 2*time.Second)
	require.NoError(t, o.ResolveApproval(context.Background(), handle.ThreadID, false, "not allowed"))

	rest := drain(t, handle.Updates, 2*time.Second)
	require.NotEmpty(t, rest)
	assert.Equal(t, TypeError, rest[len(rest)-1].Type)
}

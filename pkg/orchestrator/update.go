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

// Package orchestrator is the facade: it wires the LLM gateway, tool-safety
// policy, cache & optimizer, intent router, workflow engines, sub-agent
// manager and checkpoint layer into a single entry point that submits a
// task and streams back a typed sequence of Updates.
package orchestrator

import (
	"context"
	"sync"
	"time"
)

// Type names the kind of progress event an Update carries.
type Type string

const (
	TypeStatus          Type = "status"
	TypeThinking        Type = "thinking"
	TypeArtifact        Type = "artifact"
	TypeToolCall        Type = "tool_call"
	TypeToolResult      Type = "tool_result"
	TypeSubAgentSpawned Type = "sub_agent_spawned"
	TypeSubAgentResult  Type = "sub_agent_result"
	TypeCompleted       Type = "completed"
	TypeError           Type = "error"
	TypeCancelled       Type = "cancelled"
	TypeProgress        Type = "progress"
)

// terminal reports whether an Update of this Type ends the stream: no
// further Update may follow a completed, cancelled, or error event.
func (t Type) terminal() bool { return t == TypeCompleted || t == TypeError || t == TypeCancelled }

// Update is one event in a task's progress stream. Only the fields
// relevant to Type are populated; the rest are zero. Every Update carries
// {type, timestamp, task_id} at minimum.
type Update struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"task_id"`
	ThreadID  string    `json:"thread_id,omitempty"`

	// status / progress
	Node          string `json:"node,omitempty"`
	Iteration     int    `json:"iteration,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`

	// thinking
	Thinking string `json:"thinking,omitempty"`

	// artifact
	Artifact any `json:"artifact,omitempty"`

	// tool_call / tool_result, correlated by FunctionCallID
	FunctionCallID string         `json:"function_call_id,omitempty"`
	ToolName       string         `json:"tool_name,omitempty"`
	ToolArgs       map[string]any `json:"tool_args,omitempty"`
	ToolResult     any            `json:"tool_result,omitempty"`
	ToolSuccess    bool           `json:"tool_success,omitempty"`
	ToolError      string         `json:"tool_error,omitempty"`

	// sub_agent_spawned / sub_agent_result
	SubAgentID          string `json:"sub_agent_id,omitempty"`
	SubAgentType        string `json:"sub_agent_type,omitempty"`
	SubAgentDescription string `json:"sub_agent_description,omitempty"`

	// completed / error
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// emitter is the per-task sink an engine run and its dispatcher write
// Updates to. It enforces the terminal invariant: once a completed or
// error Update has been sent, every later send is a no-op. Per spec.md
// §5, a slow consumer must not lose Updates — send blocks rather than
// drops — so close() only tears down the channel once every in-flight
// send has either delivered or been abandoned via the stop escape hatch.
type emitter struct {
	taskID   string
	threadID string

	mu           sync.Mutex
	terminalSent bool
	ch           chan Update
	stop         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

func newEmitter(taskID, threadID string, buffer int) *emitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &emitter{
		taskID:   taskID,
		threadID: threadID,
		ch:       make(chan Update, buffer),
		stop:     make(chan struct{}),
	}
}

// send blocks until the Update is delivered to the channel or close has
// been called, whichever comes first. It never holds e.mu while blocked,
// so concurrent producers and a concurrent close never deadlock on it.
func (e *emitter) send(u Update) {
	e.mu.Lock()
	if e.terminalSent {
		e.mu.Unlock()
		return
	}
	if u.Type.terminal() {
		e.terminalSent = true
	}
	e.mu.Unlock()

	u.TaskID = e.taskID
	u.ThreadID = e.threadID
	u.Timestamp = time.Now()

	e.wg.Add(1)
	defer e.wg.Done()
	select {
	case e.ch <- u:
	case <-e.stop:
		// close() was called while this send was still blocked on a full
		// buffer; abandon delivery rather than panic on a closed channel.
	}
}

// close closes the underlying channel exactly once, after every blocked
// or in-flight send has drained or been released via stop. Safe to call
// even if no terminal Update was ever sent (e.g. the run errored outside
// the engine's own vocabulary).
func (e *emitter) close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.terminalSent = true
		e.mu.Unlock()
		close(e.stop)
		e.wg.Wait()
		close(e.ch)
	})
}

type emitterKey struct{}

// withEmitter attaches e to ctx so the dispatcher (called deep inside
// workflow.Engine.Run) can emit tool_call/tool_result/sub_agent_* Updates
// without the workflow package knowing Updates exist.
func withEmitter(ctx context.Context, e *emitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, e)
}

func emitterFromContext(ctx context.Context) (*emitter, bool) {
	e, ok := ctx.Value(emitterKey{}).(*emitter)
	return e, ok
}

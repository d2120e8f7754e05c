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

// Package workflow implements the plan/execute/reflect state machine that
// drives one task from submission to a terminal status, plus the single
// record ("State") threaded through every node.
package workflow

import "time"

// TaskStatus is the last-write-wins status field of a State.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status ends the task's lifecycle.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// NodeState is the value exposed to the Session/Checkpoint layer and to
// Observability; it mirrors the state machine's named states, not just the
// task status (awaiting_approval is a real state with no TaskStatus of its
// own).
type NodeState string

const (
	NodePlanning         NodeState = "planning"
	NodeExecuting        NodeState = "executing"
	NodeReflecting       NodeState = "reflecting"
	NodeAwaitingApproval NodeState = "awaiting_approval"
	NodeCompleted        NodeState = "completed"
	NodeFailed           NodeState = "failed"
	NodeCancelled        NodeState = "cancelled"
)

// ApprovalStatus is the monotonic approval_status scalar: pending can move
// to approved or rejected, never back.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Message is one append-only conversation turn. Iteration records the
// State.Iteration value in effect when the message was produced, so reflect
// can tell a stale message from a fresh one without rescanning the whole
// history.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Iteration int            `json:"iteration"`
}

// ToolCall is one append-only record of an action dispatcher invocation.
// Iteration records the State.Iteration value in effect when the call was
// dispatched (see Message.Iteration).
type ToolCall struct {
	Name      string         `json:"name"`
	Params    map[string]any `json:"params"`
	Result    any            `json:"result,omitempty"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration"`
	Iteration int            `json:"iteration"`
}

// SubAgentRef is the append-only record of a delegated sub-agent run, as
// seen from the parent workflow's state (the full SubAgentInfo record
// lives in the sub-agent manager; this is the slice threaded into state).
type SubAgentRef struct {
	AgentID     string     `json:"agent_id"`
	AgentType   string     `json:"agent_type"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DebugLog is one append-only structured trace entry, emitted only when
// debug logging is enabled on the task (grounded on the original
// implementation's per-node debug_logs list).
type DebugLog struct {
	Timestamp time.Time      `json:"timestamp"`
	Node      string         `json:"node"`
	Event     string         `json:"event"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ReviewResult is one append-only quality-gate verdict (see QualityGate).
type ReviewResult struct {
	Node      string    `json:"node"`
	Passed    bool      `json:"passed"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the single record threaded through plan/execute/reflect. Field
// comments name the reducer each carries when two States for the same
// thread are merged (see Merge).
type State struct {
	TaskID   string `json:"task_id"`
	ThreadID string `json:"thread_id"`

	// workspace: set at creation, immutable thereafter.
	Workspace string `json:"workspace"`

	// append-only sequences (merge = concat)
	Messages      []Message      `json:"messages"`
	ToolCalls     []ToolCall     `json:"tool_calls"`
	SubAgents     []SubAgentRef  `json:"sub_agents"`
	Errors        []string       `json:"errors"`
	ReviewResults []ReviewResult `json:"review_results"`
	DebugLogs     []DebugLog     `json:"debug_logs"`
	Findings      []string       `json:"findings"`

	// mappings (merge = right-biased merge)
	Context map[string]any `json:"context"`
	Memory  map[string]any `json:"memory"`

	// monotonically increasing integers
	Iteration       int `json:"iteration"`
	RetryCount      int `json:"retry_count"`
	StreamingTokens int `json:"streaming_tokens"`

	// last-write-wins scalars
	TaskStatus     TaskStatus `json:"task_status"`
	ShouldContinue bool       `json:"should_continue"`
	NextNode       NodeState  `json:"next_node"`
	LastToolResult any        `json:"last_tool_result"`

	// approval_status: monotonic pending -> {approved, rejected}
	ApprovalStatus ApprovalStatus `json:"approval_status"`

	// bookkeeping, not part of the reducer contract proper but needed to
	// enforce the invariants in §3.
	MaxIterations  int        `json:"max_iterations"`
	RecursionCount int        `json:"recursion_count"`
	RecursionLimit int        `json:"recursion_limit"`
	Result         *string    `json:"result,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// New returns a fresh State for a task, in the planning node, with an
// immutable workspace and zeroed reducer fields.
func New(taskID, threadID, workspace string, maxIterations, recursionLimit int) *State {
	return &State{
		TaskID:         taskID,
		ThreadID:       threadID,
		Workspace:      workspace,
		Context:        map[string]any{},
		Memory:         map[string]any{},
		TaskStatus:     TaskPending,
		ShouldContinue: true,
		NextNode:       NodePlanning,
		ApprovalStatus: ApprovalPending,
		MaxIterations:  maxIterations,
		RecursionLimit: recursionLimit,
		StartTime:      time.Now(),
	}
}

// SessionView narrows a State down to the read-only shape pkg/session
// validates and persists. session.State's method names would collide with
// State's own exported fields of the same name, so the adapter lives on a
// distinct type rather than on *State directly.
type SessionView struct{ *State }

func (v SessionView) Iteration() int       { return v.State.Iteration }
func (v SessionView) MaxIterations() int   { return v.State.MaxIterations }
func (v SessionView) TaskStatus() string   { return string(v.State.TaskStatus) }
func (v SessionView) ShouldContinue() bool { return v.State.ShouldContinue }
func (v SessionView) HasEndTime() bool     { return v.State.EndTime != nil }

// AsSessionView adapts a State to pkg/session's Store/State contract.
func AsSessionView(s *State) SessionView { return SessionView{s} }

// MessageCount, TrimMessagesHead, ToolCallCount, TrimToolCallsHead, and
// SerializableContext implement pkg/cache's Trimmable interface, so the
// state optimizer can bound a running task's history without this package
// importing pkg/cache.

func (s *State) MessageCount() int { return len(s.Messages) }

// TrimMessagesHead keeps only the most recent keep messages, dropping the
// oldest first.
func (s *State) TrimMessagesHead(keep int) {
	if keep < 0 || len(s.Messages) <= keep {
		return
	}
	s.Messages = append([]Message(nil), s.Messages[len(s.Messages)-keep:]...)
}

func (s *State) ToolCallCount() int { return len(s.ToolCalls) }

// TrimToolCallsHead keeps only the most recent keep tool calls, dropping
// the oldest first.
func (s *State) TrimToolCallsHead(keep int) {
	if keep < 0 || len(s.ToolCalls) <= keep {
		return
	}
	s.ToolCalls = append([]ToolCall(nil), s.ToolCalls[len(s.ToolCalls)-keep:]...)
}

// SerializableContext returns the subset of state whose serialized size
// the optimizer should watch.
func (s *State) SerializableContext() any { return s.Context }

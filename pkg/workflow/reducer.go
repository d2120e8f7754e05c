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

package workflow

import "time"

// Update is a partial State produced by one node's execution. Nodes never
// mutate the canonical State directly; the engine applies an Update to it
// via Merge, field by field, using the reducer each field carries in §3's
// data model.
type Update struct {
	Messages      []Message
	ToolCalls     []ToolCall
	SubAgents     []SubAgentRef
	Errors        []string
	ReviewResults []ReviewResult
	DebugLogs     []DebugLog
	Findings      []string

	Context map[string]any
	Memory  map[string]any

	IterationDelta       int
	RetryCountDelta      int
	StreamingTokensDelta int

	TaskStatus     *TaskStatus
	ShouldContinue *bool
	NextNode       *NodeState
	LastToolResult any
	HasLastResult  bool

	ApprovalStatus *ApprovalStatus

	Result  *string
	EndTime *bool // true sets EndTime to now
}

// Merge applies u to s in place, following each field's reducer: append-only
// sequences concatenate, mappings right-biased-merge, monotonic counters
// only move forward, scalars are last-write-wins, workspace never changes,
// and approval_status only advances pending -> {approved, rejected}.
func (s *State) Merge(u Update) {
	s.Messages = append(s.Messages, u.Messages...)
	s.ToolCalls = append(s.ToolCalls, u.ToolCalls...)
	s.SubAgents = append(s.SubAgents, u.SubAgents...)
	s.Errors = append(s.Errors, u.Errors...)
	s.ReviewResults = append(s.ReviewResults, u.ReviewResults...)
	s.DebugLogs = append(s.DebugLogs, u.DebugLogs...)
	s.Findings = append(s.Findings, u.Findings...)

	if len(u.Context) > 0 {
		if s.Context == nil {
			s.Context = map[string]any{}
		}
		for k, v := range u.Context {
			s.Context[k] = v
		}
	}
	if len(u.Memory) > 0 {
		if s.Memory == nil {
			s.Memory = map[string]any{}
		}
		for k, v := range u.Memory {
			s.Memory[k] = v
		}
	}

	if u.IterationDelta > 0 {
		s.Iteration += u.IterationDelta
	}
	if u.RetryCountDelta > 0 {
		s.RetryCount += u.RetryCountDelta
	}
	if u.StreamingTokensDelta > 0 {
		s.StreamingTokens += u.StreamingTokensDelta
	}

	if u.TaskStatus != nil {
		s.TaskStatus = *u.TaskStatus
	}
	if u.ShouldContinue != nil {
		s.ShouldContinue = *u.ShouldContinue
	}
	if u.NextNode != nil {
		s.NextNode = *u.NextNode
	}
	if u.HasLastResult {
		s.LastToolResult = u.LastToolResult
	}

	if u.ApprovalStatus != nil && (s.ApprovalStatus == ApprovalPending || s.ApprovalStatus == "") {
		s.ApprovalStatus = *u.ApprovalStatus
	}

	if u.Result != nil {
		s.Result = u.Result
	}
	if u.EndTime != nil && *u.EndTime && s.EndTime == nil {
		now := time.Now()
		s.EndTime = &now
	}

	// task_status terminal implies should_continue=false and end_time set,
	// enforced here rather than trusted from the node that set TaskStatus.
	if s.TaskStatus.Terminal() {
		s.ShouldContinue = false
		if s.EndTime == nil {
			now := time.Now()
			s.EndTime = &now
		}
	}
}

// ExceedIterations forces the "exceeded iterations" terminal failure
// required by the iteration-bound invariant in §3.
func (s *State) ExceedIterations() {
	s.Merge(Update{
		Errors:         []string{"exceeded maximum iterations"},
		TaskStatus:     taskStatusPtr(TaskFailed),
		ShouldContinue: boolPtr(false),
		EndTime:        boolPtr(true),
	})
}

// Validate checks the invariants listed in §3 of the data model: the
// iteration bound, the terminal/should_continue/end_time relationship, and
// the completed-without-result case. It does not check tool-call safety
// provenance (the dispatcher enforces that at invocation time, not here).
func (s *State) Validate() bool {
	if s.Iteration < 0 || s.Iteration > s.MaxIterations {
		return false
	}
	if s.TaskStatus.Terminal() {
		if s.ShouldContinue || s.EndTime == nil {
			return false
		}
	}
	if s.TaskStatus == TaskCompleted {
		if s.Result == nil && len(s.SubAgents) == 0 {
			return false
		}
	}
	return true
}

func taskStatusPtr(v TaskStatus) *TaskStatus { return &v }
func boolPtr(v bool) *bool                   { return &v }

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

import (
	"fmt"
	"sync"
)

// ApprovalGate implements the human-in-the-loop pause: the execute node
// checks it before running a step marked Sensitive, and an operator
// resolves it from outside the engine (an API handler, a CLI prompt).
// Resolution is idempotent and monotonic: once a thread's approval_status
// leaves pending, further ResolveApproval calls for that thread are no-ops.
type ApprovalGate struct {
	mu       sync.Mutex
	messages map[string]string // thread id -> operator message, once resolved
}

// NewApprovalGate returns an empty gate.
func NewApprovalGate() *ApprovalGate {
	return &ApprovalGate{messages: map[string]string{}}
}

// Status returns the current approval_status for s's thread, reading it
// directly off s rather than any gate-local record, since approval_status
// lives on the WorkflowState itself per §3.
func (g *ApprovalGate) Status(s *State) ApprovalStatus {
	if s.ApprovalStatus == "" {
		return ApprovalPending
	}
	return s.ApprovalStatus
}

// Resolve records the operator's decision on s. Called from outside the
// engine's Run loop (the awaiting_approval state only exits this way); a
// second call once s has already left pending is a no-op, since
// approval_status is monotonic.
func (g *ApprovalGate) Resolve(s *State, approved bool, message string) error {
	if s.ApprovalStatus != "" && s.ApprovalStatus != ApprovalPending {
		return nil
	}

	g.mu.Lock()
	g.messages[s.ThreadID] = message
	g.mu.Unlock()

	status := ApprovalRejected
	if approved {
		status = ApprovalApproved
	}
	next := NodeExecuting
	s.Merge(Update{ApprovalStatus: &status, NextNode: &next, ShouldContinue: boolPtr(true)})
	return nil
}

// Message returns the operator message recorded for thread id, if any.
func (g *ApprovalGate) Message(threadID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msg, ok := g.messages[threadID]
	return msg, ok
}

// PendingSummary describes the sensitive step awaiting approval, for
// surfacing to an approval UI.
type PendingSummary struct {
	ThreadID string
	Step     Step
}

// Summarize returns the pending step description for s if it is currently
// awaiting approval, mirroring the original implementation's per-diff
// summary shown to the approver.
func Summarize(s *State) (PendingSummary, error) {
	if s.NextNode != NodeAwaitingApproval {
		return PendingSummary{}, fmt.Errorf("workflow: thread %s is not awaiting approval", s.ThreadID)
	}
	_, steps := currentPlan(s)
	idx := nextUnfinished(steps)
	if idx < 0 {
		return PendingSummary{}, fmt.Errorf("workflow: thread %s has no pending step", s.ThreadID)
	}
	return PendingSummary{ThreadID: s.ThreadID, Step: steps[idx]}, nil
}

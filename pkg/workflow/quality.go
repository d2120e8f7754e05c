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

// QualityGate is an optional review hook consulted at the start of every
// reflect node. It never blocks completion on its own; a failing review
// is recorded as a ReviewResult for the caller (or a later reflect pass)
// to act on, mirroring the best-effort QA gate in the original
// implementation, which reports pass/fail without retrying on its own.
type QualityGate interface {
	// Review inspects s and returns a verdict plus ok=true if a review
	// was actually performed (ok=false when there is nothing yet worth
	// reviewing, e.g. no tool output produced this iteration).
	Review(s *State) (ReviewResult, bool)
}

// NoArtifactsGate is a QualityGate that performs no review (ok=false)
// until at least one ToolCall has been recorded, and otherwise defers to a
// checker function over the state, passing when Checker is nil.
type NoArtifactsGate struct {
	Node    string
	Checker func(s *State) (passed bool, reason string)
}

// Review implements QualityGate.
func (g NoArtifactsGate) Review(s *State) (ReviewResult, bool) {
	if len(s.ToolCalls) == 0 {
		return ReviewResult{}, false
	}
	passed, reason := true, ""
	if g.Checker != nil {
		passed, reason = g.Checker(s)
	}
	return ReviewResult{Node: g.Node, Passed: passed, Reason: reason, Timestamp: s.ToolCalls[len(s.ToolCalls)-1].Timestamp}, true
}

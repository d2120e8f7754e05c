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
	"encoding/json"
	"fmt"
	"strings"
)

// AggregationStrategy names how subtask outputs are combined.
type AggregationStrategy string

const (
	AggregateConcatenate AggregationStrategy = "concatenate"
	AggregateList        AggregationStrategy = "list"
	AggregateSummarize   AggregationStrategy = "summarize"
)

// Summarizer is consulted only for AggregateSummarize; it performs the
// "one more LLM call combining outputs into a coherent answer".
type Summarizer interface {
	Summarize(results []SubtaskResult) (string, error)
}

// WithSummarizer attaches a Summarizer to the manager, enabling the
// "summarize" aggregation strategy. Without one, AggregateSummarize falls
// back to AggregateConcatenate.
func (m *Manager) WithSummarizer(s Summarizer) *Manager {
	m.summarizer = s
	return m
}

// aggregate never fails the parent task: an empty result set produces
// success=false with an explanatory summary rather than an error.
func (m *Manager) aggregate(results []SubtaskResult) Aggregated {
	if len(results) == 0 {
		return Aggregated{
			Success: false,
			Summary: "no subtasks were executed",
			Results: results,
		}
	}

	var succeeded, failedCount int
	for _, r := range results {
		if r.Status == SubtaskCompleted {
			succeeded++
		} else {
			failedCount++
		}
	}

	combined := m.combine(results)
	success := succeeded > 0

	summary := fmt.Sprintf("%d/%d subtasks succeeded", succeeded, len(results))
	if failedCount > 0 {
		summary += fmt.Sprintf(" (%d failed)", failedCount)
	}

	return Aggregated{
		Success:        success,
		Summary:        summary,
		Results:        results,
		CombinedResult: combined,
		SucceededCount: succeeded,
		FailedCount:    failedCount,
	}
}

func (m *Manager) combine(results []SubtaskResult) string {
	switch m.cfg.AggregationMode {
	case AggregateList:
		return listCombine(results)
	case AggregateSummarize:
		if m.summarizer != nil {
			if out, err := m.summarizer.Summarize(results); err == nil {
				return out
			}
		}
		return concatenateCombine(results)
	default:
		return concatenateCombine(results)
	}
}

func concatenateCombine(results []SubtaskResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n---\n")
		}
		if r.Status == SubtaskFailed {
			fmt.Fprintf(&b, "[%s FAILED: %v]", r.Subtask.ID, r.Err)
			continue
		}
		fmt.Fprintf(&b, "[%s] %s", r.Subtask.ID, r.Output)
	}
	return b.String()
}

type listEntry struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func listCombine(results []SubtaskResult) string {
	entries := make([]listEntry, len(results))
	for i, r := range results {
		e := listEntry{ID: r.Subtask.ID, Status: string(r.Status), Output: r.Output}
		if r.Err != nil {
			e.Error = r.Err.Error()
		}
		entries[i] = e
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return concatenateCombine(results)
	}
	return string(data)
}

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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentic-coder/orchestrator/pkg/llms"
)

// Decomposition is the LLM's answer to "does this task need to be split
// up, and if so, how".
type Decomposition struct {
	Complexity            string    `json:"complexity"`
	RequiresDecomposition bool      `json:"requires_decomposition"`
	Subtasks              []Subtask `json:"subtasks"`
	ExecutionStrategy     Strategy  `json:"execution_strategy"`
}

// Generator is the narrow view of the LLM gateway the decomposer needs.
type Generator interface {
	Generate(ctx context.Context, messages []llms.Message, params llms.GenerateParams) (string, error)
}

const decomposeInstruction = `Decide whether the following task should be split across multiple sub-agents. Respond with a single JSON object and nothing else, matching exactly this schema:
{"complexity": string, "requires_decomposition": boolean, "subtasks": [{"id": string, "description": string, "agent_type": string, "depends_on": [string]}], "execution_strategy": "sequential"|"parallel"|"mixed"}

agent_type must be one of: reader, writer, researcher, analyst, reviewer, tester, planner, general.

Task: %s`

// Decomposer asks the LLM for a Decomposition. A nil Generator always
// yields requires_decomposition=false (single sub-agent of type
// "general"), matching "ask the LLM whether decomposition is needed" with
// no LLM configured meaning "assume no".
type Decomposer struct {
	llm Generator
}

// NewDecomposer builds a Decomposer.
func NewDecomposer(llm Generator) *Decomposer { return &Decomposer{llm: llm} }

// Decompose returns a Decomposition for task. On any LLM or parse failure,
// it falls back to a single undecomposed subtask rather than failing the
// whole task — decomposition is an optimization, not a requirement.
func (d *Decomposer) Decompose(ctx context.Context, task string) Decomposition {
	fallback := Decomposition{
		Complexity:            "moderate",
		RequiresDecomposition: false,
		Subtasks: []Subtask{
			{ID: "task-1", Description: task, AgentType: "general"},
		},
		ExecutionStrategy: StrategySequential,
	}

	if d.llm == nil {
		return fallback
	}

	messages := []llms.Message{{Role: "user", Content: fmt.Sprintf(decomposeInstruction, task)}}
	raw, err := d.llm.Generate(ctx, messages, llms.GenerateParams{})
	if err != nil {
		return fallback
	}

	raw = extractJSONObject(raw)
	var out Decomposition
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return fallback
	}
	if !out.RequiresDecomposition || len(out.Subtasks) == 0 {
		return fallback
	}
	return out
}

func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentic-coder/orchestrator/pkg/llms"
	"github.com/agentic-coder/orchestrator/pkg/workflow"
)

// Generator is the narrow view of the LLM gateway the planner needs.
type Generator interface {
	Generate(ctx context.Context, messages []llms.Message, params llms.GenerateParams) (string, error)
}

// Planner turns a task description into a workflow.Plan with a single LLM
// call, constrained to the actions actually registered (plus the two
// dispatcher-level terminals), and marks any step whose tool requires
// human approval as Sensitive so the engine's approval gate sees it.
type Planner struct {
	llm          Generator
	registry     *ToolRegistry
	systemPrompt string
}

var _ workflow.Planner = (*Planner)(nil)

// NewPlanner builds a Planner. systemPrompt is typically the domain's own
// Config.PlanningPrompt.
func NewPlanner(llm Generator, registry *ToolRegistry, systemPrompt string) *Planner {
	return &Planner{llm: llm, registry: registry, systemPrompt: systemPrompt}
}

const planInstruction = `Produce a plan to accomplish the following task. Respond with a single JSON object and nothing else, matching exactly this schema:
{"steps": [{"action": string, "parameters": object, "success_predicate": string}]}

action must be one of: %s. Use COMPLETE as the final step once the task is accomplished, with parameters.result holding the final answer.

Task: %s`

// Plan implements workflow.Planner.
func (p *Planner) Plan(ctx context.Context, taskDescription string, s *workflow.State) (workflow.Plan, error) {
	prompt := fmt.Sprintf(planInstruction, strings.Join(p.availableActions(), ", "), taskDescription)

	var messages []llms.Message
	if p.systemPrompt != "" {
		messages = append(messages, llms.Message{Role: "system", Content: p.systemPrompt})
	}
	messages = append(messages, llms.Message{Role: "user", Content: prompt})

	raw, err := p.llm.Generate(ctx, messages, llms.GenerateParams{})
	if err != nil {
		return workflow.Plan{}, fmt.Errorf("orchestrator: plan: %w", err)
	}

	var plan workflow.Plan
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &plan); err != nil {
		return workflow.Plan{}, fmt.Errorf("orchestrator: plan: parse LLM response: %w", err)
	}
	if len(plan.Steps) == 0 {
		return workflow.Plan{}, fmt.Errorf("orchestrator: plan: LLM returned no steps")
	}

	for i, step := range plan.Steps {
		if t, ok := p.registry.Lookup(step.Action); ok && t.RequiresApproval() {
			plan.Steps[i].Sensitive = true
		}
	}
	return plan, nil
}

func (p *Planner) availableActions() []string {
	all := p.registry.All()
	names := make([]string, 0, len(all)+2)
	for _, t := range all {
		names = append(names, strings.ToUpper(t.Name()))
	}
	return append(names, workflow.ActionComplete, workflow.ActionDelegateSubAgent)
}

func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

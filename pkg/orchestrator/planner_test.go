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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-coder/orchestrator/pkg/llms"
	"github.com/agentic-coder/orchestrator/pkg/tool"
)

type fakeGenerator struct {
	response string
	err      error
}

func (f fakeGenerator) Generate(ctx context.Context, messages []llms.Message, params llms.GenerateParams) (string, error) {
	return f.response, f.err
}

func TestPlanner_ParsesStepsAndMarksApprovalRequiredSteps(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&fakeTool{name: "delete_file", requiresApproval: true})
	registry.Register(&fakeTool{name: "read_file"})

	gen := fakeGenerator{response: `Sure, here is the plan:
{"steps": [
  {"action": "READ_FILE", "parameters": {"path": "a.txt"}, "success_predicate": "file read"},
  {"action": "DELETE_FILE", "parameters": {"path": "a.txt"}, "success_predicate": "file deleted"}
]}`}
	p := NewPlanner(gen, registry, "plan carefully")

	plan, err := p.Plan(context.Background(), "clean up a.txt", nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.False(t, plan.Steps[0].Sensitive)
	assert.True(t, plan.Steps[1].Sensitive)
}

func TestPlanner_ErrorsOnEmptyStepList(t *testing.T) {
	registry := NewToolRegistry()
	gen := fakeGenerator{response: `{"steps": []}`}
	p := NewPlanner(gen, registry, "")

	_, err := p.Plan(context.Background(), "do nothing", nil)
	assert.Error(t, err)
}

func TestPlanner_ErrorsOnGeneratorFailure(t *testing.T) {
	registry := NewToolRegistry()
	gen := fakeGenerator{err: fmt.Errorf("endpoint unavailable")}
	p := NewPlanner(gen, registry, "")

	_, err := p.Plan(context.Background(), "do something", nil)
	assert.Error(t, err)
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSONObject(`chatter {"a":1} more chatter`))
	assert.Equal(t, "no braces here", extractJSONObject("no braces here"))
}

var _ tool.Tool = (*fakeTool)(nil)

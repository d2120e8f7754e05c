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

package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-coder/orchestrator/pkg/llms"
)

type fakeGenerator struct {
	response string
	err      error
}

func (f *fakeGenerator) Generate(ctx context.Context, messages []llms.Message, params llms.GenerateParams) (string, error) {
	return f.response, f.err
}

func TestRouter_Classify_UsesLLMWhenConfident(t *testing.T) {
	llm := &fakeGenerator{response: `{"domain":"coding","confidence":0.92,"complexity":"moderate","requires_sub_agents":false,"reasoning":"touches one file"}`}
	r := New(llm, Config{})

	got := r.Classify(context.Background(), "fix the login bug")
	assert.Equal(t, "coding", got.Domain)
	assert.Equal(t, ComplexityModerate, got.Complexity)
	assert.InDelta(t, 0.92, got.Confidence, 0.0001)
}

func TestRouter_Classify_FallsBackOnLowConfidence(t *testing.T) {
	llm := &fakeGenerator{response: `{"domain":"general","confidence":0.3,"complexity":"simple","requires_sub_agents":false,"reasoning":"unsure"}`}
	r := New(llm, Config{})

	got := r.Classify(context.Background(), "refactor the database connection code")
	assert.Equal(t, "coding", got.Domain)
	assert.InDelta(t, heuristicConfidence, got.Confidence, 0.0001)
}

func TestRouter_Classify_FallsBackOnLLMError(t *testing.T) {
	llm := &fakeGenerator{err: assertErr{}}
	r := New(llm, Config{})

	got := r.Classify(context.Background(), "analyze the sales data in quarterly_report.csv")
	assert.Equal(t, "data", got.Domain)
}

func TestRouter_Classify_NilGeneratorUsesHeuristic(t *testing.T) {
	r := New(nil, Config{})
	got := r.Classify(context.Background(), "research best practices for microservices")
	assert.Equal(t, "research", got.Domain)
}

func TestRouter_Classify_KoreanKeywords(t *testing.T) {
	r := New(nil, Config{})
	got := r.Classify(context.Background(), "로그인 버그 수정 필요")
	assert.Equal(t, "coding", got.Domain)
}

func TestRouter_Classify_CriticalComplexityRequiresSubAgents(t *testing.T) {
	r := New(nil, Config{})
	got := r.Classify(context.Background(), "production security vulnerability needs investigation")
	assert.Equal(t, ComplexityCritical, got.Complexity)
	assert.True(t, got.RequiresSubAgents)
}

func TestRouter_Stats(t *testing.T) {
	r := New(nil, Config{})
	r.Classify(context.Background(), "fix the bug in the parser")
	r.Classify(context.Background(), "organize my todo list")

	stats := r.Stats()
	require.EqualValues(t, 2, stats.TotalClassifications)
	assert.EqualValues(t, 1, stats.DomainDistribution["coding"])
	assert.EqualValues(t, 1, stats.DomainDistribution["general"])
}

type assertErr struct{}

func (assertErr) Error() string { return "simulated LLM failure" }

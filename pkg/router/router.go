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

// Package router is the intent router: it classifies an incoming task
// prompt into a domain, confidence, complexity, and sub-agent need, via a
// single LLM call with a deterministic keyword fallback.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/agentic-coder/orchestrator/pkg/llms"
)

// Complexity mirrors the workflow engine's iteration-cap tiers so a
// classification can be fed straight into it.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

// Classification is the router's output for one prompt.
type Classification struct {
	Domain            string     `json:"domain"`
	Confidence        float64    `json:"confidence"`
	Complexity        Complexity `json:"complexity"`
	RequiresSubAgents bool       `json:"requires_sub_agents"`
	Reasoning         string     `json:"reasoning"`
}

// Generator is the narrow view of the LLM gateway the router needs.
type Generator interface {
	Generate(ctx context.Context, messages []llms.Message, params llms.GenerateParams) (string, error)
}

// Config configures a Router.
type Config struct {
	ConfidenceThreshold float64 // classifications below this fall back to the heuristic; default 0.7
	Domains             []string
}

func (c *Config) setDefaults() {
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.7
	}
	if len(c.Domains) == 0 {
		c.Domains = []string{"coding", "research", "data", "general"}
	}
}

// Router classifies prompts into a domain/complexity/sub-agent need.
type Router struct {
	llm Generator
	cfg Config

	mu            sync.Mutex
	total         int64
	domainDistrib map[string]int64
}

// New builds a Router. llm may be nil, in which case classification always
// uses the keyword heuristic.
func New(llm Generator, cfg Config) *Router {
	cfg.setDefaults()
	return &Router{llm: llm, cfg: cfg, domainDistrib: map[string]int64{}}
}

const classifyInstruction = `Classify the following task. Respond with a single JSON object and nothing else, matching exactly this schema:
{"domain": string, "confidence": number between 0 and 1, "complexity": "simple"|"moderate"|"complex"|"critical", "requires_sub_agents": boolean, "reasoning": string}

Task: %s`

// Classify returns a Classification for prompt. It first asks the LLM for
// a structured classification; if that call fails, returns malformed
// JSON, or comes back under the confidence threshold, it falls back to a
// deterministic keyword heuristic.
func (r *Router) Classify(ctx context.Context, prompt string) Classification {
	var result Classification
	ok := false

	if r.llm != nil {
		if c, err := r.classifyViaLLM(ctx, prompt); err == nil && c.Confidence >= r.cfg.ConfidenceThreshold {
			result = c
			ok = true
		}
	}
	if !ok {
		result = r.classifyViaHeuristic(prompt)
	}

	r.record(result.Domain)
	return result
}

func (r *Router) classifyViaLLM(ctx context.Context, prompt string) (Classification, error) {
	messages := []llms.Message{
		{Role: "user", Content: fmt.Sprintf(classifyInstruction, prompt)},
	}
	raw, err := r.llm.Generate(ctx, messages, llms.GenerateParams{})
	if err != nil {
		return Classification{}, err
	}
	raw = extractJSONObject(raw)
	var c Classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Classification{}, fmt.Errorf("router: classification response is not valid JSON: %w", err)
	}
	return c, nil
}

// extractJSONObject trims any prose a chat model may wrap its JSON answer
// in, keeping only the outermost {...} span.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

func (r *Router) record(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	r.domainDistrib[domain]++
}

// Stats is a point-in-time snapshot of router usage.
type Stats struct {
	TotalClassifications int64
	ConfidenceThreshold  float64
	DomainDistribution   map[string]int64
}

// Stats returns a snapshot of accumulated statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	dist := make(map[string]int64, len(r.domainDistrib))
	for k, v := range r.domainDistrib {
		dist[k] = v
	}
	return Stats{TotalClassifications: r.total, ConfidenceThreshold: r.cfg.ConfidenceThreshold, DomainDistribution: dist}
}

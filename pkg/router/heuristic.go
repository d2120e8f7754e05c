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

import "strings"

// domainVocabulary holds per-domain keyword lists in both English and
// Korean, mirroring the dual-language convention the greeting short-
// circuit already uses.
var domainVocabulary = map[string][]string{
	"coding": {
		"bug", "fix", "refactor", "code", "function", "compile", "test", "debug",
		"implement", "api", "class", "module", "repository", "pull request",
		"버그", "수정", "리팩터링", "코드", "함수", "컴파일", "테스트", "디버그", "구현",
	},
	"research": {
		"research", "compare", "summarize", "survey", "best practices", "trend",
		"analyze literature", "investigate", "evaluate options",
		"조사", "비교", "요약", "트렌드", "연구", "분석",
	},
	"data": {
		"csv", "dataset", "analyze data", "visualization", "dashboard", "database",
		"normalize", "clean data", "sql", "chart", "metrics",
		"데이터", "시각화", "대시보드", "데이터베이스", "분석",
	},
	"general": {
		"organize", "plan", "prioritize", "todo", "schedule", "summarize my",
		"정리", "계획", "우선순위", "할 일",
	},
}

// complexityVocabulary is checked after domain keywords match, in order
// from most to least severe; the first hit wins.
var complexityVocabulary = []struct {
	complexity Complexity
	keywords   []string
}{
	{ComplexityCritical, []string{"production", "security", "vulnerability", "outage", "incident", "critical", "긴급", "보안"}},
	{ComplexityComplex, []string{"architecture", "migrate", "migration", "redesign", "distributed", "아키텍처", "마이그레이션"}},
	{ComplexityModerate, []string{"refactor", "multiple files", "integration", "여러 파일"}},
}

// heuristicConfidence marks a fallback classification as materially less
// certain than an LLM-confirmed one.
const heuristicConfidence = 0.5

// classifyViaHeuristic applies the deterministic keyword vocabulary to
// prompt, used when the LLM call fails or returns low confidence.
func (r *Router) classifyViaHeuristic(prompt string) Classification {
	normalized := strings.ToLower(prompt)

	bestDomain := "general"
	bestScore := 0
	for _, domain := range r.cfg.Domains {
		score := countMatches(normalized, domainVocabulary[domain])
		if score > bestScore {
			bestScore = score
			bestDomain = domain
		}
	}

	complexity := ComplexitySimple
	for _, tier := range complexityVocabulary {
		if countMatches(normalized, tier.keywords) > 0 {
			complexity = tier.complexity
			break
		}
	}

	return Classification{
		Domain:            bestDomain,
		Confidence:        heuristicConfidence,
		Complexity:        complexity,
		RequiresSubAgents: complexity == ComplexityComplex || complexity == ComplexityCritical,
		Reasoning:         "keyword heuristic fallback",
	}
}

func countMatches(normalized string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(normalized, kw) {
			count++
		}
	}
	return count
}

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
	"strings"

	"github.com/agentic-coder/orchestrator/pkg/registry"
	"github.com/agentic-coder/orchestrator/pkg/tool"
)

// ToolRegistry holds every tool available to the action dispatcher, keyed
// by the uppercased form of its name (the form a planner's emitted action
// is matched against). It is a thin, case-normalizing wrapper over the
// generic named-item container the rest of the codebase uses for the
// same "register once, look up many times" shape.
type ToolRegistry struct {
	base *registry.BaseRegistry[tool.Tool]
}

// NewToolRegistry returns an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{base: registry.NewBaseRegistry[tool.Tool]()}
}

// Register adds t to the registry, keyed by strings.ToUpper(t.Name()). A
// second Register call for the same name replaces the first.
func (r *ToolRegistry) Register(t tool.Tool) {
	name := strings.ToUpper(t.Name())
	_ = r.base.Remove(name)
	_ = r.base.Register(name, t)
}

// Lookup resolves action (case-insensitively) to a registered tool.
func (r *ToolRegistry) Lookup(action string) (tool.Tool, bool) {
	return r.base.Get(strings.ToUpper(action))
}

// All returns every registered tool, in no particular order.
func (r *ToolRegistry) All() []tool.Tool {
	return r.base.List()
}

// Resolve implements tool.Toolset, so a ToolRegistry can stand in
// wherever §4 and pkg/tool expect a Toolset: every registered tool,
// filtered by a Predicate the caller supplies.
func (r *ToolRegistry) Resolve(ctx tool.ReadonlyContext, allow tool.Predicate) []tool.Tool {
	all := r.All()
	if allow == nil {
		return all
	}
	out := make([]tool.Tool, 0, len(all))
	for _, t := range all {
		if allow(ctx, t) {
			out = append(out, t)
		}
	}
	return out
}

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

// Package tool defines the interfaces the orchestrator's action dispatcher
// uses to invoke tools on behalf of a running workflow.
//
// # Tool Interface Hierarchy
//
//	Tool (base)
//	  ├── CallableTool  - synchronous execution, single result
//	  └── StreamingTool - incremental output, for long-running commands
//
// Every call is mediated by a Context carrying the task id, thread id and
// workspace path the tool is allowed to touch; tool-safety enforcement
// (command/file-access gating) happens one layer above, in the dispatcher,
// before Call/CallStreaming is ever reached.
package tool

import (
	"iter"
)

// Tool defines the base interface for a callable tool.
type Tool interface {
	// Name returns the unique name of the tool. The action dispatcher
	// looks tools up by the uppercased form of this name.
	Name() string

	// Description returns a human-readable description of what the tool
	// does. Used by LLMs to decide when to use this tool.
	Description() string

	// RequiresApproval indicates whether this tool needs human approval
	// before execution. When true, the workflow engine transitions into
	// awaiting_approval and only calls Call/CallStreaming once the
	// approval gate resolves to approved.
	RequiresApproval() bool
}

// CallableTool extends Tool with synchronous execution capability.
type CallableTool interface {
	Tool

	// Call executes the tool with the given arguments. Blocking; returns
	// the result as a map and any error that occurred.
	Call(ctx Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema for the tool's parameters, or nil if
	// the tool takes no parameters.
	Schema() map[string]any
}

// StreamingTool extends Tool with incremental output capability, for
// tools such as shell commands whose output should reach the caller as
// it is produced rather than only at completion.
type StreamingTool interface {
	Tool

	// CallStreaming executes the tool and yields incremental results.
	CallStreaming(ctx Context, args map[string]any) iter.Seq2[*Result, error]

	// Schema returns the JSON schema for the tool's parameters.
	Schema() map[string]any
}

// Result represents one chunk (or the final chunk) of a tool execution.
type Result struct {
	// Content is the output content, typically a string or structured data.
	Content any

	// Streaming indicates this is an intermediate chunk, not the final
	// result.
	Streaming bool

	// Error is set if an error occurred during execution. May be set on
	// intermediate chunks (partial failure) or the final result.
	Error string

	// Metadata contains optional additional data about this result.
	Metadata map[string]any
}

// ReadonlyContext is the read-only subset of Context available to
// predicates and toolsets resolving which tools are available.
type ReadonlyContext interface {
	// TaskID returns the id of the task the tool is running under.
	TaskID() string

	// ThreadID returns the session's thread id (the checkpoint key).
	ThreadID() string

	// Workspace returns the workspace path the task is scoped to.
	Workspace() string
}

// Context provides the execution context for a tool invocation.
type Context interface {
	ReadonlyContext

	// FunctionCallID returns the unique id of this tool invocation,
	// correlating the tool_call and tool_result updates emitted by the
	// facade.
	FunctionCallID() string
}

// Toolset groups related tools and provides dynamic resolution. Toolsets
// enable lazy loading - tools are resolved only when needed.
type Toolset interface {
	// Name returns the name of this toolset.
	Name() string

	// Tools returns the available tools based on the current context,
	// allowing selection based on sub-agent role or workspace.
	Tools(ctx ReadonlyContext) ([]Tool, error)
}

// Predicate determines whether a tool should be available to the LLM.
// Used for filtering tools based on a sub-agent's role allowlist.
type Predicate func(ctx ReadonlyContext, tool Tool) bool

// StringPredicate creates a Predicate that allows only named tools.
func StringPredicate(allowedTools []string) Predicate {
	allowed := make(map[string]bool, len(allowedTools))
	for _, name := range allowedTools {
		allowed[name] = true
	}

	return func(ctx ReadonlyContext, tool Tool) bool {
		return allowed[tool.Name()]
	}
}

// AllowAll returns a Predicate that allows all tools.
func AllowAll() Predicate {
	return func(ctx ReadonlyContext, tool Tool) bool {
		return true
	}
}

// DenyAll returns a Predicate that denies all tools.
func DenyAll() Predicate {
	return func(ctx ReadonlyContext, tool Tool) bool {
		return false
	}
}

// Combine combines multiple predicates with AND logic.
func Combine(predicates ...Predicate) Predicate {
	return func(ctx ReadonlyContext, tool Tool) bool {
		for _, p := range predicates {
			if !p(ctx, tool) {
				return false
			}
		}
		return true
	}
}

// Or combines multiple predicates with OR logic.
func Or(predicates ...Predicate) Predicate {
	return func(ctx ReadonlyContext, tool Tool) bool {
		for _, p := range predicates {
			if p(ctx, tool) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(ctx ReadonlyContext, tool Tool) bool {
		return !p(ctx, tool)
	}
}

// Definition represents a tool definition for LLM function calling.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a tool to a Definition.
func ToDefinition(t Tool) Definition {
	def := Definition{
		Name:        t.Name(),
		Description: t.Description(),
	}

	if ct, ok := t.(CallableTool); ok {
		def.Parameters = ct.Schema()
	} else if st, ok := t.(StreamingTool); ok {
		def.Parameters = st.Schema()
	}

	return def
}

// Call represents a planner's request to invoke a tool, mirroring the
// append-only ToolCall record threaded through workflow state.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

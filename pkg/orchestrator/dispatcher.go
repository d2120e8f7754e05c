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
	"strings"

	"github.com/google/uuid"

	"github.com/agentic-coder/orchestrator/pkg/observability"
	"github.com/agentic-coder/orchestrator/pkg/safety"
	"github.com/agentic-coder/orchestrator/pkg/subagent"
	"github.com/agentic-coder/orchestrator/pkg/tool"
	"github.com/agentic-coder/orchestrator/pkg/workflow"
)

// Dispatcher translates one plan step into either a registered tool call
// guarded by tool-safety, the COMPLETE terminal, or a sub-agent
// delegation. It implements both workflow.Dispatcher (the parent engine's
// view) and subagent.Runner (the view a child workflow run needs), which
// is what lets a DELEGATE_TO_SUB_AGENT step spin up an isolated child
// workflow.Engine that is itself dispatched by this same type.
type Dispatcher struct {
	registry  *ToolRegistry
	policy    safety.Checker
	subagents *subagent.Manager
	metrics   observability.Recorder

	planner            workflow.Planner
	agentToolAllowlist map[string][]string
	childMaxIterations int
	childRecursionCap  int
	workspace          string
}

var (
	_ workflow.Dispatcher = (*Dispatcher)(nil)
	_ subagent.Runner     = (*Dispatcher)(nil)
)

// DispatcherOption configures a Dispatcher at construction time.
type DispatcherOption func(*Dispatcher)

// WithAgentToolAllowlist restricts a sub-agent's available actions by its
// agent_type, on top of whatever COMPLETE/DELEGATE_TO_SUB_AGENT always
// permit. An agent_type with no entry is unrestricted.
func WithAgentToolAllowlist(allowlist map[string][]string) DispatcherOption {
	return func(d *Dispatcher) { d.agentToolAllowlist = allowlist }
}

// WithChildWorkflowLimits bounds how long a sub-agent's own child workflow
// may run, independent of the parent's own iteration cap.
func WithChildWorkflowLimits(maxIterations, recursionCap int) DispatcherOption {
	return func(d *Dispatcher) {
		d.childMaxIterations = maxIterations
		d.childRecursionCap = recursionCap
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m observability.Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher builds a Dispatcher. planner is used to plan any child
// workflow spawned for a delegated subtask; it is typically the same
// Planner the parent engine uses, since a sub-agent still plans through
// the same LLM-backed contract, just over a narrower tool allowlist.
func NewDispatcher(registry *ToolRegistry, policy safety.Checker, subagents *subagent.Manager, planner workflow.Planner, workspace string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:           registry,
		policy:             policy,
		subagents:          subagents,
		planner:            planner,
		workspace:          workspace,
		childMaxIterations: 10,
		childRecursionCap:  50,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch implements workflow.Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, step workflow.Step, s *workflow.State) (workflow.ActionResult, error) {
	action := strings.ToUpper(strings.TrimSpace(step.Action))

	switch action {
	case workflow.ActionComplete:
		result, _ := step.Parameters["result"].(string)
		return workflow.ActionResult{Completed: true, Success: true, Result: result}, nil
	case workflow.ActionDelegateSubAgent:
		return d.dispatchSubAgent(ctx, step, s)
	}

	t, ok := d.registry.Lookup(action)
	if !ok {
		return workflow.ActionResult{
			Success: false,
			Err:     fmt.Sprintf("action %q is not a registered tool, %s, or %s", step.Action, workflow.ActionComplete, workflow.ActionDelegateSubAgent),
		}, nil
	}

	if v := d.guard(step.Parameters); v != nil {
		if d.metrics != nil {
			d.metrics.RecordSafetyViolation(string(v.Kind))
		}
		return workflow.ActionResult{Success: false, Err: v.Error()}, nil
	}

	return d.invoke(ctx, t, step.Parameters, s.TaskID, s.ThreadID)
}

// guard consults the tool-safety policy over whatever shape of arguments
// the step carries: a "command" key is checked as a command line, a
// path-shaped key is checked as a file access (write mode when the
// caller's own args mark the call as a write).
func (d *Dispatcher) guard(args map[string]any) *safety.Violation {
	if d.policy == nil {
		return nil
	}
	if cmd, ok := args["command"].(string); ok && cmd != "" {
		if v := d.policy.CheckCommand(cmd); v != nil {
			return v
		}
	}
	if path, ok := firstStringArg(args, "path", "file_path", "target"); ok {
		mode := safety.ModeRead
		if write, ok := args["write"].(bool); ok && write {
			mode = safety.ModeWrite
		}
		if v := d.policy.CheckFileAccess(path, mode); v != nil {
			return v
		}
	}
	return nil
}

func firstStringArg(args map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := args[k].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// invoke calls t, emitting the paired tool_call/tool_result Updates found
// on ctx (if this call is running under a task that has an emitter
// attached) around the actual call.
func (d *Dispatcher) invoke(ctx context.Context, t tool.Tool, args map[string]any, taskID, threadID string) (workflow.ActionResult, error) {
	callID := uuid.NewString()
	em, hasEmitter := emitterFromContext(ctx)
	if hasEmitter {
		em.send(Update{Type: TypeToolCall, FunctionCallID: callID, ToolName: t.Name(), ToolArgs: args})
	}

	callCtx := toolContext{taskID: taskID, threadID: threadID, workspace: d.workspace, functionCallID: callID}

	var (
		output map[string]any
		err    error
	)
	switch concrete := t.(type) {
	case tool.CallableTool:
		output, err = concrete.Call(callCtx, args)
	case tool.StreamingTool:
		output, err = drainStreaming(concrete, callCtx, args)
	default:
		err = fmt.Errorf("tool %q implements neither CallableTool nor StreamingTool", t.Name())
	}

	success := err == nil
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if hasEmitter {
		em.send(Update{
			Type: TypeToolResult, FunctionCallID: callID, ToolName: t.Name(),
			ToolResult: output, ToolSuccess: success, ToolError: errMsg,
		})
	}

	return workflow.ActionResult{Output: output, Success: success, Err: errMsg}, nil
}

// drainStreaming runs a StreamingTool to completion and folds its chunks
// into a single result map, since a workflow.ActionResult carries one
// Output value per step regardless of which kind of tool produced it.
func drainStreaming(t tool.StreamingTool, ctx tool.Context, args map[string]any) (map[string]any, error) {
	var chunks []any
	var streamErr error
	for r, err := range t.CallStreaming(ctx, args) {
		if err != nil {
			streamErr = err
			break
		}
		if r.Error != "" {
			streamErr = fmt.Errorf("%s", r.Error)
			break
		}
		chunks = append(chunks, r.Content)
	}
	if streamErr != nil {
		return nil, streamErr
	}
	return map[string]any{"chunks": chunks}, nil
}

// dispatchSubAgent implements the DELEGATE_TO_SUB_AGENT action: it hands
// the step's task description to the sub-agent manager, which decomposes,
// batches and runs it (recursing into this same Dispatcher via Run for
// every subtask), and folds the aggregated outcome back into one
// ActionResult. Aggregation failure is reported as Success: false, never
// as an error — a parent task that delegates and gets nothing back should
// still get the chance to reflect and retry, not abort.
func (d *Dispatcher) dispatchSubAgent(ctx context.Context, step workflow.Step, s *workflow.State) (workflow.ActionResult, error) {
	if d.subagents == nil {
		return workflow.ActionResult{Success: false, Err: "sub-agent delegation is not configured for this domain"}, nil
	}

	task, ok := firstStringArg(step.Parameters, "task", "description")
	if !ok {
		return workflow.ActionResult{Success: false, Err: "delegate_to_sub_agent requires a task or description parameter"}, nil
	}

	em, hasEmitter := emitterFromContext(ctx)
	if hasEmitter {
		em.send(Update{Type: TypeSubAgentSpawned, SubAgentDescription: task})
	}

	shared := map[string]any{"parent_context": s.Context}
	agg := d.subagents.ExecuteWithSubagents(ctx, task, shared)

	if hasEmitter {
		em.send(Update{Type: TypeSubAgentResult, Result: agg.Summary, ToolSuccess: agg.Success})
	}

	errMsg := ""
	if !agg.Success {
		errMsg = agg.Summary
	}
	return workflow.ActionResult{Output: agg.CombinedResult, Success: agg.Success, Err: errMsg}, nil
}

// Run implements subagent.Runner: it executes one subtask as an isolated
// child workflow, scoped to the agent_type's tool allowlist, with a fresh
// State that sees the parent's shared context (the same map, not a copy) but
// starts with no messages of its own and a shorter iteration cap.
func (d *Dispatcher) Run(ctx context.Context, subtask subagent.Subtask, sharedContext map[string]any) (string, error) {
	threadID := uuid.NewString()
	child := workflow.New(subtask.ID, threadID, d.workspace, d.childMaxIterations, d.childRecursionCap)
	child.Context = map[string]any{"shared": sharedContext, "agent_type": subtask.AgentType}

	scoped := d.Scoped(d.agentToolAllowlist[subtask.AgentType])
	engine := workflow.NewEngine(workflow.Config{
		Domain:        "subagent:" + subtask.AgentType,
		ToolAllowlist: d.agentToolAllowlist[subtask.AgentType],
		Complexity:    workflow.ComplexitySimple,
		MaxIterations: d.childMaxIterations,
	}, d.planner, scoped)

	if err := engine.Run(ctx, child, subtask.Description); err != nil {
		return "", fmt.Errorf("subagent: subtask %s: %w", subtask.ID, err)
	}

	switch child.TaskStatus {
	case workflow.TaskCompleted:
		if child.Result != nil {
			return *child.Result, nil
		}
		return "", nil
	default:
		if len(child.Errors) > 0 {
			return "", fmt.Errorf("subagent: subtask %s: %s", subtask.ID, strings.Join(child.Errors, "; "))
		}
		return "", fmt.Errorf("subagent: subtask %s ended in status %q", subtask.ID, child.TaskStatus)
	}
}

// Scoped returns a workflow.Dispatcher that rejects any action outside
// allowlist before delegating to d. An empty allowlist is unrestricted;
// this is how a domain's Config.ToolAllowlist is actually enforced, since
// the engine itself never inspects tool names.
func (d *Dispatcher) Scoped(allowlist []string) workflow.Dispatcher {
	m := make(map[string]bool, len(allowlist))
	for _, n := range allowlist {
		m[strings.ToUpper(n)] = true
	}
	return &scopedDispatcher{Dispatcher: d, allowlist: m}
}

// scopedDispatcher wraps Dispatcher to additionally reject any action
// outside a sub-agent's tool allowlist, before it ever reaches tool-safety
// or tool lookup. An empty allowlist means unrestricted, matching the
// parent domain's own ToolAllowlist convention.
type scopedDispatcher struct {
	*Dispatcher
	allowlist map[string]bool
}

func (s *scopedDispatcher) Dispatch(ctx context.Context, step workflow.Step, state *workflow.State) (workflow.ActionResult, error) {
	action := strings.ToUpper(strings.TrimSpace(step.Action))
	if action != workflow.ActionComplete && action != workflow.ActionDelegateSubAgent &&
		len(s.allowlist) > 0 && !s.allowlist[action] {
		return workflow.ActionResult{
			Success: false,
			Err:     fmt.Sprintf("action %q is not permitted for this sub-agent role", step.Action),
		}, nil
	}
	return s.Dispatcher.Dispatch(ctx, step, state)
}

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

package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepPlanner returns a fixed Plan once, regardless of task description.
type stepPlanner struct {
	plan Plan
	err  error
}

func (p stepPlanner) Plan(ctx context.Context, taskDescription string, s *State) (Plan, error) {
	return p.plan, p.err
}

// scriptedDispatcher returns the next result in results for each Dispatch
// call, cycling on the last entry once exhausted.
type scriptedDispatcher struct {
	results []ActionResult
	calls   int
}

func (d *scriptedDispatcher) Dispatch(ctx context.Context, step Step, s *State) (ActionResult, error) {
	i := d.calls
	if i >= len(d.results) {
		i = len(d.results) - 1
	}
	d.calls++
	return d.results[i], nil
}

func newState(maxIterations int) *State {
	return New("task-1", "thread-1", "/workspace", maxIterations, 200)
}

func TestEngine_GreetingShortCircuit(t *testing.T) {
	e := NewEngine(Config{Domain: "test", Complexity: ComplexityModerate}, stepPlanner{}, &scriptedDispatcher{})
	s := newState(50)

	err := e.Run(context.Background(), s, "hi")
	require.NoError(t, err)

	assert.Equal(t, TaskCompleted, s.TaskStatus)
	assert.Equal(t, 0, s.Iteration)
	assert.Empty(t, s.ToolCalls)
	require.NotNil(t, s.Result)
	assert.NotEmpty(t, *s.Result)
}

func TestEngine_GreetingShortCircuit_CaseAndPunctuationInsensitive(t *testing.T) {
	e := NewEngine(Config{Domain: "test"}, stepPlanner{}, &scriptedDispatcher{})
	s := newState(50)

	err := e.Run(context.Background(), s, "  Thanks!  ")
	require.NoError(t, err)
	assert.Equal(t, TaskCompleted, s.TaskStatus)
}

func TestEngine_CompletesViaCompleteAction(t *testing.T) {
	plan := Plan{Steps: []Step{{Action: ActionComplete}}}
	disp := &scriptedDispatcher{results: []ActionResult{{Success: true, Completed: true, Result: "done"}}}
	e := NewEngine(Config{Domain: "test"}, stepPlanner{plan: plan}, disp)
	s := newState(50)

	err := e.Run(context.Background(), s, "build the thing")
	require.NoError(t, err)

	assert.Equal(t, TaskCompleted, s.TaskStatus)
	require.NotNil(t, s.Result)
	assert.Equal(t, "done", *s.Result)
	assert.Len(t, s.ToolCalls, 1)
	assert.Equal(t, ActionComplete, s.ToolCalls[0].Name)
}

func TestEngine_ReflectsAfterLastStepAndDetectsSuccess(t *testing.T) {
	plan := Plan{Steps: []Step{{Action: "write_file"}}}
	disp := &scriptedDispatcher{results: []ActionResult{{Success: true, Output: "ok"}}}
	e := NewEngine(Config{Domain: "test"}, stepPlanner{plan: plan}, disp)
	s := newState(50)

	err := e.Run(context.Background(), s, "build the thing")
	require.NoError(t, err)

	// A single step with no DELEGATE/COMPLETE action and a fully-done plan
	// satisfies successPredicateSatisfied, so reflect completes the task.
	assert.Equal(t, TaskCompleted, s.TaskStatus)
	assert.Equal(t, 1, s.Iteration)
}

func TestEngine_FailedStepIsNotMarkedDoneAndForcesReplan(t *testing.T) {
	// A denied command (or any other dispatch failure) must not read as a
	// satisfied success predicate: the step stays unfinished, so a
	// single-step plan that always fails keeps re-planning instead of
	// completing after its first iteration.
	plan := Plan{Steps: []Step{{Action: "run_command"}}}
	disp := &scriptedDispatcher{results: []ActionResult{{Success: false, Err: "denied_command"}}}
	e := NewEngine(Config{Domain: "test", MaxIterations: 3}, stepPlanner{plan: plan}, disp)
	s := newState(3)

	err := e.Run(context.Background(), s, "delete everything")
	require.NoError(t, err)

	assert.Equal(t, 3, s.Iteration, "a plan that never succeeds should run until the iteration cap, not complete early")
	assert.Len(t, s.ToolCalls, 3)
	for _, tc := range s.ToolCalls {
		assert.False(t, tc.Success)
	}
}

func TestEngine_IterationCapForcesBestEffortCompletion(t *testing.T) {
	// Every replanning call hands back two unfinished steps; execute only
	// ever dispatches the first, so the plan never reads as fully done and
	// only the iteration cap can end the run.
	plan := Plan{Steps: []Step{{Action: "poll"}, {Action: "poll2"}}}
	disp := &scriptedDispatcher{results: []ActionResult{{Success: true}}}
	e := NewEngine(Config{Domain: "test", MaxIterations: 3}, stepPlanner{plan: plan}, disp)
	s := newState(3)

	err := e.Run(context.Background(), s, "watch the queue")
	require.NoError(t, err)

	assert.Equal(t, TaskCompleted, s.TaskStatus)
	require.NotNil(t, s.Result)
	assert.Contains(t, *s.Result, "best-effort")
	assert.Equal(t, 3, s.Iteration)
}

func TestEngine_RecursionLimitHaltsWithoutProgress(t *testing.T) {
	// A planner whose plan is permanently empty keeps the engine
	// planning -> executing -> reflecting -> planning with no tool calls
	// or messages ever recorded, so noProgress trips well before any
	// recursion limit would be needed in practice; set RecursionLimit
	// very low to exercise the hard stop directly.
	e := NewEngine(Config{Domain: "test", RecursionLimit: 2}, stepPlanner{plan: Plan{}}, &scriptedDispatcher{})
	s := newState(50)
	s.RecursionLimit = 2

	err := e.Run(context.Background(), s, "loop forever")
	require.NoError(t, err)

	assert.Equal(t, TaskFailed, s.TaskStatus)
	assert.Contains(t, s.Errors, "recursion limit exceeded")
}

func TestEngine_NoProgressFailureAfterStagnantWindow(t *testing.T) {
	// An empty plan means execute always routes straight to reflect with
	// no ToolCall or Message recorded, so every iteration is stagnant.
	e := NewEngine(Config{Domain: "test", NoProgressWindow: 2, RecursionLimit: 50}, stepPlanner{plan: Plan{}}, &scriptedDispatcher{})
	s := newState(50)

	err := e.Run(context.Background(), s, "do something vague")
	require.NoError(t, err)

	assert.Equal(t, TaskFailed, s.TaskStatus)
	assert.Contains(t, s.Errors, "no progress across the last iterations")
}

func TestEngine_NoProgressWindowForgetsOldActivity(t *testing.T) {
	// onceActivePlanner hands back exactly one real step on its first call
	// (producing one ToolCall at iteration 0), then an empty plan on every
	// later call. With a window of 2, that single ToolCall still counts as
	// progress at iteration 2 (0 >= 2-2) but has aged out by iteration 3 (0
	// < 3-2), so the run must survive iteration 2 and fail exactly at
	// iteration 3. A whole-history definition of no-progress would never
	// fail at all, since the one ToolCall would count forever.
	plan := Plan{Steps: []Step{{Action: "noop"}}}
	planner := &onceActivePlanner{plan: plan}
	// The step fails, so the one-step plan never reads as fully done; a
	// successful step would satisfy the success predicate at iteration 1.
	disp := &scriptedDispatcher{results: []ActionResult{{Success: false}}}
	e := NewEngine(Config{Domain: "test", NoProgressWindow: 2, MaxIterations: 10, RecursionLimit: 50}, planner, disp)
	s := newState(10)

	err := e.Run(context.Background(), s, "intermittent work")
	require.NoError(t, err)

	assert.Equal(t, TaskFailed, s.TaskStatus)
	assert.Contains(t, s.Errors, "no progress across the last iterations")
	assert.Equal(t, 3, s.Iteration)
	require.Len(t, s.ToolCalls, 1)
	assert.Equal(t, 0, s.ToolCalls[0].Iteration)
}

// onceActivePlanner returns plan on its first call and an empty plan on
// every subsequent call, simulating a task that acts once and goes quiet.
type onceActivePlanner struct {
	plan  Plan
	calls int
}

func (p *onceActivePlanner) Plan(ctx context.Context, taskDescription string, s *State) (Plan, error) {
	p.calls++
	if p.calls == 1 {
		return p.plan, nil
	}
	return Plan{}, nil
}

func TestEngine_ApprovalGatePausesAndResumes(t *testing.T) {
	plan := Plan{Steps: []Step{{Action: "delete_prod", Sensitive: true}}}
	disp := &scriptedDispatcher{results: []ActionResult{{Success: true, Completed: true, Result: "deleted"}}}
	gate := NewApprovalGate()
	e := NewEngine(Config{Domain: "test"}, stepPlanner{plan: plan}, disp, WithApprovalGate(gate))
	s := newState(50)

	err := e.Run(context.Background(), s, "delete the prod bucket")
	require.NoError(t, err)

	assert.Equal(t, NodeAwaitingApproval, s.NextNode)
	assert.False(t, s.TaskStatus.Terminal())
	assert.Empty(t, s.ToolCalls)

	require.NoError(t, gate.Resolve(s, true, "go ahead"))
	err = e.Run(context.Background(), s, "delete the prod bucket")
	require.NoError(t, err)

	assert.Equal(t, TaskCompleted, s.TaskStatus)
	require.Len(t, s.ToolCalls, 1)
	assert.Equal(t, "delete_prod", s.ToolCalls[0].Name)
}

func TestEngine_ApprovalGateRejectionSkipsStepAndReflects(t *testing.T) {
	plan := Plan{Steps: []Step{{Action: "delete_prod", Sensitive: true}}}
	disp := &scriptedDispatcher{}
	gate := NewApprovalGate()
	e := NewEngine(Config{Domain: "test"}, stepPlanner{plan: plan}, disp, WithApprovalGate(gate))
	s := newState(50)

	require.NoError(t, e.Run(context.Background(), s, "delete the prod bucket"))
	require.NoError(t, gate.Resolve(s, false, "not approved"))
	require.NoError(t, e.Run(context.Background(), s, "delete the prod bucket"))

	assert.Contains(t, s.Errors, "sensitive step rejected by approver")
	assert.Zero(t, disp.calls)
}

func TestEngine_CancellationStopsTheLoop(t *testing.T) {
	e := NewEngine(Config{Domain: "test"}, stepPlanner{plan: Plan{Steps: []Step{{Action: "noop"}}}}, &scriptedDispatcher{
		results: []ActionResult{{Success: true}},
	})
	s := newState(50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Run(ctx, s, "anything")
	require.NoError(t, err)

	assert.Equal(t, TaskCancelled, s.TaskStatus)
	assert.False(t, s.ShouldContinue)
	assert.NotNil(t, s.EndTime)
}

func TestConfig_SetDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, 50, c.MaxIterations)
	assert.Equal(t, 200, c.RecursionLimit)
	assert.Equal(t, 3, c.NoProgressWindow)
}

func TestComplexityCap(t *testing.T) {
	assert.Equal(t, 10, complexityCap(ComplexitySimple, 50))
	assert.Equal(t, 20, complexityCap(ComplexityModerate, 50))
	assert.Equal(t, 50, complexityCap(ComplexityComplex, 50))
	// A simple task's nominal cap (10) still can't exceed a tighter
	// task-level max_iterations.
	assert.Equal(t, 5, complexityCap(ComplexitySimple, 5))
}

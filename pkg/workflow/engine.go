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
	"strings"
)

// Complexity buckets the intent router's classification; it selects the
// engine's per-task iteration cap.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

// complexityCap returns the iteration cap for c, bounded above by the
// task's own configured max_iterations.
func complexityCap(c Complexity, maxIterations int) int {
	bound := maxIterations
	switch c {
	case ComplexitySimple:
		bound = 10
	case ComplexityModerate:
		bound = 20
	}
	if bound > maxIterations {
		bound = maxIterations
	}
	return bound
}

// Plan is the structured output of the plan node's LLM call.
type Plan struct {
	Steps []Step `json:"steps"`
}

// Step is one unit of work in a Plan.
type Step struct {
	Action           string         `json:"action"`
	Parameters       map[string]any `json:"parameters"`
	SuccessPredicate string         `json:"success_predicate"`
	Sensitive        bool           `json:"sensitive"`
	Done             bool           `json:"-"`
}

// Terminal action names the execute node always recognizes, regardless of
// what the domain's tool allowlist contains.
const (
	ActionComplete         = "COMPLETE"
	ActionDelegateSubAgent = "DELEGATE_TO_SUB_AGENT"
)

// Planner produces a Plan for a task. The engine handles the greeting
// short-circuit itself; Planner is only called for everything else.
type Planner interface {
	Plan(ctx context.Context, taskDescription string, state *State) (Plan, error)
}

// ActionResult is what the Dispatcher hands back to the execute node for
// one step.
type ActionResult struct {
	Output    any
	Success   bool
	Err       string
	Completed bool   // the step ran the COMPLETE action
	Result    string // set when Completed
}

// Dispatcher runs one plan step's action: tool invocation, sub-agent
// delegation, or a dispatcher-level terminal. It is the only point where
// the engine touches tool-safety and sub-agent concerns, and is
// implemented by the orchestrator facade.
type Dispatcher interface {
	Dispatch(ctx context.Context, step Step, state *State) (ActionResult, error)
}

// Config is one domain's concrete instantiation of the shared
// plan/execute/reflect skeleton. Every domain shares Engine's node logic
// and differs only in these fields.
type Config struct {
	Domain           string
	PlanningPrompt   string
	ToolAllowlist    []string
	Complexity       Complexity
	MaxIterations    int
	RecursionLimit   int
	NoProgressWindow int // reflect declares no-progress failure after this many stagnant iterations
}

// SetDefaults fills in zero fields with the values named in §4.5.
func (c *Config) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = 50
	}
	if c.RecursionLimit == 0 {
		c.RecursionLimit = 200
	}
	if c.NoProgressWindow == 0 {
		c.NoProgressWindow = 3
	}
}

// Observer is notified after every node the engine runs, letting an
// external layer stream progress and checkpoint at natural boundaries
// without the engine itself depending on either concern.
type Observer interface {
	OnNode(ctx context.Context, node NodeState, s *State)
}

// Engine runs the shared plan -> execute -> reflect cycle for one domain.
type Engine struct {
	cfg        Config
	planner    Planner
	dispatcher Dispatcher
	approval   *ApprovalGate
	quality    QualityGate
	observer   Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithApprovalGate attaches the human-in-the-loop gate checked before a
// sensitive step executes.
func WithApprovalGate(g *ApprovalGate) Option { return func(e *Engine) { e.approval = g } }

// WithQualityGate attaches an optional review hook run at reflect time.
func WithQualityGate(q QualityGate) Option { return func(e *Engine) { e.quality = q } }

// WithObserver attaches a node-transition observer.
func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

// NewEngine builds an Engine for one domain.
func NewEngine(cfg Config, planner Planner, dispatcher Dispatcher, opts ...Option) *Engine {
	cfg.SetDefaults()
	e := &Engine{cfg: cfg, planner: planner, dispatcher: dispatcher}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives s from its current node through plan/execute/reflect until a
// terminal status, the recursion limit, or an awaiting_approval pause.
// Ordinary task outcomes (no-progress failure, best-effort completion at
// the iteration cap, decomposition errors surfaced by the dispatcher) are
// recorded on s.TaskStatus rather than returned; Run only returns an error for a Planner/Dispatcher call
// that fails outside that vocabulary.
func (e *Engine) Run(ctx context.Context, s *State, taskDescription string) error {
	bound := complexityCap(e.cfg.Complexity, e.cfg.MaxIterations)
	if s.MaxIterations == 0 || s.MaxIterations > bound {
		s.MaxIterations = bound
	}
	if s.RecursionLimit == 0 {
		s.RecursionLimit = e.cfg.RecursionLimit
	}

	for {
		if err := ctx.Err(); err != nil {
			s.Merge(Update{
				TaskStatus:     taskStatusPtr(TaskCancelled),
				ShouldContinue: boolPtr(false),
				EndTime:        boolPtr(true),
			})
			return nil
		}

		s.RecursionCount++
		if s.RecursionCount > s.RecursionLimit {
			s.Merge(Update{
				Errors:         []string{"recursion limit exceeded"},
				TaskStatus:     taskStatusPtr(TaskFailed),
				ShouldContinue: boolPtr(false),
				EndTime:        boolPtr(true),
			})
			return nil
		}

		node := s.NextNode
		switch node {
		case NodePlanning:
			if err := e.plan(ctx, s, taskDescription); err != nil {
				return err
			}
		case NodeExecuting:
			if err := e.execute(ctx, s); err != nil {
				return err
			}
		case NodeReflecting:
			e.reflect(s)
		case NodeAwaitingApproval:
			// Exit is driven externally via ResolveApproval; stop
			// iterating until the next Run call observes the resolution.
			if e.observer != nil {
				e.observer.OnNode(ctx, node, s)
			}
			return nil
		default:
			return nil
		}

		if e.observer != nil {
			e.observer.OnNode(ctx, node, s)
		}

		if !s.ShouldContinue || s.TaskStatus.Terminal() {
			return nil
		}
	}
}

// plan implements §4.5's plan node: the greeting short-circuit, then a
// structured planning call attached to context["plan"].
func (e *Engine) plan(ctx context.Context, s *State, taskDescription string) error {
	if reply, ok := greetingReply(taskDescription); ok {
		s.Merge(Update{
			Messages:       []Message{{Role: "assistant", Content: reply, Iteration: s.Iteration}},
			Result:         &reply,
			TaskStatus:     taskStatusPtr(TaskCompleted),
			ShouldContinue: boolPtr(false),
			EndTime:        boolPtr(true),
		})
		return nil
	}

	p, err := e.planner.Plan(ctx, taskDescription, s)
	if err != nil {
		return err
	}

	next := NodeExecuting
	s.Merge(Update{
		Context:        map[string]any{"plan": p},
		NextNode:       &next,
		ShouldContinue: boolPtr(true),
	})
	return nil
}

// execute implements §4.5's execute node: run the next unfinished step.
func (e *Engine) execute(ctx context.Context, s *State) error {
	plan, steps := currentPlan(s)
	idx := nextUnfinished(steps)
	if idx < 0 {
		// No steps left to run; hand control to reflect to decide
		// completion or no-progress.
		next := NodeReflecting
		s.Merge(Update{NextNode: &next})
		return nil
	}

	step := steps[idx]
	if step.Sensitive && e.approval != nil {
		status := e.approval.Status(s)
		switch status {
		case ApprovalPending:
			next := NodeAwaitingApproval
			s.Merge(Update{NextNode: &next})
			return nil
		case ApprovalRejected:
			next := NodeReflecting
			s.Merge(Update{
				Errors:   []string{"sensitive step rejected by approver"},
				NextNode: &next,
			})
			return nil
		}
		// approved: fall through to dispatch.
	}

	result, err := e.dispatcher.Dispatch(ctx, step, s)
	if err != nil {
		return err
	}

	// Only a successful dispatch retires the step; a failed one stays in
	// the unfinished set so the next plan can retry or replace it, and so
	// successPredicateSatisfied never sees "all done" on a plan that still
	// has an outstanding failure.
	steps[idx].Done = result.Success
	plan.Steps = steps

	call := ToolCall{
		Name:      step.Action,
		Params:    step.Parameters,
		Result:    result.Output,
		Success:   result.Success,
		Error:     result.Err,
		Iteration: s.Iteration,
	}

	next := NodeReflecting
	u := Update{
		ToolCalls:      []ToolCall{call},
		Context:        map[string]any{"plan": plan},
		NextNode:       &next,
		LastToolResult: result.Output,
		HasLastResult:  true,
	}
	if result.Completed {
		res := result.Result
		u.Result = &res
		u.TaskStatus = taskStatusPtr(TaskCompleted)
	}
	s.Merge(u)
	return nil
}

// reflect implements §4.5's reflect node.
func (e *Engine) reflect(s *State) {
	s.Merge(Update{IterationDelta: 1})

	if e.quality != nil {
		if rr, ok := e.quality.Review(s); ok {
			s.Merge(Update{ReviewResults: []ReviewResult{rr}})
		}
	}

	if s.Iteration >= s.MaxIterations {
		res := "best-effort result within the iteration cap"
		s.Merge(Update{
			Result:         &res,
			TaskStatus:     taskStatusPtr(TaskCompleted),
			ShouldContinue: boolPtr(false),
			EndTime:        boolPtr(true),
		})
		return
	}

	if hasCompleteAction(s) || successPredicateSatisfied(s) {
		if s.Result == nil {
			res := ""
			s.Merge(Update{Result: &res})
		}
		s.Merge(Update{
			TaskStatus:     taskStatusPtr(TaskCompleted),
			ShouldContinue: boolPtr(false),
			EndTime:        boolPtr(true),
		})
		return
	}

	if noProgress(s, e.cfg.NoProgressWindow) {
		s.Merge(Update{
			Errors:         []string{"no progress across the last iterations"},
			TaskStatus:     taskStatusPtr(TaskFailed),
			ShouldContinue: boolPtr(false),
			EndTime:        boolPtr(true),
		})
		return
	}

	next := NodePlanning
	s.Merge(Update{ShouldContinue: boolPtr(true), NextNode: &next})
}

func currentPlan(s *State) (Plan, []Step) {
	raw, ok := s.Context["plan"]
	if !ok {
		return Plan{}, nil
	}
	p, ok := raw.(Plan)
	if !ok {
		return Plan{}, nil
	}
	return p, append([]Step(nil), p.Steps...)
}

func nextUnfinished(steps []Step) int {
	for i, st := range steps {
		if !st.Done {
			return i
		}
	}
	return -1
}

func hasCompleteAction(s *State) bool {
	for _, tc := range s.ToolCalls {
		if tc.Name == ActionComplete {
			return true
		}
	}
	return false
}

// successPredicateSatisfied reports whether every step in the current
// plan is marked done; the dispatcher is responsible for evaluating each
// step's own success_predicate before marking it done.
func successPredicateSatisfied(s *State) bool {
	_, steps := currentPlan(s)
	if len(steps) == 0 {
		return false
	}
	for _, st := range steps {
		if !st.Done {
			return false
		}
	}
	return true
}

// noProgress reports whether the last window iterations produced no new
// ToolCall and no new assistant Message. With fewer than window iterations
// elapsed, progress can't yet be judged stagnant. Only ToolCalls/Messages
// stamped with an Iteration within the window count; older entries (from
// before the task entered its current stagnant streak) don't.
func noProgress(s *State, window int) bool {
	if s.Iteration < window {
		return false
	}
	cutoff := s.Iteration - window
	for _, tc := range s.ToolCalls {
		if tc.Name != "" && tc.Iteration >= cutoff {
			return false
		}
	}
	for _, m := range s.Messages {
		if m.Iteration >= cutoff {
			return false
		}
	}
	return true
}

var greetingTokens = map[string]bool{
	"hi": true, "hello": true, "hey": true,
	"안녕": true, "안녕하세요": true,
	"thanks": true, "thank you": true, "ty": true, "thx": true,
	"ok": true, "okay": true, "감사": true, "감사합니다": true,
}

const greetingReplyText = "Hello! How can I help you today?"

// greetingReply implements the ≤20-character language-neutral greeting
// short-circuit: if the normalized task matches a known greeting or
// casual ack token, it returns the canned reply instead of planning.
func greetingReply(taskDescription string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(taskDescription))
	if len(normalized) > 20 {
		return "", false
	}
	normalized = strings.Trim(normalized, "!.,? ")
	if greetingTokens[normalized] {
		return greetingReplyText, true
	}
	return "", false
}

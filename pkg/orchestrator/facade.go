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
	"sync"

	"github.com/agentic-coder/orchestrator/pkg/cache"
	"github.com/agentic-coder/orchestrator/pkg/checkpoint"
	"github.com/agentic-coder/orchestrator/pkg/config"
	"github.com/agentic-coder/orchestrator/pkg/observability"
	"github.com/agentic-coder/orchestrator/pkg/router"
	"github.com/agentic-coder/orchestrator/pkg/safety"
	"github.com/agentic-coder/orchestrator/pkg/session"
	"github.com/agentic-coder/orchestrator/pkg/subagent"
	"github.com/agentic-coder/orchestrator/pkg/workflow"
)

// Handle is what Submit/Resume hand back to a caller: the identifiers for
// the run and the Update stream it will produce. Updates is closed once
// the run reaches completed or error; an awaiting_approval pause leaves
// it open, to be resumed by ResolveApproval.
type Handle struct {
	TaskID   string
	ThreadID string
	Updates  <-chan Update
}

// Orchestrator is the facade component: it owns every other component
// (gateway, safety, cache, router, sub-agent manager, checkpoints,
// sessions) only by reference, and its only real job is wiring them
// together into Submit/Resume/ResolveApproval.
type Orchestrator struct {
	cfg         config.WorkflowsConfig
	gateway     Generator
	registry    *ToolRegistry
	policy      safety.Checker
	router      *router.Router
	checkpoints *checkpoint.Manager
	hooks       *checkpoint.Hooks
	sessions    *session.Manager
	approvals   *workflow.ApprovalGate
	dispatcher  *Dispatcher
	optimizer   *cache.Optimizer
	perf        *cache.PerfMonitor
	metrics     observability.Recorder
	workspace   string

	mu   sync.Mutex
	runs map[string]*activeRun // thread id -> in-flight or paused run
}

type activeRun struct {
	domain      string
	description string
	state       *workflow.State
	engine      *workflow.Engine
	emitter     *emitter
}

// New builds an Orchestrator from already-constructed components. Wiring
// concrete backends (the LLM gateway's HTTP endpoints, the checkpoint
// store's database connection) is cmd/orchestrator's job; this
// constructor only composes the pieces once they exist.
func New(
	cfg config.WorkflowsConfig,
	gateway Generator,
	registry *ToolRegistry,
	policy safety.Checker,
	rtr *router.Router,
	checkpoints *checkpoint.Manager,
	sessions *session.Manager,
	subagents *subagent.Manager,
	optimizer *cache.Optimizer,
	metrics observability.Recorder,
	workspace string,
) *Orchestrator {
	subPlanner := NewPlanner(gateway, registry, "You are a focused sub-agent. Accomplish only the task you were given.")
	dispatcher := NewDispatcher(registry, policy, subagents, subPlanner, workspace, WithMetrics(metrics))

	return &Orchestrator{
		cfg:         cfg,
		gateway:     gateway,
		registry:    registry,
		policy:      policy,
		router:      rtr,
		checkpoints: checkpoints,
		hooks:       checkpoint.NewHooks(checkpoints),
		sessions:    sessions,
		approvals:   workflow.NewApprovalGate(),
		dispatcher:  dispatcher,
		optimizer:   optimizer,
		perf:        cache.NewPerfMonitor(),
		metrics:     metrics,
		workspace:   workspace,
		runs:        map[string]*activeRun{},
	}
}

// Dispatcher returns the top-level Dispatcher this Orchestrator built for
// itself. It also implements subagent.Runner, so a caller wiring the
// sub-agent manager's Runner late (to break the Manager-needs-a-Runner /
// Dispatcher-needs-a-Manager construction cycle) binds it through this
// accessor rather than reaching into an unexported field.
func (o *Orchestrator) Dispatcher() *Dispatcher { return o.dispatcher }

// Submit classifies description, builds the matching domain engine, and
// starts it in the background, returning immediately with a Handle whose
// Updates channel carries the run's progress.
func (o *Orchestrator) Submit(ctx context.Context, description, workspace string) (*Handle, error) {
	if workspace == "" {
		workspace = o.workspace
	}

	classification := o.router.Classify(ctx, description)
	domainCfg := o.cfg.Domains[classification.Domain]

	wfCfg := workflow.Config{
		Domain:         classification.Domain,
		PlanningPrompt: domainCfg.PlanningPrompt,
		ToolAllowlist:  domainCfg.ToolAllowlist,
		Complexity:     resolveComplexity(domainCfg.Complexity, classification.Complexity),
		MaxIterations:  firstPositive(domainCfg.MaxIterations, o.cfg.MaxIterations),
		RecursionLimit: o.cfg.RecursionLimit,
	}

	sess := o.sessions.CreateSession(description, classification.Domain, workspace, map[string]any{
		"intent_confidence": classification.Confidence,
	})

	planner := NewPlanner(o.gateway, o.registry, wfCfg.PlanningPrompt)
	dispatcher := o.dispatcher.Scoped(wfCfg.ToolAllowlist)
	em := newEmitter(sess.ID, sess.ThreadID, 128)

	engine := workflow.NewEngine(wfCfg, planner, dispatcher,
		workflow.WithApprovalGate(o.approvals),
		workflow.WithObserver(o.newObserver(em)),
	)

	state := workflow.New(sess.ID, sess.ThreadID, workspace, wfCfg.MaxIterations, wfCfg.RecursionLimit)

	run := &activeRun{domain: classification.Domain, description: description, state: state, engine: engine, emitter: em}
	o.mu.Lock()
	o.runs[sess.ThreadID] = run
	o.mu.Unlock()

	go o.drive(ctx, run)

	return &Handle{TaskID: sess.ID, ThreadID: sess.ThreadID, Updates: em.ch}, nil
}

// Resume rehydrates a thread from its last checkpoint and continues
// driving it from wherever it left off, per §4.7's resume contract.
func (o *Orchestrator) Resume(ctx context.Context, threadID string) (*Handle, error) {
	o.mu.Lock()
	if run, ok := o.runs[threadID]; ok {
		o.mu.Unlock()
		return &Handle{TaskID: run.state.TaskID, ThreadID: threadID, Updates: run.emitter.ch}, nil
	}
	o.mu.Unlock()

	state, err := o.checkpoints.LoadSnapshot(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resume thread %s: %w", threadID, err)
	}
	if state.TaskStatus.Terminal() {
		return nil, fmt.Errorf("orchestrator: thread %s already reached terminal status %q", threadID, state.TaskStatus)
	}

	sess := o.sessions.GetByThread(threadID)
	domain := ""
	description := ""
	if sess != nil {
		domain = sess.TaskType
		if d, ok := sess.Metadata["description"].(string); ok {
			description = d
		}
	}

	var classifiedComplexity router.Complexity
	if description != "" {
		classifiedComplexity = o.router.Classify(ctx, description).Complexity
	}

	domainCfg := o.cfg.Domains[domain]
	wfCfg := workflow.Config{
		Domain:         domain,
		PlanningPrompt: domainCfg.PlanningPrompt,
		ToolAllowlist:  domainCfg.ToolAllowlist,
		Complexity:     resolveComplexity(domainCfg.Complexity, classifiedComplexity),
		MaxIterations:  firstPositive(domainCfg.MaxIterations, o.cfg.MaxIterations),
		RecursionLimit: o.cfg.RecursionLimit,
	}

	planner := NewPlanner(o.gateway, o.registry, wfCfg.PlanningPrompt)
	dispatcher := o.dispatcher.Scoped(wfCfg.ToolAllowlist)
	em := newEmitter(state.TaskID, threadID, 128)

	engine := workflow.NewEngine(wfCfg, planner, dispatcher,
		workflow.WithApprovalGate(o.approvals),
		workflow.WithObserver(o.newObserver(em)),
	)

	run := &activeRun{domain: domain, description: description, state: state, engine: engine, emitter: em}
	o.mu.Lock()
	o.runs[threadID] = run
	o.mu.Unlock()

	go o.drive(ctx, run)

	return &Handle{TaskID: state.TaskID, ThreadID: threadID, Updates: em.ch}, nil
}

// ResolveApproval resolves the sensitive step currently awaiting approval
// on threadID and resumes driving it on the same Updates stream the
// original Submit/Resume call returned.
func (o *Orchestrator) ResolveApproval(ctx context.Context, threadID string, approved bool, message string) error {
	o.mu.Lock()
	run, ok := o.runs[threadID]
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("orchestrator: no active run for thread %s", threadID)
	}

	if err := o.approvals.Resolve(run.state, approved, message); err != nil {
		return err
	}

	go o.drive(ctx, run)
	return nil
}

// drive runs run's engine to its next stopping point (a terminal status
// or a fresh awaiting_approval pause) and emits the matching terminal or
// status Update.
func (o *Orchestrator) drive(ctx context.Context, run *activeRun) {
	runCtx := withEmitter(ctx, run.emitter)

	if err := run.engine.Run(runCtx, run.state, run.description); err != nil {
		run.emitter.send(Update{Type: TypeError, Error: err.Error()})
		run.emitter.close()
		o.forget(run.state.ThreadID)
		return
	}

	switch {
	case run.state.NextNode == workflow.NodeAwaitingApproval:
		run.emitter.send(Update{Type: TypeStatus, Node: string(workflow.NodeAwaitingApproval)})
		// Channel stays open; ResolveApproval will call drive again.
	case run.state.TaskStatus == workflow.TaskCompleted:
		result := ""
		if run.state.Result != nil {
			result = *run.state.Result
		}
		run.emitter.send(Update{Type: TypeCompleted, Result: result})
		run.emitter.close()
		o.forget(run.state.ThreadID)
	case run.state.TaskStatus == workflow.TaskCancelled:
		run.emitter.send(Update{Type: TypeCancelled, Error: strings.Join(run.state.Errors, "; ")})
		run.emitter.close()
		o.forget(run.state.ThreadID)
	default:
		run.emitter.send(Update{Type: TypeError, Error: strings.Join(run.state.Errors, "; ")})
		run.emitter.close()
		o.forget(run.state.ThreadID)
	}
}

func (o *Orchestrator) forget(threadID string) {
	o.mu.Lock()
	delete(o.runs, threadID)
	o.mu.Unlock()
}

func resolveComplexity(override string, classified router.Complexity) workflow.Complexity {
	if override != "" {
		return workflow.Complexity(override)
	}
	if classified == "" {
		return workflow.ComplexityModerate
	}
	return workflow.Complexity(classified)
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

// newObserver builds the observerAdapter driving a single run, wiring in
// the facade's checkpoint hooks and context optimizer.
func (o *Orchestrator) newObserver(em *emitter) *observerAdapter {
	return &observerAdapter{hooks: o.hooks, emitter: em, optimizer: o.optimizer, perf: o.perf}
}

// observerAdapter bridges workflow.Observer to the checkpoint cadence
// hooks and the Update stream: every node transition both may checkpoint
// (if the configured cadence calls for it) and emits a progress Update.
// After each reflect pass it also gives the context optimizer a chance to
// trim the running message/tool-call history before the next plan call.
type observerAdapter struct {
	hooks     *checkpoint.Hooks
	emitter   *emitter
	optimizer *cache.Optimizer
	perf      *cache.PerfMonitor
}

func (o *observerAdapter) OnNode(ctx context.Context, node workflow.NodeState, s *workflow.State) {
	if o.perf != nil {
		defer o.perf.Start("node." + string(node)).Release()
	}

	switch node {
	case workflow.NodePlanning:
		o.hooks.BeforeLLMCall(ctx, s)
		o.emitter.send(Update{Type: TypeThinking, Node: string(node), Iteration: s.Iteration, MaxIterations: s.MaxIterations})
	case workflow.NodeExecuting:
		o.hooks.AfterToolExecution(ctx, s)
		o.emitter.send(Update{Type: TypeProgress, Node: string(node), Iteration: s.Iteration, MaxIterations: s.MaxIterations})
	case workflow.NodeReflecting:
		o.hooks.OnIterationEnd(ctx, s)
		if o.optimizer != nil {
			o.optimizer.Optimize(s)
		}
		o.emitter.send(Update{Type: TypeProgress, Node: string(node), Iteration: s.Iteration, MaxIterations: s.MaxIterations})
	case workflow.NodeAwaitingApproval:
		o.hooks.OnApprovalRequired(ctx, s)
	}

	if s.TaskStatus == workflow.TaskFailed || s.TaskStatus == workflow.TaskCancelled {
		o.hooks.OnError(ctx, s)
	}
	if s.TaskStatus == workflow.TaskCompleted {
		o.hooks.OnComplete(ctx, s.ThreadID)
	}
}

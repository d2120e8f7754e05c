package observability

import (
	"context"
	"net/http"
	"time"
)

// NoopManager returns a no-operation Manager. Use when observability is
// completely disabled; all accessor methods on a zero-value *Manager are
// nil-safe already, so this is mostly for readability at call sites.
func NoopManager() *Manager {
	return &Manager{}
}

// Recorder is the metrics-recording surface the rest of the orchestrator
// depends on. *Metrics implements it; a nil *Metrics also satisfies it
// because every method is nil-receiver safe.
type Recorder interface {
	RecordLLMCall(endpoint, outcome string, d time.Duration)
	RecordLLMError(endpoint, kind string)
	SetEndpointHealthy(endpoint string, healthy bool)

	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	SetCacheSize(cache string, size int)
	RecordCacheEviction(cache string)

	RecordWorkflowIteration(domain string)
	RecordWorkflowOutcome(domain, status string, d time.Duration)

	RecordSubAgentSpawned(agentType string)
	RecordSubAgentFinished(agentType, status string, d time.Duration)

	RecordSafetyCheck(kind string)
	RecordSafetyViolation(kind string)

	RecordCheckpointWrite(outcome string)
	RecordCheckpointError(op string)

	Handler() http.Handler
}

var _ Recorder = (*Metrics)(nil)

// NoopTracer satisfies code paths that want a tracer without checking for
// nil; Manager.Tracer() returning nil is the normal disabled path, this
// type exists for tests that want a concrete, inert tracer.
type NoopTracer struct{}

func (NoopTracer) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

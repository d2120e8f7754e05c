package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the orchestrator.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry

	// Gateway (C1) metrics
	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmErrors       *prometheus.CounterVec
	endpointHealthy *prometheus.GaugeVec

	// Cache (C3) metrics
	cacheHits  *prometheus.CounterVec
	cacheMiss  *prometheus.CounterVec
	cacheSize  *prometheus.GaugeVec
	cacheEvict *prometheus.CounterVec

	// Workflow (C5) metrics
	workflowIterations *prometheus.CounterVec
	workflowOutcomes   *prometheus.CounterVec
	workflowDuration   *prometheus.HistogramVec

	// Sub-agent (C6) metrics
	subAgentsSpawned  *prometheus.CounterVec
	subAgentsActive   *prometheus.GaugeVec
	subAgentOutcomes  *prometheus.CounterVec
	subAgentsDuration *prometheus.HistogramVec

	// Tool-safety (C2) metrics
	safetyChecks     *prometheus.CounterVec
	safetyViolations *prometheus.CounterVec

	// Checkpoint (C7) metrics
	checkpointWrites *prometheus.CounterVec
	checkpointErrors *prometheus.CounterVec
}

// NewMetrics builds a Metrics collector from configuration. Returns nil,
// nil when metrics are disabled so callers can treat a nil *Metrics as a
// no-op via its nil-safe methods.
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{config: cfg, registry: registry}

	constLabels := prometheus.Labels(cfg.ConstLabels)

	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}
	}
	gopts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}
	}
	hopts := func(name, help string, buckets []float64) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
			Buckets:     buckets,
		}
	}

	m.llmCalls = prometheus.NewCounterVec(opts("llm_calls_total", "Total LLM gateway calls"), []string{"endpoint", "outcome"})
	m.llmCallDuration = prometheus.NewHistogramVec(hopts("llm_call_duration_seconds", "LLM gateway call latency", prometheus.DefBuckets), []string{"endpoint"})
	m.llmErrors = prometheus.NewCounterVec(opts("llm_errors_total", "LLM gateway errors"), []string{"endpoint", "kind"})
	m.endpointHealthy = prometheus.NewGaugeVec(gopts("llm_endpoint_healthy", "1 if endpoint is healthy, 0 otherwise"), []string{"endpoint"})

	m.cacheHits = prometheus.NewCounterVec(opts("cache_hits_total", "Cache hits"), []string{"cache"})
	m.cacheMiss = prometheus.NewCounterVec(opts("cache_misses_total", "Cache misses"), []string{"cache"})
	m.cacheSize = prometheus.NewGaugeVec(gopts("cache_size", "Current cache entry count"), []string{"cache"})
	m.cacheEvict = prometheus.NewCounterVec(opts("cache_evictions_total", "LRU evictions"), []string{"cache"})

	m.workflowIterations = prometheus.NewCounterVec(opts("workflow_iterations_total", "Workflow plan/execute/reflect iterations"), []string{"domain"})
	m.workflowOutcomes = prometheus.NewCounterVec(opts("workflow_outcomes_total", "Terminal workflow outcomes"), []string{"domain", "status"})
	m.workflowDuration = prometheus.NewHistogramVec(hopts("workflow_duration_seconds", "Task end-to-end duration", prometheus.DefBuckets), []string{"domain"})

	m.subAgentsSpawned = prometheus.NewCounterVec(opts("subagents_spawned_total", "Sub-agents spawned"), []string{"agent_type"})
	m.subAgentsActive = prometheus.NewGaugeVec(gopts("subagents_active", "Currently running sub-agents"), []string{"agent_type"})
	m.subAgentOutcomes = prometheus.NewCounterVec(opts("subagents_outcomes_total", "Sub-agent terminal outcomes"), []string{"agent_type", "status"})
	m.subAgentsDuration = prometheus.NewHistogramVec(hopts("subagent_duration_seconds", "Sub-agent run duration", prometheus.DefBuckets), []string{"agent_type"})

	m.safetyChecks = prometheus.NewCounterVec(opts("safety_checks_total", "Tool-safety checks performed"), []string{"kind"})
	m.safetyViolations = prometheus.NewCounterVec(opts("safety_violations_total", "Tool-safety violations"), []string{"kind"})

	m.checkpointWrites = prometheus.NewCounterVec(opts("checkpoint_writes_total", "Checkpoint writes"), []string{"outcome"})
	m.checkpointErrors = prometheus.NewCounterVec(opts("checkpoint_errors_total", "Checkpoint write/load errors"), []string{"op"})

	registry.MustRegister(
		m.llmCalls, m.llmCallDuration, m.llmErrors, m.endpointHealthy,
		m.cacheHits, m.cacheMiss, m.cacheSize, m.cacheEvict,
		m.workflowIterations, m.workflowOutcomes, m.workflowDuration,
		m.subAgentsSpawned, m.subAgentsActive, m.subAgentOutcomes, m.subAgentsDuration,
		m.safetyChecks, m.safetyViolations,
		m.checkpointWrites, m.checkpointErrors,
	)

	return m, nil
}

// Handler returns the Prometheus scrape handler, or a 503 stub if metrics
// are disabled (nil receiver safe).
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordLLMCall(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(endpoint, outcome).Inc()
	m.llmCallDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func (m *Metrics) RecordLLMError(endpoint, kind string) {
	if m == nil {
		return
	}
	m.llmErrors.WithLabelValues(endpoint, kind).Inc()
}

func (m *Metrics) SetEndpointHealthy(endpoint string, healthy bool) {
	if m == nil {
		return
	}
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.endpointHealthy.WithLabelValues(endpoint).Set(v)
}

func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMiss.WithLabelValues(cache).Inc()
}

func (m *Metrics) SetCacheSize(cache string, size int) {
	if m == nil {
		return
	}
	m.cacheSize.WithLabelValues(cache).Set(float64(size))
}

func (m *Metrics) RecordCacheEviction(cache string) {
	if m == nil {
		return
	}
	m.cacheEvict.WithLabelValues(cache).Inc()
}

func (m *Metrics) RecordWorkflowIteration(domain string) {
	if m == nil {
		return
	}
	m.workflowIterations.WithLabelValues(domain).Inc()
}

func (m *Metrics) RecordWorkflowOutcome(domain, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.workflowOutcomes.WithLabelValues(domain, status).Inc()
	m.workflowDuration.WithLabelValues(domain).Observe(d.Seconds())
}

func (m *Metrics) RecordSubAgentSpawned(agentType string) {
	if m == nil {
		return
	}
	m.subAgentsSpawned.WithLabelValues(agentType).Inc()
	m.subAgentsActive.WithLabelValues(agentType).Inc()
}

func (m *Metrics) RecordSubAgentFinished(agentType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.subAgentsActive.WithLabelValues(agentType).Dec()
	m.subAgentOutcomes.WithLabelValues(agentType, status).Inc()
	m.subAgentsDuration.WithLabelValues(agentType).Observe(d.Seconds())
}

func (m *Metrics) RecordSafetyCheck(kind string) {
	if m == nil {
		return
	}
	m.safetyChecks.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordSafetyViolation(kind string) {
	if m == nil {
		return
	}
	m.safetyViolations.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCheckpointWrite(outcome string) {
	if m == nil {
		return
	}
	m.checkpointWrites.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordCheckpointError(op string) {
	if m == nil {
		return
	}
	m.checkpointErrors.WithLabelValues(op).Inc()
}

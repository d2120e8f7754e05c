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

// Package llms is the LLM Gateway: a priority-ordered list of OpenAI-chat-
// completions-compatible endpoints (the lingua franca on-premise inference
// servers such as vLLM, Ollama and LocalAI all speak), with background
// health probing, per-endpoint retry with backoff, degraded-mode failover
// and an optional response cache.
package llms

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-coder/orchestrator/pkg/observability"
)

// ErrAllEndpointsUnavailable is returned once every configured endpoint
// has exhausted its retries for a single request.
var ErrAllEndpointsUnavailable = errors.New("llms: all endpoints unavailable")

// GatewayConfig configures the Gateway.
type GatewayConfig struct {
	Endpoints           []EndpointConfig `yaml:"endpoints" mapstructure:"endpoints"`
	HealthCheckInterval time.Duration    `yaml:"health_check_interval,omitempty" mapstructure:"health_check_interval"`
	FailureThreshold    int              `yaml:"failure_threshold,omitempty" mapstructure:"failure_threshold"`
	CacheTTL            time.Duration    `yaml:"cache_ttl,omitempty" mapstructure:"cache_ttl"`
}

// SetDefaults fills in zero fields with sane values.
func (c *GatewayConfig) SetDefaults() {
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 3
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Minute
	}
}

// Validate checks the config for errors.
func (c *GatewayConfig) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("llms: at least one endpoint is required")
	}
	return nil
}

// Gateway is the dual(-or-more)-endpoint LLM client the rest of the
// orchestrator depends on. Generate and Stream share identical endpoint
// selection and retry semantics; Stream never consults the cache.
type Gateway struct {
	endpoints        []*endpoint
	failureThreshold int
	cacheTTL         time.Duration
	cache            ResponseCache
	metrics          observability.Recorder
	tracer           *observability.Tracer
	log              *slog.Logger
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithCache attaches a response cache. Nil disables caching.
func WithCache(c ResponseCache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithMetrics attaches a metrics recorder. Nil is safe (no-op recording).
func WithMetrics(m observability.Recorder) Option {
	return func(g *Gateway) {
		if m != nil {
			g.metrics = m
		}
	}
}

// WithTracer attaches a tracer. Nil is safe (no-op spans).
func WithTracer(t *observability.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.log = l }
}

// NewGateway builds a Gateway from configuration. Endpoints are tried in
// the order given.
func NewGateway(cfg GatewayConfig, opts ...Option) (*Gateway, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Gateway{
		failureThreshold: cfg.FailureThreshold,
		cacheTTL:         cfg.CacheTTL,
		log:              slog.Default(),
		metrics:          (*observability.Metrics)(nil),
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, ec := range cfg.Endpoints {
		g.endpoints = append(g.endpoints, newEndpoint(ec))
	}
	return g, nil
}

// StartProbing launches one background health-check loop per endpoint. It
// blocks until ctx is cancelled or a probe goroutine returns a non-context
// error, then returns after all probes have stopped.
func (g *Gateway) StartProbing(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	grp, ctx := errgroup.WithContext(ctx)
	for _, ep := range g.endpoints {
		ep := ep
		grp.Go(func() error {
			g.probeLoop(ctx, ep, interval)
			return nil
		})
	}
	return grp.Wait()
}

func (g *Gateway) probeLoop(ctx context.Context, ep *endpoint, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.probeOnce(ctx, ep)
		}
	}
}

func (g *Gateway) probeOnce(ctx context.Context, ep *endpoint) {
	reqCtx, cancel := context.WithTimeout(ctx, ep.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ep.cfg.URL+"/models", nil)
	if err != nil {
		ep.recordFailure(g.failureThreshold)
		return
	}
	if ep.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.cfg.APIKey)
	}

	resp, err := ep.client.Do(req)
	if err != nil {
		ep.recordFailure(g.failureThreshold)
		g.setHealthMetric(ep)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		ep.recordSuccess()
	} else {
		ep.recordFailure(g.failureThreshold)
	}
	g.setHealthMetric(ep)
}

func (g *Gateway) setHealthMetric(ep *endpoint) {
	status, _, _ := ep.snapshot()
	g.metrics.SetEndpointHealthy(ep.cfg.Name, status == HealthHealthy)
}

// orderedEndpoints returns endpoints to try for one request: healthy ones
// first in configured priority order, then (only if none are healthy) all
// endpoints in priority order — degraded mode, so a transiently wrong
// health cache can never permanently wedge the gateway.
func (g *Gateway) orderedEndpoints() []*endpoint {
	var healthy []*endpoint
	for _, ep := range g.endpoints {
		if ep.isHealthy() {
			healthy = append(healthy, ep)
		}
	}
	if len(healthy) > 0 {
		return healthy
	}
	degraded := make([]*endpoint, len(g.endpoints))
	copy(degraded, g.endpoints)
	return degraded
}

// Generate performs a single non-streaming completion. The response cache
// is consulted first (unless params.NoCache); on a miss the endpoint list
// is walked in priority order until one succeeds.
func (g *Gateway) Generate(ctx context.Context, messages []Message, params GenerateParams) (string, error) {
	ctx, span := g.tracer.Start(ctx, observability.SpanLLMGenerate)
	defer span.End()

	cacheKey := ""
	if g.cache != nil && !params.NoCache {
		cacheKey = fingerprint(messages, params)
		if cached, ok := g.cache.Get(cacheKey); ok {
			g.metrics.RecordCacheHit("llm_response")
			return cached, nil
		}
		g.metrics.RecordCacheMiss("llm_response")
	}

	text, err := g.dispatch(ctx, messages, params)
	if err != nil {
		return "", err
	}

	if g.cache != nil && !params.NoCache {
		g.cache.Set(cacheKey, text, g.cacheTTL)
	}
	return text, nil
}

// Stream performs a streaming completion. The cache is never consulted.
func (g *Gateway) Stream(ctx context.Context, messages []Message, params GenerateParams) (<-chan StreamChunk, error) {
	ctx, span := g.tracer.Start(ctx, observability.SpanLLMGenerate)

	ordered := g.orderedEndpoints()
	var lastErr error
	for _, ep := range ordered {
		ch, err := g.streamFromEndpoint(ctx, ep, messages, params)
		if err == nil {
			out := make(chan StreamChunk)
			go func() {
				defer span.End()
				defer close(out)
				for c := range ch {
					out <- c
				}
			}()
			return out, nil
		}
		lastErr = err
		ep.recordFailure(g.failureThreshold)
	}
	span.End()
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllEndpointsUnavailable, lastErr)
	}
	return nil, ErrAllEndpointsUnavailable
}

// dispatch walks the ordered endpoint list, failing over to the next
// endpoint on any error. Within an endpoint, its httpclient.Client retries
// retryable HTTP statuses only; a transport-level failure (timeout,
// refused connection) fails over without a retry on the same endpoint.
func (g *Gateway) dispatch(ctx context.Context, messages []Message, params GenerateParams) (string, error) {
	start := time.Now()
	ordered := g.orderedEndpoints()

	var lastErr error
	for _, ep := range ordered {
		text, err := g.callEndpoint(ctx, ep, messages, params)
		if err == nil {
			ep.recordSuccess()
			g.metrics.RecordLLMCall(ep.cfg.Name, "success", time.Since(start))
			return text, nil
		}
		lastErr = err
		ep.recordFailure(g.failureThreshold)
		g.metrics.RecordLLMError(ep.cfg.Name, classifyError(err))
		g.metrics.RecordLLMCall(ep.cfg.Name, "failure", time.Since(start))
	}

	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrAllEndpointsUnavailable, lastErr)
	}
	return "", ErrAllEndpointsUnavailable
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "transport"
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func buildRequest(ep *endpoint, messages []Message, params GenerateParams, stream bool) chatRequest {
	model := ep.cfg.Model
	if params.Model != "" {
		model = params.Model
	}
	out := make([]chatMessage, len(messages))
	for i, m := range messages {
		out[i] = chatMessage{Role: m.Role, Content: m.Content}
	}
	return chatRequest{
		Model:       model,
		Messages:    out,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Stop:        params.Stop,
		Stream:      stream,
	}
}

func (g *Gateway) callEndpoint(ctx context.Context, ep *endpoint, messages []Message, params GenerateParams) (string, error) {
	body, err := json.Marshal(buildRequest(ep, messages, params, false))
	if err != nil {
		return "", fmt.Errorf("llms: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.cfg.URL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.cfg.APIKey)
	}

	resp, err := ep.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llms: endpoint %s: %w", ep.cfg.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("llms: read response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return "", fmt.Errorf("llms: endpoint %s: terminal status %d: %s", ep.cfg.Name, resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("llms: endpoint %s: server error %d", ep.cfg.Name, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("llms: malformed response from %s: %w", ep.cfg.Name, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("llms: endpoint %s reported error: %s", ep.cfg.Name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llms: malformed response from %s: no choices", ep.cfg.Name)
	}
	return parsed.Choices[0].Message.Content, nil
}

// streamFromEndpoint issues a streaming request and decodes newline-
// delimited "data: {...}" SSE chunks, in the common OpenAI-compatible
// format. On any mid-stream error the channel receives the chunks already
// decoded plus one terminal chunk carrying the error.
func (g *Gateway) streamFromEndpoint(ctx context.Context, ep *endpoint, messages []Message, params GenerateParams) (<-chan StreamChunk, error) {
	body, err := json.Marshal(buildRequest(ep, messages, params, true))
	if err != nil {
		return nil, fmt.Errorf("llms: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.cfg.URL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if ep.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.cfg.APIKey)
	}

	resp, err := ep.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llms: endpoint %s: %w", ep.cfg.Name, err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("llms: endpoint %s: status %d", ep.cfg.Name, resp.StatusCode)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		decodeSSE(resp.Body, out)
	}()
	return out, nil
}

func decodeSSE(body io.Reader, out chan<- StreamChunk) {
	scanner := bufio.NewScanner(body)
	const prefix = "data: "
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		payload := strings.TrimPrefix(line, prefix)
		if payload == "[DONE]" {
			out <- StreamChunk{Done: true}
			return
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content != "" {
				out <- StreamChunk{Text: c.Delta.Content}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		out <- StreamChunk{Err: err, Done: true}
		return
	}
	out <- StreamChunk{Done: true}
}

// fingerprint computes the response-cache key: SHA-256 of a canonicalized
// JSON of {messages, temperature, max_tokens, model}.
func fingerprint(messages []Message, params GenerateParams) string {
	type canonical struct {
		Messages    []Message `json:"messages"`
		Temperature *float64  `json:"temperature"`
		MaxTokens   *int      `json:"max_tokens"`
		Model       string    `json:"model"`
	}
	data, _ := json.Marshal(canonical{
		Messages:    messages,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		Model:       params.Model,
	})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

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

package llms

import (
	"net/http"
	"sync"
	"time"

	"github.com/agentic-coder/orchestrator/pkg/httpclient"
)

// endpoint is the gateway's runtime view of one configured backing LLM:
// static config plus the small, frequently-updated health record the
// probe loop and the request path both touch.
type endpoint struct {
	cfg    EndpointConfig
	client *httpclient.Client

	mu          sync.Mutex
	status      HealthStatus
	failures    int
	lastChecked time.Time
}

func newEndpoint(cfg EndpointConfig) *endpoint {
	cfg.SetDefaults()
	return &endpoint{
		cfg:    cfg,
		status: HealthUnknown,
		client: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(cfg.MaxAttempts-1),
			httpclient.WithBaseDelay(time.Duration(cfg.BackoffBase*float64(time.Second))),
		),
	}
}

// snapshot returns the endpoint's health fields without holding the lock
// past the call.
func (e *endpoint) snapshot() (status HealthStatus, failures int, lastChecked time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, e.failures, e.lastChecked
}

// recordSuccess clears the failure counter and marks the endpoint healthy.
// Called by both the probe loop and the request path.
func (e *endpoint) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = 0
	e.status = HealthHealthy
	e.lastChecked = time.Now()
}

// recordFailure increments the failure counter and marks the endpoint
// unhealthy once it crosses threshold.
func (e *endpoint) recordFailure(threshold int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures++
	e.lastChecked = time.Now()
	if e.failures >= threshold {
		e.status = HealthUnhealthy
	}
}

func (e *endpoint) isHealthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == HealthHealthy || e.status == HealthUnknown
}

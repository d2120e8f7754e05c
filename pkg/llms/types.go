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

import "time"

// Message is one turn in a conversation sent to the gateway.
type Message struct {
	Role     string         `json:"role"` // "user", "assistant", "system"
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// GenerateParams carries the recognized generation options. A nil pointer
// field means "use the endpoint's configured default".
type GenerateParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Model       string   `json:"model,omitempty"` // overrides the endpoint's configured model
	Stop        []string `json:"stop,omitempty"`

	// NoCache bypasses the response cache for this call even when a cache
	// is configured on the Gateway.
	NoCache bool `json:"-"`
}

// StreamChunk is one increment of a streamed generation. A chunk with
// Done=true is always the last value sent on the channel; Err, if set,
// means the stream ended with an error after zero or more prior chunks.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// HealthStatus is the tri-state health of an endpoint.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// EndpointConfig describes one backing LLM endpoint in priority order.
type EndpointConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	URL         string        `yaml:"url" mapstructure:"url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKey      string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Timeout     time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
	MaxAttempts int           `yaml:"max_attempts,omitempty" mapstructure:"max_attempts"`
	BackoffBase float64       `yaml:"backoff_base,omitempty" mapstructure:"backoff_base"`
}

// SetDefaults fills in zero fields with sane values.
func (c *EndpointConfig) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 2.0
	}
}

// ResponseCache is the response-cache hook the gateway consults before
// issuing a network call and populates after a successful one. The C3
// cache & optimizer component implements this; the gateway only depends
// on this narrow interface to avoid an import cycle.
type ResponseCache interface {
	Get(key string) (value string, ok bool)
	Set(key string, value string, ttl time.Duration)
}

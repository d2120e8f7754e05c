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

package cache

import (
	"encoding/json"
	"log/slog"

	"github.com/agentic-coder/orchestrator/pkg/utils"
)

// Trimmable is the narrow view of workflow.State the optimizer needs. It
// is defined here, not imported from pkg/workflow, so this package has no
// dependency on the workflow state shape; the orchestrator wires the two
// together.
type Trimmable interface {
	MessageCount() int
	TrimMessagesHead(keep int)
	ToolCallCount() int
	TrimToolCallsHead(keep int)
	SerializableContext() any
}

// OptimizerConfig bounds a state's size.
type OptimizerConfig struct {
	MaxMessages  int
	MaxToolCalls int
	MaxContextKB int

	// TokenModel, if set, additionally reports the serialized context's
	// token count (per that model's tiktoken encoding) alongside its raw
	// byte size whenever MaxContextKB is exceeded.
	TokenModel string
}

// Optimizer trims a running task's accumulated state so memory and LLM
// context size stay bounded across many iterations.
type Optimizer struct {
	cfg     OptimizerConfig
	counter *utils.TokenCounter
}

// NewOptimizer builds an Optimizer from cfg. If cfg.TokenModel is set but
// its encoding can't be resolved, token counts are silently omitted from
// the size warning rather than failing construction.
func NewOptimizer(cfg OptimizerConfig) *Optimizer {
	o := &Optimizer{cfg: cfg}
	if cfg.TokenModel != "" {
		if tc, err := utils.NewTokenCounter(cfg.TokenModel); err == nil {
			o.counter = tc
		}
	}
	return o
}

// Optimize trims s's message and tool-call history from the head (oldest
// first) down to the configured maximums, and logs — without dropping
// anything itself — when the serialized context exceeds MaxContextKB; the
// caller decides what, if anything, to do about that.
func (o *Optimizer) Optimize(s Trimmable) {
	if o.cfg.MaxMessages > 0 && s.MessageCount() > o.cfg.MaxMessages {
		s.TrimMessagesHead(o.cfg.MaxMessages)
	}
	if o.cfg.MaxToolCalls > 0 && s.ToolCallCount() > o.cfg.MaxToolCalls {
		s.TrimToolCallsHead(o.cfg.MaxToolCalls)
	}
	if o.cfg.MaxContextKB <= 0 {
		return
	}
	data, err := json.Marshal(s.SerializableContext())
	if err != nil {
		return
	}
	sizeKB := len(data) / 1024
	if sizeKB <= o.cfg.MaxContextKB {
		return
	}
	if o.counter != nil {
		slog.Warn("workflow context exceeds configured size limit",
			"size_kb", sizeKB, "limit_kb", o.cfg.MaxContextKB, "tokens", o.counter.Count(string(data)))
		return
	}
	slog.Warn("workflow context exceeds configured size limit",
		"size_kb", sizeKB, "limit_kb", o.cfg.MaxContextKB)
}

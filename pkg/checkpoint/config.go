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

package checkpoint

import (
	"fmt"
	"time"
)

// Strategy selects when the checkpoint manager snapshots task state.
type Strategy string

const (
	// StrategyEvent checkpoints on specific events only (tool calls, errors).
	StrategyEvent Strategy = "event"

	// StrategyInterval checkpoints every N workflow iterations.
	StrategyInterval Strategy = "interval"

	// StrategyHybrid combines event and interval checkpointing.
	StrategyHybrid Strategy = "hybrid"
)

// Config is the workflows.checkpoint block of the orchestrator's config
// file. It governs C7 Session & Checkpoint: whether and when a task's
// workflow state is durably snapshotted, and how a prior run recovers it.
//
//	checkpoint:
//	  enabled: true
//	  strategy: hybrid
//	  interval: 5
//	  after_tools: true
//	  before_llm: false
//	  recovery:
//	    auto_resume: true
//	    auto_resume_hitl: false
//	    timeout: 3600
type Config struct {
	// Enabled turns checkpointing on. Default: false.
	Enabled *bool `yaml:"enabled,omitempty"`

	// Strategy picks which events trigger a checkpoint. Default: "event".
	Strategy Strategy `yaml:"strategy,omitempty"`

	// Interval is the checkpoint frequency in iterations, used only when
	// Strategy is "interval" or "hybrid". Default: 0 (disabled).
	Interval int `yaml:"interval,omitempty"`

	// AfterTools checkpoints once a dispatched tool call returns.
	AfterTools *bool `yaml:"after_tools,omitempty"`

	// BeforeLLM checkpoints immediately before an LLM gateway call.
	BeforeLLM *bool `yaml:"before_llm,omitempty"`

	// Recovery configures startup recovery of unfinished checkpoints.
	Recovery *RecoveryConfig `yaml:"recovery,omitempty"`
}

// RecoveryConfig configures how an unfinished checkpoint is resumed.
type RecoveryConfig struct {
	// AutoResume resumes any recoverable checkpoint found on startup.
	AutoResume *bool `yaml:"auto_resume,omitempty"`

	// AutoResumeHITL also auto-resumes tasks left in INPUT_REQUIRED state.
	// When false, those tasks wait for an explicit resume.
	AutoResumeHITL *bool `yaml:"auto_resume_hitl,omitempty"`

	// Timeout is the maximum checkpoint age, in seconds, still considered
	// recoverable; older checkpoints resume as failed. Default: 3600.
	Timeout int `yaml:"timeout,omitempty"`
}

// SetDefaults fills in zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Enabled == nil {
		disabled := false
		c.Enabled = &disabled
	}
	if c.Strategy == "" {
		c.Strategy = StrategyEvent
	}
	if c.AfterTools == nil {
		afterTools := false
		c.AfterTools = &afterTools
	}
	if c.BeforeLLM == nil {
		beforeLLM := false
		c.BeforeLLM = &beforeLLM
	}
	if c.Recovery == nil {
		c.Recovery = &RecoveryConfig{}
	}
	c.Recovery.SetDefaults()
}

// SetDefaults fills in zero-valued fields of RecoveryConfig.
func (c *RecoveryConfig) SetDefaults() {
	if c.AutoResume == nil {
		autoResume := false
		c.AutoResume = &autoResume
	}
	if c.AutoResumeHITL == nil {
		autoResumeHITL := false
		c.AutoResumeHITL = &autoResumeHITL
	}
	if c.Timeout == 0 {
		c.Timeout = 3600
	}
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	switch c.Strategy {
	case "", StrategyEvent, StrategyInterval, StrategyHybrid:
	default:
		return fmt.Errorf("invalid checkpoint strategy %q (valid: event, interval, hybrid)", c.Strategy)
	}
	if c.Interval < 0 {
		return fmt.Errorf("checkpoint interval must be non-negative")
	}
	if c.Recovery != nil {
		if err := c.Recovery.Validate(); err != nil {
			return fmt.Errorf("recovery config: %w", err)
		}
	}
	return nil
}

// Validate checks RecoveryConfig for internal consistency.
func (c *RecoveryConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("recovery timeout must be non-negative")
	}
	return nil
}

// IsEnabled reports whether checkpointing is turned on.
func (c *Config) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// ShouldCheckpointAfterTools reports whether a tool dispatch should trigger
// a checkpoint.
func (c *Config) ShouldCheckpointAfterTools() bool {
	return c.IsEnabled() && c.AfterTools != nil && *c.AfterTools
}

// ShouldCheckpointBeforeLLM reports whether an LLM gateway call should
// trigger a checkpoint first.
func (c *Config) ShouldCheckpointBeforeLLM() bool {
	return c.IsEnabled() && c.BeforeLLM != nil && *c.BeforeLLM
}

// ShouldCheckpointInterval reports whether interval-based checkpointing is
// active.
func (c *Config) ShouldCheckpointInterval() bool {
	return c.IsEnabled() &&
		(c.Strategy == StrategyInterval || c.Strategy == StrategyHybrid) &&
		c.Interval > 0
}

// ShouldCheckpointAtIteration reports whether iteration should trigger an
// interval checkpoint.
func (c *Config) ShouldCheckpointAtIteration(iteration int) bool {
	if !c.ShouldCheckpointInterval() {
		return false
	}
	return iteration > 0 && iteration%c.Interval == 0
}

// GetRecoveryTimeout returns the configured recovery timeout, defaulting to
// one hour when unset.
func (c *Config) GetRecoveryTimeout() time.Duration {
	if c == nil || c.Recovery == nil || c.Recovery.Timeout <= 0 {
		return time.Hour
	}
	return time.Duration(c.Recovery.Timeout) * time.Second
}

// ShouldAutoResume reports whether recoverable checkpoints resume on
// startup without operator action.
func (c *Config) ShouldAutoResume() bool {
	return c.IsEnabled() && c.Recovery != nil && c.Recovery.AutoResume != nil && *c.Recovery.AutoResume
}

// ShouldAutoResumeHITL reports whether tasks left in INPUT_REQUIRED state
// also auto-resume on startup.
func (c *Config) ShouldAutoResumeHITL() bool {
	return c.IsEnabled() && c.Recovery != nil && c.Recovery.AutoResumeHITL != nil && *c.Recovery.AutoResumeHITL
}

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

// Package config is the top-level YAML configuration schema: mode, llm,
// workflows, tools, persistence, logging, workspace, performance, and
// development. Loader applies environment overrides and validation; the
// concrete sub-configs it decodes into (LLM endpoints, checkpoint
// cadence, safety policy) are owned by their respective packages so each
// stays self-describing.
package config

import (
	"fmt"
	"time"

	"github.com/agentic-coder/orchestrator/pkg/checkpoint"
	"github.com/agentic-coder/orchestrator/pkg/llms"
)

// Mode is the deployment mode. The specification names exactly one value;
// the field stays a string (not a Go const-only enum) so a config load
// error can name the offending value.
type Mode string

const ModeOnPremise Mode = "on-premise"

// Config is the root of the YAML document.
type Config struct {
	Mode        Mode               `yaml:"mode"`
	LLM         llms.GatewayConfig `yaml:"llm"`
	Workflows   WorkflowsConfig    `yaml:"workflows"`
	Tools       ToolsConfig        `yaml:"tools"`
	Persistence PersistenceConfig  `yaml:"persistence"`
	Logging     LoggingConfig      `yaml:"logging"`
	Workspace   WorkspaceConfig    `yaml:"workspace"`
	Performance PerformanceConfig  `yaml:"performance"`
	Development DevelopmentConfig  `yaml:"development"`
}

// WorkflowsConfig configures the shared plan/execute/reflect engine.
type WorkflowsConfig struct {
	MaxIterations  int                     `yaml:"max_iterations"`
	TimeoutSeconds int                     `yaml:"timeout_seconds"`
	RecursionLimit int                     `yaml:"recursion_limit,omitempty"`
	MaxParallel    int                     `yaml:"max_parallel,omitempty"`
	Checkpoint     checkpoint.Config       `yaml:"checkpoint,omitempty"`
	Domains        map[string]DomainConfig `yaml:"domains,omitempty"`
}

// DomainConfig overrides engine defaults for one task domain.
type DomainConfig struct {
	PlanningPrompt string   `yaml:"planning_prompt,omitempty"`
	ToolAllowlist  []string `yaml:"tool_allowlist,omitempty"`
	Complexity     string   `yaml:"complexity,omitempty"`
	MaxIterations  int      `yaml:"max_iterations,omitempty"`
}

// ToolsConfig configures the tool-safety policy (C2).
type ToolsConfig struct {
	Enabled          *bool    `yaml:"enabled,omitempty"`
	CommandAllowlist []string `yaml:"command_allowlist,omitempty"`
	CommandDenylist  []string `yaml:"command_denylist,omitempty"`
	ProtectedFiles   []string `yaml:"protected_files,omitempty"`
	ProtectedPaths   []string `yaml:"protected_paths,omitempty"`
	ProtectedGlobs   []string `yaml:"protected_patterns,omitempty"`
}

// PersistenceConfig selects and configures the checkpoint/session backend.
type PersistenceConfig struct {
	Backend  string          `yaml:"backend"` // "sqlite" or "postgresql"
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres *PostgresConfig `yaml:"postgresql,omitempty"`
}

// SQLiteConfig configures the embedded-file relational backend.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig configures the multi-process relational backend.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode,omitempty"`
	MaxConns int    `yaml:"max_conns,omitempty"`
	MaxIdle  int    `yaml:"max_idle,omitempty"`
}

// DatabaseConfig is DBPool's narrow view of whichever backend Persistence
// selects; dbpool.go depends only on this, not on the YAML shape above.
type DatabaseConfig struct {
	Driver   string // "sqlite3" or "postgres"
	Path     string // sqlite3 only
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// DriverName implements the driver lookup dbpool.go uses with sql.Open.
func (c *DatabaseConfig) DriverName() string {
	if c.Driver == "" {
		return "sqlite3"
	}
	return c.Driver
}

// DSN implements the connection string dbpool.go uses with sql.Open.
func (c *DatabaseConfig) DSN() string {
	if c.DriverName() == "postgres" {
		sslmode := c.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, sslmode)
	}
	return c.Path
}

// DatabaseConfig resolves Persistence's configured backend into the shape
// DBPool needs, returning an error if Backend names a backend with no
// matching sub-config.
func (p *PersistenceConfig) DatabaseConfig() (*DatabaseConfig, error) {
	switch p.Backend {
	case "sqlite":
		if p.SQLite == nil {
			return nil, fmt.Errorf("config: persistence.backend is sqlite but persistence.sqlite is unset")
		}
		return &DatabaseConfig{Driver: "sqlite3", Path: p.SQLite.Path}, nil
	case "postgresql":
		if p.Postgres == nil {
			return nil, fmt.Errorf("config: persistence.backend is postgresql but persistence.postgresql is unset")
		}
		return &DatabaseConfig{
			Driver:   "postgres",
			Host:     p.Postgres.Host,
			Port:     p.Postgres.Port,
			User:     p.Postgres.User,
			Password: p.Postgres.Password,
			DBName:   p.Postgres.DBName,
			SSLMode:  p.Postgres.SSLMode,
			MaxConns: p.Postgres.MaxConns,
			MaxIdle:  p.Postgres.MaxIdle,
		}, nil
	default:
		return nil, fmt.Errorf("config: unknown persistence.backend %q", p.Backend)
	}
}

// LoggingConfig configures pkg/logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format,omitempty"`
	File   string `yaml:"file,omitempty"`
}

// WorkspaceConfig configures the per-task filesystem workspace contract.
type WorkspaceConfig struct {
	Root                string `yaml:"root"`
	IsolatePerSession   bool   `yaml:"isolate_per_session,omitempty"`
	CleanupOnCompletion bool   `yaml:"cleanup_on_completion,omitempty"`
}

// PerformanceConfig configures the cache & optimizer component (C3).
type PerformanceConfig struct {
	CacheSize    int           `yaml:"cache_size,omitempty"`
	CacheTTL     time.Duration `yaml:"cache_ttl,omitempty"`
	MaxMessages  int           `yaml:"max_messages,omitempty"`
	MaxToolCalls int           `yaml:"max_tool_calls,omitempty"`
	MaxContextKB int           `yaml:"max_context_kb,omitempty"`
}

// DevelopmentConfig holds settings meant for local iteration only, never
// production: extra debug logging and the stdout tracing exporter.
type DevelopmentConfig struct {
	EnableDebugLogs bool   `yaml:"enable_debug_logs,omitempty"`
	TracingExporter string `yaml:"tracing_exporter,omitempty"` // "otlp", "stdout" or "none"
	HotReload       bool   `yaml:"hot_reload,omitempty"`
}

// SetDefaults fills in zero fields across the whole tree.
func (c *Config) SetDefaults() {
	if c.Workflows.MaxIterations == 0 {
		c.Workflows.MaxIterations = 50
	}
	if c.Workflows.TimeoutSeconds == 0 {
		c.Workflows.TimeoutSeconds = 300
	}
	if c.Workflows.RecursionLimit == 0 {
		c.Workflows.RecursionLimit = 200
	}
	if c.Workflows.MaxParallel == 0 {
		c.Workflows.MaxParallel = 4
	}
	c.Workflows.Checkpoint.SetDefaults()
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
	if c.Performance.CacheSize == 0 {
		c.Performance.CacheSize = 1000
	}
	if c.Performance.CacheTTL == 0 {
		c.Performance.CacheTTL = 5 * time.Minute
	}
	if c.Performance.MaxMessages == 0 {
		c.Performance.MaxMessages = 200
	}
	if c.Performance.MaxToolCalls == 0 {
		c.Performance.MaxToolCalls = 200
	}
	if c.Performance.MaxContextKB == 0 {
		c.Performance.MaxContextKB = 256
	}
	if c.Development.TracingExporter == "" {
		c.Development.TracingExporter = "none"
	}
}

var validLogLevels = map[string]bool{
	"DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true,
}

// Validate applies §6's validation rules. It assumes SetDefaults has
// already run.
func (c *Config) Validate() error {
	if c.Mode != ModeOnPremise {
		return fmt.Errorf("config: mode must be %q, got %q", ModeOnPremise, c.Mode)
	}
	if len(c.LLM.Endpoints) == 0 {
		return fmt.Errorf("config: llm.endpoints must be non-empty")
	}
	if c.Workflows.MaxIterations < 1 {
		return fmt.Errorf("config: workflows.max_iterations must be >= 1")
	}
	if c.Workflows.TimeoutSeconds < 60 {
		return fmt.Errorf("config: workflows.timeout_seconds must be >= 60")
	}
	if c.Persistence.Backend != "sqlite" && c.Persistence.Backend != "postgresql" {
		return fmt.Errorf("config: persistence.backend must be sqlite or postgresql, got %q", c.Persistence.Backend)
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("config: logging.level must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL, got %q", c.Logging.Level)
	}
	return nil
}

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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-coder/orchestrator/pkg/llms"
)

const minimalYAML = `
mode: on-premise
llm:
  endpoints:
    - name: primary
      url: http://localhost:11434
      model: llama3
persistence:
  backend: sqlite
  sqlite:
    path: /tmp/orchestrator.db
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_MinimalConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeOnPremise, cfg.Mode)
	assert.Equal(t, 50, cfg.Workflows.MaxIterations)
	assert.Equal(t, 300, cfg.Workflows.TimeoutSeconds)
	assert.Equal(t, 200, cfg.Workflows.RecursionLimit)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "simple", cfg.Logging.Format)
	assert.Equal(t, 1000, cfg.Performance.CacheSize)
	assert.Equal(t, "none", cfg.Development.TracingExporter)
	require.Len(t, cfg.LLM.Endpoints, 1)
	assert.Equal(t, "primary", cfg.LLM.Endpoints[0].Name)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_UnknownTopLevelKeyRejected(t *testing.T) {
	path := writeConfig(t, minimalYAML+"\nbogus_section:\n  foo: bar\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown top-level key")
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	path := writeConfig(t, "mode: [this is not\n  a valid: yaml")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailureSurfacesFromLoad(t *testing.T) {
	// No persistence.backend set, so Validate rejects the otherwise
	// well-formed document.
	yaml := `
mode: on-premise
llm:
  endpoints:
    - name: primary
      url: http://localhost:11434
      model: llama3
`
	path := writeConfig(t, yaml)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence.backend")
}

func TestLoad_ExpandsBracedEnvVar(t *testing.T) {
	t.Setenv("TEST_LLM_URL", "http://llm.internal:9000")
	yaml := `
mode: on-premise
llm:
  endpoints:
    - name: primary
      url: ${TEST_LLM_URL}
      model: llama3
persistence:
  backend: sqlite
  sqlite:
    path: /tmp/orchestrator.db
`
	path := writeConfig(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://llm.internal:9000", cfg.LLM.Endpoints[0].URL)
}

func TestLoad_ExpandsEnvVarWithDefault(t *testing.T) {
	yaml := `
mode: on-premise
llm:
  endpoints:
    - name: primary
      url: ${TEST_UNSET_LLM_URL:-http://fallback:8080}
      model: llama3
persistence:
  backend: sqlite
  sqlite:
    path: /tmp/orchestrator.db
`
	path := writeConfig(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://fallback:8080", cfg.LLM.Endpoints[0].URL)
}

func TestLoad_EnvOverrideByDottedPath(t *testing.T) {
	t.Setenv("LOGGING_LEVEL", "DEBUG")
	path := writeConfig(t, minimalYAML+"\nlogging:\n  level: INFO\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}

func TestPersistenceConfig_DatabaseConfig(t *testing.T) {
	p := PersistenceConfig{Backend: "sqlite", SQLite: &SQLiteConfig{Path: "/tmp/x.db"}}
	dc, err := p.DatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", dc.DriverName())
	assert.Equal(t, "/tmp/x.db", dc.DSN())

	p = PersistenceConfig{Backend: "postgresql", Postgres: &PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "orchestrator"}}
	dc, err = p.DatabaseConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres", dc.DriverName())
	assert.Contains(t, dc.DSN(), "sslmode=disable")

	p = PersistenceConfig{Backend: "postgresql"}
	_, err = p.DatabaseConfig()
	assert.Error(t, err)

	p = PersistenceConfig{Backend: "mongodb"}
	_, err = p.DatabaseConfig()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		c := &Config{
			Mode:        ModeOnPremise,
			Persistence: PersistenceConfig{Backend: "sqlite"},
		}
		c.LLM.Endpoints = []llms.EndpointConfig{{Name: "primary", URL: "http://localhost", Model: "llama3"}}
		c.SetDefaults()
		return c
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("wrong mode", func(t *testing.T) {
		c := base()
		c.Mode = "cloud"
		assert.Error(t, c.Validate())
	})

	t.Run("no endpoints", func(t *testing.T) {
		c := base()
		c.LLM.Endpoints = nil
		assert.Error(t, c.Validate())
	})

	t.Run("bad persistence backend", func(t *testing.T) {
		c := base()
		c.Persistence.Backend = "mongodb"
		assert.Error(t, c.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		c := base()
		c.Logging.Level = "VERBOSE"
		assert.Error(t, c.Validate())
	})

	t.Run("timeout too low", func(t *testing.T) {
		c := base()
		c.Workflows.TimeoutSeconds = 1
		assert.Error(t, c.Validate())
	})

	t.Run("max iterations too low", func(t *testing.T) {
		c := base()
		c.Workflows.MaxIterations = 0
		assert.Error(t, c.Validate())
	})
}

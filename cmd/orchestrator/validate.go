// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/agentic-coder/orchestrator/pkg/config"
)

// ValidateCmd loads and validates a configuration file without wiring or
// running anything, so a bad config is caught before any task starts.
type ValidateCmd struct {
	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration (defaults applied, env vars resolved)."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return withExitCode(fmt.Errorf("config invalid: %w", err), exitStartup)
	}

	fmt.Printf("config OK: %s\n", cli.Config)
	if c.PrintConfig {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return withExitCode(fmt.Errorf("marshal config: %w", err), exitStartup)
		}
		fmt.Println(string(data))
	}
	return nil
}

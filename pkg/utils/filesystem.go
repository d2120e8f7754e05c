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

// Package utils provides small cross-cutting helpers shared by multiple
// packages: workspace-local file layout and LLM token accounting.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureStateDir ensures the .orchestrator directory exists at the given
// base path. If basePath is empty or ".", it creates ./.orchestrator in
// the current directory; otherwise {basePath}/.orchestrator.
//
// Used by the embedded-file checkpoint backend, which keeps its snapshots
// under {workspace}/.orchestrator/checkpoints/.
//
// Returns the full path to the directory and any error.
func EnsureStateDir(basePath string) (string, error) {
	var dir string
	if basePath == "" || basePath == "." {
		dir = ".orchestrator"
	} else {
		dir = filepath.Join(basePath, ".orchestrator")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory at '%s': %w", dir, err)
	}

	return dir, nil
}

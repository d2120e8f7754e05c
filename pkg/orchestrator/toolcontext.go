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

package orchestrator

// toolContext is the concrete tool.Context the dispatcher builds for each
// invocation, carrying the identifiers tools need to scope themselves.
type toolContext struct {
	taskID         string
	threadID       string
	workspace      string
	functionCallID string
}

func (c toolContext) TaskID() string         { return c.taskID }
func (c toolContext) ThreadID() string       { return c.threadID }
func (c toolContext) Workspace() string      { return c.workspace }
func (c toolContext) FunctionCallID() string { return c.functionCallID }

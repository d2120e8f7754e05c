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

// Package safety is the tool-safety policy engine: every command and file
// access a workflow step wants to perform is checked here first. A
// rejection is a value (Violation), never an exception — callers fold it
// into a failed ToolCall and keep the task running.
package safety

import "fmt"

// Kind names why a check was rejected.
type Kind string

const (
	KindDisallowedCommand Kind = "disallowed_command"
	KindDeniedCommand     Kind = "denied_command"
	KindProtectedFile     Kind = "protected_file"
	KindProtectedPattern  Kind = "protected_pattern"
	KindSuspiciousOp      Kind = "suspicious_operation"
)

// Violation is a rejected command or file access.
type Violation struct {
	Kind        Kind   `json:"kind"`
	Message     string `json:"message"`
	Remediation string `json:"remediation,omitempty"`
}

func (v *Violation) Error() string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", v.Kind, v.Message)
}

func violation(kind Kind, remediation, format string, args ...any) *Violation {
	return &Violation{Kind: kind, Message: fmt.Sprintf(format, args...), Remediation: remediation}
}

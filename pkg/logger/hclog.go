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

package logger

import (
	"io"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// NewHCLogAdapter builds an hclog.Logger leveled and routed the same way
// this package's own slog logger is. Tool boundaries that speak hclog
// natively — the teacher's go-plugin-based external-process tool loader
// is the grounding case — need a logger of this shape rather than an
// *slog.Logger; this keeps that logger writing to the same sink and
// honoring the same --log-level instead of falling back to hclog's own
// default (stderr, unleveled).
func NewHCLogAdapter(name string, level slog.Level, output io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  hclogLevel(level),
		Output: output,
	})
}

// hclogLevel maps this package's slog.Level scale onto hclog's.
func hclogLevel(level slog.Level) hclog.Level {
	switch {
	case level <= slog.LevelDebug:
		return hclog.Debug
	case level <= slog.LevelInfo:
		return hclog.Info
	case level <= slog.LevelWarn:
		return hclog.Warn
	default:
		return hclog.Error
	}
}

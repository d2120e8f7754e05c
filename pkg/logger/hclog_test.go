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
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHCLogAdapter_RoutesToGivenOutput(t *testing.T) {
	var buf bytes.Buffer
	hl := NewHCLogAdapter("test-plugin", slog.LevelInfo, &buf)

	hl.Info("plugin started", "pid", 1234)

	out := buf.String()
	assert.True(t, strings.Contains(out, "plugin started"), "expected log line in output, got %q", out)
	assert.True(t, strings.Contains(out, "test-plugin"), "expected logger name in output, got %q", out)
}

func TestNewHCLogAdapter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	hl := NewHCLogAdapter("test-plugin", slog.LevelWarn, &buf)

	hl.Debug("should not appear")
	hl.Warn("should appear")

	out := buf.String()
	assert.False(t, strings.Contains(out, "should not appear"))
	assert.True(t, strings.Contains(out, "should appear"))
}

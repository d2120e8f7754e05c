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
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 1)
	require.NoError(t, w.Start(ctx, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	}))

	updated := minimalYAML + "\nlogging:\n  level: DEBUG\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "DEBUG", cfg.Logging.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never observed the file change")
	}
}

func TestWatcher_InvalidReloadKeepsGoing(t *testing.T) {
	path := writeConfig(t, minimalYAML)

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 1)
	require.NoError(t, w.Start(ctx, func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	}))

	// An invalid edit (unknown top-level key) must not crash the watcher
	// loop or deliver a broken Config; a later valid edit still reloads.
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"\nbogus: true\n"), 0644))
	time.Sleep(300 * time.Millisecond)

	select {
	case <-changed:
		t.Fatal("an invalid reload must not invoke onChange")
	default:
	}

	require.NoError(t, os.WriteFile(path, []byte(minimalYAML+"\nlogging:\n  level: WARNING\n"), 0644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "WARNING", cfg.Logging.Level)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never recovered after the invalid edit")
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	path := writeConfig(t, minimalYAML)
	w, err := NewWatcher(path)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		assert.NoError(t, w.Close())
		assert.NoError(t, w.Close())
	})
}

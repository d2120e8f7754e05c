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
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a config file on disk and re-runs Load whenever it
// changes, handing the new, already-validated Config to onChange. A
// reload that fails validation is logged and skipped — the previously
// loaded Config stays in effect, mirroring spec.md §7's "config errors
// are fatal at startup only" (a bad edit mid-run must not crash a
// running task).
type Watcher struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewWatcher creates a Watcher for the config file at path. Call Start to
// begin watching.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve watch path: %w", err)
	}
	return &Watcher{path: abs}, nil
}

// Start begins watching the file's directory (fsnotify does not reliably
// watch a single file across editors' atomic-rename-on-save behavior) and
// invokes onChange with each successfully reloaded Config. Start returns
// once the watch is established; reload events are delivered on a
// background goroutine until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context, onChange func(*Config)) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("config: watcher is closed")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return fmt.Errorf("config: create file watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		w.mu.Unlock()
		return fmt.Errorf("config: watch directory %s: %w", dir, err)
	}
	w.watcher = fw
	w.mu.Unlock()

	go w.loop(ctx, fw, onChange)
	slog.Info("config: watching for changes", "path", w.path)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher, onChange func(*Config)) {
	defer fw.Close()

	name := filepath.Base(w.path)
	var debounce *time.Timer
	const delay = 150 * time.Millisecond

	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			slog.Error("config: reload failed, keeping previous config", "path", w.path, "error", err)
			return
		}
		slog.Info("config: reloaded", "path", w.path)
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(delay, reload)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			slog.Error("config: watcher error", "error", err)
		}
	}
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

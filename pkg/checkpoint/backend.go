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

// Package checkpoint persists workflow.State snapshots keyed by thread id
// and rehydrates them on resume. The abstract key-value contract (Backend)
// has two built-in implementations: an embedded-file backend for
// single-process deployments and a relational backend for multi-process
// ones; the Manager that wraps either treats them identically.
package checkpoint

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Backend when no snapshot exists for a
// thread id.
var ErrNotFound = errors.New("checkpoint: not found")

// Backend is the abstract key-value checkpoint store. Save must serialize
// concurrent calls for the same threadID so that a failed write
// never corrupts the previously committed snapshot (write-new-then-swap).
type Backend interface {
	// Save persists data as the latest snapshot for threadID, replacing
	// any previous one atomically.
	Save(ctx context.Context, threadID string, data []byte) error

	// Load returns the latest snapshot for threadID, or ErrNotFound.
	Load(ctx context.Context, threadID string) ([]byte, error)

	// Exists reports whether a snapshot is present for threadID.
	Exists(ctx context.Context, threadID string) (bool, error)

	// Delete removes threadID's snapshot. Deleting a missing thread id is
	// not an error.
	Delete(ctx context.Context, threadID string) error

	// ListThreads returns every thread id with a persisted snapshot, for
	// startup recovery sweeps.
	ListThreads(ctx context.Context) ([]string, error)
}

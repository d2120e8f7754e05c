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

// Package session is the durable identity of a task across restarts: a
// session owns a thread id (the checkpoint backend's key), tracks how many
// checkpoints have been written for it, and knows how to validate a
// rehydrated workflow state before handing it back to a caller resuming
// the thread.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status mirrors a task's lifecycle; a session is terminal exactly when
// its underlying task is terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound is returned when a session id has no matching record.
	ErrNotFound = errors.New("session: not found")
	// ErrInvalidState is returned by LoadState when a loaded snapshot fails
	// ValidateState.
	ErrInvalidState = errors.New("session: invalid workflow state")
)

// State is the minimal view of a workflow state the session layer needs
// in order to validate a rehydrated snapshot against the structural
// invariants a resumed thread must satisfy. Concrete workflow state types
// implement this without session needing to import them.
type State interface {
	Iteration() int
	MaxIterations() int
	TaskStatus() string
	ShouldContinue() bool
	HasEndTime() bool
}

// Store is the checkpoint backend's read surface, as seen by the session
// layer. The engine's checkpoint manager implements this; session itself
// never writes snapshot bytes, it only tracks that a checkpoint happened.
type Store interface {
	// Load returns the most recent snapshot for a thread id, or ok=false
	// if none exists.
	Load(ctx context.Context, threadID string) (state State, ok bool, err error)
	// Exists reports whether any snapshot has been written for a thread id.
	Exists(ctx context.Context, threadID string) (bool, error)
}

// Session is the durable identity of one task across process restarts.
type Session struct {
	ID          string         `json:"id"`
	ThreadID    string         `json:"thread_id"`
	TaskType    string         `json:"task_type"`
	Workspace   string         `json:"workspace"`
	Status      Status         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Checkpoints int            `json:"checkpoints"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Clone returns a deep-enough copy safe for a caller to mutate without
// affecting the registry's copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Metadata != nil {
		c.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Manager tracks session records in memory and delegates workflow state
// reads to a Store (normally the checkpoint backend). It is the
// implementation of the C7 session contract: create_session, get_session,
// record_checkpoint, complete_session, load_state, has_checkpoint,
// validate_state.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byThread map[string]string // thread id -> session id
	store    Store
}

// NewManager constructs a session manager. store may be nil; in that case
// LoadState/HasCheckpoint report "no state" rather than erroring, which is
// convenient for callers that have not wired persistence yet.
func NewManager(store Store) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byThread: make(map[string]string),
		store:    store,
	}
}

// CreateSession generates a fresh session id and thread id and registers
// the session as active.
func (m *Manager) CreateSession(description, taskType, workspace string, metadata map[string]any) *Session {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		ThreadID:  uuid.NewString(),
		TaskType:  taskType,
		Workspace: workspace,
		Status:    StatusPending,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	s.Metadata["description"] = description

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.byThread[s.ThreadID] = s.ID
	return s.Clone()
}

// GetSession retrieves a session by id, or nil if it does not exist.
func (m *Manager) GetSession(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	return s.Clone()
}

// GetByThread retrieves a session by thread id, or nil if it does not exist.
func (m *Manager) GetByThread(threadID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byThread[threadID]
	if !ok {
		return nil
	}
	return m.sessions[id].Clone()
}

// RecordCheckpoint increments the checkpoint counter for a session. The
// snapshot itself is written by the checkpoint backend, keyed by thread
// id; this call only updates the session's bookkeeping.
func (m *Manager) RecordCheckpoint(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.Checkpoints++
	s.UpdatedAt = time.Now()
	return nil
}

// CompleteSession marks a session terminal and drops it from the active
// set; GetSession still resolves it for historical lookup.
func (m *Manager) CompleteSession(id string, status Status) error {
	if !status.Terminal() {
		return fmt.Errorf("session: %q is not a terminal status", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	delete(m.byThread, s.ThreadID)
	return nil
}

// LoadState reads the most recent snapshot for a thread id via the
// configured Store, validating it before returning.
func (m *Manager) LoadState(ctx context.Context, threadID string) (State, error) {
	if m.store == nil {
		return nil, nil
	}
	state, ok, err := m.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("session: load state for thread %s: %w", threadID, err)
	}
	if !ok {
		return nil, nil
	}
	if !ValidateState(state) {
		return nil, fmt.Errorf("%w: thread %s", ErrInvalidState, threadID)
	}
	return state, nil
}

// HasCheckpoint reports whether any snapshot has been written for a
// thread id.
func (m *Manager) HasCheckpoint(ctx context.Context, threadID string) (bool, error) {
	if m.store == nil {
		return false, nil
	}
	return m.store.Exists(ctx, threadID)
}

// ValidateState performs the structural check a resumed snapshot must
// pass before the engine rehydrates a workflow from it: the iteration
// bound must hold, and a terminal task status must have already stopped
// the workflow (should_continue=false, end_time set).
func ValidateState(s State) bool {
	if s == nil {
		return false
	}
	if s.Iteration() < 0 || s.Iteration() > s.MaxIterations() {
		return false
	}
	switch s.TaskStatus() {
	case "completed", "failed", "cancelled":
		return !s.ShouldContinue() && s.HasEndTime()
	default:
		return true
	}
}

// ActiveSessions returns a snapshot of all non-terminal sessions.
func (m *Manager) ActiveSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.byThread))
	for _, id := range m.byThread {
		out = append(out, m.sessions[id].Clone())
	}
	return out
}

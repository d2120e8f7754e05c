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

package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// SQLBackend is the relational, multi-process Backend: one row per thread
// id in a checkpoints table, upserted inside a transaction so a failed
// write can never leave a half-written snapshot in place. The caller owns
// the *sql.DB (typically built by a config.DBPool), so SQLBackend works
// unmodified against the postgres and sqlite3 drivers.
type SQLBackend struct {
	db      *sql.DB
	dialect string // "postgres" or "sqlite3"

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSQLBackend wraps db and ensures the checkpoints table exists. dialect
// selects the upsert syntax ("postgres" or "sqlite3"); any other value
// falls back to the SQLite form (ON CONFLICT ... excluded), which MySQL
// does not accept.
func NewSQLBackend(ctx context.Context, db *sql.DB, dialect string) (*SQLBackend, error) {
	b := &SQLBackend{db: db, dialect: dialect, locks: map[string]*sync.Mutex{}}
	if err := b.migrate(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *SQLBackend) migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id  VARCHAR(255) PRIMARY KEY,
			snapshot   TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	return err
}

func (b *SQLBackend) lockFor(threadID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[threadID] = l
	}
	return l
}

// Save implements Backend.
func (b *SQLBackend) Save(ctx context.Context, threadID string, data []byte) error {
	lock := b.lockFor(threadID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := b.upsertQuery()
	if _, err := tx.ExecContext(ctx, query, threadID, string(data)); err != nil {
		return fmt.Errorf("checkpoint: save thread %s: %w", threadID, err)
	}
	return tx.Commit()
}

func (b *SQLBackend) upsertQuery() string {
	switch b.dialect {
	case "postgres":
		return `
			INSERT INTO checkpoints (thread_id, snapshot, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (thread_id) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = now()`
	default: // sqlite3
		return `
			INSERT INTO checkpoints (thread_id, snapshot, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT (thread_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = CURRENT_TIMESTAMP`
	}
}

func (b *SQLBackend) placeholder(n int) string {
	if b.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Load implements Backend.
func (b *SQLBackend) Load(ctx context.Context, threadID string) ([]byte, error) {
	row := b.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT snapshot FROM checkpoints WHERE thread_id = %s", b.placeholder(1)), threadID)
	var snapshot string
	if err := row.Scan(&snapshot); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return []byte(snapshot), nil
}

// Exists implements Backend.
func (b *SQLBackend) Exists(ctx context.Context, threadID string) (bool, error) {
	row := b.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM checkpoints WHERE thread_id = %s", b.placeholder(1)), threadID)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete implements Backend.
func (b *SQLBackend) Delete(ctx context.Context, threadID string) error {
	_, err := b.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM checkpoints WHERE thread_id = %s", b.placeholder(1)), threadID)
	return err
}

// ListThreads implements Backend.
func (b *SQLBackend) ListThreads(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT thread_id FROM checkpoints ORDER BY thread_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

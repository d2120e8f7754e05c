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

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_StampsTaskAndThreadID(t *testing.T) {
	em := newEmitter("task-1", "thread-1", 4)
	em.send(Update{Type: TypeStatus})
	u := <-em.ch
	assert.Equal(t, "task-1", u.TaskID)
	assert.Equal(t, "thread-1", u.ThreadID)
	assert.False(t, u.Timestamp.IsZero())
}

func TestEmitter_NothingFollowsATerminalUpdate(t *testing.T) {
	em := newEmitter("task-1", "thread-1", 4)
	em.send(Update{Type: TypeProgress})
	em.send(Update{Type: TypeCompleted, Result: "done"})
	em.send(Update{Type: TypeProgress}) // must be dropped

	close(em.ch)
	var got []Update
	for u := range em.ch {
		got = append(got, u)
	}
	require.Len(t, got, 2)
	assert.Equal(t, TypeProgress, got[0].Type)
	assert.Equal(t, TypeCompleted, got[1].Type)
}

func TestEmitter_ErrorIsAlsoTerminal(t *testing.T) {
	em := newEmitter("task-1", "thread-1", 4)
	em.send(Update{Type: TypeError, Error: "boom"})
	em.send(Update{Type: TypeStatus})
	em.close()

	var got []Update
	for u := range em.ch {
		got = append(got, u)
	}
	require.Len(t, got, 1)
	assert.Equal(t, TypeError, got[0].Type)
}

func TestEmitter_CloseIsIdempotent(t *testing.T) {
	em := newEmitter("task-1", "thread-1", 4)
	assert.NotPanics(t, func() {
		em.close()
		em.close()
	})
}

// Per spec.md §5, a slow consumer must not lose Updates: send blocks
// against a full buffer rather than dropping the event.
func TestEmitter_BlocksRatherThanDropsWhenFull(t *testing.T) {
	em := newEmitter("task-1", "thread-1", 1)
	em.send(Update{Type: TypeProgress}) // fills the capacity-1 buffer

	sent := make(chan struct{})
	go func() {
		em.send(Update{Type: TypeProgress, Thinking: "second"})
		close(sent)
	}()

	select {
	case <-sent:
		t.Fatal("send returned before the consumer drained the buffer")
	case <-time.After(20 * time.Millisecond):
	}

	<-em.ch // drain the first Update, unblocking the second send

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("blocked send never unblocked after the buffer drained")
	}
}

// close() must release any send still blocked on a full buffer instead of
// leaving that goroutine stuck forever once nothing will ever read em.ch.
func TestEmitter_CloseReleasesBlockedSend(t *testing.T) {
	em := newEmitter("task-1", "thread-1", 1)
	em.send(Update{Type: TypeProgress}) // fills the buffer

	sent := make(chan struct{})
	go func() {
		em.send(Update{Type: TypeProgress})
		close(sent)
	}()

	time.Sleep(20 * time.Millisecond)
	em.close()

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("close did not release the blocked send")
	}
}

func TestEmitterContext_RoundTrips(t *testing.T) {
	em := newEmitter("task-1", "thread-1", 4)
	ctx := withEmitter(context.Background(), em)

	got, ok := emitterFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, em, got)

	_, ok = emitterFromContext(context.Background())
	assert.False(t, ok)
}

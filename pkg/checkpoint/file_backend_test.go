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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_SaveLoadRoundTrip(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, backend.Save(context.Background(), "thread-1", []byte("snapshot-v1")))

	data, err := backend.Load(context.Background(), "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "snapshot-v1", string(data))
}

func TestFileBackend_LoadMissingReturnsErrNotFound(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	_, err = backend.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackend_SaveOverwritesPreviousSnapshot(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, backend.Save(context.Background(), "thread-1", []byte("v1")))
	require.NoError(t, backend.Save(context.Background(), "thread-1", []byte("v2")))

	data, err := backend.Load(context.Background(), "thread-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestFileBackend_ExistsAndDelete(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	exists, err := backend.Exists(context.Background(), "thread-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, backend.Save(context.Background(), "thread-1", []byte("data")))
	exists, err = backend.Exists(context.Background(), "thread-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, backend.Delete(context.Background(), "thread-1"))
	exists, err = backend.Exists(context.Background(), "thread-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFileBackend_DeleteMissingIsNotAnError(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, backend.Delete(context.Background(), "missing"))
}

func TestFileBackend_ListThreadsSortedAcrossMultipleThreads(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, backend.Save(context.Background(), "zeta", []byte("z")))
	require.NoError(t, backend.Save(context.Background(), "alpha", []byte("a")))
	require.NoError(t, backend.Save(context.Background(), "mid", []byte("m")))

	ids, err := backend.ListThreads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}

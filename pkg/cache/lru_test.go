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

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_SetGet(t *testing.T) {
	c := NewLRUCache(2)
	c.Set("a", "1", time.Minute)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache(2)
	c.Set("a", "1", time.Minute)
	c.Set("b", "2", time.Minute)
	_, _ = c.Get("a") // touch a, making b the LRU entry
	c.Set("c", "3", time.Minute)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted as least recently used")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCache_ExpiredEntryIsMiss(t *testing.T) {
	c := NewLRUCache(2)
	c.Set("a", "1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestLRUCache_SweepsExpiredBeforeEvicting(t *testing.T) {
	c := NewLRUCache(2)
	c.Set("b", "2", time.Minute)
	c.Set("a", "1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	c.Set("c", "3", time.Minute)

	// a expired and should have been swept rather than forcing b, the
	// least recently used entry, out.
	_, ok := c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCache_Stats(t *testing.T) {
	c := NewLRUCache(10)
	c.Set("a", "1", time.Minute)
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 10, stats.Capacity)
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 1, stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.0001)
}

func TestPerfMonitor_TimingAndCounters(t *testing.T) {
	m := NewPerfMonitor()
	m.Record("op", 10*time.Millisecond)
	m.Record("op", 30*time.Millisecond)
	m.Count("requests", 3)

	stats, ok := m.Timing("op")
	require.True(t, ok)
	assert.EqualValues(t, 2, stats.Count)
	assert.Equal(t, 10*time.Millisecond, stats.Min)
	assert.Equal(t, 30*time.Millisecond, stats.Max)
	assert.Equal(t, 20*time.Millisecond, stats.Mean)
	assert.EqualValues(t, 3, m.Counter("requests"))
}

func TestPerfMonitor_ScopedAcquisition(t *testing.T) {
	m := NewPerfMonitor()
	acq := m.Start("scoped")
	time.Sleep(time.Millisecond)
	acq.Release()

	stats, ok := m.Timing("scoped")
	require.True(t, ok)
	assert.EqualValues(t, 1, stats.Count)
	assert.GreaterOrEqual(t, stats.Total, time.Millisecond)
}

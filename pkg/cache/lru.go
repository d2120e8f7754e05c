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

// Package cache holds the LRU+TTL response cache, the state-size
// optimizer, and the performance monitor: the components that keep the
// gateway's round trips and a long-running task's in-memory state bounded.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/agentic-coder/orchestrator/pkg/llms"
)

type entry struct {
	value     string
	createdAt time.Time
	ttl       time.Duration
	hits      int64
}

func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// LRUCache is a fixed-capacity, insertion-ordered cache where entries also
// expire after a per-set TTL. Ordering and eviction are delegated to
// simplelru.LRU; expiry and hit accounting are layered on top of it.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	inner    *simplelru.LRU
	hits     int64
	misses   int64
}

// NewLRUCache builds a cache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 1
	}
	inner, _ := simplelru.NewLRU(capacity, nil)
	return &LRUCache{capacity: capacity, inner: inner}
}

// Get returns the cached value for key. A miss also occurs, and the entry
// is dropped, when it has expired.
func (c *LRUCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.inner.Get(key)
	if !ok {
		c.misses++
		return "", false
	}
	e := raw.(*entry)
	if e.expired(time.Now()) {
		c.inner.Remove(key)
		c.misses++
		return "", false
	}
	e.hits++
	c.hits++
	return e.value, true
}

// Set inserts or overwrites key. If the cache is at capacity, expired
// entries are swept first; if it is still full, the LRU entry is evicted.
func (c *LRUCache) Set(key string, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inner.Len() >= c.capacity && !c.inner.Contains(key) {
		c.sweepExpiredLocked()
	}
	if c.inner.Len() >= c.capacity && !c.inner.Contains(key) {
		c.inner.RemoveOldest()
	}
	c.inner.Add(key, &entry{value: value, createdAt: time.Now(), ttl: ttl})
}

func (c *LRUCache) sweepExpiredLocked() {
	now := time.Now()
	for _, key := range c.inner.Keys() {
		raw, ok := c.inner.Peek(key)
		if !ok {
			continue
		}
		if raw.(*entry).expired(now) {
			c.inner.Remove(key)
		}
	}
}

// Stats is a point-in-time snapshot of cache usage.
type Stats struct {
	Size     int
	Capacity int
	Hits     int64
	Misses   int64
	HitRate  float64
}

// Stats returns a snapshot of accumulated statistics.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:     c.inner.Len(),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
		HitRate:  rate,
	}
}

var _ llms.ResponseCache = (*LRUCache)(nil)

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
	"sync"
	"time"
)

// timingSample aggregates one named metric's observations without keeping
// the full history.
type timingSample struct {
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

func (s *timingSample) observe(d time.Duration) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.total += d
	s.count++
}

// TimingStats is a snapshot of one named metric.
type TimingStats struct {
	Count int64
	Min   time.Duration
	Mean  time.Duration
	Max   time.Duration
	Total time.Duration
}

// PerfMonitor is an in-process monitor for named timing samples and named
// counters, distinct from (and not a replacement for) the Prometheus
// exporter in pkg/observability: this is for in-process introspection
// (e.g. a CLI status command or debug log), not scrape-based monitoring.
type PerfMonitor struct {
	mu       sync.Mutex
	timings  map[string]*timingSample
	counters map[string]int64
}

// NewPerfMonitor builds an empty PerfMonitor.
func NewPerfMonitor() *PerfMonitor {
	return &PerfMonitor{timings: map[string]*timingSample{}, counters: map[string]int64{}}
}

// Record adds one observation of d to the named timing metric.
func (m *PerfMonitor) Record(name string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.timings[name]
	if !ok {
		s = &timingSample{}
		m.timings[name] = s
	}
	s.observe(d)
}

// Count increments the named counter by delta.
func (m *PerfMonitor) Count(name string, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += delta
}

// Timing returns the accumulated stats for a named timing metric.
func (m *PerfMonitor) Timing(name string) (TimingStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.timings[name]
	if !ok {
		return TimingStats{}, false
	}
	var mean time.Duration
	if s.count > 0 {
		mean = s.total / time.Duration(s.count)
	}
	return TimingStats{Count: s.count, Min: s.min, Mean: mean, Max: s.max, Total: s.total}, true
}

// Counter returns the current value of a named counter.
func (m *PerfMonitor) Counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Acquisition is a handle returned by Start; Release records the elapsed
// time against the metric it was started for.
type Acquisition struct {
	monitor *PerfMonitor
	name    string
	started time.Time
}

// Start begins a scoped timer for the named metric. Call Release when the
// scoped operation ends.
func (m *PerfMonitor) Start(name string) *Acquisition {
	return &Acquisition{monitor: m, name: name, started: time.Now()}
}

// Release records the elapsed time since Start against the metric name.
func (a *Acquisition) Release() {
	if a == nil || a.monitor == nil {
		return
	}
	a.monitor.Record(a.name, time.Since(a.started))
}

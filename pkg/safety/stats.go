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

package safety

import (
	"os"
	"sync/atomic"
)

// Stats is a point-in-time snapshot of policy-check statistics.
type Stats struct {
	TotalChecks   int64
	Violations    int64
	ByKind        map[Kind]int64
	ViolationRate float64
}

// internal counters, safe under concurrent tool invocations.
type statCounters struct {
	totalChecks int64
	violations  int64
	disallowed  int64
	denied      int64
	protected   int64
	pattern     int64
	suspicious  int64
}

func (s *statCounters) recordCheck() { atomic.AddInt64(&s.totalChecks, 1) }

func (s *statCounters) recordViolation(kind Kind) {
	atomic.AddInt64(&s.violations, 1)
	switch kind {
	case KindDisallowedCommand:
		atomic.AddInt64(&s.disallowed, 1)
	case KindDeniedCommand:
		atomic.AddInt64(&s.denied, 1)
	case KindProtectedFile:
		atomic.AddInt64(&s.protected, 1)
	case KindProtectedPattern:
		atomic.AddInt64(&s.pattern, 1)
	case KindSuspiciousOp:
		atomic.AddInt64(&s.suspicious, 1)
	}
}

func (s *statCounters) snapshot() Stats {
	total := atomic.LoadInt64(&s.totalChecks)
	violations := atomic.LoadInt64(&s.violations)
	var rate float64
	if total > 0 {
		rate = float64(violations) / float64(total)
	}
	return Stats{
		TotalChecks: total,
		Violations:  violations,
		ByKind: map[Kind]int64{
			KindDisallowedCommand: atomic.LoadInt64(&s.disallowed),
			KindDeniedCommand:     atomic.LoadInt64(&s.denied),
			KindProtectedFile:     atomic.LoadInt64(&s.protected),
			KindProtectedPattern:  atomic.LoadInt64(&s.pattern),
			KindSuspiciousOp:      atomic.LoadInt64(&s.suspicious),
		},
		ViolationRate: rate,
	}
}

func homeDir() (string, error) { return os.UserHomeDir() }

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

package subagent

import (
	"fmt"
	"sort"
)

// topoBatches groups subtasks into sequential batches where every subtask
// in a batch depends only on subtasks in earlier batches (Kahn's
// algorithm, one batch per "wave" of zero-remaining-dependency nodes). A
// cycle in depends_on is reported as an error; the caller falls back to
// running subtasks sequentially in declared order.
func topoBatches(subtasks []Subtask) ([][]Subtask, error) {
	byID := make(map[string]Subtask, len(subtasks))
	declaredOrder := make(map[string]int, len(subtasks))
	remaining := make(map[string]int, len(subtasks))
	dependents := make(map[string][]string, len(subtasks))

	for i, st := range subtasks {
		byID[st.ID] = st
		declaredOrder[st.ID] = i
		remaining[st.ID] = 0
	}
	for _, st := range subtasks {
		for _, dep := range st.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue // dangling dependency reference; ignore rather than fail
			}
			remaining[st.ID]++
			dependents[dep] = append(dependents[dep], st.ID)
		}
	}

	var batches [][]Subtask
	placed := 0
	pending := make(map[string]bool, len(subtasks))
	for id := range byID {
		pending[id] = true
	}

	for len(pending) > 0 {
		var ready []string
		for id := range pending {
			if remaining[id] == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, fmt.Errorf("subagent: cycle detected in subtask dependencies")
		}

		// Map iteration order is randomized; without this sort, a batch's
		// subtask order (and therefore the aggregator's final per-subtask
		// result order) would vary run to run.
		sort.Slice(ready, func(i, j int) bool {
			return declaredOrder[ready[i]] < declaredOrder[ready[j]]
		})

		batch := make([]Subtask, 0, len(ready))
		for _, id := range ready {
			batch = append(batch, byID[id])
			delete(pending, id)
			placed++
		}
		batches = append(batches, batch)

		for _, id := range ready {
			for _, dep := range dependents[id] {
				remaining[dep]--
			}
		}
	}

	if placed != len(subtasks) {
		return nil, fmt.Errorf("subagent: cycle detected in subtask dependencies")
	}
	return batches, nil
}

// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package order computes a total publish order over a workspace's packages,
// per spec.md §4.3: a Kahn-style topological sort with a rank statistic used
// to break ties deterministically.
package order

import (
	"fmt"
	"sort"
)

// CycleOrUnresolvedError reports that Solve could not make progress with
// packages still unordered: either a dependency cycle, or a dependency name
// absent from the graph entirely.
type CycleOrUnresolvedError struct {
	Unordered []string
}

func (e *CycleOrUnresolvedError) Error() string {
	return fmt.Sprintf("cannot resolve publish order for: %v", e.Unordered)
}

// Solve computes a total order over deps' keys such that every name in a
// package's dependency slice precedes that package. deps maps a package name
// to its publish-relevant dependency set only (dev-dependencies must already
// be excluded by the caller, per spec.md §4.3).
//
// Packages are assigned rank = 1 + the sum of their dependencies' ranks as
// they become orderable, so heavier-dependency subtrees sort later; the
// final order breaks rank ties by ascending name, making the result
// deterministic across runs.
func Solve(deps map[string][]string) ([]string, error) {
	rank := make(map[string]int, len(deps))
	ordered := make(map[string]bool, len(deps))

	remaining := make([]string, 0, len(deps))
	for name := range deps {
		remaining = append(remaining, name)
	}
	sort.Strings(remaining)

	for len(remaining) > 0 {
		var ready []string
		for _, name := range remaining {
			if allOrdered(deps[name], ordered) {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			sort.Strings(remaining)
			return nil, &CycleOrUnresolvedError{Unordered: remaining}
		}

		for _, name := range ready {
			r := 1
			for _, dep := range deps[name] {
				r += rank[dep]
			}
			rank[name] = r
			ordered[name] = true
		}

		remaining = removeAll(remaining, ready)
	}

	result := make([]string, 0, len(deps))
	for name := range ordered {
		result = append(result, name)
	}
	sort.Slice(result, func(i, j int) bool {
		if rank[result[i]] != rank[result[j]] {
			return rank[result[i]] < rank[result[j]]
		}
		return result[i] < result[j]
	})
	return result, nil
}

func allOrdered(names []string, ordered map[string]bool) bool {
	for _, n := range names {
		if !ordered[n] {
			return false
		}
	}
	return true
}

func removeAll(from, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, r := range remove {
		drop[r] = true
	}
	kept := from[:0:0]
	for _, f := range from {
		if !drop[f] {
			kept = append(kept, f)
		}
	}
	return kept
}

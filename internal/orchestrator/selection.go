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

package orchestrator

import (
	"github.com/wsrelease/wsrelease/internal/workspace"
)

// expandExclusionClosure implements spec.md §4.8 step 4: any package
// depending (publish-relevantly) on an excluded package is also excluded,
// to a fixed point.
func expandExclusionClosure(ws *workspace.Workspace, explicit []string, order []string) map[string]bool {
	excluded := make(map[string]bool, len(explicit))
	for _, name := range explicit {
		excluded[name] = true
	}
	for changed := true; changed; {
		changed = false
		for _, name := range order {
			if excluded[name] {
				continue
			}
			for _, dep := range ws.Packages[name].Deps {
				if excluded[dep] {
					excluded[name] = true
					changed = true
					break
				}
			}
		}
	}
	return excluded
}

// expandDependents grows selected to a fixed point with every package that
// transitively (publish-relevantly) depends on a selected package, for
// include_crates_dependents.
func expandDependents(ws *workspace.Workspace, selected []string, order []string) map[string]bool {
	set := make(map[string]bool, len(selected))
	for _, name := range selected {
		set[name] = true
	}
	for changed := true; changed; {
		changed = false
		for _, name := range order {
			if set[name] {
				continue
			}
			for _, dep := range ws.Packages[name].Deps {
				if set[dep] {
					set[name] = true
					changed = true
					break
				}
			}
		}
	}
	return set
}

// buildCandidateSet implements spec.md §4.8 steps 5-6: pick the explicit or
// implicit base selection, restrict/order it against order, then drop
// anything ordered before start_from.
func buildCandidateSet(ws *workspace.Workspace, order []string, excluded map[string]bool, publishOnly []string, includeDependents bool, startFrom string) ([]string, error) {
	var set map[string]bool
	if len(publishOnly) > 0 {
		if includeDependents {
			set = expandDependents(ws, publishOnly, order)
		} else {
			set = make(map[string]bool, len(publishOnly))
			for _, name := range publishOnly {
				set[name] = true
			}
		}
	} else {
		set = make(map[string]bool)
		for _, name := range order {
			if excluded[name] {
				continue
			}
			if ws.Packages[name].ShouldBePublished {
				set[name] = true
			}
		}
	}

	startIdx := 0
	if startFrom != "" {
		idx := indexOf(order, startFrom)
		if idx < 0 {
			return nil, &SelectionError{Reason: "start-from package " + startFrom + " is not a workspace member"}
		}
		startIdx = idx
	}

	var candidates []string
	for i, name := range order {
		if i < startIdx {
			continue
		}
		if set[name] {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return nil, &SelectionError{Reason: "no packages selected for publishing"}
	}
	return candidates, nil
}

func indexOf(list []string, name string) int {
	for i, n := range list {
		if n == name {
			return i
		}
	}
	return -1
}

// validateCandidates implements spec.md §4.8 step 7: every candidate's
// transitive publish-relevant dependency set must be free of excluded or
// should_be_published=false packages. When debugDescriptions is set
// (crates_debug_descriptions, spec.md §6), the offending dependency's
// description is appended to the resulting error for easier diagnosis.
func validateCandidates(ws *workspace.Workspace, candidates []string, excluded map[string]bool, debugDescriptions bool) error {
	for _, name := range candidates {
		if err := validateChain(ws, name, excluded, []string{name}, map[string]bool{name: true}, debugDescriptions); err != nil {
			return err
		}
	}
	return nil
}

func validateChain(ws *workspace.Workspace, name string, excluded map[string]bool, chain []string, visited map[string]bool, debugDescriptions bool) error {
	for _, dep := range ws.Packages[name].Deps {
		depChain := append(append([]string{}, chain...), dep)
		if excluded[dep] {
			return &ValidationError{Package: chain[0], Dependency: dep, Reason: "is excluded", Chain: depChain, Description: describeIfDebug(ws, dep, debugDescriptions)}
		}
		if !ws.Packages[dep].ShouldBePublished {
			return &ValidationError{Package: chain[0], Dependency: dep, Reason: "has should_be_published=false", Chain: depChain, Description: describeIfDebug(ws, dep, debugDescriptions)}
		}
		if visited[dep] {
			continue
		}
		visited[dep] = true
		if err := validateChain(ws, dep, excluded, depChain, visited, debugDescriptions); err != nil {
			return err
		}
	}
	return nil
}

func describeIfDebug(ws *workspace.Workspace, name string, debugDescriptions bool) string {
	if !debugDescriptions {
		return ""
	}
	if pkg, ok := ws.Packages[name]; ok {
		return pkg.Description
	}
	return ""
}

// whatNeedsPublishing implements spec.md §4.8 step 8b: every publish-relevant
// dependency of root, plus root itself, restricted to and ordered by order.
func whatNeedsPublishing(ws *workspace.Workspace, root string, order []string) []string {
	visited := map[string]bool{}
	var walk func(name string)
	walk = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, dep := range ws.Packages[name].Deps {
			walk(dep)
		}
	}
	walk(root)

	var ordered []string
	for _, name := range order {
		if visited[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered
}

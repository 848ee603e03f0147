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
	"fmt"
	"strings"
)

// SelectionError reports that step 5/6 of spec.md §4.8 produced an empty or
// otherwise unusable candidate set (e.g. start_from names a package absent
// from the publish order).
type SelectionError struct {
	Reason string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("package selection failed: %s", e.Reason)
}

// ValidationError reports that a candidate transitively depends
// (publish-relevantly) on a package that is excluded or not publishable,
// per spec.md §4.8 step 7. Chain lists the dependency path from Package to
// Dependency, inclusive. Description is only populated when
// crates_debug_descriptions is set, per spec.md §6.
type ValidationError struct {
	Package     string
	Dependency  string
	Reason      string
	Chain       []string
	Description string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("candidate %q depends (via %s) on %q, which %s", e.Package, strings.Join(e.Chain, " -> "), e.Dependency, e.Reason)
	if e.Description != "" {
		msg += fmt.Sprintf(" (%s: %s)", e.Dependency, e.Description)
	}
	return msg
}

// PostCheckFailedError reports that post_check's post-publish re-download
// and byte-comparison, run immediately after a successful upload, did not
// come back up to date.
type PostCheckFailedError struct {
	Package string
	Version string
}

func (e *PostCheckFailedError) Error() string {
	return fmt.Sprintf("post-check failed for %s@%s: registry artifact does not match the just-published source", e.Package, e.Version)
}

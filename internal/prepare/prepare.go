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

// Package prepare applies spec.md §4.6's Manifest Preparation edits to a
// package's manifest before it is packaged: dev-dependency stripping and
// synthesis of a placeholder readme/description where the package declares
// none. This package only touches the filesystem. No checkpoint commit is
// made around these edits; they stay on disk unless for_pull_request mode
// resets the tree to the run-start snapshot.
package prepare

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wsrelease/wsrelease/internal/manifest"
)

const readmePlaceholder = "# (no readme provided)\n"

// Result reports which of the three edits actually changed something, for
// logging and for deciding whether the manifest needs to be written back to
// disk.
type Result struct {
	DevDepsStripped bool
	ReadmeWritten   bool
	DescriptionSet  bool
}

// Changed reports whether any edit modified the document or the filesystem.
func (r Result) Changed() bool {
	return r.DevDepsStripped || r.ReadmeWritten || r.DescriptionSet
}

// Package applies all three edits to doc in place. publishRelevantDeps is
// the package's own publish-relevant dependency name set (workspace.Package
// Deps, i.e. dependencies plus build-dependencies), used to exclude names
// that are both a regular and a dev-dependency from stripping (spec.md §4.6
// step 1: "but not a publish-relevant dep"). Callers must call doc.Write()
// themselves if Result.Changed() (the readme file, if created, is written
// unconditionally since it has no pending in-memory state).
func Package(doc *manifest.Document, publishRelevantDeps map[string]bool) (Result, error) {
	var result Result

	stripped, err := stripDevDependencies(doc, publishRelevantDeps)
	if err != nil {
		return result, fmt.Errorf("stripping dev-dependencies for %s: %w", doc.Pkg.Name, err)
	}
	result.DevDepsStripped = stripped

	wrote, err := ensureReadme(doc)
	if err != nil {
		return result, fmt.Errorf("synthesizing readme for %s: %w", doc.Pkg.Name, err)
	}
	result.ReadmeWritten = wrote

	if doc.Pkg.Description == "" {
		if err := doc.SetPackageField("description", doc.Pkg.Name); err != nil {
			return result, fmt.Errorf("synthesizing description for %s: %w", doc.Pkg.Name, err)
		}
		result.DescriptionSet = true
	}

	return result, nil
}

// stripDevDependencies implements spec.md §4.6 step 1: for every
// dev-dependency entry whose logical name is not also one of the package's
// publish-relevant dependencies, drop its "version" field if it is a
// table-form entry with a path (letting the packaging tool drop the entry
// entirely and avoid a circular dev-dependency publish failure). Shorthand
// string entries are left alone by Document.DropDependencyField itself.
func stripDevDependencies(doc *manifest.Document, publishRelevantDeps map[string]bool) (bool, error) {
	refs, err := manifest.DependenciesOf(doc.Path, manifest.DevDependencies)
	if err != nil {
		return false, err
	}

	matching := map[string]bool{}
	for _, ref := range refs {
		if !publishRelevantDeps[ref.Name] {
			matching[ref.Name] = true
		}
	}
	if len(matching) == 0 {
		return false, nil
	}
	return doc.DropDependencyField(manifest.DevDependencies, matching, "version")
}

// ensureReadme implements spec.md §4.6 step 2: if the manifest declares no
// readme field and no README.md already sits next to it, write a one-line
// placeholder so the packaging tool has something to include. Cargo's own
// readme auto-detection picks up a sibling README.md without a manifest
// edit, so the manifest itself is left untouched here.
func ensureReadme(doc *manifest.Document) (bool, error) {
	if doc.Pkg.Readme != "" {
		return false, nil
	}
	readmePath := filepath.Join(filepath.Dir(doc.Path), "README.md")
	if _, err := os.Stat(readmePath); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := os.WriteFile(readmePath, []byte(readmePlaceholder), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

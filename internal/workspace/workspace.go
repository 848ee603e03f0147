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

// Package workspace discovers every package manifest under a workspace root
// and builds the in-memory package records the rest of the publish engine
// operates on (spec.md §4.2).
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"

	"github.com/wsrelease/wsrelease/internal/gitrepo"
	"github.com/wsrelease/wsrelease/internal/manifest"
)

const manifestFilename = "Cargo.toml"

// Package is one workspace member's record: its manifest metadata plus its
// publish-relevant and dev-only dependency edges, by logical name.
type Package struct {
	Name              string
	Version           string
	ManifestPath      string
	ShouldBePublished bool
	Readme            string
	Description       string

	// Deps is the publish-relevant dependency set: regular dependencies plus
	// build-dependencies, used by the order solver and the transitive
	// version-bump propagation (spec.md §4.3, §4.5). Dev-dependencies are
	// deliberately excluded, per spec.md §4.3.
	Deps []string
	// DevDeps names dev-dependencies, tracked separately since they are
	// stripped before packaging (spec.md §4.6) rather than ordered against.
	DevDeps []string
}

// Workspace is every discovered package, keyed by name, plus the root
// directory they were discovered under.
type Workspace struct {
	Root     string
	Packages map[string]*Package
}

// DuplicatePackageError reports that two manifests under the workspace
// declared the same package name.
type DuplicatePackageError struct {
	Name           string
	FirstManifest  string
	SecondManifest string
}

func (e *DuplicatePackageError) Error() string {
	return fmt.Sprintf("duplicate package %q declared by both %s and %s", e.Name, e.FirstManifest, e.SecondManifest)
}

// MissingWorkspaceMemberError reports that a package's dependency set names
// a package that isn't a workspace member.
type MissingWorkspaceMemberError struct {
	Package string
	Missing string
}

func (e *MissingWorkspaceMemberError) Error() string {
	return fmt.Sprintf("package %q depends on %q, which is not a workspace member", e.Package, e.Missing)
}

// MetadataCommand is the packaging tool's metadata command, split into
// argv[0] and the rest, invoked as `<argv[0]> <argv[1:]...>` from root. It is
// a variable so tests can point it at a fake. Mirrors
// rust_release's use of exec.Command(cargoExe(...), "metadata", ...).
var MetadataCommand = []string{"cargo", "metadata", "--no-deps", "--format-version", "1"}

// Load discovers every package manifest under root and builds their package
// records, per spec.md §4.2: invoke the toolchain's metadata command first;
// on failure, fall back to enumerating every git-tracked file named
// Cargo.toml under root.
func Load(ctx context.Context, root string) (*Workspace, error) {
	manifestPaths, err := manifestPathsFromMetadata(ctx, root)
	if err != nil {
		slog.Warn("workspace metadata command failed, falling back to tracked-file discovery", "error", err)
		manifestPaths, err = manifestPathsFromTrackedFiles(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("discovering workspace manifests: %w", err)
		}
	}

	ws := &Workspace{Root: root, Packages: map[string]*Package{}}
	manifestOf := map[string]string{} // package name -> manifest path, for duplicate reporting
	for _, manifestPath := range manifestPaths {
		pkg, err := loadPackage(manifestPath)
		if err != nil {
			return nil, err
		}
		if existing, ok := manifestOf[pkg.Name]; ok {
			return nil, &DuplicatePackageError{Name: pkg.Name, FirstManifest: existing, SecondManifest: manifestPath}
		}
		manifestOf[pkg.Name] = manifestPath
		ws.Packages[pkg.Name] = pkg
	}

	if err := ws.validateMembers(); err != nil {
		return nil, err
	}
	return ws, nil
}

func loadPackage(manifestPath string) (*Package, error) {
	doc, err := manifest.Read(manifestPath)
	if err != nil {
		return nil, err
	}

	deps, err := dependencyNames(manifestPath, manifest.Dependencies)
	if err != nil {
		return nil, err
	}
	buildDeps, err := dependencyNames(manifestPath, manifest.BuildDependencies)
	if err != nil {
		return nil, err
	}
	devDeps, err := dependencyNames(manifestPath, manifest.DevDependencies)
	if err != nil {
		return nil, err
	}

	return &Package{
		Name:              doc.Pkg.Name,
		Version:           doc.Pkg.Version,
		ManifestPath:      manifestPath,
		ShouldBePublished: doc.Pkg.ShouldBePublished,
		Readme:            doc.Pkg.Readme,
		Description:       doc.Pkg.Description,
		Deps:              append(deps, buildDeps...),
		DevDeps:           devDeps,
	}, nil
}

func dependencyNames(manifestPath string, kind manifest.DependencyTableKind) ([]string, error) {
	refs, err := manifest.DependenciesOf(manifestPath, kind)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, ref := range refs {
		if seen[ref.Name] {
			continue
		}
		seen[ref.Name] = true
		names = append(names, ref.Name)
	}
	sort.Strings(names)
	return names, nil
}

// validateMembers enforces spec.md §4.2's closure invariant: every name in a
// package's publish-relevant dependency set must itself be a workspace
// member. Dev-dependencies are not required to resolve within the workspace
// (they may reference a published version of a package maintained
// elsewhere), matching the original's own scoping of this check to
// publish-relevant edges.
func (ws *Workspace) validateMembers() error {
	names := make([]string, 0, len(ws.Packages))
	for name := range ws.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pkg := ws.Packages[name]
		for _, dep := range pkg.Deps {
			if _, ok := ws.Packages[dep]; !ok {
				return &MissingWorkspaceMemberError{Package: pkg.Name, Missing: dep}
			}
		}
	}
	return nil
}

func manifestPathsFromMetadata(ctx context.Context, root string) ([]string, error) {
	if len(MetadataCommand) == 0 {
		return nil, fmt.Errorf("no metadata command configured")
	}
	args := append([]string{}, MetadataCommand[1:]...)
	args = append(args, "--manifest-path", filepath.Join(root, manifestFilename))
	cmd := exec.CommandContext(ctx, MetadataCommand[0], args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Packages []struct {
			ManifestPath string `json:"manifest_path"`
		} `json:"packages"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parsing metadata output: %w", err)
	}

	paths := make([]string, 0, len(parsed.Packages))
	for _, p := range parsed.Packages {
		paths = append(paths, p.ManifestPath)
	}
	sort.Strings(paths)
	return paths, nil
}

func manifestPathsFromTrackedFiles(ctx context.Context, root string) ([]string, error) {
	repo, err := gitrepo.Open(ctx, root)
	if err != nil {
		return nil, err
	}
	tracked, err := gitrepo.ListTrackedFiles(ctx, repo)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, f := range tracked {
		if path.Base(f) != manifestFilename {
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(f))
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		paths = append(paths, abs)
	}
	sort.Strings(paths)
	return paths, nil
}

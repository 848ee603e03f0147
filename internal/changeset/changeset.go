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

// Package changeset decides whether a workspace member needs to be published
// (spec.md §4.4): it packages the member as it currently sits on disk and
// compares the result against what the registry already has.
//
// Manifest Preparation (internal/prepare) must run on the package before
// Detect is called, so the locally packaged artifact is byte-comparable to
// what the registry would store; this package does not invoke preparation
// itself. The orchestrator runs it right before each Detect call.
package changeset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/wsrelease/wsrelease/internal/registryapi"
)

// Status is the verdict Detect returns for a package.
type Status int

const (
	// NeedsPublish means the current in-source version differs from (or is
	// absent from) what the registry holds.
	NeedsPublish Status = iota
	// UpToDate means the registry already holds byte-identical content for
	// the current name and version.
	UpToDate
)

func (s Status) String() string {
	if s == UpToDate {
		return "up-to-date"
	}
	return "needs-publish"
}

// PackagingFailedError reports that the local packaging step itself failed;
// per spec.md §7 this is always fatal, never retried.
type PackagingFailedError struct {
	Package string
	Stderr  string
	Err     error
}

func (e *PackagingFailedError) Error() string {
	return fmt.Sprintf("packaging %s failed: %v\n%s", e.Package, e.Err, e.Stderr)
}

func (e *PackagingFailedError) Unwrap() error {
	return e.Err
}

// Detector materializes local artifacts and compares them against a
// registry, per spec.md §4.4.
type Detector struct {
	// CargoExe is the packaging tool executable, defaulting to "cargo".
	CargoExe string
	// WorkRoot is the override directory under which packaged artifacts are
	// placed (spec.md §4.4 step 1's "user-overridable override directory");
	// each package gets its own subdirectory so packages do not overwrite
	// each other's artifacts.
	WorkRoot string
	Registry *registryapi.Client
}

// NewDetector returns a Detector that packages with cargoExe (or "cargo" if
// empty) into a subdirectory of workRoot and compares downloads fetched
// through registry.
func NewDetector(cargoExe, workRoot string, registry *registryapi.Client) *Detector {
	if cargoExe == "" {
		cargoExe = "cargo"
	}
	return &Detector{CargoExe: cargoExe, WorkRoot: workRoot, Registry: registry}
}

// Detect runs spec.md §4.4's three steps for one package: materialize,
// check existence, then byte-compare against the downloaded artifact.
func (d *Detector) Detect(ctx context.Context, name, version, manifestPath string) (Status, error) {
	local, err := d.packageArtifact(ctx, name, version, manifestPath)
	if err != nil {
		return 0, err
	}

	versions, err := d.Registry.Versions(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("listing previously published versions of %s: %w", name, err)
	}
	if !nonYankedContains(versions, version) {
		return NeedsPublish, nil
	}

	remote, err := d.Registry.Download(ctx, name, version)
	if err != nil {
		if errors.Is(err, registryapi.ErrNotFound) {
			return NeedsPublish, nil
		}
		return 0, fmt.Errorf("downloading published artifact for %s %s: %w", name, version, err)
	}

	if bytes.Equal(local, remote) {
		return UpToDate, nil
	}
	return NeedsPublish, nil
}

func nonYankedContains(versions []registryapi.VersionInfo, version string) bool {
	for _, v := range versions {
		if v.Version == version && !v.Yanked {
			return true
		}
	}
	return false
}

// packageArtifact shells out to the packaging tool to build a registry-shaped
// artifact for the package at manifestPath, returning its bytes. Mirrors
// rust_release's exec.Command(cargoExe(...), ...) invocation shape; unlike
// the original Rust implementation (which downloads and walks the published
// tarball file-by-file against the working tree), this compares whole
// packaged artifacts byte-for-byte, per spec.md §4.4.
func (d *Detector) packageArtifact(ctx context.Context, name, version, manifestPath string) ([]byte, error) {
	targetDir := filepath.Join(d.WorkRoot, "package", name)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating packaging directory for %s: %w", name, err)
	}

	cmd := exec.CommandContext(ctx, d.CargoExe,
		"package",
		"--manifest-path", manifestPath,
		"--target-dir", targetDir,
		"--allow-dirty",
		"--no-verify",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &PackagingFailedError{Package: name, Stderr: string(out), Err: err}
	}

	artifactPath := filepath.Join(targetDir, "package", fmt.Sprintf("%s-%s.crate", name, version))
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, &PackagingFailedError{
			Package: name,
			Stderr:  string(out),
			Err:     fmt.Errorf("reading packaged artifact %s: %w", artifactPath, err),
		}
	}
	return data, nil
}

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

package changeset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/wsrelease/wsrelease/internal/registryapi"
)

// fakeCargo writes a shell script standing in for the cargo executable: it
// creates <target-dir>/package/<name>-<version>.crate with the given
// contents, mirroring `cargo package`'s own output layout.
func fakeCargo(t *testing.T, contents string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake cargo script is a POSIX shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-cargo")
	script := fmt.Sprintf(`#!/bin/sh
manifest=""
target=""
while [ $# -gt 0 ]; do
  case "$1" in
    --manifest-path) manifest="$2"; shift 2 ;;
    --target-dir) target="$2"; shift 2 ;;
    *) shift ;;
  esac
done
name=$(grep '^name' "$manifest" | head -1 | sed -E 's/.*"(.*)".*/\1/')
version=$(grep '^version' "$manifest" | head -1 | sed -E 's/.*"(.*)".*/\1/')
mkdir -p "$target/package"
printf '%%s' %q > "$target/package/$name-$version.crate"
`, contents)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeManifest(t *testing.T, dir, name, version string) string {
	t.Helper()
	path := filepath.Join(dir, "Cargo.toml")
	contents := fmt.Sprintf("[package]\nname = %q\nversion = %q\n", name, version)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetectNeedsPublishWhenVersionAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	manifest := writeManifest(t, t.TempDir(), "foo", "1.0.0")
	d := NewDetector(fakeCargo(t, "irrelevant"), t.TempDir(), registryapi.NewClient(srv.URL))

	status, err := d.Detect(context.Background(), "foo", "1.0.0", manifest)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if status != NeedsPublish {
		t.Errorf("Detect() = %v, want NeedsPublish", status)
	}
}

func TestDetectNeedsPublishWhenYanked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"versions":[{"num":"1.0.0","yanked":true}]}`)
	}))
	defer srv.Close()

	manifest := writeManifest(t, t.TempDir(), "foo", "1.0.0")
	d := NewDetector(fakeCargo(t, "irrelevant"), t.TempDir(), registryapi.NewClient(srv.URL))

	status, err := d.Detect(context.Background(), "foo", "1.0.0", manifest)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if status != NeedsPublish {
		t.Errorf("Detect() = %v, want NeedsPublish", status)
	}
}

func TestDetectUpToDateWhenArtifactsMatch(t *testing.T) {
	const artifact = "crate-bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crates/foo/versions":
			fmt.Fprint(w, `{"versions":[{"num":"1.0.0","yanked":false}]}`)
		case "/crates/foo/1.0.0/download":
			fmt.Fprint(w, artifact)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	manifest := writeManifest(t, t.TempDir(), "foo", "1.0.0")
	d := NewDetector(fakeCargo(t, artifact), t.TempDir(), registryapi.NewClient(srv.URL))

	status, err := d.Detect(context.Background(), "foo", "1.0.0", manifest)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if status != UpToDate {
		t.Errorf("Detect() = %v, want UpToDate", status)
	}
}

func TestDetectNeedsPublishWhenArtifactsDiffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crates/foo/versions":
			fmt.Fprint(w, `{"versions":[{"num":"1.0.0","yanked":false}]}`)
		case "/crates/foo/1.0.0/download":
			fmt.Fprint(w, "published-bytes")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	manifest := writeManifest(t, t.TempDir(), "foo", "1.0.0")
	d := NewDetector(fakeCargo(t, "local-bytes"), t.TempDir(), registryapi.NewClient(srv.URL))

	status, err := d.Detect(context.Background(), "foo", "1.0.0", manifest)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if status != NeedsPublish {
		t.Errorf("Detect() = %v, want NeedsPublish", status)
	}
}

func TestDetectNeedsPublishWhenDownloadMissingDespiteListedVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crates/foo/versions":
			fmt.Fprint(w, `{"versions":[{"num":"1.0.0","yanked":false}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	manifest := writeManifest(t, t.TempDir(), "foo", "1.0.0")
	d := NewDetector(fakeCargo(t, "local-bytes"), t.TempDir(), registryapi.NewClient(srv.URL))

	status, err := d.Detect(context.Background(), "foo", "1.0.0", manifest)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if status != NeedsPublish {
		t.Errorf("Detect() = %v, want NeedsPublish", status)
	}
}

func TestDetectPackagingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"versions":[{"num":"1.0.0","yanked":false}]}`)
	}))
	defer srv.Close()

	manifest := writeManifest(t, t.TempDir(), "foo", "1.0.0")
	d := NewDetector(filepath.Join(t.TempDir(), "does-not-exist"), t.TempDir(), registryapi.NewClient(srv.URL))

	_, err := d.Detect(context.Background(), "foo", "1.0.0", manifest)
	if err == nil {
		t.Fatal("Detect() error = nil, want packaging failure")
	}
	var packagingErr *PackagingFailedError
	if !errors.As(err, &packagingErr) {
		t.Errorf("Detect() error = %v, want *PackagingFailedError", err)
	}
}

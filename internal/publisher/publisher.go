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

// Package publisher drives one package through spec.md §4.7's publish state
// machine: Idle -> Packaging -> Uploading -> AwaitingRegistryDb ->
// AwaitingRegistryIndex -> Settled, with RateLimited and
// TransientNetworkError as recoverable detours off Uploading. Grounded on
// rust_release/publish.go + preflight.go for the packaging-tool invocation
// shape (exec.CommandContext, stderr captured into the error) and on
// original cargo.rs for the stderr-substring failure classification
// (internal/publisher/signatures.go).
package publisher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/wsrelease/wsrelease/internal/indexname"
	"github.com/wsrelease/wsrelease/internal/manifest"
	"github.com/wsrelease/wsrelease/internal/prepare"
	"github.com/wsrelease/wsrelease/internal/registryapi"
	"github.com/wsrelease/wsrelease/internal/utils"
)

// registryPollInterval is the cadence spec.md §4.7 names (~1.5s) for polling
// the registry database and, separately, the index, after a successful
// upload.
const registryPollInterval = 1500 * time.Millisecond

// rateLimitBackoff and transientNetworkBackoff are spec.md §4.7's fixed
// retry delays (~60s and ~30s respectively).
const (
	rateLimitBackoff        = 60 * time.Second
	transientNetworkBackoff = 30 * time.Second
	maxTransientNetworkTry  = 8
)

// overridable for tests.
var (
	sleep = time.Sleep
	now   = time.Now
)

// Request holds everything one package's publish run needs.
type Request struct {
	Name         string
	Version      string
	ManifestPath string

	// CargoExe is the packaging tool executable; defaults to "cargo".
	CargoExe string
	// TargetDir overrides the packaging tool's scratch directory.
	TargetDir string
	// Verify controls whether cargo's own pre-publish verification build
	// runs; spec.md §4.7 omits --no-verify only when a verify policy set
	// names this package, since dev-dependency stripping can otherwise
	// legitimately break that verification build.
	Verify bool
	// PublishRelevantDeps is this package's own publish-relevant dependency
	// name set, passed through to internal/prepare's dev-dependency
	// stripping step.
	PublishRelevantDeps map[string]bool

	// RegistryName and RegistryToken select a non-default registry, applied
	// as --registry/--token plus CARGO_REGISTRY_DEFAULT, mirroring original
	// cargo.rs's SPUB_REGISTRY/SPUB_REGISTRY_TOKEN handling.
	RegistryName  string
	RegistryToken string

	Registry *registryapi.Client

	// IndexURL and ResolveIndexHeadSHA, if both set, enable the
	// AwaitingRegistryIndex wait: ResolveIndexHeadSHA is called once per
	// poll to get the index repository's current HEAD commit, since the
	// index may advance while this package waits.
	IndexURL            string
	ResolveIndexHeadSHA func(ctx context.Context) (string, error)

	// AfterPublishDelay, if non-zero, is the minimum duration Publish
	// enforces between LastPublishedAt and starting this package's upload.
	AfterPublishDelay time.Duration
	// LastPublishedAt is read at entry to honor AfterPublishDelay and
	// overwritten with the publish instant on success, letting a caller
	// thread one run's pacing across sequential calls.
	LastPublishedAt *time.Time

	// ClearCargoHome, if set, has its contents (not the directory itself)
	// removed after a successful publish.
	ClearCargoHome string
	// PostPublishCleanupGlob lists glob patterns whose matches are removed
	// after a successful publish.
	PostPublishCleanupGlob []string
	// CommittedFile, if set, is polled line-by-line after a successful
	// publish until a line equals Name, letting an external system record
	// the publish before Publish returns.
	CommittedFile string
}

// Publish drives req's package through the full state machine and blocks
// until it is Settled or a fatal error occurs.
func Publish(ctx context.Context, req Request) error {
	cargoExe := req.CargoExe
	if cargoExe == "" {
		cargoExe = "cargo"
	}

	slog.Info("publish: idle -> packaging", "package", req.Name, "version", req.Version)
	if err := prepareManifest(req); err != nil {
		return fmt.Errorf("preparing manifest for %s: %w", req.Name, err)
	}

	if req.AfterPublishDelay > 0 && req.LastPublishedAt != nil && !req.LastPublishedAt.IsZero() {
		if wait := req.AfterPublishDelay - now().Sub(*req.LastPublishedAt); wait > 0 {
			slog.Info("publish: honoring inter-publish delay", "package", req.Name, "wait", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}
	}

	slog.Info("publish: packaging -> uploading", "package", req.Name)
	if err := upload(ctx, cargoExe, req); err != nil {
		return err
	}

	slog.Info("publish: uploading -> awaiting_registry_db", "package", req.Name)
	if err := awaitRegistryDB(ctx, req); err != nil {
		return err
	}

	if req.IndexURL != "" && req.ResolveIndexHeadSHA != nil {
		slog.Info("publish: awaiting_registry_db -> awaiting_registry_index", "package", req.Name)
		if err := awaitRegistryIndex(ctx, req); err != nil {
			return err
		}
	}

	slog.Info("publish: settled", "package", req.Name)
	return settle(ctx, req)
}

func prepareManifest(req Request) error {
	doc, err := manifest.Read(req.ManifestPath)
	if err != nil {
		return err
	}
	result, err := prepare.Package(doc, req.PublishRelevantDeps)
	if err != nil {
		return err
	}
	if result.Changed() {
		return doc.Write()
	}
	return nil
}

// upload implements the Packaging -> Uploading transition: invoke the
// packaging tool's publish command, retrying RateLimited and
// TransientNetworkError outcomes per spec.md §4.7.
func upload(ctx context.Context, cargoExe string, req Request) error {
	transientAttempts := 0
	for {
		stderr, err := runPublish(ctx, cargoExe, req)
		if err == nil {
			return nil
		}

		switch classifyUploadError(stderr) {
		case uploadRateLimited:
			slog.Warn("publish: rate limited, backing off", "package", req.Name, "backoff", rateLimitBackoff)
			if err := sleepCtx(ctx, rateLimitBackoff); err != nil {
				return err
			}
			continue
		case uploadTransientNetwork:
			transientAttempts++
			if transientAttempts > maxTransientNetworkTry {
				return &TransientNetworkExhaustedError{Package: req.Name, Attempts: transientAttempts, Stderr: stderr}
			}
			slog.Warn("publish: transient network error, retrying", "package", req.Name, "attempt", transientAttempts, "backoff", transientNetworkBackoff)
			if err := sleepCtx(ctx, transientNetworkBackoff); err != nil {
				return err
			}
			continue
		default:
			return &OtherFailureError{Package: req.Name, Stderr: stderr, Err: err}
		}
	}
}

func runPublish(ctx context.Context, cargoExe string, req Request) (stderr string, err error) {
	args := []string{"publish", "--manifest-path", req.ManifestPath, "--allow-dirty"}
	if req.TargetDir != "" {
		args = append(args, "--target-dir", req.TargetDir)
	}
	if !req.Verify {
		args = append(args, "--no-verify")
	}
	if req.RegistryName != "" {
		args = append(args, "--registry", req.RegistryName, "--token", req.RegistryToken)
	}

	cmd := exec.CommandContext(ctx, cargoExe, args...)
	if req.RegistryName != "" {
		cmd.Env = append(os.Environ(), "CARGO_REGISTRY_DEFAULT="+req.RegistryName)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("%v: %w", cmd, err)
	}
	return "", nil
}

// awaitRegistryDB polls the registry's existence endpoint until the package
// is visible, per spec.md §4.7.
func awaitRegistryDB(ctx context.Context, req Request) error {
	for {
		exists, err := req.Registry.Exists(ctx, req.Name, req.Version)
		if err != nil {
			return fmt.Errorf("checking registry for %s %s: %w", req.Name, req.Version, err)
		}
		if exists {
			return nil
		}
		if err := sleepCtx(ctx, registryPollInterval); err != nil {
			return err
		}
	}
}

// awaitRegistryIndex polls the index metadata blob at the index's current
// HEAD until a line names the published version, per spec.md §4.7.
func awaitRegistryIndex(ctx context.Context, req Request) error {
	for {
		sha, err := req.ResolveIndexHeadSHA(ctx)
		if err != nil {
			return fmt.Errorf("resolving index HEAD for %s: %w", req.Name, err)
		}
		found, err := indexContainsVersion(ctx, req.IndexURL, sha, req.Name, req.Version)
		if err != nil {
			return fmt.Errorf("fetching index metadata for %s: %w", req.Name, err)
		}
		if found {
			return nil
		}
		if err := sleepCtx(ctx, registryPollInterval); err != nil {
			return err
		}
	}
}

func indexContainsVersion(ctx context.Context, indexURL, headSHA, name, version string) (bool, error) {
	reqURL := indexname.URL(indexURL, headSHA, name)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("index request to %s failed with status %d", reqURL, resp.StatusCode)
	}

	var line struct {
		Vers string `json:"vers"`
	}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		text := scanner.Bytes()
		if len(bytes.TrimSpace(text)) == 0 {
			continue
		}
		if err := json.Unmarshal(text, &line); err != nil {
			continue
		}
		if line.Vers == version {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// settle implements the AwaitingRegistryIndex -> Settled transition: record
// the publish instant, run optional post-publish cleanup, and optionally
// wait for an external commit signal.
func settle(ctx context.Context, req Request) error {
	publishedAt := now()
	if req.LastPublishedAt != nil {
		*req.LastPublishedAt = publishedAt
	}

	if req.ClearCargoHome != "" {
		if err := clearDirContents(req.ClearCargoHome); err != nil {
			slog.Warn("publish: failed to clear cache directory", "package", req.Name, "dir", req.ClearCargoHome, "error", err)
		}
	}
	for _, pattern := range req.PostPublishCleanupGlob {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			slog.Warn("publish: invalid post-publish cleanup glob", "pattern", pattern, "error", err)
			continue
		}
		for _, m := range matches {
			if err := os.RemoveAll(m); err != nil {
				slog.Warn("publish: failed to remove post-publish cleanup path", "path", m, "error", err)
			}
		}
	}

	if req.CommittedFile != "" {
		if err := awaitCommittedFile(ctx, req.CommittedFile, req.Name); err != nil {
			return err
		}
	}
	return nil
}

func clearDirContents(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func awaitCommittedFile(ctx context.Context, path, name string) error {
	for {
		if committed, err := fileHasLine(path, name); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else if committed {
			return nil
		}
		if err := sleepCtx(ctx, registryPollInterval); err != nil {
			return err
		}
	}
}

func fileHasLine(path, line string) (bool, error) {
	contents, err := utils.ReadAllBytesFromFile(path)
	if err != nil {
		return false, err
	}
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		if scanner.Text() == line {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// sleepCtx sleeps for d via the overridable sleep var, returning ctx.Err()
// early if ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		sleep(d)
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

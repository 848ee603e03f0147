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

// Package config defines the configuration bag consumed by every component
// of the publish engine. It is populated once at startup from flags and a
// small set of environment variables, then passed by pointer to every
// collaborator: nothing recomputes or re-reads it at runtime.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all configuration values parsed from flags or environment
// variables. When adding members to this struct, please keep them in
// alphabetical order.
type Config struct {
	// AfterPublishDelay is the minimum duration that must elapse between the
	// end of one package's publish and the start of the next one's upload.
	//
	// AfterPublishDelay is specified with the -after-publish-delay flag, as a
	// duration string such as "30s".
	AfterPublishDelay time.Duration

	// ClearCargoHome, when non-empty, names a directory whose contents are
	// removed between publishes (typically a package-manager cache that grows
	// unboundedly across a long run).
	//
	// ClearCargoHome is specified with the -clear-cargo-home flag.
	ClearCargoHome string

	// CommandName is the name of the subcommand being executed ("plan" or
	// "publish"). It is populated automatically after flag parsing.
	CommandName string

	// CommittedFile, when set, names a text file that is polled line-by-line
	// after each publish; the publisher blocks until a line equals the
	// package name, giving an external system a chance to record the publish
	// before the run advances.
	//
	// CommittedFile is read from the WSRELEASE_COMMITTED_FILE environment
	// variable.
	CommittedFile string

	// CratesDebugDescriptions appends the offending dependency's package
	// description to validation error messages, to make "why is this
	// excluded" diagnostics actionable.
	//
	// CratesDebugDescriptions is specified with the -debug-descriptions flag.
	CratesDebugDescriptions bool

	// CratesToBumpCompatibly names packages whose version bump policy is
	// forced to Compatible regardless of what their dependencies propagate.
	//
	// CratesToBumpCompatibly is specified with the -bump-compatible flag
	// (repeatable).
	CratesToBumpCompatibly []string

	// CratesToBumpMajorly names packages whose version bump policy is forced
	// to Breaking regardless of what their dependencies propagate.
	//
	// CratesToBumpMajorly is specified with the -bump-breaking flag
	// (repeatable).
	CratesToBumpMajorly []string

	// CratesAPI is the base URL of the registry's HTTP API, e.g.
	// "https://crates.io/api/v1".
	//
	// CratesAPI is read from the CRATES_API environment variable and is
	// required.
	CratesAPI string

	// Exclude names packages to skip; the exclusion set is expanded to a
	// fixed point over the publish-relevant dependency graph before
	// candidates are selected.
	//
	// Exclude is specified with the -exclude flag (repeatable).
	Exclude []string

	// ForPullRequest, when set, resets the working tree to the commit
	// recorded at the start of the run and re-applies only the final version
	// numbers (own version plus cross-references), producing a minimal diff
	// suitable for review instead of leaving every intermediate manifest edit
	// on disk.
	//
	// ForPullRequest is specified with the -for-pull-request flag.
	ForPullRequest bool

	// GitHubToken authorizes pull request creation when both ForPullRequest
	// and Push are set.
	//
	// GitHubToken is not specified by a flag, as flags are logged and the
	// token is sensitive. Instead it is read from the WSRELEASE_GITHUB_TOKEN
	// environment variable.
	GitHubToken string

	// IncludeCratesDependents expands an explicit PublishOnly selection to
	// also include every package that (transitively, publish-relevantly)
	// depends on a selected package.
	//
	// IncludeCratesDependents is specified with the -include-dependents flag.
	IncludeCratesDependents bool

	// IndexRepository is the git URL of the registry's index repository.
	// Required for index-visibility polling; ignored otherwise.
	//
	// IndexRepository is specified with the -index-repository flag.
	IndexRepository string

	// IndexURL is the base URL under which index metadata blobs live. When
	// set together with IndexRepository, the publisher additionally waits for
	// the new version to appear in the index before advancing.
	//
	// IndexURL is specified with the -index-url flag.
	IndexURL string

	// NoVersionAdjustment disables the Adjust step of the version policy
	// (spec.md §4.5): the in-source version is used as-is even if the
	// registry's published history has a higher version.
	//
	// NoVersionAdjustment is specified with the -no-version-adjustment flag.
	NoVersionAdjustment bool

	// PostCheck, when set, runs a post-publish sanity check (downloading and
	// byte-comparing the just-uploaded artifact) for each processed package.
	//
	// PostCheck is specified with the -post-check flag.
	PostCheck bool

	// PostPublishCleanupGlob lists filesystem glob patterns removed after
	// each successful publish.
	//
	// PostPublishCleanupGlob is specified with the -post-publish-cleanup flag
	// (repeatable).
	PostPublishCleanupGlob []string

	// PreBumpVersions maps a package name to a version that overrides the
	// Adjust step (but not the Bump step) for that package, in the form
	// NAME=VERSION.
	//
	// PreBumpVersions is specified with the -pre-bump-version flag
	// (repeatable).
	PreBumpVersions map[string]string

	// Push determines whether, in ForPullRequest mode, the resulting commit
	// is pushed and a pull request opened. GitHubToken must also be set.
	//
	// Push is specified with the -push flag.
	Push bool

	// PublishOnly is the explicit set of packages the user asked to publish.
	// When empty, every publishable, non-excluded package in publish order is
	// a candidate.
	//
	// PublishOnly is specified with the -publish flag (repeatable), or as
	// positional arguments.
	PublishOnly []string

	// PublishVersions maps a package name to the exact version to publish,
	// in the form NAME=VERSION. Takes precedence over PreBumpVersions and
	// over the computed bump for that package.
	//
	// PublishVersions is specified with the -publish-version flag
	// (repeatable).
	PublishVersions map[string]string

	// Registry, when set, is applied to every dependency entry in every
	// manifest and forwarded to the packaging tool, instead of the default
	// registry.
	//
	// Registry is read from the WSRELEASE_REGISTRY environment variable.
	Registry string

	// RegistryToken authenticates uploads to Registry.
	//
	// RegistryToken is read from the WSRELEASE_REGISTRY_TOKEN environment
	// variable.
	RegistryToken string

	// SetDependencyVersions maps a package name to a version string that is
	// written into every manifest entry referencing that package, outright,
	// before any publishing begins. Form: NAME=VERSION.
	//
	// SetDependencyVersions is specified with the -set-dependency-version
	// flag (repeatable).
	SetDependencyVersions map[string]string

	// StartFrom names a package: candidates ordered strictly before it in the
	// publish order are dropped, supporting resumption after a crash.
	//
	// StartFrom is specified with the -start-from flag.
	StartFrom string

	// StopAtStep halts the run after the named phase (e.g. "validation")
	// without publishing anything.
	//
	// StopAtStep is specified with the -stop-at-step flag.
	StopAtStep string

	// TargetDir overrides the packaging tool's scratch/target directory.
	//
	// TargetDir is read from the CARGO_TARGET_DIR environment variable.
	TargetDir string

	// VerifyFrom, when set, means pre-publish verification is enabled for
	// every package from this one onward in publish order.
	//
	// VerifyFrom is specified with the -verify-from flag.
	VerifyFrom string

	// VerifyNone disables pre-publish verification for every package. It
	// cannot be combined with VerifyFrom or VerifyOnly (see IsValid).
	//
	// VerifyNone is specified with the -verify-none flag.
	VerifyNone bool

	// VerifyOnly lists the exact set of packages that receive pre-publish
	// verification.
	//
	// VerifyOnly is specified with the -verify-only flag (repeatable).
	VerifyOnly []string

	// WorkRoot is the root directory used for temporary working files,
	// including packaged artifacts awaiting byte-comparison. By default this
	// is created under os.TempDir with a timestamped name, but can be
	// overridden with the -work-root flag.
	WorkRoot string

	// WorkspaceRoot is the directory containing the workspace's root
	// manifest. It is the first positional argument.
	WorkspaceRoot string
}

// are variables so they can be replaced during testing.
var (
	now     = time.Now
	tempDir = os.TempDir
)

// New returns a new Config populated with values read from the environment.
func New() *Config {
	return &Config{
		CratesAPI:     os.Getenv("CRATES_API"),
		GitHubToken:   os.Getenv("WSRELEASE_GITHUB_TOKEN"),
		Registry:      os.Getenv("WSRELEASE_REGISTRY"),
		RegistryToken: os.Getenv("WSRELEASE_REGISTRY_TOKEN"),
		TargetDir:     os.Getenv("CARGO_TARGET_DIR"),
		CommittedFile: os.Getenv("WSRELEASE_COMMITTED_FILE"),
	}
}

// IsValid ensures the values contained in a Config are internally
// consistent, returning the first problem found.
func (c *Config) IsValid() (bool, error) {
	if c.WorkspaceRoot == "" {
		return false, errors.New("workspace root not specified")
	}
	if c.CratesAPI == "" {
		return false, errors.New("CRATES_API environment variable is required")
	}
	if c.Push && c.GitHubToken == "" {
		return false, errors.New("no GitHub token supplied for push")
	}
	if c.IndexURL != "" && c.IndexRepository == "" {
		return false, errors.New("index-url specified without index-repository")
	}
	verifySelectors := 0
	if c.VerifyFrom != "" {
		verifySelectors++
	}
	if len(c.VerifyOnly) > 0 {
		verifySelectors++
	}
	if c.VerifyNone {
		verifySelectors++
	}
	if verifySelectors > 1 {
		return false, errors.New("only one of verify-from, verify-only, verify-none may be set")
	}
	for _, kv := range c.Exclude {
		if kv == "" {
			return false, errors.New("exclude entries must not be empty")
		}
	}
	return true, nil
}

// SetDefaults initializes values not set directly by the user.
func (c *Config) SetDefaults() error {
	if c.WorkRoot == "" {
		path := fmt.Sprintf("%s/wsrelease-%s", strings.TrimRight(tempDir(), "/"), formatTimestamp(now()))
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("unable to create working directory %q: %w", path, err)
		}
		c.WorkRoot = path
	}
	return nil
}

// ParseNameValueFlag parses a repeated NAME=VALUE flag into a map, merging
// into the supplied destination (creating it if nil). Used for
// -pre-bump-version, -publish-version and -set-dependency-version.
func ParseNameValueFlag(dest map[string]string, raw string) (map[string]string, error) {
	if dest == nil {
		dest = map[string]string{}
	}
	name, value, err := splitNameValue(raw)
	if err != nil {
		return dest, err
	}
	dest[name] = value
	return dest, nil
}

func splitNameValue(raw string) (string, string, error) {
	idx := strings.IndexByte(raw, '=')
	if idx <= 0 || idx == len(raw)-1 {
		return "", "", fmt.Errorf("expected NAME=VERSION, got %q", raw)
	}
	return raw[:idx], raw[idx+1:], nil
}

func formatTimestamp(t time.Time) string {
	const yyyyMMddHHmmss = "20060102T150405Z"
	return t.Format(yyyyMMddHHmmss)
}

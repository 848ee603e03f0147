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

package main

import (
	"flag"
	"strings"
	"time"

	"github.com/wsrelease/wsrelease/internal/config"
)

// repeatedFlag collects a flag that may be passed more than once, e.g.
// -exclude=foo -exclude=bar.
type repeatedFlag []string

func (r *repeatedFlag) String() string {
	return strings.Join(*r, ",")
}

func (r *repeatedFlag) Set(value string) error {
	*r = append(*r, value)
	return nil
}

// nameValueFlag collects a repeated NAME=VALUE flag, e.g.
// -pre-bump-version=foo=1.2.3, into a map.
type nameValueFlag struct {
	dest *map[string]string
}

func (n nameValueFlag) String() string {
	if n.dest == nil || *n.dest == nil {
		return ""
	}
	var parts []string
	for k, v := range *n.dest {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (n nameValueFlag) Set(value string) error {
	dest, err := config.ParseNameValueFlag(*n.dest, value)
	if err != nil {
		return err
	}
	*n.dest = dest
	return nil
}

var (
	flagAfterPublishDelay     time.Duration
	flagClearCargoHome        string
	flagDebugDescriptions     bool
	flagBumpCompatible        repeatedFlag
	flagBumpBreaking          repeatedFlag
	flagExclude               repeatedFlag
	flagForPullRequest        bool
	flagIncludeDependents     bool
	flagIndexRepository       string
	flagIndexURL              string
	flagNoVersionAdjustment   bool
	flagPostCheck             bool
	flagPostPublishCleanup    repeatedFlag
	flagPreBumpVersion        = map[string]string{}
	flagPush                  bool
	flagPublishOnly           repeatedFlag
	flagPublishVersion        = map[string]string{}
	flagSetDependencyVersion  = map[string]string{}
	flagStartFrom             string
	flagStopAtStep            string
	flagVerifyFrom            string
	flagVerifyNone            bool
	flagVerifyOnly            repeatedFlag
	flagWorkRoot              string
)

func addFlagAfterPublishDelay(fs *flag.FlagSet) {
	fs.DurationVar(&flagAfterPublishDelay, "after-publish-delay", 0, "minimum duration to wait between the end of one publish and the start of the next")
}

func addFlagClearCargoHome(fs *flag.FlagSet) {
	fs.StringVar(&flagClearCargoHome, "clear-cargo-home", "", "directory to empty between publishes, typically a package-manager cache")
}

func addFlagDebugDescriptions(fs *flag.FlagSet) {
	fs.BoolVar(&flagDebugDescriptions, "debug-descriptions", false, "annotate validation errors with the offending dependency's description")
}

func addFlagBumpCompatible(fs *flag.FlagSet) {
	fs.Var(&flagBumpCompatible, "bump-compatible", "force this package to bump compatibly, regardless of what its dependencies propagate (repeatable)")
}

func addFlagBumpBreaking(fs *flag.FlagSet) {
	fs.Var(&flagBumpBreaking, "bump-breaking", "force this package to bump breakingly, regardless of what its dependencies propagate (repeatable)")
}

func addFlagExclude(fs *flag.FlagSet) {
	fs.Var(&flagExclude, "exclude", "package to exclude from the run, along with everything that depends on it (repeatable)")
}

func addFlagForPullRequest(fs *flag.FlagSet) {
	fs.BoolVar(&flagForPullRequest, "for-pull-request", false, "reset to the starting commit and reapply only the final version numbers, for a minimal review diff")
}

func addFlagIncludeDependents(fs *flag.FlagSet) {
	fs.BoolVar(&flagIncludeDependents, "include-dependents", false, "expand an explicit package selection to include everything that depends on it")
}

func addFlagIndexRepository(fs *flag.FlagSet) {
	fs.StringVar(&flagIndexRepository, "index-repository", "", "git URL of the registry's index repository, for index-visibility polling")
}

func addFlagIndexURL(fs *flag.FlagSet) {
	fs.StringVar(&flagIndexURL, "index-url", "", "base URL under which index metadata blobs live; requires -index-repository")
}

func addFlagNoVersionAdjustment(fs *flag.FlagSet) {
	fs.BoolVar(&flagNoVersionAdjustment, "no-version-adjustment", false, "use the in-source version as-is instead of adjusting it against the registry's published history")
}

func addFlagPostCheck(fs *flag.FlagSet) {
	fs.BoolVar(&flagPostCheck, "post-check", false, "download and byte-compare each published artifact against the registry after publishing")
}

func addFlagPostPublishCleanup(fs *flag.FlagSet) {
	fs.Var(&flagPostPublishCleanup, "post-publish-cleanup", "filesystem glob removed after each successful publish (repeatable)")
}

func addFlagPreBumpVersion(fs *flag.FlagSet) {
	fs.Var(nameValueFlag{&flagPreBumpVersion}, "pre-bump-version", "NAME=VERSION override for the Adjust step (repeatable)")
}

func addFlagPush(fs *flag.FlagSet) {
	fs.BoolVar(&flagPush, "push", false, "push the commit and open a pull request; requires -for-pull-request and WSRELEASE_GITHUB_TOKEN")
}

func addFlagPublishOnly(fs *flag.FlagSet) {
	fs.Var(&flagPublishOnly, "publish", "package to publish; when unset every publishable, non-excluded package is a candidate (repeatable)")
}

func addFlagPublishVersion(fs *flag.FlagSet) {
	fs.Var(nameValueFlag{&flagPublishVersion}, "publish-version", "NAME=VERSION to publish exactly, overriding the computed bump (repeatable)")
}

func addFlagSetDependencyVersion(fs *flag.FlagSet) {
	fs.Var(nameValueFlag{&flagSetDependencyVersion}, "set-dependency-version", "NAME=VERSION written into every manifest referencing NAME before the run begins (repeatable)")
}

func addFlagStartFrom(fs *flag.FlagSet) {
	fs.StringVar(&flagStartFrom, "start-from", "", "resume a run by dropping candidates ordered strictly before this package")
}

func addFlagStopAtStep(fs *flag.FlagSet) {
	fs.StringVar(&flagStopAtStep, "stop-at-step", "", "halt the run after the named phase (e.g. validation) without publishing anything")
}

func addFlagVerifyFrom(fs *flag.FlagSet) {
	fs.StringVar(&flagVerifyFrom, "verify-from", "", "enable pre-publish verification for this package onward in publish order")
}

func addFlagVerifyNone(fs *flag.FlagSet) {
	fs.BoolVar(&flagVerifyNone, "verify-none", false, "disable pre-publish verification entirely; cannot be combined with -verify-from/-verify-only")
}

func addFlagVerifyOnly(fs *flag.FlagSet) {
	fs.Var(&flagVerifyOnly, "verify-only", "package to pre-publish verify; all others are skipped (repeatable)")
}

func addFlagWorkRoot(fs *flag.FlagSet) {
	fs.StringVar(&flagWorkRoot, "work-root", "", "working directory for temporary files; defaults to a timestamped directory under the OS temp dir")
}

// addCommonFlags wires every flag shared by the plan and publish commands
// onto fs. plan additionally pins -stop-at-step to "validation" in its
// Action, after these flags have parsed.
func addCommonFlags(fs *flag.FlagSet) {
	addFlagAfterPublishDelay(fs)
	addFlagClearCargoHome(fs)
	addFlagDebugDescriptions(fs)
	addFlagBumpCompatible(fs)
	addFlagBumpBreaking(fs)
	addFlagExclude(fs)
	addFlagForPullRequest(fs)
	addFlagIncludeDependents(fs)
	addFlagIndexRepository(fs)
	addFlagIndexURL(fs)
	addFlagNoVersionAdjustment(fs)
	addFlagPostCheck(fs)
	addFlagPostPublishCleanup(fs)
	addFlagPreBumpVersion(fs)
	addFlagPush(fs)
	addFlagPublishOnly(fs)
	addFlagPublishVersion(fs)
	addFlagSetDependencyVersion(fs)
	addFlagStartFrom(fs)
	addFlagStopAtStep(fs)
	addFlagVerifyFrom(fs)
	addFlagVerifyNone(fs)
	addFlagVerifyOnly(fs)
	addFlagWorkRoot(fs)
}

// applyFlags copies every parsed flag variable into cfg. Called once per
// command after its flags have parsed.
func applyFlags(cfg *config.Config) {
	cfg.AfterPublishDelay = flagAfterPublishDelay
	cfg.ClearCargoHome = flagClearCargoHome
	cfg.CratesDebugDescriptions = flagDebugDescriptions
	cfg.CratesToBumpCompatibly = flagBumpCompatible
	cfg.CratesToBumpMajorly = flagBumpBreaking
	cfg.Exclude = flagExclude
	cfg.ForPullRequest = flagForPullRequest
	cfg.IncludeCratesDependents = flagIncludeDependents
	cfg.IndexRepository = flagIndexRepository
	cfg.IndexURL = flagIndexURL
	cfg.NoVersionAdjustment = flagNoVersionAdjustment
	cfg.PostCheck = flagPostCheck
	cfg.PostPublishCleanupGlob = flagPostPublishCleanup
	cfg.PreBumpVersions = flagPreBumpVersion
	cfg.Push = flagPush
	cfg.PublishOnly = flagPublishOnly
	cfg.PublishVersions = flagPublishVersion
	cfg.SetDependencyVersions = flagSetDependencyVersion
	cfg.StartFrom = flagStartFrom
	cfg.StopAtStep = flagStopAtStep
	cfg.VerifyFrom = flagVerifyFrom
	cfg.VerifyNone = flagVerifyNone
	cfg.VerifyOnly = flagVerifyOnly
	cfg.WorkRoot = flagWorkRoot
}

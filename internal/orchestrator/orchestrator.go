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

// Package orchestrator drives one end-to-end workspace publish run: load the
// workspace, compute the publish order and candidate set, then walk
// candidates in order, synchronizing, bumping, and publishing each package
// that needs it (spec.md §4.8). It is the only collaborator that holds a
// whole-run view; every other package operates on one package or one
// manifest at a time.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/wsrelease/wsrelease/internal/changeset"
	"github.com/wsrelease/wsrelease/internal/checkpoint"
	"github.com/wsrelease/wsrelease/internal/config"
	"github.com/wsrelease/wsrelease/internal/github"
	"github.com/wsrelease/wsrelease/internal/gitrepo"
	"github.com/wsrelease/wsrelease/internal/manifest"
	"github.com/wsrelease/wsrelease/internal/order"
	"github.com/wsrelease/wsrelease/internal/prepare"
	"github.com/wsrelease/wsrelease/internal/publisher"
	"github.com/wsrelease/wsrelease/internal/registryapi"
	"github.com/wsrelease/wsrelease/internal/semverpolicy"
	"github.com/wsrelease/wsrelease/internal/workspace"
)

// Orchestrator drives one run against a workspace checked out at Repo.
type Orchestrator struct {
	Cfg      *config.Config
	Repo     *gitrepo.Repo
	Registry *registryapi.Client
	GitHub   *github.Client

	// CargoExe is the packaging tool executable; defaults to "cargo".
	CargoExe string

	// indexRepo is the cloned index repository used to resolve the index's
	// current HEAD on each AwaitingRegistryIndex poll; opened lazily since
	// most runs don't configure index-visibility polling.
	indexRepo *gitrepo.Repo

	// publishOrder is recorded once Run computes it, so verifyEnabled can
	// resolve verify_from's "this package onward" semantics.
	publishOrder []string
}

// New builds an Orchestrator for cfg, with repo already checked out at
// cfg.WorkspaceRoot.
func New(cfg *config.Config, repo *gitrepo.Repo) *Orchestrator {
	return &Orchestrator{
		Cfg:      cfg,
		Repo:     repo,
		Registry: registryapi.NewClient(cfg.CratesAPI),
		CargoExe: "cargo",
	}
}

// Run executes spec.md §4.8's algorithm end to end.
func (o *Orchestrator) Run(ctx context.Context) error {
	snapshot, err := checkpoint.Snapshot(ctx, o.Repo)
	if err != nil {
		return fmt.Errorf("snapshotting run start: %w", err)
	}

	ws, err := workspace.Load(ctx, o.Repo.Dir)
	if err != nil {
		return fmt.Errorf("loading workspace: %w", err)
	}

	if len(o.Cfg.SetDependencyVersions) > 0 {
		if err := o.applySetDependencyVersions(ws); err != nil {
			return fmt.Errorf("applying set-dependency-version overrides: %w", err)
		}
	}

	deps := make(map[string][]string, len(ws.Packages))
	for name, pkg := range ws.Packages {
		deps[name] = pkg.Deps
	}
	publishOrder, err := order.Solve(deps)
	if err != nil {
		return err
	}
	o.publishOrder = publishOrder

	excluded := expandExclusionClosure(ws, o.Cfg.Exclude, publishOrder)
	candidates, err := buildCandidateSet(ws, publishOrder, excluded, o.Cfg.PublishOnly, o.Cfg.IncludeCratesDependents, o.Cfg.StartFrom)
	if err != nil {
		return err
	}
	if err := validateCandidates(ws, candidates, excluded, o.Cfg.CratesDebugDescriptions); err != nil {
		return err
	}
	slog.Info("orchestrator: validated candidate set", "candidates", candidates)

	if o.Cfg.StopAtStep == "validation" {
		slog.Info("orchestrator: stop-at-step=validation, run ends before any publishing")
		return nil
	}

	if len(o.Cfg.SetDependencyVersions) > 0 {
		if err := o.applySetDependencyVersions(ws); err != nil {
			return fmt.Errorf("applying set-dependency-version overrides: %w", err)
		}
	}

	statePath := filepath.Join(o.Cfg.WorkRoot, "state.yaml")
	state, err := loadOrNewRunState(statePath)
	if err != nil {
		return fmt.Errorf("loading run state: %w", err)
	}
	lastPublishedAt := state.LastPublishedAt
	levels := map[string]semverpolicy.ChangeLevel{}

	for _, name := range candidates {
		if _, done := state.Processed[name]; done {
			continue
		}
		candidate := ws.Packages[name]
		if err := o.syncManifest(candidate, state.Processed); err != nil {
			return fmt.Errorf("synchronizing manifest for %s: %w", name, err)
		}

		for _, subName := range whatNeedsPublishing(ws, name, publishOrder) {
			if _, done := state.Processed[subName]; done {
				continue
			}
			pkg := ws.Packages[subName]
			finalVersion, published, err := o.publishOne(ctx, ws, pkg, levels, &lastPublishedAt)
			if err != nil {
				return fmt.Errorf("publishing %s: %w", subName, err)
			}
			state.Processed[subName] = finalVersion
			state.LastPublishedAt = lastPublishedAt
			if err := state.save(statePath); err != nil {
				slog.Warn("orchestrator: failed to persist run state", "error", err)
			}
			if published {
				slog.Info("orchestrator: published", "package", subName, "version", finalVersion)
			} else {
				slog.Info("orchestrator: already up to date", "package", subName, "version", finalVersion)
			}
		}
	}

	if o.Cfg.ForPullRequest {
		return o.finalizeForPullRequest(ctx, snapshot, ws, state.Processed)
	}
	return nil
}

// applySetDependencyVersions implements spec.md §6's set_dependency_versions
// option: each NAME=VERSION pair is written into every workspace manifest's
// reference to NAME, outright, before any other processing happens. Unlike
// propagateVersion, `path` is left untouched — this is a blunt pre-run
// override, not a signal that the dependency has been published through the
// registry.
func (o *Orchestrator) applySetDependencyVersions(ws *workspace.Workspace) error {
	for name, version := range o.Cfg.SetDependencyVersions {
		for _, pkg := range ws.Packages {
			doc, err := manifest.Read(pkg.ManifestPath)
			if err != nil {
				return err
			}
			modified := false
			for _, kind := range manifest.AllDependencyTableKinds() {
				changed, err := doc.SetDependencyField(kind, map[string]bool{name: true}, "version", version, nil, true, false)
				if err != nil {
					return err
				}
				modified = modified || changed
			}
			if modified {
				if err := doc.Write(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// syncManifest implements spec.md §4.8 step 8a: rewrite candidate's own
// dependency entries so any already-processed dependency's version field
// agrees with the version that dependency actually published this run. The
// `path` field is left alone here — it is only dropped once a dependency is
// actually published (see propagateVersion), since until then the local
// path is still the correct source for packaging and change detection.
func (o *Orchestrator) syncManifest(candidate *workspace.Package, processed map[string]string) error {
	if len(processed) == 0 {
		return nil
	}
	doc, err := manifest.Read(candidate.ManifestPath)
	if err != nil {
		return err
	}
	modified := false
	for _, kind := range manifest.AllDependencyTableKinds() {
		for depName, depVersion := range processed {
			changed, err := doc.SetDependencyField(kind, map[string]bool{depName: true}, "version", depVersion, nil, true, false)
			if err != nil {
				return err
			}
			modified = modified || changed
		}
	}
	if modified {
		return doc.Write()
	}
	return nil
}

// propagateVersion implements spec.md §4.8 step 8c's post-publish
// propagation: every workspace manifest's reference to name is rewritten to
// publishedVersion, and its `path` field dropped, since name is now
// resolvable through the registry.
func (o *Orchestrator) propagateVersion(ws *workspace.Workspace, name, publishedVersion string) error {
	for _, pkg := range ws.Packages {
		if pkg.Name == name {
			continue
		}
		doc, err := manifest.Read(pkg.ManifestPath)
		if err != nil {
			return err
		}
		modified := false
		for _, kind := range manifest.AllDependencyTableKinds() {
			changed, err := doc.SetDependencyField(kind, map[string]bool{name: true}, "version", publishedVersion, []string{"path"}, true, false)
			if err != nil {
				return err
			}
			modified = modified || changed
		}
		if modified {
			if err := doc.Write(); err != nil {
				return err
			}
		}
	}
	return nil
}

// publishOne runs one package through version Adjust/Bump, change detection,
// and (if needed) internal/publisher.Publish, then propagates its resulting
// version to the rest of the workspace. Returns the version the package now
// carries and whether an upload actually happened.
func (o *Orchestrator) publishOne(ctx context.Context, ws *workspace.Workspace, pkg *workspace.Package, levels map[string]semverpolicy.ChangeLevel, lastPublishedAt *time.Time) (string, bool, error) {
	currentVersion := pkg.Version

	if fixed, ok := o.Cfg.PublishVersions[pkg.Name]; ok {
		if fixed != currentVersion {
			if err := setManifestVersion(pkg.ManifestPath, fixed); err != nil {
				return "", false, err
			}
		}
		upToDate, err := o.isUpToDate(ctx, pkg, fixed)
		if err != nil {
			return "", false, err
		}
		if upToDate {
			return fixed, false, nil
		}
		return o.publishAndPropagate(ctx, ws, pkg, fixed, lastPublishedAt)
	}

	adjusted := currentVersion
	if !o.Cfg.NoVersionAdjustment {
		if pre, ok := o.Cfg.PreBumpVersions[pkg.Name]; ok {
			adjusted = pre
		} else {
			versions, err := o.Registry.Versions(ctx, pkg.Name)
			if err != nil {
				return "", false, err
			}
			nonYanked := nonYankedVersionStrings(versions)
			a, changed, err := semverpolicy.Adjust(currentVersion, nonYanked)
			if err != nil {
				return "", false, err
			}
			if changed {
				adjusted = a
			}
		}
		if adjusted != currentVersion {
			if err := setManifestVersion(pkg.ManifestPath, adjusted); err != nil {
				return "", false, err
			}
		}
	}

	upToDate, err := o.isUpToDate(ctx, pkg, adjusted)
	if err != nil {
		return "", false, err
	}
	if upToDate {
		return adjusted, false, nil
	}

	level := o.changeLevel(pkg, levels)
	levels[pkg.Name] = level

	allVersions, err := o.Registry.Versions(ctx, pkg.Name)
	if err != nil {
		return "", false, err
	}
	bumped, changed, err := semverpolicy.Bump(adjusted, versionStrings(allVersions), level)
	if err != nil {
		return "", false, err
	}
	final := adjusted
	if changed {
		final = bumped
		if err := setManifestVersion(pkg.ManifestPath, final); err != nil {
			return "", false, err
		}
	}

	version, published, err := o.publishAndPropagate(ctx, ws, pkg, final, lastPublishedAt)
	if err != nil {
		return "", false, err
	}
	if published && o.Cfg.PostCheck {
		ok, err := o.isUpToDate(ctx, pkg, version)
		if err != nil {
			return "", false, fmt.Errorf("post-check for %s: %w", pkg.Name, err)
		}
		if !ok {
			return "", false, &PostCheckFailedError{Package: pkg.Name, Version: version}
		}
	}
	return version, published, nil
}

// isUpToDate runs Manifest Preparation on pkg's manifest and then change
// detection (spec.md §4.4) for pkg at version.
func (o *Orchestrator) isUpToDate(ctx context.Context, pkg *workspace.Package, version string) (bool, error) {
	doc, err := manifest.Read(pkg.ManifestPath)
	if err != nil {
		return false, err
	}
	publishRelevant := make(map[string]bool, len(pkg.Deps))
	for _, d := range pkg.Deps {
		publishRelevant[d] = true
	}
	result, err := prepare.Package(doc, publishRelevant)
	if err == nil && result.Changed() {
		err = doc.Write()
	}
	if err != nil {
		return false, err
	}
	detector := changeset.NewDetector(o.CargoExe, filepath.Join(o.Cfg.WorkRoot, pkg.Name), o.Registry)
	status, err := detector.Detect(ctx, pkg.Name, version, pkg.ManifestPath)
	if err != nil {
		return false, err
	}
	return status == changeset.UpToDate, nil
}

// publishAndPropagate runs internal/publisher.Publish for pkg at version and
// propagates the result to the rest of the workspace.
func (o *Orchestrator) publishAndPropagate(ctx context.Context, ws *workspace.Workspace, pkg *workspace.Package, version string, lastPublishedAt *time.Time) (string, bool, error) {
	publishRelevant := make(map[string]bool, len(pkg.Deps))
	for _, d := range pkg.Deps {
		publishRelevant[d] = true
	}

	req := publisher.Request{
		Name:                   pkg.Name,
		Version:                version,
		ManifestPath:           pkg.ManifestPath,
		CargoExe:               o.CargoExe,
		TargetDir:              o.Cfg.TargetDir,
		Verify:                 o.verifyEnabled(pkg.Name),
		PublishRelevantDeps:    publishRelevant,
		RegistryName:           o.Cfg.Registry,
		RegistryToken:          o.Cfg.RegistryToken,
		Registry:               o.Registry,
		AfterPublishDelay:      o.Cfg.AfterPublishDelay,
		LastPublishedAt:        lastPublishedAt,
		ClearCargoHome:         o.Cfg.ClearCargoHome,
		PostPublishCleanupGlob: o.Cfg.PostPublishCleanupGlob,
		CommittedFile:          o.Cfg.CommittedFile,
	}
	if o.Cfg.IndexURL != "" && o.Cfg.IndexRepository != "" {
		req.IndexURL = o.Cfg.IndexURL
		req.ResolveIndexHeadSHA = o.resolveIndexHeadSHA
	}

	if err := publisher.Publish(ctx, req); err != nil {
		return "", false, err
	}
	if err := o.propagateVersion(ws, pkg.Name, version); err != nil {
		return "", false, err
	}
	return version, true, nil
}

// changeLevel resolves the Breaking/Compatible selector for pkg: an
// explicit override wins, otherwise it is propagated from the levels
// already assigned to pkg's own publish-relevant dependencies earlier in
// this run (spec.md §4.5).
func (o *Orchestrator) changeLevel(pkg *workspace.Package, levels map[string]semverpolicy.ChangeLevel) semverpolicy.ChangeLevel {
	if slices.Contains(o.Cfg.CratesToBumpMajorly, pkg.Name) {
		return semverpolicy.Breaking
	}
	if slices.Contains(o.Cfg.CratesToBumpCompatibly, pkg.Name) {
		return semverpolicy.Compatible
	}
	var depLevels []semverpolicy.ChangeLevel
	for _, dep := range pkg.Deps {
		if l, ok := levels[dep]; ok {
			depLevels = append(depLevels, l)
		}
	}
	return semverpolicy.Propagate(depLevels)
}

// verifyEnabled resolves spec.md §6's verify_from/verify_only/verify_none
// selector for name.
func (o *Orchestrator) verifyEnabled(name string) bool {
	if o.Cfg.VerifyNone {
		return false
	}
	if len(o.Cfg.VerifyOnly) > 0 {
		return slices.Contains(o.Cfg.VerifyOnly, name)
	}
	if o.Cfg.VerifyFrom == "" {
		return false
	}
	fromIdx := indexOf(o.publishOrder, o.Cfg.VerifyFrom)
	nameIdx := indexOf(o.publishOrder, name)
	if fromIdx < 0 || nameIdx < 0 {
		return false
	}
	return nameIdx >= fromIdx
}

// resolveIndexHeadSHA opens (once) and fetches the configured index
// repository, returning its current default-branch hash for
// internal/publisher's AwaitingRegistryIndex poll.
func (o *Orchestrator) resolveIndexHeadSHA(ctx context.Context) (string, error) {
	if o.indexRepo == nil {
		repo, err := gitrepo.CloneOrOpen(ctx, filepath.Join(o.Cfg.WorkRoot, "index-repo"), o.Cfg.IndexRepository)
		if err != nil {
			return "", err
		}
		o.indexRepo = repo
	}
	if err := gitrepo.Fetch(ctx, o.indexRepo); err != nil {
		return "", err
	}
	branch, err := gitrepo.DefaultBranch(o.indexRepo)
	if err != nil {
		return "", err
	}
	return gitrepo.RemoteBranchHash(o.indexRepo, branch)
}

func setManifestVersion(manifestPath, version string) error {
	doc, err := manifest.Read(manifestPath)
	if err != nil {
		return err
	}
	if err := doc.SetPackageField("version", version); err != nil {
		return err
	}
	return doc.Write()
}

func nonYankedVersionStrings(versions []registryapi.VersionInfo) []string {
	var out []string
	for _, v := range versions {
		if !v.Yanked {
			out = append(out, v.Version)
		}
	}
	return out
}

func versionStrings(versions []registryapi.VersionInfo) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.Version)
	}
	return out
}

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
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/wsrelease/wsrelease/internal/checkpoint"
	"github.com/wsrelease/wsrelease/internal/github"
	"github.com/wsrelease/wsrelease/internal/gitrepo"
	"github.com/wsrelease/wsrelease/internal/workspace"
)

// finalizeForPullRequest implements spec.md §4.8 step 9: reset to the
// run-start snapshot, discarding every edit made during the run, then
// re-apply only the final version numbers (own version plus every
// cross-reference the run would otherwise have left as a trail of
// intermediate edits), producing a minimal, reviewable diff that is then
// committed. When Push is also set, that commit is pushed to a new branch
// and opened as a pull request.
func (o *Orchestrator) finalizeForPullRequest(ctx context.Context, snapshot string, ws *workspace.Workspace, processed map[string]string) error {
	before := map[string]string{}
	for name := range processed {
		pkg, ok := ws.Packages[name]
		if !ok {
			continue
		}
		if contents, err := os.ReadFile(pkg.ManifestPath); err == nil {
			before[pkg.ManifestPath] = string(contents)
		}
	}

	if err := checkpoint.RestoreSnapshot(ctx, o.Repo, snapshot); err != nil {
		return fmt.Errorf("resetting to pre-run snapshot: %w", err)
	}

	for name, version := range processed {
		pkg, ok := ws.Packages[name]
		if !ok {
			continue
		}
		if err := setManifestVersion(pkg.ManifestPath, version); err != nil {
			return fmt.Errorf("reapplying version for %s: %w", name, err)
		}
	}
	for name, version := range processed {
		if err := o.propagateVersion(ws, name, version); err != nil {
			return fmt.Errorf("reapplying cross-references for %s: %w", name, err)
		}
	}
	if err := o.updateLockfile(ctx); err != nil {
		return fmt.Errorf("refreshing lockfile: %w", err)
	}

	diff, err := o.describeVersionDiff(before)
	if err != nil {
		return err
	}

	if _, err := gitrepo.AddAll(ctx, o.Repo); err != nil {
		return err
	}
	if err := gitrepo.Commit(ctx, o.Repo, "chore: publish workspace versions"); err != nil {
		return err
	}

	if !o.Cfg.Push {
		return nil
	}
	return o.openPullRequest(ctx, diff)
}

// describeVersionDiff renders a unified diff per manifest file changed
// between before (captured pre-reset) and the manifest's contents after
// re-applying the final versions.
func (o *Orchestrator) describeVersionDiff(before map[string]string) (string, error) {
	var sections []string
	for path, oldContents := range before {
		newContents, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		if string(newContents) == oldContents {
			continue
		}
		unified := difflib.UnifiedDiff{
			A:        difflib.SplitLines(oldContents),
			B:        difflib.SplitLines(string(newContents)),
			FromFile: path,
			ToFile:   path,
			Context:  3,
			Eol:      "\n",
		}
		text, err := difflib.GetUnifiedDiffString(unified)
		if err != nil {
			return "", fmt.Errorf("generating diff for %s: %w", path, err)
		}
		sections = append(sections, text)
	}
	return strings.Join(sections, "\n"), nil
}

func (o *Orchestrator) openPullRequest(ctx context.Context, diff string) error {
	client := o.GitHub
	if client == nil {
		c, err := github.NewClient(o.Cfg.GitHubToken)
		if err != nil {
			return fmt.Errorf("creating GitHub client: %w", err)
		}
		client = c
		o.GitHub = client
	}

	base, err := gitrepo.DefaultBranch(o.Repo)
	if err != nil {
		return fmt.Errorf("resolving base branch: %w", err)
	}
	branch := fmt.Sprintf("wsrelease-publish-%s", time.Now().UTC().Format("20060102T150405Z"))
	if err := gitrepo.PushBranch(ctx, o.Repo, branch, o.Cfg.GitHubToken); err != nil {
		return fmt.Errorf("pushing publish branch: %w", err)
	}

	body := "Workspace publish run. Final version numbers below.\n\n```diff\n" + diff + "\n```"
	_, err = checkpoint.OpenPullRequest(ctx, o.Repo, client, branch, base, "chore: publish workspace versions", body)
	return err
}

// updateLockfile runs the packaging tool's lockfile-refresh command so the
// re-applied version numbers are reflected there too.
func (o *Orchestrator) updateLockfile(ctx context.Context) error {
	manifestPath := filepath.Join(o.Repo.Dir, "Cargo.toml")
	cmd := exec.CommandContext(ctx, o.CargoExe, "update", "--manifest-path", manifestPath, "--workspace")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%v: %w: %s", cmd, err, out)
	}
	return nil
}

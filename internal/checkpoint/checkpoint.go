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

// Package checkpoint brackets a mutating phase of a workspace publish run
// with git commits, so the phase's edits can be isolated by diffing the pair
// and, for a for_pull_request run, discarded by resetting back to the
// snapshot taken before the run started.
package checkpoint

import (
	"context"
	"fmt"
	"strings"

	"github.com/wsrelease/wsrelease/internal/github"
	"github.com/wsrelease/wsrelease/internal/gitrepo"
)

// WithCheckpoint commits any dirty worktree state in repo before and after
// running fn, labeling each commit with label. Either commit is skipped if
// the worktree is already clean at that point (e.g. fn performed no
// filesystem edits). Mirrors original checkpoint.rs's
// with_save_checkpoint: a before/after commit pair isolates exactly the
// phase's edits so the pair can be diffed or reverted later.
func WithCheckpoint(ctx context.Context, repo *gitrepo.Repo, label string, fn func() error) error {
	if err := commitIfDirty(ctx, repo, fmt.Sprintf("chore(checkpoint): before %s", label)); err != nil {
		return fmt.Errorf("checkpoint before %s: %w", label, err)
	}
	if err := fn(); err != nil {
		return err
	}
	if err := commitIfDirty(ctx, repo, fmt.Sprintf("chore(checkpoint): after %s", label)); err != nil {
		return fmt.Errorf("checkpoint after %s: %w", label, err)
	}
	return nil
}

func commitIfDirty(ctx context.Context, repo *gitrepo.Repo, msg string) error {
	clean, err := gitrepo.IsClean(ctx, repo)
	if err != nil {
		return err
	}
	if clean {
		return nil
	}
	if _, err := gitrepo.AddAll(ctx, repo); err != nil {
		return err
	}
	return gitrepo.Commit(ctx, repo, msg)
}

// Snapshot records repo's current HEAD so a later run can be reset back to
// it. Taken once at the start of an orchestrator run, per spec.md §4.8
// step 1.
func Snapshot(ctx context.Context, repo *gitrepo.Repo) (string, error) {
	return gitrepo.HeadHash(ctx, repo)
}

// RestoreSnapshot hard-resets repo's working tree and branch back to
// snapshot, discarding every checkpoint commit made since. Used by
// for_pull_request mode (spec.md §4.8 step 9) to produce a minimal diff:
// the caller re-applies only the final version numbers after this call.
func RestoreSnapshot(ctx context.Context, repo *gitrepo.Repo, snapshot string) error {
	return gitrepo.ResetToCommit(ctx, repo, snapshot)
}

// OpenPullRequest identifies repo's hosting GitHub repository from its
// configured remote and opens a pull request from remoteBranch into base.
// Used when for_pull_request is combined with push: the checkpoint
// collaborator owns both the git state and the resulting review request.
func OpenPullRequest(ctx context.Context, repo *gitrepo.Repo, client *github.Client, remoteBranch, base, title, body string) (*github.PullRequestMetadata, error) {
	remoteURL, err := gitrepo.RemoteURL(repo)
	if err != nil {
		return nil, fmt.Errorf("resolving remote for pull request: %w", err)
	}
	ghRepo, err := github.ParseAnyRemote(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("resolving remote for pull request: %w", err)
	}
	return client.CreatePullRequest(ctx, ghRepo, remoteBranch, base, title, body)
}

// DescribeManifestChange renders a one-line citation of the commit at which
// path last changed. Returns "" if path has no recorded change since
// sinceCommit.
func DescribeManifestChange(ctx context.Context, repo *gitrepo.Repo, path, sinceCommit string) (string, error) {
	commits, err := gitrepo.GetCommitsForPathsSinceCommit(repo, []string{path}, sinceCommit)
	if err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", nil
	}
	latest := commits[0]
	summary := strings.SplitN(strings.TrimSpace(latest.Message), "\n", 2)[0]
	if cc, err := gitrepo.ParseCommit(latest.Message, latest.Hash.String()); err == nil && cc != nil {
		summary = cc.Description
	}
	return fmt.Sprintf("this dependency's manifest changed at commit %s (%s)", latest.Hash.String(), summary), nil
}

// Copyright 2024 Google LLC
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

// Package gitrepo provides operations on git repos.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// Repo represents a git repository.
type Repo struct {
	Dir  string
	repo *git.Repository
}

// CloneOrOpen provides access to a Git repository.
//
// If a repository already exists at the specified directory path (dirpath),
// it opens and provides access to that repository.
//
// Otherwise, it clones the repository from the given URL (repoURL) and saves it
// to the specified directory path (dirpath).
func CloneOrOpen(ctx context.Context, dirpath, repoURL string) (*Repo, error) {
	slog.Info(fmt.Sprintf("Cloning %q to %q", repoURL, dirpath))

	_, err := os.Stat(dirpath)
	if err == nil {
		return Open(ctx, dirpath)
	}
	if os.IsNotExist(err) {
		return Clone(ctx, dirpath, repoURL)
	}
	return nil, err
}

// Clone downloads a copy of a Git repository from repoURL and saves it to the
// specified directory at dirpath.
func Clone(ctx context.Context, dirpath, repoURL string) (*Repo, error) {
	options := &git.CloneOptions{
		URL:           repoURL,
		ReferenceName: plumbing.HEAD,
		SingleBranch:  true,
		Tags:          git.AllTags,
		// .NET uses submodules for conformance tests.
		// (There may be other examples too.)
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}
	if ci := os.Getenv("CI"); ci == "" {
		options.Progress = os.Stdout // When not a CI build, output progress.
	}

	repo, err := git.PlainClone(dirpath, false, options)
	if err != nil {
		return nil, err
	}
	return &Repo{
		Dir:  dirpath,
		repo: repo,
	}, nil
}

// Open provides access to a Git repository that exists at dirpath.
func Open(ctx context.Context, dirpath string) (*Repo, error) {
	repo, err := git.PlainOpen(dirpath)
	if err != nil {
		return nil, err
	}
	return &Repo{
		Dir:  dirpath,
		repo: repo,
	}, nil
}

func AddAll(ctx context.Context, repo *Repo) (git.Status, error) {
	worktree, err := repo.repo.Worktree()
	if err != nil {
		return git.Status{}, err
	}
	err = worktree.AddWithOptions(&git.AddOptions{All: true})
	if err != nil {
		return git.Status{}, err
	}
	return worktree.Status()
}

// returns an error if there is nothing to commit
func Commit(ctx context.Context, repo *Repo, msg string) error {
	worktree, err := repo.repo.Worktree()
	if err != nil {
		return err
	}

	status, err := worktree.Status()
	if err != nil {
		return err
	}
	if status.IsClean() {
		return fmt.Errorf("no modifications to commit")
	}
	commit, err := worktree.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "wsrelease",
			Email: "noreply-wsrelease@invalid",
			When:  time.Now(),
		},
	})
	if err != nil {
		return err
	}

	// Log commit object, if enabled
	if slog.Default().Enabled(ctx, slog.LevelInfo.Level()) {
		obj, err := repo.repo.CommitObject(commit)
		if err != nil {
			return err
		}
		slog.Info(fmt.Sprint(obj))
	}
	return nil
}

// HeadHash returns the hex hash of repo's current HEAD commit, suitable for
// passing back into Checkout or ResetToCommit (e.g. the run-start snapshot
// the orchestrator takes before a for_pull_request run).
func HeadHash(ctx context.Context, repo *Repo) (string, error) {
	headRef, err := repo.repo.Head()
	if err != nil {
		return "", err
	}
	return headRef.Hash().String(), nil
}

func IsClean(ctx context.Context, repo *Repo) (bool, error) {
	worktree, err := repo.repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := worktree.Status()
	if err != nil {
		return false, err
	}

	return status.IsClean(), nil
}

func ResetHard(ctx context.Context, repo *Repo) error {
	worktree, err := repo.repo.Worktree()
	if err != nil {
		return err
	}
	return worktree.Reset(&git.ResetOptions{Mode: git.HardReset})
}

// ResetToCommit hard-resets repo's current branch and worktree to commit,
// mirroring `git reset --hard <commit>`. Used by internal/checkpoint to
// restore the working tree to its pre-run snapshot for for_pull_request's
// minimal-diff mode.
func ResetToCommit(ctx context.Context, repo *Repo, commit string) error {
	headRef, err := repo.repo.Head()
	if err != nil {
		return err
	}
	hash := plumbing.NewHash(commit)
	newRef := plumbing.NewHashReference(headRef.Name(), hash)
	if err := repo.repo.Storer.SetReference(newRef); err != nil {
		return err
	}
	worktree, err := repo.repo.Worktree()
	if err != nil {
		return err
	}
	return worktree.Reset(&git.ResetOptions{Commit: hash, Mode: git.HardReset})
}

// DefaultBranch returns the short name of the branch repo's HEAD currently
// points at (e.g. "main"), as established by the branch PlainClone checked
// out. Used by the index-visibility poll to learn which remote-tracking ref
// to watch after Fetch.
func DefaultBranch(repo *Repo) (string, error) {
	headRef, err := repo.repo.Head()
	if err != nil {
		return "", err
	}
	return headRef.Name().Short(), nil
}

// Fetch updates repo's remote-tracking refs from its origin remote.
// git.NoErrAlreadyUpToDate is not treated as an error.
func Fetch(ctx context.Context, repo *Repo) error {
	err := repo.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

// RemoteBranchHash returns the hash of origin's current branch ref, after a
// Fetch has refreshed it. Used to re-resolve the index repository's HEAD
// commit on each poll of internal/publisher's AwaitingRegistryIndex step.
func RemoteBranchHash(repo *Repo, branch string) (string, error) {
	ref, err := repo.repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}

// HeadMessage returns the commit message of repo's current HEAD commit.
func HeadMessage(ctx context.Context, repo *Repo) (string, error) {
	headRef, err := repo.repo.Head()
	if err != nil {
		return "", err
	}
	commit, err := repo.repo.CommitObject(headRef.Hash())
	if err != nil {
		return "", err
	}
	return commit.Message, nil
}

func PrintStatus(ctx context.Context, repo *Repo) error {
	worktree, err := repo.repo.Worktree()
	if err != nil {
		return err
	}

	status, err := worktree.Status()
	if err != nil {
		return err
	}

	if status.IsClean() {
		slog.Info("git status: No modifications found.")
		return nil
	}

	var staged []string
	for path, file := range status {
		switch file.Staging {
		case git.Added:
			staged = append(staged, fmt.Sprintf("  A %s", path))
		case git.Modified:
			staged = append(staged, fmt.Sprintf("  M %s", path))
		case git.Deleted:
			staged = append(staged, fmt.Sprintf("  D %s", path))
		}
	}
	if len(staged) > 0 {
		slog.Info(fmt.Sprintf("git status: Staged Changes\n%s", strings.Join(staged, "\n")))
	}

	var notStaged []string
	for path, file := range status {
		switch file.Worktree {
		case git.Untracked:
			notStaged = append(notStaged, fmt.Sprintf("  ? %s", path))
		case git.Modified:
			notStaged = append(notStaged, fmt.Sprintf("  M %s", path))
		case git.Deleted:
			notStaged = append(notStaged, fmt.Sprintf("  D %s", path))
		}
	}
	if len(notStaged) > 0 {
		slog.Info(fmt.Sprintf("git status: Unstaged Changes\n%s", strings.Join(notStaged, "\n")))
	}

	return nil
}

// GetCommitsForPathsSinceCommit returns the commits that change any of paths,
// stopping at sinceCommit (which is not included in the results). The
// returned commits are ordered such that the most recent commit is first.
// Used by internal/checkpoint.DescribeManifestChange to cite the commit at
// which a manifest last changed.
func GetCommitsForPathsSinceCommit(repo *Repo, paths []string, sinceCommit string) ([]object.Commit, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths specified")
	}

	commits := []object.Commit{}
	finalHash := plumbing.NewHash(sinceCommit)
	logIterator, err := repo.repo.Log(&git.LogOptions{Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, err
	}

	// Sentinel "error" - this can be replaced using LogOptions.To when that's available.
	var errStopIterating = fmt.Errorf("fake error to stop iterating")
	err = logIterator.ForEach(func(commit *object.Commit) error {
		if commit.Hash == finalHash {
			return errStopIterating
		}

		// Skip any commit with multiple parents. We shouldn't see this
		// as we don't use merge commits.
		if commit.NumParents() != 1 {
			return nil
		}

		parentCommit, err := commit.Parent(0)
		if err != nil {
			return err
		}
		for _, path := range paths {
			changed, err := pathChangedBetween(commit, parentCommit, path)
			if err != nil {
				return err
			}
			if changed {
				commits = append(commits, *commit)
				break
			}
		}
		return nil
	})
	if err != nil && err != errStopIterating {
		return nil, err
	}
	return commits, nil
}

// pathChangedBetween reports whether path's tree entry differs between
// commit and parentCommit, treating a path absent from commit's tree as
// unchanged and a path newly present (absent from parentCommit's tree) as
// changed.
func pathChangedBetween(commit, parentCommit *object.Commit, path string) (bool, error) {
	currentTree, err := commit.Tree()
	if err != nil {
		return false, err
	}
	currentEntry, err := currentTree.FindEntry(path)
	if err != nil {
		return false, nil
	}
	parentTree, err := parentCommit.Tree()
	if err != nil {
		return false, err
	}
	parentEntry, err := parentTree.FindEntry(path)
	if err != nil {
		return true, nil
	}
	return currentEntry.Hash != parentEntry.Hash, nil
}

// Creates a branch with the given name in the default remote.
func PushBranch(ctx context.Context, repo *Repo, remoteBranch string, accessToken string) error {
	headRef, err := repo.repo.Head()
	if err != nil {
		return err
	}
	auth := http.BasicAuth{
		Username: "Ignored",
		Password: accessToken,
	}
	refFrom := headRef.Name().String()
	refTo := fmt.Sprintf("refs/heads/%s", remoteBranch)
	refSpec := config.RefSpec(fmt.Sprintf("%s:%s", refFrom, refTo))
	pushOptions := git.PushOptions{
		RefSpecs: []config.RefSpec{refSpec},
		Auth:     &auth,
	}

	slog.Info(fmt.Sprintf("Pushing to branch %s", remoteBranch))
	return repo.repo.Push(&pushOptions)
}

// RemoteURL returns the URL of repo's single configured remote, used by the
// caller to identify the hosting GitHub repository for pull request creation.
func RemoteURL(repo *Repo) (string, error) {
	remotes, err := repo.repo.Remotes()
	if err != nil {
		return "", err
	}
	if len(remotes) != 1 {
		return "", fmt.Errorf("expected a single remote, found %d", len(remotes))
	}
	urls := remotes[0].Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %q has no URLs", remotes[0].Config().Name)
	}
	return urls[0], nil
}

func Checkout(ctx context.Context, repo *Repo, commit string) error {
	worktree, err := repo.repo.Worktree()
	if err != nil {
		return err
	}
	hash := plumbing.NewHash(commit)
	checkoutOptions := git.CheckoutOptions{
		Hash: hash,
	}
	return worktree.Checkout(&checkoutOptions)
}

// ListTrackedFiles returns the path of every file tracked at HEAD, relative
// to the repository root. Used by the workspace loader's fallback discovery
// path when the packaging tool's own metadata command fails.
func ListTrackedFiles(ctx context.Context, repo *Repo) ([]string, error) {
	headRef, err := repo.repo.Head()
	if err != nil {
		return nil, err
	}
	commit, err := repo.repo.CommitObject(headRef.Hash())
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	var files []string
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err != nil {
			break
		}
		if !entry.Mode.IsFile() {
			continue
		}
		files = append(files, name)
	}
	return files, nil
}

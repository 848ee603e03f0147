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

package gitrepo

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func newTestRepo(t *testing.T) (*Repo, string) {
	t.Helper()
	repoDir := t.TempDir()
	if _, err := git.PlainInit(repoDir, false); err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	repo, err := Open(context.Background(), repoDir)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", repoDir, err)
	}
	return repo, repoDir
}

func writeAndCommit(t *testing.T, repo *Repo, repoDir, name, contents, msg string) string {
	t.Helper()
	if err := os.WriteFile(repoDir+"/"+name, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := AddAll(context.Background(), repo); err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if err := Commit(context.Background(), repo, msg); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	hash, err := HeadHash(context.Background(), repo)
	if err != nil {
		t.Fatalf("HeadHash() error = %v", err)
	}
	return hash
}

func TestCommitAndIsClean(t *testing.T) {
	repo, repoDir := newTestRepo(t)
	ctx := context.Background()

	if err := Commit(ctx, repo, "nothing to commit"); err == nil {
		t.Error("Commit() on a clean worktree expected an error")
	}

	writeAndCommit(t, repo, repoDir, "file.txt", "hello", "add file")

	clean, err := IsClean(ctx, repo)
	if err != nil {
		t.Fatalf("IsClean() error = %v", err)
	}
	if !clean {
		t.Error("IsClean() = false after committing, want true")
	}

	if err := os.WriteFile(repoDir+"/file.txt", []byte("changed"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	clean, err = IsClean(ctx, repo)
	if err != nil {
		t.Fatalf("IsClean() error = %v", err)
	}
	if clean {
		t.Error("IsClean() = true after modifying a tracked file, want false")
	}
}

func TestResetToCommitAndHeadMessage(t *testing.T) {
	repo, repoDir := newTestRepo(t)
	ctx := context.Background()

	firstHash := writeAndCommit(t, repo, repoDir, "a.txt", "a", "first")
	writeAndCommit(t, repo, repoDir, "b.txt", "b", "second")

	msg, err := HeadMessage(ctx, repo)
	if err != nil {
		t.Fatalf("HeadMessage() error = %v", err)
	}
	if !strings.HasPrefix(msg, "second") {
		t.Errorf("HeadMessage() = %q, want prefix %q", msg, "second")
	}

	if err := ResetToCommit(ctx, repo, firstHash); err != nil {
		t.Fatalf("ResetToCommit() error = %v", err)
	}
	if _, err := os.Stat(repoDir + "/b.txt"); !os.IsNotExist(err) {
		t.Errorf("b.txt still present after ResetToCommit to the first commit")
	}
	msg, err = HeadMessage(ctx, repo)
	if err != nil {
		t.Fatalf("HeadMessage() error = %v", err)
	}
	if !strings.HasPrefix(msg, "first") {
		t.Errorf("HeadMessage() after reset = %q, want prefix %q", msg, "first")
	}
}

func TestGetCommitsForPathsSinceCommit(t *testing.T) {
	tests := []struct {
		name            string
		filePaths       []string
		messages        []string
		inputPaths      []string
		expectedCommits int
		wantErr         bool
	}{
		{
			name:       "no input paths",
			filePaths:  []string{"local/first", "local/second", "local/third"},
			messages:   []string{"first commit", "2nd commit", "3rd commit"},
			inputPaths: []string{},
			wantErr:    true,
		},
		{
			name:            "matches a subset of paths",
			filePaths:       []string{"local/first", "local/second", "local/third"},
			messages:        []string{"first commit", "2nd commit", "3rd commit"},
			inputPaths:      []string{"local/first", "local/third"},
			expectedCommits: 2,
		},
		{
			name:            "matches no paths",
			filePaths:       []string{"local/first", "local/second", "local/third"},
			messages:        []string{"first commit", "2nd commit", "3rd commit"},
			inputPaths:      []string{"local/zero"},
			expectedCommits: 0,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			repoDir := t.TempDir()
			localRepo, err := git.PlainInit(repoDir, false)
			if err != nil {
				t.Fatalf("PlainInit() error = %v", err)
			}
			worktree, err := localRepo.Worktree()
			if err != nil {
				t.Fatalf("Worktree() error = %v", err)
			}
			firstCommit, err := worktree.Commit("empty commit", &git.CommitOptions{
				AllowEmptyCommits: true,
				Author: &object.Signature{
					Name:  "test-user",
					Email: "test@email.com",
					When:  time.Now(),
				},
			})
			if err != nil {
				t.Fatalf("Commit() error = %v", err)
			}

			parent := firstCommit
			for i := range test.filePaths {
				absDir := strings.Join([]string{repoDir, test.filePaths[i]}, "/")
				if err := os.MkdirAll(absDir, 0o755); err != nil {
					t.Fatalf("MkdirAll() error = %v", err)
				}
				f, err := os.Create(strings.Join([]string{absDir, "file.txt"}, "/"))
				if err != nil {
					t.Fatalf("Create() error = %v", err)
				}
				f.Close()
				if _, err := worktree.Add(test.filePaths[i] + "/file.txt"); err != nil {
					t.Fatalf("Add() error = %v", err)
				}
				current, err := worktree.Commit(test.messages[i], &git.CommitOptions{
					Author: &object.Signature{
						Name:  "test-user",
						Email: "test@email.com",
						When:  time.Now(),
					},
					Parents: []plumbing.Hash{parent},
				})
				if err != nil {
					t.Fatalf("Commit() error = %v", err)
				}
				parent = current
			}

			repo, err := Open(context.Background(), repoDir)
			if err != nil {
				t.Fatalf("Open(%s) error = %v", repoDir, err)
			}

			commits, err := GetCommitsForPathsSinceCommit(repo, test.inputPaths, firstCommit.String())
			if (err != nil) != test.wantErr {
				t.Fatalf("GetCommitsForPathsSinceCommit() error = %v, wantErr %v", err, test.wantErr)
			}
			if test.wantErr {
				return
			}
			if len(commits) != test.expectedCommits {
				t.Errorf("GetCommitsForPathsSinceCommit(%v) got %d commit(s), want %d",
					test.inputPaths, len(commits), test.expectedCommits)
			}
		})
	}
}

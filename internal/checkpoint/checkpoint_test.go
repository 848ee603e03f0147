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

package checkpoint

import (
	"context"
	"os"
	"testing"

	"github.com/go-git/go-git/v5"

	"github.com/wsrelease/wsrelease/internal/gitrepo"
)

func newTestRepo(t *testing.T) (*gitrepo.Repo, string) {
	t.Helper()
	dir := t.TempDir()
	if _, err := git.PlainInit(dir, false); err != nil {
		t.Fatalf("PlainInit() error = %v", err)
	}
	repo, err := gitrepo.Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", dir, err)
	}
	return repo, dir
}

func TestWithCheckpointCommitsEachDirtyPhase(t *testing.T) {
	ctx := context.Background()
	repo, dir := newTestRepo(t)

	if err := os.WriteFile(dir+"/seed.txt", []byte("seed"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := WithCheckpoint(ctx, repo, "seed", func() error { return nil }); err != nil {
		t.Fatalf("WithCheckpoint() error = %v", err)
	}
	firstMsg, err := gitrepo.HeadMessage(ctx, repo)
	if err != nil {
		t.Fatalf("HeadMessage() error = %v", err)
	}
	if firstMsg != "chore(checkpoint): before seed" {
		t.Errorf("HeadMessage() = %q, want the before-commit", firstMsg)
	}

	if err := WithCheckpoint(ctx, repo, "mutate", func() error {
		return os.WriteFile(dir+"/seed.txt", []byte("mutated"), 0o644)
	}); err != nil {
		t.Fatalf("WithCheckpoint() error = %v", err)
	}
	afterMsg, err := gitrepo.HeadMessage(ctx, repo)
	if err != nil {
		t.Fatalf("HeadMessage() error = %v", err)
	}
	if afterMsg != "chore(checkpoint): after mutate" {
		t.Errorf("HeadMessage() = %q, want the after-commit", afterMsg)
	}
}

func TestWithCheckpointPropagatesFnError(t *testing.T) {
	ctx := context.Background()
	repo, dir := newTestRepo(t)
	if err := os.WriteFile(dir+"/seed.txt", []byte("seed"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	wantErr := "boom"
	err := WithCheckpoint(ctx, repo, "fails", func() error {
		return errString(wantErr)
	})
	if err == nil || err.Error() != wantErr {
		t.Fatalf("WithCheckpoint() error = %v, want %q", err, wantErr)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

func TestSnapshotAndRestoreSnapshot(t *testing.T) {
	ctx := context.Background()
	repo, dir := newTestRepo(t)

	if err := os.WriteFile(dir+"/a.txt", []byte("a"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := gitrepo.AddAll(ctx, repo); err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if err := gitrepo.Commit(ctx, repo, "add a"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	snapshot, err := Snapshot(ctx, repo)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if err := os.WriteFile(dir+"/b.txt", []byte("b"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := gitrepo.AddAll(ctx, repo); err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if err := gitrepo.Commit(ctx, repo, "add b"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if err := RestoreSnapshot(ctx, repo, snapshot); err != nil {
		t.Fatalf("RestoreSnapshot() error = %v", err)
	}
	if _, err := os.Stat(dir + "/b.txt"); !os.IsNotExist(err) {
		t.Error("b.txt still present after RestoreSnapshot, want it gone")
	}
	if _, err := os.Stat(dir + "/a.txt"); err != nil {
		t.Errorf("a.txt missing after RestoreSnapshot: %v", err)
	}
}

func TestDescribeManifestChange(t *testing.T) {
	ctx := context.Background()
	repo, dir := newTestRepo(t)

	if err := os.WriteFile(dir+"/seed.txt", []byte("seed"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := gitrepo.AddAll(ctx, repo); err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if err := gitrepo.Commit(ctx, repo, "seed"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	sinceCommit, err := gitrepo.HeadHash(ctx, repo)
	if err != nil {
		t.Fatalf("HeadHash() error = %v", err)
	}

	if err := os.WriteFile(dir+"/Cargo.toml", []byte("[package]\nname=\"a\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := gitrepo.AddAll(ctx, repo); err != nil {
		t.Fatalf("AddAll() error = %v", err)
	}
	if err := gitrepo.Commit(ctx, repo, "bump version"); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	desc, err := DescribeManifestChange(ctx, repo, "Cargo.toml", sinceCommit)
	if err != nil {
		t.Fatalf("DescribeManifestChange() error = %v", err)
	}
	if desc == "" {
		t.Fatal("DescribeManifestChange() = \"\", want a description")
	}

	desc, err = DescribeManifestChange(ctx, repo, "missing.toml", sinceCommit)
	if err != nil {
		t.Fatalf("DescribeManifestChange() error = %v", err)
	}
	if desc != "" {
		t.Errorf("DescribeManifestChange() = %q, want \"\" for an unchanged path", desc)
	}
}

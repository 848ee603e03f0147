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
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadOrNewRunStateMissingFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")

	state, err := loadOrNewRunState(path)
	if err != nil {
		t.Fatalf("loadOrNewRunState() error = %v", err)
	}
	if len(state.Processed) != 0 {
		t.Errorf("Processed = %v, want empty", state.Processed)
	}
}

func TestRunStateSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")

	state := newRunState()
	state.Processed["foo"] = "1.2.3"
	state.Processed["bar"] = "0.1.0"
	state.LastPublishedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := state.save(path); err != nil {
		t.Fatalf("save() error = %v", err)
	}

	reloaded, err := loadOrNewRunState(path)
	if err != nil {
		t.Fatalf("loadOrNewRunState() error = %v", err)
	}
	if diff := cmp.Diff(state.Processed, reloaded.Processed); diff != "" {
		t.Errorf("Processed mismatch (-want +got):\n%s", diff)
	}
	if !reloaded.LastPublishedAt.Equal(state.LastPublishedAt) {
		t.Errorf("LastPublishedAt = %v, want %v", reloaded.LastPublishedAt, state.LastPublishedAt)
	}
}

func TestRunStateSaveOverwritesPreviousContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")

	first := newRunState()
	first.Processed["foo"] = "1.0.0"
	if err := first.save(path); err != nil {
		t.Fatalf("save() error = %v", err)
	}

	second := newRunState()
	second.Processed["foo"] = "2.0.0"
	if err := second.save(path); err != nil {
		t.Fatalf("save() error = %v", err)
	}

	reloaded, err := loadOrNewRunState(path)
	if err != nil {
		t.Fatalf("loadOrNewRunState() error = %v", err)
	}
	if reloaded.Processed["foo"] != "2.0.0" {
		t.Errorf("Processed[foo] = %q, want %q", reloaded.Processed["foo"], "2.0.0")
	}
}

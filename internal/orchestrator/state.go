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
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// runState is the resumable ledger of a publish run, persisted as YAML
// beside the packaging tool's scratch directory. It supplements spec.md
// §6's `start_from` flag (a user-supplied resume anchor) with an
// automatically maintained record of exactly which packages this run
// already finished, at which version, so a crash and restart with the same
// `-work-root` (where the state file lives) and `-start-from` does not
// re-publish a package the previous process already uploaded.
type runState struct {
	Processed       map[string]string `yaml:"processed"`
	LastPublishedAt time.Time         `yaml:"last_published_at"`
}

func newRunState() *runState {
	return &runState{Processed: map[string]string{}}
}

// loadOrNewRunState reads path if it exists, otherwise returns a fresh,
// empty state.
func loadOrNewRunState(path string) (*runState, error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return newRunState(), nil
	}
	if err != nil {
		return nil, err
	}
	state := newRunState()
	if err := yaml.Unmarshal(contents, state); err != nil {
		return nil, err
	}
	if state.Processed == nil {
		state.Processed = map[string]string{}
	}
	return state, nil
}

func (s *runState) save(path string) error {
	contents, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, contents, 0o644)
}

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

package semverpolicy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPropagate(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		name   string
		levels []ChangeLevel
		want   ChangeLevel
	}{
		{name: "no dependencies", levels: nil, want: Compatible},
		{name: "all compatible", levels: []ChangeLevel{Compatible, Compatible}, want: Compatible},
		{name: "one breaking dominates", levels: []ChangeLevel{Compatible, Breaking, Compatible}, want: Breaking},
	} {
		t.Run(test.name, func(t *testing.T) {
			if got := Propagate(test.levels); got != test.want {
				t.Errorf("Propagate(%v) = %v, want %v", test.levels, got, test.want)
			}
		})
	}
}

func TestMax(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		name          string
		versions      []string
		want          string
		wantErrSubstr string
	}{
		{name: "single version", versions: []string{"1.2.3"}, want: "1.2.3"},
		{name: "picks the largest", versions: []string{"1.2.3", "2.0.0", "1.9.9"}, want: "2.0.0"},
		{name: "no versions", versions: nil, wantErrSubstr: "no versions supplied"},
		{name: "invalid version", versions: []string{"not-a-version"}, wantErrSubstr: "invalid version"},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Max(test.versions...)
			if test.wantErrSubstr != "" {
				if err == nil {
					t.Fatalf("Max(%v) returned nil error, want one containing %q", test.versions, test.wantErrSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Max(%v) returned error: %v", test.versions, err)
			}
			if got != test.want {
				t.Errorf("Max(%v) = %q, want %q", test.versions, got, test.want)
			}
		})
	}
}

func TestAdjust(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		name        string
		current     string
		published   []string
		wantVersion string
		wantChanged bool
	}{
		{
			name:        "current is already the max",
			current:     "1.2.3",
			published:   []string{"1.0.0", "1.2.0"},
			wantVersion: "1.2.3",
			wantChanged: false,
		},
		{
			name:        "no published versions",
			current:     "1.2.3",
			published:   nil,
			wantVersion: "1.2.3",
			wantChanged: false,
		},
		{
			name:        "a published version is higher",
			current:     "1.2.3",
			published:   []string{"1.5.0"},
			wantVersion: "1.5.0",
			wantChanged: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, changed, err := Adjust(test.current, test.published)
			if err != nil {
				t.Fatalf("Adjust() returned an error: %v", err)
			}
			if changed != test.wantChanged {
				t.Errorf("Adjust() changed = %v, want %v", changed, test.wantChanged)
			}
			if diff := cmp.Diff(test.wantVersion, got); diff != "" {
				t.Errorf("Adjust() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, _, err := Adjust("not-a-version", nil); err == nil {
		t.Error("Adjust() with an invalid current version expected an error")
	}
}

func TestBump(t *testing.T) {
	t.Parallel()
	for _, test := range []struct {
		name        string
		current     string
		published   []string
		level       ChangeLevel
		wantVersion string
		wantChanged bool
	}{
		{
			name:        "no published versions, no prerelease",
			current:     "1.2.3",
			published:   nil,
			level:       Breaking,
			wantVersion: "1.2.3",
			wantChanged: false,
		},
		{
			name:        "no published versions, strips prerelease",
			current:     "1.2.3-beta.1",
			published:   nil,
			level:       Compatible,
			wantVersion: "1.2.3",
			wantChanged: true,
		},
		{
			name:        "compatible bump is a patch bump",
			current:     "1.2.3",
			published:   []string{"1.2.3"},
			level:       Compatible,
			wantVersion: "1.2.4",
			wantChanged: true,
		},
		{
			name:        "breaking bump pre-1.0 is a minor bump",
			current:     "0.2.3",
			published:   []string{"0.2.3"},
			level:       Breaking,
			wantVersion: "0.3.0",
			wantChanged: true,
		},
		{
			name:        "breaking bump post-1.0 is a major bump",
			current:     "1.2.3",
			published:   []string{"1.2.3"},
			level:       Breaking,
			wantVersion: "2.0.0",
			wantChanged: true,
		},
		{
			name:        "bump starts from the highest published version",
			current:     "1.2.3",
			published:   []string{"1.5.0"},
			level:       Compatible,
			wantVersion: "1.5.1",
			wantChanged: true,
		},
		{
			name:        "bump clears a prerelease on the base before bumping",
			current:     "1.2.3-beta.1",
			published:   []string{"1.2.3-beta.1"},
			level:       Compatible,
			wantVersion: "1.2.4",
			wantChanged: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, changed, err := Bump(test.current, test.published, test.level)
			if err != nil {
				t.Fatalf("Bump() returned an error: %v", err)
			}
			if changed != test.wantChanged {
				t.Errorf("Bump() changed = %v, want %v", changed, test.wantChanged)
			}
			if diff := cmp.Diff(test.wantVersion, got); diff != "" {
				t.Errorf("Bump() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, _, err := Bump("not-a-version", nil, Compatible); err == nil {
		t.Error("Bump() with an invalid current version expected an error")
	}
	if _, _, err := Bump("1.2.3", []string{"not-a-version"}, Compatible); err == nil {
		t.Error("Bump() with an invalid published version expected an error")
	}
}

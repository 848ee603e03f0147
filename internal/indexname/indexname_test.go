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

package indexname

import "testing"

func TestPath(t *testing.T) {
	for _, test := range []struct {
		name string
		want string
	}{
		{"a", "1/a"},
		{"ab", "2/ab"},
		{"abc", "3/a/abc"},
		{"fork-tree", "fo/rk/fork-tree"},
		{"sc-network", "sc/-n/sc-network"},
		{"ABC", "3/a/abc"},
	} {
		if got := Path(test.name); got != test.want {
			t.Errorf("Path(%q) = %q, want %q", test.name, got, test.want)
		}
	}
}

func TestURL(t *testing.T) {
	got := URL("https://index.example.com", "deadbeef", "fork-tree")
	want := "https://index.example.com/deadbeef/fo/rk/fork-tree"
	if got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

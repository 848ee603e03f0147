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

// Package indexname computes a package's path under the registry's
// prefix-derived index layout (spec.md §9 "Index path scheme"), mirroring
// the original crates_io.rs's cratesio_index_crate_path.
package indexname

import (
	"fmt"
)

// Path returns the crate name's path under the index: length 1 -> "1/n";
// length 2 -> "2/n"; length 3 -> "3/<n[0]>/n"; length >= 4 ->
// "<n[0:2]>/<n[2:4]>/n". The name is lowercased first, matching the
// registry's own case-insensitive index layout.
func Path(name string) string {
	n := lowerASCII(name)
	switch len(n) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("1/%s", n)
	case 2:
		return fmt.Sprintf("2/%s", n)
	case 3:
		return fmt.Sprintf("3/%c/%s", n[0], n)
	default:
		return fmt.Sprintf("%s/%s/%s", n[0:2], n[2:4], n)
	}
}

// URL builds the full index metadata URL for name at the index's current
// headSHA under baseURL, per spec.md §9's "optional index metadata URL"
// construction.
func URL(baseURL, headSHA, name string) string {
	return fmt.Sprintf("%s/%s/%s", baseURL, headSHA, Path(name))
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

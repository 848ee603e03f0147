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

package publisher

import "fmt"

// TransientNetworkExhaustedError reports that every retry attempt for a
// transient-network upload failure was used up (spec.md §4.7: up to 8
// attempts, the 9th fails the package). Implements spec.md §7's
// PublishTransientNetwork error kind once it becomes fatal.
type TransientNetworkExhaustedError struct {
	Package  string
	Attempts int
	Stderr   string
}

func (e *TransientNetworkExhaustedError) Error() string {
	return fmt.Sprintf("publishing %s: transient network error persisted after %d attempts: %s", e.Package, e.Attempts, e.Stderr)
}

// OtherFailureError reports an upload failure whose stderr matched neither
// the rate-limit nor the transient-network signature. Implements spec.md
// §7's PublishOtherFailure error kind; always fatal.
type OtherFailureError struct {
	Package string
	Stderr  string
	Err     error
}

func (e *OtherFailureError) Error() string {
	return fmt.Sprintf("publishing %s failed: %v\n%s", e.Package, e.Err, e.Stderr)
}

func (e *OtherFailureError) Unwrap() error { return e.Err }

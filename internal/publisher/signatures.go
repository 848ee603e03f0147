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

import "strings"

// RateLimitSignature is the stderr substring the registry emits when a
// publisher has exceeded its short-period crate-publish quota. The exit
// code cargo returns is not fine-grained enough to distinguish this from
// any other failure, so classification is done on the message text
// instead. See
// https://github.com/rust-lang/crates.io/blob/d240463e8c807b3c29248dec6bd31779f49dd424/src/util/errors/json.rs#L139-L146
const RateLimitSignature = "You have published too many crates"

// TransientNetworkSignature is the stderr substring emitted on a temporary
// DNS resolution failure during upload. Cargo's registry client is built on
// curl; see https://docs.rs/curl/latest/curl/struct.Error.html and
// https://curl.se/libcurl/c/libcurl-errors.html for the underlying error
// this message corresponds to.
const TransientNetworkSignature = "dns error: failed to lookup address information: Temporary failure in name resolution"

// uploadOutcome classifies a failed upload attempt's stderr, per spec.md
// §4.7's classification rule.
type uploadOutcome int

const (
	uploadFatal uploadOutcome = iota
	uploadRateLimited
	uploadTransientNetwork
)

func classifyUploadError(stderr string) uploadOutcome {
	switch {
	case strings.Contains(stderr, RateLimitSignature):
		return uploadRateLimited
	case strings.Contains(stderr, TransientNetworkSignature):
		return uploadTransientNetwork
	default:
		return uploadFatal
	}
}

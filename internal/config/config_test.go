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

package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNew(t *testing.T) {
	for _, test := range []struct {
		name    string
		envVars map[string]string
		want    Config
	}{
		{
			name: "all environment variables set",
			envVars: map[string]string{
				"CRATES_API":               "https://crates.example/api/v1",
				"WSRELEASE_GITHUB_TOKEN":   "gh_token",
				"WSRELEASE_REGISTRY":       "my-registry",
				"WSRELEASE_REGISTRY_TOKEN": "reg_token",
				"CARGO_TARGET_DIR":         "/tmp/target",
				"WSRELEASE_COMMITTED_FILE": "/tmp/committed",
			},
			want: Config{
				CratesAPI:     "https://crates.example/api/v1",
				GitHubToken:   "gh_token",
				Registry:      "my-registry",
				RegistryToken: "reg_token",
				TargetDir:     "/tmp/target",
				CommittedFile: "/tmp/committed",
			},
		},
		{
			name:    "no environment variables set",
			envVars: map[string]string{},
			want:    Config{},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			for k, v := range test.envVars {
				t.Setenv(k, v)
			}

			got := New()

			if diff := cmp.Diff(&test.want, got); diff != "" {
				t.Errorf("New() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	for _, test := range []struct {
		name      string
		cfg       Config
		wantValid bool
		wantErr   string
	}{
		{
			name:      "no workspace root",
			cfg:       Config{},
			wantValid: false,
			wantErr:   "workspace root not specified",
		},
		{
			name: "no crates api",
			cfg: Config{
				WorkspaceRoot: "/ws",
			},
			wantValid: false,
			wantErr:   "CRATES_API environment variable is required",
		},
		{
			name: "push without token",
			cfg: Config{
				WorkspaceRoot: "/ws",
				CratesAPI:     "https://crates.example/api/v1",
				Push:          true,
			},
			wantValid: false,
			wantErr:   "no GitHub token supplied for push",
		},
		{
			name: "push with token",
			cfg: Config{
				WorkspaceRoot: "/ws",
				CratesAPI:     "https://crates.example/api/v1",
				Push:          true,
				GitHubToken:   "tok",
			},
			wantValid: true,
		},
		{
			name: "index url without repository",
			cfg: Config{
				WorkspaceRoot: "/ws",
				CratesAPI:     "https://crates.example/api/v1",
				IndexURL:      "https://index.example",
			},
			wantValid: false,
			wantErr:   "index-url specified without index-repository",
		},
		{
			name: "multiple verify selectors",
			cfg: Config{
				WorkspaceRoot: "/ws",
				CratesAPI:     "https://crates.example/api/v1",
				VerifyFrom:    "a",
				VerifyNone:    true,
			},
			wantValid: false,
			wantErr:   "only one of verify-from, verify-only, verify-none may be set",
		},
		{
			name: "minimal valid config",
			cfg: Config{
				WorkspaceRoot: "/ws",
				CratesAPI:     "https://crates.example/api/v1",
			},
			wantValid: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			gotValid, err := test.cfg.IsValid()
			if gotValid != test.wantValid {
				t.Errorf("IsValid() got valid = %t, want %t", gotValid, test.wantValid)
			}
			if test.wantErr == "" {
				if err != nil {
					t.Errorf("IsValid() got unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != test.wantErr {
				t.Errorf("IsValid() got error = %v, want %q", err, test.wantErr)
			}
		})
	}
}

func TestParseNameValueFlag(t *testing.T) {
	dest, err := ParseNameValueFlag(nil, "foo=1.2.3")
	if err != nil {
		t.Fatalf("ParseNameValueFlag() error = %v", err)
	}
	if dest["foo"] != "1.2.3" {
		t.Errorf("ParseNameValueFlag() got %v, want foo=1.2.3", dest)
	}

	dest, err = ParseNameValueFlag(dest, "bar=2.0.0")
	if err != nil {
		t.Fatalf("ParseNameValueFlag() error = %v", err)
	}
	if dest["bar"] != "2.0.0" || dest["foo"] != "1.2.3" {
		t.Errorf("ParseNameValueFlag() got %v, want both entries merged", dest)
	}

	if _, err := ParseNameValueFlag(nil, "no-equals-sign"); err == nil {
		t.Error("ParseNameValueFlag() expected error for malformed input, got nil")
	}
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	if err := cfg.SetDefaults(); err != nil {
		t.Fatalf("SetDefaults() error = %v", err)
	}
	if cfg.WorkRoot == "" {
		t.Error("SetDefaults() left WorkRoot empty")
	}
}

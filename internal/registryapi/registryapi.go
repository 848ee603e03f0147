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

// Package registryapi is a hand-rolled net/http client for the package
// registry's HTTP API: the three endpoints spec.md §6 names (version
// existence, version listing, artifact download). The index metadata lookup
// used for post-publish index-visibility polling lives in internal/publisher.
package registryapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned by Exists/Versions/Download when the registry
// responds 404: a name or name+version that simply isn't there, distinct
// from a RegistryHTTPError (a genuine failure response).
var ErrNotFound = errors.New("not found in registry")

// RegistryHTTPError reports a non-2xx, non-404 response from the registry.
type RegistryHTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *RegistryHTTPError) Error() string {
	return fmt.Sprintf("registry request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Client talks to a package registry's HTTP API over the given base URL
// (e.g. "https://crates.io/api/v1").
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a Client for baseURL with a conservative request
// timeout; the registry itself, not the workspace, owns any retry policy,
// per spec.md §1's non-goal of "no transactional registry rollback" — this
// client makes one request and reports what happened.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// VersionInfo is one entry of a package's published-version history
// (spec.md's GLOSSARY "Previously published version").
type VersionInfo struct {
	Version string
	Yanked  bool
}

// Versions returns every previously published version of name, including
// yanked ones (the caller filters, per spec.md §4.5's "non-yanked" wording).
// A 404 is treated as "never published", not an error, mirroring the
// original `crate_versions`'s own NOT_FOUND-to-empty-slice handling.
func (c *Client) Versions(ctx context.Context, name string) ([]VersionInfo, error) {
	reqURL := fmt.Sprintf("%s/crates/%s/versions", c.BaseURL, url.PathEscape(name))
	resp, err := c.do(ctx, reqURL, "checking previous crate versions")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	var parsed struct {
		Versions []struct {
			Num    string `json:"num"`
			Yanked bool   `json:"yanked"`
		} `json:"versions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing versions response for %s: %w", name, err)
	}

	versions := make([]VersionInfo, 0, len(parsed.Versions))
	for _, v := range parsed.Versions {
		versions = append(versions, VersionInfo{Version: v.Num, Yanked: v.Yanked})
	}
	return versions, nil
}

// Exists reports whether name at version has been published (spec.md
// §4.4 step 2's registry existence check).
func (c *Client) Exists(ctx context.Context, name, version string) (bool, error) {
	reqURL := fmt.Sprintf("%s/crates/%s/%s", c.BaseURL, url.PathEscape(name), url.PathEscape(version))
	resp, err := c.do(ctx, reqURL, "checking if the crate exists")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

// Download fetches the registry's packaged artifact for name at version, for
// byte-comparison against a freshly materialized local artifact (spec.md
// §4.4 step 3). Returns ErrNotFound if the registry has no such artifact;
// the caller treats that as needs-publish, not a failure.
func (c *Client) Download(ctx context.Context, name, version string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/crates/%s/%s/download", c.BaseURL, url.PathEscape(name), url.PathEscape(version))
	resp, err := c.do(ctx, reqURL, "comparing local crate against the published crate")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading download response for %s %s: %w", name, version, err)
	}
	return body, nil
}

// do issues a GET with a descriptive User-Agent naming purpose, mirroring
// the original crates_io.rs's per-endpoint User-Agent strings (every request
// this tool makes identifies itself and why, so registry operators can trace
// unexpected load back to it). Returns ErrNotFound on a 404 response;
// otherwise a non-2xx response becomes a RegistryHTTPError.
func (c *Client) do(ctx context.Context, reqURL, purpose string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request to %s: %w", reqURL, err)
	}
	req.Header.Set("User-Agent", fmt.Sprintf("wsrelease (workspace publish engine) - %s", purpose))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", reqURL, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &RegistryHTTPError{URL: reqURL, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

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

package registryapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVersionsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got == "" {
			t.Errorf("request had no User-Agent header")
		}
		fmt.Fprint(w, `{"versions":[{"num":"1.0.0","yanked":false},{"num":"0.9.0","yanked":true}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Versions(context.Background(), "foo")
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	want := []VersionInfo{{Version: "1.0.0", Yanked: false}, {Version: "0.9.0", Yanked: true}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Versions() = %+v, want %+v", got, want)
	}
}

func TestVersionsNotFoundReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Versions(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Versions() = %+v, want empty", got)
	}
}

func TestExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/crates/foo/1.0.0" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	exists, err := c.Exists(context.Background(), "foo", "1.0.0")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false, want true")
	}

	exists, err = c.Exists(context.Background(), "foo", "9.9.9")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true, want false")
	}
}

func TestDownloadSuccess(t *testing.T) {
	payload := []byte("crate-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	got, err := c.Download(context.Background(), "foo", "1.0.0")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Download() = %q, want %q", got, payload)
	}
}

func TestDownloadNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Download(context.Background(), "foo", "1.0.0")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Download() error = %v, want ErrNotFound", err)
	}
}

func TestDownloadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Download(context.Background(), "foo", "1.0.0")
	var httpErr *RegistryHTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Download() error = %v, want *RegistryHTTPError", err)
	}
	if httpErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", httpErr.StatusCode)
	}
}

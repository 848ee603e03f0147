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

// Package manifest reads and rewrites a package manifest (Cargo.toml-shaped
// document) while preserving the formatting of everything it doesn't touch.
// Decoding (for decisions) goes through github.com/pelletier/go-toml/v2;
// writing edits go line-by-line against the original bytes, generalizing the
// single-line version splice rust_release/update_manifest.go uses to every
// dependency-table location and field this engine needs to rewrite.
package manifest

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ParseError reports that a manifest file could not be read as valid TOML.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ShapeError reports that a manifest parsed as TOML but a field this engine
// depends on had an unexpected shape (spec.md §9's `publish` field rule:
// empty array means "do not publish"; anything else non-bool/non-array is
// this error rather than a guess).
type ShapeError struct {
	Path  string
	Field string
	Msg   string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("manifest %s: field %q: %s", e.Path, e.Field, e.Msg)
}

// PackageInfo is the subset of a manifest's [package] table this engine
// reads and, for Readme/Description, may synthesize (spec.md §4.6).
type PackageInfo struct {
	Name              string
	Version           string
	ShouldBePublished bool
	Readme            string
	Description       string
}

// Document is a manifest file: its decoded [package] metadata plus the raw
// lines backing it, so that edits can be applied to the original text
// instead of a re-serialized tree.
type Document struct {
	Path  string
	Pkg   PackageInfo
	lines []string
}

type packageTable struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Publish     any    `toml:"publish"`
	Readme      string `toml:"readme"`
	Description string `toml:"description"`
}

type manifestRoot struct {
	Package *packageTable `toml:"package"`
}

// Read parses path as a manifest document.
func Read(path string) (*Document, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return parse(path, contents)
}

func parse(path string, contents []byte) (*Document, error) {
	var root manifestRoot
	if err := toml.Unmarshal(contents, &root); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	pkg := PackageInfo{ShouldBePublished: true}
	if root.Package != nil {
		pkg.Name = root.Package.Name
		pkg.Version = root.Package.Version
		pkg.Readme = root.Package.Readme
		pkg.Description = root.Package.Description
		shouldPublish, err := publishFieldToBool(path, root.Package.Publish)
		if err != nil {
			return nil, err
		}
		pkg.ShouldBePublished = shouldPublish
	}

	text := string(contents)
	lines := strings.Split(text, "\n")
	// strings.Split on a trailing-newline file leaves a final empty
	// element; drop it so line indices line up with write()'s rejoin.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return &Document{Path: path, Pkg: pkg, lines: lines}, nil
}

// publishFieldToBool implements spec.md §9's resolved open question: an
// absent field or `publish = true` means publish; `publish = false` or an
// empty registries array means do not publish; a non-empty array still
// means publish (to a restricted registry set, which this engine does not
// otherwise special-case); any other shape is a ShapeError.
func publishFieldToBool(path string, publish any) (bool, error) {
	switch v := publish.(type) {
	case nil:
		return true, nil
	case bool:
		return v, nil
	case []any:
		return len(v) > 0, nil
	default:
		return false, &ShapeError{Path: path, Field: "publish", Msg: fmt.Sprintf("unexpected type %T", v)}
	}
}

// Write persists the document's current lines back to its path, always
// terminating with a trailing newline.
func (d *Document) Write() error {
	content := strings.Join(d.lines, "\n")
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(d.Path, []byte(content), 0o644)
}

// Lines returns a copy of the document's current raw lines, for tests and
// callers that want to inspect the exact text an edit produced.
func (d *Document) Lines() []string {
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

// SetPackageField sets field = "value" within the document's [package]
// table, appending the line if the field is absent, and updates the
// in-memory PackageInfo so later reads of d.Pkg reflect the change. Used by
// spec.md §4.6 step 3 (synthetic description) and by the orchestrator to
// rewrite the package version. Only "readme" and "description" are mirrored
// into d.Pkg; any other field still edits the text but leaves d.Pkg
// unchanged.
func (d *Document) SetPackageField(field, value string) error {
	sections := findSections(d.lines)
	for _, sec := range sections {
		if len(sec.pathParts) != 1 || sec.pathParts[0] != "package" {
			continue
		}
		d.setFieldInSection(sec, field, value, nil)
		switch field {
		case "readme":
			d.Pkg.Readme = value
		case "description":
			d.Pkg.Description = value
		}
		return nil
	}
	return fmt.Errorf("manifest %s: no [package] table found", d.Path)
}

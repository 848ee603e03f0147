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

package manifest

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DependencyTableKind names one of the three dependency table flavors
// spec.md §3 recognizes. Order matches the original source's own
// ManifestDependencyKey enum (build, then normal, then dev).
type DependencyTableKind string

const (
	BuildDependencies DependencyTableKind = "build-dependencies"
	Dependencies      DependencyTableKind = "dependencies"
	DevDependencies   DependencyTableKind = "dev-dependencies"
)

// AllDependencyTableKinds returns the three kinds in the order edits are
// applied, for callers that must touch all of them uniformly.
func AllDependencyTableKinds() []DependencyTableKind {
	return []DependencyTableKind{BuildDependencies, Dependencies, DevDependencies}
}

// DependencyRef describes one resolved dependency entry, read structurally
// (not line-based) for decisions made by internal/workspace and
// internal/order.
type DependencyRef struct {
	// Name is the entry's logical name: the `package` field's value when
	// present (a rename), otherwise the table key.
	Name string
	// Path is the `path` field's value, or "" if the entry has none.
	Path string
	// TargetCfg is the `target.<cfg>` configuration string this entry was
	// found under, or "" for a top-level entry.
	TargetCfg string
}

// IsPathDependency reports whether ref resolves to another workspace member
// by path, rather than by registry lookup.
func (r DependencyRef) IsPathDependency() bool { return r.Path != "" }

type rawManifest struct {
	Dependencies      map[string]any            `toml:"dependencies"`
	DevDependencies   map[string]any            `toml:"dev-dependencies"`
	BuildDependencies map[string]any            `toml:"build-dependencies"`
	Target            map[string]map[string]any `toml:"target"`
}

// DependenciesOf returns every entry of kind found at the top level and
// under every target.<cfg> table (spec.md §4.1's six locations, minus the
// workspace-shared table, which is only ever referenced via
// `workspace = true` and carries no path dependencies of its own).
func DependenciesOf(path string, kind DependencyTableKind) ([]DependencyRef, error) {
	contents, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var root rawManifest
	if err := toml.Unmarshal(contents, &root); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	var refs []DependencyRef
	top := topLevelTable(&root, kind)
	for key, value := range top {
		refs = append(refs, resolveDependencyRef(key, value, ""))
	}
	for cfg, tables := range root.Target {
		table, ok := tables[string(kind)].(map[string]any)
		if !ok {
			continue
		}
		for key, value := range table {
			refs = append(refs, resolveDependencyRef(key, value, cfg))
		}
	}
	return refs, nil
}

func topLevelTable(root *rawManifest, kind DependencyTableKind) map[string]any {
	switch kind {
	case BuildDependencies:
		return root.BuildDependencies
	case Dependencies:
		return root.Dependencies
	case DevDependencies:
		return root.DevDependencies
	default:
		return nil
	}
}

func resolveDependencyRef(key string, value any, targetCfg string) DependencyRef {
	ref := DependencyRef{Name: key, TargetCfg: targetCfg}
	table, ok := value.(map[string]any)
	if !ok {
		return ref
	}
	if pkg, ok := table["package"].(string); ok && pkg != "" {
		ref.Name = pkg
	}
	if path, ok := table["path"].(string); ok {
		ref.Path = path
	}
	return ref
}

func readFile(path string) ([]byte, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return contents, nil
}

// SetDependencyField implements spec.md §4.1's set_dependency_field: for
// every entry of kind (top-level and target.<cfg>) whose logical name is in
// matching, sets field = value and removes each name in dropFields.
// Shorthand string entries ("foo = \"1.0\"") are overwritten whole when
// overwriteShorthand is set; otherwise they are promoted to an inline table
// that keeps the original version under "version" alongside the new field.
// An entry with `workspace = true` is left untouched (refuseWorkspaceInherited
// set instead turns that case into an error), per spec.md §4.1's invariant
// against silently overwriting inherited fields.
func (d *Document) SetDependencyField(kind DependencyTableKind, matching map[string]bool, field, value string, dropFields []string, overwriteShorthand, refuseWorkspaceInherited bool) (bool, error) {
	sections := findSections(d.lines)
	modified := false
	for _, sec := range sections {
		if !sec.isDependencyTable(kind) {
			continue
		}
		changed, err := d.editTableEntries(sec, matching, field, value, dropFields, overwriteShorthand, refuseWorkspaceInherited)
		if err != nil {
			return false, err
		}
		modified = modified || changed
	}
	// Dotted-subtable style entries, e.g. [dependencies.foo] or
	// [target.<cfg>.dependencies.foo], are their own section per entry.
	// setFieldInSection may insert a line when the field is absent, which
	// shifts every later line index; process bottom-to-top so an earlier
	// (lower-indexed, not-yet-visited) section's start/end stay valid.
	var subtableSections []section
	for _, sec := range sections {
		if _, ok := sec.subtableEntryName(kind); ok {
			subtableSections = append(subtableSections, sec)
		}
	}
	for i := len(subtableSections) - 1; i >= 0; i-- {
		sec := subtableSections[i]
		name, _ := sec.subtableEntryName(kind)
		logicalName := name
		if pkg, ok := sec.fieldValue(d.lines, "package"); ok {
			logicalName = pkg
		}
		if !matching[logicalName] {
			continue
		}
		if _, hasWorkspace := sec.fieldValue(d.lines, "workspace"); hasWorkspace {
			if refuseWorkspaceInherited {
				return false, fmt.Errorf("refusing to overwrite workspace-inherited dependency %q", logicalName)
			}
			continue
		}
		changed := d.setFieldInSection(sec, field, value, dropFields)
		modified = modified || changed
	}
	return modified, nil
}

type section struct {
	pathParts  []string
	start, end int // line range (start inclusive, end exclusive) of the body, excluding the header line
}

var headerRegex = regexp.MustCompile(`^\s*\[([^\[\]]+)\]\s*(#.*)?$`)

func findSections(lines []string) []section {
	var sections []section
	var headers []int
	var paths [][]string
	for i, line := range lines {
		m := headerRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		headers = append(headers, i)
		paths = append(paths, splitTablePath(m[1]))
	}
	for i, start := range headers {
		end := len(lines)
		if i+1 < len(headers) {
			end = headers[i+1]
		}
		sections = append(sections, section{pathParts: paths[i], start: start + 1, end: end})
	}
	return sections
}

func splitTablePath(raw string) []string {
	parts := strings.Split(raw, ".")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"'`)
	}
	return parts
}

// isDependencyTable reports whether sec is a top-level or
// target.<cfg>-conditional table of kind (not a dotted-subtable entry).
func (s section) isDependencyTable(kind DependencyTableKind) bool {
	switch len(s.pathParts) {
	case 1:
		return s.pathParts[0] == string(kind)
	case 3:
		return s.pathParts[0] == "target" && s.pathParts[2] == string(kind)
	default:
		return false
	}
}

// subtableEntryName reports the dependency name if sec is a dotted-subtable
// entry of kind (e.g. [dependencies.foo] or [target.cfg.dependencies.foo]).
func (s section) subtableEntryName(kind DependencyTableKind) (string, bool) {
	switch len(s.pathParts) {
	case 2:
		if s.pathParts[0] == string(kind) {
			return s.pathParts[1], true
		}
	case 4:
		if s.pathParts[0] == "target" && s.pathParts[2] == string(kind) {
			return s.pathParts[3], true
		}
	}
	return "", false
}

var kvRegex = regexp.MustCompile(`^(\s*)([A-Za-z0-9_\-]+|"[^"]*")\s*=\s*(.+?)\s*$`)

// fieldValue returns the raw (still-quoted) value of field within sec's
// body, if present.
func (s section) fieldValue(lines []string, field string) (string, bool) {
	for i := s.start; i < s.end; i++ {
		m := kvRegex.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		key := strings.Trim(m[2], `"`)
		if key != field {
			continue
		}
		return strings.Trim(m[3], `"`), true
	}
	return "", false
}

// setFieldInSection sets field = "value" within sec's body (a
// dotted-subtable dependency entry), appending the line if absent, and
// drops every line whose key is in dropFields.
func (d *Document) setFieldInSection(sec section, field, value string, dropFields []string) bool {
	modified := false
	drop := make(map[string]bool, len(dropFields))
	for _, f := range dropFields {
		drop[f] = true
	}

	indent := "    "
	found := false
	var kept []string
	for i := sec.start; i < sec.end; i++ {
		m := kvRegex.FindStringSubmatch(d.lines[i])
		if m == nil {
			kept = append(kept, d.lines[i])
			continue
		}
		indent = m[1]
		key := strings.Trim(m[2], `"`)
		if drop[key] {
			modified = true
			continue
		}
		if key == field {
			found = true
			kept = append(kept, fmt.Sprintf(`%s%s = "%s"`, indent, key, value))
			modified = true
			continue
		}
		kept = append(kept, d.lines[i])
	}
	if !found {
		kept = append(kept, fmt.Sprintf(`%s%s = "%s"`, indent, field, value))
		modified = true
	}

	d.spliceLines(sec.start, sec.end, kept)
	return modified
}

// editTableEntries edits every matching key = value entry directly inside a
// top-level or target-conditional dependency table (shorthand strings and
// single-line inline tables); it does not descend into dotted-subtables,
// which are handled as their own sections.
func (d *Document) editTableEntries(sec section, matching map[string]bool, field, value string, dropFields []string, overwriteShorthand, refuseWorkspaceInherited bool) (bool, error) {
	modified := false
	for i := sec.start; i < sec.end; i++ {
		line := d.lines[i]
		m := kvRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent, rawKey, rawValue := m[1], strings.Trim(m[2], `"`), m[3]

		if strings.HasPrefix(rawValue, "{") && strings.HasSuffix(rawValue, "}") {
			entry, err := parseInlineTable(rawValue)
			if err != nil {
				return false, fmt.Errorf("parsing inline table for %q: %w", rawKey, err)
			}
			logicalName := rawKey
			if pkg, ok := entry.get("package"); ok {
				logicalName = pkg
			}
			if !matching[logicalName] {
				continue
			}
			if _, hasWorkspace := entry.get("workspace"); hasWorkspace {
				if refuseWorkspaceInherited {
					return false, fmt.Errorf("refusing to overwrite workspace-inherited dependency %q", logicalName)
				}
				continue
			}
			entry.set(field, value)
			for _, f := range dropFields {
				entry.remove(f)
			}
			d.lines[i] = fmt.Sprintf("%s%s = %s", indent, m[2], entry.render())
			modified = true
			continue
		}

		if !strings.HasPrefix(rawValue, `"`) {
			continue // not a shorthand string and not an inline table; leave untouched
		}
		if !matching[rawKey] {
			continue
		}
		oldVersion := strings.Trim(rawValue, `"`)
		if overwriteShorthand {
			d.lines[i] = fmt.Sprintf(`%s%s = "%s"`, indent, m[2], value)
		} else {
			tbl := newInlineTable()
			tbl.set("version", oldVersion)
			tbl.set(field, value)
			d.lines[i] = fmt.Sprintf("%s%s = %s", indent, m[2], tbl.render())
		}
		modified = true
	}
	return modified, nil
}

// DropDependencyField implements spec.md §4.6 step 1's dev-dependency
// stripping: for every entry of kind (top-level and target.<cfg>) whose
// logical name is in matching and which has a path field, field is removed
// if present. Unlike SetDependencyField, this never writes a value: a
// shorthand string entry ("foo = \"1.0\"") has nothing to drop and is left
// completely untouched, matching spec.md's "shorthand entries are left
// alone" rule rather than promoting them to an inline table.
func (d *Document) DropDependencyField(kind DependencyTableKind, matching map[string]bool, field string) (bool, error) {
	sections := findSections(d.lines)
	modified := false
	for _, sec := range sections {
		if !sec.isDependencyTable(kind) {
			continue
		}
		changed, err := d.dropFieldInTableEntries(sec, matching, field)
		if err != nil {
			return false, err
		}
		modified = modified || changed
	}

	var subtableSections []section
	for _, sec := range sections {
		if _, ok := sec.subtableEntryName(kind); ok {
			subtableSections = append(subtableSections, sec)
		}
	}
	for i := len(subtableSections) - 1; i >= 0; i-- {
		sec := subtableSections[i]
		name, _ := sec.subtableEntryName(kind)
		logicalName := name
		if pkg, ok := sec.fieldValue(d.lines, "package"); ok {
			logicalName = pkg
		}
		if !matching[logicalName] {
			continue
		}
		if _, hasPath := sec.fieldValue(d.lines, "path"); !hasPath {
			continue
		}
		if _, hasField := sec.fieldValue(d.lines, field); !hasField {
			continue
		}
		d.dropFieldFromSection(sec, field)
		modified = true
	}
	return modified, nil
}

// dropFieldFromSection removes the line setting field within sec's body (a
// dotted-subtable dependency entry), leaving every other line untouched. No
// line is appended when field is absent; the caller only invokes this once
// it has confirmed the field is present.
func (d *Document) dropFieldFromSection(sec section, field string) {
	var kept []string
	for i := sec.start; i < sec.end; i++ {
		m := kvRegex.FindStringSubmatch(d.lines[i])
		if m != nil && strings.Trim(m[2], `"`) == field {
			continue
		}
		kept = append(kept, d.lines[i])
	}
	d.spliceLines(sec.start, sec.end, kept)
}

func (d *Document) dropFieldInTableEntries(sec section, matching map[string]bool, field string) (bool, error) {
	modified := false
	for i := sec.start; i < sec.end; i++ {
		line := d.lines[i]
		m := kvRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent, rawKey, rawValue := m[1], strings.Trim(m[2], `"`), m[3]

		if !strings.HasPrefix(rawValue, "{") || !strings.HasSuffix(rawValue, "}") {
			// Shorthand string (or any other non-table value): nothing to
			// drop, left completely untouched.
			continue
		}
		entry, err := parseInlineTable(rawValue)
		if err != nil {
			return false, fmt.Errorf("parsing inline table for %q: %w", rawKey, err)
		}
		logicalName := rawKey
		if pkg, ok := entry.get("package"); ok {
			logicalName = pkg
		}
		if !matching[logicalName] {
			continue
		}
		if _, hasPath := entry.get("path"); !hasPath {
			continue
		}
		if _, hasField := entry.get(field); !hasField {
			continue
		}
		entry.remove(field)
		d.lines[i] = fmt.Sprintf("%s%s = %s", indent, m[2], entry.render())
		modified = true
	}
	return modified, nil
}

// spliceLines replaces lines[start:end] with replacement, adjusting the
// document's line slice in place.
func (d *Document) spliceLines(start, end int, replacement []string) {
	tail := append([]string{}, d.lines[end:]...)
	d.lines = append(d.lines[:start], replacement...)
	d.lines = append(d.lines, tail...)
}

// inlineTable is a minimal, order-preserving representation of a single-line
// TOML inline table (`{ version = "1.0", path = "../foo" }`), sufficient for
// the key/value shapes Cargo dependency entries use. Values are stored as
// their raw TOML literal text (quotes included for strings) so that
// untouched bool/number fields (`optional = true`, `default-features =
// false`) round-trip unchanged; set() always writes a quoted string literal,
// since every field this engine edits (version, path, package, registry) is
// string-valued.
type inlineTable struct {
	keys   []string
	values map[string]string
}

func newInlineTable() *inlineTable {
	return &inlineTable{values: map[string]string{}}
}

// get returns key's value with surrounding quotes stripped, for comparing
// against an unquoted name (e.g. the `package` field).
func (t *inlineTable) get(key string) (string, bool) {
	v, ok := t.values[key]
	if !ok {
		return "", false
	}
	return strings.Trim(v, `"`), true
}

// set stores value as a new quoted string literal for key.
func (t *inlineTable) set(key, value string) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = fmt.Sprintf(`"%s"`, value)
}

// setRaw stores literal (already valid TOML, e.g. `true` or `"1.0"`)
// verbatim for key, used while parsing an existing inline table so
// untouched fields keep their original literal form.
func (t *inlineTable) setRaw(key, literal string) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = literal
}

func (t *inlineTable) remove(key string) {
	if _, ok := t.values[key]; !ok {
		return
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

func (t *inlineTable) render() string {
	parts := make([]string, 0, len(t.keys))
	for _, k := range t.keys {
		parts = append(parts, fmt.Sprintf(`%s = %s`, k, t.values[k]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

var inlinePairRegex = regexp.MustCompile(`([A-Za-z0-9_\-]+)\s*=\s*("(?:[^"\\]|\\.)*"|true|false|\d+(?:\.\d+)?)`)

func parseInlineTable(raw string) (*inlineTable, error) {
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(raw), "{"), "}"))
	t := newInlineTable()
	if inner == "" {
		return t, nil
	}
	matches := inlinePairRegex.FindAllStringSubmatch(inner, -1)
	if matches == nil {
		return nil, fmt.Errorf("unrecognized inline table contents: %q", raw)
	}
	for _, m := range matches {
		t.setRaw(m[1], m[2])
	}
	return t, nil
}

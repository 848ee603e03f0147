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

// Package semverpolicy implements the two-step version policy applied to
// every candidate before it is published: Adjust reconciles the in-source
// version with what the registry has already seen published, and Bump
// derives the next version from a Breaking/Compatible heuristic selector.
package semverpolicy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ChangeLevel is the heuristic selector driving the Bump step.
type ChangeLevel int

const (
	// Compatible bumps only the patch component.
	Compatible ChangeLevel = iota
	// Breaking bumps the major component (or, pre-1.0, the minor
	// component) and zeroes everything below it.
	Breaking
)

// String returns the lower-case name of the level.
func (l ChangeLevel) String() string {
	switch l {
	case Breaking:
		return "breaking"
	default:
		return "compatible"
	}
}

// Propagate derives the default ChangeLevel for a package from the levels at
// which its publish-relevant dependencies were bumped: Breaking dominates,
// Compatible is the default otherwise. Callers still let an explicit
// per-package override win over this default.
func Propagate(dependencyLevels []ChangeLevel) ChangeLevel {
	for _, l := range dependencyLevels {
		if l == Breaking {
			return Breaking
		}
	}
	return Compatible
}

// Max returns the largest of versions by SemVer precedence.
func Max(versions ...string) (string, error) {
	v, err := maxVersion(versions)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("no versions supplied")
	}
	return v.String(), nil
}

func maxVersion(versions []string) (*semver.Version, error) {
	var max *semver.Version
	for _, s := range versions {
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid version %q: %w", s, err)
		}
		if max == nil || v.GreaterThan(max) {
			max = v
		}
	}
	return max, nil
}

// Adjust applies spec.md §4.5's Adjust step: H is the maximum of the
// non-yanked previously published versions and the current in-source
// version. If H differs from the current version, the current version is
// overwritten with H and changed is true.
func Adjust(current string, published []string) (adjusted string, changed bool, err error) {
	c, err := semver.NewVersion(current)
	if err != nil {
		return "", false, fmt.Errorf("invalid current version %q: %w", current, err)
	}
	h, err := maxVersion(append([]string{current}, published...))
	if err != nil {
		return "", false, err
	}
	if h.Compare(c) == 0 {
		return current, false, nil
	}
	return h.String(), true, nil
}

// Bump applies spec.md §4.5's Bump step. published is the full set of
// previously published versions (not restricted to non-yanked, since a
// yanked version still reserves its number). level selects Breaking or
// Compatible growth.
func Bump(current string, published []string, level ChangeLevel) (next string, changed bool, err error) {
	c, err := semver.NewVersion(current)
	if err != nil {
		return "", false, fmt.Errorf("invalid current version %q: %w", current, err)
	}

	if len(published) == 0 {
		if c.Prerelease() != "" {
			stripped, err := withoutPrerelease(c)
			if err != nil {
				return "", false, err
			}
			return stripped.String(), true, nil
		}
		return current, false, nil
	}

	l, err := maxVersion(published)
	if err != nil {
		return "", false, err
	}
	m := c
	if l.GreaterThan(c) {
		m = l
	}
	cleared, err := withoutPrerelease(m)
	if err != nil {
		return "", false, err
	}

	var bumped semver.Version
	switch level {
	case Breaking:
		if cleared.Major() == 0 {
			bumped = cleared.IncMinor()
		} else {
			bumped = cleared.IncMajor()
		}
	case Compatible:
		bumped = cleared.IncPatch()
	default:
		return "", false, fmt.Errorf("unknown change level %d", level)
	}
	return bumped.String(), true, nil
}

func withoutPrerelease(v *semver.Version) (*semver.Version, error) {
	return semver.NewVersion(fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch()))
}

// SPDX-License-Identifier: MPL-2.0

// Package semver parses and orders the relaxed semantic versions used by
// plugin release tags. It accepts an optional leading "v", one to three
// dot-separated integer groups, and an optional trailing pre-release or
// build suffix ("-..." / "+...") that is preserved but ignored for
// ordering. "1.2" and "v3" are valid; missing groups default to zero.
package semver

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidVersion indicates the string is not a recognizable version.
var ErrInvalidVersion = errors.New("invalid version")

// versionPattern matches "v?MAJOR(.MINOR)?(.PATCH)?" with an optional
// "-" or "+" suffix. Groups 1-3 capture the numeric components.
var versionPattern = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:[-+].*)?$`)

type (
	// Version is an ordered (major, minor, patch) triple plus the original
	// string it was parsed from. Ordering and equality consider only the
	// three numeric components; any pre-release or build suffix survives
	// in Original but never participates in comparison.
	Version struct {
		Major    int
		Minor    int
		Patch    int
		Original string
	}

	// InvalidVersionError reports the string that failed to parse.
	// It wraps ErrInvalidVersion for errors.Is() compatibility.
	InvalidVersionError struct {
		Value string
	}
)

// Error implements the error interface for InvalidVersionError.
func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version format: %q", e.Value)
}

// Unwrap returns ErrInvalidVersion for errors.Is() compatibility.
func (e *InvalidVersionError) Unwrap() error { return ErrInvalidVersion }

// Parse parses s into a Version. Missing minor and patch components
// default to zero. Returns an InvalidVersionError wrapping
// ErrInvalidVersion when s is empty or not in a recognizable format.
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, &InvalidVersionError{Value: s}
	}

	m := versionPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Version{}, &InvalidVersionError{Value: s}
	}

	// The pattern guarantees each non-empty group is all digits; Atoi can
	// only fail here on overflow, which is treated as a parse failure.
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, &InvalidVersionError{Value: s}
	}

	minor := 0
	if m[2] != "" {
		if minor, err = strconv.Atoi(m[2]); err != nil {
			return Version{}, &InvalidVersionError{Value: s}
		}
	}

	patch := 0
	if m[3] != "" {
		if patch, err = strconv.Atoi(m[3]); err != nil {
			return Version{}, &InvalidVersionError{Value: s}
		}
	}

	return Version{Major: major, Minor: minor, Patch: patch, Original: s}, nil
}

// MustParse is Parse for trusted inputs such as test fixtures; it panics
// on parse failure.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns a negative number when a < b, zero when a == b, and a
// positive number when a > b, ordering lexicographically over
// (major, minor, patch).
func Compare(a, b Version) int {
	if a.Major != b.Major {
		return a.Major - b.Major
	}
	if a.Minor != b.Minor {
		return a.Minor - b.Minor
	}
	return a.Patch - b.Patch
}

// GreaterThan reports whether v orders strictly after other.
func (v Version) GreaterThan(other Version) bool { return Compare(v, other) > 0 }

// LessThan reports whether v orders strictly before other.
func (v Version) LessThan(other Version) bool { return Compare(v, other) < 0 }

// Equal reports whether the two versions have identical numeric
// components, regardless of their original strings.
func (v Version) Equal(other Version) bool { return Compare(v, other) == 0 }

// String returns the normalized "major.minor.patch" form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

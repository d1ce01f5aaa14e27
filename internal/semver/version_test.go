// SPDX-License-Identifier: MPL-2.0

package semver

import (
	"errors"
	"testing"
)

func TestParseValid(t *testing.T) {
	tests := []struct {
		in                  string
		major, minor, patch int
	}{
		{"v1.2.3", 1, 2, 3},
		{"1.2.3", 1, 2, 3},
		{"1.2", 1, 2, 0},
		{"1", 1, 0, 0},
		{"v3", 3, 0, 0},
		{"2.0.0-beta.1", 2, 0, 0},
		{"1.4.7+build.99", 1, 4, 7},
		{"v10.20.30", 10, 20, 30},
		{"  1.0.0  ", 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.in, err)
			}
			if v.Major != tt.major || v.Minor != tt.minor || v.Patch != tt.patch {
				t.Errorf("Parse(%q) = %d.%d.%d, want %d.%d.%d",
					tt.in, v.Major, v.Minor, v.Patch, tt.major, tt.minor, tt.patch)
			}
			if v.Original != tt.in {
				t.Errorf("Parse(%q).Original = %q, want the input preserved", tt.in, v.Original)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1.x.3", "v", "-1.0.0", "1..2", "snapshot"} {
		t.Run(in, func(t *testing.T) {
			if _, err := Parse(in); !errors.Is(err, ErrInvalidVersion) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidVersion", in, err)
			}
		})
	}
}

func TestCompareAntisymmetry(t *testing.T) {
	versions := []string{"1.0.0", "1.0.1", "1.2.0", "2.0.0", "v2.0.0-rc.1", "0.9.9"}

	for _, as := range versions {
		for _, bs := range versions {
			a, b := MustParse(as), MustParse(bs)
			if got, want := sign(Compare(a, b)), -sign(Compare(b, a)); got != want {
				t.Errorf("Compare(%s, %s) and Compare(%s, %s) are not antisymmetric", as, bs, bs, as)
			}
			if Compare(a, a) != 0 {
				t.Errorf("Compare(%s, %s) != 0", as, as)
			}
		}
	}
}

func TestCompareOrdering(t *testing.T) {
	tests := []struct {
		a, b string
		want int // sign of Compare(a, b)
	}{
		{"1.0.0", "2.0.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"1.2.3", "1.2.3", 0},
		{"1.2", "1.2.0", 0},
		{"v1.0.0", "1.0.0", 0},
		// Suffixes are ignored for ordering.
		{"1.0.0-alpha", "1.0.0", 0},
		{"2.0.0-rc.1", "2.0.0+hotfix", 0},
		{"1.10.0", "1.9.0", 1},
	}

	for _, tt := range tests {
		got := sign(Compare(MustParse(tt.a), MustParse(tt.b)))
		if got != tt.want {
			t.Errorf("Compare(%s, %s) = %d, want sign %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEqualIgnoresOriginal(t *testing.T) {
	a := MustParse("v1.2.3")
	b := MustParse("1.2.3-beta")
	if !a.Equal(b) {
		t.Errorf("versions with identical components should be equal regardless of suffix")
	}
}

func TestString(t *testing.T) {
	if got := MustParse("v1.2").String(); got != "1.2.0" {
		t.Errorf("String() = %q, want %q", got, "1.2.0")
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Package version computes release tags for the deploy pipeline.
//
// A Ledger holds every tag present in the repository and answers two
// questions: which tag is the highest, and which tag comes next for a given
// bump kind without colliding with an existing one.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Tag is a semantic version of the form vMAJOR.MINOR.PATCH.
type Tag struct {
	Major int
	Minor int
	Patch int
}

// Zero is the tag reported when a repository has no parseable tags.
var Zero = Tag{}

// ParseTag parses "v1.2.3" (a leading "V" is accepted too).
func ParseTag(s string) (Tag, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || (s[0] != 'v' && s[0] != 'V') {
		return Tag{}, fmt.Errorf("tag %q: must start with v", s)
	}

	parts := strings.Split(s[1:], ".")
	if len(parts) != 3 {
		return Tag{}, fmt.Errorf("tag %q: want three components", s)
	}

	var nums [3]int
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return Tag{}, fmt.Errorf("tag %q: component %q is not numeric", s, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Tag{}, fmt.Errorf("tag %q: %w", s, err)
		}
		nums[i] = n
	}

	return Tag{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParseTag is ParseTag for literals known to be valid.
func MustParseTag(s string) Tag {
	t, err := ParseTag(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the canonical "vX.Y.Z" form.
func (t Tag) String() string {
	return fmt.Sprintf("v%d.%d.%d", t.Major, t.Minor, t.Patch)
}

// Compare returns -1, 0 or 1 ordering tags numerically by component.
func (t Tag) Compare(o Tag) int {
	switch {
	case t.Major != o.Major:
		return cmpInt(t.Major, o.Major)
	case t.Minor != o.Minor:
		return cmpInt(t.Minor, o.Minor)
	default:
		return cmpInt(t.Patch, o.Patch)
	}
}

// Less reports whether t sorts before o.
func (t Tag) Less(o Tag) bool {
	return t.Compare(o) < 0
}

// Bump increments the component selected by kind and resets the lower ones.
func (t Tag) Bump(kind Kind) Tag {
	switch kind {
	case KindMajor:
		return Tag{Major: t.Major + 1}
	case KindMinor:
		return Tag{Major: t.Major, Minor: t.Minor + 1}
	default:
		return Tag{Major: t.Major, Minor: t.Minor, Patch: t.Patch + 1}
	}
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

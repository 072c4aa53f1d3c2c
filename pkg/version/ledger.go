package version

import (
	"fmt"
	"sort"
)

// Kind selects which component of a tag is bumped.
type Kind string

const (
	KindPatch Kind = "patch"
	KindMinor Kind = "minor"
	KindMajor Kind = "major"
)

// Kinds lists the bump kinds in menu order.
var Kinds = []Kind{KindPatch, KindMinor, KindMajor}

// Validate checks if the kind is known.
func (k Kind) Validate() error {
	switch k {
	case KindPatch, KindMinor, KindMajor:
		return nil
	default:
		return fmt.Errorf("invalid bump kind: %s", k)
	}
}

// Ledger is the set of tags that exist in a repository.
// It is immutable after construction.
type Ledger struct {
	tags    map[Tag]struct{}
	ignored []string
}

// NewLedger builds a ledger from raw tag names. Names that do not parse
// as vMAJOR.MINOR.PATCH are ignored and reported by Ignored.
func NewLedger(names []string) *Ledger {
	l := &Ledger{tags: make(map[Tag]struct{}, len(names))}
	for _, name := range names {
		t, err := ParseTag(name)
		if err != nil {
			l.ignored = append(l.ignored, name)
			continue
		}
		l.tags[t] = struct{}{}
	}
	return l
}

// Contains reports whether t is already taken.
func (l *Ledger) Contains(t Tag) bool {
	_, ok := l.tags[t]
	return ok
}

// Len returns the number of parseable tags.
func (l *Ledger) Len() int {
	return len(l.tags)
}

// Ignored returns the tag names that could not be parsed.
func (l *Ledger) Ignored() []string {
	out := make([]string, len(l.ignored))
	copy(out, l.ignored)
	return out
}

// Tags returns the parseable tags in ascending order.
func (l *Ledger) Tags() []Tag {
	out := make([]Tag, 0, len(l.tags))
	for t := range l.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Highest returns the greatest tag in the ledger, or v0.0.0 when empty.
func (l *Ledger) Highest() Tag {
	highest := Zero
	for t := range l.tags {
		if highest.Less(t) {
			highest = t
		}
	}
	return highest
}

// Next bumps from by kind until the result is not in the ledger.
func (l *Ledger) Next(from Tag, kind Kind) Tag {
	next := from.Bump(kind)
	for l.Contains(next) {
		next = next.Bump(kind)
	}
	return next
}

// Proposals returns the next free tag after the highest one for every kind.
func (l *Ledger) Proposals() map[Kind]Tag {
	highest := l.Highest()
	out := make(map[Kind]Tag, len(Kinds))
	for _, k := range Kinds {
		out[k] = l.Next(highest, k)
	}
	return out
}

// KindOf reports which proposal tag t matches. Tags that match none are
// treated as patch releases.
func (l *Ledger) KindOf(t Tag) Kind {
	p := l.Proposals()
	switch t {
	case p[KindMajor]:
		return KindMajor
	case p[KindMinor]:
		return KindMinor
	default:
		return KindPatch
	}
}

package engine

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/busyloop/hu/pkg/version"
)

// ShortCommitLength is the number of hex digits shown for a commit.
const ShortCommitLength = 6

// Fixed pointer names. The release branch pointer is named by ReleaseBranch.
const (
	PointerDevelop       = "develop"
	PointerOriginDevelop = "origin/develop"
	PointerMaster        = "master"
	PointerStaging       = "staging"
	PointerProduction    = "production"
)

// ReleaseBranch returns the branch name for a release tag.
func ReleaseBranch(tag version.Tag) string {
	return "release/" + tag.String()
}

// ShortCommit truncates a commit id for display.
func ShortCommit(commit string) string {
	if len(commit) > ShortCommitLength {
		return commit[:ShortCommitLength]
	}
	return commit
}

// Pointer is a named revision location resolved at snapshot time.
// The zero value means unknown.
type Pointer struct {
	Name   string `json:"name"`
	Commit string `json:"commit,omitempty"`

	// Tags are the repository tags pointing at Commit.
	Tags []string `json:"tags,omitempty"`

	// Target metadata, set for staging and production only.
	App        string         `json:"app,omitempty"`
	Release    int            `json:"release,omitempty"`
	ModifiedAt time.Time      `json:"modified_at,omitempty"`
	ModifiedBy string         `json:"modified_by,omitempty"`
	Dynos      int            `json:"dynos,omitempty"`
	Formation  map[string]int `json:"formation,omitempty"`
	State      string         `json:"state,omitempty"`
}

// Known returns true if the pointer resolved to a commit.
func (p Pointer) Known() bool {
	return p.Commit != ""
}

// Short returns the short commit id, or "" when unknown.
func (p Pointer) Short() string {
	return ShortCommit(p.Commit)
}

// Tag returns the first tag pointing at the commit, or "".
func (p Pointer) Tag() string {
	if len(p.Tags) == 0 {
		return ""
	}
	return p.Tags[0]
}

// FormationSummary renders the formation as "web:2 worker:1".
func (p Pointer) FormationSummary() string {
	if len(p.Formation) == 0 {
		return ""
	}
	types := make([]string, 0, len(p.Formation))
	for t := range p.Formation {
		types = append(types, t)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, t+":"+strconv.Itoa(p.Formation[t]))
	}
	return strings.Join(parts, " ")
}

// TargetState is what a platform read yields for one deployment target.
type TargetState struct {
	App        string
	Commit     string
	Release    int
	ModifiedAt time.Time
	ModifiedBy string
	Dynos      int
	Formation  map[string]int
	State      string
	ConfigKeys []string
	Preboot    bool
}

// CIState is the combined commit status reported by CI.
type CIState string

const (
	CIStateUnknown CIState = ""
	CIStatePending CIState = "pending"
	CIStateSuccess CIState = "success"
	CIStateFailure CIState = "failure"
	CIStateError   CIState = "error"
)

// Failed returns true for failure and error.
func (s CIState) Failed() bool {
	return s == CIStateFailure || s == CIStateError
}

// CICheck is one reported status context.
type CICheck struct {
	Context     string  `json:"context"`
	State       CIState `json:"state"`
	Description string  `json:"description,omitempty"`
	URL         string  `json:"url,omitempty"`
}

// CIStatus is the CI verdict for a commit.
type CIStatus struct {
	Commit string    `json:"commit,omitempty"`
	State  CIState   `json:"state"`
	Checks []CICheck `json:"checks,omitempty"`
}

// Failures returns the checks in failure or error state.
func (s CIStatus) Failures() []CICheck {
	var out []CICheck
	for _, c := range s.Checks {
		if c.State.Failed() {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot is an immutable point-in-time capture of all tracked revision
// pointers. Build one with NewSnapshot.
type Snapshot struct {
	releaseTag    version.Tag
	pointers      map[string]Pointer
	ci            CIStatus
	missingConfig []string
	preboot       bool
	collectedAt   time.Time
}

// SnapshotData holds the inputs of NewSnapshot.
type SnapshotData struct {
	ReleaseTag    version.Tag
	Pointers      []Pointer
	CI            CIStatus
	MissingConfig []string
	Preboot       bool
	CollectedAt   time.Time
}

// NewSnapshot copies data into a new snapshot.
func NewSnapshot(data SnapshotData) *Snapshot {
	s := &Snapshot{
		releaseTag:    data.ReleaseTag,
		pointers:      make(map[string]Pointer, len(data.Pointers)),
		ci:            data.CI,
		missingConfig: append([]string(nil), data.MissingConfig...),
		preboot:       data.Preboot,
		collectedAt:   data.CollectedAt,
	}
	for _, p := range data.Pointers {
		p.Tags = append([]string(nil), p.Tags...)
		if p.Formation != nil {
			f := make(map[string]int, len(p.Formation))
			for k, v := range p.Formation {
				f[k] = v
			}
			p.Formation = f
		}
		s.pointers[p.Name] = p
	}
	return s
}

// ReleaseTag returns the tag the snapshot was collected for.
func (s *Snapshot) ReleaseTag() version.Tag {
	return s.releaseTag
}

// Get returns the pointer with the given name.
func (s *Snapshot) Get(name string) (Pointer, bool) {
	p, ok := s.pointers[name]
	return p, ok
}

// Commit returns the commit of the named pointer, or "" when absent or unknown.
func (s *Snapshot) Commit(name string) string {
	return s.pointers[name].Commit
}

// Has returns true if the pointer is part of the snapshot.
func (s *Snapshot) Has(name string) bool {
	_, ok := s.pointers[name]
	return ok
}

// Names returns the pointer names in sorted order.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, len(s.pointers))
	for n := range s.pointers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CI returns the CI status of origin/develop.
func (s *Snapshot) CI() CIStatus {
	return s.ci
}

// MissingConfig returns config keys set on staging but not on production.
func (s *Snapshot) MissingConfig() []string {
	return append([]string(nil), s.missingConfig...)
}

// Preboot returns true if production boots new dynos before stopping old ones.
func (s *Snapshot) Preboot() bool {
	return s.preboot
}

// CollectedAt returns when the snapshot was taken.
func (s *Snapshot) CollectedAt() time.Time {
	return s.collectedAt
}

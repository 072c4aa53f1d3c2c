package policy

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/version"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is printed but does not block the action.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the action.
	SeverityError Severity = "error"

	// SeverityCritical blocks the action.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity deny the action.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// SourceBuiltin marks policies compiled into hu.
const SourceBuiltin = "builtin"

// Policy is a Rego module producing a deny set.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	Description string `json:"description"`

	// Rego contains the policy module. It must define deny.
	Rego string `json:"rego"`

	// Severity is used for violations that do not carry their own.
	Severity Severity `json:"severity"`

	Enabled bool `json:"enabled"`

	// Source is SourceBuiltin or the file the policy was read from.
	Source string `json:"source,omitempty"`
}

// Violation is one element of a policy's deny set.
type Violation struct {
	Policy      string   `json:"policy"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Remediation string   `json:"remediation,omitempty"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Policy, v.Message)
}

// Result is the outcome of evaluating every enabled policy for an action.
type Result struct {
	Allowed bool `json:"allowed"`

	// Violations are blocking.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are printed but do not block.
	Warnings []Violation `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// Err returns a policy error describing the blocking violations, or nil
// when the action is allowed.
func (r *Result) Err(action engine.ActionKind) error {
	if r == nil || r.Allowed {
		return nil
	}
	msgs := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		msgs = append(msgs, v.String())
	}
	err := engine.NewPolicyError(
		fmt.Sprintf("%s denied: %s", action, strings.Join(msgs, "; ")), nil).
		WithCode(engine.ErrCodeDenied).
		WithOperation("policy.evaluate").
		WithDetail("action", string(action))
	for _, v := range r.Violations {
		if v.Remediation != "" {
			return err.WithRemediation("%s", v.Remediation)
		}
	}
	return err
}

// CIInput is the CI part of Input.
type CIInput struct {
	State    string   `json:"state"`
	Failures []string `json:"failures"`
}

// Input is the document policies see as input.
type Input struct {
	Action      string `json:"action"`
	Phase       string `json:"phase"`
	ReleaseTag  string `json:"release_tag"`
	PreviousTag string `json:"previous_tag"`

	// ReleasedTags are version tags already reachable from master or
	// production.
	ReleasedTags []string `json:"released_tags"`

	// Pointers maps pointer names (develop, master, staging, ...) to
	// commits. Unknown pointers are omitted.
	Pointers map[string]string `json:"pointers"`

	CI            CIInput   `json:"ci"`
	MissingConfig []string  `json:"missing_config"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewInput builds the policy input for action from a snapshot.
func NewInput(s *engine.Snapshot, phase engine.Phase, action engine.ActionKind, previous version.Tag) Input {
	in := Input{
		Action:        string(action),
		Phase:         string(phase),
		ReleaseTag:    s.ReleaseTag().String(),
		PreviousTag:   previous.String(),
		Pointers:      make(map[string]string),
		MissingConfig: s.MissingConfig(),
		ReleasedTags:  []string{},
		Timestamp:     s.CollectedAt(),
	}
	if in.MissingConfig == nil {
		in.MissingConfig = []string{}
	}

	seen := make(map[string]bool)
	for _, name := range s.Names() {
		p, _ := s.Get(name)
		if !p.Known() {
			continue
		}
		in.Pointers[name] = p.Commit
		if name == engine.PointerMaster || name == engine.PointerProduction {
			for _, t := range p.Tags {
				if !seen[t] {
					seen[t] = true
					in.ReleasedTags = append(in.ReleasedTags, t)
				}
			}
		}
	}
	sort.Strings(in.ReleasedTags)

	ci := s.CI()
	in.CI.State = string(ci.State)
	in.CI.Failures = []string{}
	for _, c := range ci.Failures() {
		in.CI.Failures = append(in.CI.Failures, c.Context)
	}
	return in
}

package engine

import (
	"encoding/json"
	"fmt"

	"github.com/busyloop/hu/pkg/version"
)

// Phase classifies a snapshot into a release pipeline state.
type Phase string

const (
	// PhaseReleaseBranchStaged indicates a release branch exists locally but
	// staging runs something else.
	PhaseReleaseBranchStaged Phase = "release_branch_staged"

	// PhaseReleaseBranchLiveOnStaging indicates the release branch is what
	// staging runs and awaits human verification.
	PhaseReleaseBranchLiveOnStaging Phase = "release_branch_live_on_staging"

	// PhaseFinalStagingVerification indicates the release was finished and
	// staging holds the build to promote.
	PhaseFinalStagingVerification Phase = "final_staging_verification"

	// PhaseNoActionableDifference indicates there is nothing to push or promote.
	PhaseNoActionableDifference Phase = "no_actionable_difference"

	// PhaseAmbiguousState indicates revisions automation cannot reconcile,
	// usually after a manual rollback or rewritten history.
	PhaseAmbiguousState Phase = "ambiguous_state"
)

// Phases lists every phase in classification priority order.
func Phases() []Phase {
	return []Phase{
		PhaseAmbiguousState,
		PhaseReleaseBranchStaged,
		PhaseReleaseBranchLiveOnStaging,
		PhaseFinalStagingVerification,
		PhaseNoActionableDifference,
	}
}

// IsTerminal returns true if the session must stop in this phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseAmbiguousState
}

// Title returns the banner text for the phase.
func (p Phase) Title() string {
	switch p {
	case PhaseReleaseBranchStaged:
		return "Release branch created"
	case PhaseReleaseBranchLiveOnStaging:
		return "Release is live on staging"
	case PhaseFinalStagingVerification:
		return "Final staging verification"
	case PhaseNoActionableDifference:
		return "Nothing to deploy"
	case PhaseAmbiguousState:
		return "Ambiguous state"
	default:
		return string(p)
	}
}

// Validate checks if the phase is valid.
func (p Phase) Validate() error {
	switch p {
	case PhaseReleaseBranchStaged, PhaseReleaseBranchLiveOnStaging,
		PhaseFinalStagingVerification, PhaseNoActionableDifference, PhaseAmbiguousState:
		return nil
	default:
		return fmt.Errorf("invalid phase: %s", p)
	}
}

// ActionKind names an operator action offered by the session menu.
type ActionKind string

const (
	ActionRefresh        ActionKind = "refresh"
	ActionQuit           ActionKind = "quit"
	ActionPushToStaging  ActionKind = "push_to_staging"
	ActionBumpPatch      ActionKind = "bump_patch"
	ActionBumpMinor      ActionKind = "bump_minor"
	ActionBumpMajor      ActionKind = "bump_major"
	ActionFinishRelease  ActionKind = "finish_release"
	ActionPromote        ActionKind = "promote"

	// ActionUnsupported stands in for any selection without a handler.
	ActionUnsupported ActionKind = "unsupported"
)

// ParseActionKind maps a name to its action, or ActionUnsupported.
func ParseActionKind(s string) ActionKind {
	a := ActionKind(s)
	if a.Validate() != nil || a == ActionUnsupported {
		return ActionUnsupported
	}
	return a
}

// BumpKind returns the version component a bump action changes.
func (a ActionKind) BumpKind() (version.Kind, bool) {
	switch a {
	case ActionBumpPatch:
		return version.KindPatch, true
	case ActionBumpMinor:
		return version.KindMinor, true
	case ActionBumpMajor:
		return version.KindMajor, true
	default:
		return "", false
	}
}

// Label returns the menu text for the action.
func (a ActionKind) Label() string {
	switch a {
	case ActionRefresh:
		return "Refresh"
	case ActionQuit:
		return "Quit"
	case ActionPushToStaging:
		return "Push release to staging"
	case ActionBumpPatch:
		return "Change to patch release"
	case ActionBumpMinor:
		return "Change to minor release"
	case ActionBumpMajor:
		return "Change to major release"
	case ActionFinishRelease:
		return "Finish release"
	case ActionPromote:
		return "Promote staging to production"
	default:
		return string(a)
	}
}

// Validate checks if the action kind is valid.
func (a ActionKind) Validate() error {
	switch a {
	case ActionRefresh, ActionQuit, ActionPushToStaging, ActionBumpPatch,
		ActionBumpMinor, ActionBumpMajor, ActionFinishRelease, ActionPromote,
		ActionUnsupported:
		return nil
	default:
		return fmt.Errorf("invalid action kind: %s", a)
	}
}

// ActionOutcome records how a dispatched action ended.
type ActionOutcome string

const (
	OutcomeSucceeded   ActionOutcome = "succeeded"
	OutcomeFailed      ActionOutcome = "failed"
	OutcomeDenied      ActionOutcome = "denied"
	OutcomeCancelled   ActionOutcome = "cancelled"
	OutcomeUnsupported ActionOutcome = "unsupported"
)

// Validate checks if the outcome is valid.
func (o ActionOutcome) Validate() error {
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeDenied, OutcomeCancelled, OutcomeUnsupported:
		return nil
	default:
		return fmt.Errorf("invalid action outcome: %s", o)
	}
}

// TargetRole is the pipeline role of a deployment target.
type TargetRole string

const (
	RoleStaging    TargetRole = "staging"
	RoleProduction TargetRole = "production"
)

// Validate checks if the role is valid.
func (r TargetRole) Validate() error {
	switch r {
	case RoleStaging, RoleProduction:
		return nil
	default:
		return fmt.Errorf("invalid target role: %s", r)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*p = Phase(str)
	return p.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (a ActionKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (a *ActionKind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*a = ActionKind(str)
	return a.Validate()
}

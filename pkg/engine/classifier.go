package engine

import "github.com/busyloop/hu/pkg/version"

// Classify maps a snapshot to a phase. It reads only the snapshot and the
// release tag, so identical inputs always yield the same phase.
func Classify(s *Snapshot, releaseTag version.Tag) Phase {
	develop := s.Commit(PointerDevelop)
	master := s.Commit(PointerMaster)
	staging := s.Commit(PointerStaging)
	production := s.Commit(PointerProduction)

	if develop != "" && develop == master && master == production &&
		staging != "" && staging != production {
		return PhaseAmbiguousState
	}

	if release, ok := s.Get(ReleaseBranch(releaseTag)); ok && release.Known() {
		if release.Commit != staging {
			return PhaseReleaseBranchStaged
		}
		return PhaseReleaseBranchLiveOnStaging
	}

	if staging != "" && production != staging {
		return PhaseFinalStagingVerification
	}

	return PhaseNoActionableDifference
}

// phaseActions lists the phase-specific actions. Refresh and Quit are added
// by LegalActions for every non-terminal phase.
var phaseActions = map[Phase][]ActionKind{
	PhaseReleaseBranchStaged: {
		ActionPushToStaging,
		ActionBumpPatch, ActionBumpMinor, ActionBumpMajor,
	},
	PhaseReleaseBranchLiveOnStaging: {
		ActionFinishRelease,
		ActionBumpPatch, ActionBumpMinor, ActionBumpMajor,
	},
	PhaseFinalStagingVerification: {
		ActionPromote,
	},
	PhaseNoActionableDifference: {},
	PhaseAmbiguousState:         nil,
}

// universalActions are offered in every non-terminal phase.
var universalActions = []ActionKind{ActionRefresh, ActionQuit}

// LegalActions returns the actions the operator may pick in phase.
// Terminal phases have none.
func LegalActions(phase Phase) []ActionKind {
	if phase.IsTerminal() {
		return nil
	}
	specific, ok := phaseActions[phase]
	if !ok {
		return nil
	}
	out := make([]ActionKind, 0, len(specific)+len(universalActions))
	out = append(out, specific...)
	return append(out, universalActions...)
}

// IsLegal returns true if action may be dispatched in phase.
func IsLegal(phase Phase, action ActionKind) bool {
	for _, a := range LegalActions(phase) {
		if a == action {
			return true
		}
	}
	return false
}

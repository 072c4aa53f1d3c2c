package engine

import (
	"testing"

	"github.com/busyloop/hu/pkg/version"
)

var tagV110 = version.MustParseTag("v1.1.0")

func snapshotOf(commits map[string]string) *Snapshot {
	pointers := make([]Pointer, 0, len(commits))
	for name, commit := range commits {
		pointers = append(pointers, Pointer{Name: name, Commit: commit})
	}
	return NewSnapshot(SnapshotData{ReleaseTag: tagV110, Pointers: pointers})
}

func TestClassify(t *testing.T) {
	release := ReleaseBranch(tagV110)

	tests := []struct {
		name    string
		commits map[string]string
		want    Phase
	}{
		{
			name: "develop master production agree, staging differs",
			commits: map[string]string{
				PointerDevelop: "abc123", PointerMaster: "abc123",
				PointerProduction: "abc123", PointerStaging: "def456",
			},
			want: PhaseAmbiguousState,
		},
		{
			name: "everything equal",
			commits: map[string]string{
				PointerDevelop: "abc123", PointerMaster: "abc123",
				PointerProduction: "abc123", PointerStaging: "abc123",
			},
			want: PhaseNoActionableDifference,
		},
		{
			name: "ambiguity wins over release branch",
			commits: map[string]string{
				PointerDevelop: "abc123", PointerMaster: "abc123",
				PointerProduction: "abc123", PointerStaging: "def456",
				release: "abc123",
			},
			want: PhaseAmbiguousState,
		},
		{
			name: "release branch not on staging",
			commits: map[string]string{
				PointerDevelop: "fff000", PointerMaster: "abc123",
				PointerProduction: "abc123", PointerStaging: "abc123",
				release: "fff000",
			},
			want: PhaseReleaseBranchStaged,
		},
		{
			name: "release branch with staging unknown",
			commits: map[string]string{
				PointerDevelop: "fff000", PointerMaster: "abc123",
				PointerProduction: "abc123", PointerStaging: "",
				release: "fff000",
			},
			want: PhaseReleaseBranchStaged,
		},
		{
			name: "release branch live on staging",
			commits: map[string]string{
				PointerDevelop: "fff000", PointerMaster: "abc123",
				PointerProduction: "abc123", PointerStaging: "fff000",
				release: "fff000",
			},
			want: PhaseReleaseBranchLiveOnStaging,
		},
		{
			name: "finished release waits for promotion",
			commits: map[string]string{
				PointerDevelop: "fff000", PointerMaster: "fff000",
				PointerProduction: "abc123", PointerStaging: "fff000",
			},
			want: PhaseFinalStagingVerification,
		},
		{
			name: "staging unknown without release branch",
			commits: map[string]string{
				PointerDevelop: "fff000", PointerMaster: "abc123",
				PointerProduction: "abc123", PointerStaging: "",
			},
			want: PhaseNoActionableDifference,
		},
		{
			name: "staging unknown is not ambiguous",
			commits: map[string]string{
				PointerDevelop: "abc123", PointerMaster: "abc123",
				PointerProduction: "abc123", PointerStaging: "",
			},
			want: PhaseNoActionableDifference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshotOf(tt.commits)
			got := Classify(snap, tagV110)
			if got != tt.want {
				t.Fatalf("Classify() = %s, want %s", got, tt.want)
			}
			for i := 0; i < 3; i++ {
				if again := Classify(snap, tagV110); again != got {
					t.Fatalf("Classify() not deterministic: %s then %s", got, again)
				}
			}
		})
	}
}

func TestClassify_OtherReleaseTagIgnored(t *testing.T) {
	snap := snapshotOf(map[string]string{
		PointerDevelop: "fff000", PointerMaster: "abc123",
		PointerProduction: "abc123", PointerStaging: "abc123",
		"release/v9.9.9": "fff000",
	})
	if got := Classify(snap, tagV110); got != PhaseNoActionableDifference {
		t.Fatalf("Classify() = %s, want %s", got, PhaseNoActionableDifference)
	}
}

func TestLegalActions_Total(t *testing.T) {
	for _, phase := range Phases() {
		if err := phase.Validate(); err != nil {
			t.Fatalf("Phases() returned invalid phase: %v", err)
		}
		if _, ok := phaseActions[phase]; !ok {
			t.Errorf("phase %s missing from action table", phase)
		}
		actions := LegalActions(phase)
		if phase.IsTerminal() {
			if len(actions) != 0 {
				t.Errorf("terminal phase %s offers %v", phase, actions)
			}
			continue
		}
		if len(actions) == 0 {
			t.Errorf("non-terminal phase %s has no legal action", phase)
		}
		if !IsLegal(phase, ActionRefresh) || !IsLegal(phase, ActionQuit) {
			t.Errorf("phase %s lacks refresh or quit", phase)
		}
		for _, a := range actions {
			if err := a.Validate(); err != nil || a == ActionUnsupported {
				t.Errorf("phase %s offers invalid action %q", phase, a)
			}
		}
	}
	if len(phaseActions) != len(Phases()) {
		t.Errorf("action table has %d phases, want %d", len(phaseActions), len(Phases()))
	}
}

func TestLegalActions_PerPhase(t *testing.T) {
	tests := []struct {
		phase   Phase
		allowed []ActionKind
		denied  []ActionKind
	}{
		{PhaseReleaseBranchStaged, []ActionKind{ActionPushToStaging, ActionBumpMinor}, []ActionKind{ActionPromote, ActionFinishRelease}},
		{PhaseReleaseBranchLiveOnStaging, []ActionKind{ActionFinishRelease, ActionBumpMajor}, []ActionKind{ActionPushToStaging, ActionPromote}},
		{PhaseFinalStagingVerification, []ActionKind{ActionPromote}, []ActionKind{ActionFinishRelease, ActionBumpPatch}},
		{PhaseNoActionableDifference, []ActionKind{ActionRefresh}, []ActionKind{ActionPromote, ActionPushToStaging}},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			for _, a := range tt.allowed {
				if !IsLegal(tt.phase, a) {
					t.Errorf("%s should allow %s", tt.phase, a)
				}
			}
			for _, a := range tt.denied {
				if IsLegal(tt.phase, a) {
					t.Errorf("%s should not allow %s", tt.phase, a)
				}
			}
		})
	}
}

func TestParseActionKind(t *testing.T) {
	if got := ParseActionKind("promote"); got != ActionPromote {
		t.Fatalf("ParseActionKind(promote) = %s", got)
	}
	for _, in := range []string{"", "deploy", "unsupported", "PROMOTE"} {
		if got := ParseActionKind(in); got != ActionUnsupported {
			t.Errorf("ParseActionKind(%q) = %s, want unsupported", in, got)
		}
	}
}

func TestActionKind_BumpKind(t *testing.T) {
	if k, ok := ActionBumpMinor.BumpKind(); !ok || k != version.KindMinor {
		t.Fatalf("BumpKind() = %s, %v", k, ok)
	}
	if _, ok := ActionPromote.BumpKind(); ok {
		t.Fatal("promote is not a bump")
	}
}

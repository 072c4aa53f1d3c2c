package engine_test

import (
	"errors"
	"fmt"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/version"
)

// Example_classify shows how a snapshot maps to a phase and its actions.
func Example_classify() {
	tag := version.MustParseTag("v1.3.0")

	snap := engine.NewSnapshot(engine.SnapshotData{
		ReleaseTag: tag,
		Pointers: []engine.Pointer{
			{Name: engine.PointerDevelop, Commit: "4f2a91c0"},
			{Name: engine.PointerMaster, Commit: "9e01b7aa"},
			{Name: engine.ReleaseBranch(tag), Commit: "4f2a91c0"},
			{Name: engine.PointerStaging, Commit: "9e01b7aa"},
			{Name: engine.PointerProduction, Commit: "9e01b7aa"},
		},
	})

	phase := engine.Classify(snap, tag)
	fmt.Println(phase.Title())
	for _, a := range engine.LegalActions(phase) {
		fmt.Println("-", a.Label())
	}
	// Output:
	// Release branch created
	// - Push release to staging
	// - Change to patch release
	// - Change to minor release
	// - Change to major release
	// - Refresh
	// - Quit
}

// Example_ambiguous shows the terminal phase.
func Example_ambiguous() {
	snap := engine.NewSnapshot(engine.SnapshotData{
		Pointers: []engine.Pointer{
			{Name: engine.PointerDevelop, Commit: "abc123"},
			{Name: engine.PointerMaster, Commit: "abc123"},
			{Name: engine.PointerProduction, Commit: "abc123"},
			{Name: engine.PointerStaging, Commit: "def456"},
		},
	})

	phase := engine.Classify(snap, version.Zero)
	fmt.Println(phase, phase.IsTerminal(), len(engine.LegalActions(phase)))
	// Output: ambiguous_state true 0
}

// Example_errors shows classified errors with remediation text.
func Example_errors() {
	err := engine.NewConfigError("git-flow is not configured", nil).
		WithCode(engine.ErrCodeGitFlow).
		WithRemediation("Run 'git flow init -d' in %s.", "/src/app")

	wrapped := fmt.Errorf("preflight: %w", err)

	fmt.Println(engine.IsConfig(wrapped))
	fmt.Println(engine.RemediationOf(wrapped))
	fmt.Println(errors.Is(wrapped, &engine.EngineError{Class: engine.ErrorClassConfig, Code: engine.ErrCodeGitFlow}))
	// Output:
	// true
	// Run 'git flow init -d' in /src/app.
	// true
}

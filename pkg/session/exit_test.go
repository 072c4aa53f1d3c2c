package session

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/script"
	"github.com/busyloop/hu/pkg/terminal"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"quit", errQuit, 0},
		{"ambiguous", engine.NewAmbiguousError("can not determine phase"), ExitCodeAmbiguous},
		{"wrapped ambiguous", fmt.Errorf("loop: %w", engine.NewAmbiguousError("x")), ExitCodeAmbiguous},
		{"script", &script.ScriptError{ExitCode: 128, FailFast: true}, 128},
		{"config", engine.NewConfigError("no origin", nil), 1},
		{"plain", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Fatalf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	console := terminal.NewBuffered(&buf, false)

	err := engine.NewConfigError("this repository doesn't seem to be git-flow enabled", nil).
		WithCode(engine.ErrCodeGitFlow).
		WithRemediation("Please run 'git flow init -d'")
	Report(console, fmt.Errorf("preflight: %w", err))

	out := buf.String()
	if !strings.Contains(out, "ERROR: this repository doesn't seem to be git-flow enabled") {
		t.Fatalf("output lacks message:\n%s", out)
	}
	if strings.Contains(out, "[config]") {
		t.Fatalf("output leaks the error class:\n%s", out)
	}
	if !strings.Contains(out, "Please run 'git flow init -d'") {
		t.Fatalf("output lacks remediation:\n%s", out)
	}
}

func TestReportQuiet(t *testing.T) {
	var buf bytes.Buffer
	console := terminal.NewBuffered(&buf, false)

	Report(console, nil)
	Report(console, errQuit)
	if buf.Len() != 0 {
		t.Fatalf("Report wrote %q for a clean exit", buf.String())
	}
}

package session

import (
	"errors"
	"fmt"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/script"
	"github.com/busyloop/hu/pkg/terminal"
)

// ExitCodeAmbiguous is returned when the pipeline state can not be
// classified.
const ExitCodeAmbiguous = 6

// ExitCode maps the result of Run to a process exit code.
func ExitCode(err error) int {
	var se *script.ScriptError
	switch {
	case err == nil, errors.Is(err, errQuit):
		return 0
	case engine.IsAmbiguous(err):
		return ExitCodeAmbiguous
	case errors.As(err, &se):
		return script.ExitCodeOf(err)
	default:
		return 1
	}
}

// Report prints err and its remediation for the operator.
func Report(console *terminal.Console, err error) {
	if err == nil || errors.Is(err, errQuit) {
		return
	}
	msg := err.Error()
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		msg = ee.Message
		if ee.Err != nil {
			msg += ": " + ee.Err.Error()
		}
	}
	console.Println()
	console.Println(terminal.ErrorStyle.Render(fmt.Sprintf("ERROR: %s", msg)))
	if r := engine.RemediationOf(err); r != "" {
		console.Println()
		console.Printf("       %s\n", r)
	}
	console.Println()
}

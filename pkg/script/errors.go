package script

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned when the operator interrupts a running script
// and no interrupt handler was supplied.
var ErrInterrupted = errors.New("script interrupted")

// ScriptError reports the line that stopped a script.
type ScriptError struct {
	Line     Line
	ExitCode int
	Output   string
	FailFast bool
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("exit %d: %s (L%d)", e.ExitCode, e.Line.Text, e.Line.Number)
}

// IsFatal reports whether err is a fail-fast script failure.
func IsFatal(err error) bool {
	var se *ScriptError
	return errors.As(err, &se) && se.FailFast
}

// ExitCodeOf returns the exit code carried by a *ScriptError, or 1.
func ExitCodeOf(err error) int {
	var se *ScriptError
	if errors.As(err, &se) && se.ExitCode != 0 {
		return se.ExitCode
	}
	return 1
}

package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/busyloop/hu/pkg/terminal"
)

// runBuffered runs line to completion, capturing combined output. The
// command and its output are echoed when the line fails or the script is
// not quiet.
func (e *Engine) runBuffered(ctx context.Context, line Line, opts *Options) (LineResult, error) {
	quiet := e.quiet(*opts)
	if opts.Spinner {
		e.console.Busy(line.Text)
	}

	cmd := exec.CommandContext(ctx, e.shell, "-c", line.Text)
	cmd.Env = opts.environ()
	cmd.Dir = opts.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return signalGroup(cmd.Process.Pid, syscall.SIGTERM) }
	cmd.WaitDelay = e.killGrace

	start := time.Now()
	runErr := cmd.Run()
	if opts.Spinner {
		e.console.Unbusy()
	}

	lr := LineResult{Line: line, Output: out.String(), Duration: time.Since(start)}
	if ctx.Err() != nil {
		lr.ExitCode = exitCode(cmd.ProcessState)
		return lr, ErrInterrupted
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return lr, fmt.Errorf("run %q: %w", line.Text, runErr)
	}
	lr.ExitCode = exitCode(cmd.ProcessState)

	if lr.ExitCode != 0 || !quiet {
		style := terminal.OKStyle
		if lr.ExitCode != 0 {
			style = terminal.ErrorStyle
		}
		e.console.Printf("\n%s %s\n", style.Render(">"), terminal.CommandStyle.Render(line.Text))
		e.console.Write(out.Bytes())
	}

	return lr, nil
}

// exitCode maps a finished process to a shell-style exit code. A process
// killed by a signal reports 128+signal.
func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

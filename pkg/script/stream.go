package script

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/busyloop/hu/pkg/terminal"
)

// runStreaming runs line attached to a pseudo-terminal and relays its
// output live. This loop is the only writer to the console while the
// child runs: output, parser callbacks, the animation tick and interrupt
// handling are all serialized here.
func (e *Engine) runStreaming(ctx context.Context, line Line, opts *Options) (LineResult, error) {
	quiet := opts.Quiet
	e.console.Printf("\n%s %s\n", terminal.OKStyle.Render(">"), terminal.CommandStyle.Render(line.Text))

	cmd := exec.Command(e.shell, "-c", line.Text)
	cmd.Env = opts.environ()
	cmd.Dir = opts.Dir

	start := time.Now()
	ptmx, err := pty.StartWithSize(cmd, windowSize())
	if err != nil {
		return LineResult{Line: line}, fmt.Errorf("start %q: %w", line.Text, err)
	}
	defer ptmx.Close()

	pid := cmd.Process.Pid
	chunks := make(chan []byte)
	done := make(chan struct{})
	defer close(done)
	go readChunks(ptmx, chunks, done)

	ticker := time.NewTicker(e.console.FrameInterval())
	defer ticker.Stop()

	var (
		esc         escapeState
		pending     strings.Builder
		captured    = tailBuffer{limit: maxStreamCapture}
		lastOutput  = time.Now()
		tickShown   bool
		stopped     bool
		interrupted bool
		killTimer   <-chan time.Time
		ctxDone     = ctx.Done()
	)

	terminate := func() {
		_ = signalGroup(pid, syscall.SIGTERM)
		killTimer = time.After(e.killGrace)
	}

	eraseTick := func() {
		if tickShown {
			e.console.Printf(" \b")
			tickShown = false
		}
	}

relay:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				break relay
			}
			lastOutput = time.Now()
			if stopped || interrupted {
				continue
			}
			eraseTick()
			captured.Write(chunk)
			if !quiet {
				e.console.Write(chunk)
			}
			esc.observeAll(chunk)

			for _, b := range chunk {
				if b != '\n' {
					pending.WriteByte(b)
					continue
				}
				text := strings.TrimRight(pending.String(), "\r")
				pending.Reset()
				if opts.Parser != nil && !stopped && opts.Parser(text, pid) {
					stopped = true
					e.logger.Debug().Int("pid", pid).Str("line", text).Msg("Parser ended stream")
					terminate()
				}
			}

		case <-ticker.C:
			if quiet || stopped || interrupted || !e.console.IsTTY() {
				continue
			}
			if esc.inSequence() || time.Since(lastOutput) < e.idle {
				continue
			}
			eraseTick()
			e.console.Printf("%s\b", strings.TrimSpace(e.console.NextFrame()))
			tickShown = true

		case <-ctxDone:
			// Caught once; later cancellations are ignored.
			ctxDone = nil
			interrupted = true
			eraseTick()
			terminate()

		case <-killTimer:
			killTimer = nil
			_ = signalGroup(pid, syscall.SIGKILL)
		}
	}
	eraseTick()

	_ = cmd.Wait()
	lr := LineResult{
		Line:     line,
		Output:   captured.String(),
		Duration: time.Since(start),
		ExitCode: exitCode(cmd.ProcessState),
		Stopped:  stopped,
	}

	switch {
	case interrupted && opts.OnInterrupt != nil:
		lr.Stopped = true
		lr.ExitCode = 0
		opts.OnInterrupt()
		return lr, nil
	case interrupted:
		return lr, ErrInterrupted
	case stopped:
		lr.ExitCode = 0
	}

	return lr, nil
}

// maxStreamCapture bounds the output kept in the result of a streamed line.
const maxStreamCapture = 64 << 10

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

// readChunks copies pty output to chunks until the pty is closed. Linux
// reports the end of a pty as EIO, which is treated like EOF.
func readChunks(ptmx *os.File, chunks chan<- []byte, done <-chan struct{}) {
	defer close(chunks)
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// windowSize returns the operator's terminal size, or 80x24.
func windowSize() *pty.Winsize {
	if ws, err := pty.GetsizeFull(os.Stdin); err == nil && ws.Rows > 0 && ws.Cols > 0 {
		return ws
	}
	return &pty.Winsize{Rows: 24, Cols: 80}
}

// Package terminal owns the operator's terminal: plain output, the busy
// indicator, cursor state and interactive menus.
package terminal

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"golang.org/x/term"
)

const (
	cursorHide = "\x1b[?25l"
	cursorShow = "\x1b[?25h"
	clearLine  = "\r\x1b[K"
)

// Console is the single owner of operator output. Busy indicators and
// script output are written through it so that at most one writer touches
// the terminal at a time.
type Console struct {
	mu           sync.Mutex
	out          io.Writer
	tty          bool
	quiet        bool
	shuttingDown bool
	cursorHidden bool

	frames []string
	fps    time.Duration
	frame  int

	busyStop chan struct{}
	busyDone chan struct{}
}

// New creates a console writing to out. Output that is not a terminal
// forces quiet mode and disables animation.
func New(out io.Writer, quiet bool) *Console {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &Console{
		out:    out,
		tty:    tty,
		quiet:  quiet || !tty,
		frames: spinner.Dot.Frames,
		fps:    spinner.Dot.FPS,
	}
}

// NewBuffered creates a non-interactive console, mostly for tests.
func NewBuffered(out io.Writer, quiet bool) *Console {
	return &Console{
		out:    out,
		quiet:  quiet,
		frames: spinner.Dot.Frames,
		fps:    spinner.Dot.FPS,
	}
}

// Quiet reports whether successful output is suppressed.
func (c *Console) Quiet() bool { return c.quiet }

// IsTTY reports whether output is an interactive terminal.
func (c *Console) IsTTY() bool { return c.tty }

// Write implements io.Writer.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

// Printf writes formatted output.
func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Println writes a line.
func (c *Console) Println(args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, args...)
}

// Section prints a script comment as a header.
func (c *Console) Section(title string) {
	c.Println(SectionStyle.Render(title))
}

// NextFrame returns the next animation frame.
func (c *Console) NextFrame() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	f := c.frames[c.frame%len(c.frames)]
	c.frame++
	return f
}

// FrameInterval is the delay between animation frames.
func (c *Console) FrameInterval() time.Duration { return c.fps }

// Busy starts the busy indicator with a message. It is a no-op when
// output is not a terminal or the console is shutting down.
func (c *Console) Busy(msg string) {
	c.mu.Lock()
	if !c.tty || c.shuttingDown || c.busyStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.busyStop, c.busyDone = stop, done
	if !c.cursorHidden {
		io.WriteString(c.out, cursorHide)
		c.cursorHidden = true
	}
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.fps)
		defer ticker.Stop()
		for {
			frame := c.NextFrame()
			c.Printf("%s%s %s", clearLine, SpinnerStyle.Render(frame), msg)
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Unbusy stops the busy indicator and clears its line.
func (c *Console) Unbusy() {
	c.mu.Lock()
	stop, done := c.busyStop, c.busyDone
	c.busyStop, c.busyDone = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}

	close(stop)
	<-done

	c.mu.Lock()
	io.WriteString(c.out, clearLine)
	if c.cursorHidden && !c.shuttingDown {
		io.WriteString(c.out, cursorShow)
		c.cursorHidden = false
	}
	c.mu.Unlock()
}

// IsBusy reports whether the busy indicator is running.
func (c *Console) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyStop != nil
}

// ShowCursor makes the cursor visible again.
func (c *Console) ShowCursor() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cursorHidden {
		io.WriteString(c.out, cursorShow)
		c.cursorHidden = false
	}
}

// Shutdown stops the busy indicator and restores the cursor. Later Busy
// calls are ignored. Safe to call more than once.
func (c *Console) Shutdown() {
	c.mu.Lock()
	c.shuttingDown = true
	c.mu.Unlock()

	c.Unbusy()
	c.ShowCursor()
}

// ShuttingDown reports whether Shutdown was called.
func (c *Console) ShuttingDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shuttingDown
}

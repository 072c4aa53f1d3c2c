package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/terminal"
)

// revisionLength is how many commit digits the platform prints in its
// "Deploy <rev>" log line.
const revisionLength = 8

const (
	stateUp      = "State changed from starting to up"
	stateCrashed = "State changed from starting to crashed"
)

// rollout follows the production log after a promotion. It waits for the
// deploy of revision, then counts web dynos reaching "up" until want of
// them did.
type rollout struct {
	console  *terminal.Console
	revision string
	want     int
	have     int
	started  time.Time
	now      func() time.Time

	observing bool
}

func newRollout(console *terminal.Console, revision string, want int, now func() time.Time) *rollout {
	if len(revision) > revisionLength {
		revision = revision[:revisionLength]
	}
	return &rollout{console: console, revision: revision, want: want, started: now(), now: now}
}

// parse implements script.LineParser. It returns true once enough dynos
// are up.
func (r *rollout) parse(line string, _ int) bool {
	source, msg, ok := splitLogLine(line)
	if !ok {
		return false
	}
	if !r.observing {
		r.observing = strings.Contains(msg, "Deploy "+r.revision)
		return false
	}

	style := lipgloss.NewStyle()
	switch {
	case strings.Contains(msg, stateCrashed):
		style = terminal.ErrorStyle
	case strings.Contains(msg, stateUp):
		style = terminal.OKStyle
		r.have++
	}

	t := int(r.now().Sub(r.started) / time.Second)
	prefix := terminal.DimStyle.Render(fmt.Sprintf("[T+%02d:%02d %d/%d]", t/60, t%60, r.have, r.want))
	if source != "api" {
		prefix += " " + source + ":"
	}
	r.console.Println(prefix + " " + style.Render(msg))

	return r.have >= r.want
}

func (r *rollout) done() bool {
	return r.observing && r.have >= r.want
}

// splitLogLine splits "<timestamp> <system>[<source>]: <message>" into
// source and message.
func splitLogLine(line string) (source, msg string, ok bool) {
	_, rest, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok {
		return "", "", false
	}
	head, msg, ok := strings.Cut(rest, " ")
	if !ok {
		return "", "", false
	}
	open := strings.IndexByte(head, '[')
	end := strings.LastIndexByte(head, ']')
	if open < 0 || end <= open {
		return "", "", false
	}
	return head[open+1 : end], msg, true
}

// observeRollout tails the production log until the new web dynos are up
// or the operator interrupts.
func (c *Controller) observeRollout(ctx context.Context, snap *engine.Snapshot) {
	res := c.session.Resolution
	prod := res.Production.Name
	tag := c.session.ReleaseTag.String()

	launched := func() {
		c.console.Println()
		c.console.Println(terminal.OKStyle.Render(fmt.Sprintf("Release %s is being launched on %s", tag, prod)))
		c.console.Println()
	}

	formation, err := c.platform.FormationOf(ctx, prod, "web")
	if err != nil || formation == nil || formation.Quantity == 0 {
		if err != nil {
			c.logger.WithError(err).Debug("web formation unknown, not observing startup")
		}
		launched()
		return
	}

	c.console.Println()
	c.console.Section("# Observe startup")
	if snap.Preboot() {
		dynos := "dynos are"
		if formation.Quantity == 1 {
			dynos = "dyno is"
		}
		c.console.Printf("#\n# Preboot is %s for %s.\n#\n", terminal.OKStyle.Render("enabled"), terminal.BoldStyle.Render(prod))
		c.console.Printf("# %d new %s (%s) starting up.\n", formation.Quantity, dynos, terminal.BoldStyle.Render(formation.Size))
		c.console.Println("# The old dynos will shut down within 3 minutes.")
	}

	interrupted := false
	r := newRollout(c.console, snap.Commit(engine.PointerStaging), formation.Quantity, c.now)
	opts := c.options()
	opts.Parser = r.parse
	opts.OnInterrupt = func() { interrupted = true }

	_, err = c.run(ctx, fmt.Sprintf(`
:stream
:quiet
:failquiet
:nospinner
:return
heroku logs --tail -a %s | grep -E "heroku\[|app\[api\]"`, quote(prod)), opts)
	if err != nil {
		c.logger.WithError(err).Warn("log stream failed")
	}

	if interrupted || err != nil || !r.done() {
		launched()
		return
	}
	c.console.Println()
	c.console.Println(terminal.OKStyle.Render(fmt.Sprintf("Release %s has been deployed to %s", tag, prod)))
	c.console.Println()
}

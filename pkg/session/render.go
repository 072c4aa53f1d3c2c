package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/terminal"
	"github.com/busyloop/hu/pkg/version"
)

const (
	clearScreen = "\x1b[H\x1b[2J"

	// initialChangelog is shown for the very first release.
	initialChangelog = "Initial revision"
)

var releaseHints = map[version.Kind]string{
	version.KindPatch: "bugfix only",
	version.KindMinor: "new features",
	version.KindMajor: "breaking changes",
}

// render prints the status table, warnings, release summary and the
// banner of the current phase.
func (c *Controller) render(ctx context.Context, snap *engine.Snapshot) {
	res := c.session.Resolution
	if c.console.IsTTY() {
		c.console.Printf("%s", clearScreen)
	}
	c.console.Println(terminal.BadgeStyle.Bold(true).Render(res.Pipeline.Name))
	c.console.Println()
	c.console.Println(terminal.RenderTable(terminal.StatusHeaders, c.statusRows(snap)))

	if missing := snap.MissingConfig(); len(missing) > 0 {
		c.console.Println()
		for _, key := range missing {
			c.console.Printf("%s Missing config in %s: %s\n",
				terminal.WarningBadge.Render("WARNING"), terminal.BoldStyle.Render(res.Production.Name), key)
		}
	}

	for _, check := range snap.CI().Failures() {
		c.console.Println()
		c.console.Printf("%s %s\n",
			terminal.WarningBadge.Render("CI "+strings.ToUpper(string(check.State))),
			terminal.BoldStyle.Render(check.Description))
		if check.URL != "" {
			c.console.Printf("%s%s\n", strings.Repeat(" ", len(check.State)+5), check.URL)
		}
	}

	c.renderRelease(ctx, snap)
	c.renderBanner()
}

// statusRows builds one row per pointer. Commits are green when they match
// develop.
func (c *Controller) statusRows(snap *engine.Snapshot) [][]string {
	develop, _ := snap.Get(engine.PointerDevelop)
	release := engine.ReleaseBranch(c.session.ReleaseTag)

	var rows [][]string
	add := func(name, label string) {
		p, ok := snap.Get(name)
		if !ok && name == release {
			return
		}
		commit := terminal.Match(p.Short(), develop.Short())
		if name == engine.PointerOriginDevelop {
			commit += ciSymbol(snap, p, develop, release)
		}
		modified := ""
		if !p.ModifiedAt.IsZero() {
			modified = humanize.Time(p.ModifiedAt)
		}
		dynos := p.FormationSummary()
		if dynos == "" && p.Dynos > 0 {
			dynos = fmt.Sprint(p.Dynos)
		}
		rows = append(rows, []string{label, commit, strings.Join(p.Tags, " "), modified, p.ModifiedBy, dynos, p.State})
	}

	add(engine.PointerDevelop, engine.PointerDevelop)
	add(engine.PointerOriginDevelop, engine.PointerOriginDevelop)
	add(release, release)
	add(engine.PointerMaster, engine.PointerMaster)
	add(engine.PointerStaging, appLabel(snap, engine.PointerStaging))
	add(engine.PointerProduction, appLabel(snap, engine.PointerProduction))
	return rows
}

func appLabel(snap *engine.Snapshot, name string) string {
	if p, ok := snap.Get(name); ok && p.App != "" {
		return p.App
	}
	return name
}

// ciSymbol is shown next to origin/develop only while a release branch
// exists and origin/develop matches develop.
func ciSymbol(snap *engine.Snapshot, origin, develop engine.Pointer, release string) string {
	if !snap.Has(release) || origin.Commit != develop.Commit {
		return ""
	}
	switch snap.CI().State {
	case engine.CIStatePending:
		return " 🐌"
	case engine.CIStateSuccess:
		return " ✅"
	case engine.CIStateFailure, engine.CIStateError:
		return " ❌"
	default:
		return ""
	}
}

// renderRelease prints the release type and the changes since the last
// release. The changelog is kept for finishing the release.
func (c *Controller) renderRelease(ctx context.Context, snap *engine.Snapshot) {
	tag := c.session.ReleaseTag
	c.changelog = initialChangelog

	if !snap.Has(engine.ReleaseBranch(tag)) {
		c.console.Printf("\nThis is release %s\n\n", terminal.OKStyle.Render(tag.String()))
		return
	}

	kind := c.ledger.KindOf(tag)
	c.console.Printf("\nThis will be %s %s\n",
		terminal.BoldStyle.Render(string(kind)+" release"), terminal.OKStyle.Render(tag.String()))

	prev := c.session.Previous
	if prev != version.Zero {
		log, err := c.hooks.Changelog(ctx, prev, tag, engine.ReleaseBranch(tag))
		if err != nil {
			c.console.Printf("%s %s\n", terminal.WarningBadge.Render("WARNING"), err.Error())
		}
		if log != "" {
			c.changelog = log
			c.console.Printf("\nChanges since %s %s\n",
				terminal.BoldStyle.Render(prev.String()),
				terminal.DimStyle.Render("("+releaseHints[kind]+")"))
			c.console.Println(terminal.OKStyle.Render(log))
		}
	}
	c.console.Println()
}

// renderBanner explains what the current phase means.
func (c *Controller) renderBanner() {
	res := c.session.Resolution
	branch := terminal.BoldStyle.Render(engine.ReleaseBranch(c.session.ReleaseTag))
	staging := terminal.BoldStyle.Render(res.Staging.Name)
	url := terminal.BoldStyle.Render(res.Staging.WebURL)
	indent := strings.Repeat(" ", 12)

	switch c.session.Phase {
	case engine.PhaseReleaseBranchStaged:
		c.console.Printf("%s The local release branch %s was created.\n", terminal.BadgeStyle.Render("Phase 1/2"), branch)
		c.console.Printf("%sNothing else has happened so far. Push this branch to\n", indent)
		c.console.Printf("%s%s to begin the deploy procedure.\n\n", indent, staging)

	case engine.PhaseReleaseBranchLiveOnStaging:
		c.console.Printf("%s Your local %s (formerly %s) is live on %s.\n\n",
			terminal.BadgeStyle.Render("Phase 2/2"), branch, terminal.BoldStyle.Render("develop"), staging)
		c.console.Printf("%sPlease test here: %s\n\n", indent, url)
		c.console.Printf("%sIf everything looks good you may proceed and deploy to production.\n", indent)
		c.console.Printf("%sIf there are problems: Quit, delete the release branch and start fixing.\n\n", indent)

	case engine.PhaseFinalStagingVerification:
		indent = strings.Repeat(" ", 10)
		c.console.Printf("%s %s\n", terminal.BadgeStyle.Render("DEPLOY"),
			terminal.BoldStyle.Render(" HEADS UP! This is the last chance to detect problems."))
		c.console.Printf("%sThe final version of %s is staged.\n\n", indent, branch)
		c.console.Printf("%sTest here: %s\n\n", indent, url)
		c.console.Printf("%sThis is the exact version that will be promoted to production.\n", indent)
		c.console.Printf("%sFrom here you are on your own. Good luck %s!\n\n", indent, c.operatorName())

	case engine.PhaseNoActionableDifference:
		c.console.Println(terminal.DimStyle.Render("Nothing to deploy. Production runs what staging runs."))
		c.console.Println()
	}
}

func (c *Controller) operatorName() string {
	if c.operator == "" {
		return "operator"
	}
	return c.operator
}

// renderAmbiguous explains the ambiguous state and how to recover.
func (c *Controller) renderAmbiguous() {
	c.console.Println()
	c.console.Println(terminal.AlertBanner.Render(
		"AMBIGUOUS STATE - CAN NOT DETERMINE PHASE OF OPERATION - YOUR REALITY IS INVALID"))
	c.console.Println()
	c.console.Println("You have created a situation that hu can't understand.")
	c.console.Printf("This is most likely due to a %s or %s.\n\n",
		terminal.BoldStyle.Render("heroku rollback"), terminal.BoldStyle.Render("manipulation of git history"))
	c.console.Println("But don't be afraid!  Recovery is (usually) easy:")
	c.console.Printf("%s 'git commit' a new revision to your local %s branch.\n\n",
		terminal.OKStyle.Render(">>>"), terminal.BoldStyle.Render("develop"))
	c.console.Println("When hu sees that your develop branch is different from everything else")
	c.console.Println("then it can (usually) recover from there.")
	c.console.Println()
}

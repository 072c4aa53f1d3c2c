package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/hooks"
	"github.com/busyloop/hu/pkg/policy"
	"github.com/busyloop/hu/pkg/terminal"
	"github.com/busyloop/hu/pkg/version"
)

// ciPollInterval is how often a pending CI status is re-read before a
// release is finished.
var ciPollInterval = 10 * time.Second

// handler performs one menu action. Returning errQuit ends the session
// successfully; a *resumable error returns to the loop.
type handler func(ctx context.Context, snap *engine.Snapshot) error

func (c *Controller) actionHandlers() map[engine.ActionKind]handler {
	return map[engine.ActionKind]handler{
		engine.ActionRefresh:       c.refresh,
		engine.ActionQuit:          c.quit,
		engine.ActionPushToStaging: c.pushToStaging,
		engine.ActionBumpPatch:     c.bump(version.KindPatch),
		engine.ActionBumpMinor:     c.bump(version.KindMinor),
		engine.ActionBumpMajor:     c.bump(version.KindMajor),
		engine.ActionFinishRelease: c.finishRelease,
		engine.ActionPromote:       c.promote,
		engine.ActionUnsupported:   c.unsupported,
	}
}

func (c *Controller) refresh(context.Context, *engine.Snapshot) error {
	c.console.Println()
	return nil
}

// quit offers to delete a release branch that never reached staging.
func (c *Controller) quit(ctx context.Context, snap *engine.Snapshot) error {
	branch := engine.ReleaseBranch(c.session.ReleaseTag)
	if p, ok := snap.Get(branch); ok && p.Known() && p.Commit != snap.Commit(engine.PointerStaging) {
		deleted, err := c.deleteBranch(ctx, branch)
		if err != nil {
			return err
		}
		if deleted {
			c.console.Println()
		}
	}
	return errQuit
}

func (c *Controller) unsupported(context.Context, *engine.Snapshot) error {
	err := fmt.Errorf("action not supported in phase %s", c.session.Phase)
	c.console.Println(terminal.ErrorStyle.Render("Error: " + err.Error()))
	return &resumable{outcome: engine.OutcomeUnsupported, err: err}
}

func (c *Controller) pushToStaging(ctx context.Context, _ *engine.Snapshot) error {
	branch := engine.ReleaseBranch(c.session.ReleaseTag)
	opts := c.options()
	opts.Stream = true
	_, err := c.run(ctx, fmt.Sprintf(`
# Push develop to origin
git push origin develop

# Push %s to %s
git push %s %s:master -f`,
		branch, c.session.Resolution.Staging.Name, quote(c.session.PushURL), quote(branch)), opts)
	return err
}

// bump replaces the release branch with one for the next tag of kind.
func (c *Controller) bump(kind version.Kind) handler {
	return func(ctx context.Context, _ *engine.Snapshot) error {
		next := c.ledger.Next(c.session.Previous, kind)
		deleted, err := c.deleteBranch(ctx, engine.ReleaseBranch(c.session.ReleaseTag))
		if err != nil {
			return err
		}
		if !deleted {
			return &resumable{outcome: engine.OutcomeCancelled, err: errors.New("release branch kept")}
		}
		return c.selectReleaseTag(ctx, next, false)
	}
}

// gate evaluates the release policies for action. Warnings are printed;
// a denial is printed and returned as a resumable error.
func (c *Controller) gate(ctx context.Context, snap *engine.Snapshot, action engine.ActionKind) error {
	if c.policies == nil {
		return nil
	}
	res, err := c.policies.EvaluateAction(ctx, policy.NewInput(snap, c.session.Phase, action, c.session.Previous))
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		c.console.Printf("%s %s\n", terminal.WarningBadge.Render("WARNING"), w.Message)
	}
	if res.Allowed {
		return nil
	}

	c.console.Println()
	for _, v := range res.Violations {
		c.console.Printf("%s %s\n", terminal.AlertBanner.Render("DENIED"), terminal.BoldStyle.Render(v.Message))
		if v.Remediation != "" {
			c.console.Printf("       %s\n", v.Remediation)
		}
	}
	c.console.Println()
	return &resumable{outcome: engine.OutcomeDenied, err: res.Err(action)}
}

// awaitCI waits while CI reports origin/develop as pending and returns a
// fresh snapshot once it settled.
func (c *Controller) awaitCI(ctx context.Context, snap *engine.Snapshot) (*engine.Snapshot, error) {
	if c.ci == nil || snap.CI().State != engine.CIStatePending {
		return snap, nil
	}
	commit := snap.Commit(engine.PointerOriginDevelop)
	started := c.now()

	c.console.Busy("CI: PENDING")
	defer c.console.Unbusy()
	ticker := time.NewTicker(ciPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		status, err := c.ci.CombinedStatus(ctx, commit)
		if err != nil {
			c.logger.WithError(err).Debug("ci status read failed")
			continue
		}
		if status.State != engine.CIStatePending {
			c.logger.WithField("state", string(status.State)).
				WithField("waited", c.now().Sub(started).String()).
				Info("ci settled")
			return c.collector.Collect(ctx, c.session.ReleaseTag)
		}
	}
}

// finishRelease merges the release into master, tags it, pushes master and
// tags to origin and the final master to staging.
func (c *Controller) finishRelease(ctx context.Context, snap *engine.Snapshot) error {
	snap, err := c.awaitCI(ctx, snap)
	if err != nil {
		return err
	}
	if err := c.gate(ctx, snap, engine.ActionFinishRelease); err != nil {
		return err
	}

	tag := c.session.ReleaseTag
	f, err := os.CreateTemp("", "hu-tag-")
	if err != nil {
		return fmt.Errorf("failed to create release message: %w", err)
	}
	defer os.Remove(f.Name())
	_, werr := fmt.Fprintf(f, "%s\n%s", tag, c.changelog)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("failed to write release message: %w", werr)
	}

	env := hooks.Env(c.session.Previous, tag)
	env["GIT_MERGE_AUTOEDIT"] = "no"
	env["EDITOR"] = "cp " + quote(f.Name())
	env["GIT_EDITOR"] = env["EDITOR"]

	opts := c.options()
	opts.Env = env

	if path, ok := c.hooks.PreRelease(); ok {
		if _, err := c.run(ctx, "# Run pre-release hook\n"+quote(path), opts); err != nil {
			return err
		}
	}

	t := quote(tag.String())
	opts.Stream = true
	res, err := c.run(ctx, fmt.Sprintf(`
:return
# Finish release
git flow release finish %[1]s

# Adjust merge message
git checkout master
git commit --amend -F %[2]s
git tag -f %[1]s

# Push final master (%[3]s) to origin
git push origin master
git push origin --tags

# Push final master (%[3]s) to staging
git push %[4]s master:master -f

# Merge master back into develop
git checkout develop
git rebase master`, t, quote(f.Name()), tag, quote(c.cfg.Remote)), opts)
	if err != nil {
		c.abortMerge(ctx)
		return err
	}

	if res.ExitCode != 0 {
		c.abortMerge(ctx)
		c.console.Println()
		c.console.Println(terminal.ErrorStyle.Render("*** ERROR! Could not finish release ***"))
		c.console.Println()
		c.console.Println("This usually means a merge conflict or")
		c.console.Println("something equally annoying has occured.")
		c.console.Println()
		c.console.Println("Please bring the universe into a state")
		c.console.Println("where the above sequence of commands can")
		c.console.Println("succeed. Then try again.")
		c.console.Println()
		return &resumable{
			outcome: engine.OutcomeFailed,
			err:     engine.NewScriptError(fmt.Sprintf("could not finish release %s", tag), nil).WithCode(engine.ErrCodeMergeConflict),
		}
	}

	return nil
}

// abortMerge also runs after the operator interrupted a finish, so it does
// not inherit cancellation from ctx.
func (c *Controller) abortMerge(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := c.run(ctx, `
:return
# Abort failed merge (if any)
git merge --abort`, c.options()); err != nil {
		c.logger.WithError(err).Warn("merge abort failed")
	}
}

// promote copies the staging build to production, pushes master and
// develop to origin and watches the new dynos come up.
func (c *Controller) promote(ctx context.Context, snap *engine.Snapshot) error {
	if err := c.gate(ctx, snap, engine.ActionPromote); err != nil {
		return err
	}

	res := c.session.Resolution
	c.console.Println()
	c.console.Section(fmt.Sprintf("# Promote %s to %s", res.Staging.Name, res.Production.Name))
	c.console.Busy("promoting")
	_, err := c.platform.Promote(ctx, res)
	c.console.Unbusy()
	if err != nil {
		return engine.NewPlatformError("promotion failed", err).
			WithCode(engine.ErrCodePromotionFailed).
			WithOperation("promote").
			WithRemediation("Check the pipeline on the platform dashboard before trying again.")
	}

	opts := c.options()
	opts.Stream = true
	pushed, err := c.run(ctx, `
:return
# Push master and develop to origin
git push origin master
git push origin develop`, opts)
	if err != nil {
		return err
	}
	if pushed.ExitCode != 0 {
		c.logger.WithField("exit_code", pushed.ExitCode).Warn("push to origin failed after promotion")
	}

	c.observeRollout(ctx, snap)
	return errQuit
}

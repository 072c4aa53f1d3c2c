package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/script"
	"github.com/busyloop/hu/pkg/telemetry"
	"github.com/busyloop/hu/pkg/terminal"
	"github.com/busyloop/hu/pkg/version"
)

// menuEntry binds a menu line to the action it dispatches.
type menuEntry struct {
	action engine.ActionKind
	option terminal.Option
}

// loop collects, classifies, renders and dispatches until an action ends
// the session.
func (c *Controller) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap, err := c.snapshot(ctx)
		if err != nil {
			return err
		}
		if c.session.Phase.IsTerminal() {
			c.renderAmbiguous()
			return engine.NewAmbiguousError("can not determine phase of operation").
				WithRemediation("'git commit' a new revision to your local develop branch")
		}

		c.render(ctx, snap)

		entries := c.menu(snap)
		options := make([]terminal.Option, len(entries))
		for i, e := range entries {
			options[i] = e.option
		}
		idx, err := c.prompt.Select(ctx, ">", options)
		if errors.Is(err, terminal.ErrAborted) {
			return errQuit
		}
		if err != nil {
			return err
		}

		action := engine.ActionUnsupported
		if idx >= 0 && idx < len(entries) {
			action = entries[idx].action
		}
		if err := c.dispatch(ctx, action, snap); err != nil {
			return err
		}
	}
}

// snapshot collects the pipeline state and classifies it.
func (c *Controller) snapshot(ctx context.Context) (*engine.Snapshot, error) {
	c.console.Busy("synchronizing")
	snap, err := c.collector.Collect(ctx, c.session.ReleaseTag)
	c.console.Unbusy()
	if err != nil {
		return nil, err
	}

	c.refreshLedger(ctx)
	c.session.Phase = engine.Classify(snap, c.session.ReleaseTag)
	c.logger.WithRelease(c.session.ReleaseTag.String(), string(c.session.Phase)).Debug("phase classified")
	if c.tel != nil {
		c.tel.Metrics.RecordPhase(string(c.session.Phase))
	}
	c.journalObservation(ctx, snap, c.session.Phase)
	return snap, nil
}

// refreshLedger re-reads the repository tags. A failed read keeps the
// previous ledger.
func (c *Controller) refreshLedger(ctx context.Context) {
	names, err := c.repo.Tags(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("failed to refresh tags")
		return
	}
	c.ledger = version.NewLedger(names)
}

// menu lists the legal actions of the current phase, universal ones first.
// Bumps to the tag already in use are left out.
func (c *Controller) menu(snap *engine.Snapshot) []menuEntry {
	legal := engine.LegalActions(c.session.Phase)
	ordered := make([]engine.ActionKind, 0, len(legal))
	for _, a := range legal {
		if a == engine.ActionRefresh || a == engine.ActionQuit {
			ordered = append(ordered, a)
		}
	}
	for _, a := range legal {
		if a != engine.ActionRefresh && a != engine.ActionQuit {
			ordered = append(ordered, a)
		}
	}

	tag := c.session.ReleaseTag
	prev := c.session.Previous
	res := c.session.Resolution

	entries := make([]menuEntry, 0, len(ordered))
	for _, a := range ordered {
		label := a.Label()
		switch a {
		case engine.ActionPushToStaging:
			label = fmt.Sprintf("Push develop to origin/develop and %s to %s", engine.ReleaseBranch(tag), res.Staging.Name)
		case engine.ActionBumpPatch, engine.ActionBumpMinor, engine.ActionBumpMajor:
			kind, _ := a.BumpKind()
			next := c.ledger.Next(prev, kind)
			if next == tag {
				continue
			}
			label = fmt.Sprintf("%-43s %s -> %s", bumpLabel(kind), prev, next)
		case engine.ActionFinishRelease:
			label = "DEPLOY to " + res.Production.Name
		case engine.ActionPromote:
			label = fmt.Sprintf("DEPLOY (promote %s to %s)", res.Staging.Name, res.Production.Name)
		}
		entries = append(entries, menuEntry{action: a, option: terminal.Option{Label: label}})
	}
	return entries
}

func bumpLabel(kind version.Kind) string {
	switch kind {
	case version.KindMajor:
		return "Change to MAJOR release (breaking changes)"
	case version.KindMinor:
		return "Change to MINOR release (new features)"
	default:
		return "Change to PATCH release (bugfix only)"
	}
}

// resumable is an action failure the operator can recover from in the
// loop. The handler has already reported it.
type resumable struct {
	outcome engine.ActionOutcome
	err     error
}

func (r *resumable) Error() string { return r.err.Error() }
func (r *resumable) Unwrap() error { return r.err }

// dispatch runs the handler of action. Unknown or illegal actions go to
// the unsupported handler.
func (c *Controller) dispatch(ctx context.Context, action engine.ActionKind, snap *engine.Snapshot) error {
	h, ok := c.handlers[action]
	if !ok || !engine.IsLegal(c.session.Phase, action) {
		action = engine.ActionUnsupported
		h = c.handlers[engine.ActionUnsupported]
	}

	op := telemetry.StartOperation(ctx, "action."+string(action),
		telemetry.AttrAction.String(string(action)),
		telemetry.AttrReleaseTag.String(c.session.ReleaseTag.String()),
		telemetry.AttrPhase.String(string(c.session.Phase)))
	started := c.now()
	err := h(op.Ctx, snap)
	outcome := outcomeOf(err)
	op.End(err)

	if c.tel != nil {
		c.tel.Metrics.RecordAction(string(action), string(outcome), c.now().Sub(started))
	}
	c.journalAction(ctx, action, outcome, started, journalErr(err))

	var r *resumable
	if errors.As(err, &r) {
		c.logger.WithError(r.err).WithField("action", string(action)).Info("action did not complete")
		return nil
	}
	return err
}

func outcomeOf(err error) engine.ActionOutcome {
	var r *resumable
	switch {
	case err == nil, errors.Is(err, errQuit):
		return engine.OutcomeSucceeded
	case errors.As(err, &r):
		return r.outcome
	case errors.Is(err, context.Canceled), errors.Is(err, script.ErrInterrupted):
		return engine.OutcomeCancelled
	default:
		return engine.OutcomeFailed
	}
}

func journalErr(err error) error {
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

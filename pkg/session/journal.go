package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/stores"
)

// Journal writes never fail a deploy. Errors are logged and the journal is
// disabled for the rest of the session.

func (c *Controller) beginJournal(ctx context.Context) {
	if c.journal == nil {
		return
	}
	s := &stores.Session{
		ID:        c.session.ID,
		Repo:      c.repo.Dir(),
		Operator:  c.operator,
		StartedAt: c.session.StartedAt,
	}
	if err := c.journal.CreateSession(ctx, s); err != nil {
		c.disableJournal(err)
	}
}

// targetUpdater is implemented by journals that can record the resolved
// pipeline after the session was created.
type targetUpdater interface {
	UpdateSessionTargets(ctx context.Context, id, pipeline, staging, production string) error
}

func (c *Controller) journalTargets(ctx context.Context) {
	u, ok := c.journal.(targetUpdater)
	if !ok || c.session.Resolution == nil {
		return
	}
	r := c.session.Resolution
	if err := u.UpdateSessionTargets(ctx, c.session.ID, r.Pipeline.Name, r.Staging.Name, r.Production.Name); err != nil {
		c.disableJournal(err)
	}
}

func (c *Controller) journalAction(ctx context.Context, action engine.ActionKind, outcome engine.ActionOutcome, started time.Time, err error) {
	if c.journal == nil {
		return
	}
	a := &stores.Action{
		ID:         stores.NewID(),
		SessionID:  c.session.ID,
		Action:     string(action),
		Phase:      string(c.session.Phase),
		ReleaseTag: c.session.ReleaseTag.String(),
		Outcome:    string(outcome),
		StartedAt:  started,
		Duration:   c.now().Sub(started),
	}
	if err != nil {
		a.ExitCode = ExitCode(err)
		a.Message = err.Error()
	}
	if jerr := c.journal.RecordAction(ctx, a); jerr != nil {
		c.disableJournal(jerr)
	}
}

func (c *Controller) journalObservation(ctx context.Context, snap *engine.Snapshot, phase engine.Phase) {
	if c.journal == nil {
		return
	}
	pointers := make(map[string]string)
	for _, name := range snap.Names() {
		if commit := snap.Commit(name); commit != "" {
			pointers[name] = commit
		}
	}
	raw, err := json.Marshal(pointers)
	if err != nil {
		c.logger.WithError(err).Debug("failed to encode pointers")
		return
	}
	obs := &stores.Observation{
		SessionID:  c.session.ID,
		Phase:      string(phase),
		ReleaseTag: snap.ReleaseTag().String(),
		Pointers:   string(raw),
		ObservedAt: snap.CollectedAt(),
	}
	if err := c.journal.RecordObservation(ctx, obs); err != nil {
		c.disableJournal(err)
	}
}

func (c *Controller) endJournal(ctx context.Context, code int, err error) {
	if c.journal == nil {
		return
	}
	var msg *string
	if err != nil {
		s := err.Error()
		msg = &s
	}
	if jerr := c.journal.EndSession(ctx, c.session.ID, code, msg); jerr != nil {
		c.logger.WithError(jerr).Warn("failed to close journal session")
	}
	if cerr := c.journal.Close(); cerr != nil {
		c.logger.WithError(cerr).Warn("failed to close journal")
	}
	c.journal = nil
}

func (c *Controller) disableJournal(err error) {
	c.logger.WithError(err).Warn("journal disabled")
	if cerr := c.journal.Close(); cerr != nil {
		c.logger.WithError(cerr).Debug("failed to close journal")
	}
	c.journal = nil
}

package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/busyloop/hu/pkg/telemetry"
	"github.com/busyloop/hu/pkg/version"
)

// Collector builds snapshots from the local repository and the two
// deployment targets.
type Collector struct {
	repo      Repository
	reader    TargetReader
	ci        CIReader
	targets   Targets
	envIgnore map[string]struct{}
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer
	now       func() time.Time
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithCIReader enables the CI worker.
func WithCIReader(ci CIReader) CollectorOption {
	return func(c *Collector) { c.ci = ci }
}

// WithEnvIgnore excludes config keys from the missing-config comparison.
func WithEnvIgnore(keys []string) CollectorOption {
	return func(c *Collector) {
		for _, k := range keys {
			c.envIgnore[k] = struct{}{}
		}
	}
}

// WithCollectorLogger sets the logger.
func WithCollectorLogger(logger zerolog.Logger) CollectorOption {
	return func(c *Collector) { c.logger = logger }
}

// WithCollectorTelemetry records snapshot metrics and spans.
func WithCollectorTelemetry(m *telemetry.Metrics, t *telemetry.Tracer) CollectorOption {
	return func(c *Collector) {
		c.metrics = m
		c.tracer = t
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

// NewCollector creates a collector for the given pipeline targets.
func NewCollector(repo Repository, reader TargetReader, targets Targets, opts ...CollectorOption) *Collector {
	c := &Collector{
		repo:      repo,
		reader:    reader,
		targets:   targets,
		envIgnore: make(map[string]struct{}),
		logger:    zerolog.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// targetResult is written by exactly one worker.
type targetResult struct {
	pointer Pointer
	state   TargetState
	ok      bool
}

// Collect captures a snapshot for releaseTag. Local pointers are read
// synchronously. Staging, production and CI are read concurrently; a failed
// remote read leaves its pointer unknown and is never returned as an error.
func (c *Collector) Collect(ctx context.Context, releaseTag version.Tag) (*Snapshot, error) {
	timer := telemetry.NewTimer()
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.StartSpan(ctx, "snapshot.collect",
			telemetry.AttrReleaseTag.String(releaseTag.String()))
		defer span.End()
	}

	local, err := c.readLocal(ctx, releaseTag)
	if err != nil {
		return nil, err
	}

	var staging, production targetResult
	var ci CIStatus

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		staging = c.readTarget(gctx, RoleStaging, PointerStaging)
		return nil
	})
	g.Go(func() error {
		production = c.readTarget(gctx, RoleProduction, PointerProduction)
		return nil
	})
	if c.ci != nil {
		originDevelop := local[PointerOriginDevelop].Commit
		if originDevelop != "" {
			g.Go(func() error {
				ci = c.readCI(gctx, originDevelop)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pointers := make([]Pointer, 0, len(local)+2)
	for _, p := range local {
		pointers = append(pointers, p)
	}
	pointers = append(pointers, staging.pointer, production.pointer)

	var missing []string
	if staging.ok && production.ok {
		missing = c.missingConfig(staging.state.ConfigKeys, production.state.ConfigKeys)
	}

	snap := NewSnapshot(SnapshotData{
		ReleaseTag:    releaseTag,
		Pointers:      pointers,
		CI:            ci,
		MissingConfig: missing,
		Preboot:       production.state.Preboot,
		CollectedAt:   c.now(),
	})

	c.metrics.RecordSnapshot(timer.Duration())
	c.logger.Debug().
		Str("release_tag", releaseTag.String()).
		Dur("duration", timer.Duration()).
		Bool("staging_known", staging.ok).
		Bool("production_known", production.ok).
		Msg("snapshot collected")

	return snap, nil
}

func (c *Collector) readLocal(ctx context.Context, releaseTag version.Tag) (map[string]Pointer, error) {
	refs := []struct {
		name     string
		ref      string
		required bool
	}{
		{PointerDevelop, "develop", true},
		{PointerOriginDevelop, "origin/develop", false},
		{PointerMaster, "master", true},
		{ReleaseBranch(releaseTag), ReleaseBranch(releaseTag), false},
	}

	out := make(map[string]Pointer, len(refs))
	for _, r := range refs {
		commit, ok, err := c.repo.ResolveRef(ctx, r.ref)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", r.ref, err)
		}
		if !ok {
			if r.required {
				return nil, NewConfigError(fmt.Sprintf("branch %s does not exist", r.ref), nil).
					WithCode(ErrCodeGitFlow).
					WithRemediation("Run 'git flow init' or create the %s branch.", r.ref)
			}
			continue
		}
		tags, err := c.repo.TagsAt(ctx, commit)
		if err != nil {
			return nil, fmt.Errorf("failed to list tags at %s: %w", r.ref, err)
		}
		out[r.name] = Pointer{Name: r.name, Commit: commit, Tags: tags}
	}
	return out, nil
}

// readTarget never fails: errors yield an unknown pointer.
func (c *Collector) readTarget(ctx context.Context, role TargetRole, name string) targetResult {
	app := c.targets.App(role)
	res := targetResult{pointer: Pointer{Name: name, App: app}}
	if app == "" {
		return res
	}

	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.StartTargetSpan(ctx, string(role), app)
		defer span.End()
	}

	state, err := c.reader.ReadTarget(ctx, app)
	if err != nil {
		c.logger.Warn().Err(err).Str("role", string(role)).Str("app", app).Msg("target unavailable")
		c.metrics.RecordTargetRead(string(role), false)
		return res
	}
	c.metrics.RecordTargetRead(string(role), true)

	res.ok = true
	res.state = state
	res.pointer = Pointer{
		Name:       name,
		Commit:     state.Commit,
		App:        app,
		Release:    state.Release,
		ModifiedAt: state.ModifiedAt,
		ModifiedBy: state.ModifiedBy,
		Dynos:      state.Dynos,
		Formation:  state.Formation,
		State:      state.State,
	}
	if state.Commit != "" {
		tags, err := c.repo.TagsAt(ctx, state.Commit)
		if err != nil {
			c.logger.Debug().Err(err).Str("commit", state.Commit).Msg("tags unavailable")
		}
		res.pointer.Tags = tags
	}
	return res
}

func (c *Collector) readCI(ctx context.Context, commit string) CIStatus {
	status, err := c.ci.CombinedStatus(ctx, commit)
	if err != nil {
		c.logger.Warn().Err(err).Str("commit", commit).Msg("CI status unavailable")
		return CIStatus{Commit: commit}
	}
	status.Commit = commit
	return status
}

func (c *Collector) missingConfig(staging, production []string) []string {
	present := make(map[string]struct{}, len(production))
	for _, k := range production {
		present[k] = struct{}{}
	}
	var missing []string
	for _, k := range staging {
		if _, ok := present[k]; ok {
			continue
		}
		if _, ignored := c.envIgnore[k]; ignored {
			continue
		}
		missing = append(missing, k)
	}
	sort.Strings(missing)
	return missing
}

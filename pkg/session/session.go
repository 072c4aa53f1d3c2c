package session

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/busyloop/hu/pkg/config"
	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/hooks"
	"github.com/busyloop/hu/pkg/platform"
	"github.com/busyloop/hu/pkg/policy"
	"github.com/busyloop/hu/pkg/stores"
	"github.com/busyloop/hu/pkg/telemetry"
	"github.com/busyloop/hu/pkg/terminal"
	"github.com/busyloop/hu/pkg/version"
)

// cleanupTimeout bounds the git and journal work done once the session ends,
// including after the root context was cancelled.
const cleanupTimeout = 30 * time.Second

// errQuit ends the loop; Run reports it as success.
var errQuit = errors.New("quit")

// Session is the state carried from one loop iteration to the next.
type Session struct {
	ID         string
	HomeBranch string
	ReleaseTag version.Tag
	Phase      engine.Phase
	StartedAt  time.Time

	// Previous is the highest released tag when the session started.
	Previous version.Tag

	// PushURL is the push URL of the deploy remote.
	PushURL string

	Resolution *platform.Resolution
}

// Controller drives one interactive deploy session. It is not safe for
// concurrent use: everything except status reads and the working-copy
// update happens on the goroutine that called Run.
type Controller struct {
	cfg      *config.Config
	repo     Repository
	platform Platform
	runner   Runner
	console  *terminal.Console
	prompt   terminal.Prompter
	ci       engine.CIReader
	policies *policy.Engine
	journal  stores.Journal
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
	token    string
	operator string
	now      func() time.Time

	session   Session
	ledger    *version.Ledger
	collector *engine.Collector
	hooks     *hooks.Hooks
	handlers  map[engine.ActionKind]handler

	// changelog is the text rendered for the current release.
	changelog string
}

// Option configures a Controller.
type Option func(*Controller)

// WithPrompter replaces the interactive menu.
func WithPrompter(p terminal.Prompter) Option {
	return func(c *Controller) { c.prompt = p }
}

// WithCIReader enables the CI column and CI-aware policies.
func WithCIReader(ci engine.CIReader) Option {
	return func(c *Controller) { c.ci = ci }
}

// WithPolicies gates finish and promote on the given policy engine.
func WithPolicies(p *policy.Engine) Option {
	return func(c *Controller) { c.policies = p }
}

// WithJournal records the session in j. The controller closes it.
func WithJournal(j stores.Journal) Option {
	return func(c *Controller) { c.journal = j }
}

// WithTelemetry attaches tracing and metrics. The controller shuts it down.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(c *Controller) {
		c.tel = t
		if t != nil && t.Logger != nil {
			c.logger = t.Logger.NewComponentLogger("session")
		}
	}
}

// WithToken sets the platform credential checked during preflight.
func WithToken(token string) Option {
	return func(c *Controller) { c.token = token }
}

// WithOperator names the person deploying, for banners and the journal.
func WithOperator(name string) Option {
	return func(c *Controller) { c.operator = name }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New creates a controller.
func New(cfg *config.Config, repo Repository, plat Platform, runner Runner, console *terminal.Console, opts ...Option) *Controller {
	c := &Controller{
		cfg:      cfg,
		repo:     repo,
		platform: plat,
		runner:   runner,
		console:  console,
		prompt:   terminal.NewMenu(os.Stdin, os.Stdout),
		logger:   telemetry.NewNopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.hooks = hooks.New(repo.Dir(), cfg.HooksDir, repo,
		hooks.WithLogger(c.logger.Zerolog()))
	c.handlers = c.actionHandlers()
	return c
}

// Session returns a copy of the current session state.
func (c *Controller) Session() Session {
	return c.session
}

// Run executes the session until the operator quits, a production
// promotion completes, or an error ends it. Use ExitCode to map the result
// to a process exit code.
func (c *Controller) Run(ctx context.Context) (err error) {
	c.session = Session{ID: stores.NewID(), StartedAt: c.now()}
	if c.tel != nil {
		ctx = c.tel.WithContext(ctx)
	}
	ctx = telemetry.BeginSession(ctx, c.session.ID)
	c.logger = c.logger.WithSessionID(c.session.ID)

	defer func() {
		if errors.Is(err, errQuit) {
			err = nil
		}
		c.cleanup(ctx, err)
	}()

	if err = c.preflight(ctx); err != nil {
		return err
	}
	c.beginJournal(ctx)

	if err = c.prepare(ctx); err != nil {
		return err
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	c.watchPolicies(watchCtx)

	return c.loop(ctx)
}

// prepare resolves the deployment targets while the working copy is
// updated in the background, then picks the release tag.
func (c *Controller) prepare(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.updateWorkingCopy(gctx)
	})

	resolveErr := c.resolve(ctx)
	// Branch reads below must see the updated working copy.
	if err := g.Wait(); err != nil {
		return err
	}
	if resolveErr != nil {
		return resolveErr
	}

	c.console.Busy("synchronizing")
	err := c.probeMerge(ctx)
	c.console.Unbusy()
	if err != nil {
		return err
	}

	names, err := c.repo.Tags(ctx)
	if err != nil {
		return engine.NewConfigError("failed to list tags", err).WithOperation("tags")
	}
	c.ledger = version.NewLedger(names)
	for _, name := range c.ledger.Ignored() {
		c.logger.WithField("tag", name).Debug("ignoring tag that is not a version")
	}
	c.session.Previous = c.ledger.Highest()

	return c.selectReleaseTag(ctx, c.ledger.Next(c.session.Previous, version.KindPatch), true)
}

// watchPolicies loads the repository policies and reloads them on change
// until ctx is done.
func (c *Controller) watchPolicies(ctx context.Context) {
	if c.policies == nil {
		return
	}

	dir := config.Resolve(c.repo.Dir(), c.cfg.PolicyDir)
	if err := c.policies.LoadDir(ctx, dir); err != nil {
		c.console.Println(terminal.WarningBadge.Render("WARNING") + " " + err.Error())
		c.logger.WithError(err).Warn("repository policies not loaded")
	}
	if _, err := os.Stat(dir); err != nil {
		return
	}
	if err := c.policies.Watch(ctx, dir); err != nil {
		c.logger.WithError(err).Warn("policy reload disabled")
	}
}

// cleanup restores the terminal and the working copy. It runs on every
// exit path.
func (c *Controller) cleanup(ctx context.Context, err error) {
	c.console.Shutdown()

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	c.returnHome(bg)

	code := ExitCode(err)
	c.endJournal(bg, code, err)
	telemetry.EndSession(ctx, code, err)

	if c.tel != nil {
		if serr := c.tel.Shutdown(bg); serr != nil {
			c.logger.WithError(serr).Warn("telemetry shutdown failed")
		}
	}
}

// returnHome checks out the branch the operator started on.
func (c *Controller) returnHome(ctx context.Context) {
	home := c.session.HomeBranch
	if home == "" {
		return
	}
	current, err := c.repo.CurrentBranch(ctx)
	if err == nil && current == home {
		return
	}
	_, err = c.run(ctx, `
:quiet
:nospinner
:return
# Return to home branch
git checkout `+quote(home), c.options())
	if err != nil {
		c.logger.WithError(err).Warn("failed to return to home branch")
	}
}

package commands

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/busyloop/hu/pkg/ci"
	"github.com/busyloop/hu/pkg/config"
	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/git"
	"github.com/busyloop/hu/pkg/platform"
	"github.com/busyloop/hu/pkg/policy"
	"github.com/busyloop/hu/pkg/script"
	"github.com/busyloop/hu/pkg/session"
	"github.com/busyloop/hu/pkg/stores"
	"github.com/busyloop/hu/pkg/telemetry"
	"github.com/busyloop/hu/pkg/terminal"
)

func newDeployCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Interactive deploy of the current repository",
		Long: `Start an interactive deploy session for the app in the current working copy.

The session shows develop, origin/develop, the release branch, master and
the staging and production apps side by side, works out which phase of the
release you are in and offers the actions that make sense from there.

Prerequisites:
  - an "origin" remote, with branch.master.remote = origin
  - git flow initialized ("git flow init -d") without a version tag prefix
  - a platform token in HEROKU_API_KEY or ~/.netrc

Set HU_GITHUB_ACCESS_TOKEN to show the CI status of origin/develop and to
gate releases on it.`,
		Example: `  # Deploy the app in the current directory
  hu deploy

  # Only show the output of failing commands
  hu deploy --quiet

  # Keep no journal for this session
  HU_JOURNAL=off hu deploy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd.Context(), cmd, version)
		},
	}
	return cmd
}

func runDeploy(ctx context.Context, cmd *cobra.Command, version string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	console := terminal.New(os.Stdout, quiet)

	cfg.Telemetry.ServiceVersion = version
	tel, err := telemetry.NewTelemetry(cfg.Telemetry)
	if err != nil {
		return engine.NewConfigError("failed to set up telemetry", err).WithOperation("telemetry")
	}
	logger := tel.Logger.Zerolog()
	if err := tel.Start(); err != nil {
		logger.Warn().Err(err).Msg("Metrics endpoint disabled")
	}

	// The controller owns tel once it exists; until then it is ours.
	abort := func(err error) error {
		if serr := tel.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			logger.Warn().Err(serr).Msg("Telemetry shutdown failed")
		}
		return err
	}

	wd, err := os.Getwd()
	if err != nil {
		return abort(err)
	}
	repo, err := session.OpenRepo(ctx, wd, git.WithLogger(logger))
	if err != nil {
		return abort(err)
	}

	token, err := platform.Token(os.Getenv, platform.DefaultNetrcPath())
	if err != nil && !errors.Is(err, platform.ErrNoCredential) {
		return abort(engine.NewConfigError("failed to read platform credentials", err).
			WithCode(engine.ErrCodeMissingCredential).
			WithOperation("credentials"))
	}
	client := platform.NewClient(token,
		platform.WithBaseURL(cfg.APIURL),
		platform.WithUserAgent("hu/"+version),
		platform.WithLogger(logger))

	runner := script.NewEngine(console, logger,
		script.WithMetrics(tel.Metrics),
		script.WithTracer(tel.Tracer))

	policies, err := policy.NewEngine(logger)
	if err != nil {
		return abort(engine.NewPolicyError("failed to load built-in policies", err))
	}
	policies.DisablePolicies(cfg.DisabledPolicies...)

	opts := []session.Option{
		session.WithTelemetry(tel),
		session.WithToken(token),
		session.WithPolicies(policies),
		session.WithOperator(operatorName(ctx, repo)),
	}
	if reader := ciReader(ctx, cfg, repo, logger); reader != nil {
		opts = append(opts, session.WithCIReader(reader))
	}
	if cfg.Journal.Enabled {
		journal, err := stores.Open(ctx, stores.Config{Path: cfg.Journal.Path})
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Journal.Path).Msg("Release journal disabled")
		} else {
			opts = append(opts, session.WithJournal(journal))
		}
	}

	err = session.New(cfg, repo, client, runner, console, opts...).Run(ctx)
	if err != nil {
		session.Report(console, err)
		return &exitError{code: session.ExitCode(err), err: err}
	}
	return nil
}

// ciReader returns the GitHub status reader when a token is configured and
// origin points at GitHub.
func ciReader(ctx context.Context, cfg *config.Config, repo *git.Repo, logger zerolog.Logger) engine.CIReader {
	token := os.Getenv(ci.TokenEnv)
	if token == "" {
		return nil
	}
	slug, err := repo.OriginSlug(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("CI status disabled")
		return nil
	}
	return ci.NewGitHub(token, slug,
		ci.WithBaseURL(cfg.GitHubAPIURL),
		ci.WithLogger(logger))
}

func operatorName(ctx context.Context, repo *git.Repo) string {
	if name, ok, err := repo.Config(ctx, "user.name"); err == nil && ok {
		return name
	}
	return os.Getenv("USER")
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/busyloop/hu/pkg/config"
	"github.com/busyloop/hu/pkg/session"
	"github.com/busyloop/hu/pkg/terminal"
)

var (
	// Global flags
	configPath string
	quiet      bool
)

// exitError carries a process exit code out of a command that already
// reported its error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, version, commit, buildDate string) int {
	rootCmd := newRootCommand(version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var ee *exitError
	if errors.As(err, &ee) {
		log.Debug().Err(ee.err).Int("exit_code", ee.code).Msg("Command failed")
		return ee.code
	}
	session.Report(terminal.New(os.Stderr, false), err)
	return session.ExitCode(err)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hu",
		Short: "hu - guided git-flow deploys through a staging/production pipeline",
		Long: `hu walks you through a release: it cuts a release branch from develop,
pushes it to the staging app, finishes the release into master and promotes
the staging build to production.

Run it from inside the working copy of the app you want to deploy.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default $HU_CONFIG or ~/.hu.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only print output of failing commands")

	rootCmd.AddCommand(newDeployCommand(version))
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newPoliciesCommand())

	return rootCmd
}

// loadConfig reads the configuration named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.NewLoader().Load(cmd.Context(), configPath)
}

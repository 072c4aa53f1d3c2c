package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/busyloop/hu/pkg/engine"
	"github.com/busyloop/hu/pkg/git"
	"github.com/busyloop/hu/pkg/stores"
	"github.com/busyloop/hu/pkg/terminal"
)

var historyHeaders = []string{"when", "repo", "release", "action", "phase", "outcome", "took", "by", "message"}

func newHistoryCommand() *cobra.Command {
	var (
		limit   int
		all     bool
		action  string
		outcome string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent deploy actions from the release journal",
		Long: `List the most recent actions recorded by hu deploy.

Inside a working copy only actions of that repository are shown unless
--all is given.`,
		Example: `  # Last actions in this repository
  hu history

  # Every promotion on this machine
  hu history --all --action promote`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return engine.NewConfigError("the release journal is disabled", nil).
					WithOperation("history").
					WithRemediation("Unset HU_JOURNAL or set journal.enabled in ~/.hu.yaml")
			}
			if limit <= 0 {
				limit = cfg.Journal.HistoryLimit
			}

			journal, err := stores.Open(ctx, stores.Config{Path: cfg.Journal.Path})
			if err != nil {
				return engine.NewConfigError("failed to open release journal", err).
					WithOperation("history").
					WithDetail("path", cfg.Journal.Path)
			}
			defer journal.Close()

			var filter stores.ActionFilter
			if !all {
				wd, _ := os.Getwd()
				if repo, err := git.Open(ctx, wd); err == nil {
					dir := repo.Dir()
					filter.Repo = &dir
				}
			}
			if action != "" {
				filter.Action = &action
			}
			if outcome != "" {
				filter.Outcome = &outcome
			}

			entries, err := journal.ListActions(ctx, filter, limit, 0)
			if err != nil {
				return fmt.Errorf("failed to list actions: %w", err)
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No actions recorded yet.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), terminal.RenderTable(historyHeaders, historyRows(entries)))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of actions to show (default journal.history_limit)")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "show actions of every repository")
	cmd.Flags().StringVar(&action, "action", "", "only show this action (e.g. promote)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "only show this outcome (e.g. failed)")

	return cmd
}

func historyRows(entries []*stores.ActionEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			humanize.Time(e.StartedAt),
			filepath.Base(e.Repo),
			e.ReleaseTag,
			e.Action.Action,
			e.Phase,
			outcomeLabel(e.Outcome),
			e.Duration.Round(time.Second).String(),
			e.Operator,
			e.Message,
		})
	}
	return rows
}

func outcomeLabel(outcome string) string {
	switch engine.ActionOutcome(outcome) {
	case engine.OutcomeSucceeded:
		return terminal.OKStyle.Render(outcome)
	case engine.OutcomeFailed, engine.OutcomeDenied:
		return terminal.ErrorStyle.Render(outcome)
	default:
		return outcome
	}
}

package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/busyloop/hu/pkg/config"
	"github.com/busyloop/hu/pkg/git"
	"github.com/busyloop/hu/pkg/policy"
	"github.com/busyloop/hu/pkg/terminal"
)

var policyHeaders = []string{"name", "severity", "enabled", "source", "description"}

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the release policies that gate finish and promote",
		Long: `List the built-in release policies and the repository policies found in
the policy directory (.hu/policy by default) of the current working copy.

Policies with severity error or critical block the action; warnings are
printed and the action proceeds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			pe, err := policy.NewEngine(log.Logger)
			if err != nil {
				return fmt.Errorf("failed to load built-in policies: %w", err)
			}
			pe.DisablePolicies(cfg.DisabledPolicies...)

			wd, _ := os.Getwd()
			if repo, err := git.Open(ctx, wd); err == nil {
				if err := pe.LoadDir(ctx, config.Resolve(repo.Dir(), cfg.PolicyDir)); err != nil {
					return err
				}
			}

			var rows [][]string
			for _, p := range pe.ListPolicies() {
				rows = append(rows, []string{
					p.Name, string(p.Severity), fmt.Sprint(p.Enabled), p.Source, p.Description,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), terminal.RenderTable(policyHeaders, rows))
			return nil
		},
	}
	return cmd
}

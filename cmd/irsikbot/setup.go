package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Reconcile the guild against the structure document once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildDeps(cmd)
			if err != nil {
				return err
			}

			doc, err := deps.structure.Load()
			if err != nil {
				return err
			}

			report, err := deps.reconciler.Reconcile(cmd.Context(), doc)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
			if err != nil {
				return fmt.Errorf("setup aborted: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("chat-bot-token", "", "Chat platform bot token.")
	cmd.Flags().String("chat-guild-id", "", "Guild (server) ID the bot manages.")
	cmd.Flags().String("tracker-token", "", "GitHub API token.")
	cmd.Flags().String("tracker-owner", "", "GitHub account owning the repositories.")

	return cmd
}

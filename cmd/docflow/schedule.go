package main

import (
	"context"

	"github.com/aretw0/docflow/internal/cli"
	"github.com/aretw0/docflow/internal/config"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Fire scheduled requests that are due",
	Long: `Runs one scheduler pass: every handle whose scheduled publication or
depublication is due gets the matching event fired as the system identity.
Use it from cron when the server does not run the scheduler itself.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			sch, err := rt.Engine.Scheduler()
			if err != nil {
				return err
			}
			report, err := sch.Tick(ctx)
			if err != nil {
				return err
			}
			cli.PrintSystemMessage(cmd.OutOrStdout(), "%d due: %d taken, %d skipped, %d failed.",
				report.Due, report.Taken, report.Skipped, report.Failed)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

package main

import (
	"context"
	"fmt"

	"github.com/aretw0/docflow/internal/cli"
	"github.com/aretw0/docflow/internal/config"
	"github.com/spf13/cobra"
)

var handlesCmd = &cobra.Command{
	Use:   "handles",
	Short: "Manage stored document handles",
}

var handlesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all handles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			ids, err := rt.Engine.Handles(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No handles found.")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		})
	},
}

var handlesRmCmd = &cobra.Command{
	Use:   "rm <handle-id>...",
	Short: "Remove one or more handles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			var failed int
			for _, id := range args {
				if err := rt.Engine.Delete(ctx, id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", id, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed handle '%s'\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("failed to remove %d handles", failed)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(handlesCmd)
	handlesCmd.AddCommand(handlesLsCmd)
	handlesCmd.AddCommand(handlesRmCmd)
}

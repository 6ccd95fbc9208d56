package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/aretw0/docflow/internal/cli"
	"github.com/aretw0/docflow/internal/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every chart for consistency",
	Long: `Loads every chart in the chart directory, compiling guards and checking
states, transitions and task names. Exits non-zero when any chart is invalid.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			names, err := rt.Engine.Charts(ctx)
			if err != nil {
				return err
			}
			failures, err := rt.Engine.Validate(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			slices.Sort(names)
			for _, name := range names {
				if err, bad := failures[name]; bad {
					fmt.Fprintf(out, "✗ %s: %v\n", name, err)
					continue
				}
				fmt.Fprintf(out, "✓ %s\n", name)
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d charts are invalid", len(failures), len(names))
			}
			fmt.Fprintf(out, "%d charts are valid.\n", len(names))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

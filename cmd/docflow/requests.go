package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/docflow/internal/cli"
	"github.com/aretw0/docflow/internal/config"
	"github.com/spf13/cobra"
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Maintain the requests kept on handles",
}

var requestsPurgeCmd = &cobra.Command{
	Use:   "purge <handle-id>",
	Short: "Drop rejected requests older than a cutoff",
	Long: `Removes zombie requests (rejected but kept for the requester to see)
whose request date is before the cutoff. --before takes an RFC 3339 time or a
duration counted back from now, such as 720h.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("before")
		before, err := parseCutoff(raw, time.Now())
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			n, err := rt.Engine.PurgeZombies(ctx, args[0], before)
			if err != nil {
				return err
			}
			cli.PrintSystemMessage(cmd.OutOrStdout(), "Purged %d requests from '%s'.", n, args[0])
			return nil
		})
	},
}

// parseCutoff accepts an RFC 3339 timestamp or a duration before now. Empty
// means now.
func parseCutoff(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --before %q: want an RFC 3339 time or a duration", raw)
	}
	return now.Add(-d), nil
}

func init() {
	rootCmd.AddCommand(requestsCmd)
	requestsCmd.AddCommand(requestsPurgeCmd)
	requestsPurgeCmd.Flags().String("before", "", "Cutoff as an RFC 3339 time or a duration ago (default now)")
}

package main

import (
	"context"

	"github.com/aretw0/docflow/internal/cli"
	"github.com/aretw0/docflow/internal/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the docflow engine in server mode, exposing handles, events and hints
as a JSON API over HTTP. The scheduler and the chart watcher run alongside when
enabled in the configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()
		cmd.SetContext(sc)

		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.HTTP.Addr = addr
			}
			if cmd.Flags().Changed("schedule") {
				cfg.Scheduler.Enabled, _ = cmd.Flags().GetBool("schedule")
			}
			if cmd.Flags().Changed("watch") {
				cfg.Charts.Watch, _ = cmd.Flags().GetBool("watch")
			}
			if err := cli.Serve(ctx, rt, cfg, cmd.OutOrStdout()); err != nil {
				return err
			}
			if sig := sc.Signal(); sig != nil {
				rt.Logger.Info("shutdown requested", "signal", sig.String())
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on, overrides http.addr")
	serveCmd.Flags().Bool("schedule", false, "Fire due scheduled requests while serving")
	serveCmd.Flags().Bool("watch", false, "Reload charts when their files change")
}

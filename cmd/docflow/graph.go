package main

import (
	"context"
	"fmt"

	"github.com/aretw0/docflow/internal/cli"
	"github.com/aretw0/docflow/internal/config"
	"github.com/aretw0/docflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <chart>",
	Short: "Export a chart as a Mermaid diagram",
	Long: `Outputs a Mermaid flowchart of the chart's states and transitions. With
--handle, the handle's current state is highlighted; adding --as draws the
events that identity may fire now in bold.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handleID, _ := cmd.Flags().GetString("handle")
		identity, _ := cmd.Flags().GetString("as")

		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			def, err := rt.Engine.Definition(ctx, args[0])
			if err != nil {
				return err
			}

			var overlay *graph.Overlay
			if handleID != "" {
				h, err := rt.Engine.Handle(ctx, handleID)
				if err != nil {
					return err
				}
				if h.Workflow != def.Name {
					return fmt.Errorf("handle %s follows chart %s, not %s", h.ID, h.Workflow, def.Name)
				}
				overlay = &graph.Overlay{CurrentState: h.State}
				if identity != "" {
					hints, err := rt.Engine.Hints(ctx, handleID, identity)
					if err != nil {
						return err
					}
					for _, e := range hints.Events() {
						if hints.Allowed(e) {
							overlay.Allowed = append(overlay.Allowed, e)
						}
					}
				}
			}

			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(def.Chart, overlay))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("handle", "", "Highlight the state of this handle")
	graphCmd.Flags().String("as", "", "Draw the events this identity may fire in bold (requires --handle)")
}

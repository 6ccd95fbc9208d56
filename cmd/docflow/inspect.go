package main

import (
	"context"
	"fmt"

	"github.com/aretw0/docflow/internal/cli"
	"github.com/aretw0/docflow/internal/config"
	"github.com/aretw0/docflow/internal/presentation/tui"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <handle-id>",
	Short: "Show a handle, its variants and requests",
	Long: `Prints the stored handle. With --as, the hints for that identity are
included.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, _ := cmd.Flags().GetString("as")
		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			h, err := rt.Engine.Handle(ctx, args[0])
			if err != nil {
				return err
			}
			var hints *domain.Hints
			if identity != "" {
				if hints, err = rt.Engine.Hints(ctx, args[0], identity); err != nil {
					return err
				}
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), struct {
					*domain.DocumentHandle
					Hints *domain.Hints `json:"hints,omitempty"`
				}{h, hints})
			}
			return render(cmd, tui.HandleMarkdown(h, hints))
		})
	},
}

var hintsCmd = &cobra.Command{
	Use:   "hints <handle-id>",
	Short: "List the events an identity may fire next",
	Long: `Each event reachable from the handle's state is listed as allowed or with
the reason it is blocked.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, _ := cmd.Flags().GetString("as")
		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			hints, err := rt.Engine.Hints(ctx, args[0], identity)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), hints)
			}
			return render(cmd, tui.HintsMarkdown(hints))
		})
	},
}

// render prints markdown through glamour, or raw with --plain.
func render(cmd *cobra.Command, markdown string) error {
	if plain, _ := cmd.Flags().GetBool("plain"); plain {
		_, err := fmt.Fprint(cmd.OutOrStdout(), markdown)
		return err
	}
	out, err := tui.NewRenderer()(markdown)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().String("as", "", "Include hints for this identity")
	inspectCmd.Flags().Bool("json", false, "Print as JSON")
	inspectCmd.Flags().Bool("plain", false, "Print raw markdown")

	rootCmd.AddCommand(hintsCmd)
	hintsCmd.Flags().String("as", "", "Identity asking for hints")
	hintsCmd.Flags().Bool("json", false, "Print as JSON")
	hintsCmd.Flags().Bool("plain", false, "Print raw markdown")
	_ = hintsCmd.MarkFlagRequired("as")
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/docflow/internal/cli"
	"github.com/aretw0/docflow/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var createCmd = &cobra.Command{
	Use:   "create <handle-id> <workflow>",
	Short: "Register a new document handle",
	Long: `Creates a handle bound to the named chart, in the chart's initial state.
Content is read from --content-file (YAML or JSON) and --set pairs, which win.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := readContent(cmd)
		if err != nil {
			return err
		}
		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			h, err := rt.Engine.Create(ctx, args[0], args[1], content)
			if err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return printJSON(cmd.OutOrStdout(), h)
			}
			cli.PrintSystemMessage(cmd.OutOrStdout(), "Created '%s' in state '%s'.", h.ID, h.State)
			return nil
		})
	},
}

func readContent(cmd *cobra.Command) (map[string]any, error) {
	content := make(map[string]any)
	if path, _ := cmd.Flags().GetString("content-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		// YAML is a superset of JSON.
		if err := yaml.Unmarshal(data, &content); err != nil {
			return nil, fmt.Errorf("invalid content file %s: %w", path, err)
		}
	}
	set, _ := cmd.Flags().GetStringToString("set")
	for k, v := range set {
		content[k] = v
	}
	return content, nil
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().String("content-file", "", "YAML or JSON file holding the initial content")
	createCmd.Flags().StringToString("set", nil, "Content fields as key=value pairs")
	createCmd.Flags().Bool("json", false, "Print the created handle as JSON")
}

package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/docflow"
	"github.com/aretw0/docflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of docflow",
	Run: func(cmd *cobra.Command, args []string) {
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(docflow.Version))
			return
		}
		tui.PrintBanner(cmd.OutOrStdout(), docflow.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("short", false, "Print only the version number")
}

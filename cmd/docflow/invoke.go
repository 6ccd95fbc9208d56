package main

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/aretw0/docflow"
	"github.com/aretw0/docflow/internal/cli"
	"github.com/aretw0/docflow/internal/config"
	"github.com/aretw0/docflow/pkg/domain"
	"github.com/spf13/cobra"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <handle-id> <event>",
	Short: "Fire an event on a handle",
	Long: `Fires the event as the given identity and reports the outcome: taken,
not_applicable, denied (with the chart's reason) or failed. Only a failed
invocation exits non-zero.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := readParams(cmd)
		if err != nil {
			return err
		}
		identity, _ := cmd.Flags().GetString("as")

		return withRuntime(cmd, func(ctx context.Context, rt *cli.Runtime, cfg *config.Config) error {
			res, err := rt.Engine.Invoke(ctx, docflow.InvokeRequest{
				HandleID: args[0],
				Event:    args[1],
				Identity: identity,
				Params:   params,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				printResult(cmd, res)
			}
			if res.Outcome == domain.OutcomeFailed {
				return fmt.Errorf("event %s failed: %w", res.Event, res.Err)
			}
			return nil
		})
	},
}

func printResult(cmd *cobra.Command, res *domain.Result) {
	out := cmd.OutOrStdout()
	switch res.Outcome {
	case domain.OutcomeTaken:
		if res.PriorState != res.State {
			cli.PrintSystemMessage(out, "%s: %s -> %s", res.Event, res.PriorState, res.State)
		} else {
			cli.PrintSystemMessage(out, "%s: taken in %s", res.Event, res.State)
		}
	case domain.OutcomeDenied:
		cli.PrintSystemMessage(out, "%s: denied (%s)", res.Event, res.Reason)
	case domain.OutcomeNotApplicable:
		cli.PrintSystemMessage(out, "%s: not applicable in %s", res.Event, res.State)
	case domain.OutcomeFailed:
		cli.PrintSystemMessage(out, "%s: failed (%s)", res.Event, res.Reason)
	}
}

// readParams merges --params (a JSON object) with --param pairs, which win.
func readParams(cmd *cobra.Command) (map[string]any, error) {
	params := make(map[string]any)
	if raw, _ := cmd.Flags().GetString("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, fmt.Errorf("invalid --params: %w", err)
		}
	}
	pairs, _ := cmd.Flags().GetStringToString("param")
	maps.Copy(params, toAnyMap(pairs))
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

func init() {
	rootCmd.AddCommand(invokeCmd)
	invokeCmd.Flags().String("as", "", "Identity firing the event")
	invokeCmd.Flags().StringToString("param", nil, "Event parameters as key=value pairs")
	invokeCmd.Flags().String("params", "", "Event parameters as a JSON object")
	invokeCmd.Flags().Bool("json", false, "Print the result as JSON")
	_ = invokeCmd.MarkFlagRequired("as")
}

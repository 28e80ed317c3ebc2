package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/content-router/internal/model"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route ideas to publications",
}

func printResult(w io.Writer, res *model.RoutingResult) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	if !res.Matched {
		fmt.Fprintf(w, "No rule matched: %s\n", res.Reason)
		return nil
	}
	fmt.Fprintf(w, "Rule %s (%s): %s -> %s", res.RuleID, res.RuleName, res.Action, orDash(res.PublicationSlug))
	if res.Audience != "" {
		fmt.Fprintf(w, " [%s]", res.Audience)
	}
	fmt.Fprintf(w, "\n%s\n", res.Reason)
	return nil
}

// -- route preview --

var routePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Evaluate routing rules against facts without recording anything",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		facts, err := factsFromFlags(cmd, cmd.InOrStdin())
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Engine.PreviewRoute(ctx, facts)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

// -- route commit --

var routeCommitCmd = &cobra.Command{
	Use:   "commit <idea-id>",
	Short: "Route an idea and record the routing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		facts, err := factsFromFlags(cmd, cmd.InOrStdin())
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		intakeOnly, _ := cmd.Flags().GetBool("intake-only")
		if intakeOnly {
			r, err := e.Engine.Intake(ctx, args[0], facts, actorFlag)
			if err != nil {
				return err
			}
			return printRouting(cmd.OutOrStdout(), r)
		}

		r, res, err := e.Engine.CommitRoute(ctx, args[0], facts, actorFlag)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"routing": r, "result": res})
		}
		if err := printResult(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return printRouting(cmd.OutOrStdout(), r)
	},
}

// -- route manual --

var routeManualCmd = &cobra.Command{
	Use:   "manual <routing-id> <publication>",
	Short: "Route a routing in intake to a publication by hand",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		audience, _ := cmd.Flags().GetString("audience")
		reason, _ := cmd.Flags().GetString("reason")
		r, err := e.Engine.ManualRoute(ctx, args[0], args[1], audience, actorFlag, reason)
		if err != nil {
			return err
		}
		return printRouting(cmd.OutOrStdout(), r)
	},
}

func init() {
	addFactFlags(routePreviewCmd)
	addFactFlags(routeCommitCmd)
	routeCommitCmd.Flags().Bool("intake-only", false, "record the idea in intake without routing")

	routeManualCmd.Flags().String("audience", "", "target audience")
	routeManualCmd.Flags().String("reason", "", "reason recorded on the status change")

	routeCmd.AddCommand(routePreviewCmd, routeCommitCmd, routeManualCmd)
	rootCmd.AddCommand(routeCmd)
}

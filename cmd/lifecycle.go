package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/store"
)

// -- kill --

var killCmd = &cobra.Command{
	Use:   "kill <routing-id>",
	Short: "Kill a routing at any non-terminal stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reason, _ := cmd.Flags().GetString("reason")

		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		r, err := e.Engine.Kill(ctx, args[0], reason, actorFlag)
		if err != nil {
			return err
		}
		return printRouting(cmd.OutOrStdout(), r)
	},
}

// -- publish --

var publishCmd = &cobra.Command{
	Use:   "publish <routing-id>",
	Short: "Mark a scheduled routing as published",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		r, err := e.Engine.Publish(ctx, args[0], actorFlag)
		if err != nil {
			return err
		}
		return printRouting(cmd.OutOrStdout(), r)
	},
}

// -- show --

var showCmd = &cobra.Command{
	Use:   "show <routing-id>",
	Short: "Show a routing and its status history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		r, err := e.Engine.Routing(ctx, args[0])
		if err != nil {
			return err
		}
		history, err := e.Engine.History(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]any{"routing": r, "history": history})
		}
		if err := printRouting(out, r); err != nil {
			return err
		}
		fmt.Fprintln(out)
		tw := newTable(out, "WHEN", "FROM", "TO", "KIND", "BY", "REASON")
		for _, c := range history {
			row(tw, c.CreatedAt.Format("2006-01-02 15:04:05"), orDash(string(c.FromStatus)), c.ToStatus, c.Kind, c.ChangedBy, orDash(c.Reason))
		}
		return tw.Flush()
	},
}

// -- list --

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List routings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		filter, err := listFilter(cmd)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		rs, err := e.Engine.Routings(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list routings")
		}
		if len(rs) == 0 && !jsonOutput {
			fmt.Fprintln(cmd.ErrOrStderr(), "No routings found.")
			return nil
		}
		return printRoutings(cmd.OutOrStdout(), rs)
	},
}

func listFilter(cmd *cobra.Command) (store.RoutingFilter, error) {
	flags := cmd.Flags()
	var f store.RoutingFilter

	statuses, _ := flags.GetStringSlice("status")
	for _, s := range statuses {
		st := model.Status(strings.TrimSpace(s))
		if !st.Valid() {
			return f, fmt.Errorf("unknown status %q", s)
		}
		f.Statuses = append(f.Statuses, st)
	}
	f.PublicationSlug, _ = flags.GetString("publication")
	f.IdeaID, _ = flags.GetString("idea")
	tier, _ := flags.GetString("tier")
	f.Tier = model.Tier(tier)
	f.Limit, _ = flags.GetInt("limit")

	for name, dst := range map[string]**time.Time{"from": &f.DateFrom, "to": &f.DateTo} {
		v, _ := flags.GetString(name)
		if v == "" {
			continue
		}
		t, err := model.ParseDate(v)
		if err != nil {
			return f, err
		}
		*dst = &t
	}
	return f, nil
}

func init() {
	killCmd.Flags().String("reason", "", "kill reason")

	listCmd.Flags().StringSlice("status", nil, "status filter (repeatable)")
	listCmd.Flags().String("publication", "", "publication slug")
	listCmd.Flags().String("idea", "", "idea id")
	listCmd.Flags().String("tier", "", "tier")
	listCmd.Flags().String("from", "", "calendar date on or after (YYYY-MM-DD)")
	listCmd.Flags().String("to", "", "calendar date before (YYYY-MM-DD)")
	listCmd.Flags().Int("limit", 50, "maximum routings to list")

	rootCmd.AddCommand(killCmd, publishCmd, showCmd, listCmd)
}

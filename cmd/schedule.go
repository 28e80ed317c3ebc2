package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/content-router/internal/model"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Place scored ideas on the publication calendar",
}

// -- schedule recommend --

var scheduleRecommendCmd = &cobra.Command{
	Use:   "recommend <routing-id>",
	Short: "Recommend the best open slot and date for a routing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		rec, err := e.Engine.Recommend(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, rec)
		}
		if rec == nil {
			fmt.Fprintln(out, "No open slot within the scheduling horizon.")
			return nil
		}
		fmt.Fprintf(out, "%s %s (%s, slot %s)\n%s\n",
			rec.Date.Format(model.DateLayout), rec.Date.Weekday(), rec.SlotName, rec.SlotID, rec.Reason)
		return nil
	},
}

// -- schedule set --

var scheduleSetCmd = &cobra.Command{
	Use:   "set <routing-id> <date>",
	Short: "Schedule a routing on a calendar date",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		slot, _ := cmd.Flags().GetString("slot")

		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		r, err := e.Engine.Schedule(ctx, args[0], args[1], slot, actorFlag)
		if err != nil {
			return err
		}
		return printRouting(cmd.OutOrStdout(), r)
	},
}

// -- schedule slot --

var scheduleSlotCmd = &cobra.Command{
	Use:   "slot <routing-id> <slot-id>",
	Short: "Assign a scored routing to a recurring slot without a date",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		r, err := e.Engine.AssignSlot(ctx, args[0], args[1], actorFlag)
		if err != nil {
			return err
		}
		return printRouting(cmd.OutOrStdout(), r)
	},
}

// -- schedule evergreen --

var scheduleEvergreenCmd = &cobra.Command{
	Use:   "evergreen <routing-id>",
	Short: "Add a routing to its publication's evergreen backlog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pub, _ := cmd.Flags().GetString("publication")

		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		entry, created, err := e.Engine.EnqueueEvergreen(ctx, args[0], pub, actorFlag)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]any{"entry": entry, "created": created})
		}
		if created {
			fmt.Fprintf(out, "Queued %s in %s evergreen backlog.\n", entry.IdeaRoutingID, entry.PublicationSlug)
		} else {
			fmt.Fprintf(out, "%s is already in %s evergreen backlog.\n", entry.IdeaRoutingID, entry.PublicationSlug)
		}
		return nil
	},
}

// -- schedule backlog --

var scheduleBacklogCmd = &cobra.Command{
	Use:   "backlog <publication>",
	Short: "List a publication's evergreen backlog, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		entries, err := e.Engine.Evergreen(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, entries)
		}
		tw := newTable(out, "ROUTING", "ENQUEUED")
		for _, en := range entries {
			row(tw, en.IdeaRoutingID, en.EnqueuedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

func init() {
	scheduleSetCmd.Flags().String("slot", "", "slot id (optional)")
	scheduleEvergreenCmd.Flags().String("publication", "", "publication slug (defaults to the routing's publication)")

	scheduleCmd.AddCommand(scheduleRecommendCmd, scheduleSetCmd, scheduleSlotCmd, scheduleEvergreenCmd, scheduleBacklogCmd)
	rootCmd.AddCommand(scheduleCmd)
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/content-router/internal/calendar"
	"github.com/sells-group/content-router/internal/engine"
	"github.com/sells-group/content-router/internal/model"
)

var calendarCmd = &cobra.Command{
	Use:   "calendar",
	Short: "View and export the editorial calendar",
}

// calendarRange resolves --from and --weeks; --from defaults to the start
// of the current week.
func calendarRange(cmd *cobra.Command, now time.Time) (time.Time, time.Time, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	weeks, _ := cmd.Flags().GetInt("weeks")
	if weeks <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("--weeks must be positive")
	}

	from := engine.WeekStart(now)
	if fromStr != "" {
		t, err := model.ParseDate(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = t
	}
	return from, from.AddDate(0, 0, 7*weeks), nil
}

func buildCalendar(cmd *cobra.Command) (*calendar.Calendar, error) {
	ctx := cmd.Context()
	from, to, err := calendarRange(cmd, time.Now())
	if err != nil {
		return nil, err
	}
	pub, _ := cmd.Flags().GetString("publication")

	e, err := initEnv(ctx, "engine")
	if err != nil {
		return nil, err
	}
	defer e.Close()

	return calendar.Build(ctx, e.Catalog, e.Store, from, to, pub)
}

// -- calendar show --

var calendarShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print scheduled and published routings by date",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cal, err := buildCalendar(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, cal)
		}
		tw := newTable(out, "DATE", "DAY", "PUBLICATION", "SLOT", "ROUTING", "TIER", "STATUS")
		for _, en := range cal.Entries {
			row(tw, en.Date.Format(model.DateLayout), en.Date.Weekday().String()[:3], en.Publication,
				orDash(en.SlotName), en.RoutingID, orDash(string(en.Tier)), en.Status)
		}
		return tw.Flush()
	},
}

// -- calendar export --

var calendarExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the calendar to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		output, _ := cmd.Flags().GetString("output")
		cal, err := buildCalendar(cmd)
		if err != nil {
			return err
		}
		if err := cal.SaveXLSX(output); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d entries to %s.\n", len(cal.Entries), output)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{calendarShowCmd, calendarExportCmd} {
		c.Flags().String("from", "", "first date (YYYY-MM-DD, default start of this week)")
		c.Flags().Int("weeks", 4, "number of weeks")
		c.Flags().String("publication", "", "restrict to one publication")
	}
	calendarExportCmd.Flags().StringP("output", "o", "calendar.xlsx", "output file")

	calendarCmd.AddCommand(calendarShowCmd, calendarExportCmd)
	rootCmd.AddCommand(calendarCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/monitoring"
)

// -- dashboard --

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Summarize routing state, this week's calendar, buffers and alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		d, err := e.Engine.Dashboard(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, d)
		}

		fmt.Fprintln(out, "Status:")
		for _, s := range model.AllStatuses {
			fmt.Fprintf(out, "  %-10s %d\n", s, d.CountsByStatus[s])
		}
		fmt.Fprintf(out, "\nWeek of %s:\n", d.WeekStart.Format(model.DateLayout))
		if len(d.ScheduledThisWeek) == 0 {
			fmt.Fprintln(out, "  nothing scheduled")
		} else if err := printRoutings(out, d.ScheduledThisWeek); err != nil {
			return err
		}
		fmt.Fprintln(out, "\nBuffers:")
		if err := printBuffers(out, d.Buffers); err != nil {
			return err
		}
		fmt.Fprintln(out, "\nAlerts:")
		return printAlerts(out, d.Alerts)
	},
}

// -- buffer --

var bufferCmd = &cobra.Command{
	Use:   "buffer",
	Short: "Show weeks of queued content per publication",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		bs, err := e.Engine.BufferStatus(ctx)
		if err != nil {
			return err
		}
		return printBuffers(cmd.OutOrStdout(), bs)
	},
}

// -- alerts --

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Compute low-buffer and time-sensitive alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		alerts, err := e.Engine.Alerts(ctx)
		if err != nil {
			return err
		}
		if err := printAlerts(cmd.OutOrStdout(), alerts); err != nil {
			return err
		}

		if send, _ := cmd.Flags().GetBool("send"); send && len(alerts) > 0 {
			if cfg.Alerts.WebhookURL == "" {
				return fmt.Errorf("--send requires alerts.webhook_url")
			}
			sent := monitoring.NewAlerter(cfg.Alerts).SendAlerts(ctx, alerts)
			fmt.Fprintf(cmd.ErrOrStderr(), "Sent %d of %d alerts.\n", sent, len(alerts))
		}
		return nil
	},
}

func init() {
	alertsCmd.Flags().Bool("send", false, "post alerts to the configured webhook")
	rootCmd.AddCommand(dashboardCmd, bufferCmd, alertsCmd)
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/intake"
	"github.com/sells-group/content-router/pkg/notion"
)

var intakeCmd = &cobra.Command{
	Use:   "intake",
	Short: "Bulk intake of ideas from external sources",
}

func intakeMode(cmd *cobra.Command) (intake.Mode, error) {
	m, _ := cmd.Flags().GetString("mode")
	switch intake.Mode(m) {
	case intake.ModeRoute, intake.ModeIntake:
		return intake.Mode(m), nil
	}
	return "", fmt.Errorf("--mode must be %s or %s", intake.ModeRoute, intake.ModeIntake)
}

func printOutcomes(w io.Writer, outcomes []intake.Outcome) error {
	sum := intake.Summarize(outcomes)
	if jsonOutput {
		return printJSON(w, map[string]any{"summary": sum, "outcomes": outcomes})
	}
	tw := newTable(w, "IDEA", "REF", "STATUS", "PUBLICATION", "ERROR")
	for _, o := range outcomes {
		status, pub, msg := "-", "-", "-"
		if o.Err != nil {
			status, msg = "failed", o.Err.Error()
		} else {
			status, pub = string(o.Routing.Status), orDash(o.Routing.RoutedTo)
		}
		row(tw, o.Idea.ID, orDash(o.Idea.Ref), status, pub, msg)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d ideas: %d routed, %d need review, %d killed, %d failed\n",
		sum.Total, sum.Routed, sum.NeedsReview, sum.Killed, sum.Failed)
	return nil
}

// -- intake notion --

var intakeNotionCmd = &cobra.Command{
	Use:   "notion",
	Short: "Route every Ready idea in the Notion intake database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		mode, err := intakeMode(cmd)
		if err != nil {
			return err
		}
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		writeBack, _ := cmd.Flags().GetBool("write-back")

		e, err := initEnv(ctx, "notion")
		if err != nil {
			return err
		}
		defer e.Close()

		src := intake.NewNotionSource(notion.NewDatabase(cfg.Notion.Token, cfg.Notion.IntakeDB))
		ideas, err := src.Fetch(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("fetched notion ideas", zap.Int("count", len(ideas)))

		outcomes := intake.Process(ctx, e.Engine, ideas, mode, actorFlag, concurrency)
		if writeBack {
			n := src.WriteBack(ctx, outcomes)
			zap.L().Info("notion write-back complete", zap.Int("updated", n), zap.Int("total", len(outcomes)))
		}
		return printOutcomes(cmd.OutOrStdout(), outcomes)
	},
}

// -- intake file --

var intakeFileCmd = &cobra.Command{
	Use:     "file <path>",
	Aliases: []string{"xlsx", "csv"},
	Short:   "Route every idea row of a .csv or .xlsx file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mode, err := intakeMode(cmd)
		if err != nil {
			return err
		}
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		sheet, _ := cmd.Flags().GetString("sheet")

		ideas, err := intake.ReadFile(args[0], intake.XLSXOptions{SheetName: sheet})
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		outcomes := intake.Process(ctx, e.Engine, ideas, mode, actorFlag, concurrency)
		return printOutcomes(cmd.OutOrStdout(), outcomes)
	},
}

func init() {
	for _, c := range []*cobra.Command{intakeNotionCmd, intakeFileCmd} {
		c.Flags().String("mode", string(intake.ModeRoute), "route (route each idea) or intake (record only)")
		c.Flags().Int("concurrency", intake.DefaultConcurrency, "ideas processed in parallel")
	}
	intakeNotionCmd.Flags().Bool("write-back", true, "record outcomes on the Notion pages")
	intakeFileCmd.Flags().String("sheet", "", "xlsx sheet name (default first sheet)")

	intakeCmd.AddCommand(intakeNotionCmd, intakeFileCmd)
	rootCmd.AddCommand(intakeCmd)
}

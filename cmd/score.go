package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sells-group/content-router/internal/model"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score routed ideas into tiers",
}

func printBreakdown(w io.Writer, b *model.ScoreBreakdown) error {
	if jsonOutput {
		return printJSON(w, b)
	}
	tw := newTable(w, "RUBRIC", "SCORE", "WEIGHT", "CONTRIBUTION")
	for _, c := range b.Contributions {
		name := c.RubricName
		if c.IsModifier {
			name += " (modifier)"
		}
		row(tw, name, c.Score, fmt.Sprintf("%.2f", c.Weight), fmt.Sprintf("%+.2f", c.Contribution))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nFinal score %.2f on [%.0f, %.0f]", b.FinalScore, b.ScaleMin, b.ScaleMax)
	if b.Clamped {
		fmt.Fprintf(w, " (clamped from %.2f)", b.RawScore)
	}
	fmt.Fprintf(w, "\nTier %s (%s)\n", b.Tier, b.Resolution)
	return nil
}

// -- score preview --

var scorePreviewCmd = &cobra.Command{
	Use:   "preview <publication>",
	Short: "Compute a score and tier without recording anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scores, _ := cmd.Flags().GetStringToInt("score")

		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		b, err := e.Engine.PreviewScore(ctx, args[0], scores)
		if err != nil {
			return err
		}
		return printBreakdown(cmd.OutOrStdout(), b)
	},
}

// -- score commit --

var scoreCommitCmd = &cobra.Command{
	Use:   "commit <routing-id>",
	Short: "Score a routed idea and record its tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		scores, _ := cmd.Flags().GetStringToInt("score")

		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		r, b, err := e.Engine.CommitScore(ctx, args[0], scores, actorFlag)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{"routing": r, "breakdown": b})
		}
		if err := printBreakdown(cmd.OutOrStdout(), b); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return printRouting(cmd.OutOrStdout(), r)
	},
}

// -- score override --

var scoreOverrideCmd = &cobra.Command{
	Use:   "override <routing-id> <score>",
	Short: "Replace a routing's computed score and re-resolve its tier",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		score, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid score %q", args[1])
		}
		reason, _ := cmd.Flags().GetString("reason")

		e, err := initEnv(ctx, "engine")
		if err != nil {
			return err
		}
		defer e.Close()

		r, err := e.Engine.Override(ctx, args[0], score, reason, actorFlag)
		if err != nil {
			return err
		}
		return printRouting(cmd.OutOrStdout(), r)
	},
}

func init() {
	for _, c := range []*cobra.Command{scorePreviewCmd, scoreCommitCmd} {
		c.Flags().StringToInt("score", nil, "rubric score as rubric-id=value (repeatable)")
	}
	scoreOverrideCmd.Flags().String("reason", "", "override reason (required)")

	scoreCmd.AddCommand(scorePreviewCmd, scoreCommitCmd, scoreOverrideCmd)
	rootCmd.AddCommand(scoreCmd)
}

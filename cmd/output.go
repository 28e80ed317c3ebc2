package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sells-group/content-router/internal/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

func row(tw *tabwriter.Writer, cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(tw, strings.Join(parts, "\t"))
}

func fmtScore(s *float64) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// printRouting writes a routing as JSON or as a key/value block.
func printRouting(w io.Writer, r *model.IdeaRouting) error {
	if jsonOutput {
		return printJSON(w, r)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row(tw, "ID:", r.ID)
	row(tw, "Idea:", r.IdeaID)
	row(tw, "Status:", r.Status)
	row(tw, "Publication:", orDash(r.RoutedTo))
	row(tw, "Audience:", orDash(r.Audience))
	row(tw, "Action:", orDash(string(r.RecommendedAction)))
	row(tw, "Tier:", orDash(string(r.Tier)))
	row(tw, "Score:", fmtScore(r.EffectiveScore()))
	if r.OverrideScore != nil {
		row(tw, "Override:", fmt.Sprintf("%s (%s)", fmtScore(r.OverrideScore), r.OverrideReason))
	}
	row(tw, "Slot:", orDash(r.SlotID))
	row(tw, "Date:", orDash(model.FormatDate(r.CalendarDate)))
	row(tw, "Version:", r.Version)
	return tw.Flush()
}

func printRoutings(w io.Writer, rs []model.IdeaRouting) error {
	if jsonOutput {
		return printJSON(w, rs)
	}
	tw := newTable(w, "ID", "IDEA", "STATUS", "PUBLICATION", "TIER", "SCORE", "DATE")
	for i := range rs {
		r := &rs[i]
		row(tw, r.ID, r.IdeaID, r.Status, orDash(r.RoutedTo), orDash(string(r.Tier)),
			fmtScore(r.EffectiveScore()), orDash(model.FormatDate(r.CalendarDate)))
	}
	return tw.Flush()
}

func printAlerts(w io.Writer, alerts []model.RoutingAlert) error {
	if jsonOutput {
		return printJSON(w, alerts)
	}
	if len(alerts) == 0 {
		fmt.Fprintln(w, "No alerts.")
		return nil
	}
	tw := newTable(w, "SEVERITY", "TYPE", "MESSAGE")
	for _, a := range alerts {
		row(tw, strings.ToUpper(a.Severity), a.Type, a.Message)
	}
	return tw.Flush()
}

func printBuffers(w io.Writer, bs []model.BufferStatus) error {
	if jsonOutput {
		return printJSON(w, bs)
	}
	tw := newTable(w, "PUBLICATION", "QUEUED", "PER WEEK", "WEEKS", "HEALTH")
	for _, b := range bs {
		row(tw, b.PublicationSlug, b.QueueCount, b.WeeklyCadence, fmt.Sprintf("%.1f", b.WeeksOfBuffer), b.Status)
	}
	return tw.Flush()
}

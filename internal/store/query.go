package store

import (
	"time"

	sq "github.com/Masterminds/squirrel"
)

// buildListQuery renders a RoutingFilter for either backend. dateArg converts
// a calendar date bound into the driver's representation.
func buildListQuery(b sq.StatementBuilderType, f RoutingFilter, dateArg func(*time.Time) any) sq.SelectBuilder {
	q := b.Select(routingColumns).From("idea_routings")

	if len(f.Statuses) > 0 {
		q = q.Where(sq.Eq{"status": statusStrings(f.Statuses)})
	}
	if f.PublicationSlug != "" {
		q = q.Where(sq.Eq{"routed_to": f.PublicationSlug})
	}
	if f.IdeaID != "" {
		q = q.Where(sq.Eq{"idea_id": f.IdeaID})
	}
	if f.Tier != "" {
		q = q.Where(sq.Eq{"tier": string(f.Tier)})
	}
	if f.TimeSensitivity != "" {
		q = q.Where(sq.Eq{"time_sensitivity": string(f.TimeSensitivity)})
	}
	if f.DateFrom != nil {
		q = q.Where(sq.GtOrEq{"calendar_date": dateArg(f.DateFrom)})
	}
	if f.DateTo != nil {
		q = q.Where(sq.Lt{"calendar_date": dateArg(f.DateTo)})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q = q.OrderBy("created_at DESC", "id").Limit(uint64(limit))
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

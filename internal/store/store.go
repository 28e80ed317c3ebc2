// Package store persists idea routings, the status change log and the
// evergreen queue.
package store

import (
	"context"
	"time"

	"github.com/sells-group/content-router/internal/model"
)

// RoutingFilter specifies criteria for listing routings. Zero values match all.
type RoutingFilter struct {
	Statuses        []model.Status        `json:"statuses,omitempty"`
	PublicationSlug string                `json:"publication_slug,omitempty"`
	IdeaID          string                `json:"idea_id,omitempty"`
	Tier            model.Tier            `json:"tier,omitempty"`
	TimeSensitivity model.TimeSensitivity `json:"time_sensitivity,omitempty"`
	DateFrom        *time.Time            `json:"date_from,omitempty"` // calendar_date >= DateFrom
	DateTo          *time.Time            `json:"date_to,omitempty"`   // calendar_date < DateTo
	Limit           int                   `json:"limit,omitempty"`
	Offset          int                   `json:"offset,omitempty"`
}

// DefaultListLimit caps ListRoutings when no limit is given.
const DefaultListLimit = 500

// Store defines the persistence interface for the routing engine.
type Store interface {
	// Routings
	CreateRouting(ctx context.Context, r *model.IdeaRouting) error
	GetRouting(ctx context.Context, id string) (*model.IdeaRouting, error)
	// UpdateRouting writes r only if the stored version still equals
	// expectedVersion, then bumps r.Version.
	UpdateRouting(ctx context.Context, r *model.IdeaRouting, expectedVersion int) error
	// FindOpenRouting returns the idea's non-terminal routing, or nil.
	FindOpenRouting(ctx context.Context, ideaID string) (*model.IdeaRouting, error)
	ListRoutings(ctx context.Context, filter RoutingFilter) ([]model.IdeaRouting, error)
	// OccupiedDates maps each scheduled or published date of a publication
	// within [from, to) to the routing holding it.
	OccupiedDates(ctx context.Context, publicationSlug string, from, to time.Time) (map[string]string, error)

	// Aggregates
	StatusCounts(ctx context.Context) (map[model.Status]int, error)
	TierCounts(ctx context.Context) (map[model.Tier]int, error)
	// QueueCounts counts open (intake..slotted) routings per publication.
	QueueCounts(ctx context.Context) (map[string]int, error)

	// Status change log
	AppendStatusChange(ctx context.Context, c *model.StatusChange) error
	ListStatusChanges(ctx context.Context, routingID string) ([]model.StatusChange, error)

	// Evergreen queue
	// EnqueueEvergreen adds e unless the routing is already queued for the
	// publication; created reports whether a row was added.
	EnqueueEvergreen(ctx context.Context, e *model.EvergreenEntry) (created bool, err error)
	ListEvergreen(ctx context.Context, publicationSlug string) ([]model.EvergreenEntry, error)
	RemoveEvergreen(ctx context.Context, routingID string) (int, error)
	EvergreenCounts(ctx context.Context) (map[string]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Transactional is implemented by stores that can write a routing and its
// status change row atomically.
type Transactional interface {
	CreateWithChange(ctx context.Context, r *model.IdeaRouting, c *model.StatusChange) error
	UpdateWithChange(ctx context.Context, r *model.IdeaRouting, expectedVersion int, c *model.StatusChange) error
}

// openStatuses are the statuses counted toward a publication's queue.
var openStatuses = []model.Status{
	model.StatusIntake,
	model.StatusRouted,
	model.StatusScored,
	model.StatusSlotted,
}

// occupyingStatuses hold a publication+date.
var occupyingStatuses = []model.Status{model.StatusScheduled, model.StatusPublished}

func statusStrings(in []model.Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/model"
)

func notFound(op, id string) error {
	return apperr.NotFound(op, "idea routing %s not found", id)
}

func versionMismatch(op, id string, expected int) error {
	return apperr.Precondition(op, "idea routing %s changed concurrently (expected version %d)", id, expected)
}

func dateTaken(op string, r *model.IdeaRouting) error {
	return apperr.Conflict(op, "publication %s already has content scheduled on %s", r.RoutedTo, model.FormatDate(r.CalendarDate))
}

// prepareCreate assigns identity, version and timestamps to a new routing.
func prepareCreate(r *model.IdeaRouting) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt
	r.Version = 1
	if r.Status == "" {
		r.Status = model.StatusIntake
	}
}

func prepareChange(c *model.StatusChange) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
}

func prepareEntry(e *model.EvergreenEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now().UTC()
	}
}

func occupies(s model.Status) bool {
	return s == model.StatusScheduled || s == model.StatusPublished
}

func cloneRouting(r *model.IdeaRouting) *model.IdeaRouting {
	if r == nil {
		return nil
	}
	c := *r
	c.Facts.Audiences = append([]string(nil), r.Facts.Audiences...)
	c.Facts.Tags = append([]string(nil), r.Facts.Tags...)
	if len(r.Facts.Audiences) == 0 {
		c.Facts.Audiences = nil
	}
	if len(r.Facts.Tags) == 0 {
		c.Facts.Tags = nil
	}
	if r.Breakdown != nil {
		b := *r.Breakdown
		b.Contributions = append([]model.RubricContribution(nil), r.Breakdown.Contributions...)
		c.Breakdown = &b
	}
	return &c
}

// dateKey renders a calendar date as the YYYY-MM-DD map key used by OccupiedDates.
func dateKey(t time.Time) string {
	return t.UTC().Format(model.DateLayout)
}

// Package calendar builds and exports the editorial calendar of scheduled
// and published routings.
package calendar

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/store"
)

// Entry is one dated routing on the calendar.
type Entry struct {
	Date        time.Time    `json:"date"`
	Publication string       `json:"publication"`
	SlotID      string       `json:"slot_id,omitempty"`
	SlotName    string       `json:"slot_name,omitempty"`
	IdeaID      string       `json:"idea_id"`
	RoutingID   string       `json:"routing_id"`
	Tier        model.Tier   `json:"tier,omitempty"`
	Score       *float64     `json:"score,omitempty"`
	Status      model.Status `json:"status"`
	Format      string       `json:"format,omitempty"`
}

// Calendar is the set of entries in [From, To).
type Calendar struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Entries []Entry   `json:"entries"`
}

// Build collects scheduled and published routings dated in [from, to),
// optionally restricted to one publication, ordered by date, publication
// and routing id.
func Build(ctx context.Context, p catalog.Provider, s store.Store, from, to time.Time, publication string) (*Calendar, error) {
	from, to = model.Day(from), model.Day(to)
	if !to.After(from) {
		return nil, apperr.Validation("calendar.build", "range end %s is not after start %s",
			to.Format(model.DateLayout), from.Format(model.DateLayout))
	}

	snap, err := p.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "calendar: load catalog")
	}

	f := store.RoutingFilter{
		Statuses:        []model.Status{model.StatusScheduled, model.StatusPublished},
		PublicationSlug: publication,
		DateFrom:        &from,
		DateTo:          &to,
		Limit:           store.DefaultListLimit,
	}
	cal := &Calendar{From: from, To: to, Entries: []Entry{}}
	for {
		page, err := s.ListRoutings(ctx, f)
		if err != nil {
			return nil, eris.Wrap(err, "calendar: list routings")
		}
		for i := range page {
			cal.Entries = append(cal.Entries, entryFor(snap, &page[i]))
		}
		if len(page) < f.Limit {
			break
		}
		f.Offset += len(page)
	}

	sort.Slice(cal.Entries, func(i, j int) bool {
		a, b := cal.Entries[i], cal.Entries[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Publication != b.Publication {
			return a.Publication < b.Publication
		}
		return a.RoutingID < b.RoutingID
	})
	return cal, nil
}

func entryFor(snap *catalog.Snapshot, r *model.IdeaRouting) Entry {
	e := Entry{
		Publication: r.RoutedTo,
		SlotID:      r.SlotID,
		IdeaID:      r.IdeaID,
		RoutingID:   r.ID,
		Tier:        r.Tier,
		Score:       r.EffectiveScore(),
		Status:      r.Status,
		Format:      r.Facts.Format,
	}
	if r.CalendarDate != nil {
		e.Date = model.Day(*r.CalendarDate)
	}
	if slot, ok := snap.Slot(r.SlotID); ok {
		e.SlotName = slot.Name
	}
	return e
}

// PublicationCount is the number of entries per publication.
type PublicationCount struct {
	Publication string `json:"publication"`
	Scheduled   int    `json:"scheduled"`
	Published   int    `json:"published"`
}

// Counts tallies entries per publication, sorted by slug.
func (c *Calendar) Counts() []PublicationCount {
	by := make(map[string]*PublicationCount)
	for _, e := range c.Entries {
		pc, ok := by[e.Publication]
		if !ok {
			pc = &PublicationCount{Publication: e.Publication}
			by[e.Publication] = pc
		}
		if e.Status == model.StatusPublished {
			pc.Published++
		} else {
			pc.Scheduled++
		}
	}
	out := make([]PublicationCount, 0, len(by))
	for _, pc := range by {
		out = append(out, *pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Publication < out[j].Publication })
	return out
}

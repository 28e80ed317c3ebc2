// Package scheduler places scored routings on publication calendars and in
// evergreen backlogs.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/condition"
	"github.com/sells-group/content-router/internal/ledger"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/store"
)

// DefaultHorizonWeeks bounds how far ahead Recommend looks.
const DefaultHorizonWeeks = 12

// Scheduler recommends and books calendar slots.
type Scheduler struct {
	catalog catalog.Provider
	store   store.Store
	ledger  *ledger.Ledger
	horizon int
	now     func() time.Time
	log     *zap.Logger
}

// New creates a Scheduler that looks horizonWeeks ahead.
func New(p catalog.Provider, s store.Store, l *ledger.Ledger, horizonWeeks int) *Scheduler {
	if horizonWeeks <= 0 {
		horizonWeeks = DefaultHorizonWeeks
	}
	return &Scheduler{
		catalog: p,
		store:   s,
		ledger:  l,
		horizon: horizonWeeks,
		now:     time.Now,
		log:     zap.L().With(zap.String("component", "scheduler")),
	}
}

// SetClock replaces the clock used to decide "today".
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Scheduler) today() time.Time {
	return model.Day(s.now())
}

// candidate is a slot that may take the routing, with its ranking keys.
type candidate struct {
	slot         model.CalendarSlot
	date         time.Time
	tierMatch    bool
	preferredDay bool
}

func (c candidate) less(o candidate) bool {
	if c.tierMatch != o.tierMatch {
		return c.tierMatch
	}
	if c.slot.IsFixed != o.slot.IsFixed {
		return !c.slot.IsFixed
	}
	if c.preferredDay != o.preferredDay {
		return c.preferredDay
	}
	if !c.date.Equal(o.date) {
		return c.date.Before(o.date)
	}
	return c.slot.ID < o.slot.ID
}

// eligible reports why slot cannot take r, or "" when it can.
func eligible(slot model.CalendarSlot, facts condition.Facts, format string) string {
	if skip, i := slot.Skips(facts); skip {
		return fmt.Sprintf("skip rule %d of slot %s matches", i, slot.ID)
	}
	if slot.IsFixed && !strings.EqualFold(slot.FixedFormat, format) {
		return fmt.Sprintf("slot %s is reserved for format %q", slot.ID, slot.FixedFormat)
	}
	return ""
}

// Recommend returns the best open slot and date for a scored or slotted
// routing, or nil when the routing's tier is kill or no slot within the
// horizon can take it. Slots whose skip rules match are excluded; the rest
// are ranked by preferred tier, then non-fixed, then the tier's preferred
// weekday, then earliest free date. A slotted routing is only offered dates
// of its assigned slot.
func (s *Scheduler) Recommend(ctx context.Context, routingID string) (*model.SlotRecommendation, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: catalog")
	}
	r, err := s.store.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if r.Status != model.StatusScored && r.Status != model.StatusSlotted {
		return nil, apperr.Precondition("scheduler.recommend", "routing %s is %s; recommendation requires scored or slotted", r.ID, r.Status)
	}
	if r.Tier == model.TierKill {
		s.log.Debug("no recommendation for kill tier", zap.String("routing_id", r.ID))
		return nil, nil
	}

	from := s.today().AddDate(0, 0, 1)
	to := from.AddDate(0, 0, 7*s.horizon)
	occupied, err := s.store.OccupiedDates(ctx, r.RoutedTo, from, to)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: occupied dates")
	}

	threshold, _ := snap.ThresholdForTier(r.RoutedTo, r.Tier)
	facts := r.Facts.WithRouting(r)

	var best *candidate
	for _, slot := range snap.SlotsFor(r.RoutedTo) {
		if r.Status == model.StatusSlotted && r.SlotID != "" && slot.ID != r.SlotID {
			continue
		}
		if why := eligible(slot, facts, r.Facts.Format); why != "" {
			s.log.Debug("slot excluded", zap.String("routing_id", r.ID), zap.String("reason", why))
			continue
		}
		date, ok := firstFree(slot.DayOfWeek, from, to, occupied)
		if !ok {
			continue
		}
		c := candidate{
			slot:         slot,
			date:         date,
			tierMatch:    slot.PreferredTier != "" && slot.PreferredTier == r.Tier,
			preferredDay: threshold.PrefersDay(slot.DayOfWeek),
		}
		if best == nil || c.less(*best) {
			best = &c
		}
	}
	if best == nil {
		return nil, nil
	}

	return &model.SlotRecommendation{
		SlotID:          best.slot.ID,
		SlotName:        best.slot.Name,
		PublicationSlug: r.RoutedTo,
		Date:            best.date,
		DayOfWeek:       best.slot.DayOfWeek,
		TierMatch:       best.tierMatch,
		IsFixed:         best.slot.IsFixed,
		PreferredDay:    best.preferredDay,
		Reason:          reason(*best, r.Tier),
	}, nil
}

func reason(c candidate, tier model.Tier) string {
	var parts []string
	if c.tierMatch {
		parts = append(parts, fmt.Sprintf("slot prefers tier %s", tier))
	}
	if c.slot.IsFixed {
		parts = append(parts, fmt.Sprintf("fixed %s slot", c.slot.FixedFormat))
	}
	if c.preferredDay {
		parts = append(parts, fmt.Sprintf("%s is a preferred day for tier %s", c.date.Weekday(), tier))
	}
	parts = append(parts, "earliest open "+c.date.Format(model.DateLayout))
	return strings.Join(parts, "; ")
}

// firstFree returns the first date in [from, to) falling on dow that is not
// occupied.
func firstFree(dow int, from, to time.Time, occupied map[string]string) (time.Time, bool) {
	offset := (dow - int(from.Weekday()) + 7) % 7
	for d := from.AddDate(0, 0, offset); d.Before(to); d = d.AddDate(0, 0, 7) {
		if _, taken := occupied[d.Format(model.DateLayout)]; !taken {
			return d, true
		}
	}
	return time.Time{}, false
}

// notKilled rejects routings whose tier is kill. An override can set the
// tier without closing the routing.
func notKilled(op string, r *model.IdeaRouting) error {
	if r.Tier == model.TierKill {
		return apperr.Precondition(op, "routing %s has tier kill and cannot take a calendar slot", r.ID)
	}
	return nil
}

// slotFor resolves slotID against the routing's publication and checks that
// the slot can take the routing.
func (s *Scheduler) slotFor(op string, snap *catalog.Snapshot, r *model.IdeaRouting, slotID string) (model.CalendarSlot, error) {
	slot, ok := snap.Slot(slotID)
	if !ok || slot.PublicationSlug != r.RoutedTo {
		return slot, apperr.NotFound(op, "calendar slot %q not found for publication %s", slotID, r.RoutedTo)
	}
	if why := eligible(slot, r.Facts.WithRouting(r), r.Facts.Format); why != "" {
		return slot, apperr.Validation(op, "%s", why)
	}
	return slot, nil
}

// Schedule books r on date (YYYY-MM-DD). slotID defaults to the routing's
// assigned slot; when set, the date must fall on the slot's weekday. A date
// already held at the publication is a conflict.
func (s *Scheduler) Schedule(ctx context.Context, routingID, date, slotID, actor string) (*model.IdeaRouting, error) {
	const op = "scheduler.schedule"

	day, err := model.ParseDate(date)
	if err != nil {
		return nil, apperr.Validation(op, "calendar date %q is not YYYY-MM-DD", date)
	}
	if day.Before(s.today()) {
		return nil, apperr.Validation(op, "calendar date %s is in the past", date)
	}

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: catalog")
	}
	r, err := s.store.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if r.Status != model.StatusScored && r.Status != model.StatusSlotted {
		return nil, apperr.Precondition(op, "routing %s is %s; scheduling requires scored or slotted", r.ID, r.Status)
	}
	if err := notKilled(op, r); err != nil {
		return nil, err
	}

	if slotID == "" {
		slotID = r.SlotID
	}
	if slotID != "" {
		slot, err := s.slotFor(op, snap, r, slotID)
		if err != nil {
			return nil, err
		}
		if int(day.Weekday()) != slot.DayOfWeek {
			return nil, apperr.Validation(op, "%s is a %s but slot %s runs on %s", date, day.Weekday(), slot.ID, time.Weekday(slot.DayOfWeek))
		}
	}

	occupied, err := s.store.OccupiedDates(ctx, r.RoutedTo, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: occupied dates")
	}
	if holder, taken := occupied[date]; taken && holder != r.ID {
		return nil, apperr.Conflict(op, "publication %s already has routing %s on %s", r.RoutedTo, holder, date)
	}

	from, expected := r.Status, r.Version
	r.CalendarDate = &day
	r.SlotID = slotID
	r.Enter(model.StatusScheduled, s.ledger.Now())

	err = s.ledger.Commit(ctx, r, expected, ledger.Change{
		From:     from,
		Kind:     model.ChangeAuto,
		Actor:    actor,
		Metadata: map[string]any{"calendar_date": date, "slot_id": slotID},
	})
	if err != nil {
		return nil, err
	}

	if n, err := s.store.RemoveEvergreen(ctx, r.ID); err != nil {
		s.log.Error("remove evergreen entries of scheduled routing", zap.String("routing_id", r.ID), zap.Error(err))
	} else if n > 0 {
		s.log.Info("scheduled routing left the evergreen queue", zap.String("routing_id", r.ID), zap.Int("entries", n))
	}

	s.log.Info("routing scheduled",
		zap.String("routing_id", r.ID),
		zap.String("publication", r.RoutedTo),
		zap.String("date", date),
		zap.String("slot_id", slotID),
	)
	return r, nil
}

// AssignSlot reserves a recurring slot for a scored routing without
// choosing a date.
func (s *Scheduler) AssignSlot(ctx context.Context, routingID, slotID, actor string) (*model.IdeaRouting, error) {
	const op = "scheduler.assign_slot"

	if slotID == "" {
		return nil, apperr.Validation(op, "slot id is required")
	}
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: catalog")
	}
	r, err := s.store.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if r.Status != model.StatusScored && r.Status != model.StatusSlotted {
		return nil, apperr.Precondition(op, "routing %s is %s; slotting requires scored or slotted", r.ID, r.Status)
	}
	if err := notKilled(op, r); err != nil {
		return nil, err
	}
	if _, err := s.slotFor(op, snap, r, slotID); err != nil {
		return nil, err
	}

	from, expected := r.Status, r.Version
	r.SlotID = slotID
	r.Enter(model.StatusSlotted, s.ledger.Now())

	err = s.ledger.Commit(ctx, r, expected, ledger.Change{
		From:     from,
		Kind:     model.ChangeAuto,
		Actor:    actor,
		Metadata: map[string]any{"slot_id": slotID},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// EnqueueEvergreen adds a routing to its publication's evergreen backlog.
// The routing's status is unchanged. Enqueueing twice returns the existing
// entry with created false.
func (s *Scheduler) EnqueueEvergreen(ctx context.Context, routingID, publicationSlug, actor string) (*model.EvergreenEntry, bool, error) {
	const op = "scheduler.enqueue_evergreen"

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, false, eris.Wrap(err, "scheduler: catalog")
	}
	r, err := s.store.GetRouting(ctx, routingID)
	if err != nil {
		return nil, false, err
	}
	switch r.Status {
	case model.StatusRouted, model.StatusScored, model.StatusSlotted:
	default:
		return nil, false, apperr.Precondition(op, "routing %s is %s; evergreen requires routed, scored or slotted", r.ID, r.Status)
	}

	if publicationSlug == "" {
		publicationSlug = r.RoutedTo
	}
	if _, ok := snap.Publication(publicationSlug); !ok {
		return nil, false, apperr.NotFound(op, "publication %q not found", publicationSlug)
	}
	if publicationSlug != r.RoutedTo {
		return nil, false, apperr.Validation(op, "routing %s is routed to %s, not %s", r.ID, r.RoutedTo, publicationSlug)
	}

	e := &model.EvergreenEntry{PublicationSlug: publicationSlug, IdeaRoutingID: r.ID}
	created, err := s.store.EnqueueEvergreen(ctx, e)
	if err != nil {
		return nil, false, eris.Wrap(err, "scheduler: enqueue evergreen")
	}
	if created {
		s.log.Info("routing queued as evergreen",
			zap.String("routing_id", r.ID),
			zap.String("publication", publicationSlug),
			zap.String("actor", actor),
		)
	}
	return e, created, nil
}

// Evergreen lists a publication's backlog, oldest first.
func (s *Scheduler) Evergreen(ctx context.Context, publicationSlug string) ([]model.EvergreenEntry, error) {
	entries, err := s.store.ListEvergreen(ctx, publicationSlug)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: list evergreen")
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt)
	})
	return entries, nil
}

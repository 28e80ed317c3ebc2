// Package engine is the single entry point to routing, scoring, scheduling,
// lifecycle and monitoring operations. Transports (CLI, HTTP) call it and
// never reach into the stage packages directly.
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/config"
	"github.com/sells-group/content-router/internal/ledger"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/monitoring"
	"github.com/sells-group/content-router/internal/resilience"
	"github.com/sells-group/content-router/internal/router"
	"github.com/sells-group/content-router/internal/scheduler"
	"github.com/sells-group/content-router/internal/scorer"
	"github.com/sells-group/content-router/internal/store"
)

// Options tunes the stages.
type Options struct {
	Scale        catalog.Scale
	HorizonWeeks int
	Thresholds   monitoring.Thresholds
	Retry        resilience.RetryConfig
	// Now overrides the wall clock; nil means time.Now.
	Now func() time.Time
}

// OptionsFromConfig maps application config onto engine options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Scale:        catalog.Scale{Min: cfg.Scoring.MinScore, Max: cfg.Scoring.MaxScore},
		HorizonWeeks: cfg.Scheduling.HorizonWeeks,
		Thresholds: monitoring.Thresholds{
			RedWeeks:          cfg.Buffer.RedWeeks,
			YellowWeeks:       cfg.Buffer.YellowWeeks,
			NewsWindowDays:    cfg.Alerts.NewsWindowDays,
			NewsWindowRedDays: cfg.Alerts.NewsWindowRedDays,
		},
		Retry: resilience.FromRetryConfig(cfg.Ledger.MaxAttempts, cfg.Ledger.InitialBackoffMS),
	}
}

// Engine wires the stages over one catalog provider and one store.
type Engine struct {
	catalog   catalog.Provider
	store     store.Store
	ledger    *ledger.Ledger
	router    *router.Router
	scorer    *scorer.Scorer
	scheduler *scheduler.Scheduler
	monitor   *monitoring.Monitor
	now       func() time.Time
	log       *zap.Logger
}

// New creates an Engine.
func New(p catalog.Provider, s store.Store, opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	l := ledger.New(s, opts.Retry)
	l.SetClock(now)
	e := &Engine{
		catalog:   p,
		store:     s,
		ledger:    l,
		router:    router.New(p, s, l),
		scorer:    scorer.New(p, s, l, opts.Scale),
		scheduler: scheduler.New(p, s, l, opts.HorizonWeeks),
		monitor:   monitoring.NewMonitor(p, s, opts.Thresholds),
		now:       now,
		log:       zap.L().With(zap.String("component", "engine")),
	}
	e.scheduler.SetClock(now)
	e.monitor.SetClock(now)
	return e
}

// Catalog returns the current catalog snapshot.
func (e *Engine) Catalog(ctx context.Context) (*catalog.Snapshot, error) {
	return e.catalog.Snapshot(ctx)
}

// Intake records a new idea in intake without routing it.
func (e *Engine) Intake(ctx context.Context, ideaID string, f model.Facts, actor string) (*model.IdeaRouting, error) {
	return e.router.Intake(ctx, ideaID, f, actor)
}

// PreviewRoute evaluates the routing rules against f without persisting.
func (e *Engine) PreviewRoute(ctx context.Context, f model.Facts) (*model.RoutingResult, error) {
	return e.router.Preview(ctx, f)
}

// CommitRoute routes the idea's open routing, creating one if needed.
func (e *Engine) CommitRoute(ctx context.Context, ideaID string, f model.Facts, actor string) (*model.IdeaRouting, *model.RoutingResult, error) {
	return e.router.Commit(ctx, ideaID, f, actor)
}

// ManualRoute routes an intake routing by hand.
func (e *Engine) ManualRoute(ctx context.Context, routingID, publicationSlug, audience, actor, reason string) (*model.IdeaRouting, error) {
	return e.router.ManualRoute(ctx, routingID, publicationSlug, audience, actor, reason)
}

// PreviewScore computes a breakdown for a publication without persisting.
func (e *Engine) PreviewScore(ctx context.Context, publicationSlug string, scores map[string]int) (*model.ScoreBreakdown, error) {
	return e.scorer.Preview(ctx, publicationSlug, scores)
}

// CommitScore scores a routed idea and assigns its tier.
func (e *Engine) CommitScore(ctx context.Context, routingID string, scores map[string]int, actor string) (*model.IdeaRouting, *model.ScoreBreakdown, error) {
	return e.scorer.Commit(ctx, routingID, scores, actor)
}

// Override sets the tier from a hand-picked score.
func (e *Engine) Override(ctx context.Context, routingID string, score float64, reason, actor string) (*model.IdeaRouting, error) {
	return e.scorer.Override(ctx, routingID, score, reason, actor)
}

// Recommend returns the best free slot, or nil when none is available.
func (e *Engine) Recommend(ctx context.Context, routingID string) (*model.SlotRecommendation, error) {
	return e.scheduler.Recommend(ctx, routingID)
}

// Schedule books a routing on a calendar date.
func (e *Engine) Schedule(ctx context.Context, routingID, date, slotID, actor string) (*model.IdeaRouting, error) {
	return e.scheduler.Schedule(ctx, routingID, date, slotID, actor)
}

// AssignSlot reserves a recurring slot for a scored routing.
func (e *Engine) AssignSlot(ctx context.Context, routingID, slotID, actor string) (*model.IdeaRouting, error) {
	return e.scheduler.AssignSlot(ctx, routingID, slotID, actor)
}

// EnqueueEvergreen adds a routing to its publication's evergreen backlog.
func (e *Engine) EnqueueEvergreen(ctx context.Context, routingID, publicationSlug, actor string) (*model.EvergreenEntry, bool, error) {
	return e.scheduler.EnqueueEvergreen(ctx, routingID, publicationSlug, actor)
}

// Evergreen lists a publication's backlog, oldest first.
func (e *Engine) Evergreen(ctx context.Context, publicationSlug string) ([]model.EvergreenEntry, error) {
	return e.scheduler.Evergreen(ctx, publicationSlug)
}

// Routing fetches one routing.
func (e *Engine) Routing(ctx context.Context, routingID string) (*model.IdeaRouting, error) {
	return e.store.GetRouting(ctx, routingID)
}

// Routings lists routings matching filter.
func (e *Engine) Routings(ctx context.Context, filter store.RoutingFilter) ([]model.IdeaRouting, error) {
	return e.store.ListRoutings(ctx, filter)
}

// History returns a routing's status log, oldest first.
func (e *Engine) History(ctx context.Context, routingID string) ([]model.StatusChange, error) {
	return e.ledger.History(ctx, routingID)
}

// BufferStatus reports every active publication's runway.
func (e *Engine) BufferStatus(ctx context.Context) ([]model.BufferStatus, error) {
	return e.monitor.BufferStatus(ctx)
}

// Alerts computes low-buffer and time-sensitive alerts.
func (e *Engine) Alerts(ctx context.Context) ([]model.RoutingAlert, error) {
	return e.monitor.Alerts(ctx)
}

// Kill soft-deletes a routing from any non-terminal status. The row is kept
// with tier kill, no calendar date and no evergreen entries.
func (e *Engine) Kill(ctx context.Context, routingID, reason, actor string) (*model.IdeaRouting, error) {
	const op = "engine.kill"

	r, err := e.store.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if r.Status.IsTerminal() {
		return nil, apperr.Precondition(op, "routing %s is already %s", r.ID, r.Status)
	}
	if reason == "" {
		reason = "killed"
	}

	from, expected := r.Status, r.Version
	r.Tier = model.TierKill
	r.CalendarDate = nil
	r.Enter(model.StatusKilled, e.ledger.Now())

	err = e.ledger.Commit(ctx, r, expected, ledger.Change{
		From:   from,
		Kind:   model.ChangeManual,
		Actor:  actor,
		Reason: reason,
	})
	if err != nil {
		return nil, err
	}

	if n, err := e.store.RemoveEvergreen(ctx, r.ID); err != nil {
		e.log.Error("remove evergreen entries of killed routing", zap.String("routing_id", r.ID), zap.Error(err))
	} else if n > 0 {
		e.log.Info("killed routing left the evergreen queue", zap.String("routing_id", r.ID), zap.Int("entries", n))
	}

	e.log.Info("routing killed",
		zap.String("routing_id", r.ID),
		zap.String("from", string(from)),
		zap.String("actor", actor),
	)
	return r, nil
}

// Publish marks a scheduled routing as published.
func (e *Engine) Publish(ctx context.Context, routingID, actor string) (*model.IdeaRouting, error) {
	const op = "engine.publish"

	r, err := e.store.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	if r.Status != model.StatusScheduled {
		return nil, apperr.Precondition(op, "routing %s is %s; publishing requires scheduled", r.ID, r.Status)
	}

	from, expected := r.Status, r.Version
	r.Enter(model.StatusPublished, e.ledger.Now())
	err = e.ledger.Commit(ctx, r, expected, ledger.Change{
		From:     from,
		Kind:     model.ChangeManual,
		Actor:    actor,
		Metadata: map[string]any{"calendar_date": model.FormatDate(r.CalendarDate)},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// WeekStart returns the Sunday on or before t.
func WeekStart(t time.Time) time.Time {
	day := model.Day(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// Dashboard aggregates counts, this week's calendar, buffers and alerts.
// The reads run concurrently and are not a single consistent snapshot.
func (e *Engine) Dashboard(ctx context.Context) (*model.Dashboard, error) {
	now := e.now().UTC()
	d := &model.Dashboard{
		WeekStart:   WeekStart(now),
		GeneratedAt: now,
	}
	weekEnd := d.WeekStart.AddDate(0, 0, 7)

	var (
		buffers   []model.BufferStatus
		sensitive []model.RoutingAlert
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := e.store.StatusCounts(gctx)
		d.CountsByStatus = counts
		return eris.Wrap(err, "engine: status counts")
	})
	g.Go(func() error {
		counts, err := e.store.TierCounts(gctx)
		d.CountsByTier = counts
		return eris.Wrap(err, "engine: tier counts")
	})
	g.Go(func() error {
		counts, err := e.store.EvergreenCounts(gctx)
		d.EvergreenCounts = counts
		return eris.Wrap(err, "engine: evergreen counts")
	})
	g.Go(func() error {
		week, err := e.store.ListRoutings(gctx, store.RoutingFilter{
			Statuses: []model.Status{model.StatusScheduled, model.StatusPublished},
			DateFrom: &d.WeekStart,
			DateTo:   &weekEnd,
			Limit:    store.DefaultListLimit,
		})
		d.ScheduledThisWeek = week
		return eris.Wrap(err, "engine: scheduled this week")
	})
	g.Go(func() error {
		var err error
		buffers, err = e.monitor.BufferStatus(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		sensitive, err = e.monitor.TimeSensitiveAlerts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(d.ScheduledThisWeek, func(i, j int) bool {
		a, b := d.ScheduledThisWeek[i], d.ScheduledThisWeek[j]
		if !a.CalendarDate.Equal(*b.CalendarDate) {
			return a.CalendarDate.Before(*b.CalendarDate)
		}
		if a.RoutedTo != b.RoutedTo {
			return a.RoutedTo < b.RoutedTo
		}
		return a.ID < b.ID
	})
	if d.ScheduledThisWeek == nil {
		d.ScheduledThisWeek = []model.IdeaRouting{}
	}
	d.Buffers = buffers
	d.Alerts = append(monitoring.BufferAlerts(buffers), sensitive...)
	if d.Alerts == nil {
		d.Alerts = []model.RoutingAlert{}
	}
	return d, nil
}

// Package monitoring computes publication buffer health and routing alerts,
// and delivers alerts to a webhook.
package monitoring

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/store"
)

// Thresholds configures buffer health and news-window alerting.
type Thresholds struct {
	RedWeeks          float64
	YellowWeeks       float64
	NewsWindowDays    int
	NewsWindowRedDays int
}

// DefaultThresholds mirrors the configuration defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{RedWeeks: 2, YellowWeeks: 4, NewsWindowDays: 7, NewsWindowRedDays: 2}
}

// alertStatuses are the statuses in which an approaching news window has no
// slot secured yet.
var alertStatuses = []model.Status{model.StatusIntake, model.StatusRouted, model.StatusScored}

// Monitor is a read-side aggregator over the routing store and catalog.
type Monitor struct {
	catalog    catalog.Provider
	store      store.Store
	thresholds Thresholds
	now        func() time.Time
	log        *zap.Logger
}

// NewMonitor creates a Monitor.
func NewMonitor(p catalog.Provider, s store.Store, t Thresholds) *Monitor {
	return &Monitor{
		catalog:    p,
		store:      s,
		thresholds: t,
		now:        time.Now,
		log:        zap.L().With(zap.String("component", "monitoring")),
	}
}

// SetClock replaces the clock used to decide "today".
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Health classifies weeks of buffer against the thresholds.
func (t Thresholds) Health(weeks float64, cadence int) model.BufferHealth {
	switch {
	case cadence == 0:
		return model.BufferGreen
	case weeks < t.RedWeeks:
		return model.BufferRed
	case weeks < t.YellowWeeks:
		return model.BufferYellow
	default:
		return model.BufferGreen
	}
}

// BufferStatus reports the queued runway of every active publication,
// ordered by slug.
func (m *Monitor) BufferStatus(ctx context.Context) ([]model.BufferStatus, error) {
	snap, err := m.catalog.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: load catalog")
	}
	counts, err := m.store.QueueCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: queue counts")
	}

	pubs := snap.ActivePublications()
	out := make([]model.BufferStatus, 0, len(pubs))
	for _, p := range pubs {
		b := model.BufferStatus{
			PublicationSlug: p.Slug,
			QueueCount:      counts[p.Slug],
			WeeklyCadence:   snap.WeeklyCadence(p.Slug),
		}
		if b.WeeklyCadence > 0 {
			b.WeeksOfBuffer = float64(b.QueueCount) / float64(b.WeeklyCadence)
		} else {
			m.log.Debug("publication has no active slots; buffer reported green",
				zap.String("publication", p.Slug))
		}
		b.Status = m.thresholds.Health(b.WeeksOfBuffer, b.WeeklyCadence)
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicationSlug < out[j].PublicationSlug })
	return out, nil
}

// Alerts computes low_buffer alerts for red and yellow publications followed
// by time_sensitive alerts for news-hook ideas whose window is close and
// which have no slot yet.
func (m *Monitor) Alerts(ctx context.Context) ([]model.RoutingAlert, error) {
	buffers, err := m.BufferStatus(ctx)
	if err != nil {
		return nil, err
	}
	alerts := BufferAlerts(buffers)

	ts, err := m.TimeSensitiveAlerts(ctx)
	if err != nil {
		return nil, err
	}
	return append(alerts, ts...), nil
}

// BufferAlerts turns unhealthy buffers into low_buffer alerts.
func BufferAlerts(buffers []model.BufferStatus) []model.RoutingAlert {
	var alerts []model.RoutingAlert
	for _, b := range buffers {
		var sev string
		switch b.Status {
		case model.BufferRed:
			sev = model.SeverityRed
		case model.BufferYellow:
			sev = model.SeverityYellow
		default:
			continue
		}
		alerts = append(alerts, model.RoutingAlert{
			Type:     model.AlertLowBuffer,
			Severity: sev,
			Message: fmt.Sprintf("%s has %.1f weeks of buffer (%d queued, %d per week)",
				b.PublicationSlug, b.WeeksOfBuffer, b.QueueCount, b.WeeklyCadence),
			PublicationSlug: b.PublicationSlug,
		})
	}
	return alerts
}

// TimeSensitiveAlerts reports news-hook routings without a slot whose window
// is at most NewsWindowDays away, most urgent first.
func (m *Monitor) TimeSensitiveAlerts(ctx context.Context) ([]model.RoutingAlert, error) {
	routings, err := m.listAll(ctx, store.RoutingFilter{
		Statuses:        alertStatuses,
		TimeSensitivity: model.SensitivityNewsHook,
	})
	if err != nil {
		return nil, err
	}

	today := model.Day(m.now())
	var alerts []model.RoutingAlert
	for _, r := range routings {
		if r.NewsWindow == nil {
			continue
		}
		window := model.Day(*r.NewsWindow)
		days := int(window.Sub(today).Hours() / 24)
		if days > m.thresholds.NewsWindowDays {
			continue
		}
		sev := model.SeverityYellow
		if days <= m.thresholds.NewsWindowRedDays {
			sev = model.SeverityRed
		}

		var msg string
		switch {
		case days < 0:
			msg = fmt.Sprintf("idea %s news window %s passed %d day(s) ago with no slot", r.IdeaID, window.Format(model.DateLayout), -days)
		default:
			msg = fmt.Sprintf("idea %s news window %s is %d day(s) away with no slot", r.IdeaID, window.Format(model.DateLayout), days)
		}

		d := days
		alerts = append(alerts, model.RoutingAlert{
			Type:            model.AlertTimeSensitive,
			Severity:        sev,
			Message:         msg,
			PublicationSlug: r.RoutedTo,
			IdeaRoutingID:   r.ID,
			NewsWindow:      &window,
			DaysRemaining:   &d,
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		if *alerts[i].DaysRemaining != *alerts[j].DaysRemaining {
			return *alerts[i].DaysRemaining < *alerts[j].DaysRemaining
		}
		return alerts[i].IdeaRoutingID < alerts[j].IdeaRoutingID
	})
	return alerts, nil
}

// listAll pages through ListRoutings until the filter is exhausted.
func (m *Monitor) listAll(ctx context.Context, f store.RoutingFilter) ([]model.IdeaRouting, error) {
	f.Limit = store.DefaultListLimit
	var out []model.IdeaRouting
	for {
		page, err := m.store.ListRoutings(ctx, f)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list routings")
		}
		out = append(out, page...)
		if len(page) < f.Limit {
			return out, nil
		}
		f.Offset += len(page)
	}
}

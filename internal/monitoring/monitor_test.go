package monitoring

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/store"
)

var today = time.Date(2025, 6, 4, 9, 0, 0, 0, time.UTC)

func snapshot() *catalog.Snapshot {
	return &catalog.Snapshot{
		Publications: []model.Publication{
			{ID: "p1", Slug: "weekly-brief", Active: true},
			{ID: "p2", Slug: "deep-dives", Active: true},
			{ID: "p3", Slug: "podcast", Active: true},
			{ID: "p4", Slug: "retired", Active: false},
		},
		Slots: []model.CalendarSlot{
			{ID: "s1", PublicationSlug: "weekly-brief", DayOfWeek: 1, Active: true},
			{ID: "s2", PublicationSlug: "deep-dives", DayOfWeek: 2, Active: true},
			{ID: "s3", PublicationSlug: "deep-dives", DayOfWeek: 4, Active: true},
			{ID: "s4", PublicationSlug: "podcast", DayOfWeek: 5, Active: false},
		},
	}
}

func newMonitor(t *testing.T) (*Monitor, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemory()
	m := NewMonitor(catalog.Static{Snap: snapshot()}, s, DefaultThresholds())
	m.now = func() time.Time { return today }
	return m, s
}

func seed(t *testing.T, s store.Store, pub string, status model.Status, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		r := &model.IdeaRouting{
			IdeaID:   fmt.Sprintf("%s-%s-%d", pub, status, i),
			RoutedTo: pub,
			Status:   status,
		}
		require.NoError(t, s.CreateRouting(context.Background(), r))
	}
}

func newsHook(t *testing.T, s store.Store, id string, status model.Status, window time.Time) *model.IdeaRouting {
	t.Helper()
	w := window
	r := &model.IdeaRouting{
		IdeaID:          id,
		RoutedTo:        "weekly-brief",
		TimeSensitivity: model.SensitivityNewsHook,
		NewsWindow:      &w,
		Status:          status,
	}
	require.NoError(t, s.CreateRouting(context.Background(), r))
	return r
}

func TestBufferStatus_RedScenario(t *testing.T) {
	m, s := newMonitor(t)
	seed(t, s, "weekly-brief", model.StatusScored, 1)

	buffers, err := m.BufferStatus(context.Background())
	require.NoError(t, err)

	var brief model.BufferStatus
	for _, b := range buffers {
		if b.PublicationSlug == "weekly-brief" {
			brief = b
		}
	}
	assert.Equal(t, 1, brief.QueueCount)
	assert.Equal(t, 1, brief.WeeklyCadence)
	assert.InDelta(t, 1.0, brief.WeeksOfBuffer, 1e-9)
	assert.Equal(t, model.BufferRed, brief.Status)

	alerts, err := m.Alerts(context.Background())
	require.NoError(t, err)
	var low []model.RoutingAlert
	for _, a := range alerts {
		if a.Type == model.AlertLowBuffer && a.PublicationSlug == "weekly-brief" {
			low = append(low, a)
		}
	}
	require.Len(t, low, 1)
	assert.Equal(t, model.SeverityRed, low[0].Severity)
	assert.Contains(t, low[0].Message, "1.0 weeks")
}

func TestBufferStatus_CountsOnlyOpenRoutings(t *testing.T) {
	m, s := newMonitor(t)
	seed(t, s, "deep-dives", model.StatusIntake, 2)
	seed(t, s, "deep-dives", model.StatusRouted, 2)
	seed(t, s, "deep-dives", model.StatusScored, 2)
	seed(t, s, "deep-dives", model.StatusSlotted, 1)
	seed(t, s, "deep-dives", model.StatusScheduled, 3)
	seed(t, s, "deep-dives", model.StatusPublished, 3)
	seed(t, s, "deep-dives", model.StatusKilled, 3)

	buffers, err := m.BufferStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, buffers, 3)

	assert.Equal(t, []string{"deep-dives", "podcast", "weekly-brief"},
		[]string{buffers[0].PublicationSlug, buffers[1].PublicationSlug, buffers[2].PublicationSlug})

	deep := buffers[0]
	assert.Equal(t, 7, deep.QueueCount)
	assert.Equal(t, 2, deep.WeeklyCadence)
	assert.InDelta(t, 3.5, deep.WeeksOfBuffer, 1e-9)
	assert.Equal(t, model.BufferYellow, deep.Status)
}

func TestBufferStatus_NoSlotsIsGreen(t *testing.T) {
	m, s := newMonitor(t)
	seed(t, s, "podcast", model.StatusIntake, 1)

	buffers, err := m.BufferStatus(context.Background())
	require.NoError(t, err)

	podcast := buffers[1]
	assert.Equal(t, "podcast", podcast.PublicationSlug)
	assert.Equal(t, 1, podcast.QueueCount)
	assert.Equal(t, 0, podcast.WeeklyCadence)
	assert.Zero(t, podcast.WeeksOfBuffer)
	assert.Equal(t, model.BufferGreen, podcast.Status)
}

func TestThresholds_Health(t *testing.T) {
	th := Thresholds{RedWeeks: 2, YellowWeeks: 4}
	tests := []struct {
		weeks   float64
		cadence int
		want    model.BufferHealth
	}{
		{0, 1, model.BufferRed},
		{1.99, 1, model.BufferRed},
		{2, 1, model.BufferYellow},
		{3.99, 1, model.BufferYellow},
		{4, 1, model.BufferGreen},
		{0, 0, model.BufferGreen},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f/%d", tt.weeks, tt.cadence), func(t *testing.T) {
			assert.Equal(t, tt.want, th.Health(tt.weeks, tt.cadence))
		})
	}
}

func TestAlerts_TimeSensitive(t *testing.T) {
	m, s := newMonitor(t)
	// Keep every buffer green so only time-sensitive alerts remain.
	seed(t, s, "weekly-brief", model.StatusSlotted, 4)
	seed(t, s, "deep-dives", model.StatusSlotted, 8)

	day := func(n int) time.Time { return model.Day(today).AddDate(0, 0, n) }

	soon := newsHook(t, s, "soon", model.StatusRouted, day(1))
	week := newsHook(t, s, "week", model.StatusIntake, day(7))
	newsHook(t, s, "later", model.StatusScored, day(8))
	expired := newsHook(t, s, "expired", model.StatusScored, day(-3))
	newsHook(t, s, "slotted", model.StatusSlotted, day(2))
	newsHook(t, s, "scheduled", model.StatusScheduled, day(2))
	edge := newsHook(t, s, "edge", model.StatusScored, day(2))

	alerts, err := m.Alerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 4)

	for _, a := range alerts {
		assert.Equal(t, model.AlertTimeSensitive, a.Type)
		require.NotNil(t, a.DaysRemaining)
		require.NotNil(t, a.NewsWindow)
	}

	assert.Equal(t, expired.ID, alerts[0].IdeaRoutingID)
	assert.Equal(t, -3, *alerts[0].DaysRemaining)
	assert.Equal(t, model.SeverityRed, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "passed 3 day(s) ago")

	assert.Equal(t, soon.ID, alerts[1].IdeaRoutingID)
	assert.Equal(t, model.SeverityRed, alerts[1].Severity)

	assert.Equal(t, edge.ID, alerts[2].IdeaRoutingID)
	assert.Equal(t, model.SeverityRed, alerts[2].Severity)

	assert.Equal(t, week.ID, alerts[3].IdeaRoutingID)
	assert.Equal(t, 7, *alerts[3].DaysRemaining)
	assert.Equal(t, model.SeverityYellow, alerts[3].Severity)
	assert.Equal(t, "weekly-brief", alerts[3].PublicationSlug)
}

func TestAlerts_IgnoresOtherSensitivities(t *testing.T) {
	m, s := newMonitor(t)
	seed(t, s, "weekly-brief", model.StatusSlotted, 4)
	seed(t, s, "deep-dives", model.StatusSlotted, 8)

	w := model.Day(today).AddDate(0, 0, 1)
	require.NoError(t, s.CreateRouting(context.Background(), &model.IdeaRouting{
		IdeaID:          "seasonal",
		TimeSensitivity: model.SensitivitySeasonal,
		NewsWindow:      &w,
		Status:          model.StatusRouted,
	}))
	require.NoError(t, s.CreateRouting(context.Background(), &model.IdeaRouting{
		IdeaID:          "no-window",
		TimeSensitivity: model.SensitivityNewsHook,
		Status:          model.StatusRouted,
	}))

	alerts, err := m.Alerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestBufferAlerts(t *testing.T) {
	alerts := BufferAlerts([]model.BufferStatus{
		{PublicationSlug: "a", Status: model.BufferGreen},
		{PublicationSlug: "b", QueueCount: 3, WeeklyCadence: 1, WeeksOfBuffer: 3, Status: model.BufferYellow},
		{PublicationSlug: "c", Status: model.BufferRed},
	})
	require.Len(t, alerts, 2)
	assert.Equal(t, "b", alerts[0].PublicationSlug)
	assert.Equal(t, model.SeverityYellow, alerts[0].Severity)
	assert.Equal(t, "b has 3.0 weeks of buffer (3 queued, 1 per week)", alerts[0].Message)
	assert.Equal(t, "c", alerts[1].PublicationSlug)
	assert.Equal(t, model.SeverityRed, alerts[1].Severity)
}

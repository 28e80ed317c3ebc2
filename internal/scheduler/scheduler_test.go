package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/ledger"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/resilience"
	"github.com/sells-group/content-router/internal/store"
)

// wednesday is the fixed "today" of these tests: 2025-06-04.
var wednesday = time.Date(2025, 6, 4, 15, 30, 0, 0, time.UTC)

type fixture struct {
	sched  *Scheduler
	store  *store.MemoryStore
	ledger *ledger.Ledger
}

func testSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	snap, err := catalog.NewYAMLLoader("../catalog/testdata/catalog.yaml").Load(context.Background())
	require.NoError(t, err)
	return snap
}

func newFixture(t *testing.T, snap *catalog.Snapshot) *fixture {
	t.Helper()
	s := store.NewMemory()
	l := ledger.New(s, resilience.RetryConfig{MaxAttempts: 1})
	sched := New(catalog.Static{Snap: snap}, s, l, 4)
	sched.now = func() time.Time { return wednesday }
	return &fixture{sched: sched, store: s, ledger: l}
}

func (f *fixture) scored(t *testing.T, pub string, tier model.Tier, facts model.Facts) *model.IdeaRouting {
	t.Helper()
	r := &model.IdeaRouting{
		IdeaID:   "idea-" + string(tier),
		RoutedTo: pub,
		Tier:     tier,
		Facts:    facts,
		Status:   model.StatusScored,
	}
	require.NoError(t, f.ledger.Create(context.Background(), r, ledger.Change{Actor: "test"}))
	return r
}

func TestRecommend_SchedulingConflictScenario(t *testing.T) {
	f := newFixture(t, testSnapshot(t))
	ctx := context.Background()

	first := f.scored(t, "quick-takes", model.TierA, model.Facts{Resource: "video"})
	second := f.scored(t, "quick-takes", model.TierA, model.Facts{Resource: "essay"})

	rec1, err := f.sched.Recommend(ctx, first.ID)
	require.NoError(t, err)
	rec2, err := f.sched.Recommend(ctx, second.ID)
	require.NoError(t, err)

	require.NotNil(t, rec1)
	assert.Equal(t, "qt-mon", rec1.SlotID)
	assert.Equal(t, "2025-06-09", rec1.Date.Format(model.DateLayout))
	assert.True(t, rec1.TierMatch)
	assert.True(t, rec1.PreferredDay)
	assert.Equal(t, *rec1, *rec2, "both ideas are offered the same Monday")

	_, err = f.sched.Schedule(ctx, first.ID, "2025-06-09", rec1.SlotID, "ed")
	require.NoError(t, err)

	rec2, err = f.sched.Recommend(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, rec2)
	assert.Equal(t, "qt-mon", rec2.SlotID)
	assert.Equal(t, "2025-06-16", rec2.Date.Format(model.DateLayout), "next free Monday")
}

func TestRecommend_Ranking(t *testing.T) {
	f := newFixture(t, testSnapshot(t))
	ctx := context.Background()

	tests := []struct {
		name   string
		tier   model.Tier
		format string
		slot   string
		date   string
	}{
		{"tier b prefers thursday", model.TierB, "", "qt-thu", "2025-06-05"},
		{"tier c takes earliest non-fixed", model.TierC, "", "qt-thu", "2025-06-05"},
		{"fixed slot ranks after non-fixed", model.TierC, "roundup", "qt-thu", "2025-06-05"},
		{"premium a has no preference", model.TierPremiumA, "", "qt-thu", "2025-06-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := f.scored(t, "quick-takes", tt.tier, model.Facts{Format: tt.format})
			rec, err := f.sched.Recommend(ctx, r.ID)
			require.NoError(t, err)
			require.NotNil(t, rec)
			assert.Equal(t, tt.slot, rec.SlotID)
			assert.Equal(t, tt.date, rec.Date.Format(model.DateLayout))
		})
	}
}

func TestRecommend_FixedSlotOnlyForItsFormat(t *testing.T) {
	snap := testSnapshot(t)
	var slots []model.CalendarSlot
	for _, s := range snap.Slots {
		if s.ID == "qt-fri" {
			slots = append(slots, s)
		}
	}
	snap.Slots = slots
	f := newFixture(t, snap)
	ctx := context.Background()

	roundup := f.scored(t, "quick-takes", model.TierB, model.Facts{Format: "Roundup"})
	rec, err := f.sched.Recommend(ctx, roundup.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "qt-fri", rec.SlotID)
	assert.True(t, rec.IsFixed)
	assert.Equal(t, "2025-06-06", rec.Date.Format(model.DateLayout))

	essay := f.scored(t, "quick-takes", model.TierB, model.Facts{Format: "essay"})
	rec, err = f.sched.Recommend(ctx, essay.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecommend_SkipRulesExcludeSlot(t *testing.T) {
	f := newFixture(t, testSnapshot(t))
	ctx := context.Background()

	short := f.scored(t, "deep-dives", model.TierA, model.Facts{EstimatedLength: "short"})
	rec, err := f.sched.Recommend(ctx, short.ID)
	require.NoError(t, err)
	assert.Nil(t, rec, "the only deep-dives slot skips short pieces")

	long := f.scored(t, "deep-dives", model.TierA, model.Facts{EstimatedLength: "long"})
	rec, err = f.sched.Recommend(ctx, long.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "dd-wed", rec.SlotID)
	assert.Equal(t, "2025-06-11", rec.Date.Format(model.DateLayout), "today is never offered")
}

func TestRecommend_SkipRuleSeesTier(t *testing.T) {
	snap := testSnapshot(t)
	for i := range snap.Slots {
		if snap.Slots[i].ID == "qt-mon" {
			snap.Slots[i].SkipRules = append(snap.Slots[i].SkipRules, mustNode(t, `{"field":"tier","op":"eq","value":"a"}`))
		}
	}
	f := newFixture(t, snap)

	r := f.scored(t, "quick-takes", model.TierA, model.Facts{})
	rec, err := f.sched.Recommend(context.Background(), r.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "qt-thu", rec.SlotID)
}

func TestRecommend_HorizonExhausted(t *testing.T) {
	f := newFixture(t, testSnapshot(t))
	ctx := context.Background()

	monday := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		holder := f.scored(t, "deep-dives", model.TierA, model.Facts{})
		_, err := f.sched.Schedule(ctx, holder.ID, monday.AddDate(0, 0, 7*i+2).Format(model.DateLayout), "dd-wed", "ed")
		require.NoError(t, err)
	}

	r := f.scored(t, "deep-dives", model.TierA, model.Facts{})
	rec, err := f.sched.Recommend(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, rec, "every Wednesday within four weeks is taken")
}

func TestRecommend_RequiresScored(t *testing.T) {
	f := newFixture(t, testSnapshot(t))
	r := &model.IdeaRouting{IdeaID: "idea-1", RoutedTo: "quick-takes", Status: model.StatusRouted}
	require.NoError(t, f.ledger.Create(context.Background(), r, ledger.Change{Actor: "test"}))

	_, err := f.sched.Recommend(context.Background(), r.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
}

func TestSchedule_TransitionsAndLogs(t *testing.T) {
	f := newFixture(t, testSnapshot(t))
	ctx := context.Background()
	r := f.scored(t, "quick-takes", model.TierA, model.Facts{})

	_, created, err := f.sched.EnqueueEvergreen(ctx, r.ID, "", "ed")
	require.NoError(t, err)
	require.True(t, created)

	got, err := f.sched.Schedule(ctx, r.ID, "2025-06-12", "qt-thu", "ed")
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	assert.Equal(t, "2025-06-12", model.FormatDate(got.CalendarDate))
	assert.Equal(t, "qt-thu", got.SlotID)
	assert.NotNil(t, got.ScheduledAt)

	queued, err := f.sched.Evergreen(ctx, "quick-takes")
	require.NoError(t, err)
	assert.Empty(t, queued, "scheduling leaves the evergreen queue")

	history, err := f.ledger.History(ctx, r.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, model.StatusScored, last.FromStatus)
	assert.Equal(t, model.StatusScheduled, last.ToStatus)
	assert.Equal(t, "2025-06-12", last.Metadata["calendar_date"])

	_, err = f.sched.Schedule(ctx, r.ID, "2025-06-19", "qt-thu", "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition), "already scheduled")
}

func TestSchedule_Errors(t *testing.T) {
	f := newFixture(t, testSnapshot(t))
	ctx := context.Background()

	holder := f.scored(t, "quick-takes", model.TierA, model.Facts{})
	_, err := f.sched.Schedule(ctx, holder.ID, "2025-06-09", "qt-mon", "ed")
	require.NoError(t, err)

	r := f.scored(t, "quick-takes", model.TierA, model.Facts{})
	deep := f.scored(t, "deep-dives", model.TierA, model.Facts{EstimatedLength: "short"})
	routed := &model.IdeaRouting{IdeaID: "idea-routed", RoutedTo: "quick-takes", Status: model.StatusRouted}
	require.NoError(t, f.ledger.Create(ctx, routed, ledger.Change{Actor: "test"}))

	tests := []struct {
		name    string
		routing string
		date    string
		slot    string
		kind    apperr.Kind
	}{
		{"bad date format", r.ID, "06/09/2025", "", apperr.KindValidation},
		{"date in the past", r.ID, "2025-06-02", "", apperr.KindValidation},
		{"weekday mismatch", r.ID, "2025-06-10", "qt-mon", apperr.KindValidation},
		{"double booking", r.ID, "2025-06-09", "qt-mon", apperr.KindConflict},
		{"double booking without slot", r.ID, "2025-06-09", "", apperr.KindConflict},
		{"unknown slot", r.ID, "2025-06-09", "nope", apperr.KindNotFound},
		{"slot of another publication", r.ID, "2025-06-11", "dd-wed", apperr.KindNotFound},
		{"fixed slot wrong format", r.ID, "2025-06-13", "qt-fri", apperr.KindValidation},
		{"skip rule matches", deep.ID, "2025-06-11", "dd-wed", apperr.KindValidation},
		{"not scored", routed.ID, "2025-06-12", "qt-thu", apperr.KindPrecondition},
		{"unknown routing", "missing", "2025-06-12", "", apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.sched.Schedule(ctx, tt.routing, tt.date, tt.slot, "ed")
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestAssignSlot(t *testing.T) {
	f := newFixture(t, testSnapshot(t))
	ctx := context.Background()
	r := f.scored(t, "quick-takes", model.TierB, model.Facts{})

	got, err := f.sched.AssignSlot(ctx, r.ID, "qt-mon", "ed")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSlotted, got.Status)
	assert.Equal(t, "qt-mon", got.SlotID)
	assert.Nil(t, got.CalendarDate)

	rec, err := f.sched.Recommend(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "qt-mon", rec.SlotID, "slotted routings stay on their slot")

	got, err = f.sched.Schedule(ctx, r.ID, "2025-06-09", "", "ed")
	require.NoError(t, err)
	assert.Equal(t, "qt-mon", got.SlotID, "schedule defaults to the assigned slot")

	_, err = f.sched.AssignSlot(ctx, r.ID, "qt-thu", "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	_, err = f.sched.AssignSlot(ctx, r.ID, "", "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestKillTierCannotTakeSlot(t *testing.T) {
	f := newFixture(t, testSnapshot(t))
	ctx := context.Background()

	zero := 0.0
	r := &model.IdeaRouting{
		IdeaID:        "idea-overridden",
		RoutedTo:      "quick-takes",
		Tier:          model.TierKill,
		OverrideScore: &zero,
		Status:        model.StatusScored,
	}
	require.NoError(t, f.ledger.Create(ctx, r, ledger.Change{Actor: "test"}))

	rec, err := f.sched.Recommend(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = f.sched.Schedule(ctx, r.ID, "2025-06-05", "qt-thu", "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	_, err = f.sched.AssignSlot(ctx, r.ID, "qt-thu", "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	got, err := f.store.GetRouting(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScored, got.Status)
	assert.Nil(t, got.CalendarDate)
	assert.Empty(t, got.SlotID)
}

func TestEnqueueEvergreen(t *testing.T) {
	f := newFixture(t, testSnapshot(t))
	ctx := context.Background()

	routed := &model.IdeaRouting{IdeaID: "idea-1", RoutedTo: "quick-takes", Status: model.StatusRouted}
	require.NoError(t, f.ledger.Create(ctx, routed, ledger.Change{Actor: "test"}))

	e, created, err := f.sched.EnqueueEvergreen(ctx, routed.ID, "quick-takes", "ed")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.sched.EnqueueEvergreen(ctx, routed.ID, "quick-takes", "ed")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e.ID, again.ID)

	got, err := f.store.GetRouting(ctx, routed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRouted, got.Status, "status is unchanged")

	_, _, err = f.sched.EnqueueEvergreen(ctx, routed.ID, "deep-dives", "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, _, err = f.sched.EnqueueEvergreen(ctx, routed.ID, "archive", "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	intake := &model.IdeaRouting{IdeaID: "idea-2", Status: model.StatusIntake}
	require.NoError(t, f.ledger.Create(ctx, intake, ledger.Change{Actor: "test"}))
	_, _, err = f.sched.EnqueueEvergreen(ctx, intake.ID, "quick-takes", "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	queued, err := f.sched.Evergreen(ctx, "quick-takes")
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, routed.ID, queued[0].IdeaRoutingID)
}

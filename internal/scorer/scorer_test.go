package scorer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/ledger"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/resilience"
	"github.com/sells-group/content-router/internal/store"
)

type fixture struct {
	scorer *Scorer
	store  *store.MemoryStore
	ledger *ledger.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemory()
	l := ledger.New(s, resilience.RetryConfig{MaxAttempts: 1})
	return &fixture{
		scorer: New(catalog.Static{Snap: testSnapshot(t)}, s, l, defaultScale),
		store:  s,
		ledger: l,
	}
}

// routed creates a routing already routed to pub.
func (f *fixture) routed(t *testing.T, pub string) *model.IdeaRouting {
	t.Helper()
	ctx := context.Background()
	r := &model.IdeaRouting{IdeaID: "idea-" + pub, Status: model.StatusIntake}
	require.NoError(t, f.ledger.Create(ctx, r, ledger.Change{Actor: "test"}))
	r.RoutedTo = pub
	r.Enter(model.StatusRouted, f.ledger.Now())
	require.NoError(t, f.ledger.Commit(ctx, r, r.Version, ledger.Change{From: model.StatusIntake, Actor: "test"}))
	return r
}

var scenarioScores = map[string]int{"qt-relevance": 8, "qt-originality": 5, "qt-timeliness": 1}

func TestScorer_Preview(t *testing.T) {
	f := newFixture(t)
	b, err := f.scorer.Preview(context.Background(), "quick-takes", scenarioScores)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, b.FinalScore, 1e-9)
	assert.Equal(t, model.TierA, b.Tier)
}

func TestScorer_CommitMovesToScored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routed(t, "quick-takes")

	got, b, err := f.scorer.Commit(ctx, r.ID, scenarioScores, "ed")
	require.NoError(t, err)
	assert.Equal(t, model.StatusScored, got.Status)
	assert.Equal(t, model.TierA, got.Tier)
	require.NotNil(t, got.Score)
	assert.InDelta(t, 8.0, *got.Score, 1e-9)
	assert.Equal(t, b, got.Breakdown)
	require.NotNil(t, got.ScoredAt)

	changes, err := f.ledger.History(ctx, r.ID)
	require.NoError(t, err)
	last := changes[len(changes)-1]
	assert.Equal(t, model.StatusRouted, last.FromStatus)
	assert.Equal(t, model.StatusScored, last.ToStatus)
	assert.Equal(t, model.ChangeAuto, last.Kind)
	assert.Equal(t, "a", last.Metadata["tier"])
}

func TestScorer_RescoreKeepsFirstTimestampAndClearsOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routed(t, "quick-takes")

	first, _, err := f.scorer.Commit(ctx, r.ID, scenarioScores, "ed")
	require.NoError(t, err)
	scoredAt := *first.ScoredAt

	_, err = f.scorer.Override(ctx, r.ID, 9.5, "editor pick", "ed")
	require.NoError(t, err)

	again, _, err := f.scorer.Commit(ctx, r.ID, map[string]int{"qt-relevance": 5, "qt-originality": 5}, "ed")
	require.NoError(t, err)
	assert.Equal(t, scoredAt, *again.ScoredAt)
	assert.Nil(t, again.OverrideScore)
	assert.Empty(t, again.OverrideReason)
	assert.Equal(t, model.TierB, again.Tier)
}

func TestScorer_KillTierKillsRouting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routed(t, "quick-takes")

	_, err := f.store.EnqueueEvergreen(ctx, &model.EvergreenEntry{PublicationSlug: "quick-takes", IdeaRoutingID: r.ID})
	require.NoError(t, err)

	got, b, err := f.scorer.Commit(ctx, r.ID, map[string]int{"qt-relevance": 0, "qt-originality": 5}, "ed")
	require.NoError(t, err)
	assert.Equal(t, model.TierKill, b.Tier)
	assert.Equal(t, model.StatusKilled, got.Status)
	assert.NotNil(t, got.KilledAt)

	queued, err := f.store.ListEvergreen(ctx, "quick-takes")
	require.NoError(t, err)
	assert.Empty(t, queued)

	_, _, err = f.scorer.Commit(ctx, r.ID, scenarioScores, "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition), "killed is terminal")
}

func TestScorer_CommitRequiresRouted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := &model.IdeaRouting{IdeaID: "idea-1", Status: model.StatusIntake}
	require.NoError(t, f.ledger.Create(ctx, r, ledger.Change{Actor: "test"}))

	_, _, err := f.scorer.Commit(ctx, r.ID, scenarioScores, "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))

	_, _, err = f.scorer.Commit(ctx, "missing", scenarioScores, "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestScorer_CommitValidationLeavesRoutingUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routed(t, "quick-takes")

	_, _, err := f.scorer.Commit(ctx, r.ID, map[string]int{"qt-relevance": 8}, "ed")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	got, err := f.store.GetRouting(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRouted, got.Status)
	assert.Equal(t, r.Version, got.Version)
}

func TestScorer_Override(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routed(t, "quick-takes")

	got, err := f.scorer.Override(ctx, r.ID, 9.5, "timely exclusive", "chief")
	require.NoError(t, err)
	assert.Equal(t, model.StatusScored, got.Status, "routed moves to scored")
	assert.Equal(t, model.TierPremiumA, got.Tier)
	require.NotNil(t, got.OverrideScore)
	assert.InDelta(t, 9.5, *got.EffectiveScore(), 1e-9)
	assert.Nil(t, got.Score)

	changes, err := f.ledger.History(ctx, r.ID)
	require.NoError(t, err)
	last := changes[len(changes)-1]
	assert.Equal(t, model.ChangeOverride, last.Kind)
	assert.Equal(t, "timely exclusive", last.Reason)
	assert.Equal(t, "chief", last.ChangedBy)
	assert.Equal(t, model.StatusRouted, last.FromStatus)
	assert.Equal(t, model.StatusScored, last.ToStatus)
}

func TestScorer_OverrideToKillKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routed(t, "quick-takes")
	_, _, err := f.scorer.Commit(ctx, r.ID, scenarioScores, "ed")
	require.NoError(t, err)

	got, err := f.scorer.Override(ctx, r.ID, 1, "off brand", "chief")
	require.NoError(t, err)
	assert.Equal(t, model.TierKill, got.Tier)
	assert.Equal(t, model.StatusScored, got.Status)
	assert.NoError(t, got.CheckInvariants())
}

func TestScorer_OverrideErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.routed(t, "quick-takes")

	_, err := f.scorer.Override(ctx, r.ID, 8, "", "chief")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "reason required")

	_, err = f.scorer.Override(ctx, r.ID, 11, "too high", "chief")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "outside scale")

	_, err = f.scorer.Override(ctx, "missing", 8, "why", "chief")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	r.Tier = model.TierKill
	r.Enter(model.StatusKilled, f.ledger.Now())
	require.NoError(t, f.store.UpdateRouting(ctx, r, r.Version))
	_, err = f.scorer.Override(ctx, r.ID, 8, "revive", "chief")
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
}

package scorer

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/ledger"
	"github.com/sells-group/content-router/internal/model"
	"github.com/sells-group/content-router/internal/store"
)

// Scorer applies rubric scores and overrides to routings.
type Scorer struct {
	catalog catalog.Provider
	store   store.Store
	ledger  *ledger.Ledger
	scale   catalog.Scale
	log     *zap.Logger
}

// New creates a Scorer. fallback is the scale used when a publication's
// rubrics define no criteria levels.
func New(p catalog.Provider, s store.Store, l *ledger.Ledger, fallback catalog.Scale) *Scorer {
	return &Scorer{
		catalog: p,
		store:   s,
		ledger:  l,
		scale:   fallback,
		log:     zap.L().With(zap.String("component", "scorer")),
	}
}

// Preview computes what scores would yield for a publication without
// touching any routing.
func (s *Scorer) Preview(ctx context.Context, publicationSlug string, scores map[string]int) (*model.ScoreBreakdown, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: catalog")
	}
	b, err := Compute(snap, publicationSlug, scores, s.scale)
	if err != nil {
		s.logConfig(err, publicationSlug)
		return nil, err
	}
	s.logResolution(b)
	return b, nil
}

// Commit scores a routed (or already scored) routing. A kill tier moves the
// routing to killed; anything else moves it to scored. Re-scoring clears a
// previous override.
func (s *Scorer) Commit(ctx context.Context, routingID string, scores map[string]int, actor string) (*model.IdeaRouting, *model.ScoreBreakdown, error) {
	const op = "scorer.commit"

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "scorer: catalog")
	}
	r, err := s.store.GetRouting(ctx, routingID)
	if err != nil {
		return nil, nil, err
	}
	if r.Status != model.StatusRouted && r.Status != model.StatusScored {
		return nil, nil, apperr.Precondition(op, "routing %s is %s; scoring requires routed or scored", r.ID, r.Status)
	}

	b, err := Compute(snap, r.RoutedTo, scores, s.scale)
	if err != nil {
		s.logConfig(err, r.RoutedTo)
		return nil, nil, err
	}
	s.logResolution(b)

	from, expected := r.Status, r.Version
	final := b.FinalScore
	r.Score = &final
	r.Breakdown = b
	r.Tier = b.Tier
	r.OverrideScore = nil
	r.OverrideReason = ""

	next := model.StatusScored
	if b.Tier == model.TierKill {
		next = model.StatusKilled
	}
	r.Enter(next, s.ledger.Now())

	err = s.ledger.Commit(ctx, r, expected, ledger.Change{
		From:  from,
		Kind:  model.ChangeAuto,
		Actor: actor,
		Metadata: map[string]any{
			"score":        final,
			"tier":         string(b.Tier),
			"threshold_id": b.ThresholdID,
			"resolution":   b.Resolution,
		},
	})
	if err != nil {
		return nil, nil, err
	}
	if next == model.StatusKilled {
		s.dropEvergreen(ctx, r.ID)
	}

	s.log.Info("routing scored",
		zap.String("routing_id", r.ID),
		zap.Float64("score", final),
		zap.String("tier", string(b.Tier)),
		zap.String("status", string(r.Status)),
	)
	return r, b, nil
}

// Override sets the routing's tier from a hand-picked score. The computed
// score and breakdown are kept; the log row is tagged as an override.
func (s *Scorer) Override(ctx context.Context, routingID string, score float64, reason, actor string) (*model.IdeaRouting, error) {
	const op = "scorer.override"

	if reason == "" {
		return nil, apperr.Validation(op, "override reason is required")
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, apperr.Validation(op, "override score must be a finite number")
	}

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: catalog")
	}
	r, err := s.store.GetRouting(ctx, routingID)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case model.StatusRouted, model.StatusScored, model.StatusSlotted:
	default:
		return nil, apperr.Precondition(op, "routing %s is %s; override requires routed, scored or slotted", r.ID, r.Status)
	}

	scale := snap.ScaleFor(r.RoutedTo, s.scale)
	if scale.Max > scale.Min && (score < scale.Min || score > scale.Max) {
		return nil, apperr.Validation(op, "override score %.2f is outside %.2f..%.2f", score, scale.Min, scale.Max)
	}

	res := ResolveTier(snap.ThresholdsFor(r.RoutedTo), score, scale)
	if res.Resolution != model.ResolutionExact {
		s.log.Warn("override score resolved by fallback; check tier thresholds",
			zap.String("publication", r.RoutedTo),
			zap.Float64("score", score),
			zap.String("resolution", res.Resolution),
		)
	}

	from, expected, previous := r.Status, r.Version, r.Tier
	r.OverrideScore = &score
	r.OverrideReason = reason
	r.Tier = res.Tier
	if r.Status == model.StatusRouted {
		r.Enter(model.StatusScored, s.ledger.Now())
	}

	err = s.ledger.Commit(ctx, r, expected, ledger.Change{
		From:   from,
		Kind:   model.ChangeOverride,
		Actor:  actor,
		Reason: reason,
		Metadata: map[string]any{
			"override_score": score,
			"tier":           string(res.Tier),
			"previous_tier":  string(previous),
		},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Scorer) dropEvergreen(ctx context.Context, routingID string) {
	if _, err := s.store.RemoveEvergreen(ctx, routingID); err != nil {
		s.log.Error("remove evergreen entries of killed routing", zap.String("routing_id", routingID), zap.Error(err))
	}
}

// logConfig reports catalog misconfiguration loudly.
func (s *Scorer) logConfig(err error, publicationSlug string) {
	if apperr.IsKind(err, apperr.KindConfiguration) {
		s.log.Error("scoring blocked by catalog configuration", zap.String("publication", publicationSlug), zap.Error(err))
	}
}

func (s *Scorer) logResolution(b *model.ScoreBreakdown) {
	if b.UsedBaseline {
		s.log.Warn("base rubric weights sum to zero; baseline score used",
			zap.String("publication", b.PublicationSlug),
			zap.Float64("baseline", b.BaseScore),
		)
	}
	switch b.Resolution {
	case model.ResolutionNarrowest:
		s.log.Warn("tier thresholds overlap; narrowest range chosen",
			zap.String("publication", b.PublicationSlug),
			zap.Float64("score", b.FinalScore),
			zap.String("threshold_id", b.ThresholdID),
		)
	case model.ResolutionFallback, model.ResolutionBelowAll:
		s.log.Warn("score falls in a tier threshold gap; fallback tier used",
			zap.String("publication", b.PublicationSlug),
			zap.Float64("score", b.FinalScore),
			zap.String("tier", string(b.Tier)),
		)
	}
}

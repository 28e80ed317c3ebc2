// Package scorer turns per-rubric scores into a weighted, modifier-adjusted
// final score and maps it to a publication tier.
package scorer

import (
	"math"
	"sort"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/catalog"
	"github.com/sells-group/content-router/internal/model"
)

// round6 keeps float noise from moving a score across a threshold edge.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Compute scores one publication's rubrics. It is pure: identical inputs
// always yield an identical breakdown.
//
// Base rubrics form the weighted average sum(w*s)/sum(w); a zero weight sum
// falls back to the first base rubric's baseline score. Modifier rubrics
// present in scores add (score - baseline). The result is clamped to the
// publication's scale and resolved against its tier thresholds.
func Compute(snap *catalog.Snapshot, publicationSlug string, scores map[string]int, fallback catalog.Scale) (*model.ScoreBreakdown, error) {
	const op = "scorer.compute"

	if _, ok := snap.Publication(publicationSlug); !ok {
		return nil, apperr.NotFound(op, "publication %q not found", publicationSlug)
	}

	rubrics := snap.RubricsFor(publicationSlug)
	byID := make(map[string]model.ScoringRubric, len(rubrics))
	var base, modifiers []model.ScoringRubric
	for _, r := range rubrics {
		byID[r.ID] = r
		if r.IsModifier {
			modifiers = append(modifiers, r)
		} else {
			base = append(base, r)
		}
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound(op, "rubric %q is not an active rubric of %s", id, publicationSlug)
		}
		if lo, hi, ok := r.Levels(); ok && (scores[id] < lo || scores[id] > hi) {
			return nil, apperr.Validation(op, "score %d for rubric %s is outside %d..%d", scores[id], id, lo, hi)
		}
	}

	if len(base) == 0 {
		return nil, apperr.Configuration(op, "publication %s has no active base rubrics", publicationSlug)
	}

	b := &model.ScoreBreakdown{PublicationSlug: publicationSlug}

	var weighted float64
	for _, r := range base {
		s, ok := scores[r.ID]
		if !ok {
			return nil, apperr.Validation(op, "missing score for rubric %s", r.ID)
		}
		b.WeightSum += r.Weight
		weighted += r.Weight * float64(s)
	}

	if b.WeightSum == 0 {
		baseline := base[0].BaselineScore
		if baseline == nil {
			return nil, apperr.Configuration(op, "publication %s: base rubric weights sum to zero and no baseline score is set", publicationSlug)
		}
		b.BaseScore = *baseline
		b.UsedBaseline = true
	} else {
		b.BaseScore = round6(weighted / b.WeightSum)
	}

	for _, r := range base {
		c := model.RubricContribution{
			RubricID:   r.ID,
			RubricName: r.Name,
			Score:      scores[r.ID],
			Weight:     r.Weight,
		}
		if b.WeightSum > 0 {
			c.Contribution = round6(r.Weight * float64(c.Score) / b.WeightSum)
		}
		b.Contributions = append(b.Contributions, c)
	}

	for _, r := range modifiers {
		s, ok := scores[r.ID]
		if !ok {
			continue
		}
		var baseline float64
		if r.BaselineScore != nil {
			baseline = *r.BaselineScore
		}
		c := model.RubricContribution{
			RubricID:     r.ID,
			RubricName:   r.Name,
			IsModifier:   true,
			Score:        s,
			Weight:       r.Weight,
			Baseline:     baseline,
			Contribution: round6(float64(s) - baseline),
		}
		b.ModifierTotal += c.Contribution
		b.Contributions = append(b.Contributions, c)
	}
	b.ModifierTotal = round6(b.ModifierTotal)

	scale := snap.ScaleFor(publicationSlug, fallback)
	b.ScaleMin, b.ScaleMax = scale.Min, scale.Max
	b.RawScore = round6(b.BaseScore + b.ModifierTotal)
	b.FinalScore = clamp(b.RawScore, scale)
	b.Clamped = b.FinalScore != b.RawScore

	res := ResolveTier(snap.ThresholdsFor(publicationSlug), b.FinalScore, scale)
	b.Tier, b.ThresholdID, b.Resolution = res.Tier, res.ThresholdID, res.Resolution
	return b, nil
}

func clamp(v float64, scale catalog.Scale) float64 {
	if scale.Max <= scale.Min {
		return v
	}
	return math.Max(scale.Min, math.Min(scale.Max, v))
}

// Resolution is the outcome of ResolveTier.
type Resolution struct {
	Tier        model.Tier
	ThresholdID string
	Resolution  string
}

// ResolveTier maps score to a tier. Ranges are [min, max) except that the
// range reaching the top of the scale also contains the top. Overlapping
// matches pick the narrowest range; a score in a gap takes the nearest
// threshold below it; a score below every threshold is kill.
func ResolveTier(thresholds []model.TierThreshold, score float64, scale catalog.Scale) Resolution {
	var matches []model.TierThreshold
	for _, t := range thresholds {
		if t.MinScore <= score && (score < t.MaxScore || (score == t.MaxScore && t.MaxScore >= scale.Max)) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
	case 1:
		return Resolution{Tier: matches[0].Tier, ThresholdID: matches[0].ID, Resolution: model.ResolutionExact}
	default:
		sort.SliceStable(matches, func(i, j int) bool {
			si, sj := matches[i].Span(), matches[j].Span()
			if si != sj {
				return si < sj
			}
			if matches[i].MinScore != matches[j].MinScore {
				return matches[i].MinScore > matches[j].MinScore
			}
			return matches[i].ID < matches[j].ID
		})
		return Resolution{Tier: matches[0].Tier, ThresholdID: matches[0].ID, Resolution: model.ResolutionNarrowest}
	}

	var below *model.TierThreshold
	for i := range thresholds {
		t := &thresholds[i]
		if t.MinScore <= score && (below == nil || t.MinScore > below.MinScore) {
			below = t
		}
	}
	if below != nil {
		return Resolution{Tier: below.Tier, ThresholdID: below.ID, Resolution: model.ResolutionFallback}
	}
	return Resolution{Tier: model.TierKill, Resolution: model.ResolutionBelowAll}
}

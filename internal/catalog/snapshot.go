// Package catalog provides the read-only reference data the engine routes,
// scores and schedules against: publications, routing rules, scoring rubrics,
// tier thresholds and calendar slots.
package catalog

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/content-router/internal/model"
)

// Loader reads a complete catalog snapshot from a backing source.
type Loader interface {
	Load(ctx context.Context) (*Snapshot, error)
}

// Provider hands out the current snapshot. *Cache implements it; tests
// typically use Static.
type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Static is a Provider that always returns the same snapshot.
type Static struct {
	Snap *Snapshot
}

// Snapshot implements Provider.
func (s Static) Snapshot(context.Context) (*Snapshot, error) {
	return s.Snap, nil
}

// Snapshot is an immutable view of the catalog. Accessors return only
// active entries.
type Snapshot struct {
	Publications []model.Publication   `json:"publications" yaml:"publications"`
	Rules        []model.RoutingRule   `json:"rules" yaml:"rules"`
	Rubrics      []model.ScoringRubric `json:"rubrics" yaml:"rubrics"`
	Thresholds   []model.TierThreshold `json:"thresholds" yaml:"thresholds"`
	Slots        []model.CalendarSlot  `json:"slots" yaml:"slots"`
	LoadedAt     time.Time             `json:"loaded_at" yaml:"-"`
}

// Scale is the inclusive numeric range final scores are clamped to.
type Scale struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Publication looks up an active publication by slug.
func (s *Snapshot) Publication(slug string) (model.Publication, bool) {
	for _, p := range s.Publications {
		if p.Slug == slug && p.Active {
			return p, true
		}
	}
	return model.Publication{}, false
}

// ActivePublications returns active publications ordered by slug.
func (s *Snapshot) ActivePublications() []model.Publication {
	var out []model.Publication
	for _, p := range s.Publications {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// ActiveRules returns active rules in evaluation order: ascending priority,
// ties broken by id so the order never depends on storage order.
func (s *Snapshot) ActiveRules() []model.RoutingRule {
	var out []model.RoutingRule
	for _, r := range s.Rules {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RubricsFor returns a publication's active rubrics ordered by sort order.
func (s *Snapshot) RubricsFor(publicationSlug string) []model.ScoringRubric {
	var out []model.ScoringRubric
	for _, r := range s.Rubrics {
		if r.Active && r.PublicationSlug == publicationSlug {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ThresholdsFor returns the publication's own active thresholds, or the
// active publication-agnostic defaults when it has none.
func (s *Snapshot) ThresholdsFor(publicationSlug string) []model.TierThreshold {
	own := s.thresholds(publicationSlug)
	if len(own) > 0 || publicationSlug == "" {
		return own
	}
	return s.thresholds("")
}

func (s *Snapshot) thresholds(publicationSlug string) []model.TierThreshold {
	var out []model.TierThreshold
	for _, t := range s.Thresholds {
		if t.Active && t.PublicationSlug == publicationSlug {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].MinScore != out[j].MinScore {
			return out[i].MinScore < out[j].MinScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ThresholdForTier returns the threshold a publication uses for tier.
func (s *Snapshot) ThresholdForTier(publicationSlug string, tier model.Tier) (model.TierThreshold, bool) {
	for _, t := range s.ThresholdsFor(publicationSlug) {
		if t.Tier == tier {
			return t, true
		}
	}
	return model.TierThreshold{}, false
}

// SlotsFor returns a publication's active slots ordered by weekday then id.
func (s *Snapshot) SlotsFor(publicationSlug string) []model.CalendarSlot {
	var out []model.CalendarSlot
	for _, sl := range s.Slots {
		if sl.Active && sl.PublicationSlug == publicationSlug {
			out = append(out, sl)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Slot looks up an active slot by id.
func (s *Snapshot) Slot(id string) (model.CalendarSlot, bool) {
	for _, sl := range s.Slots {
		if sl.ID == id && sl.Active {
			return sl, true
		}
	}
	return model.CalendarSlot{}, false
}

// WeeklyCadence is the number of active slots a publication has per week.
func (s *Snapshot) WeeklyCadence(publicationSlug string) int {
	return len(s.SlotsFor(publicationSlug))
}

// ScaleFor returns [min, max] over the criteria levels of the publication's
// active base rubrics, or fallback when none define levels.
func (s *Snapshot) ScaleFor(publicationSlug string, fallback Scale) Scale {
	var (
		sc    Scale
		found bool
	)
	for _, r := range s.RubricsFor(publicationSlug) {
		if r.IsModifier {
			continue
		}
		lo, hi, ok := r.Levels()
		if !ok {
			continue
		}
		if !found || float64(lo) < sc.Min {
			sc.Min = float64(lo)
		}
		if !found || float64(hi) > sc.Max {
			sc.Max = float64(hi)
		}
		found = true
	}
	if !found {
		return fallback
	}
	return sc
}

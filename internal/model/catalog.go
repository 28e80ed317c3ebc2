package model

import (
	"github.com/sells-group/content-router/internal/condition"
)

// Publication is a destination with its own rubrics, thresholds and slots.
type Publication struct {
	ID          string `json:"id" yaml:"id"`
	Slug        string `json:"slug" yaml:"slug"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Active      bool   `json:"active" yaml:"active"`
}

// RoutingRule maps a condition to a publication, audience and action.
// Lower Priority values are evaluated first.
type RoutingRule struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	Priority        int            `json:"priority" yaml:"priority"`
	Condition       condition.Node `json:"condition" yaml:"condition"`
	PublicationSlug string         `json:"publication_slug" yaml:"publication"`
	Audience        string         `json:"audience,omitempty" yaml:"audience"`
	Action          Action         `json:"action" yaml:"action"`
	Active          bool           `json:"active" yaml:"active"`
}

// Criterion is one discrete score level of a rubric.
type Criterion struct {
	Score       int    `json:"score" yaml:"score"`
	Description string `json:"description" yaml:"description"`
	Example     string `json:"example,omitempty" yaml:"example"`
}

// ScoringRubric is a weighted scoring dimension of one publication.
type ScoringRubric struct {
	ID              string      `json:"id" yaml:"id"`
	PublicationSlug string      `json:"publication_slug" yaml:"publication"`
	Name            string      `json:"name" yaml:"name"`
	Weight          float64     `json:"weight" yaml:"weight"`
	Criteria        []Criterion `json:"criteria" yaml:"criteria"`
	IsModifier      bool        `json:"is_modifier" yaml:"is_modifier"`
	BaselineScore   *float64    `json:"baseline_score,omitempty" yaml:"baseline_score"`
	SortOrder       int         `json:"sort_order" yaml:"sort_order"`
	Active          bool        `json:"active" yaml:"active"`
}

// Levels returns the lowest and highest criteria score. ok is false when the
// rubric has no criteria.
func (r ScoringRubric) Levels() (lo, hi int, ok bool) {
	for i, c := range r.Criteria {
		if i == 0 || c.Score < lo {
			lo = c.Score
		}
		if i == 0 || c.Score > hi {
			hi = c.Score
		}
	}
	return lo, hi, len(r.Criteria) > 0
}

// TierThreshold maps a [MinScore, MaxScore) range to a tier. An empty
// PublicationSlug marks a publication-agnostic default.
type TierThreshold struct {
	ID              string   `json:"id" yaml:"id"`
	PublicationSlug string   `json:"publication_slug,omitempty" yaml:"publication"`
	Tier            Tier     `json:"tier" yaml:"tier"`
	DisplayName     string   `json:"display_name" yaml:"display_name"`
	MinScore        float64  `json:"min_score" yaml:"min_score"`
	MaxScore        float64  `json:"max_score" yaml:"max_score"`
	Color           string   `json:"color,omitempty" yaml:"color"`
	Actions         []string `json:"actions,omitempty" yaml:"actions"`
	AutoStagger     bool     `json:"auto_stagger" yaml:"auto_stagger"`
	PreferredDays   []int    `json:"preferred_days,omitempty" yaml:"preferred_days"`
	Active          bool     `json:"active" yaml:"active"`
}

// Span is the width of the threshold's range.
func (t TierThreshold) Span() float64 {
	return t.MaxScore - t.MinScore
}

// PrefersDay reports whether dow is one of the threshold's preferred days.
func (t TierThreshold) PrefersDay(dow int) bool {
	for _, d := range t.PreferredDays {
		if d == dow {
			return true
		}
	}
	return false
}

// CalendarSlot is a recurring weekly publishing opportunity.
type CalendarSlot struct {
	ID              string           `json:"id" yaml:"id"`
	PublicationSlug string           `json:"publication_slug" yaml:"publication"`
	Name            string           `json:"name" yaml:"name"`
	DayOfWeek       int              `json:"day_of_week" yaml:"day_of_week"` // 0=Sunday
	IsFixed         bool             `json:"is_fixed" yaml:"is_fixed"`
	FixedFormat     string           `json:"fixed_format,omitempty" yaml:"fixed_format"`
	PreferredTier   Tier             `json:"preferred_tier,omitempty" yaml:"preferred_tier"`
	SkipRules       []condition.Node `json:"skip_rules,omitempty" yaml:"skip_rules"`
	Active          bool             `json:"active" yaml:"active"`
}

// Skips reports whether any of the slot's skip rules match f.
func (s CalendarSlot) Skips(f condition.Facts) (bool, int) {
	for i, rule := range s.SkipRules {
		if condition.Evaluate(rule.Condition, f) {
			return true, i
		}
	}
	return false, -1
}

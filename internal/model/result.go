package model

import "time"

// RoutingResult is the router's decision for one set of facts.
type RoutingResult struct {
	Matched         bool   `json:"matched"`
	RuleID          string `json:"rule_id,omitempty"`
	RuleName        string `json:"rule_name,omitempty"`
	PublicationSlug string `json:"publication_slug,omitempty"`
	Audience        string `json:"audience,omitempty"`
	Action          Action `json:"action"`
	Reason          string `json:"reason"`
}

// RubricContribution is one rubric's share of a computed score.
type RubricContribution struct {
	RubricID     string  `json:"rubric_id"`
	RubricName   string  `json:"rubric_name"`
	IsModifier   bool    `json:"is_modifier"`
	Score        int     `json:"score"`
	Weight       float64 `json:"weight"`
	Baseline     float64 `json:"baseline,omitempty"` // modifiers only
	Contribution float64 `json:"contribution"`
}

// Tier resolution outcomes recorded on a breakdown.
const (
	ResolutionExact     = "exact"
	ResolutionNarrowest = "narrowest"
	ResolutionFallback  = "fallback"
	ResolutionBelowAll  = "below_all"
)

// ScoreBreakdown explains how a final score and tier were derived.
type ScoreBreakdown struct {
	PublicationSlug string               `json:"publication_slug"`
	Contributions   []RubricContribution `json:"contributions"`
	WeightSum       float64              `json:"weight_sum"`
	BaseScore       float64              `json:"base_score"`
	ModifierTotal   float64              `json:"modifier_total"`
	RawScore        float64              `json:"raw_score"`
	FinalScore      float64              `json:"final_score"`
	ScaleMin        float64              `json:"scale_min"`
	ScaleMax        float64              `json:"scale_max"`
	Clamped         bool                 `json:"clamped"`
	UsedBaseline    bool                 `json:"used_baseline"`
	Tier            Tier                 `json:"tier"`
	ThresholdID     string               `json:"threshold_id,omitempty"`
	Resolution      string               `json:"resolution"`
}

// SlotRecommendation is the best open slot and date for a routing.
type SlotRecommendation struct {
	SlotID          string    `json:"slot_id"`
	SlotName        string    `json:"slot_name"`
	PublicationSlug string    `json:"publication_slug"`
	Date            time.Time `json:"date"`
	DayOfWeek       int       `json:"day_of_week"`
	TierMatch       bool      `json:"tier_match"`
	IsFixed         bool      `json:"is_fixed"`
	PreferredDay    bool      `json:"preferred_day"`
	Reason          string    `json:"reason"`
}

// Alert types and severities.
const (
	AlertLowBuffer     = "low_buffer"
	AlertTimeSensitive = "time_sensitive"

	SeverityYellow = "yellow"
	SeverityRed    = "red"
)

// RoutingAlert is a computed operational alert.
type RoutingAlert struct {
	Type            string     `json:"type"`
	Severity        string     `json:"severity"`
	Message         string     `json:"message"`
	PublicationSlug string     `json:"publication_slug,omitempty"`
	IdeaRoutingID   string     `json:"idea_routing_id,omitempty"`
	NewsWindow      *time.Time `json:"news_window,omitempty"`
	DaysRemaining   *int       `json:"days_remaining,omitempty"`
}

// BufferStatus is a publication's queued runway.
type BufferStatus struct {
	PublicationSlug string       `json:"publication_slug"`
	QueueCount      int          `json:"queue_count"`
	WeeklyCadence   int          `json:"weekly_cadence"`
	WeeksOfBuffer   float64      `json:"weeks_of_buffer"`
	Status          BufferHealth `json:"status"`
}

// Dashboard aggregates routing state across publications.
type Dashboard struct {
	CountsByStatus    map[Status]int `json:"counts_by_status"`
	CountsByTier      map[Tier]int   `json:"counts_by_tier"`
	EvergreenCounts   map[string]int `json:"evergreen_counts"`
	ScheduledThisWeek []IdeaRouting  `json:"scheduled_this_week"`
	Buffers           []BufferStatus `json:"buffers"`
	Alerts            []RoutingAlert `json:"alerts"`
	WeekStart         time.Time      `json:"week_start"`
	GeneratedAt       time.Time      `json:"generated_at"`
}

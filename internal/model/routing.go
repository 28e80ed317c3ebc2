package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the calendar date format accepted and emitted by the engine.
const DateLayout = "2006-01-02"

// IdeaRouting is one routing attempt for a candidate idea.
type IdeaRouting struct {
	ID                string          `json:"id"`
	IdeaID            string          `json:"idea_id"`
	Audience          string          `json:"audience,omitempty"`
	RoutedTo          string          `json:"routed_to,omitempty"` // publication slug
	RuleID            string          `json:"rule_id,omitempty"`
	RecommendedAction Action          `json:"recommended_action,omitempty"`
	Tier              Tier            `json:"tier,omitempty"`
	TimeSensitivity   TimeSensitivity `json:"time_sensitivity,omitempty"`
	NewsWindow        *time.Time      `json:"news_window,omitempty"`
	Facts             Facts           `json:"facts"`

	Score          *float64        `json:"score,omitempty"`
	Breakdown      *ScoreBreakdown `json:"breakdown,omitempty"`
	OverrideScore  *float64        `json:"override_score,omitempty"`
	OverrideReason string          `json:"override_reason,omitempty"`

	CalendarDate *time.Time `json:"calendar_date,omitempty"`
	SlotID       string     `json:"slot_id,omitempty"`

	Status      Status     `json:"status"`
	RoutedAt    *time.Time `json:"routed_at,omitempty"`
	ScoredAt    *time.Time `json:"scored_at,omitempty"`
	SlottedAt   *time.Time `json:"slotted_at,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	KilledAt    *time.Time `json:"killed_at,omitempty"`

	Notes     string    `json:"notes,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// stamp returns the address of the timestamp field for s, or nil for intake.
func (r *IdeaRouting) stamp(s Status) **time.Time {
	switch s {
	case StatusRouted:
		return &r.RoutedAt
	case StatusScored:
		return &r.ScoredAt
	case StatusSlotted:
		return &r.SlottedAt
	case StatusScheduled:
		return &r.ScheduledAt
	case StatusPublished:
		return &r.PublishedAt
	case StatusKilled:
		return &r.KilledAt
	default:
		return nil
	}
}

// StampFor returns the first-entry timestamp for s, or nil if s was never
// reached. Intake reports CreatedAt.
func (r *IdeaRouting) StampFor(s Status) *time.Time {
	if s == StatusIntake {
		if r.CreatedAt.IsZero() {
			return nil
		}
		t := r.CreatedAt
		return &t
	}
	if p := r.stamp(s); p != nil {
		return *p
	}
	return nil
}

// Enter moves the routing into s. The stage timestamp is set only the first
// time s is reached; re-entry leaves it untouched.
func (r *IdeaRouting) Enter(s Status, now time.Time) {
	r.Status = s
	if p := r.stamp(s); p != nil && *p == nil {
		t := now.UTC()
		*p = &t
	}
}

// EffectiveScore is the override score when present, else the computed score.
func (r *IdeaRouting) EffectiveScore() *float64 {
	if r.OverrideScore != nil {
		return r.OverrideScore
	}
	return r.Score
}

// IsOpen reports whether the routing still counts toward a publication's queue.
func (r *IdeaRouting) IsOpen() bool {
	switch r.Status {
	case StatusIntake, StatusRouted, StatusScored, StatusSlotted:
		return true
	}
	return false
}

// CheckInvariants validates the cross-field rules every persisted routing
// must satisfy.
func (r *IdeaRouting) CheckInvariants() error {
	if !r.Status.Valid() {
		return eris.Errorf("model: routing %s has unknown status %q", r.ID, r.Status)
	}
	if r.CalendarDate != nil && r.Status != StatusScheduled && r.Status != StatusPublished {
		return eris.Errorf("model: routing %s has a calendar date in status %s", r.ID, r.Status)
	}
	if r.Tier == TierKill && r.Status != StatusKilled && r.OverrideScore == nil {
		return eris.Errorf("model: routing %s has tier kill without kill or override", r.ID)
	}
	if r.OverrideScore != nil && r.OverrideReason == "" {
		return eris.Errorf("model: routing %s has an override score without a reason", r.ID)
	}
	return nil
}

// StatusChange is one row of the append-only status ledger.
type StatusChange struct {
	ID            string         `json:"id"`
	IdeaRoutingID string         `json:"idea_routing_id"`
	FromStatus    Status         `json:"from_status"` // empty for the creation row
	ToStatus      Status         `json:"to_status"`
	Kind          ChangeKind     `json:"kind"`
	ChangedBy     string         `json:"changed_by"`
	Reason        string         `json:"reason,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// EvergreenEntry is a routing waiting in a publication's evergreen backlog.
type EvergreenEntry struct {
	ID              string    `json:"id"`
	PublicationSlug string    `json:"publication_slug"`
	IdeaRoutingID   string    `json:"idea_routing_id"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
}

// ParseDate parses a YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: parse date %q", s)
	}
	return t, nil
}

// Day truncates t to UTC midnight of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a nullable date, returning "" for nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

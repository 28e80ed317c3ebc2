package model

// Status is the lifecycle state of an idea routing.
type Status string

const (
	StatusIntake    Status = "intake"
	StatusRouted    Status = "routed"
	StatusScored    Status = "scored"
	StatusSlotted   Status = "slotted"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
	StatusKilled    Status = "killed"
)

// AllStatuses lists every status in lifecycle order, killed last.
var AllStatuses = []Status{
	StatusIntake,
	StatusRouted,
	StatusScored,
	StatusSlotted,
	StatusScheduled,
	StatusPublished,
	StatusKilled,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusKilled
}

// transitions lists the forward moves allowed out of each non-terminal status.
// Killing is allowed from every non-terminal status and is handled separately.
var transitions = map[Status][]Status{
	StatusIntake:    {StatusRouted},
	StatusRouted:    {StatusScored},
	StatusScored:    {StatusScored, StatusSlotted, StatusScheduled},
	StatusSlotted:   {StatusSlotted, StatusScheduled},
	StatusScheduled: {StatusPublished},
}

// CanTransition reports whether a routing may move from one status to another.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() || !from.Valid() || !to.Valid() {
		return false
	}
	if to == StatusKilled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ChangeKind describes how a status change came about.
type ChangeKind string

const (
	ChangeAuto     ChangeKind = "auto"     // engine-driven: routing, scoring, scheduling
	ChangeOverride ChangeKind = "override" // editor score override
	ChangeManual   ChangeKind = "manual"   // manual route, kill, evergreen, publish
)

// Tier is a priority band derived from a final score.
type Tier string

const (
	TierPremiumA Tier = "premium_a"
	TierA        Tier = "a"
	TierB        Tier = "b"
	TierC        Tier = "c"
	TierKill     Tier = "kill"
)

// AllTiers lists every tier from best to worst.
var AllTiers = []Tier{TierPremiumA, TierA, TierB, TierC, TierKill}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	for _, known := range AllTiers {
		if t == known {
			return true
		}
	}
	return false
}

// TimeSensitivity is how quickly an idea loses value.
type TimeSensitivity string

const (
	SensitivityEvergreen TimeSensitivity = "evergreen"
	SensitivitySeasonal  TimeSensitivity = "seasonal"
	SensitivityNewsHook  TimeSensitivity = "news_hook"
)

// Valid reports whether ts is a known sensitivity. Empty is allowed.
func (ts TimeSensitivity) Valid() bool {
	switch ts {
	case "", SensitivityEvergreen, SensitivitySeasonal, SensitivityNewsHook:
		return true
	}
	return false
}

// Action is the recommended next step attached by a routing rule.
type Action string

const (
	ActionScore        Action = "score"
	ActionFastTrack    Action = "fast_track"
	ActionEvergreen    Action = "evergreen"
	ActionManualReview Action = "manual_review"
	ActionKill         Action = "kill"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionScore, ActionFastTrack, ActionEvergreen, ActionManualReview, ActionKill:
		return true
	}
	return false
}

// BufferHealth classifies how many weeks of queued content a publication has.
type BufferHealth string

const (
	BufferGreen  BufferHealth = "green"
	BufferYellow BufferHealth = "yellow"
	BufferRed    BufferHealth = "red"
)

package catalog

import (
	"fmt"
	"strings"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/model"
)

// Severity grades a catalog issue. Errors make an operation impossible or
// force a fallback on every call; warnings degrade gracefully.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one catalog misconfiguration.
type Issue struct {
	Severity    Severity `json:"severity"`
	Entity      string   `json:"entity"` // publication, rule, rubric, threshold, slot
	ID          string   `json:"id,omitempty"`
	Publication string   `json:"publication,omitempty"`
	Message     string   `json:"message"`
}

func (i Issue) String() string {
	var b strings.Builder
	b.WriteString(string(i.Severity))
	b.WriteString(": ")
	b.WriteString(i.Entity)
	if i.ID != "" {
		b.WriteString(" " + i.ID)
	}
	if i.Publication != "" {
		b.WriteString(" (" + i.Publication + ")")
	}
	b.WriteString(": " + i.Message)
	return b.String()
}

// Issues is the result of Validate.
type Issues []Issue

// Errors returns only error-severity issues.
func (is Issues) Errors() Issues {
	var out Issues
	for _, i := range is {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

// Err returns a configuration error summarizing error-severity issues, or nil.
func (is Issues) Err() error {
	errs := is.Errors()
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.String()
	}
	return apperr.Configuration("catalog.validate", "%d catalog error(s): %s", len(errs), strings.Join(msgs, "; "))
}

type validator struct {
	snap   *Snapshot
	pubs   map[string]bool
	issues Issues
}

func (v *validator) add(sev Severity, entity, id, pub, format string, args ...any) {
	v.issues = append(v.issues, Issue{
		Severity:    sev,
		Entity:      entity,
		ID:          id,
		Publication: pub,
		Message:     fmt.Sprintf(format, args...),
	})
}

// Validate reports misconfigurations in snap: dangling publication
// references, unusable rubric sets, threshold gaps and overlaps, and slot
// definitions outside the week. fallback is the scale used for publications
// whose rubrics define no criteria levels.
func Validate(snap *Snapshot, fallback Scale) Issues {
	v := &validator{snap: snap, pubs: make(map[string]bool)}

	for _, p := range snap.Publications {
		switch {
		case p.Slug == "":
			v.add(SeverityError, "publication", p.ID, "", "slug is required")
		case v.pubs[p.Slug]:
			v.add(SeverityError, "publication", p.ID, p.Slug, "duplicate slug")
		}
		if p.Active {
			v.pubs[p.Slug] = true
		}
	}

	v.rules()
	v.rubrics()
	v.thresholds(fallback)
	v.slots()
	return v.issues
}

func (v *validator) rules() {
	ids := make(map[string]bool)
	priorities := make(map[int]string)
	for _, r := range v.snap.Rules {
		if ids[r.ID] {
			v.add(SeverityError, "rule", r.ID, r.PublicationSlug, "duplicate id")
		}
		ids[r.ID] = true
		if !r.Active {
			continue
		}
		if !r.Action.Valid() {
			v.add(SeverityError, "rule", r.ID, r.PublicationSlug, "unknown action %q", r.Action)
		}
		if r.PublicationSlug != "" && !v.pubs[r.PublicationSlug] {
			v.add(SeverityError, "rule", r.ID, r.PublicationSlug, "routes to unknown or inactive publication")
		}
		if r.PublicationSlug == "" && r.Action != model.ActionManualReview && r.Action != model.ActionKill {
			v.add(SeverityError, "rule", r.ID, "", "action %s requires a publication", r.Action)
		}
		switch {
		case r.Condition.Invalid():
			v.add(SeverityError, "rule", r.ID, r.PublicationSlug, "condition is invalid and never matches: %v", r.Condition.Err)
		case r.Condition.Condition == nil:
			v.add(SeverityWarning, "rule", r.ID, r.PublicationSlug, "has no condition and never matches")
		}
		if other, ok := priorities[r.Priority]; ok {
			v.add(SeverityWarning, "rule", r.ID, r.PublicationSlug, "shares priority %d with rule %s; order falls back to id", r.Priority, other)
		} else {
			priorities[r.Priority] = r.ID
		}
	}
}

func (v *validator) rubrics() {
	for _, r := range v.snap.Rubrics {
		if !r.Active {
			continue
		}
		if !v.pubs[r.PublicationSlug] {
			v.add(SeverityError, "rubric", r.ID, r.PublicationSlug, "belongs to unknown or inactive publication")
		}
		if r.Weight < 0 {
			v.add(SeverityError, "rubric", r.ID, r.PublicationSlug, "weight %.2f is negative", r.Weight)
		}
		if len(r.Criteria) == 0 {
			v.add(SeverityWarning, "rubric", r.ID, r.PublicationSlug, "defines no criteria levels")
		}
	}

	for _, p := range v.snap.ActivePublications() {
		var (
			base      int
			weightSum float64
			baseline  *float64
		)
		for _, r := range v.snap.RubricsFor(p.Slug) {
			if r.IsModifier {
				continue
			}
			if base == 0 {
				baseline = r.BaselineScore
			}
			base++
			weightSum += r.Weight
		}
		switch {
		case base == 0:
			v.add(SeverityError, "publication", p.ID, p.Slug, "has no active base rubrics; ideas cannot be scored")
		case weightSum == 0 && baseline == nil:
			v.add(SeverityError, "publication", p.ID, p.Slug, "base rubric weights sum to zero and no baseline score is set")
		case weightSum == 0:
			v.add(SeverityWarning, "publication", p.ID, p.Slug, "base rubric weights sum to zero; baseline score %.2f is used", *baseline)
		}
	}
}

func (v *validator) thresholds(fallback Scale) {
	groups := make(map[string]bool)
	for _, t := range v.snap.Thresholds {
		if !t.Active {
			continue
		}
		if !t.Tier.Valid() {
			v.add(SeverityError, "threshold", t.ID, t.PublicationSlug, "unknown tier %q", t.Tier)
		}
		if t.MinScore >= t.MaxScore {
			v.add(SeverityError, "threshold", t.ID, t.PublicationSlug, "min_score %.2f is not below max_score %.2f", t.MinScore, t.MaxScore)
		}
		if t.PublicationSlug != "" && !v.pubs[t.PublicationSlug] {
			v.add(SeverityError, "threshold", t.ID, t.PublicationSlug, "belongs to unknown or inactive publication")
		}
		groups[t.PublicationSlug] = true
	}

	if groups[""] {
		v.coverage("", fallback)
	}
	for _, p := range v.snap.ActivePublications() {
		switch {
		case groups[p.Slug]:
			v.coverage(p.Slug, v.snap.ScaleFor(p.Slug, fallback))
		case !groups[""]:
			v.add(SeverityError, "publication", p.ID, p.Slug, "has no tier thresholds and no defaults exist; every score resolves to kill")
		}
	}
}

// coverage reports gaps and overlaps of one threshold group over scale.
func (v *validator) coverage(pub string, scale Scale) {
	if scale.Max <= scale.Min {
		return
	}
	ts := v.snap.thresholds(pub)
	if len(ts) == 0 {
		return
	}

	if ts[0].MinScore > scale.Min {
		v.add(SeverityWarning, "threshold", ts[0].ID, pub, "gap [%.2f, %.2f) below the lowest threshold", scale.Min, ts[0].MinScore)
	}
	reach := ts[0].MaxScore
	for i := 1; i < len(ts); i++ {
		t := ts[i]
		switch {
		case t.MinScore > reach:
			v.add(SeverityWarning, "threshold", t.ID, pub, "gap [%.2f, %.2f) before tier %s", reach, t.MinScore, t.Tier)
		case t.MinScore < reach:
			v.add(SeverityWarning, "threshold", t.ID, pub, "tier %s overlaps [%.2f, %.2f); the narrowest range wins", t.Tier, t.MinScore, reach)
		}
		if t.MaxScore > reach {
			reach = t.MaxScore
		}
	}
	if reach < scale.Max {
		v.add(SeverityWarning, "threshold", ts[len(ts)-1].ID, pub, "gap [%.2f, %.2f] above the highest threshold", reach, scale.Max)
	}
}

func (v *validator) slots() {
	cadence := make(map[string]int)
	for _, s := range v.snap.Slots {
		if !s.Active {
			continue
		}
		if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
			v.add(SeverityError, "slot", s.ID, s.PublicationSlug, "day_of_week %d is outside 0-6", s.DayOfWeek)
		}
		if !v.pubs[s.PublicationSlug] {
			v.add(SeverityError, "slot", s.ID, s.PublicationSlug, "belongs to unknown or inactive publication")
		}
		if s.PreferredTier != "" && !s.PreferredTier.Valid() {
			v.add(SeverityError, "slot", s.ID, s.PublicationSlug, "unknown preferred tier %q", s.PreferredTier)
		}
		if s.IsFixed && s.FixedFormat == "" {
			v.add(SeverityWarning, "slot", s.ID, s.PublicationSlug, "is fixed but has no fixed_format; no idea can take it")
		}
		for i, rule := range s.SkipRules {
			switch {
			case rule.Invalid():
				v.add(SeverityError, "slot", s.ID, s.PublicationSlug, "skip rule %d is invalid and never matches: %v", i, rule.Err)
			case rule.Condition == nil:
				v.add(SeverityWarning, "slot", s.ID, s.PublicationSlug, "skip rule %d is empty", i)
			}
		}
		cadence[s.PublicationSlug]++
	}

	for _, p := range v.snap.ActivePublications() {
		if cadence[p.Slug] == 0 {
			v.add(SeverityWarning, "publication", p.ID, p.Slug, "has no active calendar slots; weekly cadence is 0")
		}
	}
}

package model

import (
	"strings"

	"github.com/sells-group/content-router/internal/condition"
)

// FactsSchemaVersion is bumped whenever a field is added to or removed from Facts.
const FactsSchemaVersion = 1

// Fact field names addressable from conditions.
const (
	FieldResource        = "resource"
	FieldEstimatedLength = "estimated_length"
	FieldTimeSensitivity = "time_sensitivity"
	FieldNewsWindow      = "news_window"
	FieldContrarianAngle = "contrarian_angle"
	FieldFormat          = "format"
	FieldAudiences       = "audiences"
	FieldTags            = "tags"
	FieldPillar          = "pillar"
	FieldSource          = "source"
	FieldTier            = "tier"
)

// FactFields lists every field Lookup understands.
var FactFields = []string{
	FieldResource,
	FieldEstimatedLength,
	FieldTimeSensitivity,
	FieldNewsWindow,
	FieldContrarianAngle,
	FieldFormat,
	FieldAudiences,
	FieldTags,
	FieldPillar,
	FieldSource,
	FieldTier,
}

// Facts are the typed signals an idea is routed and slotted on.
type Facts struct {
	SchemaVersion   int             `json:"schema_version" yaml:"schema_version"`
	Resource        string          `json:"resource,omitempty" yaml:"resource"`
	EstimatedLength string          `json:"estimated_length,omitempty" yaml:"estimated_length"`
	TimeSensitivity TimeSensitivity `json:"time_sensitivity,omitempty" yaml:"time_sensitivity"`
	NewsWindow      string          `json:"news_window,omitempty" yaml:"news_window"` // YYYY-MM-DD
	ContrarianAngle bool            `json:"contrarian_angle" yaml:"contrarian_angle"`
	Format          string          `json:"format,omitempty" yaml:"format"`
	Audiences       []string        `json:"audiences,omitempty" yaml:"audiences"`
	Tags            []string        `json:"tags,omitempty" yaml:"tags"`
	Pillar          string          `json:"pillar,omitempty" yaml:"pillar"`
	Source          string          `json:"source,omitempty" yaml:"source"`

	// Tier is filled from the routing when skip rules are evaluated.
	Tier Tier `json:"-" yaml:"-"`
}

// Lookup implements condition.Facts. Empty strings and empty lists are
// reported as absent; booleans are always present.
func (f Facts) Lookup(field string) (condition.Value, bool) {
	switch strings.ToLower(field) {
	case FieldResource:
		return str(f.Resource)
	case FieldEstimatedLength:
		return str(f.EstimatedLength)
	case FieldTimeSensitivity:
		return str(string(f.TimeSensitivity))
	case FieldNewsWindow:
		return str(f.NewsWindow)
	case FieldContrarianAngle:
		return condition.Bool(f.ContrarianAngle), true
	case FieldFormat:
		return str(f.Format)
	case FieldAudiences:
		return list(f.Audiences)
	case FieldTags:
		return list(f.Tags)
	case FieldPillar:
		return str(f.Pillar)
	case FieldSource:
		return str(f.Source)
	case FieldTier:
		return str(string(f.Tier))
	default:
		return condition.Value{}, false
	}
}

func str(s string) (condition.Value, bool) {
	if strings.TrimSpace(s) == "" {
		return condition.Value{}, false
	}
	return condition.String(s), true
}

func list(l []string) (condition.Value, bool) {
	if len(l) == 0 {
		return condition.Value{}, false
	}
	return condition.List(l), true
}

// Normalize stamps the schema version and trims whitespace from string fields.
func (f Facts) Normalize() Facts {
	f.SchemaVersion = FactsSchemaVersion
	f.Resource = strings.TrimSpace(f.Resource)
	f.EstimatedLength = strings.TrimSpace(f.EstimatedLength)
	f.NewsWindow = strings.TrimSpace(f.NewsWindow)
	f.Format = strings.TrimSpace(f.Format)
	f.Pillar = strings.TrimSpace(f.Pillar)
	f.Source = strings.TrimSpace(f.Source)
	f.Audiences = trimAll(f.Audiences)
	f.Tags = trimAll(f.Tags)
	return f
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// WithRouting returns a copy of f carrying the routing's tier and
// sensitivity, for slot skip rules.
func (f Facts) WithRouting(r *IdeaRouting) Facts {
	f.Tier = r.Tier
	if r.TimeSensitivity != "" {
		f.TimeSensitivity = r.TimeSensitivity
	}
	return f
}

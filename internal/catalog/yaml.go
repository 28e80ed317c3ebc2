package catalog

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/content-router/internal/model"
)

// YAMLLoader reads the catalog from a single YAML document:
//
//	publications: [...]
//	rules: [...]
//	rubrics: [...]
//	thresholds: [...]
//	slots: [...]
//
// Entries omitting "active" are active.
type YAMLLoader struct {
	Path string
}

// NewYAMLLoader creates a loader for the file at path.
func NewYAMLLoader(path string) *YAMLLoader {
	return &YAMLLoader{Path: path}
}

type yamlDocument struct {
	Publications []yaml.Node `yaml:"publications"`
	Rules        []yaml.Node `yaml:"rules"`
	Rubrics      []yaml.Node `yaml:"rubrics"`
	Thresholds   []yaml.Node `yaml:"thresholds"`
	Slots        []yaml.Node `yaml:"slots"`
}

// Load implements Loader.
func (l *YAMLLoader) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", l.Path)
	}
	snap, err := ParseYAML(data)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", l.Path)
	}
	return snap, nil
}

// ParseYAML decodes a catalog document.
func ParseYAML(data []byte) (*Snapshot, error) {
	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "catalog: decode yaml")
	}

	snap := &Snapshot{LoadedAt: time.Now().UTC()}
	var err error
	if snap.Publications, err = decodeAll(doc.Publications, func(p *model.Publication) { p.Active = true }); err != nil {
		return nil, eris.Wrap(err, "catalog: publications")
	}
	if snap.Rules, err = decodeAll(doc.Rules, func(r *model.RoutingRule) { r.Active = true; r.Action = model.ActionScore }); err != nil {
		return nil, eris.Wrap(err, "catalog: rules")
	}
	if snap.Rubrics, err = decodeAll(doc.Rubrics, func(r *model.ScoringRubric) { r.Active = true; r.Weight = 1 }); err != nil {
		return nil, eris.Wrap(err, "catalog: rubrics")
	}
	if snap.Thresholds, err = decodeAll(doc.Thresholds, func(t *model.TierThreshold) { t.Active = true }); err != nil {
		return nil, eris.Wrap(err, "catalog: thresholds")
	}
	if snap.Slots, err = decodeAll(doc.Slots, func(s *model.CalendarSlot) { s.Active = true }); err != nil {
		return nil, eris.Wrap(err, "catalog: slots")
	}
	return snap, nil
}

// decodeAll decodes each node into a T pre-populated by defaults, so keys the
// document omits keep their default value.
func decodeAll[T any](nodes []yaml.Node, defaults func(*T)) ([]T, error) {
	out := make([]T, 0, len(nodes))
	for i := range nodes {
		var v T
		defaults(&v)
		if err := nodes[i].Decode(&v); err != nil {
			return nil, eris.Wrapf(err, "entry %d (line %d)", i, nodes[i].Line)
		}
		out = append(out, v)
	}
	return out, nil
}


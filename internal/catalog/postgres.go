package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/db"
	"github.com/sells-group/content-router/internal/model"
)

// PostgresLoader reads the catalog tables created by the store migrations.
type PostgresLoader struct {
	pool db.Pool
}

// NewPostgresLoader creates a loader over pool.
func NewPostgresLoader(pool db.Pool) *PostgresLoader {
	return &PostgresLoader{pool: pool}
}

const (
	sqlPublications = `SELECT id, slug, name, description, active FROM publications ORDER BY slug`
	sqlRules        = `SELECT id, name, priority, condition, publication_slug, audience, action, active FROM routing_rules ORDER BY priority, id`
	sqlRubrics      = `SELECT id, publication_slug, name, weight, criteria, is_modifier, baseline_score, sort_order, active FROM scoring_rubrics ORDER BY publication_slug, sort_order, id`
	sqlThresholds   = `SELECT id, publication_slug, tier, display_name, min_score, max_score, color, actions, auto_stagger, preferred_days, active FROM tier_thresholds ORDER BY publication_slug, min_score, id`
	sqlSlots        = `SELECT id, publication_slug, name, day_of_week, is_fixed, fixed_format, preferred_tier, skip_rules, active FROM calendar_slots ORDER BY publication_slug, day_of_week, id`
)

// Load implements Loader.
func (l *PostgresLoader) Load(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{LoadedAt: time.Now().UTC()}

	var err error
	if snap.Publications, err = queryAll(ctx, l.pool, sqlPublications, scanPublication); err != nil {
		return nil, eris.Wrap(err, "catalog: load publications")
	}
	if snap.Rules, err = queryAll(ctx, l.pool, sqlRules, scanRule); err != nil {
		return nil, eris.Wrap(err, "catalog: load rules")
	}
	if snap.Rubrics, err = queryAll(ctx, l.pool, sqlRubrics, scanRubric); err != nil {
		return nil, eris.Wrap(err, "catalog: load rubrics")
	}
	if snap.Thresholds, err = queryAll(ctx, l.pool, sqlThresholds, scanThreshold); err != nil {
		return nil, eris.Wrap(err, "catalog: load thresholds")
	}
	if snap.Slots, err = queryAll(ctx, l.pool, sqlSlots, scanSlot); err != nil {
		return nil, eris.Wrap(err, "catalog: load slots")
	}

	zap.L().Debug("catalog: loaded from postgres",
		zap.Int("publications", len(snap.Publications)),
		zap.Int("rules", len(snap.Rules)),
		zap.Int("rubrics", len(snap.Rubrics)),
		zap.Int("thresholds", len(snap.Thresholds)),
		zap.Int("slots", len(snap.Slots)),
	)
	return snap, nil
}

func queryAll[T any](ctx context.Context, pool db.Pool, sql string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanPublication(rows pgx.Rows) (model.Publication, error) {
	var p model.Publication
	err := rows.Scan(&p.ID, &p.Slug, &p.Name, &p.Description, &p.Active)
	return p, eris.Wrap(err, "scan publication")
}

func scanRule(rows pgx.Rows) (model.RoutingRule, error) {
	var (
		r      model.RoutingRule
		cond   []byte
		action string
	)
	if err := rows.Scan(&r.ID, &r.Name, &r.Priority, &cond, &r.PublicationSlug, &r.Audience, &action, &r.Active); err != nil {
		return r, eris.Wrap(err, "scan rule")
	}
	r.Action = model.Action(action)
	if err := json.Unmarshal(cond, &r.Condition); err != nil {
		return r, eris.Wrapf(err, "rule %s condition", r.ID)
	}
	return r, nil
}

func scanRubric(rows pgx.Rows) (model.ScoringRubric, error) {
	var (
		r        model.ScoringRubric
		criteria []byte
	)
	if err := rows.Scan(&r.ID, &r.PublicationSlug, &r.Name, &r.Weight, &criteria, &r.IsModifier, &r.BaselineScore, &r.SortOrder, &r.Active); err != nil {
		return r, eris.Wrap(err, "scan rubric")
	}
	if err := json.Unmarshal(criteria, &r.Criteria); err != nil {
		return r, eris.Wrapf(err, "rubric %s criteria", r.ID)
	}
	return r, nil
}

func scanThreshold(rows pgx.Rows) (model.TierThreshold, error) {
	var (
		t             model.TierThreshold
		tier          string
		actions, days []byte
	)
	if err := rows.Scan(&t.ID, &t.PublicationSlug, &tier, &t.DisplayName, &t.MinScore, &t.MaxScore, &t.Color, &actions, &t.AutoStagger, &days, &t.Active); err != nil {
		return t, eris.Wrap(err, "scan threshold")
	}
	t.Tier = model.Tier(tier)
	if err := json.Unmarshal(actions, &t.Actions); err != nil {
		return t, eris.Wrapf(err, "threshold %s actions", t.ID)
	}
	if err := json.Unmarshal(days, &t.PreferredDays); err != nil {
		return t, eris.Wrapf(err, "threshold %s preferred days", t.ID)
	}
	return t, nil
}

func scanSlot(rows pgx.Rows) (model.CalendarSlot, error) {
	var (
		s         model.CalendarSlot
		tier      string
		skipRules []byte
	)
	if err := rows.Scan(&s.ID, &s.PublicationSlug, &s.Name, &s.DayOfWeek, &s.IsFixed, &s.FixedFormat, &tier, &skipRules, &s.Active); err != nil {
		return s, eris.Wrap(err, "scan slot")
	}
	s.PreferredTier = model.Tier(tier)
	if err := json.Unmarshal(skipRules, &s.SkipRules); err != nil {
		return s, eris.Wrapf(err, "slot %s skip rules", s.ID)
	}
	return s, nil
}

// PushResult counts rows written per table by Push.
type PushResult struct {
	Publications int64 `json:"publications"`
	Rules        int64 `json:"rules"`
	Rubrics      int64 `json:"rubrics"`
	Thresholds   int64 `json:"thresholds"`
	Slots        int64 `json:"slots"`
}

// Push upserts every entry of snap into the catalog tables in one
// transaction. Rows absent from snap are left untouched; deactivate them
// with active: false instead.
func Push(ctx context.Context, pool db.Pool, snap *Snapshot) (*PushResult, error) {
	pubRows := make([][]any, 0, len(snap.Publications))
	for _, p := range snap.Publications {
		pubRows = append(pubRows, []any{p.ID, p.Slug, p.Name, p.Description, p.Active})
	}

	ruleRows := make([][]any, 0, len(snap.Rules))
	for _, r := range snap.Rules {
		cond, err := json.Marshal(r.Condition)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: encode rule %s", r.ID)
		}
		ruleRows = append(ruleRows, []any{r.ID, r.Name, r.Priority, string(cond), r.PublicationSlug, r.Audience, string(r.Action), r.Active})
	}

	rubricRows := make([][]any, 0, len(snap.Rubrics))
	for _, r := range snap.Rubrics {
		criteria, err := jsonArray(r.Criteria)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: encode rubric %s", r.ID)
		}
		rubricRows = append(rubricRows, []any{r.ID, r.PublicationSlug, r.Name, r.Weight, criteria, r.IsModifier, r.BaselineScore, r.SortOrder, r.Active})
	}

	thresholdRows := make([][]any, 0, len(snap.Thresholds))
	for _, t := range snap.Thresholds {
		actions, err := jsonArray(t.Actions)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: encode threshold %s", t.ID)
		}
		days, err := jsonArray(t.PreferredDays)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: encode threshold %s", t.ID)
		}
		thresholdRows = append(thresholdRows, []any{t.ID, t.PublicationSlug, string(t.Tier), t.DisplayName, t.MinScore, t.MaxScore, t.Color, actions, t.AutoStagger, days, t.Active})
	}

	slotRows := make([][]any, 0, len(snap.Slots))
	for _, s := range snap.Slots {
		skip, err := jsonArray(s.SkipRules)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: encode slot %s", s.ID)
		}
		slotRows = append(slotRows, []any{s.ID, s.PublicationSlug, s.Name, s.DayOfWeek, s.IsFixed, s.FixedFormat, string(s.PreferredTier), skip, s.Active})
	}

	res := &PushResult{}
	tables := []struct {
		cfg  db.UpsertConfig
		rows [][]any
		n    *int64
	}{
		{db.UpsertConfig{Table: "publications", Columns: []string{"id", "slug", "name", "description", "active"}, ConflictKeys: []string{"id"}}, pubRows, &res.Publications},
		{db.UpsertConfig{Table: "routing_rules", Columns: []string{"id", "name", "priority", "condition", "publication_slug", "audience", "action", "active"}, ConflictKeys: []string{"id"}}, ruleRows, &res.Rules},
		{db.UpsertConfig{Table: "scoring_rubrics", Columns: []string{"id", "publication_slug", "name", "weight", "criteria", "is_modifier", "baseline_score", "sort_order", "active"}, ConflictKeys: []string{"id"}}, rubricRows, &res.Rubrics},
		{db.UpsertConfig{Table: "tier_thresholds", Columns: []string{"id", "publication_slug", "tier", "display_name", "min_score", "max_score", "color", "actions", "auto_stagger", "preferred_days", "active"}, ConflictKeys: []string{"id"}}, thresholdRows, &res.Thresholds},
		{db.UpsertConfig{Table: "calendar_slots", Columns: []string{"id", "publication_slug", "name", "day_of_week", "is_fixed", "fixed_format", "preferred_tier", "skip_rules", "active"}, ConflictKeys: []string{"id"}}, slotRows, &res.Slots},
	}

	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for _, t := range tables {
			n, err := db.UpsertTx(ctx, tx, t.cfg, t.rows)
			if err != nil {
				return err
			}
			*t.n = n
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "catalog: push")
	}
	return res, nil
}

// jsonArray encodes v as a JSON array, rendering nil slices as [].
func jsonArray[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

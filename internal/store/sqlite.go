package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/content-router/internal/model"
)

// sqliteTimeLayout is fixed width so TEXT ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if dsn == ":memory:" {
		// Each connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS idea_routings (
	id                 TEXT PRIMARY KEY,
	idea_id            TEXT NOT NULL,
	audience           TEXT NOT NULL DEFAULT '',
	routed_to          TEXT NOT NULL DEFAULT '',
	rule_id            TEXT NOT NULL DEFAULT '',
	recommended_action TEXT NOT NULL DEFAULT '',
	tier               TEXT NOT NULL DEFAULT '',
	time_sensitivity   TEXT NOT NULL DEFAULT '',
	news_window        TEXT,
	facts              TEXT NOT NULL DEFAULT '{}',
	score              REAL,
	breakdown          TEXT,
	override_score     REAL,
	override_reason    TEXT NOT NULL DEFAULT '',
	calendar_date      TEXT,
	slot_id            TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'intake',
	routed_at          TEXT,
	scored_at          TEXT,
	slotted_at         TEXT,
	scheduled_at       TEXT,
	published_at       TEXT,
	killed_at          TEXT,
	notes              TEXT NOT NULL DEFAULT '',
	version            INTEGER NOT NULL DEFAULT 1,
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_idea_routings_idea_id ON idea_routings(idea_id);
CREATE INDEX IF NOT EXISTS idx_idea_routings_status ON idea_routings(status);
CREATE INDEX IF NOT EXISTS idx_idea_routings_routed_to ON idea_routings(routed_to, status);
CREATE UNIQUE INDEX IF NOT EXISTS uq_idea_routings_booked_date
	ON idea_routings(routed_to, calendar_date)
	WHERE status IN ('scheduled', 'published');

CREATE TABLE IF NOT EXISTS status_changes (
	id              TEXT PRIMARY KEY,
	idea_routing_id TEXT NOT NULL REFERENCES idea_routings(id),
	from_status     TEXT NOT NULL DEFAULT '',
	to_status       TEXT NOT NULL,
	kind            TEXT NOT NULL,
	changed_by      TEXT NOT NULL DEFAULT '',
	reason          TEXT NOT NULL DEFAULT '',
	metadata        TEXT,
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_changes_routing ON status_changes(idea_routing_id, created_at);

CREATE TABLE IF NOT EXISTS evergreen_queue (
	id               TEXT PRIMARY KEY,
	publication_slug TEXT NOT NULL,
	idea_routing_id  TEXT NOT NULL REFERENCES idea_routings(id),
	enqueued_at      TEXT NOT NULL,
	UNIQUE (publication_slug, idea_routing_id)
);

CREATE INDEX IF NOT EXISTS idx_evergreen_queue_pub ON evergreen_queue(publication_slug, enqueued_at);
`

const routingColumns = `id, idea_id, audience, routed_to, rule_id, recommended_action, tier,
	time_sensitivity, news_window, facts, score, breakdown, override_score, override_reason,
	calendar_date, slot_id, status, routed_at, scored_at, slotted_at, scheduled_at,
	published_at, killed_at, notes, version, created_at, updated_at`

// sqlExecutor is satisfied by *sql.DB and *sql.Tx.
type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRouting(ctx context.Context, r *model.IdeaRouting) error {
	return insertRoutingSQLite(ctx, s.db, r)
}

func (s *SQLiteStore) GetRouting(ctx context.Context, id string) (*model.IdeaRouting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+routingColumns+` FROM idea_routings WHERE id = ?`, id)
	r, err := scanRoutingSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("store.get_routing", id)
	}
	return r, err
}

func (s *SQLiteStore) UpdateRouting(ctx context.Context, r *model.IdeaRouting, expectedVersion int) error {
	return updateRoutingSQLite(ctx, s.db, r, expectedVersion)
}

func (s *SQLiteStore) CreateWithChange(ctx context.Context, r *model.IdeaRouting, c *model.StatusChange) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertRoutingSQLite(ctx, tx, r); err != nil {
			return err
		}
		c.IdeaRoutingID = r.ID
		return insertChangeSQLite(ctx, tx, c)
	})
}

func (s *SQLiteStore) UpdateWithChange(ctx context.Context, r *model.IdeaRouting, expectedVersion int, c *model.StatusChange) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := updateRoutingSQLite(ctx, tx, r, expectedVersion); err != nil {
			return err
		}
		return insertChangeSQLite(ctx, tx, c)
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func insertRoutingSQLite(ctx context.Context, ex sqlExecutor, r *model.IdeaRouting) error {
	prepareCreate(r)
	args, err := routingArgsSQLite(r)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO idea_routings (`+routingColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...,
	)
	if err != nil {
		if isSQLiteBookedDate(err) {
			return dateTaken("store.create_routing", r)
		}
		return eris.Wrap(err, "sqlite: insert routing")
	}
	return nil
}

func updateRoutingSQLite(ctx context.Context, ex sqlExecutor, r *model.IdeaRouting, expectedVersion int) error {
	const op = "store.update_routing"

	updatedAt := time.Now().UTC()
	next := *r
	next.Version = expectedVersion + 1
	next.UpdatedAt = updatedAt

	facts, breakdown, err := encodeRoutingJSON(&next)
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx,
		`UPDATE idea_routings SET
			audience = ?, routed_to = ?, rule_id = ?, recommended_action = ?, tier = ?,
			time_sensitivity = ?, news_window = ?, facts = ?, score = ?, breakdown = ?,
			override_score = ?, override_reason = ?, calendar_date = ?, slot_id = ?, status = ?,
			routed_at = ?, scored_at = ?, slotted_at = ?, scheduled_at = ?, published_at = ?,
			killed_at = ?, notes = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		next.Audience, next.RoutedTo, next.RuleID, string(next.RecommendedAction), string(next.Tier),
		string(next.TimeSensitivity), sqliteDate(next.NewsWindow), facts, next.Score, breakdown,
		next.OverrideScore, next.OverrideReason, sqliteDate(next.CalendarDate), next.SlotID, string(next.Status),
		sqliteTime(next.RoutedAt), sqliteTime(next.ScoredAt), sqliteTime(next.SlottedAt), sqliteTime(next.ScheduledAt), sqliteTime(next.PublishedAt),
		sqliteTime(next.KilledAt), next.Notes, next.Version, updatedAt.Format(sqliteTimeLayout),
		next.ID, expectedVersion,
	)
	if err != nil {
		if isSQLiteBookedDate(err) {
			return dateTaken(op, r)
		}
		return eris.Wrapf(err, "sqlite: update routing %s", r.ID)
	}
	n, err := checkRowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := ex.QueryRowContext(ctx, `SELECT 1 FROM idea_routings WHERE id = ?`, r.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(op, r.ID)
		}
		if err != nil {
			return eris.Wrapf(err, "sqlite: check routing %s", r.ID)
		}
		return versionMismatch(op, r.ID, expectedVersion)
	}

	r.Version = next.Version
	r.UpdatedAt = updatedAt
	return nil
}

func (s *SQLiteStore) FindOpenRouting(ctx context.Context, ideaID string) (*model.IdeaRouting, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+routingColumns+` FROM idea_routings
		 WHERE idea_id = ? AND status NOT IN (?, ?)
		 ORDER BY created_at DESC LIMIT 1`,
		ideaID, string(model.StatusPublished), string(model.StatusKilled),
	)
	r, err := scanRoutingSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *SQLiteStore) ListRoutings(ctx context.Context, filter RoutingFilter) ([]model.IdeaRouting, error) {
	query, args, err := buildListQuery(sq.StatementBuilder.PlaceholderFormat(sq.Question), filter, sqliteDate).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list routings")
	}
	defer rows.Close()

	var out []model.IdeaRouting
	for rows.Next() {
		r, err := scanRoutingSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list routings iterate")
}

func (s *SQLiteStore) OccupiedDates(ctx context.Context, publicationSlug string, from, to time.Time) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT calendar_date, id FROM idea_routings
		 WHERE routed_to = ? AND status IN (?, ?) AND calendar_date >= ? AND calendar_date < ?`,
		publicationSlug, string(model.StatusScheduled), string(model.StatusPublished),
		dateKey(from), dateKey(to),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: occupied dates")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var date, id string
		if err := rows.Scan(&date, &id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan occupied date")
		}
		out[date] = id
	}
	return out, eris.Wrap(rows.Err(), "sqlite: occupied dates iterate")
}

func (s *SQLiteStore) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	counts, err := s.countBy(ctx, `SELECT status, COUNT(*) FROM idea_routings GROUP BY status`)
	if err != nil {
		return nil, err
	}
	out := make(map[model.Status]int, len(counts))
	for k, v := range counts {
		out[model.Status(k)] = v
	}
	return out, nil
}

func (s *SQLiteStore) TierCounts(ctx context.Context) (map[model.Tier]int, error) {
	counts, err := s.countBy(ctx, `SELECT tier, COUNT(*) FROM idea_routings WHERE tier <> '' GROUP BY tier`)
	if err != nil {
		return nil, err
	}
	out := make(map[model.Tier]int, len(counts))
	for k, v := range counts {
		out[model.Tier(k)] = v
	}
	return out, nil
}

func (s *SQLiteStore) QueueCounts(ctx context.Context) (map[string]int, error) {
	args := make([]any, 0, len(openStatuses))
	for _, st := range statusStrings(openStatuses) {
		args = append(args, st)
	}
	return s.countBy(ctx,
		`SELECT routed_to, COUNT(*) FROM idea_routings
		 WHERE routed_to <> '' AND status IN (?, ?, ?, ?) GROUP BY routed_to`,
		args...,
	)
}

func (s *SQLiteStore) EvergreenCounts(ctx context.Context) (map[string]int, error) {
	return s.countBy(ctx, `SELECT publication_slug, COUNT(*) FROM evergreen_queue GROUP BY publication_slug`)
}

func (s *SQLiteStore) countBy(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		out[key] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: count iterate")
}

func (s *SQLiteStore) AppendStatusChange(ctx context.Context, c *model.StatusChange) error {
	return insertChangeSQLite(ctx, s.db, c)
}

func insertChangeSQLite(ctx context.Context, ex sqlExecutor, c *model.StatusChange) error {
	prepareChange(c)
	var metadata any
	if len(c.Metadata) > 0 {
		b, err := json.Marshal(c.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal change metadata")
		}
		metadata = string(b)
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO status_changes (id, idea_routing_id, from_status, to_status, kind, changed_by, reason, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.IdeaRoutingID, string(c.FromStatus), string(c.ToStatus), string(c.Kind),
		c.ChangedBy, c.Reason, metadata, c.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	return eris.Wrapf(err, "sqlite: insert status change for %s", c.IdeaRoutingID)
}

func (s *SQLiteStore) ListStatusChanges(ctx context.Context, routingID string) ([]model.StatusChange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, idea_routing_id, from_status, to_status, kind, changed_by, reason, metadata, created_at
		 FROM status_changes WHERE idea_routing_id = ? ORDER BY created_at, rowid`,
		routingID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list status changes")
	}
	defer rows.Close()

	var out []model.StatusChange
	for rows.Next() {
		var c model.StatusChange
		var from, to, kind, createdAt string
		var metadata sql.NullString
		if err := rows.Scan(&c.ID, &c.IdeaRoutingID, &from, &to, &kind, &c.ChangedBy, &c.Reason, &metadata, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status change")
		}
		c.FromStatus = model.Status(from)
		c.ToStatus = model.Status(to)
		c.Kind = model.ChangeKind(kind)
		if c.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, err
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &c.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal change metadata")
			}
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list status changes iterate")
}

func (s *SQLiteStore) EnqueueEvergreen(ctx context.Context, e *model.EvergreenEntry) (bool, error) {
	prepareEntry(e)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO evergreen_queue (id, publication_slug, idea_routing_id, enqueued_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (publication_slug, idea_routing_id) DO NOTHING`,
		e.ID, e.PublicationSlug, e.IdeaRoutingID, e.EnqueuedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: enqueue evergreen")
	}
	n, err := checkRowsAffected(res)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	var enqueuedAt string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, enqueued_at FROM evergreen_queue WHERE publication_slug = ? AND idea_routing_id = ?`,
		e.PublicationSlug, e.IdeaRoutingID,
	).Scan(&e.ID, &enqueuedAt)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: load existing evergreen entry")
	}
	e.EnqueuedAt, err = parseSQLiteTime(enqueuedAt)
	return false, err
}

func (s *SQLiteStore) ListEvergreen(ctx context.Context, publicationSlug string) ([]model.EvergreenEntry, error) {
	query := `SELECT id, publication_slug, idea_routing_id, enqueued_at FROM evergreen_queue`
	var args []any
	if publicationSlug != "" {
		query += ` WHERE publication_slug = ?`
		args = append(args, publicationSlug)
	}
	query += ` ORDER BY enqueued_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evergreen")
	}
	defer rows.Close()

	var out []model.EvergreenEntry
	for rows.Next() {
		var e model.EvergreenEntry
		var enqueuedAt string
		if err := rows.Scan(&e.ID, &e.PublicationSlug, &e.IdeaRoutingID, &enqueuedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evergreen entry")
		}
		if e.EnqueuedAt, err = parseSQLiteTime(enqueuedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list evergreen iterate")
}

func (s *SQLiteStore) RemoveEvergreen(ctx context.Context, routingID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM evergreen_queue WHERE idea_routing_id = ?`, routingID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: remove evergreen")
	}
	n, err := checkRowsAffected(res)
	return int(n), err
}

// helpers

func checkRowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "rows affected")
	}
	return n, nil
}

func isSQLiteBookedDate(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, "calendar_date")
}

func sqliteTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func sqliteDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return dateKey(*t)
}

func parseSQLiteTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString, date bool) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var (
		t   time.Time
		err error
	)
	if date {
		t, err = model.ParseDate(ns.String)
	} else {
		t, err = parseSQLiteTime(ns.String)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeRoutingJSON(r *model.IdeaRouting) (facts string, breakdown any, err error) {
	b, err := json.Marshal(r.Facts)
	if err != nil {
		return "", nil, eris.Wrap(err, "store: marshal facts")
	}
	if r.Breakdown != nil {
		bd, err := json.Marshal(r.Breakdown)
		if err != nil {
			return "", nil, eris.Wrap(err, "store: marshal breakdown")
		}
		breakdown = string(bd)
	}
	return string(b), breakdown, nil
}

func routingArgsSQLite(r *model.IdeaRouting) ([]any, error) {
	facts, breakdown, err := encodeRoutingJSON(r)
	if err != nil {
		return nil, err
	}
	return []any{
		r.ID, r.IdeaID, r.Audience, r.RoutedTo, r.RuleID, string(r.RecommendedAction), string(r.Tier),
		string(r.TimeSensitivity), sqliteDate(r.NewsWindow), facts, r.Score, breakdown, r.OverrideScore, r.OverrideReason,
		sqliteDate(r.CalendarDate), r.SlotID, string(r.Status), sqliteTime(r.RoutedAt), sqliteTime(r.ScoredAt),
		sqliteTime(r.SlottedAt), sqliteTime(r.ScheduledAt), sqliteTime(r.PublishedAt), sqliteTime(r.KilledAt),
		r.Notes, r.Version, r.CreatedAt.UTC().Format(sqliteTimeLayout), r.UpdatedAt.UTC().Format(sqliteTimeLayout),
	}, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRoutingSQLite(row scannable) (*model.IdeaRouting, error) {
	var (
		r                                          model.IdeaRouting
		action, tier, sensitivity, status, facts   string
		createdAt, updatedAt                       string
		newsWindow, calendarDate, breakdown        sql.NullString
		routedAt, scoredAt, slottedAt, scheduledAt sql.NullString
		publishedAt, killedAt                      sql.NullString
		score, overrideScore                       sql.NullFloat64
	)
	err := row.Scan(
		&r.ID, &r.IdeaID, &r.Audience, &r.RoutedTo, &r.RuleID, &action, &tier,
		&sensitivity, &newsWindow, &facts, &score, &breakdown, &overrideScore, &r.OverrideReason,
		&calendarDate, &r.SlotID, &status, &routedAt, &scoredAt, &slottedAt, &scheduledAt,
		&publishedAt, &killedAt, &r.Notes, &r.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan routing")
	}

	r.RecommendedAction = model.Action(action)
	r.Tier = model.Tier(tier)
	r.TimeSensitivity = model.TimeSensitivity(sensitivity)
	r.Status = model.Status(status)
	if score.Valid {
		r.Score = &score.Float64
	}
	if overrideScore.Valid {
		r.OverrideScore = &overrideScore.Float64
	}
	if err := json.Unmarshal([]byte(facts), &r.Facts); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal facts")
	}
	if breakdown.Valid {
		r.Breakdown = &model.ScoreBreakdown{}
		if err := json.Unmarshal([]byte(breakdown.String), r.Breakdown); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal breakdown")
		}
	}
	if r.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, err
	}

	dates := []struct {
		src  sql.NullString
		dst  **time.Time
		date bool
	}{
		{newsWindow, &r.NewsWindow, true},
		{calendarDate, &r.CalendarDate, true},
		{routedAt, &r.RoutedAt, false},
		{scoredAt, &r.ScoredAt, false},
		{slottedAt, &r.SlottedAt, false},
		{scheduledAt, &r.ScheduledAt, false},
		{publishedAt, &r.PublishedAt, false},
		{killedAt, &r.KilledAt, false},
	}
	for _, d := range dates {
		if *d.dst, err = parseNullTime(d.src, d.date); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/content-router/internal/db"
	"github.com/sells-group/content-router/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const bookedDateConstraint = "uq_idea_routings_booked_date"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

const (
	sqlInsertRouting = `INSERT INTO idea_routings (` + routingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`
	sqlUpdateRouting = `UPDATE idea_routings SET
		audience = $1, routed_to = $2, rule_id = $3, recommended_action = $4, tier = $5,
		time_sensitivity = $6, news_window = $7, facts = $8, score = $9, breakdown = $10,
		override_score = $11, override_reason = $12, calendar_date = $13, slot_id = $14, status = $15,
		routed_at = $16, scored_at = $17, slotted_at = $18, scheduled_at = $19, published_at = $20,
		killed_at = $21, notes = $22, version = $23, updated_at = $24
		WHERE id = $25 AND version = $26`
	sqlGetRouting      = `SELECT ` + routingColumns + ` FROM idea_routings WHERE id = $1`
	sqlFindOpenRouting = `SELECT ` + routingColumns + ` FROM idea_routings
		WHERE idea_id = $1 AND status NOT IN ('published', 'killed')
		ORDER BY created_at DESC LIMIT 1`
	sqlInsertChange = `INSERT INTO status_changes (id, idea_routing_id, from_status, to_status, kind, changed_by, reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	sqlListChanges = `SELECT id, idea_routing_id, from_status, to_status, kind, changed_by, reason, metadata, created_at
		FROM status_changes WHERE idea_routing_id = $1 ORDER BY created_at, id`
	sqlOccupiedDates = `SELECT calendar_date, id FROM idea_routings
		WHERE routed_to = $1 AND status IN ('scheduled', 'published') AND calendar_date >= $2 AND calendar_date < $3`
	sqlEnqueueEvergreen = `INSERT INTO evergreen_queue (id, publication_slug, idea_routing_id, enqueued_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (publication_slug, idea_routing_id) DO UPDATE SET publication_slug = EXCLUDED.publication_slug
		RETURNING id, enqueued_at, (xmax = 0) AS inserted`
)

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_routing":    sqlInsertRouting,
	"update_routing":    sqlUpdateRouting,
	"get_routing":       sqlGetRouting,
	"find_open_routing": sqlFindOpenRouting,
	"insert_change":     sqlInsertChange,
	"list_changes":      sqlListChanges,
	"occupied_dates":    sqlOccupiedDates,
	"enqueue_evergreen": sqlEnqueueEvergreen,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg, func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					// Schema not migrated yet.
					zap.L().Debug("postgres: skip prepare before migration", zap.String("statement", name))
					return nil
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (the Postgres catalog loader).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Migrate applies the embedded migrations under a Postgres advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, migrationsFS, "migrations"), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRouting(ctx context.Context, r *model.IdeaRouting) error {
	return insertRoutingPG(ctx, s.pool, r)
}

func (s *PostgresStore) GetRouting(ctx context.Context, id string) (*model.IdeaRouting, error) {
	r, err := scanRoutingPG(s.pool.QueryRow(ctx, sqlGetRouting, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("store.get_routing", id)
	}
	return r, err
}

func (s *PostgresStore) UpdateRouting(ctx context.Context, r *model.IdeaRouting, expectedVersion int) error {
	return updateRoutingPG(ctx, s.pool, r, expectedVersion)
}

func (s *PostgresStore) CreateWithChange(ctx context.Context, r *model.IdeaRouting, c *model.StatusChange) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertRoutingPG(ctx, tx, r); err != nil {
			return err
		}
		c.IdeaRoutingID = r.ID
		return insertChangePG(ctx, tx, c)
	})
}

func (s *PostgresStore) UpdateWithChange(ctx context.Context, r *model.IdeaRouting, expectedVersion int, c *model.StatusChange) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := updateRoutingPG(ctx, tx, r, expectedVersion); err != nil {
			return err
		}
		return insertChangePG(ctx, tx, c)
	})
}

func insertRoutingPG(ctx context.Context, q db.Pool, r *model.IdeaRouting) error {
	prepareCreate(r)
	facts, breakdown, err := encodeRoutingJSON(r)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, sqlInsertRouting,
		r.ID, r.IdeaID, r.Audience, r.RoutedTo, r.RuleID, string(r.RecommendedAction), string(r.Tier),
		string(r.TimeSensitivity), r.NewsWindow, facts, r.Score, breakdown, r.OverrideScore, r.OverrideReason,
		r.CalendarDate, r.SlotID, string(r.Status), r.RoutedAt, r.ScoredAt,
		r.SlottedAt, r.ScheduledAt, r.PublishedAt, r.KilledAt,
		r.Notes, r.Version, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isBookedDateViolation(err) {
			return dateTaken("store.create_routing", r)
		}
		return eris.Wrap(err, "postgres: insert routing")
	}
	return nil
}

func updateRoutingPG(ctx context.Context, q db.Pool, r *model.IdeaRouting, expectedVersion int) error {
	const op = "store.update_routing"

	updatedAt := time.Now().UTC()
	facts, breakdown, err := encodeRoutingJSON(r)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, sqlUpdateRouting,
		r.Audience, r.RoutedTo, r.RuleID, string(r.RecommendedAction), string(r.Tier),
		string(r.TimeSensitivity), r.NewsWindow, facts, r.Score, breakdown,
		r.OverrideScore, r.OverrideReason, r.CalendarDate, r.SlotID, string(r.Status),
		r.RoutedAt, r.ScoredAt, r.SlottedAt, r.ScheduledAt, r.PublishedAt,
		r.KilledAt, r.Notes, expectedVersion+1, updatedAt,
		r.ID, expectedVersion,
	)
	if err != nil {
		if isBookedDateViolation(err) {
			return dateTaken(op, r)
		}
		return eris.Wrapf(err, "postgres: update routing %s", r.ID)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM idea_routings WHERE id = $1)`, r.ID).Scan(&exists); err != nil {
			return eris.Wrapf(err, "postgres: check routing %s", r.ID)
		}
		if !exists {
			return notFound(op, r.ID)
		}
		return versionMismatch(op, r.ID, expectedVersion)
	}

	r.Version = expectedVersion + 1
	r.UpdatedAt = updatedAt
	return nil
}

func isBookedDateViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == bookedDateConstraint
}

func (s *PostgresStore) FindOpenRouting(ctx context.Context, ideaID string) (*model.IdeaRouting, error) {
	r, err := scanRoutingPG(s.pool.QueryRow(ctx, sqlFindOpenRouting, ideaID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

func (s *PostgresStore) ListRoutings(ctx context.Context, filter RoutingFilter) ([]model.IdeaRouting, error) {
	query, args, err := buildListQuery(sq.StatementBuilder.PlaceholderFormat(sq.Dollar), filter, pgDate).ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list routings")
	}
	defer rows.Close()

	var out []model.IdeaRouting
	for rows.Next() {
		r, err := scanRoutingPG(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list routings iterate")
}

func (s *PostgresStore) OccupiedDates(ctx context.Context, publicationSlug string, from, to time.Time) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, sqlOccupiedDates, publicationSlug, model.Day(from), model.Day(to))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: occupied dates")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var date time.Time
		var id string
		if err := rows.Scan(&date, &id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan occupied date")
		}
		out[dateKey(date)] = id
	}
	return out, eris.Wrap(rows.Err(), "postgres: occupied dates iterate")
}

func (s *PostgresStore) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
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

func (s *PostgresStore) TierCounts(ctx context.Context) (map[model.Tier]int, error) {
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

func (s *PostgresStore) QueueCounts(ctx context.Context) (map[string]int, error) {
	return s.countBy(ctx,
		`SELECT routed_to, COUNT(*) FROM idea_routings
		 WHERE routed_to <> '' AND status = ANY($1) GROUP BY routed_to`,
		statusStrings(openStatuses),
	)
}

func (s *PostgresStore) EvergreenCounts(ctx context.Context) (map[string]int, error) {
	return s.countBy(ctx, `SELECT publication_slug, COUNT(*) FROM evergreen_queue GROUP BY publication_slug`)
}

func (s *PostgresStore) countBy(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		out[key] = int(n)
	}
	return out, eris.Wrap(rows.Err(), "postgres: count iterate")
}

func (s *PostgresStore) AppendStatusChange(ctx context.Context, c *model.StatusChange) error {
	return insertChangePG(ctx, s.pool, c)
}

func insertChangePG(ctx context.Context, q db.Pool, c *model.StatusChange) error {
	prepareChange(c)
	var metadata []byte
	if len(c.Metadata) > 0 {
		b, err := json.Marshal(c.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal change metadata")
		}
		metadata = b
	}
	_, err := q.Exec(ctx, sqlInsertChange,
		c.ID, c.IdeaRoutingID, string(c.FromStatus), string(c.ToStatus), string(c.Kind),
		c.ChangedBy, c.Reason, metadata, c.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert status change for %s", c.IdeaRoutingID)
}

func (s *PostgresStore) ListStatusChanges(ctx context.Context, routingID string) ([]model.StatusChange, error) {
	rows, err := s.pool.Query(ctx, sqlListChanges, routingID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list status changes")
	}
	defer rows.Close()

	var out []model.StatusChange
	for rows.Next() {
		var c model.StatusChange
		var from, to, kind string
		var metadata []byte
		if err := rows.Scan(&c.ID, &c.IdeaRoutingID, &from, &to, &kind, &c.ChangedBy, &c.Reason, &metadata, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status change")
		}
		c.FromStatus = model.Status(from)
		c.ToStatus = model.Status(to)
		c.Kind = model.ChangeKind(kind)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal change metadata")
			}
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list status changes iterate")
}

func (s *PostgresStore) EnqueueEvergreen(ctx context.Context, e *model.EvergreenEntry) (bool, error) {
	prepareEntry(e)
	var inserted bool
	err := s.pool.QueryRow(ctx, sqlEnqueueEvergreen,
		e.ID, e.PublicationSlug, e.IdeaRoutingID, e.EnqueuedAt,
	).Scan(&e.ID, &e.EnqueuedAt, &inserted)
	if err != nil {
		return false, eris.Wrap(err, "postgres: enqueue evergreen")
	}
	return inserted, nil
}

func (s *PostgresStore) ListEvergreen(ctx context.Context, publicationSlug string) ([]model.EvergreenEntry, error) {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("id", "publication_slug", "idea_routing_id", "enqueued_at").
		From("evergreen_queue").
		OrderBy("enqueued_at", "id")
	if publicationSlug != "" {
		q = q.Where(sq.Eq{"publication_slug": publicationSlug})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build evergreen query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list evergreen")
	}
	defer rows.Close()

	var out []model.EvergreenEntry
	for rows.Next() {
		var e model.EvergreenEntry
		if err := rows.Scan(&e.ID, &e.PublicationSlug, &e.IdeaRoutingID, &e.EnqueuedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evergreen entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list evergreen iterate")
}

func (s *PostgresStore) RemoveEvergreen(ctx context.Context, routingID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM evergreen_queue WHERE idea_routing_id = $1`, routingID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: remove evergreen")
	}
	return int(tag.RowsAffected()), nil
}

func pgDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return model.Day(*t)
}

func scanRoutingPG(row pgx.Row) (*model.IdeaRouting, error) {
	var (
		r                                 model.IdeaRouting
		action, tier, sensitivity, status string
		facts                             []byte
		breakdown                         *[]byte
	)
	err := row.Scan(
		&r.ID, &r.IdeaID, &r.Audience, &r.RoutedTo, &r.RuleID, &action, &tier,
		&sensitivity, &r.NewsWindow, &facts, &r.Score, &breakdown, &r.OverrideScore, &r.OverrideReason,
		&r.CalendarDate, &r.SlotID, &status, &r.RoutedAt, &r.ScoredAt, &r.SlottedAt, &r.ScheduledAt,
		&r.PublishedAt, &r.KilledAt, &r.Notes, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan routing")
	}

	r.RecommendedAction = model.Action(action)
	r.Tier = model.Tier(tier)
	r.TimeSensitivity = model.TimeSensitivity(sensitivity)
	r.Status = model.Status(status)
	if len(facts) > 0 {
		if err := json.Unmarshal(facts, &r.Facts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal facts")
		}
	}
	if breakdown != nil {
		r.Breakdown = &model.ScoreBreakdown{}
		if err := json.Unmarshal(*breakdown, r.Breakdown); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal breakdown")
		}
	}
	return &r, nil
}

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/content-router/internal/apperr"
	"github.com/sells-group/content-router/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_CreateRouting(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO idea_routings`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	r := newRouting("idea-1", "")
	require.NoError(t, s.CreateRouting(context.Background(), r))
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, 1, r.Version)
	assert.Equal(t, model.StatusIntake, r.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRouting(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE idea_routings SET .* WHERE id = \$25 AND version = \$26`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	r := newRouting("idea-1", "quick-takes")
	r.ID = "r-1"
	r.Version = 3
	r.Enter(model.StatusRouted, time.Now())
	require.NoError(t, s.UpdateRouting(context.Background(), r, 3))
	assert.Equal(t, 4, r.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRouting_VersionMismatch(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE idea_routings SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	r := newRouting("idea-1", "")
	r.ID = "r-1"
	err := s.UpdateRouting(context.Background(), r, 1)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRouting_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE idea_routings SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	r := newRouting("idea-1", "")
	r.ID = "missing"
	err := s.UpdateRouting(context.Background(), r, 1)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRouting_BookedDate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE idea_routings SET`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: bookedDateConstraint})

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	r := newRouting("idea-1", "quick-takes")
	r.ID = "r-1"
	r.Enter(model.StatusScheduled, time.Now())
	r.CalendarDate = &day
	err := s.UpdateRouting(context.Background(), r, 1)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Contains(t, err.Error(), "2025-06-02")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateWithChange(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE idea_routings SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO status_changes`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	r := newRouting("idea-1", "quick-takes")
	r.ID = "r-1"
	r.Enter(model.StatusRouted, time.Now())
	c := &model.StatusChange{IdeaRoutingID: "r-1", FromStatus: model.StatusIntake, ToStatus: model.StatusRouted, Kind: model.ChangeAuto,
		Metadata: map[string]any{"rule_id": "rule-1"}}
	require.NoError(t, s.UpdateWithChange(context.Background(), r, 1, c))
	assert.NotEmpty(t, c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateWithChange_LogFailureRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE idea_routings SET`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO status_changes`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	r := newRouting("idea-1", "quick-takes")
	r.ID = "r-1"
	c := &model.StatusChange{IdeaRoutingID: "r-1", ToStatus: model.StatusRouted, Kind: model.ChangeAuto}
	err := s.UpdateWithChange(context.Background(), r, 1, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert status change")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateWithChange(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO idea_routings`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO status_changes`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	r := newRouting("idea-1", "")
	c := &model.StatusChange{ToStatus: model.StatusIntake, Kind: model.ChangeAuto}
	require.NoError(t, s.CreateWithChange(context.Background(), r, c))
	assert.Equal(t, r.ID, c.IdeaRoutingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRouting_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM idea_routings WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRouting(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_OccupiedDates(t *testing.T) {
	s, mock := newMockStore(t)

	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 28)
	mock.ExpectQuery(`SELECT calendar_date, id FROM idea_routings`).
		WithArgs("quick-takes", from, to).
		WillReturnRows(pgxmock.NewRows([]string{"calendar_date", "id"}).
			AddRow(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), "r-1").
			AddRow(time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), "r-2"))

	got, err := s.OccupiedDates(context.Background(), "quick-takes", from, to)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"2025-06-02": "r-1", "2025-06-09": "r-2"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_QueueCounts(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT routed_to, COUNT\(\*\) FROM idea_routings`).
		WithArgs([]string{"intake", "routed", "scored", "slotted"}).
		WillReturnRows(pgxmock.NewRows([]string{"routed_to", "count"}).
			AddRow("quick-takes", int64(3)).
			AddRow("deep-dives", int64(1)))

	got, err := s.QueueCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"quick-takes": 3, "deep-dives": 1}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListStatusChanges(t *testing.T) {
	s, mock := newMockStore(t)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, idea_routing_id, from_status, to_status, kind, changed_by, reason, metadata, created_at`).
		WithArgs("r-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "idea_routing_id", "from_status", "to_status", "kind", "changed_by", "reason", "metadata", "created_at"}).
			AddRow("c-1", "r-1", "", "intake", "auto", "ops", "", []byte(nil), at).
			AddRow("c-2", "r-1", "routed", "scored", "override", "editor", "timely", []byte(`{"override_score":9}`), at.Add(time.Minute)))

	got, err := s.ListStatusChanges(context.Background(), "r-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.StatusIntake, got[0].ToStatus)
	assert.Nil(t, got[0].Metadata)
	assert.Equal(t, model.ChangeOverride, got[1].Kind)
	assert.InDelta(t, 9.0, got[1].Metadata["override_score"], 0.001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_EnqueueEvergreen(t *testing.T) {
	s, mock := newMockStore(t)

	existing := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO evergreen_queue .* ON CONFLICT \(publication_slug, idea_routing_id\)`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "enqueued_at", "inserted"}).
			AddRow("e-1", existing, false))

	e := &model.EvergreenEntry{PublicationSlug: "quick-takes", IdeaRoutingID: "r-1"}
	created, err := s.EnqueueEvergreen(context.Background(), e)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "e-1", e.ID)
	assert.Equal(t, existing, e.EnqueuedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RemoveEvergreen(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM evergreen_queue WHERE idea_routing_id = \$1`).
		WithArgs("r-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := s.RemoveEvergreen(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildListQuery(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	query, args, err := buildListQuery(sq.StatementBuilder.PlaceholderFormat(sq.Dollar), RoutingFilter{
		Statuses:        []model.Status{model.StatusScored, model.StatusSlotted},
		PublicationSlug: "quick-takes",
		DateFrom:        &from,
		Limit:           10,
		Offset:          20,
	}, pgDate).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "FROM idea_routings")
	assert.Contains(t, query, "status IN ($1,$2)")
	assert.Contains(t, query, "routed_to = $3")
	assert.Contains(t, query, "calendar_date >= $4")
	assert.Contains(t, query, "ORDER BY created_at DESC, id LIMIT 10 OFFSET 20")
	assert.Equal(t, []any{"scored", "slotted", "quick-takes", from}, args)
}

func TestBuildListQuery_DefaultLimit(t *testing.T) {
	query, args, err := buildListQuery(sq.StatementBuilder.PlaceholderFormat(sq.Question), RoutingFilter{}, sqliteDate).ToSql()
	require.NoError(t, err)
	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, "LIMIT 500")
	assert.Empty(t, args)
}

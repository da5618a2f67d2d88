package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskgrid/internal/model"
	"github.com/sells-group/riskgrid/internal/scoring"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

var runColumns = []string{"id", "district", "source", "weights", "summary", "top", "created_at"}

func TestPostgres_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scoring_runs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO scoring_runs").
		WithArgs(pgxmock.AnyArg(), "Central Delhi", "postgis", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := sampleRun("Central Delhi", time.Time{})
	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveRun_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec("INSERT INTO scoring_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(fmt.Errorf("connection reset"))

	err := s.SaveRun(context.Background(), sampleRun("X", time.Time{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert run")
}

func TestPostgres_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM scoring_runs WHERE id").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runColumns).AddRow(
			"run-1", "Central Delhi", "geojson",
			[]byte(`{"no2":0.5,"uhi_intens":0.5}`),
			[]byte(`{"total_features":4,"district_health":71}`),
			[]byte(`[{"rank":1,"gid":"9","name":"Karol Bagh","overall_score":0.9,"scored":true}]`),
			at,
		))

	r, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Central Delhi", r.District)
	assert.Equal(t, 0.5, r.Weights["no2"])
	assert.Equal(t, 71, r.Summary.DistrictHealth)
	require.Len(t, r.Top, 1)
	assert.Equal(t, "Karol Bagh", r.Top[0].Name)
	assert.Equal(t, at, r.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT .+ FROM scoring_runs WHERE id").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPostgres_ListRuns_WithFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`lower\(district\) = lower\(\$1\) ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("north delhi", 5, 10).
		WillReturnRows(pgxmock.NewRows(runColumns).AddRow(
			"run-2", "North Delhi", "postgis", []byte(`{}`), []byte(`{}`), []byte(`[]`), time.Now(),
		))

	runs, err := s.ListRuns(context.Background(), RunFilter{District: "north delhi", Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`ORDER BY created_at DESC LIMIT \$1$`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows(runColumns))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_NameCache(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT name FROM name_cache").
		WithArgs("77.2000,28.6000").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Connaught Place"))
	mock.ExpectQuery("SELECT name FROM name_cache").
		WithArgs("0.0000,0.0000").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO name_cache .+ ON CONFLICT").
		WithArgs("0.0000,0.0000", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	name, found, err := s.GetCachedName(ctx, "77.2000,28.6000")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Connaught Place", name)

	_, found, err = s.GetCachedName(ctx, "0.0000,0.0000")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetCachedName(ctx, "0.0000,0.0000", "", time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func scoredCells() []scoring.ScoredCell {
	return []scoring.ScoredCell{
		{GridCell: model.NewGridCell(map[string]any{"gid": "1"}, nil), OverallScore: 0.8, Scored: true, Components: map[string]float64{"no2": 0.8}},
		{GridCell: model.NewGridCell(map[string]any{"gid": "2"}, nil)},
		{GridCell: model.NewGridCell(map[string]any{"name": "no id"}, nil), OverallScore: 0.5, Scored: true},
	}
}

func TestPostgres_SaveScores(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "risk"."grid_scores"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`DELETE FROM "risk"."grid_scores" WHERE district`).
		WithArgs("Central Delhi").
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	mock.ExpectCopyFrom(pgx.Identifier{"risk", "grid_scores"}, ScoreColumns).WillReturnResult(2)
	mock.ExpectCommit()

	n, err := s.SaveScores(context.Background(), "risk.grid_scores", "Central Delhi", scoredCells())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveScores_CopyErrorRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("DELETE FROM").WithArgs("Central Delhi").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"grid_scores"}, ScoreColumns).WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	_, err := s.SaveScores(context.Background(), "grid_scores", "Central Delhi", scoredCells())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO grid_scores")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveScores_BeginError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin().WillReturnError(fmt.Errorf("too many connections"))

	_, err := s.SaveScores(context.Background(), "grid_scores", "X", scoredCells())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestPostgres_ComponentsEncoding(t *testing.T) {
	b, err := json.Marshal(scoredCells()[0].Components)
	require.NoError(t, err)
	assert.JSONEq(t, `{"no2":0.8}`, string(b))
}

func TestPostgres_ImplementsInterfaces(t *testing.T) {
	var _ Store = (*PostgresStore)(nil)
	var _ NameCache = (*PostgresStore)(nil)
}

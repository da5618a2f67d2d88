package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/db"
	"github.com/sells-group/riskgrid/internal/scoring"
)

// PostgresStore implements Store and NameCache on PostgreSQL and writes
// computed scores back next to the grid for downstream map tiles.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with its own connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scoring_runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	district   TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	weights    JSONB NOT NULL,
	summary    JSONB NOT NULL,
	top        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS name_cache (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scoring_runs_district ON scoring_runs(lower(district));
CREATE INDEX IF NOT EXISTS idx_scoring_runs_created_at ON scoring_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_name_cache_expires_at ON name_cache(expires_at);
`

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRun inserts run, assigning an ID and timestamp when unset.
func (s *PostgresStore) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	weights, summary, top, err := encodeRun(run)
	if err != nil {
		return eris.Wrap(err, "postgres: encode run")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scoring_runs (id, district, source, weights, summary, top, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.District, run.Source, weights, summary, top, run.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

// GetRun returns the run with the given ID.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, district, source, weights, summary, top, created_at FROM scoring_runs WHERE id = $1`,
		id,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: get run: not found: %s", id)
	}
	return r, err
}

// ListRuns returns runs newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, district, source, weights, summary, top, created_at FROM scoring_runs WHERE 1=1`
	var args []any
	argN := 1

	if filter.District != "" {
		query += fmt.Sprintf(` AND lower(district) = lower($%d)`, argN)
		args = append(args, filter.District)
		argN++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argN)
	args = append(args, limit)
	argN++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// GetCachedName returns an unexpired cached name.
func (s *PostgresStore) GetCachedName(ctx context.Context, key string) (string, bool, error) {
	var name string
	err := s.pool.QueryRow(ctx,
		`SELECT name FROM name_cache WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "postgres: get cached name")
	}
	return name, true, nil
}

// SetCachedName stores name under key for ttl.
func (s *PostgresStore) SetCachedName(ctx context.Context, key, name string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO name_cache (key, name, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		key, name, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached name")
}

// ScoreColumns are the columns written by SaveScores.
var ScoreColumns = []string{"district", "gid", "overall_score", "scored", "components", "scored_at"}

const scoreTableDDL = `CREATE TABLE IF NOT EXISTS %s (
	district      TEXT NOT NULL,
	gid           TEXT NOT NULL,
	overall_score DOUBLE PRECISION NOT NULL,
	scored        BOOLEAN NOT NULL,
	components    JSONB NOT NULL,
	scored_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (district, gid)
)`

// SaveScores replaces the stored scores of a district with scored in one
// transaction: existing rows are deleted and the new set is copied in.
func (s *PostgresStore) SaveScores(ctx context.Context, table, district string, scored []scoring.ScoredCell) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(scored))
	for _, c := range scored {
		if c.GID == "" {
			continue
		}
		comp, err := json.Marshal(c.Components)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal components for %s", c.GID)
		}
		rows = append(rows, []any{district, c.GID, c.OverallScore, c.Scored, comp, now})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save scores: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	quoted := db.QuoteTable(table)
	if _, err := tx.Exec(ctx, fmt.Sprintf(scoreTableDDL, quoted)); err != nil {
		return 0, eris.Wrapf(err, "postgres: save scores: create %s", table)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE district = $1`, quoted), district); err != nil {
		return 0, eris.Wrapf(err, "postgres: save scores: clear %s", district)
	}

	n, err := db.CopyFrom(ctx, tx, table, ScoreColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save scores")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: save scores: commit tx")
	}

	zap.L().Info("postgres: saved scores",
		zap.String("district", district),
		zap.String("table", table),
		zap.Int64("rows", n),
	)
	return n, nil
}

func scanPgRun(row scannable) (*Run, error) {
	var r Run
	var weights, summary, top []byte

	err := row.Scan(&r.ID, &r.District, &r.Source, &weights, &summary, &top, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	if err := decodeRun(&r, weights, summary, top); err != nil {
		return nil, eris.Wrapf(err, "postgres: decode run %s", r.ID)
	}
	return &r, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store and NameCache using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scoring_runs (
	id         TEXT PRIMARY KEY,
	district   TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	weights    TEXT NOT NULL,
	summary    TEXT NOT NULL,
	top        TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS name_cache (
	key        TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scoring_runs_district ON scoring_runs(district);
CREATE INDEX IF NOT EXISTS idx_scoring_runs_created_at ON scoring_runs(created_at);
CREATE INDEX IF NOT EXISTS idx_name_cache_expires_at ON name_cache(expires_at);
`

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts run, assigning an ID and timestamp when unset.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	weights, summary, top, err := encodeRun(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode run")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scoring_runs (id, district, source, weights, summary, top, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.District, run.Source, string(weights), string(summary), string(top), run.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

// GetRun returns the run with the given ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, district, source, weights, summary, top, created_at FROM scoring_runs WHERE id = ?`,
		id,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: run not found: %s", id)
	}
	return r, err
}

// ListRuns returns runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, district, source, weights, summary, top, created_at FROM scoring_runs WHERE 1=1`
	var args []any

	if filter.District != "" {
		query += ` AND district = ? COLLATE NOCASE`
		args = append(args, filter.District)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// GetCachedName returns an unexpired cached name.
func (s *SQLiteStore) GetCachedName(ctx context.Context, key string) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM name_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: get cached name")
	}
	return name, true, nil
}

// SetCachedName stores name under key for ttl.
func (s *SQLiteStore) SetCachedName(ctx context.Context, key, name string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO name_cache (key, name, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET name = excluded.name, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, name, now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached name")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func encodeRun(run *Run) (weights, summary, top []byte, err error) {
	if weights, err = json.Marshal(run.Weights); err != nil {
		return nil, nil, nil, err
	}
	if summary, err = json.Marshal(run.Summary); err != nil {
		return nil, nil, nil, err
	}
	if top, err = json.Marshal(run.Top); err != nil {
		return nil, nil, nil, err
	}
	return weights, summary, top, nil
}

func decodeRun(r *Run, weights, summary, top []byte) error {
	if err := json.Unmarshal(weights, &r.Weights); err != nil {
		return eris.Wrap(err, "unmarshal weights")
	}
	if err := json.Unmarshal(summary, &r.Summary); err != nil {
		return eris.Wrap(err, "unmarshal summary")
	}
	if err := json.Unmarshal(top, &r.Top); err != nil {
		return eris.Wrap(err, "unmarshal top")
	}
	return nil
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	var weights, summary, top string

	err := row.Scan(&r.ID, &r.District, &r.Source, &weights, &summary, &top, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := decodeRun(&r, []byte(weights), []byte(summary), []byte(top)); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode run %s", r.ID)
	}
	return &r, nil
}

// Package store persists regression results to PostgreSQL so past runs can
// be compared. It is optional: the CSV export is the primary output.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/excessdeaths/internal/config"
	"github.com/JonMunkholm/excessdeaths/internal/report"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// txBeginner is implemented by pools and connections; SaveRun uses it to
// make a run's rows atomic.
type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// ErrNoRuns is returned by LatestRun when nothing has been saved yet.
var ErrNoRuns = errors.New("no saved runs")

// ErrDisabled is returned by callers that need a store when none is configured.
var ErrDisabled = errors.New("results store is not configured")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	run_id     uuid        PRIMARY KEY,
	created_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS analysis_runs_created_at_idx ON analysis_runs (created_at DESC);
CREATE TABLE IF NOT EXISTS regression_results (
	run_id     uuid             NOT NULL REFERENCES analysis_runs (run_id) ON DELETE CASCADE,
	position   integer          NOT NULL,
	country    text             NOT NULL,
	slope      double precision NOT NULL,
	intercept  double precision NOT NULL,
	r_squared  double precision NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

const insertRunSQL = `
INSERT INTO analysis_runs (run_id, created_at)
VALUES ($1, $2)`

const insertResultSQL = `
INSERT INTO regression_results (run_id, position, country, slope, intercept, r_squared)
VALUES ($1, $2, $3, $4, $5, $6)`

// latestSQL yields one row per result of the newest run, or a single row
// with null result columns when that run had none.
const latestSQL = `
SELECT r.run_id, r.created_at, res.country, res.slope, res.intercept, res.r_squared
FROM (SELECT run_id, created_at FROM analysis_runs ORDER BY created_at DESC LIMIT 1) r
LEFT JOIN regression_results res ON res.run_id = r.run_id
ORDER BY res.position`

// Run is one saved analysis.
type Run struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Results   []report.Result
}

// Store reads and writes regression results.
type Store struct {
	db  DBTX
	now func() time.Time
}

// New wraps db, typically a *pgxpool.Pool.
func New(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// Connect opens a connection pool sized per cfg and verifies it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the results table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveRun records the run and stores results under runID, keeping their
// order. A run where every country was skipped is still recorded, so it
// becomes the latest run with no results. All rows are written in one
// transaction when the underlying connection supports it.
func (s *Store) SaveRun(ctx context.Context, runID uuid.UUID, results []report.Result) error {
	db := s.db
	var tx pgx.Tx
	if b, ok := s.db.(txBeginner); ok {
		var err error
		tx, err = b.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx) // No-op if already committed
		db = tx
	}

	id := pgtype.UUID{Bytes: runID, Valid: true}
	createdAt := pgtype.Timestamptz{Time: s.now().UTC(), Valid: true}
	if _, err := db.Exec(ctx, insertRunSQL, id, createdAt); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	for i, r := range results {
		if _, err := db.Exec(ctx, insertResultSQL, id, int32(i), r.Country, r.Slope, r.Intercept, r.RSquared); err != nil {
			return fmt.Errorf("save %s: %w", r.Country, err)
		}
	}

	if tx != nil {
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}
	}
	return nil
}

// LatestRun returns the most recently saved run, or ErrNoRuns.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	rows, err := s.db.Query(ctx, latestSQL)
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	defer rows.Close()

	var run *Run
	for rows.Next() {
		var (
			id        pgtype.UUID
			createdAt pgtype.Timestamptz
			country   pgtype.Text
			slope     pgtype.Float8
			intercept pgtype.Float8
			rSquared  pgtype.Float8
		)
		if err := rows.Scan(&id, &createdAt, &country, &slope, &intercept, &rSquared); err != nil {
			return nil, fmt.Errorf("latest run: %w", err)
		}
		if run == nil {
			run = &Run{ID: uuid.UUID(id.Bytes), CreatedAt: createdAt.Time, Results: []report.Result{}}
		}
		if country.Valid {
			run.Results = append(run.Results, report.Result{
				Country:   country.String,
				Slope:     slope.Float64,
				Intercept: intercept.Float64,
				RSquared:  rSquared.Float64,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	if run == nil {
		return nil, ErrNoRuns
	}
	return run, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/excessdeaths/internal/report"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB records Exec calls and serves canned rows to Query.
type fakeDB struct {
	execs   []execCall
	execErr error
	rows    [][]any
	tx      *fakeTx
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return &fakeRows{data: f.rows, idx: -1}, nil
}

func (f *fakeDB) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	return nil
}

// fakePool adds Begin so SaveRun takes the transactional path.
type fakePool struct {
	fakeDB
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	p.tx = &fakeTx{db: &p.fakeDB}
	return p.tx, nil
}

type fakeTx struct {
	pgx.Tx // unimplemented methods panic
	db         *fakeDB
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeRows struct {
	pgx.Rows // unimplemented methods panic
	data     [][]any
	idx      int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *pgtype.UUID:
			*p = row[i].(pgtype.UUID)
		case *pgtype.Timestamptz:
			*p = row[i].(pgtype.Timestamptz)
		case *string:
			*p = row[i].(string)
		case *float64:
			*p = row[i].(float64)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

var results = []report.Result{
	{Country: "India", Slope: 0.1, Intercept: 2, RSquared: 0.5},
	{Country: "Germany", Slope: -0.2, Intercept: 3, RSquared: 0.25},
}

func TestEnsureSchema(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db).EnsureSchema(context.Background()))
	require.Len(t, db.execs, 1)
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS analysis_runs")
	assert.Contains(t, db.execs[0].sql, "CREATE TABLE IF NOT EXISTS regression_results")
}

func TestSaveRun_Transactional(t *testing.T) {
	pool := &fakePool{}
	s := New(pool)
	fixed := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	runID := uuid.New()

	require.NoError(t, s.SaveRun(context.Background(), runID, results))

	require.NotNil(t, pool.tx)
	assert.True(t, pool.tx.committed)
	assert.False(t, pool.tx.rolledBack)
	require.Len(t, pool.execs, 3)

	header := pool.execs[0]
	assert.True(t, strings.Contains(header.sql, "INSERT INTO analysis_runs"))
	assert.Equal(t, pgtype.UUID{Bytes: runID, Valid: true}, header.args[0])
	assert.Equal(t, pgtype.Timestamptz{Time: fixed, Valid: true}, header.args[1])

	first := pool.execs[1]
	assert.True(t, strings.Contains(first.sql, "INSERT INTO regression_results"))
	assert.Equal(t, pgtype.UUID{Bytes: runID, Valid: true}, first.args[0])
	assert.Equal(t, int32(0), first.args[1])
	assert.Equal(t, "India", first.args[2])
	assert.Equal(t, int32(1), pool.execs[2].args[1])
}

func TestSaveRun_ErrorRollsBack(t *testing.T) {
	pool := &fakePool{}
	pool.execErr = errors.New("connection reset")

	err := New(pool).SaveRun(context.Background(), uuid.New(), results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save run")
	assert.True(t, pool.tx.rolledBack)
	assert.False(t, pool.tx.committed)
}

func TestSaveRun_WithoutTransactions(t *testing.T) {
	db := &fakeDB{}
	require.NoError(t, New(db).SaveRun(context.Background(), uuid.New(), results))
	assert.Len(t, db.execs, 3)
}

func TestSaveRun_EmptyRunIsRecorded(t *testing.T) {
	pool := &fakePool{}
	runID := uuid.New()

	require.NoError(t, New(pool).SaveRun(context.Background(), runID, nil))

	require.Len(t, pool.execs, 1)
	assert.Contains(t, pool.execs[0].sql, "INSERT INTO analysis_runs")
	assert.Equal(t, pgtype.UUID{Bytes: runID, Valid: true}, pool.execs[0].args[0])
	assert.True(t, pool.tx.committed)
}

func TestLatestRun(t *testing.T) {
	runID := uuid.New()
	created := pgtype.Timestamptz{Time: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC), Valid: true}
	id := pgtype.UUID{Bytes: runID, Valid: true}
	text := func(s string) pgtype.Text { return pgtype.Text{String: s, Valid: true} }
	num := func(f float64) pgtype.Float8 { return pgtype.Float8{Float64: f, Valid: true} }
	db := &fakeDB{rows: [][]any{
		{id, created, text("India"), num(0.1), num(2), num(0.5)},
		{id, created, text("Germany"), num(-0.2), num(3), num(0.25)},
	}}

	run, err := New(db).LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.Equal(t, created.Time, run.CreatedAt)
	assert.Equal(t, results, run.Results)
}

func TestLatestRun_WithoutResults(t *testing.T) {
	runID := uuid.New()
	created := pgtype.Timestamptz{Time: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), Valid: true}
	db := &fakeDB{rows: [][]any{
		{pgtype.UUID{Bytes: runID, Valid: true}, created, pgtype.Text{}, pgtype.Float8{}, pgtype.Float8{}, pgtype.Float8{}},
	}}

	run, err := New(db).LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID)
	assert.Empty(t, run.Results)
	assert.NotNil(t, run.Results)
}

func TestLatestRun_Empty(t *testing.T) {
	_, err := New(&fakeDB{}).LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrNoRuns)
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow is a pgx.Row test double. Each test supplies its own scan
// closure so dest assignment stays type-safe, mirroring the teacher's
// coupon_repository_test.go mockRow pattern without reflection.
type mockRow struct {
	scan func(dest ...any) error
}

func (r mockRow) Scan(dest ...any) error {
	return r.scan(dest...)
}

func errRow(err error) mockRow {
	return mockRow{scan: func(dest ...any) error { return err }}
}

// mockQuerier is a database.TxQuerier test double backing both
// *pgxpool.Pool and pgx.Tx call sites.
type mockQuerier struct {
	execTag  pgconn.CommandTag
	execErr  error
	row      pgx.Row
	rows     pgx.Rows
	queryErr error
	lastSQL  string
	lastArgs []any
}

func (m *mockQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.lastSQL = sql
	m.lastArgs = args
	return m.execTag, m.execErr
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.lastSQL = sql
	m.lastArgs = args
	return m.row
}

func (m *mockQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.rows, nil
}

// fakeRows is a minimal pgx.Rows test double driven by a slice of scan
// closures, one per simulated row.
type fakeRows struct {
	scans []func(dest ...any) error
	idx   int
	err   error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool {
	return r.idx < len(r.scans)
}
func (r *fakeRows) Scan(dest ...any) error {
	fn := r.scans[r.idx]
	r.idx++
	return fn(dest...)
}
func (r *fakeRows) Values() ([]any, error)       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte          { return nil }
func (r *fakeRows) Conn() *pgx.Conn              { return nil }

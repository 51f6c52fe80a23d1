package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Dialect names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// timeLayout is fixed-width so TEXT timestamps in SQLite compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// querier is the subset of a connection or transaction the store needs.
// Queries are written with ? placeholders; the postgres adapter rebinds them.
type querier interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) (rows, error)
	QueryRow(ctx context.Context, query string, args ...any) row
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type row interface {
	Scan(dest ...any) error
}

type txQuerier interface {
	querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type backend interface {
	querier
	Begin(ctx context.Context) (txQuerier, error)
	Ping(ctx context.Context) error
	Close()
	Dialect() string
	// Time converts a timestamp into the backend's storage representation.
	Time(t time.Time) any
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// -----------------------------------------------------------------------------
// PostgreSQL (pgx)
// -----------------------------------------------------------------------------

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgQuerier struct {
	q pgExecer
}

func (p pgQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.q.Exec(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p pgQuerier) Query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := p.q.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (p pgQuerier) QueryRow(ctx context.Context, query string, args ...any) row {
	return p.q.QueryRow(ctx, rebind(query), args...)
}

type pgBackend struct {
	pgQuerier
	pool *pgxpool.Pool
}

func (b *pgBackend) Begin(ctx context.Context) (txQuerier, error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgTx{pgQuerier: pgQuerier{q: tx}, tx: tx}, nil
}

func (b *pgBackend) Ping(ctx context.Context) error { return b.pool.Ping(ctx) }
func (b *pgBackend) Close()                         { b.pool.Close() }
func (b *pgBackend) Dialect() string                { return DriverPostgres }
func (b *pgBackend) Time(t time.Time) any           { return t.UTC() }

type pgTx struct {
	pgQuerier
	tx pgx.Tx
}

func (t pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// rebind converts ? placeholders to $n.
func rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 1
	for _, r := range query {
		if r == '?' {
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// -----------------------------------------------------------------------------
// database/sql (SQLite)
// -----------------------------------------------------------------------------

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlQuerier struct {
	q sqlExecer
}

func (s sqlQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s sqlQuerier) Query(ctx context.Context, query string, args ...any) (rows, error) {
	r, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{Rows: r}, nil
}

func (s sqlQuerier) QueryRow(ctx context.Context, query string, args ...any) row {
	return s.q.QueryRowContext(ctx, query, args...)
}

type sqlRows struct {
	*sql.Rows
}

func (r sqlRows) Close() { _ = r.Rows.Close() }

type sqlBackend struct {
	sqlQuerier
	db *sql.DB
}

func (b *sqlBackend) Begin(ctx context.Context) (txQuerier, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return sqlTx{sqlQuerier: sqlQuerier{q: tx}, tx: tx}, nil
}

func (b *sqlBackend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }
func (b *sqlBackend) Close()                         { _ = b.db.Close() }
func (b *sqlBackend) Dialect() string                { return DriverSQLite }
func (b *sqlBackend) Time(t time.Time) any           { return t.UTC().Format(timeLayout) }

type sqlTx struct {
	sqlQuerier
	tx *sql.Tx
}

func (t sqlTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t sqlTx) Rollback(context.Context) error { return t.tx.Rollback() }

// -----------------------------------------------------------------------------
// Scanning helpers
// -----------------------------------------------------------------------------

// nullTime scans TIMESTAMPTZ values from postgres and TEXT values from SQLite.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (n *nullTime) parse(s string) error {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("failed to parse time %q", s)
}

func (n nullTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

// Package db provides the relational store for videos, metrics, A/B variants,
// topic scores, playlists and quota usage. PostgreSQL (pgx) and SQLite share
// one query layer.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Store is the persistence surface used by the pipeline and feedback loop.
type Store interface {
	InsertVideo(ctx context.Context, v *Video) (int64, error)
	GetVideo(ctx context.Context, id int64) (*Video, error)
	UpdateVideoShorts(ctx context.Context, id int64, shortsVideoID string) error
	UpdateVideoReel(ctx context.Context, id int64, igMediaID string) error
	UpdateVideoPlaylist(ctx context.Context, id int64, playlistID string) error
	CountVideos(ctx context.Context, category, language, platform string) (int, error)
	ListVideos(ctx context.Context, category, language, platform string) ([]VideoRef, error)

	InsertMetric(ctx context.Context, m *Metric) (int64, error)
	LatestMetric(ctx context.Context, videoID string) (*Metric, error)
	LatestMetrics(ctx context.Context) ([]VideoPerformance, error)
	PendingAnalytics(ctx context.Context, cutoff time.Time, limit int) ([]Video, error)

	InsertABVariant(ctx context.Context, v *ABVariant) (int64, error)
	GetABVariant(ctx context.Context, id int64) (*ABVariant, error)
	RecordABVariantResult(ctx context.Context, id int64, ctr float64, isWinner bool) error
	CountScoredVariants(ctx context.Context) (int, error)
	VariantTypeRanking(ctx context.Context) ([]VariantTypeScore, error)

	UpsertTopicScore(ctx context.Context, topic, category string, views, ctr float64) (*TopicScore, error)
	GetTopicScore(ctx context.Context, topic string) (*TopicScore, error)
	TopCategories(ctx context.Context, limit int) ([]CategoryScore, error)
	PerformanceSummary(ctx context.Context) (*PerformanceSummary, error)
	BestVideos(ctx context.Context, limit int) ([]VideoPerformance, error)

	GetPlaylist(ctx context.Context, category, language, platform string) (*Playlist, error)
	InsertPlaylist(ctx context.Context, p *Playlist) (int64, error)
	IncrementPlaylistCount(ctx context.Context, playlistID string) error

	LogQuotaUsage(ctx context.Context, provider string, units int) error
	GetQuotaUsage(ctx context.Context, provider, day string) (int64, error)
	ListQuotaUsage(ctx context.Context, day string) ([]QuotaUsage, error)

	Migrate(ctx context.Context) error
	Close()
}

// DB implements Store over either backend.
type DB struct {
	b   backend
	now func() time.Time
}

var _ Store = (*DB)(nil)

// Open connects using the named driver ("postgres" or "sqlite") and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var (
		d   *DB
		err error
	)
	switch driver {
	case DriverPostgres:
		d, err = Connect(ctx, dsn)
	case DriverSQLite, "":
		d, err = OpenSQLite(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := d.Migrate(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Connect establishes a connection pool to a PostgreSQL database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{b: &pgBackend{pgQuerier: pgQuerier{q: pool}, pool: pool}, now: time.Now}, nil
}

// OpenSQLite opens (creating if needed) an SQLite database file.
func OpenSQLite(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer; also keeps :memory: databases on a single connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &DB{b: &sqlBackend{sqlQuerier: sqlQuerier{q: sqlDB}, db: sqlDB}, now: time.Now}, nil
}

// Close closes the underlying connections
func (db *DB) Close() {
	if db.b != nil {
		db.b.Close()
	}
}

// Driver reports which backend is in use.
func (db *DB) Driver() string {
	return db.b.Dialect()
}

// Migrate creates every table and index if missing.
func (db *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.b.Dialect() == DriverPostgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.b.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (db *DB) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := db.b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return db.now().UTC()
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

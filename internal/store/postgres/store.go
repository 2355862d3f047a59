// Package postgres provides the Postgres-backed record store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secwatch/secfeeds/internal/feed"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// db is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type db interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store persists records in the feeds table. Link uniqueness is the dedup
// mechanism: a colliding insert is a no-op and the first write wins.
type Store struct {
	db db
}

// New connects a Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: pool}, nil
}

// NewWithDB constructs a Store from an existing pool (primarily for testing).
func NewWithDB(db db) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// Ensure creates the feeds table and its indexes if they do not exist.
func (s *Store) Ensure(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS feeds (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			title TEXT NOT NULL,
			link TEXT NOT NULL UNIQUE,
			pub_date TIMESTAMPTZ NOT NULL,
			source TEXT NOT NULL,
			category TEXT NOT NULL,
			description TEXT,
			advisory_number TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_pub_date ON feeds (pub_date)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_source ON feeds (source)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_advisory_number ON feeds (advisory_number)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Transact runs fn inside one transaction. The cycle's prune and inserts
// commit together or, on any store error, not at all.
func (s *Store) Transact(ctx context.Context, fn func(feed.RecordWriter) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cycle transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&txWriter{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cycle transaction: %w", err)
	}
	return nil
}

// txWriter implements feed.RecordWriter over one open transaction.
type txWriter struct {
	tx pgx.Tx
}

const insertQuery = `
INSERT INTO feeds (title, link, pub_date, source, category, description, advisory_number)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (link) DO NOTHING`

// InsertIfAbsent writes the record unless its link already exists and reports
// whether a new row was written.
func (w *txWriter) InsertIfAbsent(ctx context.Context, rec feed.Record) (bool, error) {
	tag, err := w.tx.Exec(ctx, insertQuery,
		rec.Title,
		rec.Link,
		rec.PublishedAt,
		rec.Source,
		string(rec.Category),
		nullable(rec.Description),
		nullable(rec.AdvisoryNumber),
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Prune deletes records published before cutoff.
func (w *txWriter) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := w.tx.Exec(ctx, `DELETE FROM feeds WHERE pub_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

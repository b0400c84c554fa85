// Package postgres persists history rows in a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/noticewatch/internal/history"
	"github.com/JakeFAU/noticewatch/internal/ingest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for history rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Backend keeps one row per identity. Position records the saved order.
type Backend struct {
	pool  pool
	table string
}

// New connects to Postgres and makes sure the history table exists.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := b.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return b, nil
}

// NewWithPool constructs a backend from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Backend, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "notices"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Backend{pool: p, table: table}, nil
}

// EnsureSchema creates the history table when missing.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	identity TEXT PRIMARY KEY,
	position BIGINT NOT NULL,
	record JSONB NOT NULL
)`, b.table)
	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (b *Backend) Close() {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.Close()
}

// Load reads every row in saved order.
func (b *Backend) Load(ctx context.Context) (*history.Store, error) {
	rows, err := b.pool.Query(ctx, fmt.Sprintf("SELECT identity, record FROM %s ORDER BY position", b.table))
	if err != nil {
		return nil, &ingest.StoreLoadError{Err: fmt.Errorf("query history: %w", err)}
	}
	defer rows.Close()

	store := history.NewStore()
	for rows.Next() {
		var (
			identity string
			raw      []byte
		)
		if err := rows.Scan(&identity, &raw); err != nil {
			return nil, &ingest.StoreLoadError{Err: fmt.Errorf("scan history row: %w", err)}
		}
		rec, err := history.DecodeRecord(identity, raw)
		if err != nil {
			return nil, &ingest.StoreLoadError{Err: err}
		}
		store.Put(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &ingest.StoreLoadError{Err: fmt.Errorf("iterate history rows: %w", err)}
	}
	return store, nil
}

// Save replaces the table contents in one transaction.
func (b *Backend) Save(ctx context.Context, store *history.Store) (err error) {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return &ingest.StoreSaveError{Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = &ingest.StoreSaveError{Err: fmt.Errorf("%w (rollback: %v)", errors.Unwrap(err), rbErr)}
		}
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", b.table)); err != nil {
		return &ingest.StoreSaveError{Err: fmt.Errorf("clear history: %w", err)}
	}
	insert := fmt.Sprintf("INSERT INTO %s (identity, position, record) VALUES ($1, $2, $3)", b.table)
	for i, rec := range history.Ordered(store) {
		raw, err := history.EncodeRecord(rec)
		if err != nil {
			return &ingest.StoreSaveError{Err: err}
		}
		if _, err := tx.Exec(ctx, insert, rec.Identity, int64(i), raw); err != nil {
			return &ingest.StoreSaveError{Err: fmt.Errorf("insert %q: %w", rec.Identity, err)}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return &ingest.StoreSaveError{Err: fmt.Errorf("commit history: %w", err)}
	}
	return nil
}

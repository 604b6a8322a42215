package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL driver, registered as "postgres".
	_ "github.com/lib/pq"

	"github.com/confplan-io/confplan/migrations"
)

// pingTimeout bounds the connectivity probe performed on connect.
const pingTimeout = 5 * time.Second

// Connection wraps a pooled *sql.DB with the configured pool limits. It is
// shared by the conference store and the migration runner.
type Connection struct {
	db  *sql.DB
	dsn string
}

// NewConnection opens a pooled connection to the given URL and verifies
// connectivity with a bounded ping.
func NewConnection(ctx context.Context, cfg *Config, databaseURL string) (*Connection, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("pinging %s: %w", migrations.MaskDatabaseURL(databaseURL), err)
	}

	return &Connection{db: db, dsn: databaseURL}, nil
}

// DB exposes the underlying pool for components that need the raw handle,
// such as the migration runner.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// ExecContext runs a statement that returns no rows.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a query that returns rows.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a query expected to return at most one row.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (c *Connection) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	return tx, nil
}

// Close shuts the pool down. Safe to call multiple times.
func (c *Connection) Close() error {
	if c.db == nil {
		return nil
	}

	return c.db.Close()
}

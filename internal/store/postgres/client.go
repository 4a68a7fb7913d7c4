// Package postgres implements the planned-trade ledger using PostgreSQL via
// pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientConfig holds connection parameters for the PostgreSQL client.
type ClientConfig struct {
	DSN      string
	MaxConns int
	MinConns int
}

// Client wraps a pgxpool.Pool and bootstraps the ledger schema.
type Client struct {
	pool *pgxpool.Pool
}

// New creates a new Client with a connection pool configured from cfg and
// verifies connectivity.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Client{pool: pool}, nil
}

// Migrate creates the ledger table if it does not exist.
func (c *Client) Migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS trades_planned (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL DEFAULT now(),
			idem_key TEXT NOT NULL UNIQUE,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			sl_price DOUBLE PRECISION NOT NULL,
			tp_price DOUBLE PRECISION NOT NULL
		)`
	if _, err := c.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: migrate trades_planned: %w", err)
	}
	return nil
}

// Pool returns the underlying connection pool for stores.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close closes the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

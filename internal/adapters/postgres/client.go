package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"govdash/internal/adapters/config"
	"govdash/pkg/errors"
)

// Client wraps sqlx.DB for PostgreSQL operations
type Client struct {
	db *sqlx.DB
}

// NewClient creates a new PostgreSQL client with connection pooling
func NewClient(cfg config.PostgresConfig) (*Client, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(max(1, maxConns/2))
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping postgres")
	}

	return &Client{db: db}, nil
}

// DB returns the underlying sqlx.DB instance
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Health checks database connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Migrate creates the tables the dashboard writes to
func (c *Client) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}

// Schema holds idempotent DDL statements, applied in order
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS topic_snapshots (
		id         BIGSERIAL PRIMARY KEY,
		network    TEXT        NOT NULL,
		request_id BIGINT      NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL,
		payload    JSONB       NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS topic_snapshots_network_fetched_at
		ON topic_snapshots (network, fetched_at DESC)`,
}

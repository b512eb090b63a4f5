// Package database opens the SQL database backing the run journal. Both
// PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite) are supported; queries
// are written with PostgreSQL-style $n placeholders and rebound per driver.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Adithya-Monish-Kumar-K/mir/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/mir/pkg/resilience"
)

type Client struct {
	DB     *sql.DB
	driver string
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

func Open(ctx context.Context, cfg config.JournalConfig) (*Client, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	err = resilience.Retry(ctx, "journal-ping", resilience.RetryConfig{}, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", cfg.Driver, err)
	}
	return &Client{DB: db, driver: cfg.Driver}, nil
}

// Rebind rewrites $n placeholders into the form the driver expects.
func (c *Client) Rebind(query string) string {
	if c.driver == "sqlite" {
		return placeholder.ReplaceAllString(query, "?$1")
	}
	return query
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

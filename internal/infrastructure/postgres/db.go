// Package postgres stores orders and the menu in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brewtopia/cafepos/internal/infrastructure/migrate"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	maxConnectAttempts = 10
	retryDelay         = 2 * time.Second
	pingTimeout        = 5 * time.Second

	// migrationLockKey serializes migrations across replicas starting together.
	migrationLockKey = 7_305_011
)

var migrations = []migrate.Migration{
	{Version: "1.0.0", Up: schemaV1},
	{Version: "1.1.0", Up: schemaV1_1},
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS categories (
    id BIGINT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    sort_order INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS menu_items (
    id BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    price NUMERIC(12,2) NOT NULL CHECK (price > 0),
    is_veg BOOLEAN NOT NULL DEFAULT TRUE,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    category_id BIGINT NOT NULL REFERENCES categories(id)
);

CREATE TABLE IF NOT EXISTS orders (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    table_no INT NOT NULL CHECK (table_no > 0),
    total NUMERIC(14,2) NOT NULL,
    paid BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
    id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    position INT NOT NULL,
    menu_item_id BIGINT NOT NULL,
    quantity INT NOT NULL CHECK (quantity >= 1),
    unit_price NUMERIC(12,2) NOT NULL
);
`

const schemaV1_1 = `
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id, position);
CREATE INDEX IF NOT EXISTS idx_menu_items_category ON menu_items(category_id);
`

// Connect opens a pool and retries the initial ping while the database starts up.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse config: %w", err)
		}

		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = pool.Ping(pctx)
		cancel()
		if err == nil {
			return pool, nil
		}
		pool.Close()
		lastErr = err

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres: connect canceled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("postgres: unreachable after %d attempts: %w", maxConnectAttempts, lastErr)
}

// Migrate applies pending schema migrations, each in its own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("postgres: migration lock: %w", err)
	}
	defer func() { _, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, migrationLockKey) }()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("postgres: create schema_version: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_version`)
	if err != nil {
		return err
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}
	applied := make([]migrate.Migration, 0, len(versions))
	for _, v := range versions {
		applied = append(applied, migrate.Migration{Version: v})
	}
	current, err := migrate.Latest(applied)
	if err != nil {
		return err
	}

	pending, err := migrate.Pending(current, migrations)
	if err != nil {
		return err
	}
	for _, m := range pending {
		err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres: apply migration %s: %w", m.Version, err)
		}
	}
	return nil
}

// Money crosses the wire as text so NUMERIC values stay exact.
func numeric(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func parseNumeric(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: numeric %q: %w", s, err)
	}
	return d, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Every tier owns the same four tables in its own database.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id            UUID PRIMARY KEY,
		sku           TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL,
		unit_price    NUMERIC(12,2) NOT NULL,
		current_stock INTEGER NOT NULL DEFAULT 0,
		reserved_stock INTEGER NOT NULL DEFAULT 0,
		min_stock_level INTEGER NOT NULL DEFAULT 0,
		reorder_point INTEGER NOT NULL DEFAULT 0,
		reorder_quantity INTEGER NOT NULL DEFAULT 0,
		external_ref  TEXT,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_external_ref
		ON products (external_ref) WHERE external_ref IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS orders (
		id            UUID PRIMARY KEY,
		order_number  TEXT NOT NULL UNIQUE,
		order_type    TEXT NOT NULL,
		counterparty_order_number TEXT,
		status        TEXT NOT NULL,
		shipping_address TEXT NOT NULL DEFAULT '',
		total_amount  NUMERIC(12,2) NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id          BIGSERIAL PRIMARY KEY,
		order_id    UUID NOT NULL REFERENCES orders(id),
		line_no     INTEGER NOT NULL,
		product_id  UUID NOT NULL REFERENCES products(id),
		quantity    INTEGER NOT NULL,
		unit_price  NUMERIC(12,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_transactions (
		id               BIGSERIAL PRIMARY KEY,
		product_id       UUID NOT NULL REFERENCES products(id),
		transaction_type TEXT NOT NULL,
		quantity         INTEGER NOT NULL,
		reference        TEXT NOT NULL,
		transaction_date TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inventory_transactions_product
		ON inventory_transactions (product_id, transaction_date)`,
}

// Migrate creates the tier's tables if they are missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

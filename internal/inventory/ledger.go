package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tiercommerce/orders/internal/postgres"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Ledger owns the tier's product stock counters and the append-only
// inventory transaction log. Decrement/Increment must run inside the
// caller's transaction so stock and audit rows commit together.
type Ledger struct{ DB *pgxpool.Pool }

func (l *Ledger) db(ctx context.Context) dbtx {
	if tx := postgres.TxFrom(ctx); tx != nil {
		return tx
	}
	return l.DB
}

const productColumns = `id, sku, name, unit_price::text, current_stock, reserved_stock,
	min_stock_level, reorder_point, reorder_quantity, COALESCE(external_ref, ''),
	active, created_at, updated_at`

func (l *Ledger) GetProduct(ctx context.Context, id string) (Product, error) {
	return l.getWhere(ctx, `WHERE id = $1`, id)
}

// GetProductByExternalRef maps a downstream peer's product id to the local
// product.
func (l *Ledger) GetProductByExternalRef(ctx context.Context, ref string) (Product, error) {
	return l.getWhere(ctx, `WHERE external_ref = $1`, ref)
}

func (l *Ledger) getWhere(ctx context.Context, where string, arg any) (Product, error) {
	row := l.db(ctx).QueryRow(ctx, `SELECT `+productColumns+` FROM products `+where, arg)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (l *Ledger) ListProducts(ctx context.Context) ([]Product, error) {
	return l.listWhere(ctx, `WHERE active ORDER BY sku`)
}

// LowStock lists active products at or below their reorder point.
func (l *Ledger) LowStock(ctx context.Context) ([]Product, error) {
	return l.listWhere(ctx, `WHERE active AND current_stock <= reorder_point ORDER BY sku`)
}

func (l *Ledger) listWhere(ctx context.Context, where string) ([]Product, error) {
	rows, err := l.db(ctx).Query(ctx, `SELECT `+productColumns+` FROM products `+where)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CheckAvailability is a pure read, no side effect.
func (l *Ledger) CheckAvailability(ctx context.Context, productID string, qty int) (Availability, error) {
	p, err := l.GetProduct(ctx, productID)
	if err != nil {
		return Availability{}, err
	}
	av := Availability{AvailableStock: p.AvailableStock()}
	if av.AvailableStock >= qty {
		av.Available = true
	} else {
		av.Shortfall = qty - av.AvailableStock
	}
	return av, nil
}

// NeedsReorder is an advisory signal only, consumed by reporting.
func (l *Ledger) NeedsReorder(ctx context.Context, productID string) (bool, error) {
	p, err := l.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	return p.CurrentStock <= p.ReorderPoint, nil
}

// Decrement locks the product row, checks current stock covers qty, mutates
// the counter and appends one OUT transaction. Fails with
// *InsufficientStockError without touching anything when short.
func (l *Ledger) Decrement(ctx context.Context, productID string, qty int, reference string) error {
	q := l.db(ctx)

	var stock int
	err := q.QueryRow(ctx, `SELECT current_stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return ErrProductNotFound
		}
		return fmt.Errorf("lock product: %w", err)
	}
	if stock < qty {
		return &InsufficientStockError{ProductID: productID, Available: stock, Required: qty}
	}

	if _, err := q.Exec(ctx,
		`UPDATE products SET current_stock = current_stock - $2, updated_at = $3 WHERE id = $1`,
		productID, qty, time.Now().UTC()); err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return l.appendTransaction(ctx, productID, TransactionOut, qty, reference)
}

// Increment locks the product row, mutates the counter and appends one IN
// transaction.
func (l *Ledger) Increment(ctx context.Context, productID string, qty int, reference string) error {
	q := l.db(ctx)

	var stock int
	err := q.QueryRow(ctx, `SELECT current_stock FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return ErrProductNotFound
		}
		return fmt.Errorf("lock product: %w", err)
	}

	if _, err := q.Exec(ctx,
		`UPDATE products SET current_stock = current_stock + $2, updated_at = $3 WHERE id = $1`,
		productID, qty, time.Now().UTC()); err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return l.appendTransaction(ctx, productID, TransactionIn, qty, reference)
}

// AdjustStock applies an explicit operator adjustment.
func (l *Ledger) AdjustStock(ctx context.Context, productID string, typ TransactionType, qty int, reference string) error {
	switch typ {
	case TransactionIn:
		return l.Increment(ctx, productID, qty, reference)
	case TransactionOut:
		return l.Decrement(ctx, productID, qty, reference)
	default:
		return fmt.Errorf("unknown transaction type %q", typ)
	}
}

// Deactivate retires a product; ledger entries never delete product rows.
func (l *Ledger) Deactivate(ctx context.Context, productID string) error {
	ct, err := l.db(ctx).Exec(ctx,
		`UPDATE products SET active = FALSE, updated_at = $2 WHERE id = $1`,
		productID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrProductNotFound
	}
	return nil
}

// Transactions returns the audit log for a product in transaction_date order.
func (l *Ledger) Transactions(ctx context.Context, productID string) ([]Transaction, error) {
	rows, err := l.db(ctx).Query(ctx, `
		SELECT id, product_id, transaction_type, quantity, reference, transaction_date
		FROM inventory_transactions
		WHERE product_id = $1 ORDER BY transaction_date, id`, productID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var typ string
		if err := rows.Scan(&t.ID, &t.ProductID, &typ, &t.Quantity, &t.Reference, &t.TransactionDate); err != nil {
			return nil, err
		}
		t.Type = TransactionType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (l *Ledger) appendTransaction(ctx context.Context, productID string, typ TransactionType, qty int, reference string) error {
	_, err := l.db(ctx).Exec(ctx, `
		INSERT INTO inventory_transactions (product_id, transaction_type, quantity, reference, transaction_date)
		VALUES ($1, $2, $3, $4, $5)`,
		productID, string(typ), qty, reference, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append inventory transaction: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var price string
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &price, &p.CurrentStock, &p.ReservedStock,
		&p.MinStockLevel, &p.ReorderPoint, &p.ReorderQuantity, &p.ExternalRef,
		&p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.UnitPrice, err = decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("parse unit price: %w", err)
	}
	return p, nil
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

package orders

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

// Repo owns the tier's order header + line item tables.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.WithTx(ctx, r.DB, fn)
}

func (r *Repo) db(ctx context.Context) dbtx {
	if tx := postgres.TxFrom(ctx); tx != nil {
		return tx
	}
	return r.DB
}

// Insert writes the order and its lines. Joins the caller's transaction.
func (r *Repo) Insert(ctx context.Context, o Order) error {
	q := r.db(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO orders (id, order_number, order_type, counterparty_order_number,
		                    status, shipping_address, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7::numeric, $8, $8)`,
		o.ID, o.OrderNumber, string(o.Type), o.CounterpartyOrderNumber,
		string(o.Status), o.ShippingAddress, o.TotalAmount.String(), o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, it := range o.Items {
		_, err := q.Exec(ctx, `
			INSERT INTO order_items (order_id, line_no, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5::numeric)`,
			o.ID, i+1, it.ProductID, it.Quantity, it.UnitPrice.String(),
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

const orderColumns = `id, order_number, order_type, COALESCE(counterparty_order_number, ''),
	status, shipping_address, total_amount::text, created_at, updated_at`

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	return r.getWhere(ctx, `WHERE id = $1`, id)
}

func (r *Repo) GetByNumber(ctx context.Context, number string) (Order, error) {
	return r.getWhere(ctx, `WHERE order_number = $1`, number)
}

// GetForUpdate row-locks the order header so concurrent accepts serialize.
func (r *Repo) GetForUpdate(ctx context.Context, id string) (Order, error) {
	return r.getWhere(ctx, `WHERE id = $1 FOR UPDATE`, id)
}

func (r *Repo) GetByNumberForUpdate(ctx context.Context, number string) (Order, error) {
	return r.getWhere(ctx, `WHERE order_number = $1 FOR UPDATE`, number)
}

func (r *Repo) getWhere(ctx context.Context, where string, arg any) (Order, error) {
	row := r.db(ctx).QueryRow(ctx, `SELECT `+orderColumns+` FROM orders `+where, arg)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	items, err := r.loadItems(ctx, o.ID)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

func (r *Repo) loadItems(ctx context.Context, orderID string) ([]LineItem, error) {
	rows, err := r.db(ctx).Query(ctx, `
		SELECT product_id, quantity, unit_price::text
		FROM order_items WHERE order_id = $1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var it LineItem
		var price string
		if err := rows.Scan(&it.ProductID, &it.Quantity, &price); err != nil {
			return nil, err
		}
		it.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repo) UpdateStatus(ctx context.Context, id string, st Status) error {
	ct, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(st), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

// SetCounterparty stores the order number the upstream tier assigned to a
// forwarded order.
func (r *Repo) SetCounterparty(ctx context.Context, id, number string) error {
	ct, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET counterparty_order_number = $2, updated_at = $3 WHERE id = $1`,
		id, number, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set counterparty: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) List(ctx context.Context) ([]Order, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var typ, status, total string
	err := row.Scan(&o.ID, &o.OrderNumber, &typ, &o.CounterpartyOrderNumber,
		&status, &o.ShippingAddress, &total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.Type = OrderType(typ)
	o.Status = Status(status)
	o.TotalAmount, err = decimal.NewFromString(total)
	if err != nil {
		return Order{}, fmt.Errorf("parse total: %w", err)
	}
	return o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

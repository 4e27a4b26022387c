// Package tiertest provides in-memory fakes for the tier service's
// dependencies. Store and Ledger share one DB so a rolled back
// transaction restores orders, stock and the audit log together.
package tiertest

import (
	"context"
	"time"

	"github.com/tiercommerce/orders/internal/inventory"
	"github.com/tiercommerce/orders/internal/orders"
	"github.com/tiercommerce/orders/internal/peerapi"
)

type DB struct {
	Orders   map[string]orders.Order      // by id
	Products map[string]inventory.Product // by id
	Txns     []inventory.Transaction
}

func NewDB() *DB {
	return &DB{
		Orders:   map[string]orders.Order{},
		Products: map[string]inventory.Product{},
	}
}

func (d *DB) AddProduct(p inventory.Product) { d.Products[p.ID] = p }

func (d *DB) clone() *DB {
	c := NewDB()
	for k, v := range d.Orders {
		c.Orders[k] = cloneOrder(v)
	}
	for k, v := range d.Products {
		c.Products[k] = v
	}
	c.Txns = append([]inventory.Transaction(nil), d.Txns...)
	return c
}

func cloneOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.LineItem(nil), o.Items...)
	return o
}

// Store implements tier.OrderStore.
type Store struct{ DB *DB }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := s.DB.clone()
	if err := fn(ctx); err != nil {
		*s.DB = *snap
		return err
	}
	return nil
}

func (s *Store) Insert(_ context.Context, o orders.Order) error {
	for _, existing := range s.DB.Orders {
		if existing.OrderNumber == o.OrderNumber {
			return orders.ErrAlreadyExists
		}
	}
	s.DB.Orders[o.ID] = cloneOrder(o)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (orders.Order, error) {
	o, ok := s.DB.Orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) GetByNumber(_ context.Context, number string) (orders.Order, error) {
	for _, o := range s.DB.Orders {
		if o.OrderNumber == number {
			return cloneOrder(o), nil
		}
	}
	return orders.Order{}, orders.ErrNotFound
}

func (s *Store) GetForUpdate(ctx context.Context, id string) (orders.Order, error) {
	return s.Get(ctx, id)
}

func (s *Store) GetByNumberForUpdate(ctx context.Context, number string) (orders.Order, error) {
	return s.GetByNumber(ctx, number)
}

func (s *Store) UpdateStatus(_ context.Context, id string, st orders.Status) error {
	o, ok := s.DB.Orders[id]
	if !ok {
		return orders.ErrNotFound
	}
	o.Status = st
	o.UpdatedAt = time.Now().UTC()
	s.DB.Orders[id] = o
	return nil
}

func (s *Store) SetCounterparty(_ context.Context, id, number string) error {
	o, ok := s.DB.Orders[id]
	if !ok {
		return orders.ErrNotFound
	}
	o.CounterpartyOrderNumber = number
	s.DB.Orders[id] = o
	return nil
}

func (s *Store) List(_ context.Context) ([]orders.Order, error) {
	out := make([]orders.Order, 0, len(s.DB.Orders))
	for _, o := range s.DB.Orders {
		out = append(out, cloneOrder(o))
	}
	return out, nil
}

// Ledger implements tier.Ledger.
type Ledger struct{ DB *DB }

func (l *Ledger) GetProduct(_ context.Context, id string) (inventory.Product, error) {
	p, ok := l.DB.Products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (l *Ledger) GetProductByExternalRef(_ context.Context, ref string) (inventory.Product, error) {
	for _, p := range l.DB.Products {
		if p.ExternalRef == ref {
			return p, nil
		}
	}
	return inventory.Product{}, inventory.ErrProductNotFound
}

func (l *Ledger) ListProducts(_ context.Context) ([]inventory.Product, error) {
	var out []inventory.Product
	for _, p := range l.DB.Products {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *Ledger) LowStock(_ context.Context) ([]inventory.Product, error) {
	var out []inventory.Product
	for _, p := range l.DB.Products {
		if p.Active && p.CurrentStock <= p.ReorderPoint {
			out = append(out, p)
		}
	}
	return out, nil
}

func (l *Ledger) CheckAvailability(ctx context.Context, productID string, qty int) (inventory.Availability, error) {
	p, err := l.GetProduct(ctx, productID)
	if err != nil {
		return inventory.Availability{}, err
	}
	av := inventory.Availability{AvailableStock: p.AvailableStock()}
	if av.AvailableStock >= qty {
		av.Available = true
	} else {
		av.Shortfall = qty - av.AvailableStock
	}
	return av, nil
}

func (l *Ledger) NeedsReorder(ctx context.Context, productID string) (bool, error) {
	p, err := l.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	return p.CurrentStock <= p.ReorderPoint, nil
}

func (l *Ledger) Decrement(_ context.Context, productID string, qty int, reference string) error {
	p, ok := l.DB.Products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if p.CurrentStock < qty {
		return &inventory.InsufficientStockError{ProductID: productID, Available: p.CurrentStock, Required: qty}
	}
	p.CurrentStock -= qty
	l.DB.Products[productID] = p
	l.append(productID, inventory.TransactionOut, qty, reference)
	return nil
}

func (l *Ledger) Increment(_ context.Context, productID string, qty int, reference string) error {
	p, ok := l.DB.Products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.CurrentStock += qty
	l.DB.Products[productID] = p
	l.append(productID, inventory.TransactionIn, qty, reference)
	return nil
}

func (l *Ledger) AdjustStock(ctx context.Context, productID string, typ inventory.TransactionType, qty int, reference string) error {
	if typ == inventory.TransactionIn {
		return l.Increment(ctx, productID, qty, reference)
	}
	return l.Decrement(ctx, productID, qty, reference)
}

func (l *Ledger) Deactivate(_ context.Context, productID string) error {
	p, ok := l.DB.Products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.Active = false
	l.DB.Products[productID] = p
	return nil
}

func (l *Ledger) Transactions(_ context.Context, productID string) ([]inventory.Transaction, error) {
	var out []inventory.Transaction
	for _, txn := range l.DB.Txns {
		if txn.ProductID == productID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (l *Ledger) append(productID string, typ inventory.TransactionType, qty int, reference string) {
	l.DB.Txns = append(l.DB.Txns, inventory.Transaction{
		ID:              int64(len(l.DB.Txns) + 1),
		ProductID:       productID,
		Type:            typ,
		Quantity:        qty,
		Reference:       reference,
		TransactionDate: time.Now().UTC(),
	})
}

// Forwarder implements tier.Forwarder.
type Forwarder struct {
	Number   string
	Err      error
	Requests []peerapi.CreateOrderRequest
}

func (f *Forwarder) Forward(_ context.Context, req peerapi.CreateOrderRequest) (string, error) {
	f.Requests = append(f.Requests, req)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Number, nil
}

// Notifier implements tier.Notifier.
type Notifier struct {
	Err   error
	Calls []string
}

func (n *Notifier) OrderAccepted(_ context.Context, peerOrderNumber string) error {
	n.Calls = append(n.Calls, peerOrderNumber)
	return n.Err
}

// Dedup implements tier.Deduper.
type Dedup struct{ Marked map[string]bool }

func NewDedup() *Dedup { return &Dedup{Marked: map[string]bool{}} }

func (d *Dedup) Seen(_ context.Context, orderNumber string) (bool, error) {
	return d.Marked[orderNumber], nil
}

func (d *Dedup) Mark(_ context.Context, orderNumber string) error {
	d.Marked[orderNumber] = true
	return nil
}

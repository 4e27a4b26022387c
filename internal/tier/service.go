// Package tier implements the order state machine shared by the seller,
// distributor and manufacturer services: status transitions, their coupled
// inventory effects, and the cross-tier forwarding/notification hops.
package tier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tiercommerce/orders/internal/inventory"
	"github.com/tiercommerce/orders/internal/orders"
	"github.com/tiercommerce/orders/internal/peerapi"
)

var (
	ErrEmptyOrder       = errors.New("order has no line items")
	ErrInvalidQuantity  = errors.New("line item quantity must be positive")
	ErrUpstreamRejected = errors.New("upstream rejected order")
)

// OrderStore is the tier's own order table. WithTx scopes one ACID
// transaction; every other method joins the transaction carried by ctx.
type OrderStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Insert(ctx context.Context, o orders.Order) error
	Get(ctx context.Context, id string) (orders.Order, error)
	GetByNumber(ctx context.Context, number string) (orders.Order, error)
	GetForUpdate(ctx context.Context, id string) (orders.Order, error)
	GetByNumberForUpdate(ctx context.Context, number string) (orders.Order, error)
	UpdateStatus(ctx context.Context, id string, st orders.Status) error
	SetCounterparty(ctx context.Context, id, number string) error
	List(ctx context.Context) ([]orders.Order, error)
}

// Ledger is the tier's stock counters and audit log. Decrement and
// Increment must run inside the caller's transaction.
type Ledger interface {
	GetProduct(ctx context.Context, id string) (inventory.Product, error)
	GetProductByExternalRef(ctx context.Context, ref string) (inventory.Product, error)
	ListProducts(ctx context.Context) ([]inventory.Product, error)
	LowStock(ctx context.Context) ([]inventory.Product, error)
	CheckAvailability(ctx context.Context, productID string, qty int) (inventory.Availability, error)
	NeedsReorder(ctx context.Context, productID string) (bool, error)
	Decrement(ctx context.Context, productID string, qty int, reference string) error
	Increment(ctx context.Context, productID string, qty int, reference string) error
	AdjustStock(ctx context.Context, productID string, typ inventory.TransactionType, qty int, reference string) error
	Deactivate(ctx context.Context, productID string) error
	Transactions(ctx context.Context, productID string) ([]inventory.Transaction, error)
}

// Forwarder creates the mirror order at the upstream tier during local
// order creation.
type Forwarder interface {
	Forward(ctx context.Context, req peerapi.CreateOrderRequest) (orderNumber string, err error)
}

// Notifier is the fire-and-forget acceptance callback to the downstream
// peer. Failures are logged by the service and never revert local state.
type Notifier interface {
	OrderAccepted(ctx context.Context, peerOrderNumber string) error
}

// Deduper short-circuits repeated acceptance callbacks. Best effort; the
// order status check inside the transaction is the real guard.
type Deduper interface {
	Seen(ctx context.Context, orderNumber string) (bool, error)
	Mark(ctx context.Context, orderNumber string) error
}

type Config struct {
	// Tier prefixes order numbers: SELLER, DISTRIBUTOR or MANUFACTURER.
	Tier string
	// LocalType tags orders created at this tier by an operator/customer.
	LocalType orders.OrderType
	// PeerType tags orders created through the peer endpoint; only those
	// carry the downstream peer's order number and get notified on accept.
	PeerType orders.OrderType
}

type Service struct {
	cfg      Config
	store    OrderStore
	ledger   Ledger
	fwd      Forwarder // nil when the tier has no upstream
	notifier Notifier  // nil when orders originate from customers
	dedup    Deduper   // nil disables the fast path
	log      *zap.Logger
}

func NewService(cfg Config, store OrderStore, ledger Ledger, fwd Forwarder, ntf Notifier, dedup Deduper, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, store: store, ledger: ledger, fwd: fwd, notifier: ntf, dedup: dedup, log: log}
}

type ItemInput struct {
	ProductID string
	Quantity  int
}

type CreateInput struct {
	Items           []ItemInput
	ShippingAddress string
}

// Create persists a Pending order priced from this tier's own price list.
// When the tier has an upstream, the mirror order is forwarded inside the
// same transaction: if the upstream refuses, the local order must not
// exist, so the whole creation rolls back with ErrUpstreamRejected.
// Inventory is never touched here.
func (s *Service) Create(ctx context.Context, in CreateInput) (orders.Order, error) {
	if len(in.Items) == 0 {
		return orders.Order{}, ErrEmptyOrder
	}

	now := time.Now().UTC()
	o := orders.Order{
		ID:              uuid.NewString(),
		OrderNumber:     orders.NewOrderNumber(s.cfg.Tier, now),
		Type:            s.cfg.LocalType,
		Status:          orders.StatusPending,
		ShippingAddress: in.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		fwdItems := make([]peerapi.OrderItem, 0, len(in.Items))
		for _, it := range in.Items {
			if it.Quantity <= 0 {
				return ErrInvalidQuantity
			}
			p, err := s.ledger.GetProduct(txCtx, it.ProductID)
			if err != nil {
				return err
			}
			o.Items = append(o.Items, orders.LineItem{
				ProductID: p.ID,
				Quantity:  it.Quantity,
				UnitPrice: p.UnitPrice,
			})
			fwdItems = append(fwdItems, peerapi.OrderItem{ProductRef: p.ID, Quantity: it.Quantity})
		}
		o.TotalAmount = orders.Total(o.Items)

		if err := s.store.Insert(txCtx, o); err != nil {
			return err
		}

		if s.fwd != nil {
			upstreamNumber, err := s.fwd.Forward(ctx, peerapi.CreateOrderRequest{
				CounterpartyOrderNumber: o.OrderNumber,
				ShippingAddress:         in.ShippingAddress,
				Items:                   fwdItems,
			})
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUpstreamRejected, err)
			}
			o.CounterpartyOrderNumber = upstreamNumber
			if err := s.store.SetCounterparty(txCtx, o.ID, upstreamNumber); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

type CreateFromPeerInput struct {
	Items                   []peerapi.OrderItem
	CounterpartyOrderNumber string
	ShippingAddress         string
}

// CreateFromPeer handles the downstream tier's forward. Product refs map
// to local products through the tier join key, totals come from this
// tier's own price list — never the caller's — and nothing touches stock.
func (s *Service) CreateFromPeer(ctx context.Context, in CreateFromPeerInput) (orders.Order, error) {
	if len(in.Items) == 0 {
		return orders.Order{}, ErrEmptyOrder
	}

	now := time.Now().UTC()
	o := orders.Order{
		ID:                      uuid.NewString(),
		OrderNumber:             orders.NewOrderNumber(s.cfg.Tier, now),
		Type:                    s.cfg.PeerType,
		CounterpartyOrderNumber: in.CounterpartyOrderNumber,
		Status:                  orders.StatusPending,
		ShippingAddress:         in.ShippingAddress,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		for _, it := range in.Items {
			if it.Quantity <= 0 {
				return ErrInvalidQuantity
			}
			p, err := s.ledger.GetProductByExternalRef(txCtx, it.ProductRef)
			if err != nil {
				return err
			}
			o.Items = append(o.Items, orders.LineItem{
				ProductID: p.ID,
				Quantity:  it.Quantity,
				UnitPrice: p.UnitPrice,
			})
		}
		o.TotalAmount = orders.Total(o.Items)
		return s.store.Insert(txCtx, o)
	})
	if err != nil {
		return orders.Order{}, err
	}
	return o, nil
}

// Accept is legal only from Pending. Stock is checked and decremented line
// by line inside one transaction — any short line aborts the whole accept
// with nothing applied. Only after the commit does the notifier fire; a
// notification failure is logged and swallowed, never reverting the
// already-committed acceptance.
func (s *Service) Accept(ctx context.Context, orderID string) (orders.Order, error) {
	var result orders.Order
	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.store.GetForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(o.Status, orders.StatusAccepted) {
			return orders.ErrInvalidTransition
		}

		// Duplicate product lines stay independent: each checks and
		// decrements on its own, in the order supplied.
		for _, it := range o.Items {
			if err := s.ledger.Decrement(txCtx, it.ProductID, it.Quantity, o.OrderNumber); err != nil {
				return err
			}
		}

		if err := s.store.UpdateStatus(txCtx, o.ID, orders.StatusAccepted); err != nil {
			return err
		}
		o.Status = orders.StatusAccepted
		result = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	if s.notifier != nil && result.Type == s.cfg.PeerType && result.CounterpartyOrderNumber != "" {
		if nerr := s.notifier.OrderAccepted(ctx, result.CounterpartyOrderNumber); nerr != nil {
			s.log.Warn("acceptance notification failed",
				zap.String("order_number", result.OrderNumber),
				zap.String("peer_order_number", result.CounterpartyOrderNumber),
				zap.Error(nerr),
			)
		}
	}
	return result, nil
}

// Cancel is legal only from Pending. Nothing was reserved, so there is no
// inventory effect.
func (s *Service) Cancel(ctx context.Context, orderID string) (orders.Order, error) {
	var result orders.Order
	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.store.GetForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if !orders.CanTransition(o.Status, orders.StatusCancelled) {
			return orders.ErrInvalidTransition
		}
		if err := s.store.UpdateStatus(txCtx, o.ID, orders.StatusCancelled); err != nil {
			return err
		}
		o.Status = orders.StatusCancelled
		result = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return result, nil
}

// ReconcileAccepted handles the peer's acceptance callback: the upstream
// accepted our order identified by our own order number. The order flips
// to Accepted and the committed goods land in stock, one IN ledger entry
// per line. Repeated callbacks are no-ops.
func (s *Service) ReconcileAccepted(ctx context.Context, orderNumber string) (orders.Order, error) {
	if s.dedup != nil {
		if seen, err := s.dedup.Seen(ctx, orderNumber); err == nil && seen {
			return s.store.GetByNumber(ctx, orderNumber)
		}
	}

	var result orders.Order
	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.store.GetByNumberForUpdate(txCtx, orderNumber)
		if err != nil {
			return err
		}
		if o.Status == orders.StatusAccepted {
			result = o // already reconciled, peer retried
			return nil
		}
		if !orders.CanTransition(o.Status, orders.StatusAccepted) {
			return orders.ErrInvalidTransition
		}

		for _, it := range o.Items {
			if err := s.ledger.Increment(txCtx, it.ProductID, it.Quantity, o.OrderNumber); err != nil {
				return err
			}
		}
		if err := s.store.UpdateStatus(txCtx, o.ID, orders.StatusAccepted); err != nil {
			return err
		}
		o.Status = orders.StatusAccepted
		result = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	if s.dedup != nil {
		if derr := s.dedup.Mark(ctx, orderNumber); derr != nil {
			s.log.Warn("dedup mark failed", zap.String("order_number", orderNumber), zap.Error(derr))
		}
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (orders.Order, error) {
	return s.store.Get(ctx, orderID)
}

func (s *Service) List(ctx context.Context) ([]orders.Order, error) {
	return s.store.List(ctx)
}

// CheckStock reports availability and, when the product sits at or below
// its reorder point, suggests the configured reorder quantity.
func (s *Service) CheckStock(ctx context.Context, productID string, qty int) (peerapi.CheckStockResponse, error) {
	if qty <= 0 {
		return peerapi.CheckStockResponse{}, ErrInvalidQuantity
	}
	av, err := s.ledger.CheckAvailability(ctx, productID, qty)
	if err != nil {
		return peerapi.CheckStockResponse{}, err
	}
	resp := peerapi.CheckStockResponse{
		IsAvailable:    av.Available,
		AvailableStock: av.AvailableStock,
	}
	if needs, err := s.ledger.NeedsReorder(ctx, productID); err == nil && needs {
		p, perr := s.ledger.GetProduct(ctx, productID)
		if perr == nil {
			resp.SuggestedReorderQuantity = p.ReorderQuantity
		}
	}
	return resp, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]inventory.Product, error) {
	return s.ledger.ListProducts(ctx)
}

func (s *Service) LowStockProducts(ctx context.Context) ([]inventory.Product, error) {
	return s.ledger.LowStock(ctx)
}

// AdjustStock applies an explicit operator stock adjustment in its own
// transaction so counter and audit row commit together.
func (s *Service) AdjustStock(ctx context.Context, productID string, typ inventory.TransactionType, qty int, reference string) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	return s.store.WithTx(ctx, func(txCtx context.Context) error {
		return s.ledger.AdjustStock(txCtx, productID, typ, qty, reference)
	})
}

// DeactivateProduct retires a product from the price list. Existing order
// lines and ledger history stay intact.
func (s *Service) DeactivateProduct(ctx context.Context, productID string) error {
	return s.ledger.Deactivate(ctx, productID)
}

// ProductTransactions returns the audit log for one product.
func (s *Service) ProductTransactions(ctx context.Context, productID string) ([]inventory.Transaction, error) {
	return s.ledger.Transactions(ctx, productID)
}

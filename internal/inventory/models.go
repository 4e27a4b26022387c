package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID            string
	SKU           string
	Name          string
	UnitPrice     decimal.Decimal
	CurrentStock  int
	ReservedStock int
	// Advisory thresholds, not enforced transactionally.
	MinStockLevel   int
	ReorderPoint    int
	ReorderQuantity int
	// ExternalRef is the tier join key: the product id the downstream peer
	// uses when it forwards order lines to this tier.
	ExternalRef string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AvailableStock is derived, never stored.
func (p Product) AvailableStock() int {
	return p.CurrentStock - p.ReservedStock
}

type TransactionType string

const (
	TransactionIn  TransactionType = "IN"
	TransactionOut TransactionType = "OUT"
)

// Transaction is one append-only audit record; the ledger writes exactly one
// per affected line item per accepted order.
type Transaction struct {
	ID              int64
	ProductID       string
	Type            TransactionType
	Quantity        int
	Reference       string
	TransactionDate time.Time
}

type Availability struct {
	Available      bool
	AvailableStock int
	Shortfall      int
}

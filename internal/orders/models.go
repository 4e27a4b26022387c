package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType disambiguates which counterpart an order represents.
type OrderType string

const (
	// TypeStandard is an order created at this tier by a customer/operator.
	TypeStandard OrderType = "STANDARD"
	// TypeFromSeller is a distributor order created by a seller's forward.
	TypeFromSeller OrderType = "FROM_SELLER"
	// TypeFromManufacturer is a distributor replenishment order that
	// originated a manufacturer order at creation time.
	TypeFromManufacturer OrderType = "FROM_MANUFACTURER"
	// TypeFromDistributor is a manufacturer order created by a distributor's forward.
	TypeFromDistributor OrderType = "FROM_DISTRIBUTOR"
)

type LineItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type Order struct {
	ID          string
	OrderNumber string
	Type        OrderType
	// CounterpartyOrderNumber correlates this order with the peer tier's
	// order: the caller's number on received orders, the upstream's number
	// on forwarded replenishment orders.
	CounterpartyOrderNumber string
	Status                  Status
	ShippingAddress         string
	TotalAmount             decimal.Decimal
	Items                   []LineItem
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Total sums quantity x unit price over the lines. Duplicate product lines
// are counted independently, in the order supplied.
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

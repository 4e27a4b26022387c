package tier_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercommerce/orders/internal/inventory"
	"github.com/tiercommerce/orders/internal/orders"
	"github.com/tiercommerce/orders/internal/peerapi"
	"github.com/tiercommerce/orders/internal/tier"
	"github.com/tiercommerce/orders/internal/tier/tiertest"
)

type world struct {
	db  *tiertest.DB
	fwd *tiertest.Forwarder
	ntf *tiertest.Notifier
	dd  *tiertest.Dedup
	svc *tier.Service
}

func newWorld(t *testing.T, cfg tier.Config, withFwd, withNtf bool) *world {
	t.Helper()
	w := &world{db: tiertest.NewDB(), dd: tiertest.NewDedup()}
	var fwd tier.Forwarder
	var ntf tier.Notifier
	if withFwd {
		w.fwd = &tiertest.Forwarder{Number: "DISTRIBUTOR-20260827-AAAA1111"}
		fwd = w.fwd
	}
	if withNtf {
		w.ntf = &tiertest.Notifier{}
		ntf = w.ntf
	}
	w.svc = tier.NewService(cfg,
		&tiertest.Store{DB: w.db},
		&tiertest.Ledger{DB: w.db},
		fwd, ntf, w.dd, nil)
	return w
}

func sellerWorld(t *testing.T, withFwd bool) *world {
	return newWorld(t, tier.Config{
		Tier:      "SELLER",
		LocalType: orders.TypeStandard,
		PeerType:  orders.TypeStandard,
	}, withFwd, false)
}

func distributorWorld(t *testing.T) *world {
	return newWorld(t, tier.Config{
		Tier:      "DISTRIBUTOR",
		LocalType: orders.TypeFromManufacturer,
		PeerType:  orders.TypeFromSeller,
	}, true, true)
}

func product(id, ref string, price string, stock int) inventory.Product {
	return inventory.Product{
		ID:              id,
		SKU:             "SKU-" + id,
		Name:            "product " + id,
		UnitPrice:       decimal.RequireFromString(price),
		CurrentStock:    stock,
		ReorderPoint:    5,
		ReorderQuantity: 50,
		ExternalRef:     ref,
		Active:          true,
	}
}

func TestCreateComputesTotalFromOwnPriceList(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 25))
	w.db.AddProduct(product("p2", "", "20.00", 25))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{
			{ProductID: "p1", Quantity: 5},
			{ProductID: "p2", Quantity: 3},
		},
		ShippingAddress: "12 Harbor St",
	})
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.TypeStandard, o.Type)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("110")),
		"got total %s", o.TotalAmount)

	// Creation never touches stock.
	assert.Equal(t, 25, w.db.Products["p1"].CurrentStock)
	assert.Empty(t, w.db.Txns)

	stored, err := w.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, stored.OrderNumber)
	require.Len(t, stored.Items, 2)
}

func TestCreateRejectsEmptyAndNonPositive(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 25))

	_, err := w.svc.Create(context.Background(), tier.CreateInput{})
	assert.ErrorIs(t, err, tier.ErrEmptyOrder)

	_, err = w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 0}},
	})
	assert.ErrorIs(t, err, tier.ErrInvalidQuantity)
	assert.Empty(t, w.db.Orders)
}

func TestCreateUnknownProduct(t *testing.T) {
	w := sellerWorld(t, false)

	_, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "ghost", Quantity: 1}},
	})
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
	assert.Empty(t, w.db.Orders)
}

func TestCreateForwardsUpstream(t *testing.T) {
	w := sellerWorld(t, true)
	w.db.AddProduct(product("p1", "", "10.00", 25))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items:           []tier.ItemInput{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: "12 Harbor St",
	})
	require.NoError(t, err)

	assert.Equal(t, "DISTRIBUTOR-20260827-AAAA1111", o.CounterpartyOrderNumber)
	stored := w.db.Orders[o.ID]
	assert.Equal(t, "DISTRIBUTOR-20260827-AAAA1111", stored.CounterpartyOrderNumber)

	require.Len(t, w.fwd.Requests, 1)
	req := w.fwd.Requests[0]
	assert.Equal(t, o.OrderNumber, req.CounterpartyOrderNumber)
	require.Len(t, req.Items, 1)
	assert.Equal(t, "p1", req.Items[0].ProductRef)
	assert.Equal(t, 2, req.Items[0].Quantity)
}

func TestCreateRollsBackWhenUpstreamRejects(t *testing.T) {
	w := sellerWorld(t, true)
	w.fwd.Err = errors.New("503 from upstream")
	w.db.AddProduct(product("p1", "", "10.00", 25))

	_, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 2}},
	})
	require.ErrorIs(t, err, tier.ErrUpstreamRejected)

	// The local order must not survive a refused forward.
	assert.Empty(t, w.db.Orders)
}

func TestCreateFromPeerMapsExternalRefs(t *testing.T) {
	w := distributorWorld(t)
	// Distributor product keyed by the seller's product id.
	w.db.AddProduct(product("d1", "p1", "8.00", 100))

	o, err := w.svc.CreateFromPeer(context.Background(), tier.CreateFromPeerInput{
		Items:                   []peerapi.OrderItem{{ProductRef: "p1", Quantity: 5}},
		CounterpartyOrderNumber: "SELLER-20260827-BBBB2222",
		ShippingAddress:         "12 Harbor St",
	})
	require.NoError(t, err)

	assert.Equal(t, orders.TypeFromSeller, o.Type)
	assert.Equal(t, "SELLER-20260827-BBBB2222", o.CounterpartyOrderNumber)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "d1", o.Items[0].ProductID)
	// Priced from the receiving tier's list, not the caller's.
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("40")))
	assert.Equal(t, 100, w.db.Products["d1"].CurrentStock)
}

func TestCreateFromPeerUnknownRef(t *testing.T) {
	w := distributorWorld(t)

	_, err := w.svc.CreateFromPeer(context.Background(), tier.CreateFromPeerInput{
		Items: []peerapi.OrderItem{{ProductRef: "nope", Quantity: 1}},
	})
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
	assert.Empty(t, w.db.Orders)
}

func TestAcceptDecrementsStockAndLogsOut(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 25))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 5}},
	})
	require.NoError(t, err)

	got, err := w.svc.Accept(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAccepted, got.Status)

	assert.Equal(t, 20, w.db.Products["p1"].CurrentStock)
	require.Len(t, w.db.Txns, 1)
	txn := w.db.Txns[0]
	assert.Equal(t, inventory.TransactionOut, txn.Type)
	assert.Equal(t, 5, txn.Quantity)
	assert.Equal(t, o.OrderNumber, txn.Reference)
}

func TestAcceptAllOrNothingOnShortLine(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 25))
	w.db.AddProduct(product("p2", "", "20.00", 4))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{
			{ProductID: "p1", Quantity: 5},
			{ProductID: "p2", Quantity: 5},
		},
	})
	require.NoError(t, err)

	_, err = w.svc.Accept(context.Background(), o.ID)
	var shortErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &shortErr)
	assert.Equal(t, "p2", shortErr.ProductID)
	assert.Equal(t, 4, shortErr.Available)
	assert.Equal(t, 5, shortErr.Required)

	// Nothing applied: the first line's decrement rolled back too.
	assert.Equal(t, 25, w.db.Products["p1"].CurrentStock)
	assert.Equal(t, 4, w.db.Products["p2"].CurrentStock)
	assert.Empty(t, w.db.Txns)
	assert.Equal(t, orders.StatusPending, w.db.Orders[o.ID].Status)
}

func TestAcceptDuplicateLinesChargeIndependently(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 5))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{
			{ProductID: "p1", Quantity: 3},
			{ProductID: "p1", Quantity: 4},
		},
	})
	require.NoError(t, err)

	// Line one leaves 2, line two needs 4: the second line is the one
	// reported short, and the whole accept rolls back.
	_, err = w.svc.Accept(context.Background(), o.ID)
	var shortErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &shortErr)
	assert.Equal(t, 2, shortErr.Available)
	assert.Equal(t, 4, shortErr.Required)
	assert.Equal(t, 5, w.db.Products["p1"].CurrentStock)
}

func TestAcceptTwiceIsInvalid(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 25))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = w.svc.Accept(context.Background(), o.ID)
	require.NoError(t, err)

	_, err = w.svc.Accept(context.Background(), o.ID)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)

	// Stock charged exactly once.
	assert.Equal(t, 20, w.db.Products["p1"].CurrentStock)
	assert.Len(t, w.db.Txns, 1)
}

func TestAcceptNotifiesPeerOrder(t *testing.T) {
	w := distributorWorld(t)
	w.db.AddProduct(product("d1", "p1", "8.00", 100))

	o, err := w.svc.CreateFromPeer(context.Background(), tier.CreateFromPeerInput{
		Items:                   []peerapi.OrderItem{{ProductRef: "p1", Quantity: 5}},
		CounterpartyOrderNumber: "SELLER-20260827-BBBB2222",
	})
	require.NoError(t, err)

	_, err = w.svc.Accept(context.Background(), o.ID)
	require.NoError(t, err)

	require.Len(t, w.ntf.Calls, 1)
	assert.Equal(t, "SELLER-20260827-BBBB2222", w.ntf.Calls[0])
}

func TestAcceptDoesNotNotifyLocalOrder(t *testing.T) {
	w := distributorWorld(t)
	w.db.AddProduct(product("d1", "p1", "8.00", 100))

	// Replenishment order created at this tier carries the manufacturer's
	// number, not a downstream peer's; accepting it must not call back.
	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "d1", Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = w.svc.Accept(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Empty(t, w.ntf.Calls)
}

func TestAcceptSurvivesNotifierFailure(t *testing.T) {
	w := distributorWorld(t)
	w.ntf.Err = errors.New("connection refused")
	w.db.AddProduct(product("d1", "p1", "8.00", 100))

	o, err := w.svc.CreateFromPeer(context.Background(), tier.CreateFromPeerInput{
		Items:                   []peerapi.OrderItem{{ProductRef: "p1", Quantity: 5}},
		CounterpartyOrderNumber: "SELLER-20260827-BBBB2222",
	})
	require.NoError(t, err)

	got, err := w.svc.Accept(context.Background(), o.ID)
	require.NoError(t, err)

	// Acceptance and its stock effect stay committed.
	assert.Equal(t, orders.StatusAccepted, got.Status)
	assert.Equal(t, orders.StatusAccepted, w.db.Orders[o.ID].Status)
	assert.Equal(t, 95, w.db.Products["d1"].CurrentStock)
	require.Len(t, w.ntf.Calls, 1)
}

func TestCancelHasNoInventoryEffect(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 25))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 5}},
	})
	require.NoError(t, err)

	got, err := w.svc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, 25, w.db.Products["p1"].CurrentStock)
	assert.Empty(t, w.db.Txns)
}

func TestCancelAcceptedIsInvalid(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 25))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 5}},
	})
	require.NoError(t, err)
	_, err = w.svc.Accept(context.Background(), o.ID)
	require.NoError(t, err)

	_, err = w.svc.Cancel(context.Background(), o.ID)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Equal(t, orders.StatusAccepted, w.db.Orders[o.ID].Status)
}

func TestAcceptAndCancelUnknownOrder(t *testing.T) {
	w := sellerWorld(t, false)

	_, err := w.svc.Accept(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, orders.ErrNotFound)
	_, err = w.svc.Cancel(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestReconcileAcceptedBringsGoodsIn(t *testing.T) {
	w := sellerWorld(t, true)
	w.db.AddProduct(product("p1", "", "10.00", 10))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 6}},
	})
	require.NoError(t, err)

	got, err := w.svc.ReconcileAccepted(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusAccepted, got.Status)

	assert.Equal(t, 16, w.db.Products["p1"].CurrentStock)
	require.Len(t, w.db.Txns, 1)
	assert.Equal(t, inventory.TransactionIn, w.db.Txns[0].Type)
	assert.Equal(t, o.OrderNumber, w.db.Txns[0].Reference)
	assert.True(t, w.dd.Marked[o.OrderNumber])
}

func TestReconcileAcceptedIsIdempotent(t *testing.T) {
	w := sellerWorld(t, true)
	w.db.AddProduct(product("p1", "", "10.00", 10))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 6}},
	})
	require.NoError(t, err)

	_, err = w.svc.ReconcileAccepted(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	got, err := w.svc.ReconcileAccepted(context.Background(), o.OrderNumber)
	require.NoError(t, err)

	assert.Equal(t, orders.StatusAccepted, got.Status)
	assert.Equal(t, 16, w.db.Products["p1"].CurrentStock)
	assert.Len(t, w.db.Txns, 1)
}

func TestReconcileAcceptedIdempotentWithoutDedup(t *testing.T) {
	db := tiertest.NewDB()
	db.AddProduct(product("p1", "", "10.00", 10))
	svc := tier.NewService(tier.Config{
		Tier:      "SELLER",
		LocalType: orders.TypeStandard,
		PeerType:  orders.TypeStandard,
	}, &tiertest.Store{DB: db}, &tiertest.Ledger{DB: db}, nil, nil, nil, nil)

	o, err := svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 6}},
	})
	require.NoError(t, err)

	// Even with the redis fast path disabled, the status check inside the
	// transaction keeps the retry from double-counting.
	_, err = svc.ReconcileAccepted(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	_, err = svc.ReconcileAccepted(context.Background(), o.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, 16, db.Products["p1"].CurrentStock)
	assert.Len(t, db.Txns, 1)
}

func TestReconcileAcceptedUnknownNumber(t *testing.T) {
	w := sellerWorld(t, false)
	_, err := w.svc.ReconcileAccepted(context.Background(), "SELLER-20260827-FFFFFFFF")
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestReconcileAcceptedCancelledOrder(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 10))

	o, err := w.svc.Create(context.Background(), tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 6}},
	})
	require.NoError(t, err)
	_, err = w.svc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)

	_, err = w.svc.ReconcileAccepted(context.Background(), o.OrderNumber)
	assert.ErrorIs(t, err, orders.ErrInvalidTransition)
	assert.Equal(t, 10, w.db.Products["p1"].CurrentStock)
}

func TestLedgerReplaysToCurrentStock(t *testing.T) {
	w := sellerWorld(t, false)
	const initial = 30
	w.db.AddProduct(product("p1", "", "10.00", initial))

	ctx := context.Background()
	require.NoError(t, w.svc.AdjustStock(ctx, "p1", inventory.TransactionIn, 20, "delivery-77"))
	require.NoError(t, w.svc.AdjustStock(ctx, "p1", inventory.TransactionOut, 12, "damage-3"))

	o, err := w.svc.Create(ctx, tier.CreateInput{
		Items: []tier.ItemInput{{ProductID: "p1", Quantity: 8}},
	})
	require.NoError(t, err)
	_, err = w.svc.Accept(ctx, o.ID)
	require.NoError(t, err)

	// initial + sum(IN) - sum(OUT) must equal the stored counter.
	replayed := initial
	for _, txn := range w.db.Txns {
		if txn.Type == inventory.TransactionIn {
			replayed += txn.Quantity
		} else {
			replayed -= txn.Quantity
		}
	}
	assert.Equal(t, w.db.Products["p1"].CurrentStock, replayed)
}

func TestCheckStockSuggestsReorder(t *testing.T) {
	w := sellerWorld(t, false)
	p := product("p1", "", "10.00", 4) // at or below reorder point 5
	w.db.AddProduct(p)

	resp, err := w.svc.CheckStock(context.Background(), "p1", 10)
	require.NoError(t, err)
	assert.False(t, resp.IsAvailable)
	assert.Equal(t, 4, resp.AvailableStock)
	assert.Equal(t, 50, resp.SuggestedReorderQuantity)

	resp, err = w.svc.CheckStock(context.Background(), "p1", 2)
	require.NoError(t, err)
	assert.True(t, resp.IsAvailable)
}

func TestCheckStockAboveReorderPoint(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 40))

	resp, err := w.svc.CheckStock(context.Background(), "p1", 10)
	require.NoError(t, err)
	assert.True(t, resp.IsAvailable)
	assert.Equal(t, 40, resp.AvailableStock)
	assert.Zero(t, resp.SuggestedReorderQuantity)
}

func TestAdjustStockValidation(t *testing.T) {
	w := sellerWorld(t, false)
	w.db.AddProduct(product("p1", "", "10.00", 3))

	err := w.svc.AdjustStock(context.Background(), "p1", inventory.TransactionOut, 0, "x")
	assert.ErrorIs(t, err, tier.ErrInvalidQuantity)

	err = w.svc.AdjustStock(context.Background(), "p1", inventory.TransactionOut, 5, "x")
	var shortErr *inventory.InsufficientStockError
	assert.ErrorAs(t, err, &shortErr)
	assert.Equal(t, 3, w.db.Products["p1"].CurrentStock)
}

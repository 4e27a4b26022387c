package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tiercommerce/orders/internal/peerapi"
)

const forwardPath = "/api/orders/from-peer"

// OrderForwarder creates the mirror order at the upstream tier. The caller
// runs it inside its order-creation transaction: a refusal here must leave
// no local order behind.
type OrderForwarder struct {
	Client *Client
}

func (f *OrderForwarder) Forward(ctx context.Context, req peerapi.CreateOrderRequest) (string, error) {
	var out peerapi.CreateOrderResponse
	status, err := f.Client.Call(ctx, http.MethodPost, forwardPath, req, &out)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", fmt.Errorf("upstream order status: %d", status)
	}
	return out.OrderNumber, nil
}

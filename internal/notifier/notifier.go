// Package notifier implements the acceptance callback to the tier that
// originated an order. The call is pure notification: fire-and-forget, no
// retry, no outbox — callers log a failure and keep their committed state.
package notifier

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tiercommerce/orders/internal/gateway"
)

type Notifier struct {
	Client *gateway.Client
}

// OrderAccepted posts the accepted-notification for the peer's order
// number. Any non-2xx or transport error comes back for the caller to log.
func (n *Notifier) OrderAccepted(ctx context.Context, peerOrderNumber string) error {
	path := fmt.Sprintf("/api/orders/%s/accepted-notification", peerOrderNumber)
	status, err := n.Client.Call(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("accepted-notification status: %d", status)
	}
	return nil
}

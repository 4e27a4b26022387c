package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercommerce/orders/internal/auth"
	"github.com/tiercommerce/orders/internal/gateway"
)

func TestOrderAccepted(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get(auth.HeaderAPIKey)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &Notifier{Client: gateway.New(srv.URL, 5*time.Second, gateway.WithAPIKey("cb-key"))}
	err := n.OrderAccepted(context.Background(), "SELLER-20260827-AAAA1111")
	require.NoError(t, err)
	assert.Equal(t, "/api/orders/SELLER-20260827-AAAA1111/accepted-notification", gotPath)
	assert.Equal(t, "cb-key", gotKey)
}

func TestOrderAcceptedNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	n := &Notifier{Client: gateway.New(srv.URL, 5*time.Second)}
	err := n.OrderAccepted(context.Background(), "SELLER-20260827-AAAA1111")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOrderAcceptedTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	n := &Notifier{Client: gateway.New(srv.URL, time.Second)}
	assert.Error(t, n.OrderAccepted(context.Background(), "SELLER-20260827-AAAA1111"))
}

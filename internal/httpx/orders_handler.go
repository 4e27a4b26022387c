package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tiercommerce/orders/internal/auth"
	"github.com/tiercommerce/orders/internal/config"
	"github.com/tiercommerce/orders/internal/inventory"
	"github.com/tiercommerce/orders/internal/orders"
	"github.com/tiercommerce/orders/internal/peerapi"
	"github.com/tiercommerce/orders/internal/redisx"
	"github.com/tiercommerce/orders/internal/tier"
)

type TierHandler struct {
	Service   *tier.Service
	Redis     *redis.Client // nil disables the status cache
	JWTSecret string
	APIKey    string
	Users     []config.Credential
	Log       *zap.Logger
}

func (h *TierHandler) Register(r *chi.Mux) {
	r.Post("/api/auth/login", h.login)

	r.Group(func(g chi.Router) {
		g.Use(auth.Middleware(h.JWTSecret))
		g.Post("/api/orders", h.createOrder)
		g.Post("/api/orders/from-peer", h.createFromPeer)
		g.Get("/api/orders", h.listOrders)
		g.Get("/api/orders/{id}", h.getOrder)
		g.Put("/api/orders/{id}/status", h.updateStatus)
		g.Post("/api/products/check-stock", h.checkStock)
		g.Get("/api/products", h.listProducts)
		g.Get("/api/products/low-stock", h.lowStock)
		g.Post("/api/products/{id}/adjust-stock", h.adjustStock)
		g.Get("/api/products/{id}/transactions", h.productTransactions)
		g.Delete("/api/products/{id}", h.deactivateProduct)
	})

	r.Group(func(g chi.Router) {
		g.Use(auth.APIKeyMiddleware(h.APIKey))
		g.Post("/api/orders/{orderNumber}/accepted-notification", h.acceptedNotification)
	})
}

// ---- auth ----

func (h *TierHandler) login(w http.ResponseWriter, r *http.Request) {
	var req peerapi.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "invalid json")
		return
	}
	for _, u := range h.Users {
		if u.Login == req.Login && u.Password == req.Password {
			token, err := auth.NewToken(h.JWTSecret, u.Login, u.Role)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", "token issue failed")
				return
			}
			writeJSON(w, http.StatusOK, peerapi.LoginResponse{Token: token})
			return
		}
	}
	writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid login or password")
}

// ---- orders ----

type createOrderRequest struct {
	Items           []createOrderItem `json:"items"`
	ShippingAddress string            `json:"shippingAddress"`
}

type createOrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *TierHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "invalid json")
		return
	}

	items := make([]tier.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, tier.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	o, err := h.Service.Create(r.Context(), tier.CreateInput{
		Items:           items,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *TierHandler) createFromPeer(w http.ResponseWriter, r *http.Request) {
	var req peerapi.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "invalid json")
		return
	}

	o, err := h.Service.CreateFromPeer(r.Context(), tier.CreateFromPeerInput{
		Items:                   req.Items,
		CounterpartyOrderNumber: req.CounterpartyOrderNumber,
		ShippingAddress:         req.ShippingAddress,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, peerapi.CreateOrderResponse{
		OrderNumber: o.OrderNumber,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount.String(),
	})
}

func (h *TierHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// cache fast path; DB stays the source of truth
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, id)
		if s, err := h.Redis.Get(r.Context(), key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	o, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.cacheOrder(r, o)
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *TierHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *TierHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "invalid json")
		return
	}
	st, ok := orders.ParseStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_status", "unknown status "+req.Status)
		return
	}

	var (
		o   orders.Order
		err error
	)
	switch st {
	case orders.StatusAccepted:
		o, err = h.Service.Accept(r.Context(), id)
	case orders.StatusCancelled:
		o, err = h.Service.Cancel(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, "invalid_status", "target status must be Accepted or Cancelled")
		return
	}
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.invalidateOrder(r, o.ID)
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *TierHandler) acceptedNotification(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "orderNumber")

	o, err := h.Service.ReconcileAccepted(r.Context(), number)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.invalidateOrder(r, o.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"orderNumber": o.OrderNumber,
		"status":      string(o.Status),
	})
}

// ---- products ----

func (h *TierHandler) checkStock(w http.ResponseWriter, r *http.Request) {
	var req peerapi.CheckStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "invalid json")
		return
	}
	resp, err := h.Service.CheckStock(r.Context(), req.ProductID, req.QuantityRequested)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TierHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	h.writeProducts(w, r, h.Service.ListProducts)
}

func (h *TierHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	h.writeProducts(w, r, h.Service.LowStockProducts)
}

func (h *TierHandler) writeProducts(w http.ResponseWriter, r *http.Request, list func(ctx context.Context) ([]inventory.Product, error)) {
	ps, err := list(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]productResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type adjustStockRequest struct {
	Type     string `json:"type"` // IN | OUT
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

func (h *TierHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "invalid json")
		return
	}
	typ := inventory.TransactionType(req.Type)
	if typ != inventory.TransactionIn && typ != inventory.TransactionOut {
		writeError(w, http.StatusBadRequest, "invalid_transaction_type", "type must be IN or OUT")
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual adjustment by " + auth.SubjectFrom(r.Context())
	}
	if err := h.Service.AdjustStock(r.Context(), id, typ, req.Quantity, reason); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type transactionResponse struct {
	Type            string    `json:"type"`
	Quantity        int       `json:"quantity"`
	Reference       string    `json:"reference"`
	TransactionDate time.Time `json:"transactionDate"`
}

func (h *TierHandler) productTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	txns, err := h.Service.ProductTransactions(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]transactionResponse, 0, len(txns))
	for _, txn := range txns {
		out = append(out, transactionResponse{
			Type:            string(txn.Type),
			Quantity:        txn.Quantity,
			Reference:       txn.Reference,
			TransactionDate: txn.TransactionDate,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *TierHandler) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.DeactivateProduct(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- responses ----

type orderResponse struct {
	ID                      string              `json:"id"`
	OrderNumber             string              `json:"orderNumber"`
	OrderType               string              `json:"orderType"`
	CounterpartyOrderNumber string              `json:"counterpartyOrderNumber,omitempty"`
	Status                  string              `json:"status"`
	ShippingAddress         string              `json:"shippingAddress,omitempty"`
	TotalAmount             string              `json:"totalAmount"`
	Items                   []orderItemResponse `json:"items,omitempty"`
	CreatedAt               time.Time           `json:"createdAt"`
}

type orderItemResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

func toOrderResponse(o orders.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.String(),
		})
	}
	return orderResponse{
		ID:                      o.ID,
		OrderNumber:             o.OrderNumber,
		OrderType:               string(o.Type),
		CounterpartyOrderNumber: o.CounterpartyOrderNumber,
		Status:                  string(o.Status),
		ShippingAddress:         o.ShippingAddress,
		TotalAmount:             o.TotalAmount.String(),
		Items:                   items,
		CreatedAt:               o.CreatedAt,
	}
}

type productResponse struct {
	ID              string `json:"id"`
	SKU             string `json:"sku"`
	Name            string `json:"name"`
	UnitPrice       string `json:"unitPrice"`
	CurrentStock    int    `json:"currentStock"`
	ReservedStock   int    `json:"reservedStock"`
	AvailableStock  int    `json:"availableStock"`
	MinStockLevel   int    `json:"minStockLevel"`
	ReorderPoint    int    `json:"reorderPoint"`
	ReorderQuantity int    `json:"reorderQuantity"`
}

func toProductResponse(p inventory.Product) productResponse {
	return productResponse{
		ID:              p.ID,
		SKU:             p.SKU,
		Name:            p.Name,
		UnitPrice:       p.UnitPrice.String(),
		CurrentStock:    p.CurrentStock,
		ReservedStock:   p.ReservedStock,
		AvailableStock:  p.AvailableStock(),
		MinStockLevel:   p.MinStockLevel,
		ReorderPoint:    p.ReorderPoint,
		ReorderQuantity: p.ReorderQuantity,
	}
}

// ---- cache ----

func (h *TierHandler) cacheOrder(r *http.Request, o orders.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(toOrderResponse(o))
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(r.Context(), key, b, redisx.TTLStatusCache).Err()
}

func (h *TierHandler) invalidateOrder(r *http.Request, id string) {
	if h.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	_ = h.Redis.Del(r.Context(), key).Err()
}

// ---- errors ----

type errorResponse struct {
	Success bool           `json:"success"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func (h *TierHandler) writeDomainError(w http.ResponseWriter, err error) {
	var short *inventory.InsufficientStockError
	switch {
	case errors.As(err, &short):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "insufficient_stock",
			Message: short.Error(),
			Details: map[string]any{
				"productId": short.ProductID,
				"available": short.Available,
				"required":  short.Required,
			},
		})
	case errors.Is(err, orders.ErrNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, inventory.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, orders.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, tier.ErrEmptyOrder), errors.Is(err, tier.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, tier.ErrUpstreamRejected):
		writeError(w, http.StatusBadGateway, "upstream_rejected", err.Error())
	default:
		if h.Log != nil {
			h.Log.Error("unhandled error", zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

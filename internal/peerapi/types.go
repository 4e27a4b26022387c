// Package peerapi holds the wire contract shared by the tier-to-tier
// endpoints: order forwarding, service-account login and the acceptance
// callback. Both the gateway client and the HTTP handlers bind to these.
package peerapi

type OrderItem struct {
	// ProductRef is the calling tier's product id; the receiving tier maps
	// it to a local product through its own join key.
	ProductRef string `json:"productRef"`
	Quantity   int    `json:"quantity"`
}

type CreateOrderRequest struct {
	CounterpartyOrderNumber string      `json:"counterpartyOrderNumber"`
	ShippingAddress         string      `json:"shippingAddress"`
	Items                   []OrderItem `json:"items"`
}

type CreateOrderResponse struct {
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	TotalAmount string `json:"totalAmount"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type CheckStockRequest struct {
	ProductID         string `json:"productId"`
	QuantityRequested int    `json:"quantityRequested"`
}

type CheckStockResponse struct {
	IsAvailable              bool `json:"isAvailable"`
	AvailableStock           int  `json:"availableStock"`
	SuggestedReorderQuantity int  `json:"suggestedReorderQuantity,omitempty"`
}

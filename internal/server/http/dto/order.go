package dto

import "time"

// CreateOrderRequest describes checkout payload.
type CreateOrderRequest struct {
	ItemSummary string `json:"itemSummary"`
	FinalAmount int64  `json:"finalAmount"`
}

// OrderResponse is the order projection returned to clients. Integrity hash
// and verification digest never leave the service.
type OrderResponse struct {
	OrderID       int64     `json:"orderId"`
	ItemSummary   string    `json:"itemSummary,omitempty"`
	FinalAmount   int64     `json:"finalAmount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	IsPaid        bool      `json:"isPaid"`
	CreatedAt     time.Time `json:"createdAt"`
}

package model

import "time"

// PaymentStatus mirrors the state of the active payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// OrderStatus describes the order settlement lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// CurrencyKHR is the only currency the settlement rail accepts.
const CurrencyKHR = "KHR"

// PaymentAttempt carries the provider artifacts of the current QR issuance.
// It is replaced wholesale whenever a new attempt cycle begins.
type PaymentAttempt struct {
	QRString           string
	VerificationDigest string
	IntegrityHash      string
	ExternalTxRef      string
}

// Order describes a purchase awaiting settlement through the KHQR rail.
type Order struct {
	ID               int64
	UserID           int64
	ItemSummary      string
	FinalAmount      int64
	Currency         string
	PaymentStatus    PaymentStatus
	Status           OrderStatus
	Attempt          PaymentAttempt
	IsPaid           bool
	Notified         bool
	CreatedAt        time.Time
	AttemptStartedAt time.Time
	UpdatedAt        time.Time
}

// Terminal reports whether the current attempt cycle reached a final state.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusCancelled
}

// HasAttempt reports whether a QR was ever issued for the current cycle.
func (o *Order) HasAttempt() bool {
	return o.Attempt.VerificationDigest != ""
}

// AttemptExpired reports whether the current attempt outlived the payment window.
func (o *Order) AttemptExpired(now time.Time, window time.Duration) bool {
	return o.HasAttempt() && now.Sub(o.AttemptStartedAt) > window
}

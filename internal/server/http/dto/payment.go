package dto

// PaymentRequest identifies the order to issue, retry or check.
type PaymentRequest struct {
	OrderID int64 `json:"orderId"`
}

// PaymentResponse is returned after a QR issuance.
type PaymentResponse struct {
	PaymentID int64  `json:"paymentId"`
	OrderID   int64  `json:"orderId"`
	Amount    int64  `json:"amount"`
	QRString  string `json:"qrString"`
}

// PaymentStatusResponse reports the settlement state of an order.
type PaymentStatusResponse struct {
	OrderID       int64  `json:"orderId"`
	Status        string `json:"status"`
	ExternalTxRef string `json:"externalTxRef,omitempty"`
}

// ErrorResponse carries a user-safe message plus an optional debug hint for
// upstream failures.
type ErrorResponse struct {
	Message string `json:"message"`
	Debug   string `json:"debug,omitempty"`
}

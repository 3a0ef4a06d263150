package model

// QRCode is the issuer's response for a new payment request.
type QRCode struct {
	QRString           string
	VerificationDigest string
}

// OracleStatus classifies a definitive answer from the payment oracle.
type OracleStatus string

const (
	OracleStatusConfirmed OracleStatus = "CONFIRMED"
	OracleStatusNotFound  OracleStatus = "NOT_FOUND"
)

// OracleResult is the oracle's answer for one verification digest.
type OracleResult struct {
	Status        OracleStatus
	ExternalTxRef string
}

// Issuance is returned to the caller after a QR was issued, for rendering.
type Issuance struct {
	PaymentID int64
	OrderID   int64
	Amount    int64
	QRString  string
}

// PaymentState is the externally visible settlement state of an order.
type PaymentState struct {
	Status        OrderStatus
	ExternalTxRef string
}

// Notification is the outbound operator message for a payment lifecycle event.
type Notification struct {
	OrderID     int64
	ItemSummary string
	Amount      int64
	Status      OrderStatus
	Digest      string
}

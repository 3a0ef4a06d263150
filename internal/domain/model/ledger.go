package model

import "time"

// PaymentMethodKHQR is the constant method recorded for every ledger entry.
const PaymentMethodKHQR = "BAKONG_KHQR"

// LedgerEntry is one row of the append-only payment history. A new entry is
// written per issuance or retry; entries are only updated while PENDING.
type LedgerEntry struct {
	ID                 int64
	OrderID            int64
	Amount             int64
	Method             string
	Status             PaymentStatus
	IntegrityHash      string
	VerificationDigest string
	ExternalTxRef      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

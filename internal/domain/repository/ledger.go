package repository

import (
	"context"

	"github.com/urbanstore/khqrpay/internal/domain/model"
)

// LedgerRepository provides read access to the payment attempt history.
// Writes happen through OrderRepository so that ledger and order state move
// in one transaction.
type LedgerRepository interface {
	CurrentByOrder(ctx context.Context, orderID int64) (*model.LedgerEntry, error)
	ListByOrder(ctx context.Context, orderID int64) ([]model.LedgerEntry, error)
}

package repository

import (
	"context"
	"time"

	"github.com/urbanstore/khqrpay/internal/domain/model"
)

// OrderRepository describes persistence operations with orders. All payment
// state mutations go through BeginAttempt and the Settle* conditional writes;
// nothing else is allowed to touch payment_status/order_status.
type OrderRepository interface {
	Create(ctx context.Context, userID int64, itemSummary string, finalAmount int64) (*model.Order, error)
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Order, error)

	// BeginAttempt opens a new attempt cycle: any stale PENDING ledger row is
	// closed as FAILED, a fresh PENDING ledger row is appended and the order
	// projection is reset in one transaction. Returns the new ledger entry id.
	BeginAttempt(ctx context.Context, orderID int64, attempt model.PaymentAttempt, amount int64) (int64, error)

	// SelectPendingBatch returns orders with an outstanding attempt for the sweep.
	SelectPendingBatch(ctx context.Context, limit int) ([]model.Order, error)
	// SelectOverdueBatch returns still-pending orders whose attempt started
	// before the cutoff.
	SelectOverdueBatch(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error)

	// SettlePaid performs the terminal PENDING->PAID transition as a single
	// conditional write keyed on payment_status, updating the ledger row and
	// the notified flag in the same transaction. Reports whether this caller
	// won the transition.
	SettlePaid(ctx context.Context, orderID int64, externalTxRef string) (bool, error)
	// SettleExpired performs the terminal PENDING->CANCELLED transition under
	// the same conditional-write discipline.
	SettleExpired(ctx context.Context, orderID int64) (bool, error)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	domainErrors "github.com/urbanstore/khqrpay/internal/domain/errors"
	"github.com/urbanstore/khqrpay/internal/domain/model"
	"github.com/urbanstore/khqrpay/internal/domain/repository"
	"github.com/urbanstore/khqrpay/internal/pkg/integrity"
)

// QRIssuer requests a payment QR from the provider gateway.
type QRIssuer interface {
	CreateQR(ctx context.Context, orderID int64, amount int64) (*model.QRCode, error)
}

// PaymentOracle answers whether an issued QR has been paid.
type PaymentOracle interface {
	CheckPayment(ctx context.Context, digest string) (*model.OracleResult, error)
}

// Notifier delivers settlement messages to the operator channel.
type Notifier interface {
	Send(ctx context.Context, n model.Notification) error
	Alert(ctx context.Context, message string) error
}

// PaymentUseCase is the reconciliation engine. It is the sole writer of
// order and ledger payment state; both the HTTP status check and the
// background sweep go through Verify so the transition semantics cannot
// diverge.
type PaymentUseCase struct {
	orders   repository.OrderRepository
	ledger   repository.LedgerRepository
	issuer   QRIssuer
	oracle   PaymentOracle
	notifier Notifier
	secret   string
	window   time.Duration
	logger   *slog.Logger

	// authAlerted latches the one-shot operator alert for rejected oracle
	// credentials. Any successful oracle response re-arms it.
	authAlerted atomic.Bool

	now func() time.Time
}

// NewPaymentUseCase constructs the reconciliation engine.
func NewPaymentUseCase(
	orders repository.OrderRepository,
	ledger repository.LedgerRepository,
	issuer QRIssuer,
	oracle PaymentOracle,
	notifier Notifier,
	secret string,
	window time.Duration,
	logger *slog.Logger,
) *PaymentUseCase {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &PaymentUseCase{
		orders:   orders,
		ledger:   ledger,
		issuer:   issuer,
		oracle:   oracle,
		notifier: notifier,
		secret:   secret,
		window:   window,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue starts a new attempt cycle for an order that is either PENDING with
// no live attempt or CANCELLED.
func (u *PaymentUseCase) Issue(ctx context.Context, orderID int64) (*model.Issuance, error) {
	order, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case model.OrderStatusPaid:
		return nil, domainErrors.ErrInvalidState
	case model.OrderStatusPending:
		if order.HasAttempt() {
			return nil, domainErrors.ErrInvalidState
		}
	case model.OrderStatusCancelled:
		// retry path
	default:
		return nil, domainErrors.ErrInvalidState
	}

	return u.issue(ctx, order)
}

// Retry opens a fresh attempt cycle for a CANCELLED order: new ledger row,
// new digest, reset notification gate and expiry clock.
func (u *PaymentUseCase) Retry(ctx context.Context, orderID int64) (*model.Issuance, error) {
	order, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusCancelled {
		return nil, domainErrors.ErrInvalidState
	}
	return u.issue(ctx, order)
}

func (u *PaymentUseCase) issue(ctx context.Context, order *model.Order) (*model.Issuance, error) {
	if !ValidateAmount(order.FinalAmount) {
		return nil, domainErrors.ErrInvalidAmount
	}

	hash := integrity.Hash(order.ID, order.FinalAmount, model.CurrencyKHR, u.secret)

	qr, err := u.issuer.CreateQR(ctx, order.ID, order.FinalAmount)
	if err != nil {
		return nil, err
	}
	if qr.QRString == "" || qr.VerificationDigest == "" {
		return nil, fmt.Errorf("%w: issuer response missing payload or digest", domainErrors.ErrIssuanceRejected)
	}

	attempt := model.PaymentAttempt{
		QRString:           qr.QRString,
		VerificationDigest: qr.VerificationDigest,
		IntegrityHash:      hash,
	}

	paymentID, err := u.orders.BeginAttempt(ctx, order.ID, attempt, order.FinalAmount)
	if err != nil {
		return nil, err
	}

	u.notify(ctx, model.Notification{
		OrderID:     order.ID,
		ItemSummary: order.ItemSummary,
		Amount:      order.FinalAmount,
		Status:      model.OrderStatusPending,
		Digest:      qr.VerificationDigest,
	})

	return &model.Issuance{
		PaymentID: paymentID,
		OrderID:   order.ID,
		Amount:    order.FinalAmount,
		QRString:  qr.QRString,
	}, nil
}

// Verify reconciles one order against the oracle. It is idempotent and safe
// under concurrent invocation: terminal transitions are conditional writes
// and only the winner notifies.
func (u *PaymentUseCase) Verify(ctx context.Context, orderID int64) (*model.PaymentState, error) {
	order, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	// Settled orders never hit the oracle again.
	if order.Terminal() {
		return stateOf(order), nil
	}
	if !order.HasAttempt() {
		return &model.PaymentState{Status: model.OrderStatusPending}, nil
	}

	// Ledger fast-path: a racing caller may have settled the ledger row
	// already; converge without a second oracle call.
	entry, err := u.ledger.CurrentByOrder(ctx, orderID)
	switch {
	case err == nil && entry.Status == model.PaymentStatusPaid:
		return u.settlePaid(ctx, order, entry.ExternalTxRef)
	case err != nil && !errors.Is(err, domainErrors.ErrNotFound):
		// Degraded ledger read; the oracle still answers.
		u.logger.Warn("ledger read failed, falling back to oracle",
			slog.Int64("order", orderID),
			slog.String("error", err.Error()),
		)
	}

	result, err := u.oracle.CheckPayment(ctx, order.Attempt.VerificationDigest)
	if err != nil {
		if errors.Is(err, domainErrors.ErrOracleUnauthorized) {
			u.alertAuthFailure(ctx)
			return nil, err
		}
		// Transient: state untouched, retried on the next poll or sweep.
		return nil, err
	}
	u.authAlerted.Store(false)

	if result.Status == model.OracleStatusConfirmed {
		return u.settlePaid(ctx, order, result.ExternalTxRef)
	}

	return u.expireIfStale(ctx, order)
}

// Expire applies the auto-expiry policy to one order without consulting the
// oracle. The sweep uses it for overdue orders; the logic is the same
// conditional transition Verify falls through to.
func (u *PaymentUseCase) Expire(ctx context.Context, orderID int64) (*model.PaymentState, error) {
	order, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Terminal() {
		return stateOf(order), nil
	}
	if !order.HasAttempt() {
		return &model.PaymentState{Status: model.OrderStatusPending}, nil
	}
	return u.expireIfStale(ctx, order)
}

// PendingBatch returns orders with an outstanding attempt for the sweep.
func (u *PaymentUseCase) PendingBatch(ctx context.Context, limit int) ([]model.Order, error) {
	return u.orders.SelectPendingBatch(ctx, limit)
}

// OverdueBatch returns pending orders whose attempt window already elapsed.
func (u *PaymentUseCase) OverdueBatch(ctx context.Context, limit int) ([]model.Order, error) {
	return u.orders.SelectOverdueBatch(ctx, u.now().Add(-u.window), limit)
}

func (u *PaymentUseCase) settlePaid(ctx context.Context, order *model.Order, externalTxRef string) (*model.PaymentState, error) {
	won, err := u.orders.SettlePaid(ctx, order.ID, externalTxRef)
	if err != nil {
		return nil, err
	}
	if won {
		u.notify(ctx, model.Notification{
			OrderID:     order.ID,
			ItemSummary: order.ItemSummary,
			Amount:      order.FinalAmount,
			Status:      model.OrderStatusPaid,
			Digest:      order.Attempt.VerificationDigest,
		})
		return &model.PaymentState{Status: model.OrderStatusPaid, ExternalTxRef: externalTxRef}, nil
	}

	// The loser may have lost to a concurrent expiry; report the durable
	// state rather than guessing.
	settled, err := u.orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return stateOf(settled), nil
}

func (u *PaymentUseCase) expireIfStale(ctx context.Context, order *model.Order) (*model.PaymentState, error) {
	if !order.AttemptExpired(u.now(), u.window) {
		return &model.PaymentState{Status: model.OrderStatusPending}, nil
	}

	won, err := u.orders.SettleExpired(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if won {
		u.notify(ctx, model.Notification{
			OrderID:     order.ID,
			ItemSummary: order.ItemSummary,
			Amount:      order.FinalAmount,
			Status:      model.OrderStatusCancelled,
			Digest:      order.Attempt.VerificationDigest,
		})
	}

	// The loser may have lost to a concurrent confirmation; report the
	// durable state rather than guessing.
	if !won {
		settled, err := u.orders.GetByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		return stateOf(settled), nil
	}
	return &model.PaymentState{Status: model.OrderStatusCancelled}, nil
}

func (u *PaymentUseCase) notify(ctx context.Context, n model.Notification) {
	if err := u.notifier.Send(ctx, n); err != nil {
		u.logger.Error("notification delivery failed",
			slog.Int64("order", n.OrderID),
			slog.String("status", string(n.Status)),
			slog.String("error", err.Error()),
		)
	}
}

func (u *PaymentUseCase) alertAuthFailure(ctx context.Context) {
	if !u.authAlerted.CompareAndSwap(false, true) {
		return
	}
	if err := u.notifier.Alert(ctx, "Bakong oracle rejected credentials; payment verification is stalled"); err != nil {
		u.logger.Error("operator alert delivery failed", slog.String("error", err.Error()))
		u.authAlerted.Store(false)
	}
}

func stateOf(order *model.Order) *model.PaymentState {
	return &model.PaymentState{Status: order.Status, ExternalTxRef: order.Attempt.ExternalTxRef}
}

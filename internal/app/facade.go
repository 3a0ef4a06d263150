package app

import (
	"context"

	"github.com/urbanstore/khqrpay/internal/domain/model"
	"github.com/urbanstore/khqrpay/internal/usecase"
)

// SettlementFacade aggregates the application use cases behind one surface
// shared by the HTTP handlers and the background sweeper.
type SettlementFacade struct {
	auth     *usecase.AuthUseCase
	orders   *usecase.OrderUseCase
	payments *usecase.PaymentUseCase
}

// NewSettlementFacade constructs the facade.
func NewSettlementFacade(auth *usecase.AuthUseCase, orders *usecase.OrderUseCase, payments *usecase.PaymentUseCase) *SettlementFacade {
	return &SettlementFacade{auth: auth, orders: orders, payments: payments}
}

func (f *SettlementFacade) Register(ctx context.Context, login, password string) (string, error) {
	_, token, err := f.auth.Register(ctx, login, password)
	return token, err
}

func (f *SettlementFacade) Authenticate(ctx context.Context, login, password string) (string, error) {
	_, token, err := f.auth.Authenticate(ctx, login, password)
	return token, err
}

func (f *SettlementFacade) ParseToken(token string) (int64, error) {
	return f.auth.ParseToken(token)
}

func (f *SettlementFacade) CreateOrder(ctx context.Context, userID int64, itemSummary string, finalAmount int64) (*model.Order, error) {
	return f.orders.Create(ctx, userID, itemSummary, finalAmount)
}

func (f *SettlementFacade) Order(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	return f.orders.GetForUser(ctx, userID, orderID)
}

func (f *SettlementFacade) Orders(ctx context.Context, userID int64) ([]model.Order, error) {
	return f.orders.ListByUser(ctx, userID)
}

func (f *SettlementFacade) IssuePayment(ctx context.Context, orderID int64) (*model.Issuance, error) {
	return f.payments.Issue(ctx, orderID)
}

func (f *SettlementFacade) RetryPayment(ctx context.Context, orderID int64) (*model.Issuance, error) {
	return f.payments.Retry(ctx, orderID)
}

func (f *SettlementFacade) CheckPayment(ctx context.Context, orderID int64) (*model.PaymentState, error) {
	return f.payments.Verify(ctx, orderID)
}

func (f *SettlementFacade) ExpirePayment(ctx context.Context, orderID int64) (*model.PaymentState, error) {
	return f.payments.Expire(ctx, orderID)
}

func (f *SettlementFacade) PendingPayments(ctx context.Context, limit int) ([]model.Order, error) {
	return f.payments.PendingBatch(ctx, limit)
}

func (f *SettlementFacade) OverduePayments(ctx context.Context, limit int) ([]model.Order, error) {
	return f.payments.OverdueBatch(ctx, limit)
}

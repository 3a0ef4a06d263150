package usecase

import (
	"context"
	"strings"

	domainErrors "github.com/urbanstore/khqrpay/internal/domain/errors"
	"github.com/urbanstore/khqrpay/internal/domain/model"
	"github.com/urbanstore/khqrpay/internal/domain/repository"
)

// OrderUseCase covers the checkout boundary: creating orders the engine will
// later settle and reading their projections.
type OrderUseCase struct {
	orders repository.OrderRepository
}

// NewOrderUseCase constructs OrderUseCase.
func NewOrderUseCase(orders repository.OrderRepository) *OrderUseCase {
	return &OrderUseCase{orders: orders}
}

// Create registers a new order with no payment attempt attached.
func (u *OrderUseCase) Create(ctx context.Context, userID int64, itemSummary string, finalAmount int64) (*model.Order, error) {
	itemSummary = strings.TrimSpace(itemSummary)
	if !ValidateAmount(finalAmount) {
		return nil, domainErrors.ErrInvalidAmount
	}
	return u.orders.Create(ctx, userID, itemSummary, finalAmount)
}

// GetForUser returns the order if it belongs to the user.
func (u *OrderUseCase) GetForUser(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	order, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domainErrors.ErrNotFound
	}
	return order, nil
}

// ListByUser returns the user's orders, newest first.
func (u *OrderUseCase) ListByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return u.orders.ListByUser(ctx, userID)
}

package handlers

import (
	"context"

	"github.com/urbanstore/khqrpay/internal/domain/model"
)

// AuthFacade describes authentication capabilities required by handlers.
type AuthFacade interface {
	Register(ctx context.Context, login, password string) (string, error)
	Authenticate(ctx context.Context, login, password string) (string, error)
	ParseToken(token string) (int64, error)
}

// OrderFacade encapsulates checkout operations exposed via HTTP.
type OrderFacade interface {
	CreateOrder(ctx context.Context, userID int64, itemSummary string, finalAmount int64) (*model.Order, error)
	Order(ctx context.Context, userID, orderID int64) (*model.Order, error)
	Orders(ctx context.Context, userID int64) ([]model.Order, error)
}

// PaymentFacade exposes the reconciliation engine operations.
type PaymentFacade interface {
	IssuePayment(ctx context.Context, orderID int64) (*model.Issuance, error)
	RetryPayment(ctx context.Context, orderID int64) (*model.Issuance, error)
	CheckPayment(ctx context.Context, orderID int64) (*model.PaymentState, error)
}

// SettlementFacade aggregates the full set of operations used across handlers.
type SettlementFacade interface {
	AuthFacade
	OrderFacade
	PaymentFacade
}

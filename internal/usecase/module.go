package usecase

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/urbanstore/khqrpay/internal/config"
	"github.com/urbanstore/khqrpay/internal/domain/repository"
)

// Module provides core business use cases to the fx container.
var Module = fx.Provide(
	NewAuthUseCase,
	NewOrderUseCase,
	newPaymentUseCase,
)

type paymentParams struct {
	fx.In

	Orders   repository.OrderRepository
	Ledger   repository.LedgerRepository
	Issuer   QRIssuer
	Oracle   PaymentOracle
	Notifier Notifier
	Config   *config.Config
	Logger   *slog.Logger
}

func newPaymentUseCase(p paymentParams) *PaymentUseCase {
	return NewPaymentUseCase(
		p.Orders,
		p.Ledger,
		p.Issuer,
		p.Oracle,
		p.Notifier,
		p.Config.PaymentSecret,
		p.Config.PaymentTimeout,
		p.Logger,
	)
}

package di

import (
	"go.uber.org/fx"

	"github.com/urbanstore/khqrpay/internal/adapter/bakong"
	"github.com/urbanstore/khqrpay/internal/adapter/telegram"
	"github.com/urbanstore/khqrpay/internal/app"
	"github.com/urbanstore/khqrpay/internal/config"
	"github.com/urbanstore/khqrpay/internal/logger"
	"github.com/urbanstore/khqrpay/internal/pkg/auth"
	"github.com/urbanstore/khqrpay/internal/server/http/handlers"
	"github.com/urbanstore/khqrpay/internal/server/http/router"
	"github.com/urbanstore/khqrpay/internal/storage/postgres"
	"github.com/urbanstore/khqrpay/internal/usecase"
)

func Module(opts ...fx.Option) fx.Option {
	modules := []fx.Option{
		config.Module,
		logger.Module,
		auth.Module,
		postgres.Module,
		bakong.Module,
		telegram.Module,
		usecase.Module,
		fx.Provide(func(i bakong.Issuer) usecase.QRIssuer { return i }),
		fx.Provide(func(o bakong.Oracle) usecase.PaymentOracle { return o }),
		fx.Provide(func(s *telegram.Sink) usecase.Notifier { return s }),
		fx.Provide(func(f *app.SettlementFacade) handlers.SettlementFacade { return f }),
		router.Module,
		app.Module,
	}
	modules = append(modules, opts...)
	return fx.Options(modules...)
}

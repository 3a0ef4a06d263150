package bakong

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/urbanstore/khqrpay/internal/config"
)

// Module exposes the gateway client as issuer and oracle to the fx graph.
var Module = fx.Options(
	fx.Provide(newClient),
	fx.Provide(func(c *HTTPClient) Issuer { return c }),
	fx.Provide(func(c *HTTPClient) Oracle { return c }),
)

type clientParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newClient(p clientParams) (*HTTPClient, error) {
	return NewHTTPClient(p.Config.BakongServiceAddress, p.Logger)
}

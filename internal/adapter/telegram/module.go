package telegram

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/urbanstore/khqrpay/internal/config"
)

// Module provides the notification sink to the fx graph.
var Module = fx.Provide(newSink)

type sinkParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newSink(p sinkParams) (*Sink, error) {
	return NewSink(DefaultAPIBase, p.Config.TelegramBotToken, p.Config.TelegramChatID, p.Logger)
}

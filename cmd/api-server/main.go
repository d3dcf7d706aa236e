package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	posapp "github.com/xenking/pos-checkout/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := posapp.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		lg.Info("Configuration loaded",
			zap.String("tax_rounding", cfg.Pricing.TaxRounding),
			zap.Bool("redis", cfg.Redis.Addr != ""),
			zap.Bool("amqp", cfg.AMQP.URL != ""),
		)
		return posapp.Run(ctx, lg, m, cfg)
	})
}

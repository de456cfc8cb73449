package cmd

import (
	"context"
	"log/slog"

	"github.com/qabox/qabox/internal/app"
	"github.com/qabox/qabox/internal/config"
	"github.com/qabox/qabox/internal/logger"
)

// withApp loads the configuration, opens the application and closes it once
// fn returns.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), cfg.AppEnv, cfg.SentryDSN)
	defer logger.Flush()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := a.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	return fn(a)
}

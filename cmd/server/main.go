package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qabox/qabox/internal/app"
	"github.com/qabox/qabox/internal/config"
	"github.com/qabox/qabox/internal/logger"
	"github.com/qabox/qabox/internal/routes"
)

const shutdownTimeout = 15 * time.Second

func main() {
	err := run()
	logger.Flush()
	if err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	logger.Init(cfg.IsDevelopment(), cfg.AppEnv, cfg.SentryDSN)
	slog.Debug("configuration loaded", "config", *cfg.Sanitized())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return err
	}
	defer func() {
		closeErr := app.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	if app.BackupManager != nil {
		// Startup snapshot; failures are logged and never block serving
		_, _ = app.BackupManager.Snapshot(ctx, true)
		go app.BackupManager.Run(ctx)
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:           routes.SetupRoutes(app),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"addr", server.Addr,
			"env", cfg.AppEnv,
			"admin_prefix", cfg.AdminRoutePrefix,
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		slog.Error("graceful shutdown failed", "error", err)
		return err
	}

	// Let in-flight admin notifications finish before the process exits
	app.QuestionService.WaitNotifications()

	slog.Info("server stopped")
	return nil
}

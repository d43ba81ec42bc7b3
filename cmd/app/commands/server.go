package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/keycache/internal/app"
	"github.com/allisson/keycache/internal/config"
)

// shutdownTimeout bounds the graceful shutdown of the servers.
const shutdownTimeout = 30 * time.Second

// RunServer loads the certificate cache and serves the API until SIGINT or
// SIGTERM. The first refresh runs in the background; /ready reports 503 until
// it has published a snapshot.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting server",
		slog.String("version", version),
		slog.String("key_source", cfg.KeySource),
		slog.Bool("groups_enabled", cfg.GroupsEnabled),
	)

	defer closeContainer(container, logger)

	refreshUseCase, err := container.RefreshUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize refresh use case: %w", err)
	}

	watcher, err := container.KeyringWatcher()
	if err != nil {
		return fmt.Errorf("failed to initialize keyring watcher: %w", err)
	}

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	initial := refreshUseCase.StartRefresh(ctx)
	go func() {
		result := <-initial
		if result.Err != nil {
			logger.Warn("initial refresh finished with errors",
				slog.Uint64("generation", result.Generation),
				slog.Any("error", result.Err),
			)
			return
		}
		logger.Info("certificate cache loaded", slog.Uint64("generation", result.Generation))
	}()

	// A watcher failure, such as a missing keyring directory, is not fatal:
	// the cache keeps its snapshot and POST /v1/cache/refresh still works.
	go func() {
		if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("keyring watcher stopped", slog.Any("error", err))
		}
	}()

	serverErr := make(chan error, 2)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- fmt.Errorf("api server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				serverErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serverErr:
		logger.Error("server error, initiating shutdown", slog.Any("error", runErr))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownErrors := []error{runErr}
	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErrors = append(shutdownErrors, fmt.Errorf("api server shutdown: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	return errors.Join(shutdownErrors...)
}

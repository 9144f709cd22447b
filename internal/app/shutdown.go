package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all loops and background goroutines.
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.shutdownHTTPServer(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	if err := a.shutdownStorage(); err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	if err := a.shutdownOrderbookManager(); err != nil {
		a.logger.Error("orderbook-manager-close-error", zap.Error(err))
	}

	if err := a.shutdownWebSocketManager(); err != nil {
		a.logger.Error("websocket-manager-close-error", zap.Error(err))
	}

	// Wait for the stream, trading, exit, health, and persistence loops
	// (and the HTTP/discovery goroutines) to observe ctx.Done and return.
	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}

func (a *App) shutdownHTTPServer(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

func (a *App) shutdownStorage() error {
	if a.storage == nil {
		return nil
	}
	return a.storage.Close()
}

func (a *App) shutdownOrderbookManager() error {
	return a.obManager.Close()
}

func (a *App) shutdownWebSocketManager() error {
	return a.wsPool.Close()
}

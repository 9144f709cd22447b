package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.Float64("min-edge", a.cfg.MinEdge),
		zap.String("log-level", a.cfg.LogLevel))

	if err := a.startComponents(); err != nil {
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("ws-url", a.cfg.PolymarketWSURL))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give the HTTP server a moment to bind before traffic arrives.
	time.Sleep(100 * time.Millisecond)

	a.wg.Add(1)
	go a.runDiscoveryService()

	if err := a.startWebSocketManager(); err != nil {
		return fmt.Errorf("start websocket manager: %w", err)
	}

	a.wg.Add(1)
	go a.handleNewMarkets()

	if err := a.startOrderbookManager(); err != nil {
		return fmt.Errorf("start orderbook manager: %w", err)
	}

	a.wg.Add(1)
	go a.runTradingLoop()

	a.wg.Add(1)
	go a.runExitLoop()

	a.wg.Add(1)
	go a.runHealthLoop()

	a.wg.Add(1)
	go a.runPersistenceLoop()

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runDiscoveryService() {
	defer a.wg.Done()
	if err := a.discoveryService.Run(a.ctx); err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("discovery-service-error", zap.Error(err))
	}
}

func (a *App) startWebSocketManager() error {
	return a.wsPool.Start()
}

func (a *App) startOrderbookManager() error {
	return a.obManager.Start(a.ctx)
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}

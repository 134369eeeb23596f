package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	if a.pool == nil {
		return errors.New("application was built scan-only")
	}

	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.Duration("scan-interval", a.cfg.ScanInterval),
		zap.String("storage", a.cfg.StorageMode),
		zap.String("risk-state-store", a.cfg.RiskStateStore),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		_ = a.Shutdown()
		return err
	}

	a.logger.Info("application-started",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Bool("price-stream", a.priceStream != nil),
		zap.Bool("balance-guard", a.balanceGuard != nil))

	return a.waitForShutdown()
}

// ScanOnce runs a single detection and ranking pass without trading.
func (a *App) ScanOnce(ctx context.Context) ([]*opportunity.Opportunity, error) {
	return a.pipeline.Scan(ctx)
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	if a.wsManager != nil {
		err := a.wsManager.Start(a.ctx)
		if err != nil {
			return fmt.Errorf("start websocket manager: %w", err)
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.priceStream.Run(a.ctx)
		}()
	}

	if a.balanceGuard != nil {
		a.balanceGuard.Start(a.ctx)
	}
	a.pool.Start(a.ctx)
	a.positions.Start(a.ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pipeline.Run(a.ctx, a.cfg.ScanInterval)
	}()

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}

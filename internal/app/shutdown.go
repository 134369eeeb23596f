package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. The scan loop stops first, then the pool
// drains so in-flight orders finish or are recorded as unknown, then the position monitor and
// the stores close.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if a.httpServer != nil {
		err := a.httpServer.Shutdown(shutdownCtx)
		if err != nil {
			a.logger.Error("http-server-shutdown-error", zap.Error(err))
		}
	}

	// Wait for the scan loop and stream reader before closing what they use.
	a.wg.Wait()
	if a.balanceGuard != nil {
		a.balanceGuard.Wait()
	}

	a.release()

	a.logger.Info("application-shutdown-complete")
	return nil
}

// release closes every component that was created, in dependency order.
func (a *App) release() {
	a.cancel()

	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Error("execution-pool-close-error", zap.Error(err))
		}
	}
	if a.positions != nil {
		if err := a.positions.Close(); err != nil {
			a.logger.Error("position-manager-close-error", zap.Error(err))
		}
	}
	if a.wsManager != nil {
		if err := a.wsManager.Close(); err != nil {
			a.logger.Error("websocket-manager-close-error", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Error("storage-close-error", zap.Error(err))
		}
	}
	if a.stateCloser != nil {
		if err := a.stateCloser.Close(); err != nil {
			a.logger.Error("risk-state-store-close-error", zap.Error(err))
		}
	}
	if a.cache != nil {
		a.cache.Close()
	}
}

// Close releases a scan-only application.
func (a *App) Close() {
	a.release()
}

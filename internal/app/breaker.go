package app

import (
	"context"
	"fmt"

	"github.com/FewZ2372/polymarket-bot/internal/risk"
	"github.com/FewZ2372/polymarket-bot/pkg/config"
	"go.uber.org/zap"
)

// ResetBreaker clears a tripped drawdown breaker in the configured state store and returns the
// ledger after the reset. With the memory store there is nothing persisted to clear; a running
// process must be reset through its HTTP API instead.
func ResetBreaker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (risk.State, error) {
	if cfg.RiskStateStore != "redis" {
		logger.Warn("breaker-reset-memory-store",
			zap.String("note", "state is process-local; use POST /api/risk/reset on the running process"))
	}

	store, closer, err := setupStateStore(ctx, cfg, logger)
	if err != nil {
		return risk.State{}, fmt.Errorf("open risk state store: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	m, err := setupRiskManager(ctx, cfg, logger, store)
	if err != nil {
		return risk.State{}, err
	}

	before := m.State()
	if err := m.ResetBreaker(ctx); err != nil {
		return risk.State{}, err
	}

	logger.Warn("breaker-reset",
		zap.Bool("was-tripped", before.BreakerTripped),
		zap.Float64("drawdown", before.Drawdown))
	return m.State(), nil
}

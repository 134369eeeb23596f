package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/app"
	"github.com/FewZ2372/polymarket-bot/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var resetBreakerCmd = &cobra.Command{
	Use:   "reset-breaker",
	Short: "Clear a tripped drawdown circuit breaker",
	Long: `Clears the drawdown circuit breaker in the configured risk state store and
rebases peak capital to current equity. A tripped breaker is never cleared
automatically; this command or POST /api/risk/reset is required.

With RISK_STATE_STORE=memory the state only lives inside a running process,
so use the HTTP endpoint of that process instead.`,
	RunE: runResetBreaker,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(resetBreakerCmd)
}

func runResetBreaker(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	state, err := app.ResetBreaker(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("reset breaker: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Breaker cleared. Equity $%s, peak $%s, realized P&L $%s\n",
		state.Equity.StringFixed(2), state.Peak.StringFixed(2), state.RealizedPnL.StringFixed(2))
	return nil
}

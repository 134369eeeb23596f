package cmd

import (
	"fmt"

	"github.com/FewZ2372/polymarket-bot/internal/app"
	"github.com/FewZ2372/polymarket-bot/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scanner",
	Long: `Starts the scanner, which will:
1. Build a market snapshot from the Gamma API every SCAN_INTERVAL
2. Run the enabled detectors and rank what they find
3. Gate each ranked opportunity through the risk manager
4. Execute approved trades (EXECUTION_MODE=dry_run simulates them)
5. Monitor open positions until they exit

Metrics, health and the JSON API are served on HTTP_PORT.`,
	RunE: runBot,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("dry-run", false, "Force dry-run execution regardless of EXECUTION_MODE")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cfg.ExecutionMode = "dry_run"
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}

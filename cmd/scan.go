package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/app"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/pkg/config"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan cycle and print the ranked opportunities",
	Long: `Builds a single market snapshot, runs the enabled detectors, aggregates and
ranks the result, and prints it. Nothing is executed and no risk state is touched.`,
	RunE: runScan,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntP("limit", "l", 20, "Maximum number of opportunities to print (0 for all)")
	scanCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	scanCmd.Flags().Duration("timeout", 2*time.Minute, "Timeout for the whole scan")
}

func runScan(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
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

	scanner, err := app.New(cfg, logger, &app.Options{ScanOnly: true})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer scanner.Close()

	ranked, err := scanner.ScanOnce(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	if asJSON {
		return writeOpportunitiesJSON(cmd.OutOrStdout(), ranked)
	}
	return writeOpportunitiesTable(cmd.OutOrStdout(), ranked)
}

type scanRow struct {
	Rank           int                  `json:"rank"`
	ID             string               `json:"id"`
	Type           opportunity.Type     `json:"type"`
	Action         opportunity.Action   `json:"action"`
	MarketIDs      []string             `json:"market_ids"`
	Question       string               `json:"question"`
	ExpectedProfit float64              `json:"expected_profit"`
	Confidence     int                  `json:"confidence"`
	ExpectedValue  float64              `json:"expected_value"`
	Score          float64              `json:"score"`
	Evidence       opportunity.Evidence `json:"evidence,omitempty"`
}

func writeOpportunitiesJSON(w io.Writer, ranked []*opportunity.Opportunity) error {
	rows := make([]scanRow, 0, len(ranked))
	for i, o := range ranked {
		rows = append(rows, scanRow{
			Rank:           i + 1,
			ID:             o.ID,
			Type:           o.Type,
			Action:         o.Action,
			MarketIDs:      o.MarketIDs,
			Question:       o.Question,
			ExpectedProfit: o.ExpectedProfit,
			Confidence:     o.Confidence,
			ExpectedValue:  o.ExpectedValue(),
			Score:          o.Score,
			Evidence:       o.Evidence,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeOpportunitiesTable(w io.Writer, ranked []*opportunity.Opportunity) error {
	if len(ranked) == 0 {
		_, err := fmt.Fprintln(w, "No opportunities found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tACTION\tPROFIT\tCONF\tEV\tSCORE\tQUESTION")
	for i, o := range ranked {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f%%\t%d\t%.2f\t%.3f\t%s\n",
			i+1, o.Type, o.Action, o.ExpectedProfit, o.Confidence, o.ExpectedValue(), o.Score, truncateQuestion(o.Question, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d opportunities\n", len(ranked))
	return err
}

func truncateQuestion(q string, n int) string {
	r := []rune(q)
	if len(r) <= n {
		return q
	}
	return string(r[:n-3]) + "..."
}


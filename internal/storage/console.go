package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/FewZ2372/polymarket-bot/internal/execution"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/internal/position"
	"go.uber.org/zap"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// ConsoleStorage implements Storage by pretty-printing to a terminal.
type ConsoleStorage struct {
	out    io.Writer
	logger *zap.Logger
}

// NewConsoleStorage creates a console storage writing to stdout.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	return NewConsoleStorageTo(os.Stdout, logger)
}

// NewConsoleStorageTo creates a console storage writing to out.
func NewConsoleStorageTo(out io.Writer, logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{out: out, logger: logger}
}

// StoreOpportunities prints the ranked list as a table.
func (c *ConsoleStorage) StoreOpportunities(_ context.Context, opps []*opportunity.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintln(&b, "\n"+rule)
	fmt.Fprintf(&b, "🎯 %d OPPORTUNITIES\n", len(opps))
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "%-4s %-26s %-12s %7s %5s %7s  %s\n", "#", "TYPE", "ACTION", "PROFIT", "CONF", "SCORE", "QUESTION")
	for i, o := range opps {
		fmt.Fprintf(&b, "%-4d %-26s %-12s %6.2f%% %5d %7.2f  %s\n",
			i+1, o.Type, o.Action, o.ExpectedProfit, o.Confidence, o.Score, clip(o.Question, 60))
	}
	fmt.Fprintln(&b, rule)

	_, err := io.WriteString(c.out, b.String())
	return err
}

// RecordExecution prints one execution attempt.
func (c *ConsoleStorage) RecordExecution(_ context.Context, fill *execution.Fill) error {
	mark := "✅"
	if fill.Status != execution.FillFilled {
		mark = "❌"
	}
	_, err := fmt.Fprintf(c.out, "%s EXECUTION %s [%s] stake=$%s shares=%s legs=%d attempts=%d %s\n",
		mark, short(fill.ID), fill.Mode, fill.Stake.StringFixed(2), fill.Shares.String(),
		len(fill.Legs), fill.Attempts, fill.Error)
	return err
}

// RecordPosition prints a position open or close.
func (c *ConsoleStorage) RecordPosition(_ context.Context, p *position.Position) error {
	if p.State == position.StateClosed {
		_, err := fmt.Fprintf(c.out, "📕 POSITION %s closed (%s) entry=%s exit=%s pnl=$%s\n",
			short(p.ID), p.ExitReason, p.EntryUnit.String(), p.ExitUnit.String(), p.RealizedPnL.StringFixed(2))
		return err
	}
	_, err := fmt.Fprintf(c.out, "📗 POSITION %s opened %s shares=%s entry=%s target=%s\n",
		short(p.ID), p.Type, p.Shares.String(), p.EntryUnit.String(), p.TargetUnit.String())
	return err
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

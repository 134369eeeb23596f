// Package execution places approved opportunities with the venue and reports fills.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/shopspring/decimal"
)

// Mode selects between simulated and real order placement.
type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeLive   Mode = "live"
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDryRun, ModeLive:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown execution mode: %s", s)
	}
}

// Order is a single BUY of one outcome token.
type Order struct {
	ClientID string
	MarketID string
	TokenID  string
	Side     market.Side
	Price    decimal.Decimal
	Shares   decimal.Decimal
}

// Amount is the USD cost of the order.
func (o Order) Amount() decimal.Decimal {
	return o.Price.Mul(o.Shares)
}

// OrderResult is the venue's acknowledgement of a placed order.
type OrderResult struct {
	OrderID string
	Status  string
	Price   decimal.Decimal
	Shares  decimal.Decimal
}

// OrderPlacer places one order. Implementations return *types.ExecutionError on failure
// so the executor can tell transient from permanent errors.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order Order) (*OrderResult, error)
	Mode() Mode
}

// FillStatus is the final state of an execution attempt.
type FillStatus string

const (
	FillFilled FillStatus = "filled"
	FillFailed FillStatus = "failed"
	// FillPartial means some legs filled before a later leg failed.
	FillPartial FillStatus = "partial"
	// FillUnknown means the attempt was cancelled mid-flight; the venue state was not confirmed.
	FillUnknown FillStatus = "unknown"
)

// LegFill is the outcome of one leg of an execution.
type LegFill struct {
	MarketID string          `json:"market_id"`
	Side     market.Side     `json:"side"`
	TokenID  string          `json:"token_id"`
	OrderID  string          `json:"order_id,omitempty"`
	Price    decimal.Decimal `json:"price"`
	Shares   decimal.Decimal `json:"shares"`
}

// Fill records an execution attempt, successful or not.
type Fill struct {
	ID            string          `json:"id"`
	OpportunityID string          `json:"opportunity_id"`
	ReservationID string          `json:"reservation_id"`
	Mode          Mode            `json:"mode"`
	Status        FillStatus      `json:"status"`
	Stake         decimal.Decimal `json:"stake"`
	Shares        decimal.Decimal `json:"shares"`
	Legs          []LegFill       `json:"legs"`
	Attempts      int             `json:"attempts"`
	Error         string          `json:"error,omitempty"`
	ExecutedAt    time.Time       `json:"executed_at"`
}

// Cost is the total USD paid across filled legs.
func (f *Fill) Cost() decimal.Decimal {
	total := decimal.Zero
	for _, l := range f.Legs {
		total = total.Add(l.Price.Mul(l.Shares))
	}
	return total
}

// MarketIDs lists the markets of the filled legs.
func (f *Fill) MarketIDs() []string {
	ids := make([]string, 0, len(f.Legs))
	for _, l := range f.Legs {
		ids = append(ids, l.MarketID)
	}
	return ids
}

// Recorder persists execution attempts.
type Recorder interface {
	RecordExecution(ctx context.Context, fill *Fill) error
}

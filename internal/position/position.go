// Package position tracks filled trades through their exit lifecycle.
package position

import (
	"errors"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransition = errors.New("invalid position state transition")
	ErrDuplicatePosition = errors.New("position already exists for fill")
	ErrUnknownPosition   = errors.New("position not found")
	ErrUnfilled          = errors.New("fill holds no legs")
)

// State is a position lifecycle state.
type State string

const (
	StateOpen           State = "OPEN"
	StateTakeProfit     State = "TAKE_PROFIT"
	StateStopLoss       State = "STOP_LOSS"
	StateTimeExit       State = "TIME_EXIT"
	StateMarketResolved State = "MARKET_RESOLVED"
	StateClosed         State = "CLOSED"
)

var transitions = map[State][]State{
	StateOpen:           {StateTakeProfit, StateStopLoss, StateTimeExit, StateMarketResolved},
	StateTakeProfit:     {StateClosed},
	StateStopLoss:       {StateClosed},
	StateTimeExit:       {StateClosed},
	StateMarketResolved: {StateClosed},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsExit reports whether s is one of the exit states between OPEN and CLOSED.
func (s State) IsExit() bool {
	switch s {
	case StateTakeProfit, StateStopLoss, StateTimeExit, StateMarketResolved:
		return true
	}
	return false
}

// Leg is one held outcome token.
type Leg struct {
	MarketID   string          `json:"market_id"`
	Side       market.Side     `json:"side"`
	TokenID    string          `json:"token_id"`
	EntryPrice decimal.Decimal `json:"entry_price"`
}

// Position is an open or closed holding created from exactly one fill.
type Position struct {
	ID            string             `json:"id"`
	FillID        string             `json:"fill_id"`
	OpportunityID string             `json:"opportunity_id"`
	ReservationID string             `json:"reservation_id"`
	Type          opportunity.Type   `json:"type"`
	Action        opportunity.Action `json:"action"`
	Legs          []Leg              `json:"legs"`
	// Partial marks a basket where only some legs were bought before execution stopped.
	Partial bool `json:"partial,omitempty"`
	// Shares is held on every leg.
	Shares decimal.Decimal `json:"shares"`
	// EntryUnit and TargetUnit are per-share values across all legs.
	EntryUnit  decimal.Decimal `json:"entry_unit"`
	TargetUnit decimal.Decimal `json:"target_unit"`
	// TakeProfitUnit, when set, overrides the fractional take-profit rule.
	TakeProfitUnit decimal.Decimal `json:"take_profit_unit,omitempty"`
	OpenedAt       time.Time       `json:"opened_at"`
	MaxHoldUntil   time.Time       `json:"max_hold_until"`

	State       State           `json:"state"`
	ExitReason  State           `json:"exit_reason,omitempty"`
	ExitUnit    decimal.Decimal `json:"exit_unit"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	ClosedAt    time.Time       `json:"closed_at,omitempty"`
}

// Cost is the amount paid to open the position.
func (p *Position) Cost() decimal.Decimal {
	return p.EntryUnit.Mul(p.Shares)
}

// MarketIDs lists the markets held.
func (p *Position) MarketIDs() []string {
	ids := make([]string, 0, len(p.Legs))
	for _, l := range p.Legs {
		ids = append(ids, l.MarketID)
	}
	return ids
}

// Transition moves the position to the given state, enforcing the lifecycle.
func (p *Position) Transition(to State) error {
	if !CanTransition(p.State, to) {
		return ErrInvalidTransition
	}
	if to.IsExit() {
		p.ExitReason = to
	}
	p.State = to
	return nil
}

// Clone returns a copy with its own leg slice.
func (p *Position) Clone() *Position {
	c := *p
	c.Legs = append([]Leg(nil), p.Legs...)
	return &c
}

// Policy holds the exit rules.
type Policy struct {
	// TakeProfitFraction of the distance from entry to target that triggers TAKE_PROFIT.
	TakeProfitFraction float64
	// StopLossPct is the adverse move from entry that triggers STOP_LOSS.
	StopLossPct float64
	MaxHold     time.Duration
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if p.TakeProfitFraction <= 0 || p.TakeProfitFraction > 1 {
		return errors.New("take profit fraction must be in (0,1]")
	}
	if p.StopLossPct <= 0 || p.StopLossPct >= 1 {
		return errors.New("stop loss pct must be in (0,1)")
	}
	if p.MaxHold <= 0 {
		return errors.New("max hold must be positive")
	}
	return nil
}

// Evaluate decides whether a position should exit given current market data. It returns the exit
// state and the per-share exit value, or StateOpen when the position should stay open.
// Resolution wins over every price rule.
func Evaluate(p *Position, quotes map[string]*market.Market, now time.Time, policy Policy) (State, decimal.Decimal) {
	resolved := true
	settle := decimal.Zero
	value := decimal.Zero

	for _, l := range p.Legs {
		m, ok := quotes[l.MarketID]
		if !ok || m == nil {
			return StateOpen, decimal.Zero
		}
		if m.Resolved {
			if m.Winner == l.Side {
				settle = settle.Add(decimal.NewFromInt(1))
				value = value.Add(decimal.NewFromInt(1))
			}
			continue
		}
		resolved = false
		value = value.Add(decimal.NewFromFloat(m.Price(l.Side)))
	}

	if resolved {
		return StateMarketResolved, settle
	}

	stop := p.EntryUnit.Mul(decimal.NewFromFloat(1 - policy.StopLossPct))
	if value.LessThanOrEqual(stop) {
		return StateStopLoss, value
	}

	if tp, ok := takeProfitLevel(p, policy); ok && value.GreaterThanOrEqual(tp) {
		return StateTakeProfit, value
	}

	if !p.MaxHoldUntil.IsZero() && now.After(p.MaxHoldUntil) {
		return StateTimeExit, value
	}
	return StateOpen, value
}

func takeProfitLevel(p *Position, policy Policy) (decimal.Decimal, bool) {
	if p.TakeProfitUnit.IsPositive() {
		return p.TakeProfitUnit, true
	}
	if !p.TargetUnit.GreaterThan(p.EntryUnit) {
		return decimal.Zero, false
	}
	distance := p.TargetUnit.Sub(p.EntryUnit)
	return p.EntryUnit.Add(distance.Mul(decimal.NewFromFloat(policy.TakeProfitFraction))), true
}

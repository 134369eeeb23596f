// Package opportunity defines the candidate trade emitted by detectors for a single scan cycle.
package opportunity

import (
	"fmt"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/google/uuid"
)

// Leg is one token purchase needed to express an opportunity.
type Leg struct {
	MarketID string
	Side     market.Side
	TokenID  string
	Price    float64
}

// Opportunity is a detector's claim that a market is mispriced.
// It lives for one cycle and is never persisted back into the pipeline.
type Opportunity struct {
	ID     string
	Type   Type
	Action Action
	// ExpectedProfit is a percentage of stake; Confidence is the estimated win probability (0-100).
	ExpectedProfit float64
	Confidence     int
	// MarketIDs lists every referenced market; MarketIDs[0] is the primary one.
	MarketIDs  []string
	EventID    string
	Question   string
	Legs       []Leg
	EndDate    time.Time
	Detector   string
	DetectedAt time.Time
	Evidence   Evidence
	// Score is assigned by the ranker.
	Score float64
}

// New creates an opportunity with a fresh id.
func New(t Type, action Action, profit float64, confidence int, detectedAt time.Time) *Opportunity {
	return &Opportunity{
		ID:             uuid.New().String(),
		Type:           t,
		Action:         action,
		ExpectedProfit: profit,
		Confidence:     clampConfidence(confidence),
		DetectedAt:     detectedAt,
	}
}

// OnMarket attaches a single market as the primary reference and derives the leg(s) for the action.
func (o *Opportunity) OnMarket(m *market.Market) *Opportunity {
	o.MarketIDs = append([]string{m.ID}, o.MarketIDs...)
	o.Question = m.Question
	o.EndDate = m.EndDate
	if o.EventID == "" {
		o.EventID = m.EventID
	}

	switch o.Action {
	case BuyBoth:
		o.Legs = []Leg{legFor(m, market.SideYes), legFor(m, market.SideNo)}
	case BuyYes, BuyNo, SellYes, SellNo:
		o.Legs = []Leg{legFor(m, o.Action.BuySide())}
	}
	return o
}

// WithRelated appends secondary market references.
func (o *Opportunity) WithRelated(ids ...string) *Opportunity {
	o.MarketIDs = append(o.MarketIDs, ids...)
	return o
}

// WithEvidence attaches the detector evidence.
func (o *Opportunity) WithEvidence(e Evidence) *Opportunity {
	o.Evidence = e
	return o
}

// OnEvent references every outcome market of an event and buys the given side on each.
func (o *Opportunity) OnEvent(e *market.Event, markets []*market.Market, side market.Side) *Opportunity {
	o.EventID = e.ID
	o.Question = e.Title
	o.EndDate = e.EndDate
	o.MarketIDs = make([]string, 0, len(markets))
	o.Legs = make([]Leg, 0, len(markets))
	for _, m := range markets {
		o.MarketIDs = append(o.MarketIDs, m.ID)
		o.Legs = append(o.Legs, legFor(m, side))
	}
	return o
}

func legFor(m *market.Market, side market.Side) Leg {
	return Leg{MarketID: m.ID, Side: side, TokenID: m.TokenID(side), Price: m.Price(side)}
}

// PrimaryMarketID returns the first referenced market id.
func (o *Opportunity) PrimaryMarketID() string {
	if len(o.MarketIDs) == 0 {
		return ""
	}
	return o.MarketIDs[0]
}

// GroupKey identifies the exposure bucket of an opportunity: the event for
// multi-outcome baskets, the primary market otherwise.
func (o *Opportunity) GroupKey() string {
	if o.Type == MultiOutcomeArb && o.EventID != "" {
		return "event:" + o.EventID
	}
	return o.PrimaryMarketID()
}

// ExpectedValue = c/100 × profit − (1 − c/100) × 100, with loss normalized to the full stake.
func (o *Opportunity) ExpectedValue() float64 {
	p := float64(o.Confidence) / 100
	return p*o.ExpectedProfit - (1-p)*100
}

// RiskReward = profit / (100 − confidence); zero when confidence is 100.
func (o *Opportunity) RiskReward() float64 {
	if o.Confidence >= 100 {
		return 0
	}
	return o.ExpectedProfit / float64(100-o.Confidence)
}

// UnitCost is the price of one share of every leg.
func (o *Opportunity) UnitCost() float64 {
	total := 0.0
	for _, l := range o.Legs {
		total += l.Price
	}
	return total
}

// Clone returns a shallow copy with its own slices so callers can adjust fields safely.
func (o *Opportunity) Clone() *Opportunity {
	c := *o
	c.MarketIDs = append([]string(nil), o.MarketIDs...)
	c.Legs = append([]Leg(nil), o.Legs...)
	return &c
}

// SetConfidence assigns a confidence clamped to 0-100.
func (o *Opportunity) SetConfidence(c int) {
	o.Confidence = clampConfidence(c)
}

func (o *Opportunity) String() string {
	return fmt.Sprintf("%s %s %s profit=%.2f%% conf=%d", o.Type, o.Action, o.PrimaryMarketID(), o.ExpectedProfit, o.Confidence)
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

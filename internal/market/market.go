// Package market holds the read-only market model the opportunity pipeline runs on.
package market

import (
	"math"
	"strings"
	"time"

	"github.com/FewZ2372/polymarket-bot/pkg/types"
)

// Side is a binary outcome side.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Platform identifies the venue a market trades on.
type Platform string

const (
	PlatformPolymarket Platform = "polymarket"
	PlatformKalshi     Platform = "kalshi"
)

// Market is one binary market as observed in a single scan cycle.
// YesPrice and NoPrice are observed independently; their sum need not be 1.
type Market struct {
	ID             string
	Platform       Platform
	Slug           string
	Question       string
	Category       string
	YesPrice       float64
	NoPrice        float64
	Volume24h      float64
	VolumeTotal    float64
	Liquidity      float64
	PriceChange1h  float64
	PriceChange24h float64
	CreatedAt      time.Time
	EndDate        time.Time
	IsActive       bool
	Closed         bool
	TokenIDYes     string
	TokenIDNo      string
	EventID        string
	// Resolved is set once the venue reports a final outcome; Winner holds it.
	Resolved bool
	Winner   Side
}

// Price returns the observed price of the given side.
func (m *Market) Price(side Side) float64 {
	if side == SideNo {
		return m.NoPrice
	}
	return m.YesPrice
}

// TokenID returns the outcome token for the given side.
func (m *Market) TokenID(side Side) string {
	if side == SideNo {
		return m.TokenIDNo
	}
	return m.TokenIDYes
}

// DaysToResolution returns days between now and EndDate. ok is false when EndDate is unknown.
func (m *Market) DaysToResolution(now time.Time) (days float64, ok bool) {
	if m.EndDate.IsZero() {
		return 0, false
	}
	return m.EndDate.Sub(now).Hours() / 24, true
}

// AgeHours returns hours since creation. ok is false when CreatedAt is unknown.
func (m *Market) AgeHours(now time.Time) (hours float64, ok bool) {
	if m.CreatedAt.IsZero() {
		return 0, false
	}
	return now.Sub(m.CreatedAt).Hours(), true
}

// Validate reports whether the market can be evaluated by price-based detectors.
// Prices on the {0,1} boundary belong to undefined or settled markets.
func (m *Market) Validate() error {
	if m.ID == "" {
		return &types.DataError{MarketID: "?", Field: "id", Reason: "missing"}
	}
	if strings.TrimSpace(m.Question) == "" {
		return &types.DataError{MarketID: m.ID, Field: "question", Reason: "missing"}
	}
	if !validPrice(m.YesPrice) {
		return &types.DataError{MarketID: m.ID, Field: "yes_price", Reason: "outside (0,1)"}
	}
	if !validPrice(m.NoPrice) {
		return &types.DataError{MarketID: m.ID, Field: "no_price", Reason: "outside (0,1)"}
	}
	if !m.IsActive || m.Closed {
		return &types.DataError{MarketID: m.ID, Field: "status", Reason: "not trading"}
	}
	return nil
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && p > 0 && p < 1
}

// Event groups the mutually exclusive outcome markets of one question.
type Event struct {
	ID       string
	Slug     string
	Title    string
	Category string
	EndDate  time.Time
	Markets  []*Market
}

// FromGamma converts a Gamma API market into the pipeline model.
func FromGamma(g *types.GammaMarket) *Market {
	m := &Market{
		ID:             g.ID,
		Platform:       PlatformPolymarket,
		Slug:           g.Slug,
		Question:       g.Question,
		Category:       strings.ToLower(g.Category),
		Volume24h:      g.Volume24hr,
		VolumeTotal:    g.VolumeNum,
		Liquidity:      g.LiquidityNum,
		PriceChange1h:  g.OneHourChange,
		PriceChange24h: g.OneDayChange,
		CreatedAt:      g.CreatedAt(),
		EndDate:        g.EndDate(),
		IsActive:       g.Active,
		Closed:         g.Closed,
	}

	yesIdx, noIdx := outcomeIndexes(g.Outcomes)
	if yesIdx < len(g.Prices) {
		m.YesPrice = g.Prices[yesIdx]
	}
	if noIdx < len(g.Prices) {
		m.NoPrice = g.Prices[noIdx]
	}
	if yesIdx < len(g.TokenIDs) {
		m.TokenIDYes = g.TokenIDs[yesIdx]
	}
	if noIdx < len(g.TokenIDs) {
		m.TokenIDNo = g.TokenIDs[noIdx]
	}
	if len(g.Events) > 0 {
		m.EventID = g.Events[0].ID
	}

	// A closed market whose prices settled at 1/0 has a final outcome.
	if g.Closed && len(g.Prices) >= 2 {
		switch {
		case m.YesPrice >= 0.99 && m.NoPrice <= 0.01:
			m.Resolved, m.Winner = true, SideYes
		case m.NoPrice >= 0.99 && m.YesPrice <= 0.01:
			m.Resolved, m.Winner = true, SideNo
		}
	}

	return m
}

// outcomeIndexes finds the YES/NO positions; Gamma lists them as ["Yes","No"] by default.
func outcomeIndexes(outcomes []string) (yes int, no int) {
	yes, no = 0, 1
	for i, o := range outcomes {
		switch strings.ToUpper(o) {
		case "YES":
			yes = i
		case "NO":
			no = i
		}
	}
	return yes, no
}

// EventFromGamma converts a Gamma event and its child markets.
func EventFromGamma(g *types.GammaEvent) *Event {
	e := &Event{
		ID:       g.ID,
		Slug:     g.Slug,
		Title:    g.Title,
		Category: strings.ToLower(g.Category),
		EndDate:  g.EndDate(),
		Markets:  make([]*Market, 0, len(g.Markets)),
	}
	for i := range g.Markets {
		m := FromGamma(&g.Markets[i])
		m.EventID = g.ID
		if m.Category == "" {
			m.Category = e.Category
		}
		e.Markets = append(e.Markets, m)
	}
	return e
}

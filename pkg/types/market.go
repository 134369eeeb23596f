package types

import (
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// GammaMarket represents a Polymarket market from the Gamma API.
type GammaMarket struct {
	ID             string       `json:"id"`
	ConditionID    string       `json:"conditionId"`
	Question       string       `json:"question"`
	Slug           string       `json:"slug"`
	Category       string       `json:"category"`
	GroupItemTitle string       `json:"groupItemTitle"`
	Active         bool         `json:"active"`
	Closed         bool         `json:"closed"`
	CreatedAtRaw   string       `json:"createdAt"`
	EndDateRaw     string       `json:"endDate"`
	OutcomesRaw    string       `json:"outcomes"`      // JSON string: "[\"Yes\", \"No\"]"
	PricesRaw      string       `json:"outcomePrices"` // JSON string: "[\"0.52\", \"0.48\"]"
	ClobTokensRaw  string       `json:"clobTokenIds"`  // JSON string: "[\"token1\", \"token2\"]"
	VolumeNum      float64      `json:"volumeNum"`
	Volume24hr     float64      `json:"volume24hr"`
	Volume1wk      float64      `json:"volume1wk"`
	LiquidityNum   float64      `json:"liquidityNum"`
	OneHourChange  float64      `json:"oneHourPriceChange"`
	OneDayChange   float64      `json:"oneDayPriceChange"`
	Events         []GammaEvent `json:"events,omitempty"`

	Outcomes []string  `json:"-"`
	Prices   []float64 `json:"-"`
	TokenIDs []string  `json:"-"`
}

// UnmarshalJSON decodes the market and expands the JSON-encoded outcome, price and token arrays.
func (m *GammaMarket) UnmarshalJSON(data []byte) error {
	type Alias GammaMarket
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	// Malformed embedded arrays leave the slices empty; the market is then rejected downstream.
	if m.OutcomesRaw != "" {
		_ = json.Unmarshal([]byte(m.OutcomesRaw), &m.Outcomes)
	}
	if m.ClobTokensRaw != "" {
		_ = json.Unmarshal([]byte(m.ClobTokensRaw), &m.TokenIDs)
	}
	if m.PricesRaw != "" {
		var raw []string
		if err := json.Unmarshal([]byte(m.PricesRaw), &raw); err == nil {
			m.Prices = make([]float64, 0, len(raw))
			for _, s := range raw {
				p, parseErr := strconv.ParseFloat(s, 64)
				if parseErr != nil {
					m.Prices = nil
					break
				}
				m.Prices = append(m.Prices, p)
			}
		}
	}

	return nil
}

// CreatedAt parses the creation timestamp. Zero when absent or malformed.
func (m *GammaMarket) CreatedAt() time.Time {
	return parseGammaTime(m.CreatedAtRaw)
}

// EndDate parses the resolution deadline. Zero when absent or malformed.
func (m *GammaMarket) EndDate() time.Time {
	return parseGammaTime(m.EndDateRaw)
}

// GammaEvent groups several markets (outcomes) under one question.
type GammaEvent struct {
	ID       string        `json:"id"`
	Slug     string        `json:"slug"`
	Title    string        `json:"title"`
	NegRisk  bool          `json:"negRisk"`
	Markets  []GammaMarket `json:"markets,omitempty"`
	EndRaw   string        `json:"endDate"`
	Category string        `json:"category"`
}

// EndDate parses the event deadline.
func (e *GammaEvent) EndDate() time.Time {
	return parseGammaTime(e.EndRaw)
}

func parseGammaTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

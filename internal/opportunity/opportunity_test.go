package opportunity

import (
	"testing"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		profit     float64
		confidence int
		want       float64
	}{
		{name: "arbitrage", profit: 5, confidence: 99, want: 0.99*5 - 0.01*100},
		{name: "coin-flip", profit: 100, confidence: 50, want: 0},
		{name: "losing-bet", profit: 10, confidence: 70, want: 7 - 30},
		{name: "certain", profit: 3, confidence: 100, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := New(MomentumShort, BuyYes, tt.profit, tt.confidence, time.Time{})
			assert.InDelta(t, tt.want, o.ExpectedValue(), 1e-9)
		})
	}
}

func TestRiskReward(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, New(WhaleActivity, BuyYes, 15, 70, time.Time{}).RiskReward(), 1e-9)
	assert.Zero(t, New(YesNoMismatch, BuyBoth, 3, 100, time.Time{}).RiskReward())
}

func TestNew_ClampsConfidence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100, New(TimeDecay, BuyNo, 10, 140, time.Time{}).Confidence)
	assert.Equal(t, 0, New(TimeDecay, BuyNo, 10, -3, time.Time{}).Confidence)
}

func TestOnMarket_Legs(t *testing.T) {
	t.Parallel()

	m := &market.Market{ID: "m1", Question: "q", YesPrice: 0.52, NoPrice: 0.45, TokenIDYes: "ty", TokenIDNo: "tn", EventID: "e"}

	tests := []struct {
		name   string
		action Action
		legs   []Leg
	}{
		{name: "buy-yes", action: BuyYes, legs: []Leg{{MarketID: "m1", Side: market.SideYes, TokenID: "ty", Price: 0.52}}},
		{name: "buy-no", action: BuyNo, legs: []Leg{{MarketID: "m1", Side: market.SideNo, TokenID: "tn", Price: 0.45}}},
		{name: "sell-yes-buys-no", action: SellYes, legs: []Leg{{MarketID: "m1", Side: market.SideNo, TokenID: "tn", Price: 0.45}}},
		{name: "buy-both", action: BuyBoth, legs: []Leg{
			{MarketID: "m1", Side: market.SideYes, TokenID: "ty", Price: 0.52},
			{MarketID: "m1", Side: market.SideNo, TokenID: "tn", Price: 0.45},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := New(YesNoMismatch, tt.action, 3, 99, time.Time{}).OnMarket(m)
			assert.Equal(t, tt.legs, o.Legs)
			assert.Equal(t, "m1", o.PrimaryMarketID())
			assert.Equal(t, "e", o.EventID)
		})
	}
}

func TestGroupKey(t *testing.T) {
	t.Parallel()

	ev := &market.Event{ID: "ev9", Title: "Who wins?"}
	markets := []*market.Market{{ID: "a", YesPrice: 0.5}, {ID: "b", YesPrice: 0.6}}

	basket := New(MultiOutcomeArb, BuyAllNo, 10, 99, time.Time{}).OnEvent(ev, markets, market.SideNo)
	assert.Equal(t, "event:ev9", basket.GroupKey())
	assert.Equal(t, []string{"a", "b"}, basket.MarketIDs)
	assert.InDelta(t, 0.0, basket.UnitCost(), 1e-9, "NO prices unset")

	single := New(MomentumLong, BuyYes, 5, 70, time.Time{}).OnMarket(markets[0])
	assert.Equal(t, "a", single.GroupKey())
}

func TestClone_Independent(t *testing.T) {
	t.Parallel()

	o := New(Contrarian, BuyYes, 6, 60, time.Time{}).
		OnMarket(&market.Market{ID: "x", YesPrice: 0.3}).
		WithRelated("y")
	c := o.Clone()
	c.MarketIDs[1] = "z"
	c.Legs[0].Price = 0.9
	c.SetConfidence(95)

	require.Len(t, o.MarketIDs, 2)
	assert.Equal(t, "y", o.MarketIDs[1])
	assert.InDelta(t, 0.3, o.Legs[0].Price, 1e-9)
	assert.Equal(t, 60, o.Confidence)
}

func TestAction_Opposes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b Action
		want bool
	}{
		{BuyYes, BuyNo, true},
		{BuyYes, SellYes, true},
		{BuyNo, SellNo, true},
		{BuyYes, SellNo, false},
		{BuyAllNo, BuyAllYes, true},
		{BuyBoth, BuyYes, false},
		{BuyBoth, BuyNo, false},
		{BuyYes, BuyYes, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Opposes(tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestPriorityTable(t *testing.T) {
	t.Parallel()

	types := AllTypes()
	require.Len(t, types, 17)
	for i := 1; i < len(types); i++ {
		assert.Greater(t, types[i-1].Priority(), types[i].Priority())
	}
	assert.Equal(t, 100, MultiOutcomeArb.Priority())
	assert.Equal(t, 25, CorrelationDivergence.Priority())
	assert.Zero(t, Type("UNKNOWN").Priority())
	assert.True(t, CrossPlatformArb.IsArbitrage())
	assert.False(t, NearCertain.IsArbitrage())
}

package risk

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

//nolint:gochecknoglobals // shared test clock
var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Capital:            decimal.NewFromInt(200),
		MaxExposurePct:     0.8,
		PerMarketCapPct:    0.2,
		MaxOpenPositions:   10,
		KellyMaxFraction:   0.3,
		MinStake:           decimal.NewFromInt(1),
		DrawdownBreakerPct: 0.25,
		Logger:             zaptest.NewLogger(t),
	}
}

func newManager(t *testing.T, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := testConfig(t)
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

func arb(marketID string) *opportunity.Opportunity {
	return opportunity.New(opportunity.YesNoMismatch, opportunity.BuyYes, 5, 99, time.Time{}).
		OnMarket(&market.Market{ID: marketID, YesPrice: 0.5, NoPrice: 0.45})
}

func TestKellyFraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		confidence int
		profit     float64
		max        float64
		want       float64
	}{
		{name: "clamped-to-max", confidence: 99, profit: 5, max: 0.3, want: 0.3},
		{name: "unclamped", confidence: 70, profit: 50, max: 0.3, want: 0.1},
		{name: "negative-edge", confidence: 60, profit: 10, max: 0.3, want: 0},
		{name: "zero-profit", confidence: 99, profit: 0, max: 0.3, want: 0},
		{name: "certain", confidence: 100, profit: 10, max: 0.25, want: 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, KellyFraction(tt.confidence, tt.profit, tt.max), 1e-9)
		})
	}
}

func TestEvaluate_PerMarketCapClampsStake(t *testing.T) {
	t.Parallel()

	m := newManager(t, nil)

	// Kelly sizes this to 0.3 × 200 = 60, above the 40 per-market cap.
	d := m.Evaluate(arb("m1"))
	require.True(t, d.Approved)
	assert.InDelta(t, 0.3, d.KellyFraction, 1e-9)
	assert.True(t, d.Stake.Equal(decimal.NewFromInt(40)), "stake %s", d.Stake)

	again := m.Evaluate(arb("m1"))
	assert.False(t, again.Approved)
	assert.Equal(t, ReasonPerMarketCap, again.Reason)

	other := m.Evaluate(arb("m2"))
	assert.True(t, other.Approved)

	st := m.State()
	assert.Equal(t, 2, st.OpenPositions)
	assert.True(t, st.TotalExposure.Equal(decimal.NewFromInt(80)))
}

func TestEvaluate_Rejections(t *testing.T) {
	t.Parallel()

	t.Run("no-edge", func(t *testing.T) {
		t.Parallel()
		m := newManager(t, nil)
		o := opportunity.New(opportunity.MomentumShort, opportunity.BuyYes, 5, 65, time.Time{}).
			OnMarket(&market.Market{ID: "m", YesPrice: 0.5, NoPrice: 0.5})
		d := m.Evaluate(o)
		assert.False(t, d.Approved)
		assert.Equal(t, ReasonNoEdge, d.Reason)
	})

	t.Run("max-open-positions", func(t *testing.T) {
		t.Parallel()
		m := newManager(t, func(c *Config) { c.MaxOpenPositions = 1 })
		require.True(t, m.Evaluate(arb("a")).Approved)
		d := m.Evaluate(arb("b"))
		assert.Equal(t, ReasonMaxOpen, d.Reason)
	})

	t.Run("total-exposure", func(t *testing.T) {
		t.Parallel()
		m := newManager(t, func(c *Config) { c.MaxExposurePct = 0.3 })
		require.True(t, m.Evaluate(arb("a")).Approved)
		second := m.Evaluate(arb("b"))
		require.True(t, second.Approved)
		assert.True(t, second.Stake.Equal(decimal.NewFromInt(20)), "stake %s", second.Stake)
		d := m.Evaluate(arb("c"))
		assert.Equal(t, ReasonTotalExposure, d.Reason)
	})

	t.Run("below-min-stake", func(t *testing.T) {
		t.Parallel()
		m := newManager(t, func(c *Config) { c.MinStake = decimal.NewFromInt(100) })
		d := m.Evaluate(arb("a"))
		assert.False(t, d.Approved)
		assert.Equal(t, ReasonPerMarketCap, d.Reason)
	})

	t.Run("nil", func(t *testing.T) {
		t.Parallel()
		assert.False(t, newManager(t, nil).Evaluate(nil).Approved)
	})
}

func TestRelease_FreesExposure(t *testing.T) {
	t.Parallel()

	m := newManager(t, nil)
	d := m.Evaluate(arb("m1"))
	require.True(t, d.Approved)

	m.Release(d.ReservationID)
	m.Release(d.ReservationID)

	st := m.State()
	assert.Zero(t, st.OpenPositions)
	assert.True(t, st.TotalExposure.IsZero())
	assert.Empty(t, st.MarketExposure)
	assert.True(t, m.Evaluate(arb("m1")).Approved)
}

func TestResize_ShrinksToHeldStake(t *testing.T) {
	t.Parallel()

	m := newManager(t, nil)
	ev := &market.Event{ID: "e1"}
	basket := opportunity.New(opportunity.MultiOutcomeArb, opportunity.BuyAllNo, 5, 99, time.Time{}).
		OnEvent(ev, []*market.Market{
			{ID: "a", YesPrice: 0.45, NoPrice: 0.55},
			{ID: "b", YesPrice: 0.40, NoPrice: 0.60},
		}, market.SideNo)

	d := m.Evaluate(basket)
	require.True(t, d.Approved)
	require.True(t, d.Stake.Equal(decimal.NewFromInt(40)), "stake %s", d.Stake)

	// Only the leg on "a" was bought.
	require.True(t, m.Resize(d.ReservationID, decimal.RequireFromString("22"), []string{"a"}))

	st := m.State()
	assert.Equal(t, 1, st.OpenPositions)
	assert.True(t, st.TotalExposure.Equal(decimal.NewFromInt(22)), "total %s", st.TotalExposure)
	assert.True(t, st.MarketExposure["a"].Equal(decimal.NewFromInt(22)))
	_, held := st.MarketExposure["b"]
	assert.False(t, held)

	again := m.Evaluate(arb("a"))
	require.True(t, again.Approved)
	assert.True(t, again.Stake.Equal(decimal.NewFromInt(18)), "stake %s", again.Stake)

	m.Release(d.ReservationID)
	assert.True(t, m.State().MarketExposure["a"].Equal(decimal.NewFromInt(18)))
}

func TestResize_Edges(t *testing.T) {
	t.Parallel()

	m := newManager(t, nil)
	assert.False(t, m.Resize("missing", decimal.NewFromInt(5), nil))

	d := m.Evaluate(arb("m1"))
	require.True(t, d.Approved)

	require.True(t, m.Resize(d.ReservationID, decimal.NewFromInt(12), nil))
	assert.True(t, m.State().MarketExposure["m1"].Equal(decimal.NewFromInt(12)))

	require.True(t, m.Resize(d.ReservationID, decimal.Zero, nil))
	st := m.State()
	assert.Zero(t, st.OpenPositions)
	assert.True(t, st.TotalExposure.IsZero())
}

func TestBasketCountsAgainstEveryLeg(t *testing.T) {
	t.Parallel()

	m := newManager(t, nil)
	ev := &market.Event{ID: "e1"}
	markets := []*market.Market{
		{ID: "a", YesPrice: 0.45, NoPrice: 0.55},
		{ID: "b", YesPrice: 0.40, NoPrice: 0.60},
		{ID: "c", YesPrice: 0.20, NoPrice: 0.80},
	}
	basket := opportunity.New(opportunity.MultiOutcomeArb, opportunity.BuyAllNo, 5, 99, time.Time{}).
		OnEvent(ev, markets, market.SideNo)

	require.True(t, m.Evaluate(basket).Approved)
	d := m.Evaluate(arb("b"))
	assert.False(t, d.Approved)
	assert.Equal(t, ReasonPerMarketCap, d.Reason)
}

func TestEvaluate_ConcurrentApprovalsRespectCeiling(t *testing.T) {
	t.Parallel()

	m := newManager(t, func(c *Config) {
		c.Capital = decimal.NewFromInt(1000)
		c.MaxExposurePct = 0.5
		c.KellyMaxFraction = 0.1
		c.MaxOpenPositions = 100
	})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Evaluate(arb("m" + strconv.Itoa(i))).Approved {
				mu.Lock()
				approved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, approved)
	assert.True(t, m.State().TotalExposure.Equal(decimal.NewFromInt(500)))
}

func TestEvaluate_CapsNeverExceeded(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	m := newManager(t, func(c *Config) {
		c.Capital = decimal.NewFromInt(1000)
		c.MaxOpenPositions = 20
	})
	var open []string

	for i := 0; i < 2000; i++ {
		if len(open) > 0 && rng.Intn(3) == 0 {
			idx := rng.Intn(len(open))
			m.Release(open[idx])
			open = append(open[:idx], open[idx+1:]...)
			continue
		}

		o := opportunity.New(opportunity.NearCertain, opportunity.BuyYes, 1+rng.Float64()*40, 50+rng.Intn(50), time.Time{}).
			OnMarket(&market.Market{ID: "m" + strconv.Itoa(rng.Intn(6)), YesPrice: 0.9, NoPrice: 0.1})
		d := m.Evaluate(o)
		if d.Approved {
			open = append(open, d.ReservationID)
		}

		st := m.State()
		marketCap := st.Equity.Mul(decimal.NewFromFloat(0.2))
		for id, exp := range st.MarketExposure {
			assert.True(t, exp.LessThanOrEqual(marketCap), "iteration %d market %s exposure %s", i, id, exp)
		}
		assert.True(t, st.TotalExposure.LessThanOrEqual(st.Equity.Mul(decimal.NewFromFloat(0.8))), "iteration %d", i)
		assert.LessOrEqual(t, st.OpenPositions, 20)
	}
}

func TestDrawdownBreaker_TripAndReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStateStore()
	m := newManager(t, func(c *Config) {
		c.Capital = decimal.NewFromInt(100)
		c.Store = store
	})

	d := m.Evaluate(arb("m1"))
	require.True(t, d.Approved)
	m.Settle(ctx, d.ReservationID, decimal.NewFromInt(10))
	assert.True(t, m.State().Peak.Equal(decimal.NewFromInt(110)))
	assert.NoError(t, m.CheckTradable())

	d = m.Evaluate(arb("m2"))
	require.True(t, d.Approved)
	m.Settle(ctx, d.ReservationID, decimal.NewFromInt(-30))

	st := m.State()
	assert.True(t, st.BreakerTripped)
	assert.InDelta(t, 30.0/110.0, st.Drawdown, 1e-9)
	assert.ErrorIs(t, m.CheckTradable(), ErrBreakerTripped)

	rejected := m.Evaluate(arb("m3"))
	assert.False(t, rejected.Approved)
	assert.Equal(t, ReasonBreaker, rejected.Reason)

	// A small gain does not clear the trip.
	m.Settle(ctx, "unknown", decimal.NewFromInt(1))
	assert.True(t, m.State().BreakerTripped)

	require.NoError(t, m.ResetBreaker(ctx))
	st = m.State()
	assert.False(t, st.BreakerTripped)
	assert.True(t, st.Peak.Equal(decimal.NewFromInt(81)))
	assert.True(t, m.Evaluate(arb("m3")).Approved)
}

func TestRestore_KeepsTripAcrossRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStateStore()
	first := newManager(t, func(c *Config) {
		c.Capital = decimal.NewFromInt(100)
		c.Store = store
	})
	d := first.Evaluate(arb("m1"))
	require.True(t, d.Approved)
	first.Settle(ctx, d.ReservationID, decimal.NewFromInt(-40))
	require.True(t, first.State().BreakerTripped)

	second := newManager(t, func(c *Config) {
		c.Capital = decimal.NewFromInt(100)
		c.Store = store
	})
	require.NoError(t, second.Restore(ctx))

	st := second.State()
	assert.True(t, st.BreakerTripped)
	assert.True(t, st.RealizedPnL.Equal(decimal.NewFromInt(-40)))
	assert.False(t, second.Evaluate(arb("m2")).Approved)
}

func TestResetFromAnotherProcess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStateStore()
	cfg := func(c *Config) {
		c.Capital = decimal.NewFromInt(100)
		c.Store = store
	}

	bot := newManager(t, cfg)
	d := bot.Evaluate(arb("m1"))
	require.True(t, d.Approved)
	bot.Settle(ctx, d.ReservationID, decimal.NewFromInt(-40))
	require.ErrorIs(t, bot.CheckTradable(), ErrBreakerTripped)

	cli := newManager(t, cfg)
	require.NoError(t, cli.Restore(ctx))
	require.True(t, cli.State().BreakerTripped)
	require.NoError(t, cli.ResetBreaker(ctx))

	require.NoError(t, bot.CheckTradable())
	st := bot.State()
	assert.False(t, st.BreakerTripped)
	assert.True(t, st.Peak.Equal(decimal.NewFromInt(60)), "peak %s", st.Peak)

	// A small loss after the reset is measured against the rebased peak and must not
	// write the old trip back.
	d = bot.Evaluate(arb("m2"))
	require.True(t, d.Approved)
	bot.Settle(ctx, d.ReservationID, decimal.NewFromInt(-1))

	saved, err := store.LoadBreaker(ctx)
	require.NoError(t, err)
	assert.False(t, saved.Tripped)
	assert.NoError(t, bot.CheckTradable())
}

func TestObserve_MergesStoredReset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStateStore()
	logger := zaptest.NewLogger(t)

	running, err := NewDrawdownBreaker(0.25, store, logger)
	require.NoError(t, err)
	require.True(t, running.Observe(ctx, 0.4, decimal.NewFromInt(100), decimal.NewFromInt(-40), testNow))

	other, err := NewDrawdownBreaker(0.25, store, logger)
	require.NoError(t, err)
	_, err = other.Restore(ctx)
	require.NoError(t, err)
	require.NoError(t, other.Reset(ctx, decimal.NewFromInt(60)))

	// The running process has not refreshed yet; its next observation sees the reset.
	assert.False(t, running.Observe(ctx, 0.01, decimal.NewFromInt(60), decimal.NewFromInt(-41), testNow))
	assert.False(t, running.IsTripped())

	saved, err := store.LoadBreaker(ctx)
	require.NoError(t, err)
	assert.False(t, saved.Tripped)
	assert.True(t, saved.Peak.Equal(decimal.NewFromInt(60)))
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "nil-logger", mutate: func(c *Config) { c.Logger = nil }},
		{name: "zero-capital", mutate: func(c *Config) { c.Capital = decimal.Zero }},
		{name: "exposure-above-one", mutate: func(c *Config) { c.MaxExposurePct = 1.5 }},
		{name: "zero-market-cap", mutate: func(c *Config) { c.PerMarketCapPct = 0 }},
		{name: "zero-open-positions", mutate: func(c *Config) { c.MaxOpenPositions = 0 }},
		{name: "kelly-out-of-range", mutate: func(c *Config) { c.KellyMaxFraction = 0 }},
		{name: "breaker-out-of-range", mutate: func(c *Config) { c.DrawdownBreakerPct = 0 }},
		{name: "negative-min-stake", mutate: func(c *Config) { c.MinStake = decimal.NewFromInt(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

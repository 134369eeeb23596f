package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedPlacer returns the scripted errors in order, then succeeds.
type scriptedPlacer struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	orders []Order
	hook   func(ctx context.Context, call int) error
}

func (p *scriptedPlacer) PlaceOrder(ctx context.Context, order Order) (*OrderResult, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	var err error
	if len(p.errs) > 0 {
		err = p.errs[0]
		p.errs = p.errs[1:]
	}
	hook := p.hook
	p.mu.Unlock()

	if hook != nil {
		if herr := hook(ctx, call); herr != nil {
			return nil, herr
		}
	}
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.orders = append(p.orders, order)
	p.mu.Unlock()
	return &OrderResult{OrderID: "o-" + order.TokenID, Status: "matched", Price: order.Price, Shares: order.Shares}, nil
}

func (p *scriptedPlacer) Mode() Mode { return ModeLive }

func newExecutor(t *testing.T, placer OrderPlacer) *Executor {
	t.Helper()
	e, err := New(&Config{
		Placer:         placer,
		MaxRetries:     2,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     40 * time.Millisecond,
		BackoffMult:    2,
		Logger:         zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func mismatch() *opportunity.Opportunity {
	m := &market.Market{ID: "m1", YesPrice: 0.52, NoPrice: 0.45, TokenIDYes: "y1", TokenIDNo: "n1"}
	return opportunity.New(opportunity.YesNoMismatch, opportunity.BuyBoth, 3, 99, time.Time{}).OnMarket(m)
}

func transient() error {
	return types.NewTransientError(types.ErrCodeNetwork, errors.New("connection reset"))
}

func TestExecute_DryRunFillsEveryLeg(t *testing.T) {
	t.Parallel()

	placer := NewDryRunPlacer(zaptest.NewLogger(t))
	e := newExecutor(t, placer)

	fill, err := e.Execute(context.Background(), mismatch(), decimal.NewFromInt(97))
	require.NoError(t, err)
	assert.Equal(t, FillFilled, fill.Status)
	assert.Equal(t, ModeDryRun, fill.Mode)
	require.Len(t, fill.Legs, 2)

	// 97 / 0.97 = 100 shares of each side.
	assert.True(t, fill.Shares.Equal(decimal.NewFromInt(100)), "shares %s", fill.Shares)
	assert.Equal(t, market.SideYes, fill.Legs[0].Side)
	assert.Equal(t, market.SideNo, fill.Legs[1].Side)
	assert.True(t, fill.Cost().Equal(decimal.NewFromInt(97)), "cost %s", fill.Cost())
	assert.Len(t, placer.Orders(), 2)
}

func TestExecute_RetryPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		errs         []error
		wantStatus   FillStatus
		wantCalls    int
		wantErr      bool
		wantPermErr  bool
		wantAttempts int
	}{
		{
			name:         "transient-then-success",
			errs:         []error{transient(), transient()},
			wantStatus:   FillFilled,
			wantCalls:    4,
			wantAttempts: 4,
		},
		{
			name:         "permanent-not-retried",
			errs:         []error{types.NewPermanentError(types.ErrNotEnoughBalance, "not enough balance")},
			wantStatus:   FillFailed,
			wantCalls:    1,
			wantErr:      true,
			wantPermErr:  true,
			wantAttempts: 1,
		},
		{
			name:         "retries-exhausted",
			errs:         []error{transient(), transient(), transient()},
			wantStatus:   FillFailed,
			wantCalls:    3,
			wantErr:      true,
			wantAttempts: 3,
		},
		{
			name:         "second-leg-fails",
			errs:         []error{nil, types.NewPermanentError(types.ErrMarketNotReady, "market not ready")},
			wantStatus:   FillPartial,
			wantCalls:    2,
			wantErr:      true,
			wantPermErr:  true,
			wantAttempts: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			placer := &scriptedPlacer{errs: tt.errs}
			fill, err := newExecutor(t, placer).Execute(context.Background(), mismatch(), decimal.NewFromInt(50))

			require.NotNil(t, fill)
			assert.Equal(t, tt.wantStatus, fill.Status)
			assert.Equal(t, tt.wantCalls, placer.calls)
			assert.Equal(t, tt.wantAttempts, fill.Attempts)
			if tt.wantErr {
				require.Error(t, err)
				assert.NotEmpty(t, fill.Error)
				assert.Equal(t, tt.wantPermErr, types.IsPermanent(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestExecute_CancelledMarksUnknown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	placer := &scriptedPlacer{hook: func(ctx context.Context, _ int) error {
		cancel()
		return ctx.Err()
	}}

	fill, err := newExecutor(t, placer).Execute(ctx, mismatch(), decimal.NewFromInt(50))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, FillUnknown, fill.Status)
}

func TestExecute_InvalidLegs(t *testing.T) {
	t.Parallel()

	e := newExecutor(t, &scriptedPlacer{})

	noLegs := opportunity.New(opportunity.NewsLag, opportunity.BuyYes, 5, 70, time.Time{})
	_, err := e.Execute(context.Background(), noLegs, decimal.NewFromInt(10))
	assert.True(t, types.IsPermanent(err))

	settled := opportunity.New(opportunity.NearCertain, opportunity.BuyYes, 5, 90, time.Time{}).
		OnMarket(&market.Market{ID: "m", YesPrice: 1, NoPrice: 0})
	_, err = e.Execute(context.Background(), settled, decimal.NewFromInt(10))
	assert.True(t, types.IsPermanent(err))

	fill, err := e.Execute(context.Background(), mismatch(), decimal.NewFromFloat(0.001))
	assert.True(t, types.IsPermanent(err))
	assert.Equal(t, FillFailed, fill.Status)
}

func TestBuildOrders_EqualShares(t *testing.T) {
	t.Parallel()

	ev := &market.Event{ID: "e"}
	markets := []*market.Market{
		{ID: "a", YesPrice: 0.45, NoPrice: 0.55, TokenIDNo: "a-no"},
		{ID: "b", YesPrice: 0.40, NoPrice: 0.60, TokenIDNo: "b-no"},
		{ID: "c", YesPrice: 0.20, NoPrice: 0.80, TokenIDNo: "c-no"},
	}
	basket := opportunity.New(opportunity.MultiOutcomeArb, opportunity.BuyAllNo, 5, 99, time.Time{}).
		OnEvent(ev, markets, market.SideNo)

	orders, shares, err := buildOrders(basket, decimal.NewFromInt(39))
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.True(t, shares.Equal(decimal.NewFromInt(20)), "shares %s", shares)
	for _, o := range orders {
		assert.Equal(t, market.SideNo, o.Side)
		assert.True(t, o.Shares.Equal(shares))
	}
	assert.Equal(t, "b-no", orders[1].TokenID)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	_, err := New(&Config{Placer: &scriptedPlacer{}, InitialBackoff: time.Second})
	assert.Error(t, err)
	_, err = New(&Config{Logger: logger, InitialBackoff: time.Second})
	assert.Error(t, err)
	_, err = New(&Config{Logger: logger, Placer: &scriptedPlacer{}})
	assert.Error(t, err)
	_, err = New(&Config{Logger: logger, Placer: &scriptedPlacer{}, InitialBackoff: time.Second, MaxRetries: -1})
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	m, err := ParseMode("live")
	require.NoError(t, err)
	assert.Equal(t, ModeLive, m)
	_, err = ParseMode("paper")
	assert.Error(t, err)
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/FewZ2372/polymarket-bot/internal/execution"
	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/internal/position"
	"github.com/FewZ2372/polymarket-bot/internal/risk"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

//nolint:gochecknoglobals // shared test clock
var testTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testOpportunity(question string) *opportunity.Opportunity {
	m := &market.Market{ID: "m1", Question: question, YesPrice: 0.9, NoPrice: 0.1, TokenIDYes: "y", TokenIDNo: "n"}
	o := opportunity.New(opportunity.NearCertain, opportunity.BuyYes, 11.1, 97, testTime).
		OnMarket(m).
		WithEvidence(opportunity.NearCertainEvidence{Pattern: "sun rises", Expected: 0.99, Observed: 0.9})
	o.Detector = "near-certain"
	o.Score = 42.5
	return o
}

func testFill() *execution.Fill {
	return &execution.Fill{
		ID:            "f-0001-aaaa",
		OpportunityID: "o-1",
		ReservationID: "r-1",
		Mode:          execution.ModeDryRun,
		Status:        execution.FillFilled,
		Stake:         decimal.NewFromInt(90),
		Shares:        decimal.NewFromInt(100),
		Legs: []execution.LegFill{
			{MarketID: "m1", Side: market.SideYes, TokenID: "y", Price: decimal.NewFromFloat(0.9), Shares: decimal.NewFromInt(100)},
		},
		Attempts:   1,
		ExecutedAt: testTime,
	}
}

func testPosition(state position.State) *position.Position {
	p := &position.Position{
		ID:            "p-0001-bbbb",
		FillID:        "f-0001-aaaa",
		OpportunityID: "o-1",
		ReservationID: "res-1",
		Type:          opportunity.NearCertain,
		Action:        opportunity.BuyYes,
		Legs:          []position.Leg{{MarketID: "m1", Side: market.SideYes, EntryPrice: decimal.NewFromFloat(0.9)}},
		Shares:        decimal.NewFromInt(100),
		EntryUnit:     decimal.NewFromFloat(0.9),
		TargetUnit:    decimal.NewFromInt(1),
		OpenedAt:      testTime,
		MaxHoldUntil:  testTime.Add(14 * 24 * time.Hour),
		State:         state,
	}
	if state == position.StateClosed {
		p.ExitReason = position.StateMarketResolved
		p.ExitUnit = decimal.NewFromInt(1)
		p.RealizedPnL = decimal.NewFromInt(10)
		p.ClosedAt = testTime.Add(time.Hour)
	}
	return p
}

func TestConsoleStorage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := NewConsoleStorageTo(&buf, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, s.StoreOpportunities(ctx, nil))
	assert.Empty(t, buf.String())

	require.NoError(t, s.StoreOpportunities(ctx, []*opportunity.Opportunity{testOpportunity("Will the sun rise tomorrow?")}))
	require.NoError(t, s.RecordExecution(ctx, testFill()))
	require.NoError(t, s.RecordPosition(ctx, testPosition(position.StateOpen)))
	require.NoError(t, s.RecordPosition(ctx, testPosition(position.StateClosed)))
	require.NoError(t, s.Close())

	out := buf.String()
	assert.Contains(t, out, "1 OPPORTUNITIES")
	assert.Contains(t, out, "NEAR_CERTAIN")
	assert.Contains(t, out, "Will the sun rise tomorrow?")
	assert.Contains(t, out, "EXECUTION f-0001-a [dry_run] stake=$90.00")
	assert.Contains(t, out, "POSITION p-0001-b opened")
	assert.Contains(t, out, "closed (MARKET_RESOLVED)")
	assert.Contains(t, out, "pnl=$10.00")
}

func TestClip(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcd…", clip("abcdefgh", 5))
}

func newMockPostgres(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}, mock
}

func TestPostgresStorage_StoreOpportunities(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)
	a := testOpportunity("a")
	b := testOpportunity("b")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO opportunities")
	for _, o := range []*opportunity.Opportunity{a, b} {
		prep.ExpectExec().
			WithArgs(
				o.ID,
				"NEAR_CERTAIN",
				"BUY_YES",
				"near-certain",
				o.Question,
				sqlmock.AnyArg(), // market_ids array
				sqlmock.AnyArg(), // event_id
				11.1,
				97,
				42.5,
				sqlmock.AnyArg(), // legs
				sqlmock.AnyArg(), // evidence
				testTime,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, s.StoreOpportunities(context.Background(), []*opportunity.Opportunity{a, b}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_StoreOpportunities_RollsBack(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO opportunities").
		ExpectExec().
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.StoreOpportunities(context.Background(), []*opportunity.Opportunity{testOpportunity("a")})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_RecordExecution(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)
	fill := testFill()

	mock.ExpectExec("INSERT INTO executions").
		WithArgs(
			fill.ID, fill.OpportunityID, sqlmock.AnyArg(), "dry_run", "filled",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 1, sqlmock.AnyArg(), testTime,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.RecordExecution(context.Background(), fill))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_RecordPosition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state position.State
	}{
		{name: "open", state: position.StateOpen},
		{name: "closed", state: position.StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, mock := newMockPostgres(t)
			p := testPosition(tt.state)

			mock.ExpectExec("INSERT INTO positions .* ON CONFLICT \\(id\\) DO UPDATE").
				WithArgs(
					p.ID, p.FillID, p.OpportunityID, "NEAR_CERTAIN", sqlmock.AnyArg(),
					sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					p.OpenedAt, p.MaxHoldUntil, string(tt.state),
					sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					p.ReservationID, "BUY_YES", false, sqlmock.AnyArg(),
				).
				WillReturnResult(sqlmock.NewResult(0, 1))

			require.NoError(t, s.RecordPosition(context.Background(), p))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStorage_LoadOpenPositions(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)
	columns := []string{
		"id", "fill_id", "opportunity_id", "reservation_id", "type", "action", "partial", "legs",
		"shares", "entry_unit", "target_unit", "take_profit_unit", "opened_at", "max_hold_until",
	}
	legs := `[{"market_id":"m1","side":"YES","token_id":"y","entry_price":"0.9"}]`
	mock.ExpectQuery("SELECT .* FROM positions WHERE state = \\$1").
		WithArgs("OPEN").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("p1", "f1", "o1", "res-1", "NEAR_CERTAIN", "BUY_YES", false, []byte(legs),
				"100", "0.9", "1", nil, testTime, testTime.Add(48*time.Hour)).
			AddRow("p2", "f2", "o2", nil, "MULTI_OUTCOME_ARB", nil, true, []byte(`[]`),
				"10", "0.55", "1", "0.8", testTime, testTime.Add(time.Hour)))

	got, err := s.LoadOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "res-1", first.ReservationID)
	assert.Equal(t, opportunity.BuyYes, first.Action)
	assert.Equal(t, position.StateOpen, first.State)
	require.Len(t, first.Legs, 1)
	assert.Equal(t, "m1", first.Legs[0].MarketID)
	assert.True(t, first.Cost().Equal(decimal.NewFromInt(90)), "cost %s", first.Cost())
	assert.True(t, first.TakeProfitUnit.IsZero())
	assert.Equal(t, testTime.Add(48*time.Hour), first.MaxHoldUntil)

	second := got[1]
	assert.Empty(t, second.ReservationID, "rows written before reservations were stored")
	assert.True(t, second.Partial)
	assert.True(t, second.TakeProfitUnit.Equal(decimal.NewFromFloat(0.8)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_LoadOpenPositions_Errors(t *testing.T) {
	t.Parallel()

	t.Run("query", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockPostgres(t)
		mock.ExpectQuery("SELECT .* FROM positions").WillReturnError(errors.New("conn reset"))
		_, err := s.LoadOpenPositions(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "conn reset")
	})

	t.Run("bad-legs", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockPostgres(t)
		mock.ExpectQuery("SELECT .* FROM positions").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "fill_id", "opportunity_id", "reservation_id", "type", "action", "partial", "legs",
				"shares", "entry_unit", "target_unit", "take_profit_unit", "opened_at", "max_hold_until",
			}).AddRow("p1", "f1", "o1", "r", "NEAR_CERTAIN", "BUY_YES", false, []byte(`{`),
				"1", "0.5", "1", nil, testTime, testTime))
		_, err := s.LoadOpenPositions(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unmarshal legs")
	})
}

func TestPostgresStorage_Migrate(t *testing.T) {
	t.Parallel()

	s, mock := newMockPostgres(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS opportunities").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Migrate(context.Background()))

	mock.ExpectClose()
	require.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarshalEvidence(t *testing.T) {
	t.Parallel()

	raw, err := marshalEvidence(opportunity.NearCertainEvidence{Pattern: "p", Expected: 0.99, Observed: 0.9})
	require.NoError(t, err)

	var decoded struct {
		Kind string                 `json:"kind"`
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "NEAR_CERTAIN", decoded.Kind)
	assert.Equal(t, "p", decoded.Data["pattern"])

	raw, err = marshalEvidence(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

type fakeKV struct {
	data   map[string][]byte
	getErr error
}

func (f *fakeKV) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeKV) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.data[key] = value.([]byte)
	return redis.NewStatusResult("OK", nil)
}

func TestRedisStateStore(t *testing.T) {
	t.Parallel()

	kv := &fakeKV{data: map[string][]byte{}}
	s := newRedisStateStore(kv, "", zaptest.NewLogger(t))
	ctx := context.Background()

	got, err := s.LoadBreaker(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "nothing saved yet")

	want := &risk.BreakerState{
		Tripped:   true,
		TrippedAt: testTime,
		Drawdown:  0.27,
		Peak:      decimal.NewFromInt(110),
		Realized:  decimal.NewFromInt(-20),
	}
	require.NoError(t, s.SaveBreaker(ctx, want))
	assert.Contains(t, kv.data, DefaultBreakerKey)

	got, err = s.LoadBreaker(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Tripped)
	assert.True(t, got.TrippedAt.Equal(testTime))
	assert.InDelta(t, 0.27, got.Drawdown, 1e-9)
	assert.True(t, got.Peak.Equal(decimal.NewFromInt(110)))
	assert.True(t, got.Realized.Equal(decimal.NewFromInt(-20)))

	assert.NoError(t, s.Close())
}

func TestRedisStateStore_Errors(t *testing.T) {
	t.Parallel()

	s := newRedisStateStore(&fakeKV{getErr: errors.New("connection refused")}, "k", zaptest.NewLogger(t))
	_, err := s.LoadBreaker(context.Background())
	assert.ErrorContains(t, err, "connection refused")

	corrupt := newRedisStateStore(&fakeKV{data: map[string][]byte{"k": []byte("{not json")}}, "k", zaptest.NewLogger(t))
	_, err = corrupt.LoadBreaker(context.Background())
	assert.ErrorContains(t, err, "unmarshal breaker state")
}

func TestRedisStateStore_BacksBreaker(t *testing.T) {
	t.Parallel()

	kv := &fakeKV{data: map[string][]byte{}}
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	first, err := risk.NewDrawdownBreaker(0.25, newRedisStateStore(kv, "", logger), logger)
	require.NoError(t, err)
	assert.True(t, first.Observe(ctx, 0.30, decimal.NewFromInt(100), decimal.NewFromInt(-30), testTime))

	restarted, err := risk.NewDrawdownBreaker(0.25, newRedisStateStore(kv, "", logger), logger)
	require.NoError(t, err)
	_, err = restarted.Restore(ctx)
	require.NoError(t, err)
	assert.True(t, restarted.IsTripped())
}

func TestRedisStateStore_ResetReachesRunningManager(t *testing.T) {
	t.Parallel()

	kv := &fakeKV{data: map[string][]byte{}}
	ctx := context.Background()
	newManager := func() *risk.Manager {
		logger := zaptest.NewLogger(t)
		m, err := risk.New(risk.Config{
			Capital:            decimal.NewFromInt(100),
			MaxExposurePct:     0.8,
			PerMarketCapPct:    0.2,
			MaxOpenPositions:   10,
			KellyMaxFraction:   0.3,
			MinStake:           decimal.NewFromInt(1),
			DrawdownBreakerPct: 0.25,
			Store:              newRedisStateStore(kv, "", logger),
			Logger:             logger,
		})
		require.NoError(t, err)
		require.NoError(t, m.Restore(ctx))
		return m
	}

	bot := newManager()
	d := bot.Evaluate(testOpportunity("Will it rain?"))
	require.True(t, d.Approved)
	bot.Settle(ctx, d.ReservationID, decimal.NewFromInt(-40))
	require.ErrorIs(t, bot.CheckTradable(), risk.ErrBreakerTripped)

	cli := newManager()
	require.True(t, cli.State().BreakerTripped)
	require.NoError(t, cli.ResetBreaker(ctx))

	require.NoError(t, bot.CheckTradable())

	d = bot.Evaluate(testOpportunity("Will it rain?"))
	require.True(t, d.Approved)
	bot.Settle(ctx, d.ReservationID, decimal.NewFromInt(1))

	var saved risk.BreakerState
	require.NoError(t, json.Unmarshal(kv.data[DefaultBreakerKey], &saved))
	assert.False(t, saved.Tripped)
	assert.False(t, saved.ResetAt.IsZero())
}

package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/internal/position"
	"github.com/FewZ2372/polymarket-bot/pkg/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const gammaMarketsBody = `[{
	"id": "540817",
	"question": "Will the ECB cut rates in March?",
	"active": true,
	"closed": false,
	"endDate": "2031-03-01T00:00:00Z",
	"outcomes": "[\"Yes\", \"No\"]",
	"outcomePrices": "[\"0.52\", \"0.45\"]",
	"clobTokenIds": "[\"tok-yes\", \"tok-no\"]",
	"volume24hr": 12000,
	"volumeNum": 250000
}]`

func gammaStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/markets":
			_, _ = w.Write([]byte(gammaMarketsBody))
		case "/events":
			_, _ = w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromEnv()
	require.NoError(t, err)
	cfg.ExecutionMode = "dry_run"
	cfg.StorageMode = "console"
	cfg.RiskStateStore = "memory"
	cfg.PriceStreamEnabled = false
	cfg.DetectorLexiconFile = ""
	cfg.DetectorsEnabled = nil
	return cfg
}

func TestNew_ScanOnly(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.PolymarketGammaURL = gammaStub(t).URL

	a, err := New(cfg, zaptest.NewLogger(t), &Options{ScanOnly: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.pool)
	assert.Nil(t, a.riskManager)
	assert.Nil(t, a.httpServer)
	assert.Error(t, a.Run(), "a scan-only build cannot run the trading loop")

	ranked, err := a.ScanOnce(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, ranked)
	assert.Equal(t, opportunity.YesNoMismatch, ranked[0].Type)
	assert.Equal(t, "540817", ranked[0].PrimaryMarketID())
	assert.InDelta(t, 3.0, ranked[0].ExpectedProfit, 1e-6)
}

func TestNew_DryRunWiring(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(t)
	cfg.HTTPPort = "0"

	a, err := New(cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)

	assert.NotNil(t, a.pool)
	assert.NotNil(t, a.positions)
	assert.NotNil(t, a.riskManager)
	assert.NotNil(t, a.httpServer)
	assert.Nil(t, a.wsManager, "the price stream is off by default")
	assert.Nil(t, a.stateCloser, "the memory store needs no closing")

	require.NoError(t, a.Shutdown())
}

const testPrivateKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func liveConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := defaultConfig(t)
	cfg.ExecutionMode = "live"
	cfg.HTTPPort = "0"
	cfg.PolymarketAPIKey = "key"
	cfg.PolymarketSecret = "c2VjcmV0"
	cfg.PolymarketPassphrase = "pass"
	cfg.PolymarketPrivateKey = "0x" + testPrivateKey
	return cfg
}

func TestNew_LiveWiresBalanceGuard(t *testing.T) {
	t.Parallel()

	a, err := New(liveConfig(t), zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	require.NotNil(t, a.balanceGuard)
	assert.True(t, a.balanceGuard.Status().Tradable)
	require.NoError(t, a.Shutdown())

	cfg := liveConfig(t)
	cfg.BalanceGuardEnabled = false
	a, err = New(cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	assert.Nil(t, a.balanceGuard)
	require.NoError(t, a.Shutdown())
}

func TestFundingAddress(t *testing.T) {
	t.Parallel()

	key, err := crypto.HexToECDSA(testPrivateKey)
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	cfg := liveConfig(t)
	addr, err := fundingAddress(cfg)
	require.NoError(t, err)
	assert.Equal(t, signer, addr)

	cfg.PolymarketProxyAddress = "0x00000000000000000000000000000000000000a1"
	addr, err = fundingAddress(cfg)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xa1"), addr)

	cfg.PolymarketProxyAddress = "not-an-address"
	_, err = fundingAddress(cfg)
	assert.Error(t, err)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{
			name:   "missing-lexicon-file",
			mutate: func(cfg *config.Config) { cfg.DetectorLexiconFile = "/nonexistent/lexicon.toml" },
		},
		{
			name:   "unknown-detector",
			mutate: func(cfg *config.Config) { cfg.DetectorsEnabled = []string{"astrology"} },
		},
		{
			name: "live-mode-with-bad-key",
			mutate: func(cfg *config.Config) {
				cfg.ExecutionMode = "live"
				cfg.PolymarketAPIKey = "key"
				cfg.PolymarketSecret = "c2VjcmV0"
				cfg.PolymarketPassphrase = "pass"
				cfg.PolymarketPrivateKey = "not-hex"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := defaultConfig(t)
			tt.mutate(cfg)
			a, err := New(cfg, zaptest.NewLogger(t), nil)
			assert.Error(t, err)
			assert.Nil(t, a)
		})
	}

	_, err := New(nil, zaptest.NewLogger(t), nil)
	assert.Error(t, err)
	_, err = New(defaultConfig(t), nil, nil)
	assert.Error(t, err)
}

func TestResetBreaker_MemoryStore(t *testing.T) {
	t.Parallel()

	state, err := ResetBreaker(context.Background(), defaultConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.False(t, state.BreakerTripped)
	assert.True(t, state.Peak.Equal(state.Equity))
}

type fakeLoader struct {
	positions []*position.Position
	err       error
}

func (f fakeLoader) LoadOpenPositions(context.Context) ([]*position.Position, error) {
	return f.positions, f.err
}

type noPrices struct{}

func (noPrices) Markets(context.Context, []string) (map[string]*market.Market, error) {
	return map[string]*market.Market{}, nil
}

func openPosition(id, fillID, reservationID, marketID string, price float64, shares int64) *position.Position {
	return &position.Position{
		ID:            id,
		FillID:        fillID,
		ReservationID: reservationID,
		Type:          opportunity.NearCertain,
		Action:        opportunity.BuyYes,
		Legs:          []position.Leg{{MarketID: marketID, Side: market.SideYes, EntryPrice: decimal.NewFromFloat(price)}},
		Shares:        decimal.NewFromInt(shares),
		EntryUnit:     decimal.NewFromFloat(price),
		TargetUnit:    decimal.NewFromInt(1),
		OpenedAt:      time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		MaxHoldUntil:  time.Date(2030, 1, 15, 0, 0, 0, 0, time.UTC),
		State:         position.StateOpen,
	}
}

func TestRestoreOpenPositions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	riskMgr := newRiskManager(t, 1000)
	positions, err := position.New(&position.Config{
		Policy:   position.Policy{TakeProfitFraction: 0.5, StopLossPct: 0.3, MaxHold: 14 * 24 * time.Hour},
		Prices:   noPrices{},
		Settler:  riskMgr,
		Interval: time.Minute,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	loader := fakeLoader{positions: []*position.Position{
		openPosition("p1", "f1", "res-old", "m1", 0.5, 100),
		openPosition("p2", "f2", "", "m2", 0.4, 50),
		openPosition("p3", "f1", "res-dup", "m3", 0.9, 10),
	}}
	require.NoError(t, restoreOpenPositions(ctx, loader, riskMgr, positions, zaptest.NewLogger(t)))

	open := positions.OpenPositions()
	require.Len(t, open, 2)

	st := riskMgr.State()
	assert.Equal(t, 2, st.OpenPositions)
	assert.True(t, st.TotalExposure.Equal(decimal.NewFromInt(70)), "exposure %s", st.TotalExposure)
	assert.True(t, st.MarketExposure["m1"].Equal(decimal.NewFromInt(50)))
	_, dup := st.MarketExposure["m3"]
	assert.False(t, dup, "a skipped duplicate must not hold exposure")

	var second *position.Position
	for _, p := range open {
		if p.ID == "p2" {
			second = p
		}
	}
	require.NotNil(t, second)
	require.NotEmpty(t, second.ReservationID)

	riskMgr.Settle(ctx, second.ReservationID, decimal.Zero)
	assert.True(t, riskMgr.State().TotalExposure.Equal(decimal.NewFromInt(50)))
}

func TestRestoreOpenPositions_LoadError(t *testing.T) {
	t.Parallel()

	riskMgr := newRiskManager(t, 1000)
	positions, err := position.New(&position.Config{
		Policy:   position.Policy{TakeProfitFraction: 0.5, StopLossPct: 0.3, MaxHold: time.Hour},
		Prices:   noPrices{},
		Settler:  riskMgr,
		Interval: time.Minute,
		Logger:   zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	err = restoreOpenPositions(context.Background(), fakeLoader{err: errors.New("db gone")}, riskMgr, positions, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db gone")
	assert.Zero(t, riskMgr.State().OpenPositions)
}

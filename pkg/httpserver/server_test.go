package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/internal/position"
	"github.com/FewZ2372/polymarket-bot/internal/risk"
	"github.com/FewZ2372/polymarket-bot/pkg/healthprobe"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeOpps []*opportunity.Opportunity

func (f fakeOpps) LatestOpportunities() []*opportunity.Opportunity { return f }

type fakePositions []*position.Position

func (f fakePositions) Positions() []*position.Position { return f }

type fakeRisk struct {
	state    risk.State
	resetErr error
	resets   int
}

func (f *fakeRisk) State() risk.State { return f.state }

func (f *fakeRisk) ResetBreaker(context.Context) error {
	if f.resetErr != nil {
		return f.resetErr
	}
	f.resets++
	f.state.BreakerTripped = false
	return nil
}

func testRouter(t *testing.T, cfg *Config) http.Handler {
	t.Helper()
	cfg.Logger = zaptest.NewLogger(t)
	if cfg.HealthChecker == nil {
		cfg.HealthChecker = healthprobe.New()
	}
	return NewRouter(cfg)
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	return doAuth(t, h, method, target, "")
}

func doAuth(t *testing.T, h http.Handler, method, target, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	h.ServeHTTP(rec, req)
	return rec
}

const testAdminToken = "s3cret-token"

func rankedOpps() fakeOpps {
	m := &market.Market{ID: "m1", Question: "Will it rain?", YesPrice: 0.52, NoPrice: 0.45, TokenIDYes: "y", TokenIDNo: "n"}
	first := opportunity.New(opportunity.YesNoMismatch, opportunity.BuyBoth, 3.09, 99, time.Time{}).
		OnMarket(m).
		WithEvidence(opportunity.MismatchEvidence{YesPrice: 0.52, NoPrice: 0.45, PriceSum: 0.97})
	first.Score = 0.8
	second := opportunity.New(opportunity.NearCertain, opportunity.BuyYes, 8, 90, time.Time{}).OnMarket(m)
	return fakeOpps{first, second}
}

func TestOpportunities(t *testing.T) {
	t.Parallel()

	h := testRouter(t, &Config{Opportunities: rankedOpps()})

	rec := do(t, h, http.MethodGet, "/api/opportunities")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []struct {
		Rank   int       `json:"rank"`
		Type   string    `json:"type"`
		Action string    `json:"action"`
		Legs   []LegView `json:"legs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, 1, views[0].Rank)
	assert.Equal(t, "YES_NO_MISMATCH", views[0].Type)
	assert.Equal(t, "BUY_BOTH", views[0].Action)
	assert.Len(t, views[0].Legs, 2)
	assert.Contains(t, rec.Body.String(), `"price_sum":0.97`)

	rec = do(t, h, http.MethodGet, "/api/opportunities?limit=1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	assert.Len(t, views, 1)

	rec = do(t, h, http.MethodGet, "/api/opportunities?limit=-3")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPositions_FilterByState(t *testing.T) {
	t.Parallel()

	h := testRouter(t, &Config{Positions: fakePositions{
		{ID: "p1", State: position.StateOpen, Shares: decimal.NewFromInt(10)},
		{ID: "p2", State: position.StateClosed, ExitReason: position.StateStopLoss},
	}})

	var got []position.Position
	rec := do(t, h, http.MethodGet, "/api/positions")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	rec = do(t, h, http.MethodGet, "/api/positions?state=CLOSED")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].ID)
	assert.Equal(t, position.StateStopLoss, got[0].ExitReason)
}

func TestRisk_StateAndReset(t *testing.T) {
	t.Parallel()

	ctl := &fakeRisk{state: risk.State{Capital: decimal.NewFromInt(100), Drawdown: 0.3, BreakerTripped: true}}
	h := testRouter(t, &Config{Risk: ctl, AdminToken: testAdminToken})
	bearer := "Bearer " + testAdminToken

	rec := do(t, h, http.MethodGet, "/api/risk")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"breaker_tripped":true`)

	rec = do(t, h, http.MethodGet, "/api/risk/reset")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, "reset is POST only")

	rec = doAuth(t, h, http.MethodPost, "/api/risk/reset", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctl.resets)
	assert.Contains(t, rec.Body.String(), `"breaker_tripped":false`)

	ctl.resetErr = errors.New("redis down")
	rec = doAuth(t, h, http.MethodPost, "/api/risk/reset", bearer)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis down")
}

func TestRiskReset_RequiresAdminToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		token         string
		authorization string
		wantStatus    int
		wantResets    int
	}{
		{name: "no-token-configured", authorization: "Bearer anything", wantStatus: http.StatusForbidden},
		{name: "missing-header", token: testAdminToken, wantStatus: http.StatusUnauthorized},
		{name: "wrong-token", token: testAdminToken, authorization: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "not-bearer", token: testAdminToken, authorization: testAdminToken, wantStatus: http.StatusUnauthorized},
		{name: "valid", token: testAdminToken, authorization: "Bearer " + testAdminToken, wantStatus: http.StatusOK, wantResets: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctl := &fakeRisk{state: risk.State{BreakerTripped: true}}
			h := testRouter(t, &Config{Risk: ctl, AdminToken: tt.token})

			rec := doAuth(t, h, http.MethodPost, "/api/risk/reset", tt.authorization)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantResets, ctl.resets)
		})
	}
}

func TestUnavailableSources(t *testing.T) {
	t.Parallel()

	h := testRouter(t, &Config{AdminToken: testAdminToken})
	for _, target := range []string{"/api/opportunities", "/api/positions", "/api/risk"} {
		rec := do(t, h, http.MethodGet, target)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
	rec := doAuth(t, h, http.MethodPost, "/api/risk/reset", "Bearer "+testAdminToken)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()

	hc := healthprobe.New()
	h := testRouter(t, &Config{HealthChecker: hc})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/ready").Code)
	hc.MarkCycle(time.Now())
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready").Code)

	rec := do(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(&Config{Port: "0", HealthChecker: healthprobe.New()})
	assert.Error(t, err)
	_, err = New(&Config{Port: "0", Logger: zaptest.NewLogger(t)})
	assert.Error(t, err)

	s, err := New(&Config{Port: "0", Logger: zaptest.NewLogger(t), HealthChecker: healthprobe.New()})
	require.NoError(t, err)
	assert.NoError(t, s.Shutdown(context.Background()))
}

// Package risk gates ranked opportunities against exposure limits and sizes approved trades.
package risk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Rejection reasons reported in Decision.Reason and the rejections metric.
const (
	ReasonBreaker       = "circuit-breaker"
	ReasonMaxOpen       = "max-open-positions"
	ReasonNoEdge        = "no-edge"
	ReasonPerMarketCap  = "per-market-cap"
	ReasonTotalExposure = "total-exposure"
	ReasonBelowMinStake = "below-min-stake"
)

// refreshTimeout bounds the store lookup CheckTradable makes while the breaker is tripped.
const refreshTimeout = 2 * time.Second

// Config holds the risk limits. Percentages are fractions of current equity.
type Config struct {
	Capital            decimal.Decimal
	MaxExposurePct     float64
	PerMarketCapPct    float64
	MaxOpenPositions   int
	KellyMaxFraction   float64
	MinStake           decimal.Decimal
	DrawdownBreakerPct float64
	Store              StateStore
	Logger             *zap.Logger
}

// Validate checks the limits.
func (c *Config) Validate() error {
	if !c.Capital.IsPositive() {
		return errors.New("capital must be positive")
	}
	if c.MaxExposurePct <= 0 || c.MaxExposurePct > 1 {
		return fmt.Errorf("max exposure pct must be in (0,1], got %v", c.MaxExposurePct)
	}
	if c.PerMarketCapPct <= 0 || c.PerMarketCapPct > 1 {
		return fmt.Errorf("per-market cap pct must be in (0,1], got %v", c.PerMarketCapPct)
	}
	if c.MaxOpenPositions <= 0 {
		return errors.New("max open positions must be positive")
	}
	if c.KellyMaxFraction <= 0 || c.KellyMaxFraction > 1 {
		return fmt.Errorf("kelly max fraction must be in (0,1], got %v", c.KellyMaxFraction)
	}
	if c.MinStake.IsNegative() {
		return errors.New("min stake cannot be negative")
	}
	return nil
}

// Decision is the outcome of a risk check. A rejection is a normal result, not an error.
type Decision struct {
	Approved      bool
	Reason        string
	Stake         decimal.Decimal
	KellyFraction float64
	ReservationID string
}

// State is a point-in-time copy of the risk ledger.
type State struct {
	Capital        decimal.Decimal            `json:"capital"`
	Equity         decimal.Decimal            `json:"equity"`
	Peak           decimal.Decimal            `json:"peak"`
	RealizedPnL    decimal.Decimal            `json:"realized_pnl"`
	TotalExposure  decimal.Decimal            `json:"total_exposure"`
	MarketExposure map[string]decimal.Decimal `json:"market_exposure"`
	OpenPositions  int                        `json:"open_positions"`
	Drawdown       float64                    `json:"drawdown"`
	BreakerTripped bool                       `json:"breaker_tripped"`
	TrippedAt      time.Time                  `json:"tripped_at,omitempty"`
}

type reservation struct {
	markets []string
	stake   decimal.Decimal
}

// Manager is the single writer of the risk ledger. Evaluate checks limits and reserves the stake
// under one lock, so two concurrent approvals can never share the same headroom.
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	breaker *DrawdownBreaker

	maxExposurePct  decimal.Decimal
	perMarketCapPct decimal.Decimal

	mu           sync.Mutex
	realized     decimal.Decimal
	peak         decimal.Decimal
	total        decimal.Decimal
	byMarket     map[string]decimal.Decimal
	reservations map[string]reservation

	now func() time.Time
}

// New creates a risk manager.
func New(cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStateStore()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk config: %w", err)
	}

	breaker, err := NewDrawdownBreaker(cfg.DrawdownBreakerPct, cfg.Store, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create drawdown breaker: %w", err)
	}

	return &Manager{
		cfg:             cfg,
		logger:          cfg.Logger,
		breaker:         breaker,
		maxExposurePct:  decimal.NewFromFloat(cfg.MaxExposurePct),
		perMarketCapPct: decimal.NewFromFloat(cfg.PerMarketCapPct),
		realized:        decimal.Zero,
		peak:            cfg.Capital,
		total:           decimal.Zero,
		byMarket:        make(map[string]decimal.Decimal),
		reservations:    make(map[string]reservation),
		now:             time.Now,
	}, nil
}

// Restore loads the persisted breaker state, including realized P&L and peak capital.
func (m *Manager) Restore(ctx context.Context) error {
	st, err := m.breaker.Restore(ctx)
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.realized = st.Realized
	if st.Peak.IsPositive() {
		m.peak = st.Peak
	}
	RealizedPnLUSD.Set(m.realized.InexactFloat64())
	DrawdownRatio.Set(st.Drawdown)

	m.logger.Info("risk-state-restored",
		zap.String("realized-pnl", m.realized.StringFixed(2)),
		zap.String("peak", m.peak.StringFixed(2)),
		zap.Bool("breaker-tripped", st.Tripped))
	return nil
}

// CheckTradable returns ErrBreakerTripped while trading is halted. While tripped it first
// looks for a reset made by another process.
func (m *Manager) CheckTradable() error {
	if !m.breaker.IsTripped() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("risk-refresh-failed", zap.Error(err))
	}
	if m.breaker.IsTripped() {
		return ErrBreakerTripped
	}
	return nil
}

// Refresh adopts a breaker reset stored by another process and rebases peak capital to it.
func (m *Manager) Refresh(ctx context.Context) error {
	st, err := m.breaker.Refresh(ctx)
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}

	m.mu.Lock()
	if st.Peak.IsPositive() {
		m.peak = st.Peak
	}
	peak := m.peak
	m.mu.Unlock()

	m.logger.Warn("risk-breaker-reset-adopted", zap.String("peak", peak.StringFixed(2)))
	return nil
}

// Evaluate applies every risk check to o and, on approval, reserves the stake.
// The caller must Release or Settle the returned reservation.
func (m *Manager) Evaluate(o *opportunity.Opportunity) Decision {
	if o == nil {
		return m.reject(nil, ReasonNoEdge, 0)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.breaker.IsTripped() {
		return m.reject(o, ReasonBreaker, 0)
	}
	if len(m.reservations) >= m.cfg.MaxOpenPositions {
		return m.reject(o, ReasonMaxOpen, 0)
	}

	f := KellyFraction(o.Confidence, o.ExpectedProfit, m.cfg.KellyMaxFraction)
	if f <= 0 {
		return m.reject(o, ReasonNoEdge, f)
	}

	equity := m.equity()
	stake := equity.Mul(decimal.NewFromFloat(f))

	markets := exposureKeys(o)
	marketCap := equity.Mul(m.perMarketCapPct)
	marketRoom := marketCap
	for _, id := range markets {
		room := marketCap.Sub(m.byMarket[id])
		if room.LessThan(marketRoom) {
			marketRoom = room
		}
	}
	totalRoom := equity.Mul(m.maxExposurePct).Sub(m.total)

	limitedBy := ""
	if stake.GreaterThan(marketRoom) {
		stake = marketRoom
		limitedBy = ReasonPerMarketCap
	}
	if stake.GreaterThan(totalRoom) {
		stake = totalRoom
		limitedBy = ReasonTotalExposure
	}
	stake = stake.RoundDown(2)

	if !stake.IsPositive() || stake.LessThan(m.cfg.MinStake) {
		reason := ReasonBelowMinStake
		if limitedBy != "" {
			reason = limitedBy
		}
		return m.reject(o, reason, f)
	}

	id := uuid.New().String()
	m.reservations[id] = reservation{markets: markets, stake: stake}
	for _, mk := range markets {
		m.byMarket[mk] = m.byMarket[mk].Add(stake)
	}
	m.total = m.total.Add(stake)
	m.publish()

	ApprovalsTotal.Inc()
	m.logger.Info("risk-approved",
		zap.String("opportunity-id", o.ID),
		zap.String("type", string(o.Type)),
		zap.String("market-id", o.PrimaryMarketID()),
		zap.Float64("kelly-fraction", f),
		zap.String("stake", stake.StringFixed(2)),
		zap.String("clamped-by", limitedBy))

	return Decision{Approved: true, Stake: stake, KellyFraction: f, ReservationID: id}
}

// Release frees a reservation without P&L, e.g. after a failed order.
func (m *Manager) Release(reservationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.free(reservationID) {
		m.publish()
	}
}

// Resize replaces a reservation's stake with what is actually held and narrows it to the given
// markets. An empty markets list keeps the original ones. A non-positive stake frees the
// reservation. It reports whether the reservation existed.
func (m *Manager) Resize(reservationID string, stake decimal.Decimal, markets []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[reservationID]
	if !ok {
		return false
	}
	if !stake.IsPositive() {
		m.free(reservationID)
		m.publish()
		return true
	}

	keys := r.markets
	if len(markets) > 0 {
		keys = dedupSorted(markets)
	}

	m.free(reservationID)
	m.reservations[reservationID] = reservation{markets: keys, stake: stake}
	for _, mk := range keys {
		m.byMarket[mk] = m.byMarket[mk].Add(stake)
	}
	m.total = m.total.Add(stake)
	m.publish()

	m.logger.Info("risk-reservation-resized",
		zap.String("reservation-id", reservationID),
		zap.String("from", r.stake.StringFixed(2)),
		zap.String("to", stake.StringFixed(2)),
		zap.Strings("markets", keys))
	return true
}

// Adopt registers exposure that is already held, such as positions reloaded after a restart.
// No limit is checked. An empty id gets a fresh one. It returns the reservation id.
func (m *Manager) Adopt(reservationID string, stake decimal.Decimal, markets []string) string {
	if reservationID == "" {
		reservationID = uuid.New().String()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reservations[reservationID]; ok {
		return reservationID
	}

	keys := dedupSorted(markets)
	m.reservations[reservationID] = reservation{markets: keys, stake: stake}
	for _, mk := range keys {
		m.byMarket[mk] = m.byMarket[mk].Add(stake)
	}
	m.total = m.total.Add(stake)
	m.publish()

	m.logger.Info("risk-reservation-adopted",
		zap.String("reservation-id", reservationID),
		zap.String("stake", stake.StringFixed(2)),
		zap.Strings("markets", keys))
	return reservationID
}

// Settle frees a reservation and books its realized P&L. The drawdown breaker observes the result.
func (m *Manager) Settle(ctx context.Context, reservationID string, pnl decimal.Decimal) {
	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("risk-refresh-failed", zap.Error(err))
	}

	m.mu.Lock()
	m.free(reservationID)
	m.realized = m.realized.Add(pnl)
	equity := m.equity()
	if equity.GreaterThan(m.peak) {
		m.peak = equity
	}
	drawdown := 0.0
	if m.peak.IsPositive() && equity.LessThan(m.peak) {
		drawdown = m.peak.Sub(equity).Div(m.peak).InexactFloat64()
	}
	peak, realized := m.peak, m.realized
	m.publish()
	m.mu.Unlock()

	RealizedPnLUSD.Set(realized.InexactFloat64())
	m.logger.Info("risk-settled",
		zap.String("reservation-id", reservationID),
		zap.String("pnl", pnl.StringFixed(2)),
		zap.String("realized-pnl", realized.StringFixed(2)),
		zap.Float64("drawdown", drawdown))

	resetAt := m.breaker.Status().ResetAt
	m.breaker.Observe(ctx, drawdown, peak, realized, m.now())

	// A reset adopted inside Observe carries its own peak.
	if st := m.breaker.Status(); st.ResetAt.After(resetAt) && st.Peak.IsPositive() {
		m.mu.Lock()
		m.peak = st.Peak
		m.mu.Unlock()
	}
}

// ResetBreaker clears a tripped breaker and rebases peak capital to current equity.
func (m *Manager) ResetBreaker(ctx context.Context) error {
	m.mu.Lock()
	m.peak = m.equity()
	peak := m.peak
	m.mu.Unlock()

	if err := m.breaker.Reset(ctx, peak); err != nil {
		return fmt.Errorf("reset drawdown breaker: %w", err)
	}
	return nil
}

// State returns a copy of the ledger.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	byMarket := make(map[string]decimal.Decimal, len(m.byMarket))
	for k, v := range m.byMarket {
		byMarket[k] = v
	}
	bs := m.breaker.Status()
	equity := m.equity()
	drawdown := 0.0
	if m.peak.IsPositive() && equity.LessThan(m.peak) {
		drawdown = m.peak.Sub(equity).Div(m.peak).InexactFloat64()
	}
	return State{
		Capital:        m.cfg.Capital,
		Equity:         equity,
		Peak:           m.peak,
		RealizedPnL:    m.realized,
		TotalExposure:  m.total,
		MarketExposure: byMarket,
		OpenPositions:  len(m.reservations),
		Drawdown:       drawdown,
		BreakerTripped: m.breaker.IsTripped(),
		TrippedAt:      bs.TrippedAt,
	}
}

func (m *Manager) equity() decimal.Decimal {
	return m.cfg.Capital.Add(m.realized)
}

func (m *Manager) free(reservationID string) bool {
	r, ok := m.reservations[reservationID]
	if !ok {
		return false
	}
	delete(m.reservations, reservationID)
	for _, mk := range r.markets {
		left := m.byMarket[mk].Sub(r.stake)
		if left.IsPositive() {
			m.byMarket[mk] = left
		} else {
			delete(m.byMarket, mk)
		}
	}
	m.total = m.total.Sub(r.stake)
	return true
}

func (m *Manager) publish() {
	ExposureUSD.Set(m.total.InexactFloat64())
	OpenPositions.Set(float64(len(m.reservations)))
}

func (m *Manager) reject(o *opportunity.Opportunity, reason string, f float64) Decision {
	RejectionsTotal.WithLabelValues(reason).Inc()
	if o != nil {
		m.logger.Debug("risk-rejected",
			zap.String("opportunity-id", o.ID),
			zap.String("type", string(o.Type)),
			zap.String("market-id", o.PrimaryMarketID()),
			zap.String("reason", reason),
			zap.Float64("kelly-fraction", f))
	}
	return Decision{Reason: reason, KellyFraction: f}
}

// exposureKeys lists the distinct markets an opportunity buys into. The full stake counts
// against each of them.
func exposureKeys(o *opportunity.Opportunity) []string {
	seen := make(map[string]struct{}, len(o.Legs))
	for _, l := range o.Legs {
		seen[l.MarketID] = struct{}{}
	}
	if len(seen) == 0 {
		if id := o.PrimaryMarketID(); id != "" {
			seen[id] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

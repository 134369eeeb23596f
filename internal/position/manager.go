package position

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/execution"
	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceSource returns current market data, including resolution, for the given ids.
// Missing ids are simply absent from the result.
type PriceSource interface {
	Markets(ctx context.Context, ids []string) (map[string]*market.Market, error)
}

// Settler books realized P&L against the risk reservation that funded a position.
type Settler interface {
	Settle(ctx context.Context, reservationID string, pnl decimal.Decimal)
}

// Recorder persists position snapshots on open and close.
type Recorder interface {
	RecordPosition(ctx context.Context, p *Position) error
}

// Config holds position manager configuration.
type Config struct {
	Policy   Policy
	Prices   PriceSource
	Settler  Settler
	Recorder Recorder
	Interval time.Duration
	Logger   *zap.Logger
}

// Manager owns the position store. Opening and monitoring share one lock so the monitor never
// sees a half-created position.
type Manager struct {
	policy   Policy
	prices   PriceSource
	settler  Settler
	recorder Recorder
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	positions map[string]*Position
	byFill    map[string]string

	now func() time.Time
	wg  sync.WaitGroup
}

// New creates a position manager.
func New(cfg *Config) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Prices == nil {
		return nil, errors.New("price source cannot be nil")
	}
	if cfg.Settler == nil {
		return nil, errors.New("settler cannot be nil")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("monitor interval must be positive")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid exit policy: %w", err)
	}

	return &Manager{
		policy:    cfg.Policy,
		prices:    cfg.Prices,
		settler:   cfg.Settler,
		recorder:  cfg.Recorder,
		interval:  cfg.Interval,
		logger:    cfg.Logger,
		positions: make(map[string]*Position),
		byFill:    make(map[string]string),
		now:       time.Now,
	}, nil
}

// Open creates the position for a fill that holds at least one leg. A partial or unconfirmed
// fill opens on the legs actually bought. Each fill opens at most one position.
func (m *Manager) Open(ctx context.Context, opp *opportunity.Opportunity, fill *execution.Fill) (*Position, error) {
	if fill == nil || len(fill.Legs) == 0 {
		return nil, ErrUnfilled
	}
	switch fill.Status {
	case execution.FillFilled, execution.FillPartial, execution.FillUnknown:
	default:
		return nil, ErrUnfilled
	}
	partial := fill.Status != execution.FillFilled

	legs := make([]Leg, 0, len(fill.Legs))
	entry := decimal.Zero
	for _, l := range fill.Legs {
		legs = append(legs, Leg{MarketID: l.MarketID, Side: l.Side, TokenID: l.TokenID, EntryPrice: l.Price})
		entry = entry.Add(l.Price)
	}

	now := m.now()
	p := &Position{
		ID:            uuid.New().String(),
		FillID:        fill.ID,
		OpportunityID: opp.ID,
		ReservationID: fill.ReservationID,
		Type:          opp.Type,
		Action:        opp.Action,
		Legs:          legs,
		Partial:       partial,
		Shares:        fill.Shares,
		EntryUnit:     entry,
		TargetUnit:    targetUnit(opp.Action, len(legs), partial),
		OpenedAt:      now,
		MaxHoldUntil:  holdUntil(now, m.policy.MaxHold, opp.EndDate),
		State:         StateOpen,
	}

	m.mu.Lock()
	if _, dup := m.byFill[fill.ID]; dup {
		m.mu.Unlock()
		return nil, ErrDuplicatePosition
	}
	m.positions[p.ID] = p
	m.byFill[fill.ID] = p.ID
	snapshot := p.Clone()
	open := m.countOpenLocked()
	m.mu.Unlock()

	PositionsOpen.Set(float64(open))
	PositionsOpenedTotal.WithLabelValues(string(p.Type)).Inc()
	m.logger.Info("position-opened",
		zap.String("position-id", p.ID),
		zap.String("opportunity-id", p.OpportunityID),
		zap.String("type", string(p.Type)),
		zap.Int("legs", len(p.Legs)),
		zap.Bool("partial", p.Partial),
		zap.String("shares", p.Shares.String()),
		zap.String("entry-unit", p.EntryUnit.String()),
		zap.String("target-unit", p.TargetUnit.String()),
		zap.Time("max-hold-until", p.MaxHoldUntil))

	m.record(ctx, snapshot)
	return snapshot, nil
}

// Restore loads positions left open by a previous run. Positions that are not OPEN, or whose fill
// is already tracked, are skipped. It returns the positions it added.
func (m *Manager) Restore(positions []*Position) []*Position {
	restored := make([]*Position, 0, len(positions))

	m.mu.Lock()
	for _, p := range positions {
		if p == nil || p.State != StateOpen {
			continue
		}
		if _, dup := m.byFill[p.FillID]; dup {
			continue
		}
		if _, dup := m.positions[p.ID]; dup {
			continue
		}
		c := p.Clone()
		m.positions[c.ID] = c
		m.byFill[c.FillID] = c.ID
		restored = append(restored, c.Clone())
	}
	open := m.countOpenLocked()
	m.mu.Unlock()

	PositionsOpen.Set(float64(open))
	m.logger.Info("positions-restored",
		zap.Int("restored", len(restored)),
		zap.Int("skipped", len(positions)-len(restored)))
	return restored
}

// targetUnit is the per-share payout if every leg resolves favorably. Buying NO on all n
// outcomes of an event pays n-1 since exactly one outcome wins. A partial NO basket can
// pay on every leg it holds.
func targetUnit(action opportunity.Action, legs int, partial bool) decimal.Decimal {
	if action != opportunity.BuyAllNo || legs <= 1 {
		return decimal.NewFromInt(1)
	}
	if partial {
		return decimal.NewFromInt(int64(legs))
	}
	return decimal.NewFromInt(int64(legs - 1))
}

// holdUntil caps the holding period at the market end date when that comes first.
func holdUntil(now time.Time, maxHold time.Duration, endDate time.Time) time.Time {
	until := now.Add(maxHold)
	if !endDate.IsZero() && endDate.After(now) && endDate.Before(until) {
		return endDate
	}
	return until
}

// Start runs the monitor loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("position-monitor-starting", zap.Duration("interval", m.interval))
	m.wg.Add(1)
	go m.monitorLoop(ctx)
}

func (m *Manager) monitorLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("position-monitor-stopping")
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				m.logger.Warn("position-monitor-tick-failed", zap.Error(err))
			}
		}
	}
}

// Tick evaluates every open position once and closes those whose exit rule fired.
func (m *Manager) Tick(ctx context.Context) error {
	start := m.now()
	defer func() { MonitorDurationSeconds.Observe(m.now().Sub(start).Seconds()) }()

	open := m.OpenPositions()
	if len(open) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, p := range open {
		for _, id := range p.MarketIDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)

	quotes, err := m.prices.Markets(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch position prices: %w", err)
	}

	now := m.now()
	for _, p := range open {
		exit, value := Evaluate(p, quotes, now, m.policy)
		if exit == StateOpen {
			if value.IsZero() {
				m.logger.Debug("position-quote-missing", zap.String("position-id", p.ID))
			}
			continue
		}
		if err := m.close(ctx, p.ID, exit, value); err != nil {
			m.logger.Error("position-close-failed",
				zap.String("position-id", p.ID),
				zap.String("exit", string(exit)),
				zap.Error(err))
		}
	}
	return nil
}

// close moves an open position through its exit state to CLOSED and settles its P&L.
func (m *Manager) close(ctx context.Context, id string, exit State, exitUnit decimal.Decimal) error {
	m.mu.Lock()
	p, ok := m.positions[id]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownPosition
	}
	if err := p.Transition(exit); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%s -> %s: %w", p.State, exit, err)
	}
	if err := p.Transition(StateClosed); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%s -> %s: %w", p.State, StateClosed, err)
	}
	p.ExitUnit = exitUnit
	p.RealizedPnL = exitUnit.Sub(p.EntryUnit).Mul(p.Shares).Round(6)
	p.ClosedAt = m.now()
	snapshot := p.Clone()
	open := m.countOpenLocked()
	m.mu.Unlock()

	PositionsOpen.Set(float64(open))
	PositionsClosedTotal.WithLabelValues(string(exit)).Inc()
	RealizedPnLUSD.Add(snapshot.RealizedPnL.InexactFloat64())

	m.logger.Info("position-closed",
		zap.String("position-id", snapshot.ID),
		zap.String("reason", string(exit)),
		zap.String("entry-unit", snapshot.EntryUnit.String()),
		zap.String("exit-unit", snapshot.ExitUnit.String()),
		zap.String("pnl", snapshot.RealizedPnL.StringFixed(2)),
		zap.Duration("held", snapshot.ClosedAt.Sub(snapshot.OpenedAt)))

	m.settler.Settle(ctx, snapshot.ReservationID, snapshot.RealizedPnL)
	m.record(ctx, snapshot)
	return nil
}

func (m *Manager) record(ctx context.Context, p *Position) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordPosition(ctx, p); err != nil {
		m.logger.Error("position-record-failed", zap.String("position-id", p.ID), zap.Error(err))
	}
}

// OpenPositions returns copies of the open positions ordered by open time.
func (m *Manager) OpenPositions() []*Position {
	return m.list(func(p *Position) bool { return p.State == StateOpen })
}

// Positions returns copies of every position ordered by open time.
func (m *Manager) Positions() []*Position {
	return m.list(func(*Position) bool { return true })
}

// Get returns a copy of one position.
func (m *Manager) Get(id string) (*Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (m *Manager) list(keep func(*Position) bool) []*Position {
	m.mu.RLock()
	out := make([]*Position, 0, len(m.positions))
	for _, p := range m.positions {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Manager) countOpenLocked() int {
	n := 0
	for _, p := range m.positions {
		if p.State == StateOpen {
			n++
		}
	}
	return n
}

// Close waits for the monitor loop to exit.
func (m *Manager) Close() error {
	m.wg.Wait()
	m.logger.Info("position-manager-closed")
	return nil
}

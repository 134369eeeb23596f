package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrBreakerTripped is returned while the drawdown breaker blocks new trades.
var ErrBreakerTripped = errors.New("drawdown circuit breaker tripped")

// BreakerState is the persisted part of the drawdown breaker.
type BreakerState struct {
	Tripped   bool            `json:"tripped"`
	TrippedAt time.Time       `json:"tripped_at,omitempty"`
	Drawdown  float64         `json:"drawdown"`
	Peak      decimal.Decimal `json:"peak"`
	Realized  decimal.Decimal `json:"realized"`
	ResetAt   time.Time       `json:"reset_at,omitempty"`
}

// StateStore persists breaker state so a restart does not clear a trip.
type StateStore interface {
	LoadBreaker(ctx context.Context) (*BreakerState, error)
	SaveBreaker(ctx context.Context, state *BreakerState) error
}

// MemoryStateStore keeps breaker state in process.
type MemoryStateStore struct {
	mu    sync.Mutex
	state *BreakerState
}

// NewMemoryStateStore creates an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// LoadBreaker returns the last saved state, or nil when nothing was saved.
func (s *MemoryStateStore) LoadBreaker(_ context.Context) (*BreakerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	cp := *s.state
	return &cp, nil
}

// SaveBreaker stores a copy of state.
func (s *MemoryStateStore) SaveBreaker(_ context.Context, state *BreakerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.state = &cp
	return nil
}

// DrawdownBreaker halts trading once realized drawdown reaches the threshold.
// A trip is sticky: only Reset clears it, in this process or in another one sharing the store.
type DrawdownBreaker struct {
	tripped atomic.Bool

	threshold float64
	store     StateStore
	logger    *zap.Logger
	now       func() time.Time

	mu    sync.RWMutex
	state BreakerState
}

// NewDrawdownBreaker creates a breaker. threshold is a fraction of peak capital in (0,1].
func NewDrawdownBreaker(threshold float64, store StateStore, logger *zap.Logger) (*DrawdownBreaker, error) {
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("drawdown threshold must be in (0,1], got %v", threshold)
	}
	if store == nil {
		return nil, errors.New("state store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	BreakerTripped.Set(0)
	return &DrawdownBreaker{threshold: threshold, store: store, logger: logger, now: time.Now}, nil
}

// Restore loads persisted state. A missing state leaves the breaker armed and untripped.
func (b *DrawdownBreaker) Restore(ctx context.Context) (*BreakerState, error) {
	st, err := b.store.LoadBreaker(ctx)
	if err != nil {
		return nil, fmt.Errorf("load breaker state: %w", err)
	}
	if st == nil {
		return nil, nil
	}

	b.mu.Lock()
	b.state = *st
	b.mu.Unlock()
	b.setTripped(st.Tripped)

	if st.Tripped {
		b.logger.Warn("drawdown-breaker-restored-tripped",
			zap.Float64("drawdown", st.Drawdown),
			zap.Time("tripped-at", st.TrippedAt))
	}
	cp := *st
	return &cp, nil
}

// IsTripped is lock-free and safe on hot paths.
func (b *DrawdownBreaker) IsTripped() bool {
	return b.tripped.Load()
}

// Refresh picks up a reset written to the store by another process. It returns the adopted
// state, or nil when nothing changed.
func (b *DrawdownBreaker) Refresh(ctx context.Context) (*BreakerState, error) {
	stored, err := b.store.LoadBreaker(ctx)
	if err != nil {
		return nil, fmt.Errorf("load breaker state: %w", err)
	}

	b.mu.Lock()
	adopted := b.adoptResetLocked(stored)
	st := b.state
	b.mu.Unlock()

	if !adopted {
		return nil, nil
	}
	b.setTripped(false)
	DrawdownRatio.Set(0)
	b.logger.Warn("drawdown-breaker-reset-adopted",
		zap.Time("reset-at", st.ResetAt),
		zap.String("peak", st.Peak.StringFixed(2)))
	return &st, nil
}

// adoptResetLocked applies a stored reset newer than the local one. b.mu must be held.
func (b *DrawdownBreaker) adoptResetLocked(stored *BreakerState) bool {
	if stored == nil || stored.Tripped || !stored.ResetAt.After(b.state.ResetAt) {
		return false
	}
	b.state.Tripped = false
	b.state.TrippedAt = time.Time{}
	b.state.Drawdown = 0
	b.state.ResetAt = stored.ResetAt
	if stored.Peak.IsPositive() {
		b.state.Peak = stored.Peak
	}
	return true
}

// Observe records the current drawdown and trips the breaker when it reaches the threshold.
// A reset stored by another process since the last call is merged first and keeps its peak; the
// caller's drawdown predates that reset, so it cannot trip on this call. It returns true when
// this call caused the trip.
func (b *DrawdownBreaker) Observe(ctx context.Context, drawdown float64, peak, realized decimal.Decimal, now time.Time) bool {
	DrawdownRatio.Set(drawdown)

	stored, err := b.store.LoadBreaker(ctx)
	if err != nil {
		b.logger.Warn("breaker-state-load-failed", zap.Error(err))
		stored = nil
	}

	b.mu.Lock()
	adopted := b.adoptResetLocked(stored)
	if adopted {
		b.setTripped(false)
		b.logger.Warn("drawdown-breaker-reset-adopted", zap.Time("reset-at", b.state.ResetAt))
	} else {
		b.state.Drawdown = drawdown
		b.state.Peak = peak
	}
	b.state.Realized = realized
	trip := !adopted && !b.state.Tripped && drawdown >= b.threshold
	if trip {
		b.state.Tripped = true
		b.state.TrippedAt = now
	}
	st := b.state
	b.mu.Unlock()

	if trip {
		b.setTripped(true)
		BreakerTripsTotal.Inc()
		b.logger.Error("drawdown-breaker-tripped",
			zap.Float64("drawdown", drawdown),
			zap.Float64("threshold", b.threshold),
			zap.String("peak", peak.StringFixed(2)),
			zap.String("realized-pnl", realized.StringFixed(2)))
	}

	if err := b.store.SaveBreaker(ctx, &st); err != nil {
		b.logger.Error("breaker-state-save-failed", zap.Error(err))
	}
	return trip
}

// Reset clears a trip. The peak is rebased by the caller.
func (b *DrawdownBreaker) Reset(ctx context.Context, peak decimal.Decimal) error {
	b.mu.Lock()
	wasTripped := b.state.Tripped
	b.state.Tripped = false
	b.state.TrippedAt = time.Time{}
	b.state.Drawdown = 0
	b.state.Peak = peak
	b.state.ResetAt = b.now().UTC()
	st := b.state
	b.mu.Unlock()

	if err := b.store.SaveBreaker(ctx, &st); err != nil {
		return fmt.Errorf("save breaker state: %w", err)
	}
	b.setTripped(false)
	DrawdownRatio.Set(0)

	b.logger.Warn("drawdown-breaker-reset",
		zap.Bool("was-tripped", wasTripped),
		zap.String("peak", peak.StringFixed(2)))
	return nil
}

// Status returns a copy of the current state.
func (b *DrawdownBreaker) Status() BreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *DrawdownBreaker) setTripped(v bool) {
	b.tripped.Store(v)
	if v {
		BreakerTripped.Set(1)
	} else {
		BreakerTripped.Set(0)
	}
}

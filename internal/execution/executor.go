package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds executor configuration.
type Config struct {
	Placer         OrderPlacer
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffMult    float64
	Logger         *zap.Logger
}

// Executor turns an approved opportunity and stake into orders, one per leg.
type Executor struct {
	placer         OrderPlacer
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	backoffMult    float64
	logger         *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an executor.
func New(cfg *Config) (*Executor, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Placer == nil {
		return nil, errors.New("order placer cannot be nil")
	}
	if cfg.MaxRetries < 0 {
		return nil, errors.New("max retries cannot be negative")
	}
	if cfg.InitialBackoff <= 0 {
		return nil, errors.New("initial backoff must be positive")
	}
	mult := cfg.BackoffMult
	if mult < 1 {
		mult = 2
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < cfg.InitialBackoff {
		maxBackoff = cfg.InitialBackoff
	}

	return &Executor{
		placer:         cfg.Placer,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     maxBackoff,
		backoffMult:    mult,
		logger:         cfg.Logger,
		now:            time.Now,
		sleep:          sleepCtx,
	}, nil
}

// Mode returns the placer's mode.
func (e *Executor) Mode() Mode {
	return e.placer.Mode()
}

// Execute buys every leg of opp with equal share counts so the basket pays out uniformly.
// It always returns a Fill describing the attempt; err is non-nil unless every leg filled.
func (e *Executor) Execute(ctx context.Context, opp *opportunity.Opportunity, stake decimal.Decimal) (*Fill, error) {
	start := e.now()
	mode := e.placer.Mode()
	fill := &Fill{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Mode:          mode,
		Stake:         stake,
		ExecutedAt:    start,
	}
	defer func() {
		ExecutionDurationSeconds.WithLabelValues(string(mode)).Observe(e.now().Sub(start).Seconds())
		FillsTotal.WithLabelValues(string(mode), string(fill.Status)).Inc()
	}()

	orders, shares, err := buildOrders(opp, stake)
	if err != nil {
		return e.fail(fill, FillFailed, err)
	}
	fill.Shares = shares

	for _, order := range orders {
		res, attempts, err := e.placeWithRetry(ctx, order)
		fill.Attempts += attempts
		if err != nil {
			status := FillFailed
			switch {
			case ctx.Err() != nil:
				status = FillUnknown
			case len(fill.Legs) > 0:
				status = FillPartial
			}
			return e.fail(fill, status, fmt.Errorf("place %s leg on %s: %w", order.Side, order.MarketID, err))
		}
		fill.Legs = append(fill.Legs, LegFill{
			MarketID: order.MarketID,
			Side:     order.Side,
			TokenID:  order.TokenID,
			OrderID:  res.OrderID,
			Price:    res.Price,
			Shares:   res.Shares,
		})
	}

	fill.Status = FillFilled
	e.logger.Info("execution-filled",
		zap.String("fill-id", fill.ID),
		zap.String("opportunity-id", opp.ID),
		zap.String("type", string(opp.Type)),
		zap.String("mode", string(mode)),
		zap.Int("legs", len(fill.Legs)),
		zap.String("shares", shares.String()),
		zap.String("cost-usd", fill.Cost().StringFixed(2)),
		zap.Int("attempts", fill.Attempts))
	return fill, nil
}

func (e *Executor) fail(fill *Fill, status FillStatus, err error) (*Fill, error) {
	fill.Status = status
	fill.Error = err.Error()
	ExecutionErrorsTotal.WithLabelValues(string(fill.Mode), errorKind(err)).Inc()

	log := e.logger.Error
	if status == FillUnknown {
		log = e.logger.Warn
	}
	log("execution-failed",
		zap.String("fill-id", fill.ID),
		zap.String("opportunity-id", fill.OpportunityID),
		zap.String("status", string(status)),
		zap.Int("filled-legs", len(fill.Legs)),
		zap.Int("attempts", fill.Attempts),
		zap.Error(err))
	return fill, err
}

// placeWithRetry retries transient failures with capped exponential backoff.
func (e *Executor) placeWithRetry(ctx context.Context, order Order) (*OrderResult, int, error) {
	backoff := e.initialBackoff
	attempt := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, attempt, err
		}
		attempt++

		res, err := e.placer.PlaceOrder(ctx, order)
		if err == nil {
			OrdersTotal.WithLabelValues(string(e.placer.Mode()), "success").Inc()
			return res, attempt, nil
		}
		OrdersTotal.WithLabelValues(string(e.placer.Mode()), "error").Inc()

		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}
		if !types.IsTransient(err) {
			return nil, attempt, err
		}
		if attempt > e.maxRetries {
			return nil, attempt, fmt.Errorf("retries exhausted after %d attempts: %w", attempt, err)
		}

		RetriesTotal.Inc()
		e.logger.Warn("order-placement-retrying",
			zap.String("market-id", order.MarketID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := e.sleep(ctx, backoff); err != nil {
			return nil, attempt, err
		}
		backoff = time.Duration(float64(backoff) * e.backoffMult)
		if backoff > e.maxBackoff {
			backoff = e.maxBackoff
		}
	}
}

// buildOrders sizes each leg. Shares = stake / unit cost, rounded down to cents of a share.
func buildOrders(opp *opportunity.Opportunity, stake decimal.Decimal) ([]Order, decimal.Decimal, error) {
	if len(opp.Legs) == 0 {
		return nil, decimal.Zero, types.NewPermanentError(types.ErrCodeInvalidLeg, "opportunity has no legs")
	}
	if !stake.IsPositive() {
		return nil, decimal.Zero, types.NewPermanentError(types.ErrCodeInvalidLeg, "stake must be positive")
	}

	unit := decimal.Zero
	for _, l := range opp.Legs {
		if l.Price <= 0 || l.Price >= 1 {
			return nil, decimal.Zero, types.NewPermanentError(types.ErrCodeInvalidLeg,
				fmt.Sprintf("leg %s/%s has untradable price %v", l.MarketID, l.Side, l.Price))
		}
		unit = unit.Add(decimal.NewFromFloat(l.Price))
	}

	shares := stake.Div(unit).RoundDown(2)
	if !shares.IsPositive() {
		return nil, decimal.Zero, types.NewPermanentError(types.ErrCodeInvalidLeg, "stake too small for one share")
	}

	orders := make([]Order, 0, len(opp.Legs))
	for _, l := range opp.Legs {
		orders = append(orders, Order{
			ClientID: opp.ID,
			MarketID: l.MarketID,
			TokenID:  l.TokenID,
			Side:     l.Side,
			Price:    decimal.NewFromFloat(l.Price),
			Shares:   shares,
		})
	}
	return orders, shares, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case types.IsPermanent(err):
		return "permanent"
	case types.IsTransient(err):
		return "transient"
	default:
		return "other"
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

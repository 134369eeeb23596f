package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/aggregator"
	"github.com/FewZ2372/polymarket-bot/internal/detector"
	"github.com/FewZ2372/polymarket-bot/internal/execution"
	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/internal/position"
	"github.com/FewZ2372/polymarket-bot/internal/ranker"
	"github.com/FewZ2372/polymarket-bot/internal/risk"
	"github.com/FewZ2372/polymarket-bot/pkg/healthprobe"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SnapshotSource supplies one market snapshot per cycle.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*market.Snapshot, error)
}

// OpportunityStore persists the ranked list of a cycle.
type OpportunityStore interface {
	StoreOpportunities(ctx context.Context, opps []*opportunity.Opportunity) error
}

// Gate is the risk manager as seen by the pipeline.
type Gate interface {
	CheckTradable() error
	Evaluate(o *opportunity.Opportunity) risk.Decision
	Release(reservationID string)
	Resize(reservationID string, stake decimal.Decimal, markets []string) bool
}

// BalanceGuard halts dispatch when the live wallet runs low and learns from filled stakes.
type BalanceGuard interface {
	CheckTradable() error
	RecordTrade(stake decimal.Decimal)
}

// Submitter queues approved trades for execution.
type Submitter interface {
	Submit(job execution.Job) error
}

// PositionOpener turns a completed fill into a tracked position.
type PositionOpener interface {
	Open(ctx context.Context, opp *opportunity.Opportunity, fill *execution.Fill) (*position.Position, error)
}

// PipelineConfig holds scan pipeline configuration. Risk, Executions and Positions are optional;
// without them a cycle only detects and ranks.
type PipelineConfig struct {
	Snapshots  SnapshotSource
	Registry   *detector.Registry
	Aggregator *aggregator.Aggregator
	Ranker     *ranker.Ranker
	Store      OpportunityStore
	Risk       Gate
	Executions Submitter
	Positions  PositionOpener
	// Guard is optional and only consulted when Risk is set.
	Guard  BalanceGuard
	Health *healthprobe.HealthChecker
	// Timeout bounds the snapshot fetch and detection of one cycle.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Pipeline runs scan cycles: snapshot, detect, aggregate, rank, persist, then gate and dispatch.
type Pipeline struct {
	snapshots  SnapshotSource
	registry   *detector.Registry
	aggregator *aggregator.Aggregator
	ranker     *ranker.Ranker
	store      OpportunityStore
	risk       Gate
	executions Submitter
	positions  PositionOpener
	guard      BalanceGuard
	health     *healthprobe.HealthChecker
	timeout    time.Duration
	logger     *zap.Logger

	mu     sync.RWMutex
	latest []*opportunity.Opportunity

	now func() time.Time
}

// NewPipeline creates a scan pipeline.
func NewPipeline(cfg *PipelineConfig) (*Pipeline, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Snapshots == nil {
		return nil, errors.New("snapshot source cannot be nil")
	}
	if cfg.Registry == nil || cfg.Aggregator == nil || cfg.Ranker == nil {
		return nil, errors.New("registry, aggregator and ranker are required")
	}
	if (cfg.Risk == nil) != (cfg.Executions == nil) {
		return nil, errors.New("risk gate and execution submitter must be set together")
	}

	return &Pipeline{
		snapshots:  cfg.Snapshots,
		registry:   cfg.Registry,
		aggregator: cfg.Aggregator,
		ranker:     cfg.Ranker,
		store:      cfg.Store,
		risk:       cfg.Risk,
		executions: cfg.Executions,
		positions:  cfg.Positions,
		guard:      cfg.Guard,
		health:     cfg.Health,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
		now:        time.Now,
	}, nil
}

// Run executes a cycle immediately and then every interval until ctx is done.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) {
	p.logger.Info("scan-loop-starting", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.Cycle(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("scan-cycle-failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("scan-loop-stopping")
			return
		case <-ticker.C:
		}
	}
}

// Cycle scans once and dispatches the approved subset of the ranked list.
func (p *Pipeline) Cycle(ctx context.Context) error {
	start := p.now()

	ranked, err := p.Scan(ctx)
	if err != nil {
		ScanCyclesTotal.WithLabelValues("error").Inc()
		return err
	}

	dispatched := p.dispatch(ranked)

	ScanCyclesTotal.WithLabelValues("ok").Inc()
	ScanDurationSeconds.Observe(p.now().Sub(start).Seconds())
	if p.health != nil {
		p.health.MarkCycle(p.now())
	}

	p.logger.Info("scan-cycle-complete",
		zap.Int("ranked", len(ranked)),
		zap.Int("dispatched", dispatched),
		zap.Duration("duration", p.now().Sub(start)))
	return nil
}

// Scan builds the ranked opportunity list for the current snapshot and records it as the latest.
// It never trades.
func (p *Pipeline) Scan(ctx context.Context) ([]*opportunity.Opportunity, error) {
	scanCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	snap, err := p.snapshots.Snapshot(scanCtx)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	raw := p.registry.Run(scanCtx, snap)
	merged := p.aggregator.Aggregate(raw)
	ranked := p.ranker.Rank(merged)

	OpportunitiesRaw.Set(float64(len(raw)))
	OpportunitiesRanked.Set(float64(len(ranked)))
	p.logger.Debug("opportunities-ranked",
		zap.Int("raw", len(raw)),
		zap.Int("aggregated", len(merged)),
		zap.Int("ranked", len(ranked)))

	p.mu.Lock()
	p.latest = ranked
	p.mu.Unlock()

	if p.store != nil && len(ranked) > 0 {
		if err := p.store.StoreOpportunities(ctx, ranked); err != nil {
			p.logger.Error("store-opportunities-failed", zap.Error(err))
		}
	}

	return ranked, nil
}

// LatestOpportunities returns the ranked list of the last completed scan.
func (p *Pipeline) LatestOpportunities() []*opportunity.Opportunity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*opportunity.Opportunity(nil), p.latest...)
}

// dispatch walks the ranked list in order. Each approval reserves its stake before the next
// opportunity is evaluated, so later entries see the reduced headroom.
func (p *Pipeline) dispatch(ranked []*opportunity.Opportunity) int {
	if p.risk == nil || len(ranked) == 0 {
		return 0
	}
	if err := p.risk.CheckTradable(); err != nil {
		p.logger.Warn("trading-halted", zap.Error(err), zap.Int("skipped", len(ranked)))
		DispatchTotal.WithLabelValues("halted").Add(float64(len(ranked)))
		return 0
	}
	if p.guard != nil {
		if err := p.guard.CheckTradable(); err != nil {
			p.logger.Warn("trading-halted", zap.Error(err), zap.Int("skipped", len(ranked)))
			DispatchTotal.WithLabelValues("halted").Add(float64(len(ranked)))
			return 0
		}
	}

	dispatched := 0
	for _, o := range ranked {
		d := p.risk.Evaluate(o)
		if !d.Approved {
			DispatchTotal.WithLabelValues("rejected").Inc()
			continue
		}

		err := p.executions.Submit(execution.Job{Opportunity: o, Stake: d.Stake, ReservationID: d.ReservationID})
		if err != nil {
			p.risk.Release(d.ReservationID)
			DispatchTotal.WithLabelValues("submit-failed").Inc()
			p.logger.Warn("execution-submit-failed",
				zap.String("opportunity-id", o.ID),
				zap.Error(err))
			if errors.Is(err, execution.ErrQueueFull) || errors.Is(err, execution.ErrPoolClosed) {
				break
			}
			continue
		}

		dispatched++
		DispatchTotal.WithLabelValues("submitted").Inc()
		p.logger.Info("opportunity-dispatched",
			zap.String("opportunity-id", o.ID),
			zap.String("type", string(o.Type)),
			zap.String("stake", d.Stake.StringFixed(2)),
			zap.Float64("kelly-fraction", d.KellyFraction))
	}
	return dispatched
}

// HandleResult receives every execution result. A fill holding any legs opens a position that now
// owns the reservation, shrunk to what a partial fill actually bought; anything else frees it.
func (p *Pipeline) HandleResult(ctx context.Context, res execution.Result) {
	reservation := res.Job.ReservationID
	fill := res.Fill

	if fill == nil || len(fill.Legs) == 0 || !holdsLegs(fill.Status) {
		if p.risk != nil {
			p.risk.Release(reservation)
		}
		fields := []zap.Field{zap.String("opportunity-id", res.Job.Opportunity.ID)}
		if fill != nil {
			fields = append(fields, zap.String("status", string(fill.Status)))
		}
		if res.Err != nil {
			fields = append(fields, zap.Error(res.Err))
		}
		p.logger.Warn("execution-not-filled", fields...)
		return
	}

	stake := fill.Stake
	if fill.Status != execution.FillFilled {
		stake = heldStake(res)
		if p.risk != nil {
			p.risk.Resize(reservation, stake, fill.MarketIDs())
		}
		p.logger.Warn("execution-partially-filled",
			zap.String("opportunity-id", res.Job.Opportunity.ID),
			zap.String("status", string(fill.Status)),
			zap.Int("legs", len(fill.Legs)),
			zap.String("held", stake.StringFixed(2)),
			zap.Error(res.Err))
	}

	if p.guard != nil {
		p.guard.RecordTrade(stake)
	}

	if p.positions == nil {
		if p.risk != nil {
			p.risk.Release(reservation)
		}
		return
	}

	if _, err := p.positions.Open(ctx, res.Job.Opportunity, fill); err != nil {
		if p.risk != nil {
			p.risk.Release(reservation)
		}
		p.logger.Error("position-open-failed",
			zap.String("fill-id", fill.ID),
			zap.Error(err))
	}
}

func holdsLegs(status execution.FillStatus) bool {
	switch status {
	case execution.FillFilled, execution.FillPartial, execution.FillUnknown:
		return true
	}
	return false
}

// heldStake is the exposure a partial fill keeps. A live fill cancelled mid-flight keeps the
// whole stake until the venue confirms which orders matched.
func heldStake(res execution.Result) decimal.Decimal {
	if res.Fill.Status == execution.FillUnknown && res.Fill.Mode == execution.ModeLive {
		return res.Job.Stake
	}
	cost := res.Fill.Cost()
	if res.Job.Stake.IsPositive() && cost.GreaterThan(res.Job.Stake) {
		return res.Job.Stake
	}
	return cost
}

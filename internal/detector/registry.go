// Package detector runs the opportunity variants over a market snapshot.
package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/FewZ2372/polymarket-bot/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DetectFunc inspects a snapshot and returns candidate opportunities.
// It must not mutate the snapshot. Missing collaborators yield no output, not an error.
type DetectFunc func(ctx context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error)

// Variant is one named detector.
type Variant struct {
	Name   string
	Detect DetectFunc
}

// Config holds registry configuration.
type Config struct {
	Env *Env
	// Enabled restricts the registry to the named variants. Empty enables all.
	Enabled []string
	Logger  *zap.Logger
}

// Registry fans variants out over a snapshot and joins their results.
type Registry struct {
	variants []Variant
	env      *Env
	logger   *zap.Logger
}

// DefaultVariants returns every built-in variant in priority order.
func DefaultVariants() []Variant {
	return []Variant{
		{Name: "multi_outcome_arb", Detect: DetectMultiOutcome},
		{Name: "yes_no_mismatch", Detect: DetectYesNoMismatch},
		{Name: "cross_platform_arb", Detect: DetectCrossPlatform},
		{Name: "already_resolved", Detect: DetectAlreadyResolved},
		{Name: "near_certain", Detect: DetectNearCertain},
		{Name: "time_decay", Detect: DetectTimeDecay},
		{Name: "improbable_expiring", Detect: DetectImprobableExpiring},
		{Name: "whale_activity", Detect: DetectWhaleActivity},
		{Name: "abnormal_volume", Detect: DetectAbnormalVolume},
		{Name: "momentum", Detect: DetectMomentum},
		{Name: "contrarian", Detect: DetectContrarian},
		{Name: "new_market_mispricing", Detect: DetectNewMarketMispricing},
		{Name: "low_liquidity_mispricing", Detect: DetectLowLiquidity},
		{Name: "news_lag", Detect: DetectNewsLag},
		{Name: "correlation_divergence", Detect: DetectCorrelation},
	}
}

// New creates a registry with the default variants, filtered by cfg.Enabled.
func New(cfg Config) (*Registry, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Env == nil {
		return nil, errors.New("env cannot be nil")
	}
	if cfg.Env.Lexicon == nil {
		cfg.Env.Lexicon = DefaultLexicon()
	}

	r := &Registry{env: cfg.Env, logger: cfg.Logger}

	enabled := make(map[string]bool, len(cfg.Enabled))
	for _, name := range cfg.Enabled {
		enabled[name] = true
	}
	for _, v := range DefaultVariants() {
		if len(enabled) > 0 && !enabled[v.Name] {
			continue
		}
		delete(enabled, v.Name)
		if err := r.Register(v); err != nil {
			return nil, err
		}
	}
	for name := range enabled {
		return nil, fmt.Errorf("unknown detector %q", name)
	}

	return r, nil
}

// Register adds a variant. Names must be unique.
func (r *Registry) Register(v Variant) error {
	if v.Name == "" || v.Detect == nil {
		return errors.New("variant needs a name and a detect function")
	}
	for _, existing := range r.variants {
		if existing.Name == v.Name {
			return fmt.Errorf("detector %q already registered", v.Name)
		}
	}
	r.variants = append(r.variants, v)
	return nil
}

// Names lists the registered variants in run order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.variants))
	for i, v := range r.variants {
		names[i] = v.Name
	}
	return names
}

// Run executes every variant concurrently and returns once all have finished.
// A failing or panicking variant loses its output for the cycle; the others are unaffected.
// Results are concatenated in registration order so identical inputs give identical output.
func (r *Registry) Run(ctx context.Context, snap *market.Snapshot) []*opportunity.Opportunity {
	r.countInvalid(snap)

	results := make([][]*opportunity.Opportunity, len(r.variants))
	var g errgroup.Group
	for i, v := range r.variants {
		g.Go(func() error {
			results[i] = r.runOne(ctx, v, snap)
			return nil
		})
	}
	_ = g.Wait()

	var out []*opportunity.Opportunity
	for _, res := range results {
		out = append(out, res...)
	}
	return out
}

func (r *Registry) runOne(ctx context.Context, v Variant, snap *market.Snapshot) (out []*opportunity.Opportunity) {
	start := time.Now()
	defer func() {
		RunDurationSeconds.WithLabelValues(v.Name).Observe(time.Since(start).Seconds())
		if rec := recover(); rec != nil {
			FailuresTotal.WithLabelValues(v.Name, "panic").Inc()
			r.logger.Error("detector-panic",
				zap.String("detector", v.Name),
				zap.Any("panic", rec))
			out = nil
		}
	}()

	if ctx.Err() != nil {
		return nil
	}

	opps, err := v.Detect(ctx, snap, r.env)
	if err != nil {
		reason := "error"
		var extErr *types.ExternalServiceError
		if errors.As(err, &extErr) {
			reason = "external-service"
		}
		FailuresTotal.WithLabelValues(v.Name, reason).Inc()
		r.logger.Warn("detector-failed",
			zap.String("detector", v.Name),
			zap.String("reason", reason),
			zap.Error(err))
		return nil
	}

	out = make([]*opportunity.Opportunity, 0, len(opps))
	for _, o := range opps {
		if o == nil || !(o.ExpectedProfit > 0) || math.IsInf(o.ExpectedProfit, 0) {
			continue
		}
		o.Detector = v.Name
		if o.DetectedAt.IsZero() {
			o.DetectedAt = snap.TakenAt()
		}
		out = append(out, o)
	}

	if len(out) > 0 {
		OpportunitiesTotal.WithLabelValues(v.Name).Add(float64(len(out)))
		r.logger.Debug("detector-complete",
			zap.String("detector", v.Name),
			zap.Int("opportunities", len(out)),
			zap.Duration("duration", time.Since(start)))
	}
	return out
}

func (r *Registry) countInvalid(snap *market.Snapshot) {
	for _, m := range snap.Markets() {
		if err := m.Validate(); err != nil {
			var dataErr *types.DataError
			if errors.As(err, &dataErr) {
				SkippedMarketsTotal.WithLabelValues(dataErr.Field).Inc()
			}
		}
	}
}

// tradable returns the snapshot markets that pass validation, in id order.
func tradable(snap *market.Snapshot) []*market.Market {
	ms := snap.Markets()
	out := make([]*market.Market, 0, len(ms))
	for _, m := range ms {
		if m.Validate() == nil {
			out = append(out, m)
		}
	}
	return out
}

func externalError(service string, err error) error {
	return &types.ExternalServiceError{Service: service, Err: err}
}

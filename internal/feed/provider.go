package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MarketSource is the subset of the Gamma client the provider needs.
type MarketSource interface {
	FetchMarkets(ctx context.Context, limit int) ([]types.GammaMarket, error)
	FetchEvents(ctx context.Context, limit int) ([]types.GammaEvent, error)
	FetchMarketsByID(ctx context.Context, ids []string) ([]types.GammaMarket, error)
}

// ProviderConfig holds snapshot provider configuration.
type ProviderConfig struct {
	Source      MarketSource
	Stream      *PriceStream // optional
	MarketLimit int
	EventLimit  int
	Logger      *zap.Logger
}

// SnapshotProvider builds one immutable snapshot per scan cycle and answers price and resolution
// lookups for open positions.
type SnapshotProvider struct {
	source      MarketSource
	stream      *PriceStream
	marketLimit int
	eventLimit  int
	logger      *zap.Logger
	now         func() time.Time
}

// NewSnapshotProvider creates a snapshot provider.
func NewSnapshotProvider(cfg *ProviderConfig) (*SnapshotProvider, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Source == nil {
		return nil, errors.New("market source cannot be nil")
	}
	if cfg.MarketLimit < 0 || cfg.EventLimit < 0 {
		return nil, errors.New("limits cannot be negative")
	}
	return &SnapshotProvider{
		source:      cfg.Source,
		stream:      cfg.Stream,
		marketLimit: cfg.MarketLimit,
		eventLimit:  cfg.EventLimit,
		logger:      cfg.Logger,
		now:         time.Now,
	}, nil
}

// Snapshot fetches markets and events concurrently and assembles the scan view.
// Only neg-risk events with at least two outcome markets are kept; their outcomes are
// mutually exclusive, which the multi-outcome detectors rely on.
func (p *SnapshotProvider) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	start := p.now()
	defer func() { SnapshotDurationSeconds.Observe(p.now().Sub(start).Seconds()) }()

	var (
		rawMarkets []types.GammaMarket
		rawEvents  []types.GammaEvent
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawMarkets, err = p.source.FetchMarkets(gctx, p.marketLimit)
		if err != nil {
			return fmt.Errorf("fetch markets: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rawEvents, err = p.source.FetchEvents(gctx, p.eventLimit)
		if err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		SnapshotErrorsTotal.Inc()
		return nil, err
	}

	markets := make([]*market.Market, 0, len(rawMarkets))
	baseline := make(map[string]float64, len(rawMarkets))
	for i := range rawMarkets {
		m := market.FromGamma(&rawMarkets[i])
		if rawMarkets[i].Volume1wk > 0 {
			baseline[m.ID] = rawMarkets[i].Volume1wk / 7
		}
		p.overlay(m)
		markets = append(markets, m)
	}

	events := make([]*market.Event, 0, len(rawEvents))
	for i := range rawEvents {
		if !rawEvents[i].NegRisk || len(rawEvents[i].Markets) < 2 {
			continue
		}
		e := market.EventFromGamma(&rawEvents[i])
		for _, m := range e.Markets {
			p.overlay(m)
		}
		events = append(events, e)
	}

	if p.stream != nil {
		if err := p.stream.Track(markets); err != nil {
			p.logger.Warn("price-stream-subscribe-failed", zap.Error(err))
		}
	}

	snap := market.NewSnapshot(p.now(), markets, events, baseline)
	SnapshotMarkets.Set(float64(len(snap.Markets())))
	SnapshotEvents.Set(float64(len(snap.Events())))

	p.logger.Debug("snapshot-built",
		zap.Int("markets", len(snap.Markets())),
		zap.Int("events", len(snap.Events())),
		zap.Duration("duration", p.now().Sub(start)))
	return snap, nil
}

func (p *SnapshotProvider) overlay(m *market.Market) {
	if p.stream != nil {
		p.stream.Overlay(m)
	}
}

// Markets returns current data for the given ids, closed and resolved markets included.
// Missing ids are absent from the result.
func (p *SnapshotProvider) Markets(ctx context.Context, ids []string) (map[string]*market.Market, error) {
	if len(ids) == 0 {
		return map[string]*market.Market{}, nil
	}
	raw, err := p.source.FetchMarketsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*market.Market, len(raw))
	for i := range raw {
		m := market.FromGamma(&raw[i])
		p.overlay(m)
		out[m.ID] = m
	}
	return out, nil
}

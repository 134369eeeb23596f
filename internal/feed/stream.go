package feed

import (
	"context"
	"errors"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/pkg/cache"
	"github.com/FewZ2372/polymarket-bot/pkg/types"
	"go.uber.org/zap"
)

// Subscriber is the market-channel connection the stream reads from.
type Subscriber interface {
	Subscribe(assetIDs []string) error
	Messages() <-chan types.StreamMessage
}

// StreamConfig holds price stream configuration.
type StreamConfig struct {
	Source Subscriber
	// Cache holds the latest price per token. Entries expire after MaxAge so a silent token
	// falls back to the Gamma price.
	Cache  cache.Cache
	MaxAge time.Duration
	Logger *zap.Logger
}

// PriceStream keeps the latest streamed price of every subscribed outcome token.
type PriceStream struct {
	source Subscriber
	cache  cache.Cache
	maxAge time.Duration
	logger *zap.Logger
}

// NewPriceStream creates a price stream.
func NewPriceStream(cfg *StreamConfig) (*PriceStream, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Source == nil {
		return nil, errors.New("source cannot be nil")
	}
	if cfg.Cache == nil {
		return nil, errors.New("cache cannot be nil")
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	return &PriceStream{source: cfg.Source, cache: cfg.Cache, maxAge: maxAge, logger: cfg.Logger}, nil
}

// Run stores prices until ctx is done or the source closes its channel.
func (s *PriceStream) Run(ctx context.Context) {
	s.logger.Info("price-stream-starting", zap.Duration("max-age", s.maxAge))
	msgs := s.source.Messages()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("price-stream-stopping")
			return
		case msg, ok := <-msgs:
			if !ok {
				s.logger.Info("price-stream-source-closed")
				return
			}
			s.apply(&msg)
		}
	}
}

func (s *PriceStream) apply(msg *types.StreamMessage) {
	if msg.AssetID == "" {
		return
	}
	price, ok := msg.MidPrice()
	if !ok {
		return
	}
	s.cache.Set(priceKey(msg.AssetID), price, s.maxAge)
	StreamPricesTotal.WithLabelValues(msg.EventType).Inc()
}

// Track subscribes to both outcome tokens of every market.
func (s *PriceStream) Track(markets []*market.Market) error {
	tokens := make([]string, 0, 2*len(markets))
	for _, m := range markets {
		if m.TokenIDYes != "" {
			tokens = append(tokens, m.TokenIDYes)
		}
		if m.TokenIDNo != "" {
			tokens = append(tokens, m.TokenIDNo)
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	return s.source.Subscribe(tokens)
}

// Price returns the latest streamed price of a token that is younger than MaxAge.
func (s *PriceStream) Price(tokenID string) (float64, bool) {
	if tokenID == "" {
		return 0, false
	}
	v, ok := s.cache.Get(priceKey(tokenID))
	if !ok {
		return 0, false
	}
	p, ok := v.(float64)
	return p, ok
}

// Overlay replaces a market's prices with streamed ones where available. Settled markets keep
// their final prices.
func (s *PriceStream) Overlay(m *market.Market) bool {
	if m.Closed || m.Resolved {
		return false
	}
	changed := false
	if p, ok := s.Price(m.TokenIDYes); ok {
		m.YesPrice = p
		changed = true
	}
	if p, ok := s.Price(m.TokenIDNo); ok {
		m.NoPrice = p
		changed = true
	}
	if changed {
		StreamOverlaysTotal.Inc()
	}
	return changed
}

func priceKey(tokenID string) string {
	return cache.Key("stream-price", tokenID)
}

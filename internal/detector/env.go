package detector

import (
	"context"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
)

// Transaction is one on-chain trade observed by a whale feed.
type Transaction struct {
	Wallet    string
	AmountUSD float64
	Side      market.Side
	Timestamp time.Time
}

// NewsItem is one article returned by a news feed.
// Outcome is set when the feed itself determined the resolved side.
type NewsItem struct {
	Headline    string
	Summary     string
	Source      string
	Sentiment   float64
	ImpactScore float64
	PublishedAt time.Time
	Outcome     market.Side
}

// ConfirmsOutcome returns the side the item reports as final, when the feed knows it.
func (n NewsItem) ConfirmsOutcome() (market.Side, bool) {
	if n.Outcome == "" {
		return "", false
	}
	return n.Outcome, true
}

// Text is the searchable body of the item.
func (n NewsItem) Text() string {
	if n.Summary == "" {
		return n.Headline
	}
	return n.Headline + " " + n.Summary
}

// WhaleFeed reports recent large transactions on a market.
type WhaleFeed interface {
	RecentTransactions(ctx context.Context, marketID string, window time.Duration) ([]Transaction, error)
}

// NewsFeed searches recent news.
type NewsFeed interface {
	Search(ctx context.Context, keywords []string, window time.Duration) ([]NewsItem, error)
}

// QuoteFeed finds the equivalent market on another venue.
// A nil market means no match. A zero score asks the caller to compute similarity itself.
type QuoteFeed interface {
	MatchingMarket(ctx context.Context, question string) (*market.Market, float64, error)
}

// CalendarFeed returns events related to a question within a time window.
type CalendarFeed interface {
	RelatedEvents(ctx context.Context, question string, window time.Duration) ([]*market.Event, error)
}

// FairValueEstimator returns an independent probability estimate for a market.
type FairValueEstimator interface {
	FairValue(m *market.Market) (float64, bool)
}

// Thresholds holds the tunable numeric knobs of every variant.
type Thresholds struct {
	ArbEpsilon float64

	CrossPlatformMinSimilarity float64
	CrossPlatformMinSpread     float64

	TimeDecayMaxDays  float64
	TimeDecayMinPrice float64

	ImprobableMinPrice float64
	ImprobableMaxPrice float64
	ImprobableMinDays  float64
	ImprobableMaxDays  float64

	ResolvedMaxPrice   float64
	ResolvedNewsWindow time.Duration

	NearCertainMinDeviation float64

	WhaleMinAmount float64
	WhaleWindow    time.Duration
	WhaleConsensus float64

	VolumeSpikeRatio     float64
	VolumeMinPriceChange float64
	CorroborationWindow  time.Duration

	MomentumShortChange float64
	MomentumLongChange  float64
	ContrarianDrop      float64

	NewMarketMaxAgeHours float64
	NewMarketMaxVolume   float64
	NewMarketMinGap      float64

	LowLiquidityMinVolume float64
	LowLiquidityMaxVolume float64
	LowLiquidityMinGap    float64
	LowLiquidityMinPeers  int

	NewsLagMaxAge    time.Duration
	NewsLagMinImpact float64

	CorrelationMinDivergence float64
	CorrelationWindow        time.Duration
}

// DefaultThresholds returns the stock tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ArbEpsilon: 0.02,

		CrossPlatformMinSimilarity: 0.7,
		CrossPlatformMinSpread:     0.03,

		TimeDecayMaxDays:  14,
		TimeDecayMinPrice: 0.30,

		ImprobableMinPrice: 0.02,
		ImprobableMaxPrice: 0.15,
		ImprobableMinDays:  1,
		ImprobableMaxDays:  30,

		ResolvedMaxPrice:   0.95,
		ResolvedNewsWindow: 24 * time.Hour,

		NearCertainMinDeviation: 0.05,

		WhaleMinAmount: 5000,
		WhaleWindow:    4 * time.Hour,
		WhaleConsensus: 0.7,

		VolumeSpikeRatio:     5,
		VolumeMinPriceChange: 0.03,
		CorroborationWindow:  6 * time.Hour,

		MomentumShortChange: 0.05,
		MomentumLongChange:  0.15,
		ContrarianDrop:      0.10,

		NewMarketMaxAgeHours: 24,
		NewMarketMaxVolume:   50000,
		NewMarketMinGap:      0.10,

		LowLiquidityMinVolume: 100,
		LowLiquidityMaxVolume: 10000,
		LowLiquidityMinGap:    0.15,
		LowLiquidityMinPeers:  2,

		NewsLagMaxAge:    30 * time.Minute,
		NewsLagMinImpact: 50,

		CorrelationMinDivergence: 0.10,
		CorrelationWindow:        30 * 24 * time.Hour,
	}
}

// Env is the read-only context shared by all variants in a cycle.
// A nil collaborator makes the variants that need it emit nothing.
type Env struct {
	Thresholds Thresholds
	Lexicon    *Lexicon
	Whales     WhaleFeed
	News       NewsFeed
	Quotes     QuoteFeed
	Calendar   CalendarFeed
	FairValue  FairValueEstimator
}

package opportunity

import "time"

// Evidence carries the type-specific facts behind an opportunity.
// Each variant holds only the fields its detector produces.
type Evidence interface {
	Kind() Type
}

// MultiOutcomeEvidence backs MULTI_OUTCOME_ARB.
type MultiOutcomeEvidence struct {
	EventTitle string    `json:"event_title"`
	PriceSum   float64   `json:"price_sum"`
	Prices     []float64 `json:"prices"`
}

func (MultiOutcomeEvidence) Kind() Type { return MultiOutcomeArb }

// MismatchEvidence backs YES_NO_MISMATCH.
type MismatchEvidence struct {
	YesPrice float64 `json:"yes_price"`
	NoPrice  float64 `json:"no_price"`
	PriceSum float64 `json:"price_sum"`
}

func (MismatchEvidence) Kind() Type { return YesNoMismatch }

// CrossPlatformEvidence backs CROSS_PLATFORM_ARB.
type CrossPlatformEvidence struct {
	Venue         string  `json:"venue"`
	VenueMarketID string  `json:"venue_market_id"`
	VenueQuestion string  `json:"venue_question"`
	VenueYesPrice float64 `json:"venue_yes_price"`
	Similarity    float64 `json:"similarity"`
	Spread        float64 `json:"spread"`
}

func (CrossPlatformEvidence) Kind() Type { return CrossPlatformArb }

// TimeDecayEvidence backs TIME_DECAY.
type TimeDecayEvidence struct {
	DaysLeft   float64 `json:"days_left"`
	DailyTheta float64 `json:"daily_theta"`
	Keyword    string  `json:"keyword"`
}

func (TimeDecayEvidence) Kind() Type { return TimeDecay }

// ImprobableEvidence backs IMPROBABLE_EXPIRING.
type ImprobableEvidence struct {
	DaysLeft    float64 `json:"days_left"`
	Implausible bool    `json:"implausible"`
	Pattern     string  `json:"pattern,omitempty"`
}

func (ImprobableEvidence) Kind() Type { return ImprobableExpiring }

// ResolvedEvidence backs ALREADY_RESOLVED.
type ResolvedEvidence struct {
	Headline    string    `json:"headline"`
	Source      string    `json:"source,omitempty"`
	Confirmed   string    `json:"confirmed_side"`
	PublishedAt time.Time `json:"published_at"`
}

func (ResolvedEvidence) Kind() Type { return AlreadyResolved }

// NearCertainEvidence backs NEAR_CERTAIN.
type NearCertainEvidence struct {
	Pattern  string  `json:"pattern"`
	Expected float64 `json:"expected"`
	Observed float64 `json:"observed"`
}

func (NearCertainEvidence) Kind() Type { return NearCertain }

// WhaleEvidence backs WHALE_ACTIVITY.
type WhaleEvidence struct {
	Transactions int     `json:"transactions"`
	YesVolume    float64 `json:"yes_volume"`
	NoVolume     float64 `json:"no_volume"`
	Consensus    float64 `json:"consensus"`
}

func (WhaleEvidence) Kind() Type { return WhaleActivity }

// VolumeEvidence backs ABNORMAL_VOLUME.
type VolumeEvidence struct {
	HourlyVolume   float64 `json:"hourly_volume"`
	BaselineHourly float64 `json:"baseline_hourly"`
	Ratio          float64 `json:"ratio"`
	PriceChange1h  float64 `json:"price_change_1h"`
}

func (VolumeEvidence) Kind() Type { return AbnormalVolume }

// MomentumEvidence backs MOMENTUM_SHORT, MOMENTUM_LONG and CONTRARIAN.
type MomentumEvidence struct {
	Variant Type    `json:"variant"`
	Window  string  `json:"window"`
	Change  float64 `json:"change"`
}

func (e MomentumEvidence) Kind() Type { return e.Variant }

// MispricingEvidence backs NEW_MARKET_MISPRICING.
type MispricingEvidence struct {
	FairValue float64 `json:"fair_value"`
	Price     float64 `json:"price"`
	AgeHours  float64 `json:"age_hours"`
}

func (MispricingEvidence) Kind() Type { return NewMarketMispricing }

// PeerEvidence backs LOW_LIQUIDITY_MISPRICING.
type PeerEvidence struct {
	Category  string  `json:"category"`
	PeerAvg   float64 `json:"peer_avg"`
	PeerCount int     `json:"peer_count"`
	Price     float64 `json:"price"`
}

func (PeerEvidence) Kind() Type { return LowLiquidityMispricing }

// NewsLagEvidence backs NEWS_LAG.
type NewsLagEvidence struct {
	Headline     string    `json:"headline"`
	ImpactScore  float64   `json:"impact_score"`
	Sentiment    float64   `json:"sentiment"`
	ExpectedMove float64   `json:"expected_move"`
	ObservedMove float64   `json:"observed_move"`
	PublishedAt  time.Time `json:"published_at"`
}

func (NewsLagEvidence) Kind() Type { return NewsLag }

// CorrelationEvidence backs CORRELATION_DIVERGENCE.
type CorrelationEvidence struct {
	LeaderID    string  `json:"leader_id"`
	LeaderPrice float64 `json:"leader_price"`
	Correlation float64 `json:"correlation"`
	Expected    float64 `json:"expected"`
	Observed    float64 `json:"observed"`
}

func (CorrelationEvidence) Kind() Type { return CorrelationDivergence }

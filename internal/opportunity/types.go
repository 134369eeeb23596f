package opportunity

import "github.com/FewZ2372/polymarket-bot/internal/market"

// Type tags the detector variant that produced an opportunity.
type Type string

const (
	MultiOutcomeArb        Type = "MULTI_OUTCOME_ARB"
	YesNoMismatch          Type = "YES_NO_MISMATCH"
	CrossPlatformArb       Type = "CROSS_PLATFORM_ARB"
	AlreadyResolved        Type = "ALREADY_RESOLVED"
	NearCertain            Type = "NEAR_CERTAIN"
	TimeDecay              Type = "TIME_DECAY"
	ImprobableExpiring     Type = "IMPROBABLE_EXPIRING"
	WhaleActivity          Type = "WHALE_ACTIVITY"
	AbnormalVolume         Type = "ABNORMAL_VOLUME"
	MomentumLong           Type = "MOMENTUM_LONG"
	MomentumShort          Type = "MOMENTUM_SHORT"
	Contrarian             Type = "CONTRARIAN"
	NewMarketMispricing    Type = "NEW_MARKET_MISPRICING"
	LowLiquidityMispricing Type = "LOW_LIQUIDITY_MISPRICING"
	NewsLag                Type = "NEWS_LAG"
	PreEvent               Type = "PRE_EVENT"
	CorrelationDivergence  Type = "CORRELATION_DIVERGENCE"
)

// Guaranteed-profit classes rank above probabilistic ones.
//
//nolint:gochecknoglobals // fixed lookup table
var typePriority = map[Type]int{
	MultiOutcomeArb:        100,
	YesNoMismatch:          98,
	CrossPlatformArb:       95,
	AlreadyResolved:        90,
	NearCertain:            85,
	TimeDecay:              80,
	ImprobableExpiring:     75,
	WhaleActivity:          70,
	AbnormalVolume:         65,
	MomentumLong:           60,
	MomentumShort:          55,
	Contrarian:             50,
	NewMarketMispricing:    45,
	LowLiquidityMispricing: 40,
	NewsLag:                35,
	PreEvent:               30,
	CorrelationDivergence:  25,
}

// Priority returns the fixed ordinal priority of the type (0-100). Unknown types rank 0.
func (t Type) Priority() int {
	return typePriority[t]
}

// IsArbitrage reports whether the type is a guaranteed-profit arbitrage class.
func (t Type) IsArbitrage() bool {
	return t == MultiOutcomeArb || t == YesNoMismatch || t == CrossPlatformArb
}

// AllTypes lists every known type in descending priority.
func AllTypes() []Type {
	return []Type{
		MultiOutcomeArb, YesNoMismatch, CrossPlatformArb, AlreadyResolved, NearCertain,
		TimeDecay, ImprobableExpiring, WhaleActivity, AbnormalVolume, MomentumLong,
		MomentumShort, Contrarian, NewMarketMispricing, LowLiquidityMispricing, NewsLag,
		PreEvent, CorrelationDivergence,
	}
}

// Action is the trade an opportunity recommends.
type Action string

const (
	BuyYes    Action = "BUY_YES"
	BuyNo     Action = "BUY_NO"
	BuyBoth   Action = "BUY_BOTH"
	BuyAllYes Action = "BUY_ALL_YES"
	BuyAllNo  Action = "BUY_ALL_NO"
	SellYes   Action = "SELL_YES"
	SellNo    Action = "SELL_NO"
)

// Direction is the directional view an action implies on its primary market.
type Direction int

const (
	// Neutral actions (BUY_BOTH) hold both sides and never conflict.
	Neutral Direction = iota
	Long
	Short
)

// Direction maps the action onto a YES-long / YES-short view.
// Selling YES is a bet on NO and vice versa.
func (a Action) Direction() Direction {
	switch a {
	case BuyYes, BuyAllYes, SellNo:
		return Long
	case BuyNo, BuyAllNo, SellYes:
		return Short
	default:
		return Neutral
	}
}

// Opposes reports whether two actions take contradictory views.
func (a Action) Opposes(b Action) bool {
	da, db := a.Direction(), b.Direction()
	return da != Neutral && db != Neutral && da != db
}

// BuySide returns the token side bought to express a single-market action.
func (a Action) BuySide() market.Side {
	if a.Direction() == Short {
		return market.SideNo
	}
	return market.SideYes
}

// ForSide returns BUY_YES or BUY_NO.
func ForSide(side market.Side) Action {
	if side == market.SideNo {
		return BuyNo
	}
	return BuyYes
}

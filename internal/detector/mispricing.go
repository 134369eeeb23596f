package detector

import (
	"context"
	"math"
	"sort"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

const (
	newMarketConf    = 60
	lowLiquidityConf = 55
)

// DetectNewMarketMispricing trades young, thin markets toward an external fair-value estimate.
func DetectNewMarketMispricing(_ context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	if env.FairValue == nil {
		return nil, nil
	}
	th := env.Thresholds
	now := snap.TakenAt()
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		age, ok := m.AgeHours(now)
		if !ok || age < 0 || age >= th.NewMarketMaxAgeHours {
			continue
		}
		if math.Max(m.VolumeTotal, m.Volume24h) >= th.NewMarketMaxVolume {
			continue
		}

		fair, ok := env.FairValue.FairValue(m)
		if !ok {
			continue
		}
		gap := fair - m.YesPrice
		if math.Abs(gap) <= th.NewMarketMinGap {
			continue
		}

		o := opportunity.New(opportunity.NewMarketMispricing, directional(gap), math.Abs(gap)*100, newMarketConf, now).
			OnMarket(m).
			WithEvidence(opportunity.MispricingEvidence{FairValue: fair, Price: m.YesPrice, AgeHours: age})
		out = append(out, o)
	}

	return out, nil
}

// DetectLowLiquidity trades thin markets toward the average price of their category peers.
func DetectLowLiquidity(_ context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	th := env.Thresholds
	var out []*opportunity.Opportunity

	for _, cg := range categoryGroups(snap) {
		group := cg.markets
		for _, m := range group {
			if m.Volume24h <= th.LowLiquidityMinVolume || m.Volume24h >= th.LowLiquidityMaxVolume {
				continue
			}

			sum, n := 0.0, 0
			for _, peer := range group {
				if peer.ID == m.ID {
					continue
				}
				sum += peer.YesPrice
				n++
			}
			if n < th.LowLiquidityMinPeers {
				continue
			}

			avg := sum / float64(n)
			gap := avg - m.YesPrice
			if math.Abs(gap) <= th.LowLiquidityMinGap {
				continue
			}

			o := opportunity.New(opportunity.LowLiquidityMispricing, directional(gap), math.Abs(gap)*100, lowLiquidityConf, snap.TakenAt()).
				OnMarket(m).
				WithEvidence(opportunity.PeerEvidence{Category: cg.category, PeerAvg: avg, PeerCount: n, Price: m.YesPrice})
			out = append(out, o)
		}
	}

	return out, nil
}

type categoryGroup struct {
	category string
	markets  []*market.Market
}

// categoryGroups returns tradable markets grouped by category, ordered by category name.
func categoryGroups(snap *market.Snapshot) []categoryGroup {
	byCat := snap.ByCategory()
	out := make([]categoryGroup, 0, len(byCat))
	for cat, ms := range byCat {
		valid := make([]*market.Market, 0, len(ms))
		for _, m := range ms {
			if m.Validate() == nil {
				valid = append(valid, m)
			}
		}
		out = append(out, categoryGroup{category: cat, markets: valid})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].category < out[j].category })
	return out
}

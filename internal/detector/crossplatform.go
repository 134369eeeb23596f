package detector

import (
	"context"
	"math"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

// DetectCrossPlatform compares each market with its match on another venue and buys the cheap side here.
func DetectCrossPlatform(ctx context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	if env.Quotes == nil {
		return nil, nil
	}
	th := env.Thresholds
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		other, score, err := env.Quotes.MatchingMarket(ctx, m.Question)
		if err != nil {
			return nil, externalError("quotes", err)
		}
		if other == nil || !(other.YesPrice > 0 && other.YesPrice < 1) {
			continue
		}

		sim := score
		if sim <= 0 {
			sim = Similarity(m.Question, other.Question)
		}
		if sim < th.CrossPlatformMinSimilarity {
			continue
		}

		spread := math.Abs(m.YesPrice - other.YesPrice)
		if spread < th.CrossPlatformMinSpread-priceTolerance {
			continue
		}

		action := opportunity.BuyNo
		if m.YesPrice < other.YesPrice {
			action = opportunity.BuyYes
		}

		o := opportunity.New(opportunity.CrossPlatformArb, action, spread*100, crossPlatformConfidence(sim), snap.TakenAt()).
			OnMarket(m).
			WithRelated(other.ID).
			WithEvidence(opportunity.CrossPlatformEvidence{
				Venue:         string(other.Platform),
				VenueMarketID: other.ID,
				VenueQuestion: other.Question,
				VenueYesPrice: other.YesPrice,
				Similarity:    sim,
				Spread:        spread,
			})
		out = append(out, o)
	}

	return out, nil
}

// crossPlatformConfidence is 95 for strong matches and loses a point per 0.01 of similarity below 0.8.
func crossPlatformConfidence(sim float64) int {
	if sim >= 0.8 {
		return 95
	}
	return int(math.Round(95 - (0.8-sim)*100))
}

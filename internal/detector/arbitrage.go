package detector

import (
	"context"
	"math"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

const arbitrageConfidence = 99

// priceTolerance keeps float noise at the ε boundary from firing.
const priceTolerance = 1e-9

// DetectMultiOutcome flags events whose outcome YES prices sum away from 1 by more than ε.
// Under 1 every YES is bought; over 1 every NO is bought.
func DetectMultiOutcome(_ context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	eps := env.Thresholds.ArbEpsilon
	var out []*opportunity.Opportunity

	for _, e := range snap.Events() {
		if len(e.Markets) < 2 || !allValid(e.Markets) {
			continue
		}

		prices := make([]float64, len(e.Markets))
		sum := 0.0
		for i, m := range e.Markets {
			prices[i] = m.YesPrice
			sum += m.YesPrice
		}

		var action opportunity.Action
		var side market.Side
		switch {
		case sum < 1-eps-priceTolerance:
			action, side = opportunity.BuyAllYes, market.SideYes
		case sum > 1+eps+priceTolerance:
			action, side = opportunity.BuyAllNo, market.SideNo
		default:
			continue
		}

		o := opportunity.New(opportunity.MultiOutcomeArb, action, math.Abs(1-sum)*100, arbitrageConfidence, snap.TakenAt()).
			OnEvent(e, e.Markets, side).
			WithEvidence(opportunity.MultiOutcomeEvidence{EventTitle: e.Title, PriceSum: sum, Prices: prices})
		out = append(out, o)
	}

	return out, nil
}

// DetectYesNoMismatch flags single markets whose YES and NO prices sum below 1−ε.
func DetectYesNoMismatch(_ context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	eps := env.Thresholds.ArbEpsilon
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		sum := m.YesPrice + m.NoPrice
		if sum >= 1-eps-priceTolerance {
			continue
		}
		o := opportunity.New(opportunity.YesNoMismatch, opportunity.BuyBoth, (1-sum)*100, arbitrageConfidence, snap.TakenAt()).
			OnMarket(m).
			WithEvidence(opportunity.MismatchEvidence{YesPrice: m.YesPrice, NoPrice: m.NoPrice, PriceSum: sum})
		out = append(out, o)
	}

	return out, nil
}

func allValid(ms []*market.Market) bool {
	for _, m := range ms {
		if m == nil || m.Validate() != nil {
			return false
		}
	}
	return true
}

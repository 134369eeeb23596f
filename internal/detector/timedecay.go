package detector

import (
	"context"
	"math"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

const timeDecayMaxConfidence = 95

// DetectTimeDecay sells deadline questions that still price YES highly as the deadline nears.
func DetectTimeDecay(_ context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	th := env.Thresholds
	now := snap.TakenAt()
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		days, ok := m.DaysToResolution(now)
		if !ok || days < 0 || days > th.TimeDecayMaxDays {
			continue
		}
		if m.YesPrice < th.TimeDecayMinPrice {
			continue
		}
		kw, ok := env.Lexicon.DeadlineKeyword(m.Question)
		if !ok {
			continue
		}

		conf := int(math.Round(70 + 2*(th.TimeDecayMaxDays-days)))
		if conf > timeDecayMaxConfidence {
			conf = timeDecayMaxConfidence
		}

		theta := m.YesPrice
		if days > 1 {
			theta = m.YesPrice / days
		}

		o := opportunity.New(opportunity.TimeDecay, opportunity.BuyNo, m.YesPrice*100, conf, now).
			OnMarket(m).
			WithEvidence(opportunity.TimeDecayEvidence{DaysLeft: days, DailyTheta: theta, Keyword: kw})
		out = append(out, o)
	}

	return out, nil
}

// DetectImprobableExpiring sells cheap YES on questions that are about to expire.
func DetectImprobableExpiring(_ context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	th := env.Thresholds
	now := snap.TakenAt()
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		if m.YesPrice <= th.ImprobableMinPrice || m.YesPrice > th.ImprobableMaxPrice {
			continue
		}
		days, ok := m.DaysToResolution(now)
		if !ok || days < th.ImprobableMinDays || days > th.ImprobableMaxDays {
			continue
		}

		pattern, implausible := env.Lexicon.ImplausiblePattern(m.Question)
		conf := 75
		if implausible {
			conf = 90
		}

		o := opportunity.New(opportunity.ImprobableExpiring, opportunity.BuyNo, m.YesPrice*100, conf, now).
			OnMarket(m).
			WithEvidence(opportunity.ImprobableEvidence{DaysLeft: days, Implausible: implausible, Pattern: pattern})
		out = append(out, o)
	}

	return out, nil
}

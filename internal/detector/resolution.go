package detector

import (
	"context"
	"math"
	"strings"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

const (
	resolvedConfidence   = 95
	nearCertainMaxConf   = 99
	minRelevantKeywords  = 2
	questionKeywordLimit = 5
)

// DetectAlreadyResolved buys the side that news reports as final when the market has not caught up.
func DetectAlreadyResolved(ctx context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	if env.News == nil {
		return nil, nil
	}
	th := env.Thresholds
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		kws := Keywords(m.Question, 4, questionKeywordLimit)
		if len(kws) < minRelevantKeywords {
			continue
		}

		items, err := env.News.Search(ctx, kws, th.ResolvedNewsWindow)
		if err != nil {
			return nil, externalError("news", err)
		}

		for _, item := range items {
			if matchedKeywords(item.Text(), kws) < minRelevantKeywords {
				continue
			}
			side, ok := item.ConfirmsOutcome()
			if !ok {
				side, ok = env.Lexicon.OutcomeFromText(item.Text())
			}
			if !ok {
				continue
			}

			price := m.Price(side)
			if price >= th.ResolvedMaxPrice {
				continue
			}

			o := opportunity.New(opportunity.AlreadyResolved, opportunity.ForSide(side), (1-price)*100, resolvedConfidence, snap.TakenAt()).
				OnMarket(m).
				WithEvidence(opportunity.ResolvedEvidence{
					Headline:    item.Headline,
					Source:      item.Source,
					Confirmed:   string(side),
					PublishedAt: item.PublishedAt,
				})
			out = append(out, o)
			break
		}
	}

	return out, nil
}

// DetectNearCertain compares markets matching a known-outcome pattern with the pattern's probability.
func DetectNearCertain(_ context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	th := env.Thresholds
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		p, ok := env.Lexicon.CertainProbability(m.Question)
		if !ok {
			continue
		}

		deviation := math.Abs(p.Probability - m.YesPrice)
		if deviation <= th.NearCertainMinDeviation {
			continue
		}

		var action opportunity.Action
		var conf float64
		switch {
		case p.Probability >= 0.5 && m.YesPrice < p.Probability:
			action, conf = opportunity.BuyYes, p.Probability*100
		case p.Probability < 0.5 && m.YesPrice > p.Probability:
			action, conf = opportunity.BuyNo, (1-p.Probability)*100
		default:
			continue
		}

		o := opportunity.New(opportunity.NearCertain, action, deviation*100, min(int(math.Floor(conf+1e-9)), nearCertainMaxConf), snap.TakenAt()).
			OnMarket(m).
			WithEvidence(opportunity.NearCertainEvidence{Pattern: p.Pattern, Expected: p.Probability, Observed: m.YesPrice})
		out = append(out, o)
	}

	return out, nil
}

func matchedKeywords(text string, kws []string) int {
	padded := " " + normalize(text) + " "
	n := 0
	for _, kw := range kws {
		if strings.Contains(padded, " "+kw) {
			n++
		}
	}
	return n
}

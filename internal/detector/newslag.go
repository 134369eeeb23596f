package detector

import (
	"context"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

const newsLagConf = 70

// DetectNewsLag trades fresh high-impact news that the price has not yet absorbed.
// An item with impact I implies a move of I/1000; less than half of that in the last hour counts as lag.
func DetectNewsLag(ctx context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	if env.News == nil {
		return nil, nil
	}
	th := env.Thresholds
	now := snap.TakenAt()
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		kws := Keywords(m.Question, 4, 3)
		if len(kws) == 0 {
			continue
		}
		items, err := env.News.Search(ctx, kws, th.NewsLagMaxAge)
		if err != nil {
			return nil, externalError("news", err)
		}

		for _, item := range items {
			age := now.Sub(item.PublishedAt)
			if age < 0 || age >= th.NewsLagMaxAge {
				continue
			}
			if item.ImpactScore < th.NewsLagMinImpact || item.Sentiment == 0 {
				continue
			}

			dir := 1.0
			if item.Sentiment < 0 {
				dir = -1
			}
			expected := item.ImpactScore / 1000
			observed := m.PriceChange1h * dir
			if observed >= expected/2 {
				continue
			}

			o := opportunity.New(opportunity.NewsLag, directional(item.Sentiment), item.ImpactScore/10, newsLagConf, now).
				OnMarket(m).
				WithEvidence(opportunity.NewsLagEvidence{
					Headline:     item.Headline,
					ImpactScore:  item.ImpactScore,
					Sentiment:    item.Sentiment,
					ExpectedMove: expected,
					ObservedMove: observed,
					PublishedAt:  item.PublishedAt,
				})
			out = append(out, o)
			break
		}
	}

	return out, nil
}

package detector

import (
	"context"
	"math"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

const (
	momentumShortConf = 65
	momentumLongConf  = 70
	contrarianConf    = 60
)

// DetectMomentum follows sharp 1h moves and sustained 24h moves confirmed by the last hour.
func DetectMomentum(_ context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	th := env.Thresholds
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		if c := m.PriceChange1h; math.Abs(c) > th.MomentumShortChange {
			o := opportunity.New(opportunity.MomentumShort, directional(c), math.Abs(c)*50, momentumShortConf, snap.TakenAt()).
				OnMarket(m).
				WithEvidence(opportunity.MomentumEvidence{Variant: opportunity.MomentumShort, Window: "1h", Change: c})
			out = append(out, o)
		}

		c := m.PriceChange24h
		if math.Abs(c) <= th.MomentumLongChange || m.PriceChange1h*c < 0 {
			continue
		}
		o := opportunity.New(opportunity.MomentumLong, directional(c), math.Abs(c)*30, momentumLongConf, snap.TakenAt()).
			OnMarket(m).
			WithEvidence(opportunity.MomentumEvidence{Variant: opportunity.MomentumLong, Window: "24h", Change: c})
		out = append(out, o)
	}

	return out, nil
}

// DetectContrarian buys the rebound of a sharp drop that no negative news explains.
func DetectContrarian(ctx context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	th := env.Thresholds
	var out []*opportunity.Opportunity

	for _, m := range tradable(snap) {
		c := m.PriceChange1h
		if c > -th.ContrarianDrop {
			continue
		}

		if env.News != nil {
			items, err := env.News.Search(ctx, Keywords(m.Question, 4, 3), th.CorroborationWindow)
			if err != nil {
				return nil, externalError("news", err)
			}
			if anyNegative(env.Lexicon, items) {
				continue
			}
		}

		o := opportunity.New(opportunity.Contrarian, opportunity.BuyYes, math.Abs(c)*50, contrarianConf, snap.TakenAt()).
			OnMarket(m).
			WithEvidence(opportunity.MomentumEvidence{Variant: opportunity.Contrarian, Window: "1h", Change: c})
		out = append(out, o)
	}

	return out, nil
}

func directional(change float64) opportunity.Action {
	if change > 0 {
		return opportunity.BuyYes
	}
	return opportunity.BuyNo
}

func anyNegative(l *Lexicon, items []NewsItem) bool {
	for _, item := range items {
		if l.HasNegativeWord(item.Text()) {
			return true
		}
	}
	return false
}

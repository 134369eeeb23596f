package detector

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

const correlationConf = 65

// DetectCorrelation trades the follower of a correlated pair back toward the price implied by its leader:
// expected = p_leader × corr + (1 − corr) × 0.5.
func DetectCorrelation(ctx context.Context, snap *market.Snapshot, env *Env) ([]*opportunity.Opportunity, error) {
	th := env.Thresholds
	markets := tradable(snap)
	var out []*opportunity.Opportunity

	for _, pair := range env.Lexicon.Correlations {
		leaders := matching(markets, pair.leaderRe.MatchString)
		if len(leaders) == 0 {
			continue
		}
		followers := matching(markets, pair.followerRe.MatchString)

		if env.Calendar != nil {
			extra, err := calendarPartners(ctx, env.Calendar, leaders, th.CorrelationWindow)
			if err != nil {
				return nil, err
			}
			followers = mergeByID(followers, matching(extra, pair.followerRe.MatchString))
		}

		for _, m1 := range leaders {
			for _, m2 := range followers {
				if m1.ID == m2.ID {
					continue
				}
				expected := m1.YesPrice*pair.Coefficient + (1-pair.Coefficient)*0.5
				gap := expected - m2.YesPrice
				if math.Abs(gap) <= th.CorrelationMinDivergence {
					continue
				}

				o := opportunity.New(opportunity.CorrelationDivergence, directional(gap), math.Abs(gap)*50, correlationConf, snap.TakenAt()).
					OnMarket(m2).
					WithRelated(m1.ID).
					WithEvidence(opportunity.CorrelationEvidence{
						LeaderID:    m1.ID,
						LeaderPrice: m1.YesPrice,
						Correlation: pair.Coefficient,
						Expected:    expected,
						Observed:    m2.YesPrice,
					})
				out = append(out, o)
			}
		}
	}

	return out, nil
}

func calendarPartners(ctx context.Context, cal CalendarFeed, leaders []*market.Market, window time.Duration) ([]*market.Market, error) {
	var out []*market.Market
	for _, m := range leaders {
		events, err := cal.RelatedEvents(ctx, m.Question, window)
		if err != nil {
			return nil, externalError("calendar", err)
		}
		for _, e := range events {
			for _, em := range e.Markets {
				if em != nil && em.Validate() == nil {
					out = append(out, em)
				}
			}
		}
	}
	return out, nil
}

func matching(ms []*market.Market, match func(string) bool) []*market.Market {
	var out []*market.Market
	for _, m := range ms {
		if match(strings.ToLower(m.Question)) {
			out = append(out, m)
		}
	}
	return out
}

func mergeByID(base, extra []*market.Market) []*market.Market {
	seen := make(map[string]struct{}, len(base))
	for _, m := range base {
		seen[m.ID] = struct{}{}
	}
	for _, m := range extra {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		base = append(base, m)
	}
	return base
}

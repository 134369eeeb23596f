// Package ranker scores, filters and orders opportunities.
package ranker

import (
	"errors"
	"sort"

	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

const (
	priorityWeight   = 0.3
	valueWeight      = 0.4
	confidenceWeight = 0.3

	// maxScoredValue is the expected value that earns the full value component.
	maxScoredValue = 50.0
)

// Config holds the ranking filters.
type Config struct {
	MinConfidence int
	MinProfit     float64
}

// Ranker orders opportunities by composite score.
type Ranker struct {
	cfg Config
}

// New creates a ranker.
func New(cfg Config) (*Ranker, error) {
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 100 {
		return nil, errors.New("min confidence must be within 0-100")
	}
	if cfg.MinProfit < 0 {
		return nil, errors.New("min profit cannot be negative")
	}
	return &Ranker{cfg: cfg}, nil
}

// Score = 0.3×priority/100 + 0.4×clip(EV, 0, 50)/50 + 0.3×confidence/100.
func Score(o *opportunity.Opportunity) float64 {
	ev := o.ExpectedValue()
	if ev < 0 {
		ev = 0
	}
	if ev > maxScoredValue {
		ev = maxScoredValue
	}
	return priorityWeight*float64(o.Type.Priority())/100 +
		valueWeight*ev/maxScoredValue +
		confidenceWeight*float64(o.Confidence)/100
}

// Rank drops opportunities below the configured minimums and returns the rest sorted by score
// descending, then type priority, then primary market id. The result holds scored copies.
func (r *Ranker) Rank(opps []*opportunity.Opportunity) []*opportunity.Opportunity {
	out := make([]*opportunity.Opportunity, 0, len(opps))
	for _, o := range opps {
		if o == nil {
			continue
		}
		if o.Confidence < r.cfg.MinConfidence {
			FilteredTotal.WithLabelValues("confidence").Inc()
			continue
		}
		if o.ExpectedProfit < r.cfg.MinProfit {
			FilteredTotal.WithLabelValues("profit").Inc()
			continue
		}
		scored := o.Clone()
		scored.Score = Score(o)
		out = append(out, scored)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if pa, pb := a.Type.Priority(), b.Type.Priority(); pa != pb {
			return pa > pb
		}
		if ma, mb := a.PrimaryMarketID(), b.PrimaryMarketID(); ma != mb {
			return ma < mb
		}
		return a.Action < b.Action
	})

	RankedTotal.Add(float64(len(out)))
	return out
}

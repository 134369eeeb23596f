// Package aggregator deduplicates detector output and resolves conflicting views per market.
package aggregator

import (
	"errors"
	"sort"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
)

// Config holds the corroboration boost policy.
type Config struct {
	// BoostStep is added to the confidence of a merged opportunity per extra agreeing signal.
	BoostStep int
	// BoostCap bounds the boosted confidence.
	BoostCap int
}

// DefaultConfig returns +5 per signal capped at 95.
func DefaultConfig() Config {
	return Config{BoostStep: 5, BoostCap: 95}
}

// Aggregator groups opportunities by primary market and keeps one per group.
type Aggregator struct {
	cfg Config
}

// New creates an aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.BoostStep < 0 {
		return nil, errors.New("boost step cannot be negative")
	}
	if cfg.BoostCap < 0 || cfg.BoostCap > 100 {
		return nil, errors.New("boost cap must be within 0-100")
	}
	return &Aggregator{cfg: cfg}, nil
}

type entry struct {
	opp   *opportunity.Opportunity
	index int
}

// Aggregate returns at most one opportunity per group key, and never two opportunities that
// buy opposite sides of the same market. Inputs are not modified; boosted results are copies.
func (a *Aggregator) Aggregate(opps []*opportunity.Opportunity) []*opportunity.Opportunity {
	groups := make(map[string][]entry)
	var keys []string
	for i, o := range opps {
		if o == nil {
			continue
		}
		key := o.GroupKey()
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], entry{opp: o, index: i})
	}
	sort.Strings(keys)

	winners := make([]entry, 0, len(keys))
	for _, key := range keys {
		winners = append(winners, a.resolve(groups[key]))
	}

	return dropCrossGroupConflicts(winners)
}

func (a *Aggregator) resolve(group []entry) entry {
	if len(group) == 1 {
		return group[0]
	}

	if hasOpposition(group) {
		ConflictsTotal.Inc()
		best := group[0]
		for _, e := range group[1:] {
			if strongerView(e.opp, best.opp) {
				best = e
			}
		}
		return best
	}

	MergesTotal.Inc()
	best := group[0]
	for _, e := range group[1:] {
		if betterValue(e.opp, best.opp) {
			best = e
		}
	}

	merged := best.opp.Clone()
	boosted := merged.Confidence + a.cfg.BoostStep*(len(group)-1)
	limit := max(a.cfg.BoostCap, merged.Confidence)
	merged.SetConfidence(min(boosted, limit))
	return entry{opp: merged, index: best.index}
}

func hasOpposition(group []entry) bool {
	for i := range group {
		for j := i + 1; j < len(group); j++ {
			if group[i].opp.Action.Opposes(group[j].opp.Action) {
				return true
			}
		}
	}
	return false
}

// strongerView prefers higher confidence, then higher type priority. Earlier input wins full ties.
func strongerView(a, b *opportunity.Opportunity) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.Type.Priority() > b.Type.Priority()
}

// betterValue prefers higher expected value, then higher type priority.
func betterValue(a, b *opportunity.Opportunity) bool {
	ea, eb := a.ExpectedValue(), b.ExpectedValue()
	if ea != eb {
		return ea > eb
	}
	return a.Type.Priority() > b.Type.Priority()
}

// dropCrossGroupConflicts removes winners whose legs take the opposite side of a market already
// claimed by a stronger winner. This catches a basket overlapping a single-market view.
func dropCrossGroupConflicts(winners []entry) []*opportunity.Opportunity {
	order := make([]entry, len(winners))
	copy(order, winners)
	sort.SliceStable(order, func(i, j int) bool {
		return strongerView(order[i].opp, order[j].opp)
	})

	claimed := make(map[string]market.Side)
	kept := make(map[int]bool, len(order))
	for _, e := range order {
		views := legViews(e.opp)
		conflict := false
		for id, side := range views {
			if prev, ok := claimed[id]; ok && prev != side {
				conflict = true
				break
			}
		}
		if conflict {
			ConflictsTotal.Inc()
			continue
		}
		for id, side := range views {
			claimed[id] = side
		}
		kept[e.index] = true
	}

	out := make([]*opportunity.Opportunity, 0, len(kept))
	for _, e := range winners {
		if kept[e.index] {
			out = append(out, e.opp)
		}
	}
	return out
}

// legViews maps each traded market to the side held. Markets where both sides are bought are neutral.
func legViews(o *opportunity.Opportunity) map[string]market.Side {
	views := make(map[string]market.Side, len(o.Legs))
	neutral := make(map[string]bool)
	for _, l := range o.Legs {
		if prev, ok := views[l.MarketID]; ok && prev != l.Side {
			neutral[l.MarketID] = true
		}
		views[l.MarketID] = l.Side
	}
	for id := range neutral {
		delete(views, id)
	}
	if len(o.Legs) == 0 && o.PrimaryMarketID() != "" && o.Action.Direction() != opportunity.Neutral {
		views[o.PrimaryMarketID()] = o.Action.BuySide()
	}
	return views
}

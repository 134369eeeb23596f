package market

import (
	"sort"
	"time"
)

// Snapshot is the immutable view of all markets handed to one scan cycle.
// Accessors return shared pointers; callers must treat them as read-only.
type Snapshot struct {
	takenAt time.Time
	markets []*Market
	events  []*Event
	byID    map[string]*Market
	// baseline is the trailing 7-day average daily volume per market id.
	baseline map[string]float64
}

// NewSnapshot builds a snapshot. Markets are ordered by id so iteration is deterministic.
func NewSnapshot(takenAt time.Time, markets []*Market, events []*Event, volumeBaseline map[string]float64) *Snapshot {
	ms := make([]*Market, 0, len(markets))
	byID := make(map[string]*Market, len(markets))
	for _, m := range markets {
		if m == nil {
			continue
		}
		if _, dup := byID[m.ID]; dup {
			continue
		}
		byID[m.ID] = m
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].ID < ms[j].ID })

	es := make([]*Event, 0, len(events))
	for _, e := range events {
		if e != nil {
			es = append(es, e)
		}
	}
	sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })

	baseline := make(map[string]float64, len(volumeBaseline))
	for k, v := range volumeBaseline {
		baseline[k] = v
	}

	return &Snapshot{
		takenAt:  takenAt,
		markets:  ms,
		events:   es,
		byID:     byID,
		baseline: baseline,
	}
}

// TakenAt is the snapshot timestamp; detectors use it as "now".
func (s *Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Markets returns all markets ordered by id.
func (s *Snapshot) Markets() []*Market {
	return s.markets
}

// Events returns all multi-outcome events ordered by id.
func (s *Snapshot) Events() []*Event {
	return s.events
}

// Market looks a market up by id.
func (s *Snapshot) Market(id string) (*Market, bool) {
	m, ok := s.byID[id]
	return m, ok
}

// VolumeBaseline returns the trailing 7-day average daily volume for a market.
func (s *Snapshot) VolumeBaseline(id string) (avgDaily float64, ok bool) {
	v, ok := s.baseline[id]
	return v, ok
}

// ByCategory groups markets by category, preserving id order inside each group.
func (s *Snapshot) ByCategory() map[string][]*Market {
	groups := make(map[string][]*Market)
	for _, m := range s.markets {
		if m.Category == "" {
			continue
		}
		groups[m.Category] = append(groups[m.Category], m)
	}
	return groups
}

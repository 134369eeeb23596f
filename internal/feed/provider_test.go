package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/FewZ2372/polymarket-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	markets   []types.GammaMarket
	events    []types.GammaEvent
	byID      map[string]types.GammaMarket
	eventsErr error
	gotLimits []int
}

func (f *fakeSource) FetchMarkets(_ context.Context, limit int) ([]types.GammaMarket, error) {
	f.gotLimits = append(f.gotLimits, limit)
	return f.markets, nil
}

func (f *fakeSource) FetchEvents(_ context.Context, _ int) ([]types.GammaEvent, error) {
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

func (f *fakeSource) FetchMarketsByID(_ context.Context, ids []string) ([]types.GammaMarket, error) {
	var out []types.GammaMarket
	for _, id := range ids {
		if m, ok := f.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func gm(id string, yes, no float64) types.GammaMarket {
	return types.GammaMarket{
		ID:       id,
		Question: "question " + id,
		Active:   true,
		Outcomes: []string{"Yes", "No"},
		Prices:   []float64{yes, no},
		TokenIDs: []string{id + "-y", id + "-n"},
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	weekly := gm("m1", 0.4, 0.6)
	weekly.Volume1wk = 7000

	src := &fakeSource{
		markets: []types.GammaMarket{gm("m2", 0.3, 0.7), weekly},
		events: []types.GammaEvent{
			{ID: "ev-neg", NegRisk: true, Markets: []types.GammaMarket{gm("a", 0.3, 0.7), gm("b", 0.5, 0.5), gm("c", 0.1, 0.9)}},
			{ID: "ev-plain", NegRisk: false, Markets: []types.GammaMarket{gm("d", 0.3, 0.7), gm("e", 0.5, 0.5)}},
			{ID: "ev-single", NegRisk: true, Markets: []types.GammaMarket{gm("f", 0.3, 0.7)}},
		},
	}

	sub := newFakeSubscriber()
	stream := newTestStream(t, sub)
	stream.apply(&types.StreamMessage{AssetID: "m2-y", Price: "0.35"})
	stream.cache.Wait()

	p, err := NewSnapshotProvider(&ProviderConfig{
		Source:      src,
		Stream:      stream,
		MarketLimit: 500,
		Logger:      zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	taken := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return taken }

	snap, err := p.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, taken, snap.TakenAt())
	assert.Equal(t, []int{500}, src.gotLimits)
	require.Len(t, snap.Markets(), 2)
	assert.Equal(t, "m1", snap.Markets()[0].ID)

	require.Len(t, snap.Events(), 1)
	assert.Equal(t, "ev-neg", snap.Events()[0].ID)
	assert.Equal(t, "ev-neg", snap.Events()[0].Markets[0].EventID)

	avg, ok := snap.VolumeBaseline("m1")
	require.True(t, ok)
	assert.InDelta(t, 1000.0, avg, 1e-9)
	_, ok = snap.VolumeBaseline("m2")
	assert.False(t, ok)

	m2, _ := snap.Market("m2")
	assert.InDelta(t, 0.35, m2.YesPrice, 1e-9, "streamed price wins")
	assert.InDelta(t, 0.70, m2.NoPrice, 1e-9)

	assert.Contains(t, sub.subscribed, "m1-y")
	assert.Contains(t, sub.subscribed, "m2-n")
}

func TestSnapshot_SourceError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{eventsErr: errors.New("boom")}
	p, err := NewSnapshotProvider(&ProviderConfig{Source: src, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	_, err = p.Snapshot(context.Background())
	assert.ErrorContains(t, err, "fetch events")
}

func TestMarkets_ResolutionLookup(t *testing.T) {
	t.Parallel()

	settled := gm("won", 1, 0)
	settled.Closed = true
	src := &fakeSource{byID: map[string]types.GammaMarket{
		"won":  settled,
		"live": gm("live", 0.55, 0.45),
	}}
	p, err := NewSnapshotProvider(&ProviderConfig{Source: src, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	got, err := p.Markets(context.Background(), []string{"won", "live", "gone"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got["won"].Resolved)
	assert.False(t, got["live"].Resolved)
	assert.InDelta(t, 0.55, got["live"].YesPrice, 1e-9)

	empty, err := p.Markets(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestNewSnapshotProvider_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSnapshotProvider(&ProviderConfig{Source: &fakeSource{}})
	assert.Error(t, err)
	_, err = NewSnapshotProvider(&ProviderConfig{Logger: zaptest.NewLogger(t)})
	assert.Error(t, err)
	_, err = NewSnapshotProvider(&ProviderConfig{Source: &fakeSource{}, MarketLimit: -1, Logger: zaptest.NewLogger(t)})
	assert.Error(t, err)
}

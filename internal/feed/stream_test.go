package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSubscriber struct {
	mu         sync.Mutex
	subscribed []string
	ch         chan types.StreamMessage
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{ch: make(chan types.StreamMessage, 16)}
}

func (f *fakeSubscriber) Subscribe(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, ids...)
	return nil
}

func (f *fakeSubscriber) Messages() <-chan types.StreamMessage {
	return f.ch
}

func newTestStream(t *testing.T, sub *fakeSubscriber) *PriceStream {
	t.Helper()
	s, err := NewPriceStream(&StreamConfig{
		Source: sub,
		Cache:  newTestCache(t),
		MaxAge: time.Minute,
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return s
}

func TestPriceStream_StoresLatestPrice(t *testing.T) {
	t.Parallel()

	sub := newFakeSubscriber()
	s := newTestStream(t, sub)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	sub.ch <- types.StreamMessage{
		EventType: "book",
		AssetID:   "tok-yes",
		Bids:      []types.PriceLevel{{Price: "0.58", Size: "10"}},
		Asks:      []types.PriceLevel{{Price: "0.62", Size: "10"}},
	}
	sub.ch <- types.StreamMessage{EventType: "last_trade_price", AssetID: "tok-no", Price: "0.41"}
	sub.ch <- types.StreamMessage{EventType: "book", AssetID: "tok-empty"}
	close(sub.ch)
	<-done

	s.cache.Wait()

	p, ok := s.Price("tok-yes")
	require.True(t, ok)
	assert.InDelta(t, 0.60, p, 1e-9)

	p, ok = s.Price("tok-no")
	require.True(t, ok)
	assert.InDelta(t, 0.41, p, 1e-9)

	_, ok = s.Price("tok-empty")
	assert.False(t, ok)
	_, ok = s.Price("")
	assert.False(t, ok)
}

func TestPriceStream_Overlay(t *testing.T) {
	t.Parallel()

	s := newTestStream(t, newFakeSubscriber())
	s.apply(&types.StreamMessage{AssetID: "y", Price: "0.70"})
	s.cache.Wait()

	live := &market.Market{ID: "m", TokenIDYes: "y", TokenIDNo: "n", YesPrice: 0.5, NoPrice: 0.5}
	assert.True(t, s.Overlay(live))
	assert.InDelta(t, 0.70, live.YesPrice, 1e-9)
	assert.InDelta(t, 0.50, live.NoPrice, 1e-9, "no streamed price for the NO token")

	settled := &market.Market{ID: "s", TokenIDYes: "y", Closed: true, YesPrice: 1}
	assert.False(t, s.Overlay(settled))
	assert.InDelta(t, 1.0, settled.YesPrice, 1e-9)
}

func TestPriceStream_Track(t *testing.T) {
	t.Parallel()

	sub := newFakeSubscriber()
	s := newTestStream(t, sub)

	require.NoError(t, s.Track([]*market.Market{
		{ID: "a", TokenIDYes: "a-y", TokenIDNo: "a-n"},
		{ID: "b", TokenIDYes: "b-y"},
		{ID: "c"},
	}))
	assert.Equal(t, []string{"a-y", "a-n", "b-y"}, sub.subscribed)
}

func TestPriceStream_StopsOnCancel(t *testing.T) {
	t.Parallel()

	s := newTestStream(t, newFakeSubscriber())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestNewPriceStream_Validation(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	_, err := NewPriceStream(&StreamConfig{Source: newFakeSubscriber(), Cache: newTestCache(t)})
	assert.Error(t, err)
	_, err = NewPriceStream(&StreamConfig{Cache: newTestCache(t), Logger: logger})
	assert.Error(t, err)
	_, err = NewPriceStream(&StreamConfig{Source: newFakeSubscriber(), Logger: logger})
	assert.Error(t, err)
}

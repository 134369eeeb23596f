package detector

import (
	"context"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
)

//nolint:gochecknoglobals // shared test clock
var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testEnv() *Env {
	return &Env{Thresholds: DefaultThresholds(), Lexicon: DefaultLexicon()}
}

func mkMarket(id, question string, yes, no float64) *market.Market {
	return &market.Market{
		ID:         id,
		Platform:   market.PlatformPolymarket,
		Question:   question,
		YesPrice:   yes,
		NoPrice:    no,
		IsActive:   true,
		TokenIDYes: id + "-yes",
		TokenIDNo:  id + "-no",
	}
}

func snapshotOf(markets ...*market.Market) *market.Snapshot {
	return market.NewSnapshot(testNow, markets, nil, nil)
}

type fakeNews struct {
	items []NewsItem
	err   error
	calls int
}

func (f *fakeNews) Search(_ context.Context, _ []string, _ time.Duration) ([]NewsItem, error) {
	f.calls++
	return f.items, f.err
}

type fakeWhales struct {
	txs map[string][]Transaction
	err error
}

func (f *fakeWhales) RecentTransactions(_ context.Context, marketID string, _ time.Duration) ([]Transaction, error) {
	return f.txs[marketID], f.err
}

type fakeQuotes struct {
	match *market.Market
	score float64
	err   error
}

func (f *fakeQuotes) MatchingMarket(_ context.Context, _ string) (*market.Market, float64, error) {
	return f.match, f.score, f.err
}

type fakeCalendar struct {
	events []*market.Event
}

func (f *fakeCalendar) RelatedEvents(_ context.Context, _ string, _ time.Duration) ([]*market.Event, error) {
	return f.events, nil
}

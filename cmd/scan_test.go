package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/FewZ2372/polymarket-bot/internal/market"
	"github.com/FewZ2372/polymarket-bot/internal/opportunity"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRanked() []*opportunity.Opportunity {
	m := &market.Market{ID: "m1", Question: "Will it rain in Paris?", YesPrice: 0.52, NoPrice: 0.45}
	o := opportunity.New(opportunity.YesNoMismatch, opportunity.BuyBoth, 3, 99, time.Time{}).
		OnMarket(m).
		WithEvidence(opportunity.MismatchEvidence{YesPrice: 0.52, NoPrice: 0.45, PriceSum: 0.97})
	o.Score = 0.71
	return []*opportunity.Opportunity{o}
}

func TestWriteOpportunitiesTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeOpportunitiesTable(&buf, sampleRanked()))

	out := buf.String()
	assert.Contains(t, out, "YES_NO_MISMATCH")
	assert.Contains(t, out, "BUY_BOTH")
	assert.Contains(t, out, "3.00%")
	assert.Contains(t, out, "Will it rain in Paris?")
	assert.Contains(t, out, "1 opportunities")

	buf.Reset()
	require.NoError(t, writeOpportunitiesTable(&buf, nil))
	assert.Equal(t, "No opportunities found.\n", buf.String())
}

func TestWriteOpportunitiesJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeOpportunitiesJSON(&buf, sampleRanked()))

	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1), rows[0]["rank"])
	assert.Equal(t, "YES_NO_MISMATCH", rows[0]["type"])
	assert.InDelta(t, 1.97, rows[0]["expected_value"], 1e-9)

	evidence, ok := rows[0]["evidence"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 0.97, evidence["price_sum"], 1e-9)
}

func TestTruncateQuestion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short-unchanged", in: "abc", n: 10, want: "abc"},
		{name: "exact-length", in: "abcdefghij", n: 10, want: "abcdefghij"},
		{name: "long-truncated", in: "abcdefghijk", n: 10, want: "abcdefg..."},
		{name: "multibyte-safe", in: "¿Ganará España la final?", n: 10, want: "¿Ganará..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, truncateQuestion(tt.in, tt.n))
		})
	}
}

package types

import (
	"strconv"

	json "github.com/goccy/go-json"
)

// StreamMessage is a single event from the CLOB market websocket channel.
// Only the fields needed for price tracking are decoded.
type StreamMessage struct {
	EventType string       `json:"event_type"` // "book", "price_change", "last_trade_price"
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Price     string       `json:"price,omitempty"`
	Timestamp int64        `json:"-"`
	Bids      []PriceLevel `json:"bids,omitempty"`
	Asks      []PriceLevel `json:"asks,omitempty"`
}

// UnmarshalJSON handles the string-encoded timestamp.
func (m *StreamMessage) UnmarshalJSON(data []byte) error {
	type Alias StreamMessage
	aux := &struct {
		TimestampStr string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.TimestampStr != "" {
		timestamp, err := strconv.ParseInt(aux.TimestampStr, 10, 64)
		if err != nil {
			return err
		}
		m.Timestamp = timestamp
	}

	return nil
}

// PriceLevel represents a single price level in the orderbook.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// MidPrice returns the midpoint of the best bid and ask, or the trade price for
// last_trade_price events. ok is false when the message carries no usable price.
func (m *StreamMessage) MidPrice() (price float64, ok bool) {
	if m.Price != "" {
		p, err := strconv.ParseFloat(m.Price, 64)
		if err == nil && p > 0 && p < 1 {
			return p, true
		}
	}

	bid, bidOK := bestLevel(m.Bids, true)
	ask, askOK := bestLevel(m.Asks, false)
	switch {
	case bidOK && askOK:
		return (bid + ask) / 2, true
	case bidOK:
		return bid, true
	case askOK:
		return ask, true
	}
	return 0, false
}

func bestLevel(levels []PriceLevel, highest bool) (best float64, ok bool) {
	for _, level := range levels {
		p, err := strconv.ParseFloat(level.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		if !ok || (highest && p > best) || (!highest && p < best) {
			best = p
			ok = true
		}
	}
	return best, ok
}

// SubscriptionMessage subscribes to market-channel updates. The first message on a connection
// carries Type "market"; later additions carry Operation "subscribe".
type SubscriptionMessage struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type,omitempty"`
	Operation string   `json:"operation,omitempty"`
}

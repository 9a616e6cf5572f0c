package kraken_ws

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/core/market"
	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

// wsMessage is the v2 envelope. Channel messages carry channel/type/data,
// method acknowledgements carry method/success/error.
type wsMessage struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`

	Method  string `json:"method"`
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

type bookData struct {
	Symbol    string      `json:"symbol"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
}

type wireLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// BookMessage is one symbol's snapshot or incremental update.
type BookMessage struct {
	Symbol   string
	Snapshot bool
	Asks     []market.Level
	Bids     []market.Level
	At       time.Time
}

// ParseMessage extracts book messages from a raw frame. Heartbeats, status
// and acknowledgements yield nothing.
func ParseMessage(data []byte) []BookMessage {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		telemetry.Warnf("kraken_ws: parse error: %v", err)
		return nil
	}

	if msg.Method != "" {
		if msg.Success != nil && !*msg.Success {
			telemetry.Warnf("kraken_ws: %s failed: %s", msg.Method, msg.Error)
		}
		return nil
	}
	if msg.Channel != "book" {
		return nil
	}

	var books []bookData
	if err := json.Unmarshal(msg.Data, &books); err != nil {
		telemetry.Warnf("kraken_ws: book data: %v", err)
		return nil
	}

	now := time.Now().UTC()
	out := make([]BookMessage, 0, len(books))
	for _, b := range books {
		at := now
		if b.Timestamp != "" {
			if ts, err := time.Parse(time.RFC3339Nano, b.Timestamp); err == nil {
				at = ts
			}
		}
		out = append(out, BookMessage{
			Symbol:   b.Symbol,
			Snapshot: msg.Type == "snapshot",
			Asks:     toLevels(b.Asks, at),
			Bids:     toLevels(b.Bids, at),
			At:       at,
		})
	}
	return out
}

func toLevels(ws []wireLevel, at time.Time) []market.Level {
	out := make([]market.Level, len(ws))
	for i, w := range ws {
		out[i] = market.Level{Price: w.Price, Volume: w.Qty}
	}
	return stamp(out, at)
}

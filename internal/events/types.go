package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/core/market"
)

// OrderPlaced is published each time the engine submits a limit order,
// including the replacement submitted after a reprice.
type OrderPlaced struct {
	TxID   string          `json:"txid"`
	Side   market.Side     `json:"side"`
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
	Ladder int             `json:"ladder"` // 0 for the first placement
}

// OrderHeld is published when the resting price is still where the
// selector wants it.
type OrderHeld struct {
	TxID      string          `json:"txid"`
	Price     decimal.Decimal `json:"price"`
	Remaining decimal.Decimal `json:"remaining"`
}

// OrderRepriced is published after a cancel succeeded and before the
// remainder is re-submitted at NewPrice.
type OrderRepriced struct {
	CanceledTxID string          `json:"canceled_txid"`
	OldPrice     decimal.Decimal `json:"old_price"`
	NewPrice     decimal.Decimal `json:"new_price"`
	Remaining    decimal.Decimal `json:"remaining"`
}

// CancelRace is published when a cancel was rejected by the venue,
// usually because the order filled or closed in the meantime.
type CancelRace struct {
	TxID    string `json:"txid"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error"`
}

// OrderDone is the terminal event of one engine run.
type OrderDone struct {
	TxID           string             `json:"txid"`
	Side           market.Side        `json:"side"`
	Status         market.OrderStatus `json:"status"`
	Volume         decimal.Decimal    `json:"volume"`
	VolumeExecuted decimal.Decimal    `json:"volume_executed"`
	Reprices       int                `json:"reprices"`
	Elapsed        time.Duration      `json:"elapsed"`
}

// BookUpdate is published by the WS feed after each applied message.
type BookUpdate struct {
	Book     market.Book `json:"book"`
	Snapshot bool        `json:"snapshot"`
}

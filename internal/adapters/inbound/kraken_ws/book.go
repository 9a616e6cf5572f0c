package kraken_ws

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/core/market"
)

// LocalBook mirrors one symbol's book from snapshot and update messages.
// Not safe for concurrent use; the client owns it from its read goroutine.
type LocalBook struct {
	depth int
	asks  []market.Level // ascending
	bids  []market.Level // descending
}

func NewLocalBook(depth int) *LocalBook {
	return &LocalBook{depth: depth}
}

// Reset replaces both sides.
func (b *LocalBook) Reset(asks, bids []market.Level) {
	b.asks = b.asks[:0]
	b.bids = b.bids[:0]
	b.Apply(asks, bids)
}

// Apply merges changed levels. A zero quantity removes the price level.
func (b *LocalBook) Apply(asks, bids []market.Level) {
	for _, l := range asks {
		b.asks = upsert(b.asks, l, ascending)
	}
	for _, l := range bids {
		b.bids = upsert(b.bids, l, descending)
	}
	if b.depth > 0 {
		if len(b.asks) > b.depth {
			b.asks = b.asks[:b.depth]
		}
		if len(b.bids) > b.depth {
			b.bids = b.bids[:b.depth]
		}
	}
}

// Book returns a copy that stays valid after further updates.
func (b *LocalBook) Book() market.Book {
	return market.Book{Asks: slices.Clone(b.asks), Bids: slices.Clone(b.bids)}
}

func ascending(a, b decimal.Decimal) int  { return a.Cmp(b) }
func descending(a, b decimal.Decimal) int { return b.Cmp(a) }

func upsert(side []market.Level, l market.Level, cmp func(a, b decimal.Decimal) int) []market.Level {
	i, found := slices.BinarySearchFunc(side, l.Price, func(e market.Level, p decimal.Decimal) int {
		return cmp(e.Price, p)
	})
	switch {
	case l.Volume.IsZero() && found:
		return slices.Delete(side, i, i+1)
	case l.Volume.IsZero():
		return side
	case found:
		side[i] = l
		return side
	}
	return slices.Insert(side, i, l)
}

func stamp(levels []market.Level, at time.Time) []market.Level {
	for i := range levels {
		levels[i].ObservedAt = at
	}
	return levels
}

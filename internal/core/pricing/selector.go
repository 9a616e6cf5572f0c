package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/core/market"
)

var ErrInsufficientBookDepth = errors.New("insufficient order book depth")

var (
	// DefaultAllowAbove is the share of our own volume we accept queued
	// ahead of us at better prices.
	DefaultAllowAbove = decimal.RequireFromString("0.15")
	DefaultTick       = decimal.RequireFromString("0.00001")
)

// Selector picks where to rest an order so that only a bounded amount of
// foreign volume sits ahead of it.
type Selector struct {
	AllowAbove decimal.Decimal
	Tick       decimal.Decimal
}

func NewSelector() Selector {
	return Selector{AllowAbove: DefaultAllowAbove, Tick: DefaultTick}
}

// Selection is the outcome of one walk over a book side.
type Selection struct {
	Price decimal.Decimal
	// VolumeTolerated is the foreign volume that will queue ahead of us.
	VolumeTolerated decimal.Decimal
	// Index is the level the walk stopped at.
	Index int
}

// Select walks levels best first, spending a budget of desired*AllowAbove on
// the volume of each level. It stops at the first level holding more than
// what is left of the budget and returns that level's price moved one tick
// toward the front of the queue.
//
// When current is set, desired is subtracted from the level at exactly that
// price so our own resting order is not counted as competition.
func (s Selector) Select(levels []market.Level, side market.Side, current decimal.NullDecimal, desired decimal.Decimal) (Selection, error) {
	if len(levels) == 0 {
		return Selection{}, fmt.Errorf("%w: empty %s side", ErrInsufficientBookDepth, side)
	}

	allowed := desired.Mul(s.AllowAbove)
	budget := allowed

	for i, lvl := range levels {
		foreign := lvl.Volume
		if current.Valid && lvl.Price.Equal(current.Decimal) {
			foreign = foreign.Sub(desired)
		}
		if foreign.GreaterThan(budget) {
			return Selection{
				Price:           s.improve(lvl.Price, side),
				VolumeTolerated: allowed.Sub(budget),
				Index:           i,
			}, nil
		}
		budget = budget.Sub(foreign)
	}

	return Selection{}, fmt.Errorf("%w: %d %s levels hold no more than %s", ErrInsufficientBookDepth, len(levels), side, allowed)
}

// SelectFromBook runs Select against the side of book a resting order of
// the given side competes with.
func (s Selector) SelectFromBook(book market.Book, side market.Side, current decimal.NullDecimal, desired decimal.Decimal) (Selection, error) {
	return s.Select(book.Side(side), side, current, desired)
}

func (s Selector) improve(price decimal.Decimal, side market.Side) decimal.Decimal {
	if side == market.Buy {
		return price.Add(s.Tick)
	}
	return price.Sub(s.Tick)
}

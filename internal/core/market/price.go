package market

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceKind says how an OrderPrice amount relates to the market.
type PriceKind int

const (
	Absolute PriceKind = iota
	Add
	AddPercentage
	Subtract
	SubtractPercentage
	AddOrSubtract
	AddOrSubtractPercentage
)

// OrderPrice is a price specification as accepted by AddOrder: either an
// absolute price or an offset (optionally in percent) from the market.
type OrderPrice struct {
	Kind   PriceKind
	Amount decimal.Decimal
}

func AbsolutePrice(p decimal.Decimal) OrderPrice { return OrderPrice{Kind: Absolute, Amount: p} }

func (p OrderPrice) String() string {
	v := p.Amount.String()
	switch p.Kind {
	case Absolute:
		return v
	case Add:
		return "+" + v
	case AddPercentage:
		return "+" + v + "%"
	case Subtract:
		return "-" + v
	case SubtractPercentage:
		return "-" + v + "%"
	case AddOrSubtract:
		return "#" + v
	case AddOrSubtractPercentage:
		return "#" + v + "%"
	}
	return fmt.Sprintf("OrderPrice(%d)", int(p.Kind))
}

// ParseOrderPrice reads the venue notation: "123.4" is absolute, "+5" and
// "-5" are offsets, "#5" is an offset in either direction, and a trailing
// "%" turns an offset into a percentage.
func ParseOrderPrice(s string) (OrderPrice, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return OrderPrice{}, fmt.Errorf("%w: empty price", ErrInvalidOrder)
	}

	kind := Absolute
	switch s[0] {
	case '+':
		kind = Add
	case '-':
		kind = Subtract
	case '#':
		kind = AddOrSubtract
	}

	body := s
	if kind != Absolute {
		body = s[1:]
	}
	if strings.HasSuffix(body, "%") {
		if kind == Absolute {
			return OrderPrice{}, fmt.Errorf("%w: percentages can only be relative: %q", ErrInvalidOrder, s)
		}
		// Each relative kind is immediately followed by its percentage kind.
		kind++
		body = strings.TrimSuffix(body, "%")
	}

	amount, err := decimal.NewFromString(body)
	if err != nil {
		return OrderPrice{}, fmt.Errorf("%w: could not parse %q as a number", ErrInvalidOrder, body)
	}
	return OrderPrice{Kind: kind, Amount: amount}, nil
}

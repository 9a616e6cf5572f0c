package market

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrInvalidOrder = errors.New("invalid order request")

// OrderRequest describes a new order. Optional prices are nil when unset.
type OrderRequest struct {
	Pair     string
	Side     Side
	Type     OrderType
	Price    *OrderPrice
	Price2   *OrderPrice
	Volume   decimal.Decimal
	Leverage string

	VolumeInQuoteCurrency    bool
	PreferFeeInBaseCurrency  bool
	PreferFeeInQuoteCurrency bool
	NoMarketPriceProtection  bool
	PostOnly                 bool

	StartTime                 time.Time
	RelativeStartTimeSeconds  int
	ExpireTime                time.Time
	RelativeExpireTimeSeconds int
	UserReferenceID           int
	ValidateOnly              bool

	CloseType   OrderType
	ClosePrice  *OrderPrice
	ClosePrice2 *OrderPrice
}

// LimitOrder is the request shape the execution engine submits.
func LimitOrder(side Side, pair string, volume, price decimal.Decimal) OrderRequest {
	p := AbsolutePrice(price)
	return OrderRequest{
		Pair:   pair,
		Side:   side,
		Type:   Limit,
		Price:  &p,
		Volume: volume,
	}
}

func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.Pair) == "" {
		return fmt.Errorf("%w: must specify a pair", ErrInvalidOrder)
	}
	if r.Side != Buy && r.Side != Sell {
		return fmt.Errorf("%w: must specify order side", ErrInvalidOrder)
	}
	if r.Type == "" {
		return fmt.Errorf("%w: must specify order type", ErrInvalidOrder)
	}
	if !r.StartTime.IsZero() && r.RelativeStartTimeSeconds != 0 {
		return fmt.Errorf("%w: only one of StartTime and RelativeStartTimeSeconds may be set", ErrInvalidOrder)
	}
	if !r.ExpireTime.IsZero() && r.RelativeExpireTimeSeconds != 0 {
		return fmt.Errorf("%w: only one of ExpireTime and RelativeExpireTimeSeconds may be set", ErrInvalidOrder)
	}
	return nil
}

// Flags returns the oflags list in the order the venue documents them.
func (r OrderRequest) Flags() []string {
	var flags []string
	if r.VolumeInQuoteCurrency {
		flags = append(flags, "viqc")
	}
	if r.PreferFeeInBaseCurrency {
		flags = append(flags, "fcib")
	}
	if r.PreferFeeInQuoteCurrency {
		flags = append(flags, "fciq")
	}
	if r.NoMarketPriceProtection {
		flags = append(flags, "nompp")
	}
	if r.PostOnly {
		flags = append(flags, "post")
	}
	return flags
}

type CloseTimeType string

const (
	CloseTimeOpen  CloseTimeType = "open"
	CloseTimeClose CloseTimeType = "close"
	CloseTimeBoth  CloseTimeType = "both"
)

type ClosedOrdersQuery struct {
	IncludeTrades      bool
	UserReferenceID    int
	StartTime          time.Time
	StartTransactionID string
	EndTime            time.Time
	EndTransactionID   string
	Offset             int
	CloseTime          CloseTimeType
}

func (q ClosedOrdersQuery) Validate() error {
	if !q.StartTime.IsZero() && q.StartTransactionID != "" {
		return fmt.Errorf("%w: only one of StartTime and StartTransactionID can be specified", ErrInvalidOrder)
	}
	if !q.EndTime.IsZero() && q.EndTransactionID != "" {
		return fmt.Errorf("%w: only one of EndTime and EndTransactionID can be specified", ErrInvalidOrder)
	}
	return nil
}

// LedgerQuery restricts a ledger listing. Empty fields mean unrestricted.
type LedgerQuery struct {
	Assets        []string
	Type          LedgerType
	StartTime     time.Time
	EndTime       time.Time
	StartLedgerID string
	EndLedgerID   string
	Offset        int
}

func (q LedgerQuery) Validate() error {
	if !q.StartTime.IsZero() && q.StartLedgerID != "" {
		return fmt.Errorf("%w: only one of StartTime and StartLedgerID can be set", ErrInvalidOrder)
	}
	if !q.EndTime.IsZero() && q.EndLedgerID != "" {
		return fmt.Errorf("%w: only one of EndTime and EndLedgerID can be set", ErrInvalidOrder)
	}
	return nil
}

// JoinIDs comma-joins ids for list parameters. It rejects an empty list and
// any id that itself contains a comma.
func JoinIDs(ids []string, what string) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: must specify at least one %s", ErrInvalidOrder, what)
	}
	for _, id := range ids {
		if strings.Contains(id, ",") {
			return "", fmt.Errorf("%w: %s %q contains ','", ErrInvalidOrder, what, id)
		}
	}
	return strings.Join(ids, ","), nil
}

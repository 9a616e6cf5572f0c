package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case Buy, Sell:
		return Side(s), nil
	}
	return "", fmt.Errorf("%q does not represent an order side", s)
}

type OrderType string

const (
	Market              OrderType = "market"
	Limit               OrderType = "limit"
	StopLoss            OrderType = "stop-loss"
	TakeProfit          OrderType = "take-profit"
	StopLossProfit      OrderType = "stop-loss-profit"
	StopLossProfitLimit OrderType = "stop-loss-profit-limit"
	StopLossLimit       OrderType = "stop-loss-limit"
	TakeProfitLimit     OrderType = "take-profit-limit"
	TrailingStop        OrderType = "trailing-stop"
	TrailingStopLimit   OrderType = "trailing-stop-limit"
	StopLossAndLimit    OrderType = "stop-loss-and-limit"
	SettlePosition      OrderType = "settle-position"
)

var knownOrderTypes = map[OrderType]bool{
	Market: true, Limit: true, StopLoss: true, TakeProfit: true,
	StopLossProfit: true, StopLossProfitLimit: true, StopLossLimit: true,
	TakeProfitLimit: true, TrailingStop: true, TrailingStopLimit: true,
	StopLossAndLimit: true, SettlePosition: true,
}

func ParseOrderType(s string) (OrderType, error) {
	if knownOrderTypes[OrderType(s)] {
		return OrderType(s), nil
	}
	return "", fmt.Errorf("%q does not represent an order type", s)
}

type OrderStatus string

const (
	StatusPending  OrderStatus = "pending"
	StatusOpen     OrderStatus = "open"
	StatusClosed   OrderStatus = "closed"
	StatusCanceled OrderStatus = "canceled"
	StatusExpired  OrderStatus = "expired"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case StatusPending, StatusOpen, StatusClosed, StatusCanceled, StatusExpired:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("%q does not represent an order status", s)
}

// Level is one aggregated price point on a book side.
type Level struct {
	Price      decimal.Decimal
	Volume     decimal.Decimal
	ObservedAt time.Time
}

func (l Level) String() string {
	return fmt.Sprintf("%s @ %s", l.Volume, l.Price)
}

// Book holds both sides sorted best first: asks ascending, bids descending.
type Book struct {
	Asks []Level
	Bids []Level
}

// Side returns the levels a resting order of the given side competes with.
func (b Book) Side(side Side) []Level {
	if side == Buy {
		return b.Bids
	}
	return b.Asks
}

func (b Book) String() string {
	return fmt.Sprintf("%d asks, %d bids", len(b.Asks), len(b.Bids))
}

// OrderInfo is a point-in-time view of one order on the venue.
type OrderInfo struct {
	TransactionID   string
	ReferralID      string
	UserReference   int
	Status          OrderStatus
	OpenTime        time.Time
	StartTime       time.Time
	ExpireTime      time.Time
	CloseTime       time.Time
	CloseReason     string
	Pair            string
	Side            Side
	Type            OrderType
	Price           decimal.Decimal
	Price2          decimal.Decimal
	Leverage        string
	Description     string
	CloseDescriptor string
	Volume          decimal.Decimal
	VolumeExecuted  decimal.Decimal
	Cost            decimal.Decimal
	Fee             decimal.Decimal
	AveragePrice    decimal.Decimal
	StopPrice       decimal.Decimal
	LimitPrice      decimal.Decimal
	Misc            []string
	Flags           []string
	TradeIDs        []string
}

// Remaining is the volume still waiting to execute.
func (o OrderInfo) Remaining() decimal.Decimal {
	return o.Volume.Sub(o.VolumeExecuted)
}

func (o OrderInfo) String() string { return o.Description }

type AssetInfo struct {
	Name            string
	AltName         string
	Class           string
	Decimals        int
	DisplayDecimals int
}

func (a AssetInfo) String() string {
	if a.Name == a.AltName {
		return fmt.Sprintf("%s (%s)", a.Name, a.Class)
	}
	return fmt.Sprintf("%s or %s (%s)", a.Name, a.AltName, a.Class)
}

type LedgerType string

const (
	LedgerDeposit    LedgerType = "deposit"
	LedgerWithdrawal LedgerType = "withdrawal"
	LedgerTrade      LedgerType = "trade"
	LedgerMargin     LedgerType = "margin"
)

type LedgerEntry struct {
	LedgerID   string
	RefID      string
	Timestamp  time.Time
	Type       LedgerType
	AssetClass string
	Asset      string
	Amount     decimal.Decimal
	Fee        decimal.Decimal
	Balance    decimal.Decimal
}

func (e LedgerEntry) String() string {
	if !e.Fee.IsZero() {
		return fmt.Sprintf("[%s] %s %s of %s (fee: %s)", e.Timestamp.Format(time.RFC3339), e.Type, e.Amount, e.Asset, e.Fee)
	}
	return fmt.Sprintf("[%s] %s %s of %s (no fee)", e.Timestamp.Format(time.RFC3339), e.Type, e.Amount, e.Asset)
}

// FromUnix converts Kraken's fractional unix-second timestamps.
// Zero maps to the zero time.
func FromUnix(sec float64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	whole := int64(sec)
	nanos := int64((sec - float64(whole)) * 1e9)
	return time.Unix(whole, nanos).UTC()
}

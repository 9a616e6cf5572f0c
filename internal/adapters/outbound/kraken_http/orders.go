package kraken_http

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jakobbotsch/krakengo/internal/core/market"
)

// Gate costs per private endpoint: (private units, order units). Order
// mutations draw on both gates.
const (
	costAddOrder     = 1
	orderCostAdd     = 1
	costCancelOrder  = 1
	orderCostCancel  = 1
	costOpenOrders   = 1
	costClosedOrders = 1
	costQueryOrders  = 1
)

// AddOrderResult is the venue's acknowledgement of a new order.
type AddOrderResult struct {
	Description      string
	CloseDescription string
	TransactionIDs   []string
}

// CancelResult reports how many orders a cancel touched and whether any of
// them is still pending cancellation.
type CancelResult struct {
	Count   int  `json:"count"`
	Pending bool `json:"pending"`
}

// AddOrder validates and submits req.
func (c *Client) AddOrder(ctx context.Context, req market.OrderRequest) (AddOrderResult, error) {
	if err := req.Validate(); err != nil {
		return AddOrderResult{}, err
	}

	p := NewParams().
		Set("pair", req.Pair).
		Set("type", string(req.Side)).
		Set("ordertype", string(req.Type))
	if req.Price != nil {
		p.Set("price", req.Price.String())
	}
	if req.Price2 != nil {
		p.Set("price2", req.Price2.String())
	}
	p.Set("volume", req.Volume.String())
	if req.Leverage != "" {
		p.Set("leverage", req.Leverage)
	}
	if flags := req.Flags(); len(flags) > 0 {
		p.Set("oflags", strings.Join(flags, ","))
	}
	if v := formatOrderTime(req.StartTime, req.RelativeStartTimeSeconds); v != "" {
		p.Set("starttm", v)
	}
	if v := formatOrderTime(req.ExpireTime, req.RelativeExpireTimeSeconds); v != "" {
		p.Set("expiretm", v)
	}
	if req.UserReferenceID != 0 {
		p.Set("userref", strconv.Itoa(req.UserReferenceID))
	}
	if req.ValidateOnly {
		p.Set("validate", "true")
	}
	if req.CloseType != "" {
		p.Set("close[ordertype]", string(req.CloseType))
		if req.ClosePrice != nil {
			p.Set("close[price]", req.ClosePrice.String())
		}
		if req.ClosePrice2 != nil {
			p.Set("close[price2]", req.ClosePrice2.String())
		}
	}

	var res struct {
		Descr struct {
			Order string `json:"order"`
			Close string `json:"close"`
		} `json:"descr"`
		TxID []string `json:"txid"`
	}
	if err := c.PrivateCall(ctx, "AddOrder", costAddOrder, orderCostAdd, p, &res); err != nil {
		return AddOrderResult{}, err
	}
	return AddOrderResult{
		Description:      res.Descr.Order,
		CloseDescription: res.Descr.Close,
		TransactionIDs:   res.TxID,
	}, nil
}

func formatOrderTime(abs time.Time, relSeconds int) string {
	switch {
	case !abs.IsZero():
		return strconv.FormatInt(abs.Unix(), 10)
	case relSeconds != 0:
		return "+" + strconv.Itoa(relSeconds)
	}
	return ""
}

// CancelOrder cancels one order by transaction id (or user reference).
func (c *Client) CancelOrder(ctx context.Context, txid string) (CancelResult, error) {
	var res CancelResult
	p := NewParams().Set("txid", txid)
	if err := c.PrivateCall(ctx, "CancelOrder", costCancelOrder, orderCostCancel, p, &res); err != nil {
		return CancelResult{}, err
	}
	return res, nil
}

// OpenOrders lists resting orders, optionally restricted to userRef.
func (c *Client) OpenOrders(ctx context.Context, includeTrades bool, userRef int) (map[string]market.OrderInfo, error) {
	p := NewParams()
	if includeTrades {
		p.Set("trades", "true")
	}
	if userRef != 0 {
		p.Set("userref", strconv.Itoa(userRef))
	}

	var res struct {
		Open map[string]orderWire `json:"open"`
	}
	if err := c.PrivateCall(ctx, "OpenOrders", costOpenOrders, 0, p, &res); err != nil {
		return nil, err
	}
	return decodeOrders(res.Open)
}

// ClosedOrders returns one page of closed orders plus the total count.
func (c *Client) ClosedOrders(ctx context.Context, q market.ClosedOrdersQuery) (int, map[string]market.OrderInfo, error) {
	if err := q.Validate(); err != nil {
		return 0, nil, err
	}

	p := NewParams()
	if q.IncludeTrades {
		p.Set("trades", "true")
	}
	if q.UserReferenceID != 0 {
		p.Set("userref", strconv.Itoa(q.UserReferenceID))
	}
	switch {
	case !q.StartTime.IsZero():
		p.Set("start", strconv.FormatInt(q.StartTime.Unix(), 10))
	case q.StartTransactionID != "":
		p.Set("start", q.StartTransactionID)
	}
	switch {
	case !q.EndTime.IsZero():
		p.Set("end", strconv.FormatInt(q.EndTime.Unix(), 10))
	case q.EndTransactionID != "":
		p.Set("end", q.EndTransactionID)
	}
	if q.Offset != 0 {
		p.Set("ofs", strconv.Itoa(q.Offset))
	}
	if q.CloseTime != "" {
		p.Set("closetime", string(q.CloseTime))
	}

	var res struct {
		Closed map[string]orderWire `json:"closed"`
		Count  int                  `json:"count"`
	}
	if err := c.PrivateCall(ctx, "ClosedOrders", costClosedOrders, 0, p, &res); err != nil {
		return 0, nil, err
	}
	orders, err := decodeOrders(res.Closed)
	if err != nil {
		return 0, nil, err
	}
	return res.Count, orders, nil
}

// QueryOrders fetches the given orders by transaction id.
func (c *Client) QueryOrders(ctx context.Context, txids []string, includeTrades bool, userRef int) (map[string]market.OrderInfo, error) {
	list, err := market.JoinIDs(txids, "transaction id")
	if err != nil {
		return nil, err
	}

	p := NewParams()
	if includeTrades {
		p.Set("trades", "true")
	}
	if userRef != 0 {
		p.Set("userref", strconv.Itoa(userRef))
	}
	p.Set("txid", list)

	var res map[string]orderWire
	if err := c.PrivateCall(ctx, "QueryOrders", costQueryOrders, 0, p, &res); err != nil {
		return nil, err
	}
	return decodeOrders(res)
}

// QueryOrder fetches a single order.
func (c *Client) QueryOrder(ctx context.Context, txid string) (market.OrderInfo, error) {
	orders, err := c.QueryOrders(ctx, []string{txid}, false, 0)
	if err != nil {
		return market.OrderInfo{}, err
	}
	o, ok := orders[txid]
	if !ok {
		return market.OrderInfo{}, &TransportError{Op: "decode result", Endpoint: "QueryOrders", Err: fmt.Errorf("order %s missing from result", txid)}
	}
	return o, nil
}

type orderWire struct {
	RefID    *string `json:"refid"`
	UserRef  *int    `json:"userref"`
	Status   string  `json:"status"`
	OpenTm   float64 `json:"opentm"`
	StartTm  float64 `json:"starttm"`
	ExpireTm float64 `json:"expiretm"`
	CloseTm  float64 `json:"closetm"`
	Reason   string  `json:"reason"`
	Descr    struct {
		Pair      string `json:"pair"`
		Type      string `json:"type"`
		OrderType string `json:"ordertype"`
		Price     string `json:"price"`
		Price2    string `json:"price2"`
		Leverage  string `json:"leverage"`
		Order     string `json:"order"`
		Close     string `json:"close"`
	} `json:"descr"`
	Vol        string   `json:"vol"`
	VolExec    string   `json:"vol_exec"`
	Cost       string   `json:"cost"`
	Fee        string   `json:"fee"`
	Price      string   `json:"price"`
	StopPrice  string   `json:"stopprice"`
	LimitPrice string   `json:"limitprice"`
	Misc       string   `json:"misc"`
	OFlags     string   `json:"oflags"`
	Trades     []string `json:"trades"`
}

func decodeOrders(m map[string]orderWire) (map[string]market.OrderInfo, error) {
	out := make(map[string]market.OrderInfo, len(m))
	for id, w := range m {
		o, err := w.toOrderInfo(id)
		if err != nil {
			return nil, &TransportError{Op: "decode result", Endpoint: "orders", Err: fmt.Errorf("order %s: %w", id, err)}
		}
		out[id] = o
	}
	return out, nil
}

func (w orderWire) toOrderInfo(id string) (market.OrderInfo, error) {
	status, err := market.ParseOrderStatus(w.Status)
	if err != nil {
		return market.OrderInfo{}, err
	}
	side, err := market.ParseSide(w.Descr.Type)
	if err != nil {
		return market.OrderInfo{}, err
	}
	otype, err := market.ParseOrderType(w.Descr.OrderType)
	if err != nil {
		return market.OrderInfo{}, err
	}

	o := market.OrderInfo{
		TransactionID:   id,
		Status:          status,
		OpenTime:        market.FromUnix(w.OpenTm),
		StartTime:       market.FromUnix(w.StartTm),
		ExpireTime:      market.FromUnix(w.ExpireTm),
		CloseTime:       market.FromUnix(w.CloseTm),
		CloseReason:     w.Reason,
		Pair:            w.Descr.Pair,
		Side:            side,
		Type:            otype,
		Price:           decimalOrZero(w.Descr.Price),
		Price2:          decimalOrZero(w.Descr.Price2),
		Leverage:        w.Descr.Leverage,
		Description:     w.Descr.Order,
		CloseDescriptor: w.Descr.Close,
		Volume:          decimalOrZero(w.Vol),
		VolumeExecuted:  decimalOrZero(w.VolExec),
		Cost:            decimalOrZero(w.Cost),
		Fee:             decimalOrZero(w.Fee),
		AveragePrice:    decimalOrZero(w.Price),
		StopPrice:       decimalOrZero(w.StopPrice),
		LimitPrice:      decimalOrZero(w.LimitPrice),
		Misc:            splitList(w.Misc),
		Flags:           splitList(w.OFlags),
		TradeIDs:        w.Trades,
	}
	if w.RefID != nil {
		o.ReferralID = *w.RefID
	}
	if w.UserRef != nil {
		o.UserReference = *w.UserRef
	}
	return o, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

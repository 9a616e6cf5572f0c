package kraken_http

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/core/market"
)

const (
	costBalance      = 1
	costLedgers      = 2
	costQueryLedgers = 2
)

// Balance returns the account balance per asset.
func (c *Client) Balance(ctx context.Context) (map[string]decimal.Decimal, error) {
	var res map[string]string
	if err := c.PrivateCall(ctx, "Balance", costBalance, 0, nil, &res); err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(res))
	for asset, v := range res {
		out[asset] = decimalOrZero(v)
	}
	return out, nil
}

type ledgerWire struct {
	RefID   string  `json:"refid"`
	Time    float64 `json:"time"`
	Type    string  `json:"type"`
	AClass  string  `json:"aclass"`
	Asset   string  `json:"asset"`
	Amount  string  `json:"amount"`
	Fee     string  `json:"fee"`
	Balance string  `json:"balance"`
}

func (w ledgerWire) toEntry(id string) market.LedgerEntry {
	return market.LedgerEntry{
		LedgerID:   id,
		RefID:      w.RefID,
		Timestamp:  market.FromUnix(w.Time),
		Type:       market.LedgerType(w.Type),
		AssetClass: w.AClass,
		Asset:      w.Asset,
		Amount:     decimalOrZero(w.Amount),
		Fee:        decimalOrZero(w.Fee),
		Balance:    decimalOrZero(w.Balance),
	}
}

// Ledgers returns one page of ledger entries plus the total count.
func (c *Client) Ledgers(ctx context.Context, q market.LedgerQuery) (int, []market.LedgerEntry, error) {
	if err := q.Validate(); err != nil {
		return 0, nil, err
	}

	p := NewParams()
	if len(q.Assets) > 0 {
		list, err := market.JoinIDs(q.Assets, "asset")
		if err != nil {
			return 0, nil, err
		}
		p.Set("asset", list)
	}
	if q.Type != "" {
		p.Set("type", string(q.Type))
	}
	switch {
	case !q.StartTime.IsZero():
		p.Set("start", strconv.FormatInt(q.StartTime.Unix(), 10))
	case q.StartLedgerID != "":
		p.Set("start", q.StartLedgerID)
	}
	switch {
	case !q.EndTime.IsZero():
		p.Set("end", strconv.FormatInt(q.EndTime.Unix(), 10))
	case q.EndLedgerID != "":
		p.Set("end", q.EndLedgerID)
	}
	if q.Offset != 0 {
		p.Set("ofs", strconv.Itoa(q.Offset))
	}

	var res struct {
		Ledger map[string]ledgerWire `json:"ledger"`
		Count  int                   `json:"count"`
	}
	if err := c.PrivateCall(ctx, "Ledgers", costLedgers, 0, p, &res); err != nil {
		return 0, nil, err
	}

	entries := make([]market.LedgerEntry, 0, len(res.Ledger))
	for id, w := range res.Ledger {
		entries = append(entries, w.toEntry(id))
	}
	return res.Count, entries, nil
}

// QueryLedgers fetches specific ledger entries. An empty id list returns
// nothing without calling the venue.
func (c *Client) QueryLedgers(ctx context.Context, ids []string) ([]market.LedgerEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	list, err := market.JoinIDs(ids, "ledger id")
	if err != nil {
		return nil, err
	}

	var res map[string]ledgerWire
	if err := c.PrivateCall(ctx, "QueryLedgers", costQueryLedgers, 0, NewParams().Set("id", list), &res); err != nil {
		return nil, err
	}

	entries := make([]market.LedgerEntry, 0, len(res))
	for id, w := range res {
		entries = append(entries, w.toEntry(id))
	}
	return entries, nil
}

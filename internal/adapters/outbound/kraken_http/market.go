package kraken_http

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/core/market"
)

// ServerTime returns the venue clock.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var res struct {
		UnixTime int64  `json:"unixtime"`
		RFC1123  string `json:"rfc1123"`
	}
	if err := c.PublicCall(ctx, "Time", nil, &res); err != nil {
		return time.Time{}, err
	}
	return time.Unix(res.UnixTime, 0).UTC(), nil
}

type assetWire struct {
	AltName         string `json:"altname"`
	Class           string `json:"aclass"`
	Decimals        int    `json:"decimals"`
	DisplayDecimals int    `json:"display_decimals"`
}

// Assets describes the named assets, or every asset when names is empty.
func (c *Client) Assets(ctx context.Context, names ...string) ([]market.AssetInfo, error) {
	var params *Params
	if len(names) > 0 {
		list, err := market.JoinIDs(names, "asset")
		if err != nil {
			return nil, err
		}
		params = NewParams().Set("asset", list)
	}

	var res map[string]assetWire
	if err := c.PublicCall(ctx, "Assets", params, &res); err != nil {
		return nil, err
	}

	out := make([]market.AssetInfo, 0, len(res))
	for name, a := range res {
		out = append(out, market.AssetInfo{
			Name:            name,
			AltName:         a.AltName,
			Class:           a.Class,
			Decimals:        a.Decimals,
			DisplayDecimals: a.DisplayDecimals,
		})
	}
	return out, nil
}

type bookWire struct {
	Asks [][]json.RawMessage `json:"asks"`
	Bids [][]json.RawMessage `json:"bids"`
}

// OrderBook fetches up to count levels per side. Concurrent requests for
// the same pair and depth share one round trip, so callers must treat the
// returned slices as read-only.
//
// The shared fetch is detached from any single caller's cancellation; each
// caller stops waiting when its own ctx ends. The HTTP timeout bounds a
// fetch that every caller has abandoned.
func (c *Client) OrderBook(ctx context.Context, pair string, count int) (market.Book, error) {
	key := pair + "/" + strconv.Itoa(count)
	shared := context.WithoutCancel(ctx)
	ch := c.books.DoChan(key, func() (any, error) {
		return c.fetchOrderBook(shared, pair, count)
	})
	select {
	case <-ctx.Done():
		return market.Book{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return market.Book{}, res.Err
		}
		return res.Val.(market.Book), nil
	}
}

func (c *Client) fetchOrderBook(ctx context.Context, pair string, count int) (market.Book, error) {
	params := NewParams().Set("pair", pair)
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}

	var res map[string]bookWire
	if err := c.PublicCall(ctx, "Depth", params, &res); err != nil {
		return market.Book{}, err
	}
	if len(res) != 1 {
		return market.Book{}, &TransportError{Op: "decode result", Endpoint: "Depth", Err: fmt.Errorf("expected one pair in depth result, got %d", len(res))}
	}

	var raw bookWire
	for _, b := range res {
		raw = b
	}

	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return market.Book{}, &TransportError{Op: "decode result", Endpoint: "Depth", Err: fmt.Errorf("asks: %w", err)}
	}
	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return market.Book{}, &TransportError{Op: "decode result", Endpoint: "Depth", Err: fmt.Errorf("bids: %w", err)}
	}
	return market.Book{Asks: asks, Bids: bids}, nil
}

// parseLevels reads [price, volume, timestamp] triples.
func parseLevels(rows [][]json.RawMessage) ([]market.Level, error) {
	out := make([]market.Level, 0, len(rows))
	for i, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("level %d: expected 3 fields, got %d", i, len(row))
		}
		var lvl market.Level
		if err := json.Unmarshal(row[0], &lvl.Price); err != nil {
			return nil, fmt.Errorf("level %d price: %w", i, err)
		}
		if err := json.Unmarshal(row[1], &lvl.Volume); err != nil {
			return nil, fmt.Errorf("level %d volume: %w", i, err)
		}
		ts, err := parseUnixField(row[2])
		if err != nil {
			return nil, fmt.Errorf("level %d time: %w", i, err)
		}
		lvl.ObservedAt = ts
		out = append(out, lvl)
	}
	return out, nil
}

// parseUnixField accepts a unix timestamp sent either as a JSON number or
// as a quoted string.
func parseUnixField(raw json.RawMessage) (time.Time, error) {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return time.Time{}, nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	return market.FromUnix(sec), nil
}

// decimalOrZero is used for optional numeric strings that the venue sends
// as "" when absent.
func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

package execution

import (
	"context"

	"github.com/jakobbotsch/krakengo/internal/adapters/outbound/kraken_http"
	"github.com/jakobbotsch/krakengo/internal/core/market"
)

// Venue is everything the engine needs from the exchange.
// Satisfied by *kraken_http.Client.
type Venue interface {
	OrderBook(ctx context.Context, pair string, count int) (market.Book, error)
	QueryOrder(ctx context.Context, txid string) (market.OrderInfo, error)
	AddOrder(ctx context.Context, req market.OrderRequest) (kraken_http.AddOrderResult, error)
	CancelOrder(ctx context.Context, txid string) (kraken_http.CancelResult, error)
}

var _ Venue = (*kraken_http.Client)(nil)

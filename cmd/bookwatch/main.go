package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/adapters/inbound/kraken_ws"
	"github.com/jakobbotsch/krakengo/internal/config"
	"github.com/jakobbotsch/krakengo/internal/core/market"
	"github.com/jakobbotsch/krakengo/internal/core/pricing"
	"github.com/jakobbotsch/krakengo/internal/events"
	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

// bookwatch mirrors live books over the WebSocket feed and prints where the
// engine would rest an order of the given size, without trading.
func main() {
	symbols := flag.String("symbols", "BTC/USD", "comma-separated WS symbols")
	side := flag.String("side", "sell", "buy or sell")
	volume := flag.String("volume", "1", "hypothetical order volume")
	depth := flag.Int("depth", 10, "book depth (10, 25, 100, 500, 1000)")
	flag.Parse()

	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	s, err := market.ParseSide(*side)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	vol, err := decimal.NewFromString(*volume)
	if err != nil || !vol.IsPositive() {
		fmt.Fprintf(os.Stderr, "bad -volume %q\n", *volume)
		os.Exit(2)
	}
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		telemetry.Errorf("Policy: %v", err)
		os.Exit(1)
	}
	sel := pricing.Selector{AllowAbove: policy.AllowAbove, Tick: policy.Tick}

	bus := events.NewBus()
	last := make(map[string]decimal.Decimal)
	bus.Subscribe(events.EventBookUpdate, func(e events.Event) error {
		upd, ok := e.Payload.(events.BookUpdate)
		if !ok {
			return nil
		}
		pick, err := sel.SelectFromBook(upd.Book, s, decimal.NullDecimal{}, vol)
		if err != nil {
			telemetry.Debugf("%s: %v", e.Pair, err)
			return nil
		}
		if prev, seen := last[e.Pair]; seen && prev.Equal(pick.Price) {
			return nil
		}
		last[e.Pair] = pick.Price
		telemetry.Infof("%-10s %s %s @ %s  ahead=%s  level=%d", e.Pair, s, vol, pick.Price, pick.VolumeTolerated, pick.Index)
		return nil
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ws := kraken_ws.NewClient(cfg.KrakenWSURL, *depth, bus)
	if err := ws.Connect(ctx); err != nil {
		telemetry.Errorf("WS connect: %v", err)
		os.Exit(1)
	}
	defer ws.Close()

	list := strings.Split(*symbols, ",")
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	if err := ws.SubscribeBook(list); err != nil {
		telemetry.Errorf("WS subscribe: %v", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-ws.Done():
	}
	telemetry.Infof("Shutting down")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/adapters/outbound/discord"
	"github.com/jakobbotsch/krakengo/internal/adapters/outbound/kraken_http"
	"github.com/jakobbotsch/krakengo/internal/config"
	"github.com/jakobbotsch/krakengo/internal/core/execution"
	"github.com/jakobbotsch/krakengo/internal/core/market"
	"github.com/jakobbotsch/krakengo/internal/core/tracking"
	"github.com/jakobbotsch/krakengo/internal/events"
	"github.com/jakobbotsch/krakengo/internal/fanout"
	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

const alertFlushTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup always executes.
func run() int {
	pair := flag.String("pair", "", "Kraken pair, e.g. XBTUSD")
	side := flag.String("side", "", "buy or sell")
	volume := flag.String("volume", "", "order volume in base currency")
	flag.Parse()

	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	order, err := parseOrder(*pair, *side, *volume)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\nusage: %s -pair XBTUSD -side sell -volume 0.5\n", err, os.Args[0])
		return 2
	}

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		telemetry.Errorf("Policy: %v", err)
		return 1
	}

	// ── Kraken client ───────────────────────────────────────────
	client, err := kraken_http.NewFromConfig(cfg)
	if err != nil {
		telemetry.Errorf("Kraken client: %v", err)
		return 1
	}
	if !client.HasCredentials() {
		telemetry.Errorf("Kraken credentials missing: set KRAKEN_API_KEY and KRAKEN_API_SECRET in .env")
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ts, err := client.ServerTime(ctx)
	if err != nil {
		telemetry.Errorf("Kraken unreachable: %v", err)
		return 1
	}
	telemetry.Infof("Kraken connected  api=%s  clock_skew=%s", cfg.KrakenBaseURL, time.Since(ts).Round(time.Second))

	balances, err := client.Balance(ctx)
	if err != nil {
		telemetry.Errorf("Balance: %v", err)
		return 1
	}
	for asset, amount := range balances {
		if !amount.IsZero() {
			telemetry.Infof("Balance  %s=%s", asset, amount)
		}
	}

	// ── Lifecycle subscribers ───────────────────────────────────
	bus := events.NewBus()

	journal, err := tracking.OpenJournal(cfg.HistoryDBPath)
	if err != nil {
		telemetry.Warnf("Journal disabled: %v", err)
	} else {
		journal.Attach(bus)
		defer journal.Close()
	}

	notifier := discord.NewNotifier(cfg.DiscordWebhookURL)
	notifier.Attach(ctx, bus)
	defer notifier.Flush(alertFlushTimeout)
	if notifier.Enabled() {
		if err := notifier.SendText(ctx, fmt.Sprintf("Starting %s %s %s", order.Side, order.Volume, order.Pair)); err != nil {
			telemetry.Warnf("Discord: %v", err)
		}
	}

	if cfg.FanoutPort > 0 {
		feed := fanout.NewServer(bus)
		if _, err := feed.Start(cfg.FanoutPort); err != nil {
			telemetry.Warnf("Fanout disabled: %v", err)
		} else {
			defer feed.Close()
		}
	}

	// ── Run ─────────────────────────────────────────────────────
	engine := execution.NewEngine(client, policy, execution.WithBus(bus))
	res, err := engine.Run(ctx, order)

	telemetry.Infof("Summary  run=%s  txid=%s  price=%s  reprices=%d  races=%d  public=%d  private=%d  call_p50=%s  call_p99=%s  gate_p99=%s",
		res.RunID, res.TxID, res.Price, res.Reprices, res.CancelRaces,
		telemetry.Metrics.PublicCalls.Value(),
		telemetry.Metrics.PrivateCalls.Value(),
		telemetry.Metrics.CallLatency.P50(),
		telemetry.Metrics.CallLatency.P99(),
		telemetry.Metrics.GateWait.P99(),
	)
	if err != nil {
		telemetry.Errorf("Run failed: %v", err)
		if res.TxID != "" {
			telemetry.Warnf("Order %s may still be resting on the book", res.TxID)
		}
		return 1
	}
	telemetry.Infof("Done  status=%s  executed=%s/%s", res.Final.Status, res.Final.VolumeExecuted, order.Volume)
	return 0
}

func parseOrder(pair, side, volume string) (execution.Order, error) {
	if strings.TrimSpace(pair) == "" {
		return execution.Order{}, fmt.Errorf("-pair is required")
	}
	s, err := market.ParseSide(strings.ToLower(side))
	if err != nil {
		return execution.Order{}, err
	}
	v, err := decimal.NewFromString(volume)
	if err != nil {
		return execution.Order{}, fmt.Errorf("-volume: %w", err)
	}
	return execution.Order{Pair: pair, Side: s, Volume: v}, nil
}

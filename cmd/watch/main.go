package main

import (
	"context"
	"flag"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jakobbotsch/krakengo/internal/adapters/outbound/discord"
	"github.com/jakobbotsch/krakengo/internal/config"
	"github.com/jakobbotsch/krakengo/internal/events"
	"github.com/jakobbotsch/krakengo/internal/fanout"
	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

// watch tails the lifecycle feed of a running order engine.
func main() {
	addr := flag.String("addr", "localhost:8090", "fanout server host:port")
	run := flag.String("run", "", "only show this run id")
	flag.Parse()

	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	bus := events.NewBus()
	bus.SubscribeAll(func(e events.Event) error {
		if embed, ok := discord.EmbedFor(e); ok {
			parts := make([]string, 0, len(embed.Fields))
			for _, f := range embed.Fields {
				parts = append(parts, f.Name+"="+f.Value)
			}
			telemetry.Infof("[%s] %s  %s", short(e.RunID), embed.Title, strings.Join(parts, "  "))
			return nil
		}
		telemetry.Infof("[%s] %s  %+v", short(e.RunID), e.Type, e.Payload)
		return nil
	}, events.LifecycleTypes...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fanout.NewClient(*addr, *run, bus).ConnectWithRetry(ctx)
	telemetry.Infof("Shutting down")
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

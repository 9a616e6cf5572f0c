// Ping the Kraken REST and WebSocket endpoints to measure network latency.
//
// Usage:
//
//	go run ./ping_services            # default: 20 requests
//	go run ./ping_services -n 50      # 50 requests per endpoint
//	go run ./ping_services --ws       # also test WebSocket ping/pong latency
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jakobbotsch/krakengo/internal/adapters/outbound/kraken_http"
	"github.com/jakobbotsch/krakengo/internal/config"
)

const (
	httpTimeout = 10 * time.Second
	ipifyV4     = "https://api4.ipify.org"
)

func main() {
	n := flag.Int("n", 20, "Number of requests per endpoint")
	ws := flag.Bool("ws", false, "Also measure WebSocket ping/pong latency")
	flag.Parse()

	cfg := config.Load()

	ipv4 := fetchURL(ipifyV4)
	if ipv4 == "" {
		ipv4 = "unavailable"
	}
	fmt.Printf("\nPinging Kraken from %s\n", ipv4)

	pingREST(cfg.KrakenBaseURL, *n)
	if *ws {
		pingWS(cfg.KrakenWSURL, *n)
	}
	fmt.Println()
}

func banner(title string) {
	fmt.Printf("\n%s\n", strings.Repeat("=", 55))
	fmt.Printf("  %s\n", title)
	fmt.Printf("%s\n", strings.Repeat("=", 55))
}

func pingREST(baseURL string, n int) {
	banner("KRAKEN REST " + baseURL)

	client, err := kraken_http.NewClient(baseURL, kraken_http.Options{
		HTTPClient: &http.Client{Timeout: httpTimeout},
	})
	if err != nil {
		fmt.Printf("  [!] %v\n", err)
		return
	}

	ctx := context.Background()
	fmt.Println("\n  Cold-start request (DNS + TLS + HTTP):")
	start := time.Now()
	ts, err := client.ServerTime(ctx)
	if err != nil {
		fmt.Printf("    FAILED: %v\n", err)
		return
	}
	cold := time.Since(start)
	fmt.Printf("    %.1f ms  (clock skew %s)\n", ms(cold), time.Since(ts).Round(time.Millisecond))

	fmt.Printf("\n  Warm latency (%d requests, keep-alive):\n", n)
	latencies := make([]float64, 0, n)
	pad := len(fmt.Sprintf("%d", n))
	for i := 1; i <= n; i++ {
		start := time.Now()
		if _, err := client.ServerTime(ctx); err != nil {
			fmt.Printf("  [%*d/%d]  FAILED: %v\n", pad, i, n, err)
			continue
		}
		v := ms(time.Since(start))
		latencies = append(latencies, v)
		fmt.Printf("  [%*d/%d]  %7.1f ms\n", pad, i, n, v)
	}
	printStats(latencies, "REST")
}

func pingWS(wsURL string, n int) {
	banner("KRAKEN WEBSOCKET " + wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		fmt.Printf("  [!] WebSocket dial failed: %v\n", err)
		return
	}
	defer conn.Close()

	pongCh := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pongCh <- struct{}{}:
		default:
		}
		return nil
	})

	// Control frames are only processed while reading.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	fmt.Printf("\n  Ping/pong latency (%d pings):\n", n)
	latencies := make([]float64, 0, n)
	pad := len(fmt.Sprintf("%d", n))
	for i := 1; i <= n; i++ {
		start := time.Now()
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
			fmt.Printf("  [!] WS ping failed: %v\n", err)
			break
		}
		select {
		case <-pongCh:
			v := ms(time.Since(start))
			latencies = append(latencies, v)
			fmt.Printf("  [%*d/%d]  %7.1f ms\n", pad, i, n, v)
		case <-time.After(5 * time.Second):
			fmt.Printf("  [!] WS pong timeout\n")
			printStats(latencies, "WebSocket")
			return
		}
	}
	printStats(latencies, "WebSocket")
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

func printStats(latencies []float64, label string) {
	if len(latencies) < 2 {
		fmt.Printf("\n  Not enough %s samples for statistics.\n", label)
		return
	}
	sorted := make([]float64, len(latencies))
	copy(sorted, latencies)
	sort.Float64s(sorted)

	mean := 0.0
	for _, v := range latencies {
		mean += v
	}
	mean /= float64(len(latencies))

	variance := 0.0
	for _, v := range latencies {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(latencies) - 1)

	pct := func(p float64) float64 {
		return sorted[min(int(float64(len(sorted))*p), len(sorted)-1)]
	}

	fmt.Printf("\n  --- %s Stats (%d samples) ---\n", label, len(latencies))
	fmt.Printf("  Min:    %7.1f ms\n", sorted[0])
	fmt.Printf("  Max:    %7.1f ms\n", sorted[len(sorted)-1])
	fmt.Printf("  Mean:   %7.1f ms\n", mean)
	fmt.Printf("  Median: %7.1f ms\n", sorted[len(sorted)/2])
	fmt.Printf("  Stdev:  %7.1f ms\n", math.Sqrt(variance))
	fmt.Printf("  p95:    %7.1f ms\n", pct(0.95))
	fmt.Printf("  p99:    %7.1f ms\n", pct(0.99))
}

func fetchURL(u string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return ""
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	var b [64]byte
	n, _ := resp.Body.Read(b[:])
	return strings.TrimSpace(string(b[:n]))
}

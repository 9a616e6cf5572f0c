package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jakobbotsch/krakengo/internal/adapters/outbound/kraken_http"
	"github.com/jakobbotsch/krakengo/internal/config"
	"github.com/jakobbotsch/krakengo/internal/core/market"
	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

func main() {
	what := flag.String("show", "balance", "balance, assets, open, closed, ledgers")
	assets := flag.String("assets", "", "comma-separated asset filter")
	ids := flag.String("ids", "", "comma-separated ledger ids (with -show ledgers)")
	offset := flag.Int("ofs", 0, "result offset for closed/ledgers")
	flag.Parse()

	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))

	client, err := kraken_http.NewFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kraken client: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	defer w.Flush()

	switch *what {
	case "assets":
		err = showAssets(ctx, w, client, splitFlag(*assets))
	case "balance":
		err = showBalance(ctx, w, client)
	case "open":
		err = showOpen(ctx, w, client)
	case "closed":
		err = showClosed(ctx, w, client, *offset)
	case "ledgers":
		err = showLedgers(ctx, w, client, splitFlag(*assets), splitFlag(*ids), *offset)
	default:
		err = fmt.Errorf("unknown -show %q", *what)
	}
	if err != nil {
		w.Flush()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func splitFlag(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func showAssets(ctx context.Context, w *tabwriter.Writer, c *kraken_http.Client, names []string) error {
	infos, err := c.Assets(ctx, names...)
	if err != nil {
		return err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	fmt.Fprintln(w, "asset\taltname\tclass\tdecimals\tdisplay")
	for _, a := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n", a.Name, a.AltName, a.Class, a.Decimals, a.DisplayDecimals)
	}
	return nil
}

func showBalance(ctx context.Context, w *tabwriter.Writer, c *kraken_http.Client) error {
	bal, err := c.Balance(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(bal))
	for k := range bal {
		names = append(names, k)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "asset\tbalance")
	for _, k := range names {
		fmt.Fprintf(w, "%s\t%s\n", k, bal[k])
	}
	return nil
}

func printOrders(w *tabwriter.Writer, orders map[string]market.OrderInfo) {
	list := make([]market.OrderInfo, 0, len(orders))
	for _, o := range orders {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].OpenTime.After(list[j].OpenTime) })

	fmt.Fprintln(w, "txid\tstatus\tpair\tside\ttype\tprice\tvolume\texecuted\topened")
	for _, o := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.TransactionID, o.Status, o.Pair, o.Side, o.Type, o.Price, o.Volume, o.VolumeExecuted,
			o.OpenTime.Local().Format(time.DateTime))
	}
}

func showOpen(ctx context.Context, w *tabwriter.Writer, c *kraken_http.Client) error {
	orders, err := c.OpenOrders(ctx, false, 0)
	if err != nil {
		return err
	}
	printOrders(w, orders)
	return nil
}

func showClosed(ctx context.Context, w *tabwriter.Writer, c *kraken_http.Client, offset int) error {
	count, orders, err := c.ClosedOrders(ctx, market.ClosedOrdersQuery{Offset: offset})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "closed orders: %d (showing %d from %d)\n", count, len(orders), offset)
	printOrders(w, orders)
	return nil
}

func showLedgers(ctx context.Context, w *tabwriter.Writer, c *kraken_http.Client, assets, ids []string, offset int) error {
	var entries []market.LedgerEntry
	if len(ids) > 0 {
		var err error
		if entries, err = c.QueryLedgers(ctx, ids); err != nil {
			return err
		}
	} else {
		count, page, err := c.Ledgers(ctx, market.LedgerQuery{Assets: assets, Offset: offset})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "ledger entries: %d (showing %d from %d)\n", count, len(page), offset)
		entries = page
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.After(entries[j].Timestamp) })

	fmt.Fprintln(w, "id\ttime\ttype\tasset\tamount\tfee\tbalance")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.LedgerID, e.Timestamp.Local().Format(time.DateTime), e.Type, e.Asset, e.Amount, e.Fee, e.Balance)
	}
	return nil
}

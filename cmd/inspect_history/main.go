package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jakobbotsch/krakengo/internal/core/tracking"
)

func main() {
	n := flag.Int("n", 10, "number of recent runs to display")
	dbPath := flag.String("db", "data/history.db", "journal database")
	run := flag.String("run", "", "show every event of this run id (prefix allowed)")
	verbose := flag.Bool("v", false, "include event payloads")
	flag.Parse()

	j, err := tracking.OpenJournal(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer j.Close()

	runs, err := j.Runs(max(*n, 1000))
	if err != nil {
		fmt.Fprintf(os.Stderr, "query runs: %v\n", err)
		os.Exit(1)
	}

	if *run == "" {
		printRuns(runs, *n)
		return
	}

	id := resolveRun(runs, *run)
	if id == "" {
		fmt.Fprintf(os.Stderr, "no unique run matching %q\n", *run)
		os.Exit(1)
	}
	entries, err := j.Events(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query events: %v\n", err)
		os.Exit(1)
	}
	printEvents(id, entries, *verbose)
}

func resolveRun(runs []tracking.RunSummary, prefix string) string {
	match := ""
	for _, r := range runs {
		if strings.HasPrefix(r.RunID, prefix) {
			if match != "" {
				return ""
			}
			match = r.RunID
		}
	}
	return match
}

func printRuns(runs []tracking.RunSummary, n int) {
	fmt.Println("=== Runs ===")
	if len(runs) == 0 {
		fmt.Println("(no data)")
		return
	}
	runs = runs[:min(n, len(runs))]

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "run\tpair\tevents\tstarted\tlast\tduration")
	fmt.Fprintln(w, strings.Repeat("----\t", 6))
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			r.RunID[:min(8, len(r.RunID))], r.Pair, r.Events,
			r.Started.Local().Format(time.DateTime), r.LastEvent,
			r.LastAt.Sub(r.Started).Round(time.Second))
	}
	w.Flush()
}

func printEvents(runID string, entries []tracking.Entry, verbose bool) {
	fmt.Printf("=== Run %s ===\n", runID)
	if len(entries) == 0 {
		fmt.Println("(no data)")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	cols := []string{"at", "event", "txid", "price", "volume"}
	if verbose {
		cols = append(cols, "detail")
	}
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	fmt.Fprintln(w, strings.Repeat("----\t", len(cols)))
	for _, e := range entries {
		cells := []string{e.At.Local().Format("15:04:05.000"), string(e.Event), cell(e.TxID), cell(e.Price), cell(e.Volume)}
		if verbose {
			cells = append(cells, e.Detail)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

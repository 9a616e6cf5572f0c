package main

import (
	"os"
	"testing"
)

func TestRunReturnsUsageCodeWithoutExiting(t *testing.T) {
	args := os.Args
	t.Cleanup(func() { os.Args = args })
	os.Args = []string{"krakengo", "-side", "sell", "-volume", "1"}

	if code := run(); code != 2 {
		t.Fatalf("run() = %d, want 2 for a missing -pair", code)
	}
}

func TestParseOrder(t *testing.T) {
	o, err := parseOrder("XBTUSD", "SELL", "0.5")
	if err != nil {
		t.Fatal(err)
	}
	if o.Pair != "XBTUSD" || o.Side != "sell" || o.Volume.String() != "0.5" {
		t.Errorf("order = %+v", o)
	}
	for _, bad := range [][3]string{{"", "sell", "1"}, {"XBTUSD", "hold", "1"}, {"XBTUSD", "buy", "lots"}} {
		if _, err := parseOrder(bad[0], bad[1], bad[2]); err == nil {
			t.Errorf("parseOrder(%q) accepted", bad)
		}
	}
}

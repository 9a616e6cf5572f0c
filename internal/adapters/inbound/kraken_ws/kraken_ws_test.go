package kraken_ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/core/market"
	"github.com/jakobbotsch/krakengo/internal/events"
)

func lvl(p, q string) market.Level {
	return market.Level{Price: decimal.RequireFromString(p), Volume: decimal.RequireFromString(q)}
}

func prices(levels []market.Level) string {
	s := make([]string, len(levels))
	for i, l := range levels {
		s[i] = l.Price.String() + "x" + l.Volume.String()
	}
	return strings.Join(s, " ")
}

func TestLocalBookApply(t *testing.T) {
	b := NewLocalBook(3)
	b.Reset(
		[]market.Level{lvl("101", "1"), lvl("100", "2"), lvl("102", "3")},
		[]market.Level{lvl("98", "1"), lvl("99", "2")},
	)
	got := b.Book()
	if prices(got.Asks) != "100x2 101x1 102x3" || prices(got.Bids) != "99x2 98x1" {
		t.Fatalf("after snapshot asks=%q bids=%q", prices(got.Asks), prices(got.Bids))
	}

	b.Apply(
		[]market.Level{lvl("100", "0"), lvl("101", "4"), lvl("100.5", "1"), lvl("103", "1")},
		[]market.Level{lvl("99.5", "7"), lvl("97", "0")},
	)
	after := b.Book()
	if prices(after.Asks) != "100.5x1 101x4 102x3" {
		t.Errorf("asks = %q", prices(after.Asks))
	}
	if prices(after.Bids) != "99.5x7 99x2 98x1" {
		t.Errorf("bids = %q", prices(after.Bids))
	}
	// Earlier copies are unaffected.
	if prices(got.Asks) != "100x2 101x1 102x3" {
		t.Errorf("snapshot copy mutated: %q", prices(got.Asks))
	}
}

func TestParseMessage(t *testing.T) {
	snap := `{"channel":"book","type":"snapshot","data":[{"symbol":"BTC/USD",
		"bids":[{"price":45283.5,"qty":0.1}],"asks":[{"price":45283.6,"qty":0.001}],"checksum":1}]}`
	msgs := ParseMessage([]byte(snap))
	if len(msgs) != 1 || !msgs[0].Snapshot || msgs[0].Symbol != "BTC/USD" {
		t.Fatalf("snapshot parse = %+v", msgs)
	}
	if !msgs[0].Asks[0].Price.Equal(decimal.RequireFromString("45283.6")) {
		t.Errorf("ask price = %s", msgs[0].Asks[0].Price)
	}

	upd := `{"channel":"book","type":"update","data":[{"symbol":"BTC/USD","bids":[],
		"asks":[{"price":45285.2,"qty":0}],"checksum":2,"timestamp":"2026-01-02T03:04:05.123456Z"}]}`
	msgs = ParseMessage([]byte(upd))
	if len(msgs) != 1 || msgs[0].Snapshot || !msgs[0].Asks[0].Volume.IsZero() {
		t.Fatalf("update parse = %+v", msgs)
	}
	if msgs[0].At.Nanosecond() != 123456000 {
		t.Errorf("timestamp = %v", msgs[0].At)
	}

	for _, raw := range []string{`{"channel":"heartbeat"}`, `{"method":"subscribe","success":true}`, `not json`} {
		if got := ParseMessage([]byte(raw)); len(got) != 0 {
			t.Errorf("ParseMessage(%s) = %+v", raw, got)
		}
	}
}

func TestClientSubscribesAndPublishes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan subscribeReq, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req subscribeReq
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		select {
		case subscribed <- req:
		default:
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"book","type":"update","data":[{"symbol":"ETH/USD","asks":[{"price":1,"qty":1}],"bids":[]}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":"book","type":"snapshot","data":[{"symbol":"ETH/USD","asks":[{"price":2001.5,"qty":3}],"bids":[{"price":2000,"qty":1}]}]}`))
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	bus := events.NewBus()
	updates := make(chan events.Event, 4)
	bus.Subscribe(events.EventBookUpdate, func(e events.Event) error {
		updates <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), 10, bus)
	if err := c.SubscribeBook([]string{"ETH/USD"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	select {
	case req := <-subscribed:
		if req.Method != "subscribe" || req.Params.Channel != "book" || req.Params.Depth != 10 || req.Params.Symbol[0] != "ETH/USD" {
			t.Errorf("subscribe = %+v", req)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no subscribe received")
	}

	select {
	case e := <-updates:
		u := e.Payload.(events.BookUpdate)
		if e.Pair != "ETH/USD" || !u.Snapshot || prices(u.Book.Asks) != "2001.5x3" {
			t.Errorf("first update = %+v", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no book update published")
	}
}

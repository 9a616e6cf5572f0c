package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jakobbotsch/krakengo/internal/adapters/outbound/kraken_http"
	"github.com/jakobbotsch/krakengo/internal/config"
	"github.com/jakobbotsch/krakengo/internal/core/market"
	"github.com/jakobbotsch/krakengo/internal/core/pricing"
	"github.com/jakobbotsch/krakengo/internal/events"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func asks(pv ...string) market.Book {
	var b market.Book
	for i := 0; i+1 < len(pv); i += 2 {
		b.Asks = append(b.Asks, market.Level{Price: d(pv[i]), Volume: d(pv[i+1])})
	}
	return b
}

func info(status market.OrderStatus, vol, exec string) market.OrderInfo {
	return market.OrderInfo{Status: status, Volume: d(vol), VolumeExecuted: d(exec)}
}

var errCancelRace = &kraken_http.ResponseError{
	Endpoint:    "CancelOrder",
	Diagnostics: []kraken_http.Diagnostic{kraken_http.ParseDiagnostic("EOrder:Unknown order")},
}

// fakeVenue answers from per-test hooks and records every call.
type fakeVenue struct {
	mu sync.Mutex

	book   func(n int) market.Book
	query  func(txid string, n int) market.OrderInfo
	cancel func(txid string, n int) error

	books, cancels int
	queries        map[string]int
	added          []market.OrderRequest
	canceled       []string
}

func (f *fakeVenue) OrderBook(ctx context.Context, pair string, count int) (market.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books++
	return f.book(f.books), nil
}

func (f *fakeVenue) QueryOrder(ctx context.Context, txid string) (market.OrderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queries == nil {
		f.queries = make(map[string]int)
	}
	f.queries[txid]++
	o := f.query(txid, f.queries[txid])
	o.TransactionID = txid
	return o, nil
}

func (f *fakeVenue) AddOrder(ctx context.Context, req market.OrderRequest) (kraken_http.AddOrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, req)
	return kraken_http.AddOrderResult{TransactionIDs: []string{fmt.Sprintf("TX%d", len(f.added))}}, nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, txid string) (kraken_http.CancelResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	if f.cancel != nil {
		if err := f.cancel(txid, f.cancels); err != nil {
			return kraken_http.CancelResult{}, err
		}
	}
	f.canceled = append(f.canceled, txid)
	return kraken_http.CancelResult{Count: 1}, nil
}

func (f *fakeVenue) totalQueries() int {
	n := 0
	for _, q := range f.queries {
		n += q
	}
	return n
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func testPolicy() config.Policy {
	p := config.DefaultPolicy()
	p.RetryDelay = 3 * time.Second // distinguishable from the hold delay
	return p
}

func newTestEngine(v Venue, p config.Policy, opts ...Option) (*Engine, *sleepRecorder) {
	rec := &sleepRecorder{}
	return NewEngine(v, p, append([]Option{WithSleep(rec.sleep)}, opts...)...), rec
}

func sellOrder(vol string) Order {
	return Order{Pair: "XBTUSD", Side: market.Sell, Volume: d(vol)}
}

func TestHoldPathIssuesNoMutations(t *testing.T) {
	v := &fakeVenue{
		book: func(n int) market.Book {
			if n == 1 {
				return asks("100", "5", "101", "10")
			}
			// Our 20 now rests one tick ahead of the 100 level.
			return asks("99.99999", "20", "100", "5", "101", "10")
		},
		query: func(txid string, n int) market.OrderInfo {
			if n < 4 {
				return info(market.StatusOpen, "20", "0")
			}
			return info(market.StatusClosed, "20", "20")
		},
	}
	e, rec := newTestEngine(v, testPolicy())

	res, err := e.Run(context.Background(), sellOrder("20"))
	if err != nil {
		t.Fatal(err)
	}

	if len(v.added) != 1 || v.cancels != 0 {
		t.Fatalf("added=%d cancels=%d, want 1 and 0", len(v.added), v.cancels)
	}
	if !v.added[0].Price.Amount.Equal(d("99.99999")) || v.added[0].Type != market.Limit {
		t.Errorf("placed %+v", v.added[0])
	}
	want := []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}
	if fmt.Sprint(rec.delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", rec.delays, want)
	}
	if res.Final.Status != market.StatusClosed || res.TxID != "TX1" || res.Reprices != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestCancelRaceKeepsOrderAndRetries(t *testing.T) {
	v := &fakeVenue{
		book: func(n int) market.Book {
			if n == 1 {
				return asks("100", "5", "101", "10")
			}
			// The 100 level thinned out: the selector now wants 101 - tick.
			return asks("99.99999", "20", "100", "1", "101", "10")
		},
		query: func(txid string, n int) market.OrderInfo {
			if n == 1 {
				return info(market.StatusOpen, "20", "0")
			}
			return info(market.StatusClosed, "20", "20")
		},
		cancel: func(string, int) error { return errCancelRace },
	}
	bus := events.NewBus()
	var races []events.CancelRace
	bus.Subscribe(events.EventCancelRace, func(ev events.Event) error {
		races = append(races, ev.Payload.(events.CancelRace))
		return nil
	})
	e, rec := newTestEngine(v, testPolicy(), WithBus(bus))

	res, err := e.Run(context.Background(), sellOrder("20"))
	if err != nil {
		t.Fatal(err)
	}

	if v.cancels != 1 || len(v.added) != 1 {
		t.Fatalf("cancels=%d added=%d, want 1 and 1", v.cancels, len(v.added))
	}
	if res.TxID != "TX1" || !res.Price.Equal(d("99.99999")) {
		t.Errorf("txid/price changed after race: %s @ %s", res.TxID, res.Price)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 3*time.Second {
		t.Errorf("delays = %v, want [3s]", rec.delays)
	}
	if res.CancelRaces != 1 || len(races) != 1 || races[0].TxID != "TX1" || races[0].Attempt != 1 {
		t.Errorf("races = %d, events = %+v", res.CancelRaces, races)
	}
}

func TestClosedOrderStopsAllCalls(t *testing.T) {
	v := &fakeVenue{
		book:  func(int) market.Book { return asks("100", "5") },
		query: func(string, int) market.OrderInfo { return info(market.StatusClosed, "1", "1") },
	}
	e, rec := newTestEngine(v, testPolicy())

	if _, err := e.Run(context.Background(), sellOrder("1")); err != nil {
		t.Fatal(err)
	}
	// One book for placing, then exactly one poll.
	if v.books != 2 || v.totalQueries() != 1 || v.cancels != 0 || len(v.added) != 1 {
		t.Fatalf("books=%d queries=%d cancels=%d added=%d", v.books, v.totalQueries(), v.cancels, len(v.added))
	}
	if len(rec.delays) != 0 {
		t.Errorf("unexpected delays %v", rec.delays)
	}
}

func TestRepriceSubmitsRemainingVolume(t *testing.T) {
	v := &fakeVenue{
		book: func(n int) market.Book {
			if n == 1 {
				return asks("100", "5", "101", "10")
			}
			return asks("99.99999", "20", "100", "1", "101", "10")
		},
		query: func(txid string, n int) market.OrderInfo {
			switch {
			case txid == "TX1" && n == 1:
				return info(market.StatusOpen, "20", "0")
			case txid == "TX1":
				// Partially filled before the cancel landed.
				return info(market.StatusCanceled, "20", "5")
			}
			return info(market.StatusClosed, "15", "15")
		},
	}
	bus := events.NewBus()
	var seen []events.EventType
	bus.SubscribeAll(func(ev events.Event) error {
		seen = append(seen, ev.Type)
		return nil
	}, events.LifecycleTypes...)
	e, rec := newTestEngine(v, testPolicy(), WithBus(bus))

	res, err := e.Run(context.Background(), sellOrder("20"))
	if err != nil {
		t.Fatal(err)
	}

	if len(v.added) != 2 || len(v.canceled) != 1 || v.canceled[0] != "TX1" {
		t.Fatalf("added=%d canceled=%v", len(v.added), v.canceled)
	}
	second := v.added[1]
	if !second.Volume.Equal(d("15")) || !second.Price.Amount.Equal(d("100.99999")) || second.Side != market.Sell {
		t.Errorf("replacement = %s %s @ %s", second.Side, second.Volume, second.Price)
	}
	if res.TxID != "TX2" || res.Reprices != 1 || !res.Price.Equal(d("100.99999")) {
		t.Errorf("result = %+v", res)
	}
	if len(rec.delays) != 1 || rec.delays[0] != 4*time.Second {
		t.Errorf("delays = %v, want [4s]", rec.delays)
	}
	want := []events.EventType{events.EventOrderPlaced, events.EventOrderRepriced, events.EventOrderPlaced, events.EventOrderDone}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", seen, want)
	}
}

func TestFillDuringCancelEndsRun(t *testing.T) {
	v := &fakeVenue{
		book: func(n int) market.Book {
			if n == 1 {
				return asks("100", "5", "101", "10")
			}
			return asks("99.99999", "20", "100", "1", "101", "10")
		},
		query: func(txid string, n int) market.OrderInfo {
			if n == 1 {
				return info(market.StatusOpen, "20", "0")
			}
			return info(market.StatusCanceled, "20", "20")
		},
	}
	e, _ := newTestEngine(v, testPolicy())

	res, err := e.Run(context.Background(), sellOrder("20"))
	if err != nil {
		t.Fatal(err)
	}
	if len(v.added) != 1 || res.Reprices != 0 {
		t.Fatalf("added=%d reprices=%d, want no replacement", len(v.added), res.Reprices)
	}
	if !res.Final.Remaining().IsZero() {
		t.Errorf("final remaining = %s", res.Final.Remaining())
	}
}

func TestTransportErrorOnCancelIsFatal(t *testing.T) {
	transport := &kraken_http.TransportError{Op: "http do", Endpoint: "CancelOrder", Err: errors.New("connection reset")}
	v := &fakeVenue{
		book: func(n int) market.Book {
			if n == 1 {
				return asks("100", "5", "101", "10")
			}
			return asks("99.99999", "20", "100", "1", "101", "10")
		},
		query:  func(string, int) market.OrderInfo { return info(market.StatusOpen, "20", "0") },
		cancel: func(string, int) error { return transport },
	}
	e, rec := newTestEngine(v, testPolicy())

	_, err := e.Run(context.Background(), sellOrder("20"))
	var te *kraken_http.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if len(rec.delays) != 0 || v.cancels != 1 {
		t.Errorf("delays=%v cancels=%d", rec.delays, v.cancels)
	}
}

func TestCancelRetryLimit(t *testing.T) {
	v := &fakeVenue{
		book: func(n int) market.Book {
			if n == 1 {
				return asks("100", "5", "101", "10")
			}
			return asks("99.99999", "20", "100", "1", "101", "10")
		},
		query:  func(string, int) market.OrderInfo { return info(market.StatusOpen, "20", "0") },
		cancel: func(string, int) error { return errCancelRace },
	}
	p := testPolicy()
	p.MaxCancelRetries = 3
	e, rec := newTestEngine(v, p)

	res, err := e.Run(context.Background(), sellOrder("20"))
	if !errors.Is(err, ErrCancelRetriesExhausted) || !kraken_http.IsResponseError(err) {
		t.Fatalf("err = %v", err)
	}
	if v.cancels != 3 || res.CancelRaces != 3 || len(rec.delays) != 2 {
		t.Errorf("cancels=%d races=%d delays=%v", v.cancels, res.CancelRaces, rec.delays)
	}
}

func TestShallowBookFailsBeforePlacing(t *testing.T) {
	v := &fakeVenue{
		book:  func(int) market.Book { return asks("100", "1", "101", "1") },
		query: func(string, int) market.OrderInfo { return info(market.StatusOpen, "20", "0") },
	}
	e, _ := newTestEngine(v, testPolicy())

	if _, err := e.Run(context.Background(), sellOrder("20")); !errors.Is(err, pricing.ErrInsufficientBookDepth) {
		t.Fatalf("err = %v, want ErrInsufficientBookDepth", err)
	}
	if len(v.added) != 0 {
		t.Errorf("placed %d orders on a shallow book", len(v.added))
	}
}

func TestContextCancelLeavesOrderResting(t *testing.T) {
	v := &fakeVenue{
		book: func(n int) market.Book {
			if n == 1 {
				return asks("100", "5", "101", "10")
			}
			return asks("99.99999", "20", "100", "5", "101", "10")
		},
		query: func(string, int) market.OrderInfo { return info(market.StatusOpen, "20", "0") },
	}
	ctx, cancel := context.WithCancel(context.Background())
	stopAfterHold := func(ctx context.Context, d time.Duration) error {
		cancel()
		return nil
	}
	e := NewEngine(v, testPolicy(), WithSleep(stopAfterHold))

	_, err := e.Run(ctx, sellOrder("20"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if v.cancels != 0 || v.totalQueries() != 1 {
		t.Errorf("cancels=%d queries=%d", v.cancels, v.totalQueries())
	}
}

func TestRunRejectsInvalidOrder(t *testing.T) {
	e, _ := newTestEngine(&fakeVenue{}, testPolicy())
	for _, o := range []Order{
		{Pair: "", Side: market.Buy, Volume: d("1")},
		{Pair: "XBTUSD", Side: "hold", Volume: d("1")},
		{Pair: "XBTUSD", Side: market.Buy, Volume: d("0")},
	} {
		if _, err := e.Run(context.Background(), o); !errors.Is(err, market.ErrInvalidOrder) {
			t.Errorf("Run(%+v) err = %v", o, err)
		}
	}
}

func TestBuySideUsesBids(t *testing.T) {
	v := &fakeVenue{
		book: func(int) market.Book {
			return market.Book{Bids: []market.Level{{Price: d("50"), Volume: d("10")}}}
		},
		query: func(string, int) market.OrderInfo { return info(market.StatusExpired, "2", "0") },
	}
	e, _ := newTestEngine(v, testPolicy())

	res, err := e.Run(context.Background(), Order{Pair: "ETHUSD", Side: market.Buy, Volume: d("2")})
	if err != nil {
		t.Fatal(err)
	}
	if !v.added[0].Price.Amount.Equal(d("50.00001")) || v.added[0].Side != market.Buy {
		t.Errorf("placed %+v", v.added[0])
	}
	if res.Final.Status != market.StatusExpired {
		t.Errorf("final status = %s", res.Final.Status)
	}
}

// rendezvousVenue holds the first monitoring fetch of the book and of the
// order until the other one has started.
type rendezvousVenue struct {
	*fakeVenue
	bookCalls, queryCalls atomic.Int32
	bookStarted           chan struct{}
	queryStarted          chan struct{}
}

func (r *rendezvousVenue) OrderBook(ctx context.Context, pair string, count int) (market.Book, error) {
	// Call 1 is the placement fetch; call 2 belongs to the first poll.
	if r.bookCalls.Add(1) == 2 {
		close(r.bookStarted)
		select {
		case <-r.queryStarted:
		case <-time.After(2 * time.Second):
			return market.Book{}, errors.New("order fetch never started while book fetch was in flight")
		}
	}
	return r.fakeVenue.OrderBook(ctx, pair, count)
}

func (r *rendezvousVenue) QueryOrder(ctx context.Context, txid string) (market.OrderInfo, error) {
	if r.queryCalls.Add(1) == 1 {
		close(r.queryStarted)
		select {
		case <-r.bookStarted:
		case <-time.After(2 * time.Second):
			return market.OrderInfo{}, errors.New("book fetch never started while order fetch was in flight")
		}
	}
	return r.fakeVenue.QueryOrder(ctx, txid)
}

func TestPollFetchesOrderAndBookConcurrently(t *testing.T) {
	v := &rendezvousVenue{
		fakeVenue: &fakeVenue{
			book:  func(int) market.Book { return asks("100", "5", "101", "10") },
			query: func(string, int) market.OrderInfo { return info(market.StatusClosed, "20", "20") },
		},
		bookStarted:  make(chan struct{}),
		queryStarted: make(chan struct{}),
	}
	e, _ := newTestEngine(v, testPolicy())

	res, err := e.Run(context.Background(), sellOrder("20"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Final.Status != market.StatusClosed {
		t.Errorf("final status = %s", res.Final.Status)
	}
	if got := v.bookCalls.Load(); got != 2 {
		t.Errorf("book fetches = %d, want 2", got)
	}
}

package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jakobbotsch/krakengo/internal/adapters/outbound/kraken_http"
	"github.com/jakobbotsch/krakengo/internal/config"
	"github.com/jakobbotsch/krakengo/internal/core/market"
	"github.com/jakobbotsch/krakengo/internal/core/pricing"
	"github.com/jakobbotsch/krakengo/internal/events"
	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

var ErrCancelRetriesExhausted = errors.New("cancel rejected too many times in a row")

type State int

const (
	Placing State = iota
	Monitoring
	Holding
	Repricing
	Done
)

func (s State) String() string {
	switch s {
	case Placing:
		return "placing"
	case Monitoring:
		return "monitoring"
	case Holding:
		return "holding"
	case Repricing:
		return "repricing"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Order is what the caller wants executed.
type Order struct {
	Pair   string
	Side   market.Side
	Volume decimal.Decimal
}

func (o Order) validate() error {
	if strings.TrimSpace(o.Pair) == "" {
		return fmt.Errorf("%w: must specify a pair", market.ErrInvalidOrder)
	}
	if o.Side != market.Buy && o.Side != market.Sell {
		return fmt.Errorf("%w: must specify order side", market.ErrInvalidOrder)
	}
	if !o.Volume.IsPositive() {
		return fmt.Errorf("%w: volume must be positive, got %s", market.ErrInvalidOrder, o.Volume)
	}
	return nil
}

// Result describes a finished run.
type Result struct {
	RunID       string
	TxID        string
	Price       decimal.Decimal
	Final       market.OrderInfo
	Reprices    int
	CancelRaces int
}

type Option func(*Engine)

// WithBus publishes lifecycle events to bus.
func WithBus(bus *events.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithSleep replaces the delay implementation.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// Engine keeps one limit order positioned so that only a bounded share of
// foreign volume rests ahead of it, repricing until the order is closed.
// An Engine holds no per-run state; Run may be called concurrently.
type Engine struct {
	venue    Venue
	selector pricing.Selector
	policy   config.Policy
	bus      *events.Bus
	sleep    SleepFunc
}

func NewEngine(venue Venue, policy config.Policy, opts ...Option) *Engine {
	e := &Engine{
		venue:    venue,
		selector: pricing.Selector{AllowAbove: policy.AllowAbove, Tick: policy.Tick},
		policy:   policy,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the state of one Run call. It is owned by a single goroutine.
type run struct {
	*Engine
	id    string
	order Order
	start time.Time

	state State
	txid  string
	price decimal.Decimal

	reprices int
	races    int
	streak   int // consecutive cancel races
	lastInfo market.OrderInfo
}

// Run places order and repositions it until the venue reports it no longer
// live. Every error is fatal except a ResponseError from a cancel attempt,
// which is treated as a race with a fill and retried after the retry delay.
// Cancelling ctx stops the loop without cancelling the resting order.
func (e *Engine) Run(ctx context.Context, order Order) (Result, error) {
	if err := order.validate(); err != nil {
		return Result{}, err
	}

	r := &run{Engine: e, id: uuid.NewString(), order: order, start: time.Now(), state: Placing}

	telemetry.Metrics.ActiveEngines.Inc()
	defer telemetry.Metrics.ActiveEngines.Dec()

	telemetry.Infof("execution[%s]: %s %s %s", r.short(), order.Side, order.Volume, order.Pair)

	for r.state != Done {
		var err error
		switch r.state {
		case Placing:
			err = r.place(ctx)
		case Monitoring:
			err = r.monitor(ctx)
		}
		if err != nil {
			telemetry.Errorf("execution[%s]: %s failed: %v", r.short(), r.state, err)
			return r.result(), err
		}
	}

	r.finish()
	return r.result(), nil
}

func (r *run) place(ctx context.Context) error {
	book, err := r.venue.OrderBook(ctx, r.order.Pair, r.policy.BookDepth)
	if err != nil {
		return fmt.Errorf("fetch book: %w", err)
	}
	pick, err := r.selector.SelectFromBook(book, r.order.Side, decimal.NullDecimal{}, r.order.Volume)
	if err != nil {
		return err
	}

	if err := r.submit(ctx, r.order.Volume, pick.Price); err != nil {
		return err
	}
	r.state = Monitoring
	return nil
}

func (r *run) submit(ctx context.Context, volume, price decimal.Decimal) error {
	res, err := r.venue.AddOrder(ctx, market.LimitOrder(r.order.Side, r.order.Pair, volume, price))
	if err != nil {
		return fmt.Errorf("add order: %w", err)
	}
	if len(res.TransactionIDs) != 1 {
		return fmt.Errorf("add order: expected one transaction id, got %d", len(res.TransactionIDs))
	}

	r.txid = res.TransactionIDs[0]
	r.price = price
	telemetry.Metrics.OrdersPlaced.Inc()
	telemetry.Infof("execution[%s]: placed %s %s @ %s txid=%s", r.short(), r.order.Side, volume, price, r.txid)
	r.publish(events.EventOrderPlaced, events.OrderPlaced{
		TxID: r.txid, Side: r.order.Side, Price: price, Volume: volume, Ladder: r.reprices,
	})
	return nil
}

// poll fetches the order and the book concurrently.
func (r *run) poll(ctx context.Context) (market.OrderInfo, market.Book, error) {
	var (
		info market.OrderInfo
		book market.Book
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = r.venue.QueryOrder(gctx, r.txid)
		if err != nil {
			return fmt.Errorf("query order %s: %w", r.txid, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		book, err = r.venue.OrderBook(gctx, r.order.Pair, r.policy.BookDepth)
		if err != nil {
			return fmt.Errorf("fetch book: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return market.OrderInfo{}, market.Book{}, err
	}
	return info, book, nil
}

func (r *run) monitor(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, book, err := r.poll(ctx)
	if err != nil {
		return err
	}
	r.lastInfo = info

	if !isLive(info.Status) {
		r.state = Done
		return nil
	}

	remaining := info.Remaining()
	pick, err := r.selector.SelectFromBook(book, r.order.Side, decimal.NewNullDecimal(r.price), remaining)
	if err != nil {
		return err
	}

	if pick.Price.Equal(r.price) {
		r.state = Holding
		return r.hold(ctx, remaining)
	}
	r.state = Repricing
	return r.reprice(ctx, pick.Price)
}

func (r *run) hold(ctx context.Context, remaining decimal.Decimal) error {
	r.streak = 0
	telemetry.Metrics.Holds.Inc()
	telemetry.Debugf("execution[%s]: holding @ %s remaining=%s", r.short(), r.price, remaining)
	r.publish(events.EventOrderHeld, events.OrderHeld{TxID: r.txid, Price: r.price, Remaining: remaining})

	if err := r.sleep(ctx, r.policy.HoldDelay); err != nil {
		return err
	}
	r.state = Monitoring
	return nil
}

func (r *run) reprice(ctx context.Context, newPrice decimal.Decimal) error {
	if _, err := r.venue.CancelOrder(ctx, r.txid); err != nil {
		if !kraken_http.IsResponseError(err) {
			return fmt.Errorf("cancel %s: %w", r.txid, err)
		}
		return r.cancelRace(ctx, err)
	}
	r.streak = 0
	telemetry.Metrics.OrdersCanceled.Inc()

	// The order may have filled between the decision and the cancel.
	info, err := r.venue.QueryOrder(ctx, r.txid)
	if err != nil {
		return fmt.Errorf("query canceled order %s: %w", r.txid, err)
	}
	r.lastInfo = info

	remaining := info.Remaining()
	if info.Status == market.StatusClosed || !remaining.IsPositive() {
		r.state = Done
		return nil
	}

	oldTx, oldPrice := r.txid, r.price
	r.reprices++
	telemetry.Metrics.Reprices.Inc()
	telemetry.Infof("execution[%s]: reprice %s -> %s remaining=%s", r.short(), oldPrice, newPrice, remaining)
	r.publish(events.EventOrderRepriced, events.OrderRepriced{
		CanceledTxID: oldTx, OldPrice: oldPrice, NewPrice: newPrice, Remaining: remaining,
	})

	if err := r.submit(ctx, remaining, newPrice); err != nil {
		return err
	}
	if err := r.sleep(ctx, r.policy.SettleDelay); err != nil {
		return err
	}
	r.state = Monitoring
	return nil
}

func (r *run) cancelRace(ctx context.Context, cause error) error {
	r.races++
	r.streak++
	telemetry.Metrics.CancelRaces.Inc()
	telemetry.Warnf("execution[%s]: cancel of %s rejected (attempt %d): %v", r.short(), r.txid, r.streak, cause)
	r.publish(events.EventCancelRace, events.CancelRace{TxID: r.txid, Attempt: r.streak, Error: cause.Error()})

	if limit := r.policy.MaxCancelRetries; limit > 0 && r.streak >= limit {
		return fmt.Errorf("%w: %d attempts on %s: %w", ErrCancelRetriesExhausted, r.streak, r.txid, cause)
	}
	if err := r.sleep(ctx, r.policy.RetryDelay); err != nil {
		return err
	}
	r.state = Monitoring
	return nil
}

func (r *run) finish() {
	info := r.lastInfo
	telemetry.Infof("execution[%s]: done status=%s executed=%s/%s reprices=%d races=%d in %s",
		r.short(), info.Status, info.VolumeExecuted, info.Volume, r.reprices, r.races, time.Since(r.start).Round(time.Millisecond))
	r.publish(events.EventOrderDone, events.OrderDone{
		TxID:           r.txid,
		Side:           r.order.Side,
		Status:         info.Status,
		Volume:         r.order.Volume,
		VolumeExecuted: info.VolumeExecuted,
		Reprices:       r.reprices,
		Elapsed:        time.Since(r.start),
	})
}

func (r *run) result() Result {
	return Result{
		RunID:       r.id,
		TxID:        r.txid,
		Price:       r.price,
		Final:       r.lastInfo,
		Reprices:    r.reprices,
		CancelRaces: r.races,
	}
}

func (r *run) publish(t events.EventType, payload any) {
	r.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      t,
		RunID:     r.id,
		Pair:      r.order.Pair,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

func (r *run) short() string { return r.id[:8] }

// isLive reports whether an order can still execute. Orders that were
// closed, canceled or expired on the venue side end the run.
func isLive(s market.OrderStatus) bool {
	return s == market.StatusPending || s == market.StatusOpen
}

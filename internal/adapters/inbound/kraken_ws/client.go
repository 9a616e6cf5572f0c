package kraken_ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jakobbotsch/krakengo/internal/events"
	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

const DefaultURL = "wss://ws.kraken.com/v2"

// Client mirrors public order books from the v2 WebSocket feed and
// publishes a BookUpdate onto the event bus after every applied message.
//
// Gorilla/websocket supports one concurrent reader and one concurrent
// writer, so all writes are serialized through mu.
type Client struct {
	url   string
	depth int
	bus   *events.Bus
	conn  *websocket.Conn
	done  chan struct{}

	mu      sync.Mutex
	symbols map[string]bool
	books   map[string]*LocalBook
	reqID   int
}

// NewClient mirrors depth levels per side. Kraken accepts 10, 25, 100,
// 500 and 1000.
func NewClient(wsURL string, depth int, bus *events.Bus) *Client {
	if wsURL == "" {
		wsURL = DefaultURL
	}
	return &Client{
		url:     wsURL,
		depth:   depth,
		bus:     bus,
		done:    make(chan struct{}),
		symbols: make(map[string]bool),
		books:   make(map[string]*LocalBook),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.runLoop(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// SubscribeBook adds symbols (e.g. "BTC/USD") and subscribes on the live
// connection. Symbols added before Connect are subscribed on connect.
func (c *Client) SubscribeBook(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var fresh []string
	for _, s := range symbols {
		if !c.symbols[s] {
			c.symbols[s] = true
			fresh = append(fresh, s)
		}
	}

	if len(fresh) == 0 || c.conn == nil {
		return nil
	}

	return c.sendSubscribe(fresh)
}

// runLoop reads messages and reconnects on failure with exponential backoff.
func (c *Client) runLoop(ctx context.Context) {
	defer close(c.done)

	first := true
	for {
		if first {
			telemetry.Infof("[Kraken] WS connected to %s", c.url)
			first = false
		} else {
			telemetry.Infof("Kraken WS reconnected")
		}

		c.resubscribeAll()
		c.readLoop(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		backoff := 1 * time.Second
		const maxBackoff = 30 * time.Second
		for attempt := 1; ; attempt++ {
			telemetry.Warnf("Kraken WS reconnecting (attempt %d) in %s", attempt, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.dial(ctx); err != nil {
				telemetry.Warnf("Kraken WS dial failed: %v", err)
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			break
		}
	}
}

// resubscribeAll sends a subscribe for every known symbol. A fresh
// snapshot follows, so stale local books are dropped first.
func (c *Client) resubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.books = make(map[string]*LocalBook)
	if len(c.symbols) == 0 {
		return
	}

	all := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		all = append(all, s)
	}

	if err := c.sendSubscribe(all); err != nil {
		telemetry.Warnf("Kraken WS resubscribe failed: %v", err)
	}
}

// sendSubscribe writes a subscribe request. Caller must hold mu.
func (c *Client) sendSubscribe(symbols []string) error {
	c.reqID++
	req := subscribeReq{
		Method: "subscribe",
		Params: subscribeParams{
			Channel:  "book",
			Symbol:   symbols,
			Depth:    c.depth,
			Snapshot: true,
		},
		ReqID: c.reqID,
	}
	telemetry.Debugf("kraken_ws: subscribing to %d symbols (req_id=%d)", len(symbols), c.reqID)
	return c.conn.WriteJSON(req)
}

type subscribeReq struct {
	Method string          `json:"method"`
	Params subscribeParams `json:"params"`
	ReqID  int             `json:"req_id"`
}

type subscribeParams struct {
	Channel  string   `json:"channel"`
	Symbol   []string `json:"symbol"`
	Depth    int      `json:"depth,omitempty"`
	Snapshot bool     `json:"snapshot"`
}

func (c *Client) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	defer conn.Close()

	// Subscribed connections get a heartbeat every second.
	const readWait = 30 * time.Second

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			telemetry.Warnf("Kraken WS read error: %v", err)
			return
		}

		conn.SetReadDeadline(time.Now().Add(readWait))
		for _, bm := range ParseMessage(msg) {
			c.apply(bm)
		}
	}
}

func (c *Client) apply(bm BookMessage) {
	c.mu.Lock()
	lb, ok := c.books[bm.Symbol]
	if !ok {
		if !bm.Snapshot {
			c.mu.Unlock()
			telemetry.Debugf("kraken_ws: update for %s before snapshot, dropped", bm.Symbol)
			return
		}
		lb = NewLocalBook(c.depth)
		c.books[bm.Symbol] = lb
	}
	if bm.Snapshot {
		lb.Reset(bm.Asks, bm.Bids)
	} else {
		lb.Apply(bm.Asks, bm.Bids)
	}
	book := lb.Book()
	c.mu.Unlock()

	c.bus.Publish(events.Event{
		Type:      events.EventBookUpdate,
		Pair:      bm.Symbol,
		Timestamp: bm.At,
		Payload:   events.BookUpdate{Book: book, Snapshot: bm.Snapshot},
	})
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

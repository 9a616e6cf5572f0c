package fanout

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/jakobbotsch/krakengo/internal/events"
	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

const (
	clientSendBuf = 256
	writeDeadline = 5 * time.Second
	pongWait      = 30 * time.Second
	pingInterval  = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

type watcher struct {
	run  string // empty watches every run
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Server fans out engine lifecycle events to connected WebSocket watchers.
type Server struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
	srv      *http.Server
}

func NewServer(bus *events.Bus) *Server {
	s := &Server{
		watchers: make(map[*watcher]struct{}),
	}
	bus.SubscribeAll(s.forward, events.LifecycleTypes...)
	return s
}

// forward is called on the publisher's goroutine. It serializes the event
// and enqueues it to matching watchers' send channels (non-blocking).
func (s *Server) forward(evt events.Event) error {
	data, err := MarshalEvent(evt)
	if err != nil {
		telemetry.Warnf("fanout: marshal error: %v", err)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for w := range s.watchers {
		if w.run != "" && w.run != evt.RunID {
			continue
		}
		select {
		case w.send <- data:
		default:
			telemetry.Warnf("fanout: dropping %s for slow watcher", evt.Type)
		}
	}
	return nil
}

// Watchers returns the number of connected watchers.
func (s *Server) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// Router serves /ws (every run), /ws/{run} (one run) and /health.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.HandleWS).Methods(http.MethodGet)
	r.HandleFunc("/ws/{run}", s.HandleWS).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","watchers":%d}`, s.Watchers())
}

// HandleWS is the HTTP handler for WebSocket upgrade requests.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("fanout: upgrade failed: %v", err)
		return
	}

	c := &watcher{
		run:  mux.Vars(r)["run"],
		conn: conn,
		send: make(chan []byte, clientSendBuf),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.watchers[c] = struct{}{}
	s.mu.Unlock()

	telemetry.Plainf("Fanout: Watcher Connected [%s]", conn.RemoteAddr())

	go s.writePump(c)
	go s.readPump(c)
}

// writePump drains the watcher's send channel and writes to the WS connection.
// It owns the watcher lifecycle: on exit it removes the watcher from the map
// (so forward never sends to a stale channel) and closes the connection.
func (s *Server) writePump(c *watcher) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.removeWatcher(c)
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				telemetry.Warnf("fanout: write error: %v", err)
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive by reading pongs / close frames.
// On exit it signals writePump via c.done (never closes c.send).
func (s *Server) readPump(c *watcher) {
	defer close(c.done)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) removeWatcher(c *watcher) {
	s.mu.Lock()
	delete(s.watchers, c)
	s.mu.Unlock()
	telemetry.Plainf("Fanout: Watcher Disconnected [%s]", c.conn.RemoteAddr())
}

// Start listens on port in the background and returns the bound address.
func (s *Server) Start(port int) (string, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return "", fmt.Errorf("fanout listen: %w", err)
	}

	s.srv = &http.Server{Handler: s.Router()}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			telemetry.Warnf("fanout: serve: %v", err)
		}
	}()
	telemetry.Plainf("fanout: server listening on %s", ln.Addr())
	return ln.Addr().String(), nil
}

func (s *Server) Close() error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Close()
}

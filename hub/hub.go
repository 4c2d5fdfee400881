// Package hub implements the push channel: a set of WebSocket clients that
// receive broadcast events and send request frames back to the relay.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmcleod/steamrelay/audit"
)

const (
	// defaultQueueSize is the per-client outbound frame capacity.
	defaultQueueSize = 256

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	eventError     = "error"
	malformedFrame = "Malformed frame"
)

var (
	// ErrClientGone is returned when emitting to a disconnected client.
	ErrClientGone = errors.New("client disconnected")
	// ErrQueueFull is returned when a client's outbound queue overflowed.
	// The client is disconnected.
	ErrQueueFull = errors.New("client queue full")
	// ErrHubClosed is returned by operations on a closed hub.
	ErrHubClosed = errors.New("hub closed")
)

// Frame is the JSON envelope exchanged in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the data of an "error" frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Handler processes frames received from a client. Frames from one client
// are handled one at a time, in arrival order.
type Handler interface {
	HandleFrame(ctx context.Context, c *Client, f Frame)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, c *Client, f Frame)

func (fn HandlerFunc) HandleFrame(ctx context.Context, c *Client, f Frame) { fn(ctx, c, f) }

// Hub tracks connected clients.
type Hub struct {
	logger    *slog.Logger
	audit     *audit.Logger
	queueSize int
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	handler Handler
	clients map[string]*Client
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithAudit records client connects and disconnects.
func WithAudit(al *audit.Logger) Option {
	return func(h *Hub) {
		h.audit = al
	}
}

// WithQueueSize sets the per-client outbound queue capacity.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// New creates a Hub. Inbound frames are dropped until a handler is set
// with Handle.
func New(opts ...Option) *Hub {
	h := &Hub{
		queueSize: defaultQueueSize,
		clients:   make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	h.logger = h.logger.With("component", "hub")
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		// Push channel clients connect from arbitrary origins.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return h
}

// Handle sets the handler for frames received from clients.
func (h *Hub) Handle(handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

func (h *Hub) currentHandler() Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.handler
}

// ServeHTTP upgrades the request to a WebSocket and serves the client until
// it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(h, conn)
	if !h.add(c) {
		c.close()
		return
	}
	defer h.remove(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.logger.Info("client connected", "client_id", c.id, "remote_addr", r.RemoteAddr)
	h.audit.Record(ctx, audit.ClientConnected, "", slog.String("client_id", c.id), slog.String("remote_addr", r.RemoteAddr))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	c.readPump(ctx)

	h.logger.Info("client disconnected", "client_id", c.id)
	h.audit.Record(ctx, audit.ClientDisconnected, "", slog.String("client_id", c.id))
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) remove(c *Client) {
	c.close()
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
}

// Broadcast sends an event to every connected client. A client whose queue
// is full is disconnected; the broadcast never blocks on a slow client.
func (h *Hub) Broadcast(event string, payload any) error {
	msg, err := encode(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.enqueue(msg); errors.Is(err, ErrQueueFull) {
			h.logger.Warn("disconnecting slow client", "client_id", c.id, "event", event)
			h.remove(c)
		}
	}
	return nil
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their writers to stop.
// Later upgrade attempts are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.wg.Wait()
}

func encode(event string, payload any) ([]byte, error) {
	f := Frame{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Data = data
	}
	return json.Marshal(f)
}

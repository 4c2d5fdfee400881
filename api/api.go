// Package api exposes the relay over HTTP: the push channel, health probe,
// a REST mirror of the push channel requests and the audit event log.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/steamrelay/hub"
	"github.com/jmcleod/steamrelay/relay"
	"github.com/jmcleod/steamrelay/storage"
)

// API holds the dependencies needed by the HTTP and push channel handlers.
type API struct {
	relay  *relay.Relay
	bus    *hub.Hub
	events storage.EventLog
	logger *slog.Logger
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithEventLog exposes the audit event log at GET /events.
func WithEventLog(events storage.EventLog) Option {
	return func(a *API) {
		a.events = events
	}
}

// New creates a new API instance and registers it as the frame handler of
// bus.
func New(r *relay.Relay, bus *hub.Hub, opts ...Option) *API {
	a := &API{
		relay: r,
		bus:   bus,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.logger = a.logger.With("component", "api")
	if bus != nil {
		bus.Handle(a)
	}
	return a
}

// NewSink returns a relay.Sink broadcasting every inbound message to all
// push channel clients as a messageReceived event.
func NewSink(bus *hub.Hub, logger *slog.Logger) relay.Sink {
	return relay.SinkFunc(func(n relay.Notification) {
		if err := bus.Broadcast(EventMessageReceived, n); err != nil {
			logger.Error("broadcasting inbound message failed", "to", n.To, "error", err)
		}
	})
}

// Router returns a chi.Router with all versioned API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/sessions", a.ListSessions)
	r.Delete("/sessions/{username}", a.Logout)
	r.Get("/sessions/{username}/friends", a.ListFriends)
	r.Post("/messages", a.SendMessage)
	r.Get("/events", a.ListEvents)

	return r
}

// Health handles GET /health.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		ActiveAccounts: a.relay.ActiveAccounts(),
	})
}

// Push returns the push channel WebSocket handler.
func (a *API) Push() http.Handler {
	return a.bus
}

// Package relay bridges Steam friend messages and push-channel clients.
//
// Inbound, every session gets one pump goroutine that forwards its messages
// into a single relay loop, which publishes each message exactly once.
// Outbound, Send checks that the sender is logged in and that the receiver
// is one of the sender's friends before handing the message to the platform.
package relay

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/jmcleod/steamrelay/audit"
	"github.com/jmcleod/steamrelay/platform"
	"github.com/jmcleod/steamrelay/session"
)

// Notification is an inbound friend message addressed to one of the
// relay's accounts.
type Notification struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Message string `json:"message"`
}

// Sink receives inbound notifications. Publish must not block.
type Sink interface {
	Publish(n Notification)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Notification)

func (f SinkFunc) Publish(n Notification) { f(n) }

type envelope struct {
	session *session.Session
	msg     platform.InboundMessage
}

// Relay forwards messages between sessions and clients. It holds no state
// of its own beyond the fan-in channel.
type Relay struct {
	registry *session.Registry
	sink     Sink
	logger   *slog.Logger
	audit    *audit.Logger

	inbound chan envelope
	stop    chan struct{}
	stopped sync.Once
	pumps   sync.WaitGroup
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithAudit sets the audit logger for mediated sends and dropped sessions.
func WithAudit(al *audit.Logger) Option {
	return func(r *Relay) {
		r.audit = al
	}
}

// New creates a Relay publishing inbound messages to sink.
func New(registry *session.Registry, sink Sink, opts ...Option) *Relay {
	r := &Relay{
		registry: registry,
		sink:     sink,
		inbound:  make(chan envelope),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	r.logger = r.logger.With("component", "relay")
	return r
}

// Attach subscribes to the session's inbound messages and connection
// errors. It fails if the session was already attached.
func (r *Relay) Attach(s *session.Session) error {
	msgs, err := s.Subscribe()
	if err != nil {
		return err
	}
	r.pumps.Add(1)
	go r.pump(s, msgs)
	return nil
}

func (r *Relay) pump(s *session.Session, msgs <-chan platform.InboundMessage) {
	defer r.pumps.Done()
	errs := s.Client().Errors()
	for {
		select {
		case <-s.Done():
			return
		case <-r.stop:
			return
		case err := <-errs:
			r.dropSession(s, err)
			return
		case msg := <-msgs:
			select {
			case r.inbound <- envelope{session: s, msg: msg}:
			case <-s.Done():
				return
			case <-r.stop:
				return
			}
		}
	}
}

func (r *Relay) dropSession(s *session.Session, err error) {
	if !r.registry.Evict(s) {
		return
	}
	r.logger.Warn("account connection lost", "account", s.Identity(), "error", err)
	r.audit.Failure(context.Background(), audit.ConnectionLost, s.Identity(), err.Error())
}

// Run delivers inbound messages until ctx is cancelled. Pumps stop with it.
func (r *Relay) Run(ctx context.Context) error {
	defer r.stopped.Do(func() { close(r.stop) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-r.inbound:
			r.deliver(env)
		}
	}
}

func (r *Relay) deliver(env envelope) {
	n := Notification{
		To:      env.session.Identity(),
		From:    env.msg.From,
		Message: env.msg.Body,
	}
	delivered := env.session.Deliver(func() {
		r.sink.Publish(n)
	})
	if !delivered {
		r.logger.Debug("dropping message for closed session", "account", n.To)
		return
	}
	r.logger.Info("message received", "account", n.To, "from", n.From)
}

// Wait blocks until every session pump has exited.
func (r *Relay) Wait() {
	r.pumps.Wait()
}

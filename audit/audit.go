// Package audit records security-relevant relay events: account logins,
// logouts, dropped connections and message mediation outcomes.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmcleod/steamrelay/internal/uuid"
	"github.com/jmcleod/steamrelay/storage"
)

// Event identifies the type of action being logged.
type Event string

const (
	LoginSuccess       Event = "account_login_success"
	LoginFailure       Event = "account_login_failure"
	Logout             Event = "account_logout"
	ConnectionLost     Event = "account_connection_lost"
	SessionReplaced    Event = "account_session_replaced"
	MessageSent        Event = "message_sent"
	MessageRejected    Event = "message_rejected"
	ClientConnected    Event = "client_connected"
	ClientDisconnected Event = "client_disconnected"
)

// persisted lists the account lifecycle events written to the event log.
// Message and client events only go to the structured log.
var persisted = map[Event]bool{
	LoginSuccess:    true,
	LoginFailure:    true,
	Logout:          true,
	ConnectionLost:  true,
	SessionReplaced: true,
}

// Logger wraps slog.Logger for structured audit logging. A nil *Logger
// discards everything.
type Logger struct {
	logger  *slog.Logger
	store   storage.EventLog
	metrics *metricsCollector
	now     func() time.Time
}

// Option configures a Logger.
type Option func(*Logger)

// WithStore persists account lifecycle events to store.
func WithStore(store storage.EventLog) Option {
	return func(l *Logger) {
		l.store = store
	}
}

// WithAlerts enables anomaly detection; fn is called when a threshold trips.
func WithAlerts(fn AlertFunc) Option {
	return func(l *Logger) {
		l.metrics = newMetricsCollector(fn)
	}
}

// New returns an audit logger writing to logger.
func New(logger *slog.Logger, opts ...Option) *Logger {
	l := &Logger{
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record writes a structured audit entry for the given account.
func (l *Logger) Record(ctx context.Context, event Event, account string, attrs ...slog.Attr) {
	l.write(ctx, event, account, "", attrs...)
}

// Failure writes an audit entry carrying a failure reason.
func (l *Logger) Failure(ctx context.Context, event Event, account, reason string, attrs ...slog.Attr) {
	l.write(ctx, event, account, reason, attrs...)
}

func (l *Logger) write(ctx context.Context, event Event, account, reason string, attrs ...slog.Attr) {
	if l == nil {
		return
	}
	now := l.now().UTC()
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("timestamp", now.Format(time.RFC3339)),
	}
	if account != "" {
		baseAttrs = append(baseAttrs, slog.String("account", account))
	}
	if reason != "" {
		baseAttrs = append(baseAttrs, slog.String("reason", reason))
	}
	baseAttrs = append(baseAttrs, attrs...)
	l.logger.LogAttrs(ctx, slog.LevelInfo, "audit", baseAttrs...)

	if l.store != nil && persisted[event] {
		err := l.store.Append(storage.Event{
			ID:        uuid.New(),
			Type:      string(event),
			Account:   account,
			Detail:    reason,
			CreatedAt: now,
		})
		if err != nil {
			l.logger.Warn("audit: persisting event failed", "event", string(event), "error", err)
		}
	}
	if l.metrics != nil {
		l.metrics.recordEvent(event)
	}
}

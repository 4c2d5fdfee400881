// Package memory provides a thread-safe in-memory implementation of storage.EventLog.
package memory

import (
	"sync"

	"github.com/jmcleod/steamrelay/storage"
)

// EventLog is a thread-safe in-memory storage.EventLog.
// Suitable for testing and for running without a data directory.
type EventLog struct {
	mu     sync.RWMutex
	events []storage.Event
	closed bool
}

var _ storage.EventLog = (*EventLog)(nil)

// NewEventLog creates an empty in-memory EventLog.
func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Append(event storage.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return storage.ErrClosed
	}
	l.events = append(l.events, event)
	return nil
}

func (l *EventLog) List(limit, offset int) ([]storage.Event, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, 0, storage.ErrClosed
	}
	total := len(l.events)
	out := make([]storage.Event, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.events[i])
	}
	return out, total, nil
}

func (l *EventLog) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

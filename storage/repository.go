// Package storage provides the persistence abstraction for the account
// lifecycle event log. Message bodies are never stored.
package storage

import (
	"errors"
	"time"
)

// ErrClosed is returned by operations on a closed event log.
var ErrClosed = errors.New("event log closed")

// Event is one recorded account lifecycle event.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Account   string    `json:"account,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventLog is an append-only event store. List returns events newest first
// together with the total number of stored events.
type EventLog interface {
	Append(event Event) error
	List(limit, offset int) ([]Event, int, error)
	Close() error
}

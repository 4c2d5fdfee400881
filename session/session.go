// Package session tracks the live, logged-in Steam account sessions.
package session

import (
	"errors"
	"sync"

	"github.com/jmcleod/steamrelay/platform"
)

// ErrAlreadySubscribed is returned when a session's inbound messages are
// subscribed to a second time.
var ErrAlreadySubscribed = errors.New("session already subscribed")

// ErrSessionClosed is returned when subscribing to a closed session.
var ErrSessionClosed = errors.New("session closed")

// Session is one authenticated account connection. Identity and PlatformID
// never change for the lifetime of the Session.
type Session struct {
	identity   string
	platformID string
	client     platform.Client

	subscribed bool
	subMu      sync.Mutex

	// deliverMu orders inbound delivery against close: Deliver holds the
	// read side, close takes the write side, so once close returns no
	// delivery is running and none will start.
	deliverMu sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(identity, platformID string, client platform.Client) *Session {
	return &Session{
		identity:   identity,
		platformID: platformID,
		client:     client,
		done:       make(chan struct{}),
	}
}

func (s *Session) Identity() string        { return s.identity }
func (s *Session) PlatformID() string      { return s.platformID }
func (s *Session) Client() platform.Client { return s.client }

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Subscribe returns the session's inbound message channel. It succeeds
// exactly once per session.
func (s *Session) Subscribe() (<-chan platform.InboundMessage, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	select {
	case <-s.done:
		return nil, ErrSessionClosed
	default:
	}
	if s.subscribed {
		return nil, ErrAlreadySubscribed
	}
	s.subscribed = true
	return s.client.Messages(), nil
}

// Deliver runs fn unless the session has been closed and reports whether fn
// ran. Close waits for a running fn to return.
func (s *Session) Deliver(fn func()) bool {
	s.deliverMu.RLock()
	defer s.deliverMu.RUnlock()
	if s.closed {
		return false
	}
	fn()
	return true
}

// close logs the client off and blocks until any in-flight Deliver returns.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.client.LogOff()
		s.deliverMu.Lock()
		s.closed = true
		s.deliverMu.Unlock()
	})
}

// Summary is the public view of a session.
type Summary struct {
	Identity   string
	PlatformID string
}

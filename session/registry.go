package session

import (
	"sort"
	"sync"

	"github.com/jmcleod/steamrelay/platform"
)

// Registry maps account identities to their live sessions. All mutations are
// serialised by one lock so register, remove and evict are linearizable.
type Registry struct {
	mu   sync.RWMutex
	data map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{data: make(map[string]*Session)}
}

// Register stores a session for an already authenticated client, replacing
// any existing session for the identity. replaced reports whether a session
// was displaced; it is decided under the registry lock.
//
// Two concurrent logins for the same identity race here and the last one to
// register wins. The replaced session is closed (its client logged off)
// before Register returns, so only one session per identity is ever live.
func (r *Registry) Register(identity string, client platform.Client, platformID string) (s *Session, replaced bool) {
	s = newSession(identity, platformID, client)
	r.mu.Lock()
	prev := r.data[identity]
	r.data[identity] = s
	r.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	return s, prev != nil
}

// Lookup returns the live session for identity.
func (r *Registry) Lookup(identity string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.data[identity]
	r.mu.RUnlock()
	return s, ok
}

// List returns a snapshot of all sessions ordered by identity.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	out := make([]Summary, 0, len(r.data))
	for id, s := range r.data {
		out = append(out, Summary{Identity: id, PlatformID: s.platformID})
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity < out[j].Identity
	})
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Remove closes and removes the session for identity. It reports whether a
// session existed. Once Remove returns, no further inbound message for that
// session is delivered.
func (r *Registry) Remove(identity string) bool {
	r.mu.Lock()
	s, ok := r.data[identity]
	if ok {
		delete(r.data, identity)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.close()
	return true
}

// Evict removes s only if it is still the registered session for its
// identity. A session replaced by a newer login is closed but the newer
// session is left untouched.
func (r *Registry) Evict(s *Session) bool {
	r.mu.Lock()
	current, ok := r.data[s.identity]
	evicted := ok && current == s
	if evicted {
		delete(r.data, s.identity)
	}
	r.mu.Unlock()
	s.close()
	return evicted
}

// Close closes and removes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.data))
	for id, s := range r.data {
		sessions = append(sessions, s)
		delete(r.data, id)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}

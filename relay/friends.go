package relay

import (
	"context"
	"sort"

	"github.com/jmcleod/steamrelay/audit"
	"github.com/jmcleod/steamrelay/platform"
	"github.com/jmcleod/steamrelay/session"
)

// Presence labels reported for friends.
const (
	StateInGame  = "In-Game"
	StateOnline  = "Online"
	StateOffline = "Offline"
)

// Friend is one entry of an account's friends list.
type Friend struct {
	PlatformID string
	Name       string
	State      string
}

// presenceState picks the first matching label: in a game, then online,
// then offline. Away, busy and the other persona states count as offline.
func presenceState(p platform.Persona) string {
	switch {
	case p.InGame():
		return StateInGame
	case p.State == platform.PersonaOnline:
		return StateOnline
	default:
		return StateOffline
	}
}

// Friends returns the friends list of a logged-in account with each
// friend's presence. Platform errors degrade to an empty list.
func (r *Relay) Friends(ctx context.Context, identity string) ([]Friend, error) {
	s, ok := r.registry.Lookup(identity)
	if !ok {
		return nil, ErrAccountNotFound
	}
	client := s.Client()
	friends := []Friend{}

	ids, err := client.Friends(ctx)
	if err != nil {
		r.logger.Warn("friends lookup failed", "account", identity, "error", err)
		return friends, nil
	}
	if len(ids) == 0 {
		return friends, nil
	}
	personas, err := client.Personas(ctx, ids)
	if err != nil {
		r.logger.Warn("friends presence lookup failed", "account", identity, "error", err)
		return friends, nil
	}
	for id, p := range personas {
		friends = append(friends, Friend{PlatformID: id, Name: p.Name, State: presenceState(p)})
	}
	sort.Slice(friends, func(i, j int) bool {
		return friends[i].PlatformID < friends[j].PlatformID
	})
	return friends, nil
}

// Sessions returns the live sessions.
func (r *Relay) Sessions() []session.Summary {
	return r.registry.List()
}

// ActiveAccounts returns the number of live sessions.
func (r *Relay) ActiveAccounts() int {
	return r.registry.Len()
}

// Logout ends an account's session. It reports whether the account was
// logged in.
func (r *Relay) Logout(ctx context.Context, identity string) bool {
	if !r.registry.Remove(identity) {
		return false
	}
	r.logger.Info("account logged out", "account", identity)
	r.audit.Record(ctx, audit.Logout, identity)
	return true
}

// Package platform defines the capability contract the relay consumes from a
// Steam protocol client. One Client exists per logged-in account; the client
// owns the network connection and the relay only drives it through this
// interface.
package platform

import (
	"context"
	"errors"
)

// ErrLoggedOff is returned by client operations after LogOff.
var ErrLoggedOff = errors.New("client logged off")

// PersonaState is the Steam persona (presence) state of an account.
type PersonaState int

const (
	PersonaOffline PersonaState = iota
	PersonaOnline
	PersonaBusy
	PersonaAway
	PersonaSnooze
	PersonaLookingToTrade
	PersonaLookingToPlay
	PersonaInvisible
)

// Persona is the presence record returned for one platform ID.
type Persona struct {
	Name      string
	State     PersonaState
	GameAppID uint32
}

// InGame reports whether the persona is currently in a game.
func (p Persona) InGame() bool {
	return p.GameAppID != 0
}

// InboundMessage is a friend message received by a logged-in account.
type InboundMessage struct {
	From string
	To   string
	Body string
}

// LoginRequest carries the credentials for one login attempt. TwoFactorCode
// is empty when the account has no shared secret configured.
type LoginRequest struct {
	AccountName   string
	Password      string
	TwoFactorCode string
}

// LoginResult describes a successful login.
type LoginResult struct {
	PlatformID string
}

// Client is the per-account protocol client.
//
// Login blocks until the platform accepts or rejects the credentials. After a
// successful login the client delivers friend messages on Messages and fatal
// connection failures on Errors until LogOff is called. Both channels are
// owned by the client and are never closed while the client is logged on.
type Client interface {
	Login(ctx context.Context, req LoginRequest) (LoginResult, error)
	SetPersonaState(ctx context.Context, state PersonaState) error
	// Personas looks up presence for the given platform IDs. IDs the
	// account has no relationship with are absent from the result.
	Personas(ctx context.Context, ids []string) (map[string]Persona, error)
	// Friends returns the platform IDs of the account's confirmed friends.
	Friends(ctx context.Context) ([]string, error)
	SendMessage(ctx context.Context, to, body string) error
	Messages() <-chan InboundMessage
	Errors() <-chan error
	LogOff()
}

// Connector creates a fresh, not yet logged-in Client for an account.
type Connector interface {
	NewClient(accountName string) Client
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(accountName string) Client

func (f ConnectorFunc) NewClient(accountName string) Client {
	return f(accountName)
}

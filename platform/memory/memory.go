// Package memory provides an in-process Steam network. It backs the relay's
// tests and the server's --simulate mode: accounts, friendships and presence
// live in memory, friend messages are routed between logged-in clients, and
// every client call is counted so tests can assert on adapter traffic.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/steamrelay/account"
	"github.com/jmcleod/steamrelay/platform"
)

var (
	// ErrInvalidPassword is returned by Login for a wrong account name or password.
	ErrInvalidPassword = errors.New("InvalidPassword")
	// ErrTwoFactorMismatch is returned by Login for a wrong Steam Guard code.
	ErrTwoFactorMismatch = errors.New("TwoFactorCodeMismatch")
	// ErrNotLoggedOn is returned by client calls made before a successful Login.
	ErrNotLoggedOn = errors.New("not logged on")
	// ErrAccountExists is returned when adding a duplicate account name.
	ErrAccountExists = errors.New("account already exists")
	// ErrLoggedInElsewhere is reported on Errors when the account logs in
	// from another client.
	ErrLoggedInElsewhere = errors.New("LoggedInElsewhere")
	// ErrUnknownAccount is returned for operations naming an unknown account.
	ErrUnknownAccount = errors.New("unknown account")
)

const (
	messageBuffer = 64
	firstAccount  = 10000
)

type profile struct {
	name         string
	passwordHash []byte
	sharedSecret string
	id           platform.ID
	persona      platform.Persona
	friends      map[string]struct{}
}

// Network is a simulated Steam network.
type Network struct {
	mu       sync.Mutex
	accounts map[string]*profile
	byID     map[string]*profile
	online   map[string]*Client
	nextID   uint32
	now      func() time.Time

	// failure injection and call accounting, keyed by account name
	gates       map[string]chan struct{}
	personaErr  map[string]error
	friendsErr  map[string]error
	sendErr     map[string]error
	personaCall map[string]int
	sendCall    map[string]int
	sent        map[string][]platform.InboundMessage
	logoffs     map[string]int
}

var _ platform.Connector = (*Network)(nil)

// Option configures a Network.
type Option func(*Network)

// WithClock overrides the time source used to verify Steam Guard codes.
func WithClock(now func() time.Time) Option {
	return func(n *Network) {
		n.now = now
	}
}

// NewNetwork returns an empty network.
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		accounts:    make(map[string]*profile),
		byID:        make(map[string]*profile),
		online:      make(map[string]*Client),
		nextID:      firstAccount,
		now:         time.Now,
		gates:       make(map[string]chan struct{}),
		personaErr:  make(map[string]error),
		friendsErr:  make(map[string]error),
		sendErr:     make(map[string]error),
		personaCall: make(map[string]int),
		sendCall:    make(map[string]int),
		sent:        make(map[string][]platform.InboundMessage),
		logoffs:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// AddAccount creates an account and returns its SteamID64. When sharedSecret
// is non-empty, logins must present the matching Steam Guard code.
func (n *Network) AddAccount(name, password, sharedSecret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.accounts[name]; ok {
		return "", fmt.Errorf("%s: %w", name, ErrAccountExists)
	}
	n.nextID++
	a := &profile{
		name:         name,
		passwordHash: hash,
		sharedSecret: sharedSecret,
		id:           platform.NewIndividualID(n.nextID),
		persona:      platform.Persona{Name: name},
		friends:      make(map[string]struct{}),
	}
	n.accounts[name] = a
	n.byID[a.id.String()] = a
	return a.id.String(), nil
}

// AddFriends makes two accounts mutual friends.
func (n *Network) AddFriends(a, b string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	accA, ok := n.accounts[a]
	if !ok {
		return fmt.Errorf("%s: %w", a, ErrUnknownAccount)
	}
	accB, ok := n.accounts[b]
	if !ok {
		return fmt.Errorf("%s: %w", b, ErrUnknownAccount)
	}
	accA.friends[accB.id.String()] = struct{}{}
	accB.friends[accA.id.String()] = struct{}{}
	return nil
}

// RemoveFriends ends a friendship in both directions.
func (n *Network) RemoveFriends(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	accA, okA := n.accounts[a]
	accB, okB := n.accounts[b]
	if !okA || !okB {
		return
	}
	delete(accA.friends, accB.id.String())
	delete(accB.friends, accA.id.String())
}

// SetPersona replaces the presence an account reports. The persona name
// defaults to the account name.
func (n *Network) SetPersona(name string, p platform.Persona) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if a, ok := n.accounts[name]; ok {
		a.persona = p
	}
}

// HoldLogin makes logins for the account block until the returned release
// function is called.
func (n *Network) HoldLogin(name string) (release func()) {
	gate := make(chan struct{})
	n.mu.Lock()
	n.gates[name] = gate
	n.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() { close(gate) })
	}
}

// FailPersonas makes the account's presence lookups fail with err (nil clears).
func (n *Network) FailPersonas(name string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.personaErr[name] = err
}

// FailFriends makes the account's friend list lookups fail with err (nil clears).
func (n *Network) FailFriends(name string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.friendsErr[name] = err
}

// FailSend makes the account's sends fail with err (nil clears).
func (n *Network) FailSend(name string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErr[name] = err
}

// Deliver routes a friend message from the given platform ID to the named
// account's logged-in client. It reports whether a client received it.
func (n *Network) Deliver(ctx context.Context, fromID, to, body string) bool {
	n.mu.Lock()
	acct, ok := n.accounts[to]
	var c *Client
	if ok {
		c = n.online[acct.id.String()]
	}
	n.mu.Unlock()
	if c == nil {
		return false
	}
	return c.deliver(ctx, platform.InboundMessage{From: fromID, To: to, Body: body})
}

// Disconnect reports a fatal connection error to the named account's client.
func (n *Network) Disconnect(name string, err error) bool {
	n.mu.Lock()
	acct, ok := n.accounts[name]
	var c *Client
	if ok {
		c = n.online[acct.id.String()]
	}
	n.mu.Unlock()
	if c == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.errs <- err:
	default:
		// an earlier error is still pending; the session is already doomed
	}
	return true
}

// SendCalls returns how many times the account's client invoked SendMessage.
func (n *Network) SendCalls(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sendCall[name]
}

// PersonaCalls returns how many presence lookups the account's client made.
func (n *Network) PersonaCalls(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.personaCall[name]
}

// LogOffs returns how many times a client for the account logged off.
func (n *Network) LogOffs(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.logoffs[name]
}

// Sent returns the messages the account's clients successfully sent.
func (n *Network) Sent(name string) []platform.InboundMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]platform.InboundMessage(nil), n.sent[name]...)
}

// Online reports whether the named account has a logged-in client.
func (n *Network) Online(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	a, ok := n.accounts[name]
	if !ok {
		return false
	}
	_, online := n.online[a.id.String()]
	return online
}

// NewClient returns a client for the named account.
func (n *Network) NewClient(accountName string) platform.Client {
	return &Client{
		net:      n,
		name:     accountName,
		messages: make(chan platform.InboundMessage, messageBuffer),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (n *Network) checkGuardCode(a *profile, code string) bool {
	now := n.now()
	for _, at := range []time.Time{now, now.Add(-30 * time.Second)} {
		expected, err := account.GuardCode(a.sharedSecret, at)
		if err == nil && expected == code {
			return true
		}
	}
	return false
}

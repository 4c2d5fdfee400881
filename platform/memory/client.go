package memory

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/steamrelay/platform"
)

// Client is a simulated per-account protocol client.
type Client struct {
	net  *Network
	name string

	mu   sync.Mutex
	acct *profile

	messages chan platform.InboundMessage
	errs     chan error
	done     chan struct{}
	stopOnce sync.Once
}

var _ platform.Client = (*Client)(nil)

func (c *Client) Login(ctx context.Context, req platform.LoginRequest) (platform.LoginResult, error) {
	c.net.mu.Lock()
	gate := c.net.gates[req.AccountName]
	c.net.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return platform.LoginResult{}, ctx.Err()
		}
	}

	c.net.mu.Lock()
	defer c.net.mu.Unlock()

	a, ok := c.net.accounts[req.AccountName]
	if !ok {
		return platform.LoginResult{}, ErrInvalidPassword
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password)); err != nil {
		return platform.LoginResult{}, ErrInvalidPassword
	}
	if a.sharedSecret != "" && !c.net.checkGuardCode(a, req.TwoFactorCode) {
		return platform.LoginResult{}, ErrTwoFactorMismatch
	}
	select {
	case <-c.done:
		return platform.LoginResult{}, platform.ErrLoggedOff
	default:
	}

	id := a.id.String()
	if prev, ok := c.net.online[id]; ok && prev != c {
		// Steam drops the older connection when the same account logs in again.
		go prev.fail(ErrLoggedInElsewhere)
	}
	c.net.online[id] = c

	c.mu.Lock()
	c.acct = a
	c.mu.Unlock()
	return platform.LoginResult{PlatformID: id}, nil
}

func (c *Client) SetPersonaState(ctx context.Context, state platform.PersonaState) error {
	a, err := c.account()
	if err != nil {
		return err
	}
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	a.persona.State = state
	return nil
}

func (c *Client) Personas(ctx context.Context, ids []string) (map[string]platform.Persona, error) {
	a, err := c.account()
	if err != nil {
		return nil, err
	}
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	c.net.personaCall[c.name]++
	if err := c.net.personaErr[c.name]; err != nil {
		return nil, err
	}
	out := make(map[string]platform.Persona, len(ids))
	for _, id := range ids {
		if _, friend := a.friends[id]; !friend && id != a.id.String() {
			continue
		}
		if other, ok := c.net.byID[id]; ok {
			out[id] = other.persona
		}
	}
	return out, nil
}

func (c *Client) Friends(ctx context.Context) ([]string, error) {
	a, err := c.account()
	if err != nil {
		return nil, err
	}
	c.net.mu.Lock()
	defer c.net.mu.Unlock()
	if err := c.net.friendsErr[c.name]; err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(a.friends))
	for id := range a.friends {
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *Client) SendMessage(ctx context.Context, to, body string) error {
	a, err := c.account()
	if err != nil {
		return err
	}
	c.net.mu.Lock()
	c.net.sendCall[c.name]++
	if err := c.net.sendErr[c.name]; err != nil {
		c.net.mu.Unlock()
		return err
	}
	c.net.sent[c.name] = append(c.net.sent[c.name], platform.InboundMessage{From: a.id.String(), To: to, Body: body})
	recipient := c.net.online[to]
	c.net.mu.Unlock()

	if recipient != nil {
		recipient.deliver(ctx, platform.InboundMessage{From: a.id.String(), To: recipient.name, Body: body})
	}
	return nil
}

func (c *Client) Messages() <-chan platform.InboundMessage { return c.messages }

func (c *Client) Errors() <-chan error { return c.errs }

func (c *Client) LogOff() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.net.mu.Lock()
		defer c.net.mu.Unlock()
		c.net.logoffs[c.name]++
		c.mu.Lock()
		a := c.acct
		c.mu.Unlock()
		if a != nil && c.net.online[a.id.String()] == c {
			delete(c.net.online, a.id.String())
		}
	})
}

func (c *Client) account() (*profile, error) {
	select {
	case <-c.done:
		return nil, platform.ErrLoggedOff
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acct == nil {
		return nil, ErrNotLoggedOn
	}
	return c.acct, nil
}

func (c *Client) deliver(ctx context.Context, msg platform.InboundMessage) bool {
	select {
	case c.messages <- msg:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Client) fail(err error) {
	select {
	case c.errs <- err:
	case <-c.done:
	default:
	}
}

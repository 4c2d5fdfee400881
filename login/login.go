// Package login authenticates the configured accounts and registers each
// successful login as a session.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/steamrelay/account"
	"github.com/jmcleod/steamrelay/audit"
	"github.com/jmcleod/steamrelay/platform"
	"github.com/jmcleod/steamrelay/session"
)

// ErrAuthenticationFailed wraps every per-account login failure.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Attacher starts consuming a newly registered session's inbound messages.
type Attacher interface {
	Attach(s *session.Session) error
}

// Result is the settled outcome of one login attempt.
type Result struct {
	Identity   string
	PlatformID string
	Err        error
}

// OK reports whether the attempt succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Authenticator logs accounts in and registers them.
type Authenticator struct {
	connector platform.Connector
	registry  *session.Registry
	attacher  Attacher
	logger    *slog.Logger
	audit     *audit.Logger
	now       func() time.Time
	limit     int
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// WithAudit sets the audit logger for login outcomes.
func WithAudit(al *audit.Logger) Option {
	return func(a *Authenticator) {
		a.audit = al
	}
}

// WithClock overrides the time source used for Steam Guard codes.
func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		a.now = now
	}
}

// WithConcurrency caps the number of logins in flight. Zero or a negative
// value means no cap.
func WithConcurrency(n int) Option {
	return func(a *Authenticator) {
		a.limit = n
	}
}

// New creates an Authenticator. attacher is invoked once for every session
// the Authenticator registers.
func New(connector platform.Connector, registry *session.Registry, attacher Attacher, opts ...Option) *Authenticator {
	a := &Authenticator{
		connector: connector,
		registry:  registry,
		attacher:  attacher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	a.logger = a.logger.With("component", "login")
	return a
}

// Run logs every credential in concurrently and returns once all attempts
// have settled. Results are in credential order. A failed or slow attempt
// never blocks or cancels its siblings.
func (a *Authenticator) Run(ctx context.Context, creds []*account.Credential) []Result {
	a.logger.Info("starting account initialization", "accounts", len(creds))

	results := make([]Result, len(creds))
	// Not errgroup.WithContext: one failure must not cancel the others.
	var g errgroup.Group
	if a.limit > 0 {
		g.SetLimit(a.limit)
	}
	for i, c := range creds {
		g.Go(func() error {
			results[i] = a.Login(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for i, r := range results {
		if r.OK() {
			ok++
			a.logger.Info("account logged in", "index", i+1, "account", r.Identity, "steam_id", r.PlatformID)
		} else {
			a.logger.Error("account login failed", "index", i+1, "account", r.Identity, "error", r.Err)
		}
	}
	a.logger.Info("account initialization complete", "succeeded", ok, "failed", len(results)-ok)
	return results
}

// Login performs a single login attempt and registers the session on success.
func (a *Authenticator) Login(ctx context.Context, c *account.Credential) Result {
	identity := c.Identity()
	a.logger.Info("logging in", "account", identity, "two_factor", c.HasSharedSecret())

	res, err := a.login(ctx, c)
	if err != nil {
		a.audit.Failure(ctx, audit.LoginFailure, identity, err.Error())
		return Result{
			Identity: identity,
			Err:      fmt.Errorf("%w: %s: %w", ErrAuthenticationFailed, identity, err),
		}
	}
	a.audit.Record(ctx, audit.LoginSuccess, identity, slog.String("steam_id", res.PlatformID))
	return res
}

func (a *Authenticator) login(ctx context.Context, c *account.Credential) (Result, error) {
	password, err := c.Password()
	if err != nil {
		return Result{}, err
	}
	// Guard codes are valid for one 30 second window; generate per attempt.
	code, err := c.GuardCode(a.now())
	if err != nil {
		return Result{}, fmt.Errorf("generating steam guard code: %w", err)
	}

	client := a.connector.NewClient(c.Identity())
	res, err := client.Login(ctx, platform.LoginRequest{
		AccountName:   c.Identity(),
		Password:      password,
		TwoFactorCode: code,
	})
	if err != nil {
		client.LogOff()
		return Result{}, err
	}

	if err := client.SetPersonaState(ctx, platform.PersonaOnline); err != nil {
		a.logger.Warn("setting persona state failed", "account", c.Identity(), "error", err)
	}

	s, replaced := a.registry.Register(c.Identity(), client, res.PlatformID)
	if replaced {
		a.audit.Record(ctx, audit.SessionReplaced, c.Identity())
	}
	if err := a.attacher.Attach(s); err != nil {
		a.registry.Evict(s)
		return Result{}, fmt.Errorf("attaching session: %w", err)
	}
	return Result{Identity: c.Identity(), PlatformID: res.PlatformID}, nil
}

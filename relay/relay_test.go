package relay_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/steamrelay/platform"
	"github.com/jmcleod/steamrelay/platform/memory"
	"github.com/jmcleod/steamrelay/relay"
	"github.com/jmcleod/steamrelay/session"
)

type recordingSink struct {
	mu    sync.Mutex
	items []relay.Notification
	got   chan relay.Notification
}

func newRecordingSink() *recordingSink {
	return &recordingSink{got: make(chan relay.Notification, 16)}
}

func (s *recordingSink) Publish(n relay.Notification) {
	s.mu.Lock()
	s.items = append(s.items, n)
	s.mu.Unlock()
	s.got <- n
}

func (s *recordingSink) all() []relay.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]relay.Notification(nil), s.items...)
}

type fixture struct {
	net      *memory.Network
	registry *session.Registry
	relay    *relay.Relay
	sink     *recordingSink
	ids      map[string]string
}

func newFixture(t *testing.T, accounts ...string) *fixture {
	t.Helper()
	f := &fixture{
		net:      memory.NewNetwork(),
		registry: session.NewRegistry(),
		sink:     newRecordingSink(),
		ids:      make(map[string]string),
	}
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	f.relay = relay.New(f.registry, f.sink, relay.WithLogger(logger))
	for _, name := range accounts {
		id, err := f.net.AddAccount(name, "pw", "")
		require.NoError(t, err)
		f.ids[name] = id
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.relay.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		f.registry.Close()
		f.relay.Wait()
	})
	return f
}

func (f *fixture) login(t *testing.T, name string) *session.Session {
	t.Helper()
	c := f.net.NewClient(name)
	res, err := c.Login(t.Context(), platform.LoginRequest{AccountName: name, Password: "pw"})
	require.NoError(t, err)
	s, _ := f.registry.Register(name, c, res.PlatformID)
	require.NoError(t, f.relay.Attach(s))
	return s
}

func (f *fixture) next(t *testing.T) relay.Notification {
	t.Helper()
	select {
	case n := <-f.sink.got:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return relay.Notification{}
	}
}

func TestInboundMessageBroadcastOnce(t *testing.T) {
	f := newFixture(t, "alice", "carol")
	f.login(t, "alice")

	require.True(t, f.net.Deliver(t.Context(), f.ids["carol"], "alice", "hello"))
	n := f.next(t)
	assert.Equal(t, relay.Notification{To: "alice", From: f.ids["carol"], Message: "hello"}, n)

	require.True(t, f.net.Deliver(t.Context(), f.ids["carol"], "alice", "again"))
	f.next(t)
	assert.Len(t, f.sink.all(), 2, "one notification per message")
}

func TestInboundInterleavesAcrossSessions(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	f.login(t, "alice")
	f.login(t, "bob")

	for i := 0; i < 3; i++ {
		require.True(t, f.net.Deliver(t.Context(), f.ids["carol"], "alice", "a"))
		require.True(t, f.net.Deliver(t.Context(), f.ids["carol"], "bob", "b"))
	}
	counts := map[string]int{}
	for i := 0; i < 6; i++ {
		counts[f.next(t).To]++
	}
	assert.Equal(t, map[string]int{"alice": 3, "bob": 3}, counts)
}

func TestAttachTwiceFails(t *testing.T) {
	f := newFixture(t, "alice")
	s := f.login(t, "alice")
	assert.ErrorIs(t, f.relay.Attach(s), session.ErrAlreadySubscribed)
}

func TestNoInboundAfterLogout(t *testing.T) {
	f := newFixture(t, "alice", "carol")
	f.login(t, "alice")

	assert.True(t, f.relay.Logout(t.Context(), "alice"))
	assert.False(t, f.relay.Logout(t.Context(), "alice"))
	_, ok := f.registry.Lookup("alice")
	assert.False(t, ok)

	assert.False(t, f.net.Deliver(t.Context(), f.ids["carol"], "alice", "too late"))
	select {
	case n := <-f.sink.got:
		t.Fatalf("unexpected notification after logout: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectionErrorEvictsSession(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.login(t, "alice")
	f.login(t, "bob")

	require.True(t, f.net.Disconnect("alice", errors.New("connection reset")))
	require.Eventually(t, func() bool {
		_, ok := f.registry.Lookup("alice")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	_, ok := f.registry.Lookup("bob")
	assert.True(t, ok, "other sessions are unaffected")
	assert.Equal(t, 1, f.relay.ActiveAccounts())
}

func TestReloginKeepsNewSessionOnOldError(t *testing.T) {
	f := newFixture(t, "alice")
	first := f.login(t, "alice")
	second := f.login(t, "alice")
	require.NotSame(t, first, second)

	// The first client is told it was logged in elsewhere; that must not
	// evict the replacement session.
	time.Sleep(20 * time.Millisecond)
	got, ok := f.registry.Lookup("alice")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestSessions(t *testing.T) {
	f := newFixture(t, "bob", "alice")
	f.login(t, "bob")
	f.login(t, "alice")
	assert.Equal(t, []session.Summary{
		{Identity: "alice", PlatformID: f.ids["alice"]},
		{Identity: "bob", PlatformID: f.ids["bob"]},
	}, f.relay.Sessions())
}

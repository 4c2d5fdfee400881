package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/steamrelay/account"
	"github.com/jmcleod/steamrelay/api"
	"github.com/jmcleod/steamrelay/audit"
	"github.com/jmcleod/steamrelay/hub"
	"github.com/jmcleod/steamrelay/login"
	"github.com/jmcleod/steamrelay/platform"
	"github.com/jmcleod/steamrelay/platform/memory"
	"github.com/jmcleod/steamrelay/relay"
	"github.com/jmcleod/steamrelay/session"
	storagememory "github.com/jmcleod/steamrelay/storage/memory"
)

type testEnv struct {
	srv     *httptest.Server
	net     *memory.Network
	bus     *hub.Hub
	ids     map[string]string
	results []login.Result
}

// setupServer logs in alice, bob and carol. alice and bob are friends.
func setupServer(t *testing.T) *testEnv {
	t.Helper()
	env := setupServerWithPasswords(t, nil)
	for _, r := range env.results {
		require.True(t, r.OK(), "%s: %v", r.Identity, r.Err)
	}
	return env
}

// setupServerWithPasswords is setupServer with the configured password of
// some accounts replaced, so their logins fail.
func setupServerWithPasswords(t *testing.T, configured map[string]string) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	events := storagememory.NewEventLog()
	al := audit.New(logger, audit.WithStore(events))

	env := &testEnv{net: memory.NewNetwork(), ids: make(map[string]string)}
	var creds []*account.Credential
	for _, name := range []string{"alice", "bob", "carol"} {
		id, err := env.net.AddAccount(name, "pw-"+name, "")
		require.NoError(t, err)
		env.ids[name] = id
		password := "pw-" + name
		if pw, ok := configured[name]; ok {
			password = pw
		}
		c, err := account.NewCredential(name, password, "")
		require.NoError(t, err)
		creds = append(creds, c)
	}
	require.NoError(t, env.net.AddFriends("alice", "bob"))

	registry := session.NewRegistry()
	env.bus = hub.New(hub.WithLogger(logger), hub.WithAudit(al))
	rl := relay.New(registry, api.NewSink(env.bus, logger), relay.WithLogger(logger), relay.WithAudit(al))
	a := api.New(rl, env.bus, api.WithLogger(logger), api.WithEventLog(events))

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = rl.Run(ctx) }()

	env.results = login.New(env.net, registry, rl, login.WithLogger(logger), login.WithAudit(al)).Run(ctx, creds)
	account.DestroyAll(creds)

	r := chi.NewRouter()
	r.Use(api.SecurityHeaders)
	r.Use(api.CORS)
	r.Get("/health", a.Health)
	r.Handle("/ws", a.Push())
	r.Mount("/api/v1", a.Router())
	env.srv = httptest.NewServer(r)

	t.Cleanup(func() {
		env.bus.Close()
		env.srv.Close()
		cancel()
		registry.Close()
		rl.Wait()
	})
	return env
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.bus.Len() > 0 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

func read(t *testing.T, conn *websocket.Conn) hub.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f hub.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func errorMessage(t *testing.T, f hub.Frame) string {
	t.Helper()
	require.Equal(t, "error", f.Event)
	var p hub.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Data, &p))
	return p.Message
}

func TestHealth(t *testing.T) {
	env := setupServer(t)
	resp := doJSON(t, http.MethodGet, env.srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	health := decode[api.HealthResponse](t, resp)
	assert.Equal(t, api.HealthResponse{Status: "ok", ActiveAccounts: 3}, health)
}

func TestHealthCountsOnlySuccessfulLogins(t *testing.T) {
	env := setupServerWithPasswords(t, map[string]string{"bob": "wrong", "carol": "wrong"})
	require.Len(t, env.results, 3)
	assert.True(t, env.results[0].OK())
	assert.ErrorIs(t, env.results[1].Err, login.ErrAuthenticationFailed)
	assert.ErrorIs(t, env.results[2].Err, login.ErrAuthenticationFailed)

	resp := doJSON(t, http.MethodGet, env.srv.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, api.HealthResponse{Status: "ok", ActiveAccounts: 1}, decode[api.HealthResponse](t, resp))

	resp = doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/sessions", nil)
	assert.Equal(t, []api.SessionResponse{{Username: "alice", SteamID: env.ids["alice"]}},
		decode[[]api.SessionResponse](t, resp))
}

func TestCORSPreflight(t *testing.T) {
	env := setupServer(t)
	req, err := http.NewRequestWithContext(t.Context(), http.MethodOptions, env.srv.URL+"/api/v1/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestListSessions(t *testing.T) {
	env := setupServer(t)
	resp := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessions := decode[[]api.SessionResponse](t, resp)
	assert.Equal(t, []api.SessionResponse{
		{Username: "alice", SteamID: env.ids["alice"]},
		{Username: "bob", SteamID: env.ids["bob"]},
		{Username: "carol", SteamID: env.ids["carol"]},
	}, sessions)
}

func TestSendMessageREST(t *testing.T) {
	env := setupServer(t)
	resp := doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/messages", api.SendMessageRequest{
		SenderLogin: "alice", ReceiverSteamID: env.ids["bob"], Message: "hi bob",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, api.MessageSentResponse{Success: true, To: env.ids["bob"], Message: "hi bob"},
		decode[api.MessageSentResponse](t, resp))

	sent := env.net.Sent("alice")
	require.Len(t, sent, 1)
	assert.Equal(t, platform.InboundMessage{From: env.ids["alice"], To: env.ids["bob"], Body: "hi bob"}, sent[0])
}

func TestSendMessageRESTErrors(t *testing.T) {
	env := setupServer(t)
	env.net.FailSend("bob", errors.New("RateLimitExceeded"))

	tests := []struct {
		name       string
		req        api.SendMessageRequest
		wantStatus int
		wantError  string
	}{
		{"unknown sender", api.SendMessageRequest{SenderLogin: "mallory", ReceiverSteamID: env.ids["bob"], Message: "x"},
			http.StatusUnauthorized, "Sender not authenticated"},
		{"missing receiver", api.SendMessageRequest{SenderLogin: "alice", Message: "x"},
			http.StatusBadRequest, "Invalid receiver Steam ID"},
		{"malformed receiver", api.SendMessageRequest{SenderLogin: "alice", ReceiverSteamID: "not-an-id", Message: "x"},
			http.StatusBadRequest, "Invalid Steam ID format"},
		{"not a friend", api.SendMessageRequest{SenderLogin: "alice", ReceiverSteamID: env.ids["carol"], Message: "x"},
			http.StatusForbidden, "Cannot send message: User is not in your friends list"},
		{"platform failure", api.SendMessageRequest{SenderLogin: "bob", ReceiverSteamID: env.ids["alice"], Message: "x"},
			http.StatusBadGateway, "Failed to send message: RateLimitExceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/messages", tt.req)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantError, decode[api.ErrorResponse](t, resp).Error)
		})
	}
	assert.Zero(t, env.net.SendCalls("alice"), "rejected sends never reach the platform")
}

func TestSendMessageRESTBadBody(t *testing.T) {
	env := setupServer(t)
	resp, err := http.Post(env.srv.URL+"/api/v1/messages", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendMessageRESTMistypedReceiver(t *testing.T) {
	env := setupServer(t)

	resp := doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/messages",
		map[string]any{"senderLogin": "ghost", "receiverSteamId": 123, "message": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Sender not authenticated", decode[api.ErrorResponse](t, resp).Error)

	resp = doJSON(t, http.MethodPost, env.srv.URL+"/api/v1/messages",
		map[string]any{"senderLogin": "alice", "receiverSteamId": 123, "message": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid receiver Steam ID", decode[api.ErrorResponse](t, resp).Error)
}

func TestListFriends(t *testing.T) {
	env := setupServer(t)
	env.net.SetPersona("bob", platform.Persona{Name: "Bobby", State: platform.PersonaOnline, GameAppID: 440})

	resp := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/sessions/alice/friends", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []api.FriendResponse{{SteamID: env.ids["bob"], Name: "Bobby", State: "In-Game"}},
		decode[[]api.FriendResponse](t, resp))

	resp = doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/sessions/mallory/friends", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Account not found", decode[api.ErrorResponse](t, resp).Error)
}

func TestLogout(t *testing.T) {
	env := setupServer(t)
	resp := doJSON(t, http.MethodDelete, env.srv.URL+"/api/v1/sessions/carol", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, env.net.Online("carol"))

	resp = doJSON(t, http.MethodDelete, env.srv.URL+"/api/v1/sessions/carol", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, env.srv.URL+"/health", nil)
	assert.Equal(t, 2, decode[api.HealthResponse](t, resp).ActiveAccounts)
}

func TestListEvents(t *testing.T) {
	env := setupServer(t)
	doJSON(t, http.MethodDelete, env.srv.URL+"/api/v1/sessions/carol", nil)

	resp := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/events?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[api.ListEventsResponse](t, resp)
	assert.Equal(t, 4, list.TotalCount)
	assert.Equal(t, 2, list.Limit)
	assert.True(t, list.HasMore)
	require.Len(t, list.Events, 2)
	assert.Equal(t, string(audit.Logout), list.Events[0].Type)
	assert.Equal(t, "carol", list.Events[0].Account)
	assert.Equal(t, string(audit.LoginSuccess), list.Events[1].Type)
}

func TestListEventsWithoutLog(t *testing.T) {
	a := api.New(relay.New(session.NewRegistry(), relay.SinkFunc(func(relay.Notification) {})), nil)
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOpenAPISpecServed(t *testing.T) {
	env := setupServer(t)
	resp := doJSON(t, http.MethodGet, env.srv.URL+"/api/v1/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/yaml", resp.Header.Get("Content-Type"))
}

func TestPushActiveSessions(t *testing.T) {
	env := setupServer(t)
	conn := env.dial(t)

	emit(t, conn, api.EventGetActiveSessions, nil)
	f := read(t, conn)
	require.Equal(t, api.EventActiveSessions, f.Event)
	var sessions []api.SessionResponse
	require.NoError(t, json.Unmarshal(f.Data, &sessions))
	require.Len(t, sessions, 3)
	assert.Equal(t, api.SessionResponse{Username: "alice", SteamID: env.ids["alice"]}, sessions[0])
}

func TestPushGetFriends(t *testing.T) {
	env := setupServer(t)
	conn := env.dial(t)

	emit(t, conn, api.EventGetFriends, "bob")
	f := read(t, conn)
	require.Equal(t, api.EventFriendsList, f.Event)
	var friends []api.FriendResponse
	require.NoError(t, json.Unmarshal(f.Data, &friends))
	assert.Equal(t, []api.FriendResponse{{SteamID: env.ids["alice"], Name: "alice", State: "Online"}}, friends)

	emit(t, conn, api.EventGetFriends, "mallory")
	assert.Equal(t, "Account not found", errorMessage(t, read(t, conn)))

	emit(t, conn, api.EventGetFriends, map[string]string{"username": "bob"})
	assert.Equal(t, "Account not found", errorMessage(t, read(t, conn)))

	emit(t, conn, api.EventGetFriends, 42)
	assert.Equal(t, "Account not found", errorMessage(t, read(t, conn)))
}

func TestPushSendMessageErrorsKeepConnection(t *testing.T) {
	env := setupServer(t)
	conn := env.dial(t)

	emit(t, conn, api.EventSendMessage, api.SendMessageRequest{SenderLogin: "mallory", ReceiverSteamID: env.ids["bob"], Message: "x"})
	assert.Equal(t, "Sender not authenticated", errorMessage(t, read(t, conn)))

	emit(t, conn, api.EventSendMessage, api.SendMessageRequest{SenderLogin: "alice", ReceiverSteamID: "", Message: "x"})
	assert.Equal(t, "Invalid receiver Steam ID", errorMessage(t, read(t, conn)))

	emit(t, conn, api.EventSendMessage, api.SendMessageRequest{SenderLogin: "alice", ReceiverSteamID: "76561197960265728x", Message: "x"})
	assert.Equal(t, "Invalid Steam ID format", errorMessage(t, read(t, conn)))

	emit(t, conn, api.EventSendMessage, api.SendMessageRequest{SenderLogin: "alice", ReceiverSteamID: env.ids["carol"], Message: "x"})
	assert.Equal(t, "Cannot send message: User is not in your friends list", errorMessage(t, read(t, conn)))

	emit(t, conn, "launchMissiles", nil)
	assert.Equal(t, "Unknown event: launchMissiles", errorMessage(t, read(t, conn)))

	assert.Zero(t, env.net.SendCalls("alice"))

	// Still connected and served.
	emit(t, conn, api.EventGetActiveSessions, nil)
	assert.Equal(t, api.EventActiveSessions, read(t, conn).Event)
}

func TestPushSendMessageMistypedFieldsKeepCheckOrder(t *testing.T) {
	env := setupServer(t)
	conn := env.dial(t)

	tests := []struct {
		name string
		data any
		want string
	}{
		{"unknown sender with numeric receiver", map[string]any{"senderLogin": "ghost", "receiverSteamId": 123, "message": "x"},
			"Sender not authenticated"},
		{"numeric sender", map[string]any{"senderLogin": 7, "receiverSteamId": env.ids["bob"], "message": "x"},
			"Sender not authenticated"},
		{"payload not an object", "alice", "Sender not authenticated"},
		{"numeric receiver", map[string]any{"senderLogin": "alice", "receiverSteamId": 123, "message": "x"},
			"Invalid receiver Steam ID"},
		{"object receiver", map[string]any{"senderLogin": "alice", "receiverSteamId": map[string]any{}, "message": "x"},
			"Invalid receiver Steam ID"},
	}
	for _, tt := range tests {
		emit(t, conn, api.EventSendMessage, tt.data)
		assert.Equal(t, tt.want, errorMessage(t, read(t, conn)), tt.name)
	}
	assert.Zero(t, env.net.SendCalls("alice"))
}

func TestPushSendMessageRelaysToEveryClient(t *testing.T) {
	env := setupServer(t)
	sender := env.dial(t)
	watcher := env.dial(t)
	require.Eventually(t, func() bool { return env.bus.Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	emit(t, sender, api.EventSendMessage, api.SendMessageRequest{SenderLogin: "alice", ReceiverSteamID: env.ids["bob"], Message: "gg"})

	// alice's message reaches bob's session, which every client sees once.
	got := map[string]json.RawMessage{}
	for range 2 {
		f := read(t, sender)
		got[f.Event] = f.Data
	}
	assert.JSONEq(t, `{"success":true,"to":"`+env.ids["bob"]+`","message":"gg"}`, string(got[api.EventMessageSent]))
	want := `{"to":"bob","from":"` + env.ids["alice"] + `","message":"gg"}`
	assert.JSONEq(t, want, string(got[api.EventMessageReceived]))

	f := read(t, watcher)
	assert.Equal(t, api.EventMessageReceived, f.Event)
	assert.JSONEq(t, want, string(f.Data))

	require.NoError(t, watcher.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := watcher.ReadMessage()
	assert.Error(t, err, "watcher receives the message exactly once")
}

func TestPushInboundFromPlatform(t *testing.T) {
	env := setupServer(t)
	conn := env.dial(t)

	require.True(t, env.net.Deliver(t.Context(), "76561197960287930", "carol", "hello carol"))
	f := read(t, conn)
	assert.Equal(t, api.EventMessageReceived, f.Event)
	assert.JSONEq(t, `{"to":"carol","from":"76561197960287930","message":"hello carol"}`, string(f.Data))
}

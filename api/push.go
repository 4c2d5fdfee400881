package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jmcleod/steamrelay/hub"
)

// Push channel event names.
const (
	EventSendMessage       = "sendMessage"
	EventGetActiveSessions = "getActiveSessions"
	EventGetFriends        = "getFriends"

	EventMessageSent     = "messageSent"
	EventActiveSessions  = "activeSessions"
	EventFriendsList     = "friendsList"
	EventMessageReceived = "messageReceived"
)

var _ hub.Handler = (*API)(nil)

// HandleFrame dispatches one push channel request. Replies and errors go to
// the requesting client only; errors never close the connection.
func (a *API) HandleFrame(ctx context.Context, c *hub.Client, f hub.Frame) {
	var err error
	switch f.Event {
	case EventSendMessage:
		err = a.handleSendMessage(ctx, c, f.Data)
	case EventGetActiveSessions:
		err = c.Emit(EventActiveSessions, sessionsResponse(a.relay.Sessions()))
	case EventGetFriends:
		err = a.handleGetFriends(ctx, c, f.Data)
	default:
		err = c.EmitError(msgUnknownEvent + f.Event)
	}
	if err != nil {
		a.logger.Warn("push channel reply dropped", "client_id", c.ID(), "event", f.Event, "error", err)
	}
}

func (a *API) handleSendMessage(ctx context.Context, c *hub.Client, data json.RawMessage) error {
	resp, err := a.send(ctx, decodeSendRequest(data))
	if err != nil {
		_, msg := classify(err)
		return c.EmitError(msg)
	}
	return c.Emit(EventMessageSent, resp)
}

func (a *API) handleGetFriends(ctx context.Context, c *hub.Client, data json.RawMessage) error {
	friends, err := a.relay.Friends(ctx, decodeString(data))
	if err != nil {
		status, msg := classify(err)
		if status == http.StatusInternalServerError {
			msg = "Failed to get friends list"
		}
		return c.EmitError(msg)
	}
	return c.Emit(EventFriendsList, friendsResponse(friends))
}

package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/steamrelay/relay"
	"github.com/jmcleod/steamrelay/session"
)

// ListSessions handles GET /sessions.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionsResponse(a.relay.Sessions()))
}

// Logout handles DELETE /sessions/{username}.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !a.relay.Logout(r.Context(), username) {
		writeError(w, http.StatusNotFound, msgAccountNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListFriends handles GET /sessions/{username}/friends.
func (a *API) ListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := a.relay.Friends(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friendsResponse(friends))
}

// SendMessage handles POST /messages.
func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	resp, err := a.send(r.Context(), decodeSendRequest(body))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// send runs one outbound message through the relay. The acknowledgement
// echoes the receiver and message as the client supplied them.
func (a *API) send(ctx context.Context, req SendMessageRequest) (MessageSentResponse, error) {
	_, err := a.relay.Send(ctx, relay.SendRequest{
		Sender:   req.SenderLogin,
		Receiver: req.ReceiverSteamID,
		Body:     req.Message,
	})
	if err != nil {
		return MessageSentResponse{}, err
	}
	return MessageSentResponse{Success: true, To: req.ReceiverSteamID, Message: req.Message}, nil
}

// ListEvents handles GET /events.
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		writeError(w, http.StatusServiceUnavailable, msgEventsUnavailable)
		return
	}
	limit, offset := parsePagination(r)
	events, total, err := a.events.List(limit, offset)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, EventResponse{
			ID:        e.ID,
			Type:      e.Type,
			Account:   e.Account,
			Detail:    e.Detail,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, ListEventsResponse{
		Events:         resp,
		PaginationMeta: pageMeta(total, limit, offset, len(resp)),
	})
}

func sessionsResponse(list []session.Summary) []SessionResponse {
	resp := make([]SessionResponse, 0, len(list))
	for _, s := range list {
		resp = append(resp, SessionResponse{Username: s.Identity, SteamID: s.PlatformID})
	}
	return resp
}

func friendsResponse(friends []relay.Friend) []FriendResponse {
	resp := make([]FriendResponse, 0, len(friends))
	for _, f := range friends {
		resp = append(resp, FriendResponse{SteamID: f.PlatformID, Name: f.Name, State: f.State})
	}
	return resp
}

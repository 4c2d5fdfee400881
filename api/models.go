package api

import "time"

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveAccounts int    `json:"activeAccounts"`
}

// SessionResponse describes one logged-in account.
type SessionResponse struct {
	Username string `json:"username"`
	SteamID  string `json:"steamId"`
}

// FriendResponse is one entry of a friends list.
type FriendResponse struct {
	SteamID string `json:"steamId"`
	Name    string `json:"name"`
	State   string `json:"state"`
}

// SendMessageRequest is the sendMessage payload and the JSON body for
// POST /messages.
type SendMessageRequest struct {
	SenderLogin     string `json:"senderLogin"`
	ReceiverSteamID string `json:"receiverSteamId"`
	Message         string `json:"message"`
}

// MessageSentResponse acknowledges a message handed to Steam.
type MessageSentResponse struct {
	Success bool   `json:"success"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// EventResponse is one stored audit event.
type EventResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Account   string    `json:"account,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListEventsResponse is returned from GET /events.
type ListEventsResponse struct {
	Events []EventResponse `json:"events"`
	PaginationMeta
}

// ErrorResponse is the JSON body of every REST error.
type ErrorResponse struct {
	Error string `json:"error"`
}

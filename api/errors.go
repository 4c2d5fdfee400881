package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/steamrelay/platform"
	"github.com/jmcleod/steamrelay/relay"
)

// Client-facing error messages. Push channel clients match on these strings.
const (
	msgSenderNotAuthenticated = "Sender not authenticated"
	msgInvalidReceiver        = "Invalid receiver Steam ID"
	msgInvalidSteamID         = "Invalid Steam ID format"
	msgNotAContact            = "Cannot send message: User is not in your friends list"
	msgSendFailed             = "Failed to send message: "
	msgAccountNotFound        = "Account not found"
	msgInvalidPayload         = "Invalid request payload"
	msgUnknownEvent           = "Unknown event: "
	msgEventsUnavailable      = "Event log not configured"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	writeError(w, status, msg)
}

// classify maps relay errors to an HTTP status and the client-facing message
// shared by the REST and push channel surfaces.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, relay.ErrSenderNotAuthenticated):
		return http.StatusUnauthorized, msgSenderNotAuthenticated
	// Checked before ErrInvalidReceiverID, which it is always wrapped with.
	case errors.Is(err, platform.ErrInvalidID):
		return http.StatusBadRequest, msgInvalidSteamID
	case errors.Is(err, relay.ErrInvalidReceiverID):
		return http.StatusBadRequest, msgInvalidReceiver
	case errors.Is(err, relay.ErrNotAContact):
		return http.StatusForbidden, msgNotAContact
	case errors.Is(err, relay.ErrSendFailed):
		return http.StatusBadGateway, msgSendFailed + sendCause(err).Error()
	case errors.Is(err, relay.ErrAccountNotFound):
		return http.StatusNotFound, msgAccountNotFound
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// sendCause returns the platform error wrapped alongside relay.ErrSendFailed.
func sendCause(err error) error {
	for {
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				if !errors.Is(e, relay.ErrSendFailed) {
					return e
				}
			}
		}
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmcleod/steamrelay/audit"
	"github.com/jmcleod/steamrelay/internal/util"
	"github.com/jmcleod/steamrelay/platform"
)

// SendRequest asks the relay to send Body from the Sender account to the
// Receiver Steam ID.
type SendRequest struct {
	Sender   string
	Receiver string
	Body     string
}

// SendResult acknowledges a message handed to the platform.
type SendResult struct {
	Receiver string
	Body     string
}

// Send mediates one outbound message. The checks run strictly in order and
// the friendship is verified against the platform on every call, never
// cached: the sender must be logged in, the receiver ID must parse, and the
// receiver must appear in the sender's presence lookup. Only then is the
// message sent. Delivery is not confirmed and failures are not retried.
func (r *Relay) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	s, ok := r.registry.Lookup(req.Sender)
	if !ok {
		r.audit.Failure(ctx, audit.MessageRejected, req.Sender, ErrSenderNotAuthenticated.Error())
		return SendResult{}, ErrSenderNotAuthenticated
	}

	if strings.TrimSpace(req.Receiver) == "" {
		r.audit.Failure(ctx, audit.MessageRejected, req.Sender, "missing receiver")
		return SendResult{}, ErrInvalidReceiverID
	}
	id, err := platform.ParseID(req.Receiver)
	if err != nil {
		r.audit.Failure(ctx, audit.MessageRejected, req.Sender, "malformed receiver")
		return SendResult{}, fmt.Errorf("%w: %w", ErrInvalidReceiverID, err)
	}
	receiver := id.String()

	client := s.Client()
	personas, err := client.Personas(ctx, []string{receiver})
	if err != nil {
		r.logger.Warn("friend check failed, treating receiver as non-friend",
			"account", req.Sender, "receiver", receiver, "error", err)
	}
	if _, friend := personas[receiver]; err != nil || !friend {
		r.audit.Failure(ctx, audit.MessageRejected, req.Sender, "receiver not a friend",
			slog.String("receiver", receiver))
		return SendResult{}, fmt.Errorf("%w: %s", ErrNotAContact, receiver)
	}

	body := util.NormalizeText(req.Body)
	if err := client.SendMessage(ctx, receiver, body); err != nil {
		r.logger.Error("sending message failed", "account", req.Sender, "receiver", receiver, "error", err)
		return SendResult{}, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	r.audit.Record(ctx, audit.MessageSent, req.Sender, slog.String("receiver", receiver))
	return SendResult{Receiver: receiver, Body: body}, nil
}

package relay

import "errors"

var (
	// ErrSenderNotAuthenticated indicates the sender has no live session.
	ErrSenderNotAuthenticated = errors.New("sender not authenticated")
	// ErrInvalidReceiverID indicates a missing or malformed receiver Steam ID.
	ErrInvalidReceiverID = errors.New("invalid receiver steam id")
	// ErrNotAContact indicates the receiver is not in the sender's friends list.
	ErrNotAContact = errors.New("receiver is not a friend of the sender")
	// ErrSendFailed wraps an error raised by the platform while sending.
	ErrSendFailed = errors.New("send failed")
	// ErrAccountNotFound indicates a friends query for an unknown account.
	ErrAccountNotFound = errors.New("account not found")
)

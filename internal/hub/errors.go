package hub

import "errors"

// Domain errors for hub operations.
var (
	ErrChannelNotFound      = errors.New("hub: channel not found")
	ErrChannelExists        = errors.New("hub: channel already exists")
	ErrChannelFull          = errors.New("hub: channel is full")
	ErrPermissionDenied     = errors.New("hub: permission denied")
	ErrRateLimitExceeded    = errors.New("hub: rate limit exceeded")
	ErrNotAuthenticated     = errors.New("hub: connection not authenticated")
	ErrAlreadyAuthenticated = errors.New("hub: connection already authenticated")
	ErrConnectionNotFound   = errors.New("hub: connection not found")
	ErrInvalidMessage       = errors.New("hub: invalid message")
	ErrSendBufferFull       = errors.New("hub: send buffer full")
	ErrTransportClosed      = errors.New("hub: transport closed")
)

// errorCode maps hub errors to the code carried in error envelopes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrChannelNotFound):
		return "channel_not_found"
	case errors.Is(err, ErrChannelFull):
		return "channel_full"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrAlreadyAuthenticated):
		return "already_authenticated"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	}
	return "internal_error"
}

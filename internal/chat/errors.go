package chat

import "errors"

// Sentinel errors returned by the chat service. Handlers map these to HTTP
// status codes; anything else is a 500.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
)

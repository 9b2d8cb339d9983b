package chat

import "errors"

// Expected outcomes surfaced to callers as typed failures. Handlers map
// these onto HTTP statuses; anything else is treated as a store failure.
var (
	// ErrValidation covers empty content and malformed pagination params.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers unknown conversation or message ids.
	ErrNotFound = errors.New("not found")

	// ErrNotAuthorized covers access to a conversation the caller is not an
	// active participant of.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidConversationType is returned for sender/recipient role
	// combinations the resolver does not support (e.g. admin-to-admin).
	ErrInvalidConversationType = errors.New("invalid conversation type")

	// ErrStoreUnavailable wraps persistence failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

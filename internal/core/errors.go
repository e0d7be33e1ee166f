package core

import "errors"

// Connection-fatal conditions.
var (
	ErrNoCredential      = errors.New("no credential presented")
	ErrInvalidCredential = errors.New("invalid or expired credential")
	ErrUnknownUser       = errors.New("credential references unknown user")
	ErrRateLimited       = errors.New("admission rate limit exceeded")
	ErrOriginForbidden   = errors.New("origin not allowed")
	ErrInsecureTransport = errors.New("encrypted transport required")
)

// Join refusals. The connection survives these.
var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrForbidden           = errors.New("not a party to the appointment")
	ErrInvalidState        = errors.New("appointment not in a joinable state")
	ErrPaymentRequired     = errors.New("payment not confirmed")
	ErrRoomMismatch        = errors.New("room is not bound to the appointment")
)

// Per-message refusals and internal failures.
var (
	ErrValidation    = errors.New("malformed payload")
	ErrInvalidTarget = errors.New("target is not a participant of the room")
	ErrNotInRoom     = errors.New("sender is not a participant of the room")
	ErrRoomNotFound  = errors.New("room not found")
	ErrInternal      = errors.New("internal error")
)

// ErrorCode maps an error to the stable code string carried on the wire.
// Unrecognized errors map to "internal" so dependency failures are never
// leaked verbatim to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNoCredential):
		return "no_credential"
	case errors.Is(err, ErrInvalidCredential):
		return "invalid_credential"
	case errors.Is(err, ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrOriginForbidden):
		return "origin_forbidden"
	case errors.Is(err, ErrInsecureTransport):
		return "insecure_transport"
	case errors.Is(err, ErrAppointmentNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrPaymentRequired):
		return "payment_required"
	case errors.Is(err, ErrRoomMismatch):
		return "room_mismatch"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	default:
		return "internal"
	}
}

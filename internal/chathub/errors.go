package chathub

import "errors"

// Error taxonomy of the hub. Every one of these is scoped to a single
// connection or call session; none of them is fatal to the process.
var (
	// ErrAuthRejected means the identity token presented at setup failed
	// verification. The connection is told and then closed.
	ErrAuthRejected = errors.New("auth rejected")

	// ErrCalleeBusy means a call session already exists between the two users.
	ErrCalleeBusy = errors.New("callee busy")

	// ErrCalleeOffline means the callee has no live connections to ring.
	ErrCalleeOffline = errors.New("callee offline")

	// ErrInvalidSessionState means a signaling event arrived out of order
	// (answer for an ended session, hangup by a non-participant, ...).
	// The session is left untouched.
	ErrInvalidSessionState = errors.New("invalid session state")
)

// errorCode maps a hub error to the wire code sent back to the offending
// connection.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthRejected):
		return "auth_rejected"
	case errors.Is(err, ErrCalleeBusy):
		return "callee_busy"
	case errors.Is(err, ErrCalleeOffline):
		return "callee_offline"
	case errors.Is(err, ErrInvalidSessionState):
		return "invalid_session_state"
	}
	return "internal_error"
}

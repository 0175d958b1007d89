// Package xerror defines the internal error kinds of the simulation core
// (spec.md 7) and their deterministic mapping onto guest-visible errno
// values (spec.md 6).
package xerror

import "errors"

// Internal error kinds. Handlers compare against these with errors.Is;
// socket-level callers map them to errno via ToErrno.
var (
	ErrOutOfBuffer    = errors.New("xerror: out of buffer space")
	ErrSocketMissing  = errors.New("xerror: socket missing")
	ErrAddressFamily  = errors.New("xerror: unsupported address family")
	ErrNotImplemented = errors.New("xerror: operation not implemented")
	ErrProtocolMismatch = errors.New("xerror: protocol mismatch")
	ErrOutOfWindow    = errors.New("xerror: sequence out of window")
	ErrBadState       = errors.New("xerror: operation invalid in current state")
	ErrPeerReset      = errors.New("xerror: connection reset by peer")
	ErrPeerClosed     = errors.New("xerror: connection closed by peer")
	ErrNoRoute        = errors.New("xerror: no route to destination")
	ErrWireDecode     = errors.New("xerror: failed to decode wire frame")
)

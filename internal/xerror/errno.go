package xerror

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Errno is the guest-visible errno surface of the socket API (spec.md 6).
// It reuses real POSIX errno values from golang.org/x/sys/unix rather than
// declaring a parallel enum, so guest code that compares against the
// standard constants keeps working unmodified.
type Errno = unix.Errno

// Accepted error kinds, spec.md 6.
const (
	EAFNOSUPPORT  = unix.EAFNOSUPPORT
	EPROTONOSUPPORT = unix.EPROTONOSUPPORT
	ENOTSOCK      = unix.ENOTSOCK
	EBADF         = unix.EBADF
	EFAULT        = unix.EFAULT
	EINVAL        = unix.EINVAL
	EADDRINUSE    = unix.EADDRINUSE
	EADDRNOTAVAIL = unix.EADDRNOTAVAIL
	EMSGSIZE      = unix.EMSGSIZE
	EAGAIN        = unix.EAGAIN
	EINPROGRESS   = unix.EINPROGRESS
	EISCONN       = unix.EISCONN
	EALREADY      = unix.EALREADY
	ENOTCONN      = unix.ENOTCONN
	ECONNREFUSED  = unix.ECONNREFUSED
	ECONNRESET    = unix.ECONNRESET
	EDESTADDRREQ  = unix.EDESTADDRREQ
	EWOULDBLOCK   = unix.EWOULDBLOCK
	ECONNABORTED  = unix.ECONNABORTED
	ENOSYS        = unix.ENOSYS
)

// ToErrno maps an internal error kind to its guest-visible errno, per the
// deterministic table of spec.md 7. Errors not covered by the table map to
// ENOSYS, which is itself in the accepted set.
func ToErrno(err error) Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrOutOfBuffer):
		return EAGAIN
	case errors.Is(err, ErrSocketMissing):
		return EBADF
	case errors.Is(err, ErrAddressFamily):
		return EAFNOSUPPORT
	case errors.Is(err, ErrNotImplemented):
		return ENOSYS
	case errors.Is(err, ErrProtocolMismatch):
		return EPROTONOSUPPORT
	case errors.Is(err, ErrOutOfWindow):
		return EAGAIN
	case errors.Is(err, ErrBadState):
		return EINVAL
	case errors.Is(err, ErrPeerReset):
		return ECONNRESET
	case errors.Is(err, ErrPeerClosed):
		return ENOTCONN
	case errors.Is(err, ErrNoRoute):
		return ECONNREFUSED
	case errors.Is(err, ErrWireDecode):
		return EFAULT
	default:
		return ENOSYS
	}
}

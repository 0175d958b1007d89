// Package sockid defines the descriptor type shared by the socket manager,
// TCP/UDP state machines, and the event system, kept in its own tiny
// package so those packages can reference "which socket" without importing
// each other.
package sockid

// Descriptor is a per-host socket descriptor, allocated by the socket
// manager (spec.md 4.7) and reused as the guest-visible file descriptor.
type Descriptor int32

// Invalid is returned by allocation failures and unset descriptor fields.
const Invalid Descriptor = -1

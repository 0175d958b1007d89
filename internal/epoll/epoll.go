// Package epoll implements the simulator's per-descriptor readiness object
// (spec.md 3, 4.3): an internal analogue of Linux epoll state with edge
// notifications to the guest.
package epoll

// Readiness holds the {active, readable, writable} state of one socket
// descriptor.
type Readiness struct {
	Active   bool
	Readable bool
	Writable bool

	// onEdge, if set, is invoked whenever Readable or Writable transitions
	// from false to true — an edge notification the guest's poll loop can
	// hook to avoid busy-polling every descriptor every tick.
	onEdge func()
}

// New constructs an active-by-default Readiness object.
func New() *Readiness {
	return &Readiness{Active: true}
}

// OnEdge registers the edge-notification callback.
func (r *Readiness) OnEdge(fn func()) {
	r.onEdge = fn
}

// SetReadable updates the readable flag, firing the edge callback on a
// false-to-true transition.
func (r *Readiness) SetReadable(v bool) {
	rising := v && !r.Readable
	r.Readable = v
	if rising && r.onEdge != nil {
		r.onEdge()
	}
}

// SetWritable updates the writable flag, firing the edge callback on a
// false-to-true transition.
func (r *Readiness) SetWritable(v bool) {
	rising := v && !r.Writable
	r.Writable = v
	if rising && r.onEdge != nil {
		r.onEdge()
	}
}

// Deactivate marks the descriptor inactive (e.g. on close): no further
// readiness transitions are meaningful to the guest.
func (r *Readiness) Deactivate() {
	r.Active = false
	r.Readable = false
	r.Writable = false
}

// Package packet implements the simulator's reference-counted packet
// (spec.md 3, 4.2): an immutable-after-construction record with shared
// ownership, optionally backed by a shared-memory slot for zero-copy
// cross-worker delivery.
package packet

import (
	"sync"
	"sync/atomic"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/shm"
)

// Protocol distinguishes stream (TCP-like) from datagram (UDP-like) packets.
type Protocol uint8

const (
	Stream Protocol = iota
	Datagram
)

// Flags is a bitmask of TCP control flags.
type Flags uint8

const (
	FIN Flags = 1 << iota
	SYN
	RST
	ACK
	CON // carries a connection-establishment marker alongside SYN/ACK
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// TCPHeader is the stream-protocol sub-header (spec.md 3).
type TCPHeader struct {
	Seq      uint32
	Ack      uint32
	AdvWnd   uint32
	Flags    Flags
}

// Endpoint is a (address, port) pair.
type Endpoint struct {
	Addr addr.Addr
	Port uint16
}

// Packet is an immutable-after-construction, reference-counted packet.
// Construction fields are only set by New; once ref count is established,
// no field other than the ref count and the (optional) shm handle's
// lifetime is mutated — the transport layer (spec.md 4.4.2) builds a new
// Packet rather than editing one in place when it needs to stamp a window
// or ack onto an outbound copy.
type Packet struct {
	Protocol Protocol
	Src      Endpoint
	Dst      Endpoint
	TCP      *TCPHeader // nil for Datagram
	DataSize uint32
	payload  []byte

	// shmHandle is non-nil when this packet's payload is backed by a
	// shared-memory slot rather than an in-process []byte, enabling
	// zero-copy delivery across worker boundaries on the same host
	// (spec.md 4.8).
	shmHandle *shm.Handle

	// lock guards payload access only when shared is true; in-process
	// packets confined to one worker at a time need no lock (spec.md 4.2).
	shared bool
	lock   sync.RWMutex

	refs atomic.Int32
}

// New constructs a packet with ref count 1.
func New(proto Protocol, src, dst Endpoint, tcp *TCPHeader, payload []byte) *Packet {
	p := &Packet{
		Protocol: proto,
		Src:      src,
		Dst:      dst,
		TCP:      tcp,
		DataSize: uint32(len(payload)),
		payload:  payload,
	}
	p.refs.Store(1)
	return p
}

// NewShared constructs a packet backed by a shared-memory slot handle,
// turning on the read-write lock discipline required for cross-worker
// concurrent access (spec.md 4.2, 5).
func NewShared(proto Protocol, src, dst Endpoint, tcp *TCPHeader, h *shm.Handle) *Packet {
	p := &Packet{
		Protocol:  proto,
		Src:       src,
		Dst:       dst,
		TCP:       tcp,
		DataSize:  uint32(len(h.Data())),
		shmHandle: h,
		shared:    true,
	}
	p.refs.Store(1)
	return p
}

// Retain increments the reference count.
func (p *Packet) Retain() {
	p.refs.Add(1)
}

// Release decrements the reference count; the last release destroys the
// packet and, if shared-memory backed, returns the slot to its cabinet.
func (p *Packet) Release() {
	if p.refs.Add(-1) == 0 {
		if p.shmHandle != nil {
			p.shmHandle.Release()
		}
		p.payload = nil
	}
}

// RefCount reports the current reference count, for tests and invariant
// checks (spec.md 8: "on a clean simulation shutdown, every reference is
// released exactly once").
func (p *Packet) RefCount() int32 {
	return p.refs.Load()
}

// ScopedRetain brackets a region of code that borrows p without taking
// ownership: call it on entry, call the returned func on exit (defer),
// exactly mirroring the source's "scoped retain" idiom (spec.md 4.2, 9).
// Any function that receives a packet and may suspend, recurse, or call
// code that could release the last outstanding reference must wrap its use
// of p in ScopedRetain.
func (p *Packet) ScopedRetain() func() {
	p.Retain()
	return p.Release
}

// Payload returns the packet's payload bytes. Concurrent readers on a
// shared packet take the read lock; confined (non-shared) packets skip
// locking entirely.
func (p *Packet) Payload() []byte {
	if !p.shared {
		return p.payloadBytes()
	}
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.payloadBytes()
}

func (p *Packet) payloadBytes() []byte {
	if p.shmHandle != nil {
		return p.shmHandle.Data()
	}
	return p.payload
}

// IsShared reports whether this packet is backed by shared memory and
// therefore participates in the read-write lock discipline.
func (p *Packet) IsShared() bool { return p.shared }

// Clone builds a new packet with the same header fields and a private copy
// of the payload, used when the transport layer needs to stamp a fresh
// window/ack onto an outbound copy without mutating a packet that might
// still be referenced elsewhere (spec.md 4.4.2).
func (p *Packet) Clone() *Packet {
	var tcp *TCPHeader
	if p.TCP != nil {
		h := *p.TCP
		tcp = &h
	}
	payload := append([]byte(nil), p.Payload()...)
	return New(p.Protocol, p.Src, p.Dst, tcp, payload)
}

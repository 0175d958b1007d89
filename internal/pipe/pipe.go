// Package pipe implements the Pipe Manager (spec.md 4.10): socketpair
// semantics for AF_UNIX SOCK_STREAM, as two unidirectional linked-buffer
// queues each with its own Epoll object.
package pipe

import (
	"github.com/netsimio/vnet/internal/epoll"
	"github.com/netsimio/vnet/internal/xerror"
)

const maxQueueBytes = 1 << 16

// direction is one unidirectional byte queue.
type direction struct {
	queue  [][]byte
	size   int
	closed bool
}

func (d *direction) write(b []byte) error {
	if d.closed {
		return xerror.ErrPeerClosed
	}
	if d.size+len(b) > maxQueueBytes {
		return xerror.ErrOutOfBuffer
	}
	cp := append([]byte(nil), b...)
	d.queue = append(d.queue, cp)
	d.size += len(cp)
	return nil
}

func (d *direction) read(into []byte) (n int, eof bool) {
	if len(d.queue) == 0 {
		return 0, d.closed
	}
	head := d.queue[0]
	n = copy(into, head)
	if n >= len(head) {
		d.queue = d.queue[1:]
	} else {
		d.queue[0] = head[n:]
	}
	d.size -= n
	return n, false
}

func (d *direction) close() {
	d.closed = true
}

// Endpoint is one side of a connected pipe: writes go out on send, reads
// come in on recv. Epoll tracks readability from recv and writability from
// send, combined under this endpoint's own Readiness object.
type Endpoint struct {
	send, recv *direction
	ep         *epoll.Readiness
}

func (e *Endpoint) refreshEpoll() {
	e.ep.SetReadable(len(e.recv.queue) > 0 || e.recv.closed)
	e.ep.SetWritable(e.send.size < maxQueueBytes && !e.send.closed)
}

// Write enqueues b on this endpoint's outbound direction.
func (e *Endpoint) Write(b []byte) error {
	err := e.send.write(b)
	e.refreshEpoll()
	return err
}

// Read copies from this endpoint's inbound direction.
func (e *Endpoint) Read(into []byte) (n int, eof bool) {
	n, eof = e.recv.read(into)
	e.refreshEpoll()
	return n, eof
}

// Epoll returns this endpoint's readiness object.
func (e *Endpoint) Epoll() *epoll.Readiness {
	return e.ep
}

// Close half-closes this endpoint's outbound direction; the pipe itself is
// destroyed once both endpoints are closed (tracked by the pipe manager).
func (e *Endpoint) Close() {
	e.send.close()
	e.refreshEpoll()
}

// Pair is a connected bidirectional pipe: two unidirectional queues
// crossed so each endpoint's send is the other's recv.
type Pair struct {
	A, B *Endpoint
}

// New constructs a fresh connected pair (spec.md 4.10).
func New() *Pair {
	ab := &direction{}
	ba := &direction{}
	a := &Endpoint{send: ab, recv: ba, ep: epoll.New()}
	b := &Endpoint{send: ba, recv: ab, ep: epoll.New()}
	a.refreshEpoll()
	b.refreshEpoll()
	return &Pair{A: a, B: b}
}

// Destroyed reports whether both endpoints have closed their send
// direction, meaning the pipe can be garbage collected.
func (p *Pair) Destroyed() bool {
	return p.A.send.closed && p.B.send.closed
}

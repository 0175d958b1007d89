// Package vudp implements virtual UDP sockets (spec.md 4.5): best-effort,
// unordered datagram delivery with no retransmission, no reordering, and
// no state beyond "exists".
package vudp

import (
	"github.com/netsimio/vnet/internal/epoll"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/sockid"
	"github.com/netsimio/vnet/internal/vbuffer"
	"github.com/netsimio/vnet/internal/xerror"
)

// Socket is a datagram endpoint: a thin wrapper over a FIFO-mode Buffer
// (spec.md 4.3 "For datagram sockets, tcp_* maps are absent").
type Socket struct {
	Desc  sockid.Descriptor
	Local packet.Endpoint

	Buf   *vbuffer.Buffer
	Epoll *epoll.Readiness
}

// New constructs a datagram socket with the given send/receive byte
// budgets.
func New(desc sockid.Descriptor, local packet.Endpoint, maxSend, maxRecv uint32) *Socket {
	ep := epoll.New()
	return &Socket{
		Desc:  desc,
		Local: local,
		Buf:   vbuffer.New(false, ep, maxSend, maxRecv),
		Epoll: ep,
	}
}

// Send constructs a datagram packet addressed to dst and FIFO-enqueues it
// for the transport manager to pick up on its next wire-selection pass.
func (s *Socket) Send(dst packet.Endpoint, payload []byte) error {
	pkt := packet.New(packet.Datagram, s.Local, dst, nil, append([]byte(nil), payload...))
	if err := s.Buf.AddSend(pkt, 0); err != nil {
		pkt.Release()
		return err
	}
	return nil
}

// SelectForTransmit pops the next queued datagram, if any, for the
// transport manager to hand to VCI.
func (s *Socket) SelectForTransmit() (*packet.Packet, bool) {
	return s.Buf.RemoveSend(0)
}

// Deliver admits an inbound datagram straight into the readable queue:
// datagram sockets have no reordering stage, so unlike vsocket's stream
// path this skips tcp_unprocessed entirely (spec.md 4.5 "no reordering").
func (s *Socket) Deliver(pkt *packet.Packet) error {
	if pkt.DataSize > s.Buf.RecvSpaceAvailable() {
		return xerror.ErrOutOfBuffer
	}
	pkt.Retain()
	s.Buf.AddRead(pkt)
	return nil
}

// Recv pops the oldest queued datagram, copying its payload into into and
// reporting the sender. It returns xerror.ErrOutOfWindow (which
// xerror.ToErrno maps to EAGAIN) if nothing is queued, matching the
// non-blocking contract of spec.md 6.
func (s *Socket) Recv(into []byte) (n int, from packet.Endpoint, err error) {
	pkt, ok := s.Buf.RemoveRead()
	if !ok {
		return 0, packet.Endpoint{}, xerror.ErrOutOfWindow
	}
	defer pkt.Release()
	n = copy(into, pkt.Payload())
	return n, pkt.Src, nil
}

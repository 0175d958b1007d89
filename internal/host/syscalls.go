package host

import (
	"github.com/netsimio/vnet/internal/oracle"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/sockid"
	"github.com/netsimio/vnet/internal/vsocket"
	"github.com/netsimio/vnet/internal/xerror"
)

// This file implements the guest-visible, strictly non-blocking socket
// surface of spec.md 6: every call here returns a count plus an errno
// mapped via xerror.ToErrno rather than blocking. It is the one place
// that calls both h.Sockets (state transitions) and h.Transport
// (ready_send/ready_receive scheduling), since those two managers must
// not import one another.

// Socket implements socket(2) for a datagram endpoint. Stream sockets are
// created implicitly by Connect/Listen, which need a route/clock at
// construction time that plain socket(2) does not supply.
func (h *Host) Socket(family, typ int) (*vsocket.Socket, xerror.Errno) {
	s, err := h.Sockets.Socket(family, typ)
	return s, xerror.ToErrno(err)
}

// Connect implements connect(2): non-blocking, so success here means the
// SYN was queued and the guest should poll for ESTABLISHED (EINPROGRESS
// semantics, spec.md 7).
func (h *Host) Connect(now uint64, local, remote packet.Endpoint, iss uint32, topology oracle.Topology, resolver oracle.Resolver) (*vsocket.Socket, xerror.Errno) {
	s, _, err := h.Sockets.Connect(local, remote, iss, topology, resolver)
	if err != nil {
		return nil, xerror.ToErrno(err)
	}
	h.Transport.ReadySend(now, s.Desc)
	return s, xerror.EINPROGRESS
}

// Listen implements listen(2).
func (h *Host) Listen(local packet.Endpoint, backlog int) (*vsocket.Socket, xerror.Errno) {
	s, err := h.Sockets.Listen(local, backlog)
	return s, xerror.ToErrno(err)
}

// Accept implements accept(2), non-blocking: EAGAIN if nothing pending.
func (h *Host) Accept(listener sockid.Descriptor) (*vsocket.Socket, xerror.Errno) {
	s, err := h.Sockets.Accept(listener)
	return s, xerror.ToErrno(err)
}

// Send implements send(2)/write(2) on a connected stream socket.
func (h *Host) Send(now uint64, s *vsocket.Socket, data []byte) (int, xerror.Errno) {
	if s.TCP == nil {
		return -1, xerror.ENOTSOCK
	}
	n, err := s.TCP.Send(data)
	if err != nil {
		return -1, xerror.ToErrno(err)
	}
	if n > 0 {
		h.Transport.ReadySend(now, s.Desc)
	}
	return n, 0
}

// Read implements read(2)/recv(2) on a connected stream socket.
func (h *Host) Read(s *vsocket.Socket, into []byte) (int, xerror.Errno) {
	if s.TCP == nil {
		return -1, xerror.ENOTSOCK
	}
	n, eof := s.TCP.Read(into)
	if n == 0 && eof {
		return 0, 0
	}
	if n == 0 {
		return -1, xerror.EAGAIN
	}
	return n, 0
}

// SendTo implements sendto(2) on a datagram socket.
func (h *Host) SendTo(now uint64, s *vsocket.Socket, dst packet.Endpoint, data []byte) (int, xerror.Errno) {
	if s.UDP == nil {
		return -1, xerror.ENOTSOCK
	}
	if err := s.UDP.Send(dst, data); err != nil {
		return -1, xerror.ToErrno(err)
	}
	h.Transport.ReadySend(now, s.Desc)
	return len(data), 0
}

// RecvFrom implements recvfrom(2) on a datagram socket.
func (h *Host) RecvFrom(s *vsocket.Socket, into []byte) (int, packet.Endpoint, xerror.Errno) {
	if s.UDP == nil {
		return -1, packet.Endpoint{}, xerror.ENOTSOCK
	}
	n, from, err := s.UDP.Recv(into)
	if err != nil {
		return -1, packet.Endpoint{}, xerror.ToErrno(err)
	}
	return n, from, 0
}

// Close implements close(2): guest_close for a connected stream socket,
// or immediate teardown for a listener/datagram socket.
func (h *Host) Close(now uint64, s *vsocket.Socket) xerror.Errno {
	if s.TCP != nil {
		if err := s.TCP.GuestClose(now); err != nil {
			return xerror.ToErrno(err)
		}
		h.Transport.ReadySend(now, s.Desc)
	}
	return xerror.ToErrno(h.Sockets.Close(s.Desc))
}

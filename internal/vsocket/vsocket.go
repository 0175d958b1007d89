// Package vsocket defines the Virtual Socket (spec.md 3): the common
// descriptor-addressable handle the socket manager and transport manager
// operate on, wrapping either a stream (vtcp) or datagram (vudp) endpoint.
package vsocket

import (
	"github.com/netsimio/vnet/internal/epoll"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/sockid"
	"github.com/netsimio/vnet/internal/vtcp"
	"github.com/netsimio/vnet/internal/vudp"
)

// Kind distinguishes the two transport flavours a Virtual Socket can wrap.
type Kind int

const (
	Stream Kind = iota
	Datagram
)

// Socket is the common handle: descriptor, addressing, and lifecycle flags,
// plus exactly one of TCP/UDP/Server populated according to Kind.
type Socket struct {
	Desc   sockid.Descriptor
	Kind   Kind
	Parent sockid.Descriptor // sockid.Invalid unless server-spawned

	Local  packet.Endpoint
	Remote packet.Endpoint // zero value until connected
	Loopback bool

	DeleteWhenDrained bool
	Active            bool

	TCP    *vtcp.Socket
	UDP    *vudp.Socket
	Server *vtcp.Server
}

// NewStream wraps an already-constructed vtcp.Socket.
func NewStream(desc sockid.Descriptor, parent sockid.Descriptor, local, remote packet.Endpoint, loopback bool, tcp *vtcp.Socket) *Socket {
	return &Socket{
		Desc:     desc,
		Kind:     Stream,
		Parent:   parent,
		Local:    local,
		Remote:   remote,
		Loopback: loopback,
		Active:   true,
		TCP:      tcp,
	}
}

// NewListener wraps a vtcp.Server.
func NewListener(desc sockid.Descriptor, local packet.Endpoint, srv *vtcp.Server) *Socket {
	return &Socket{
		Desc:   desc,
		Kind:   Stream,
		Parent: sockid.Invalid,
		Local:  local,
		Active: true,
		Server: srv,
	}
}

// NewDatagram wraps an already-constructed vudp.Socket.
func NewDatagram(desc sockid.Descriptor, local packet.Endpoint, udp *vudp.Socket) *Socket {
	return &Socket{
		Desc:   desc,
		Kind:   Datagram,
		Parent: sockid.Invalid,
		Local:  local,
		Active: true,
		UDP:    udp,
	}
}

// IsListener reports whether this handle is a listening stream socket
// rather than a connected/connecting one.
func (s *Socket) IsListener() bool { return s.Kind == Stream && s.Server != nil }

// Epoll returns the readiness object backing this socket's I/O
// notification, or nil for a bare listener whose children each carry
// their own.
func (s *Socket) Epoll() *epoll.Readiness {
	switch {
	case s.TCP != nil:
		return s.TCP.Epoll
	case s.UDP != nil:
		return s.UDP.Epoll
	default:
		return nil
	}
}

// Drained reports whether this socket's buffers (and, for a listener, all
// child tables) are empty and it is therefore safe to destroy once marked
// DeleteWhenDrained (spec.md 3 "Sockets live from socket() to close() +
// drain").
func (s *Socket) Drained() bool {
	switch {
	case s.Server != nil:
		return s.Server.Empty()
	case s.TCP != nil:
		return s.TCP.Buf.NumPackets() == 0
	case s.UDP != nil:
		return s.UDP.Buf.NumPackets() == 0
	default:
		return true
	}
}

// ShouldDestroy reports whether close() was called and the socket has
// since fully drained.
func (s *Socket) ShouldDestroy() bool {
	return s.DeleteWhenDrained && s.Drained()
}

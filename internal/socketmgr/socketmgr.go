// Package socketmgr implements the per-host Socket Manager (spec.md 4.7):
// descriptor allocation, POSIX-mirroring bind/connect/listen/accept/close,
// and routing of inbound packets to the right socket or listener child.
package socketmgr

import (
	"math/rand/v2"

	"golang.org/x/sys/unix"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/oracle"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/sockid"
	"github.com/netsimio/vnet/internal/vsocket"
	"github.com/netsimio/vnet/internal/vtcp"
	"github.com/netsimio/vnet/internal/vudp"
	"github.com/netsimio/vnet/internal/xerror"
)

// Any stands in for INADDR_ANY: a socket bound to it reserves its port on
// both the ethernet and loopback interfaces (spec.md 4.7).
const Any addr.Addr = 0

type portKey struct {
	proto packet.Protocol
	addr  addr.Addr
	port  uint16
}

// Manager owns every socket and listener on one virtual host.
type Manager struct {
	ethernet addr.Addr

	sockets map[sockid.Descriptor]*vsocket.Socket
	byPort  map[portKey]sockid.Descriptor

	nextDesc sockid.Descriptor
	nextPort uint16

	cfg    vtcp.Config
	router vtcp.Router
	timers vtcp.Timers
	clock  oracle.Clock
}

// New constructs an empty manager for a host whose ethernet address is
// ethernet (loopback is always addr.Loopback).
func New(ethernet addr.Addr, cfg vtcp.Config, router vtcp.Router, timers vtcp.Timers, clock oracle.Clock) *Manager {
	return &Manager{
		ethernet: ethernet,
		sockets:  make(map[sockid.Descriptor]*vsocket.Socket),
		byPort:   make(map[portKey]sockid.Descriptor),
		nextPort: 32768,
		cfg:      cfg,
		router:   router,
		timers:   timers,
		clock:    clock,
	}
}

func (m *Manager) allocDesc() sockid.Descriptor {
	m.nextDesc++
	return m.nextDesc
}

// allocPort substitutes port 0 with a monotonically increasing counter
// (spec.md 4.7), wrapping within the ephemeral range.
func (m *Manager) allocPort() uint16 {
	for {
		p := m.nextPort
		m.nextPort++
		if m.nextPort == 0 {
			m.nextPort = 32768
		}
		return p
	}
}

func (m *Manager) reserve(proto packet.Protocol, a addr.Addr, port uint16, desc sockid.Descriptor) error {
	key := portKey{proto, a, port}
	if _, taken := m.byPort[key]; taken {
		return xerror.ErrBadState
	}
	m.byPort[key] = desc
	return nil
}

// Bind reserves local for a not-yet-connected socket of kind/proto,
// following the ethernet/loopback reservation rules of spec.md 4.7. Port 0
// is replaced with a fresh ephemeral port.
func (m *Manager) Bind(proto packet.Protocol, local packet.Endpoint, desc sockid.Descriptor) (packet.Endpoint, error) {
	if local.Port == 0 {
		local.Port = m.allocPort()
	}
	switch local.Addr {
	case Any:
		if err := m.reserve(proto, m.ethernet, local.Port, desc); err != nil {
			return packet.Endpoint{}, err
		}
		if err := m.reserve(proto, addr.Loopback, local.Port, desc); err != nil {
			delete(m.byPort, portKey{proto, m.ethernet, local.Port})
			return packet.Endpoint{}, err
		}
	case addr.Loopback:
		if err := m.reserve(proto, addr.Loopback, local.Port, desc); err != nil {
			return packet.Endpoint{}, err
		}
	default:
		if err := m.reserve(proto, m.ethernet, local.Port, desc); err != nil {
			return packet.Endpoint{}, err
		}
	}
	return local, nil
}

// Socket validates family/typ against spec.md 4.7's "socket() accepts
// only PF_INET and SOCK_STREAM|SOCK_DGRAM, and refuses blocking sockets",
// then creates a datagram socket. Streams are created implicitly by
// Connect/Listen instead, since their wire plumbing needs a Router/clock
// at construction time this simulator never models as a bare unconnected
// descriptor; a bare socket(AF_INET, SOCK_STREAM) therefore reports
// ENOSYS rather than returning a socket that could never be connect()ed
// through this path.
func (m *Manager) Socket(family, typ int) (*vsocket.Socket, error) {
	if family != unix.AF_INET {
		return nil, xerror.ErrAddressFamily
	}
	if typ&unix.SOCK_NONBLOCK == 0 {
		return nil, xerror.ErrBadState
	}
	switch typ &^ unix.SOCK_NONBLOCK {
	case unix.SOCK_STREAM:
		return nil, xerror.ErrNotImplemented
	case unix.SOCK_DGRAM:
	default:
		return nil, xerror.ErrProtocolMismatch
	}

	desc := m.allocDesc()
	local := packet.Endpoint{Addr: Any, Port: 0}
	local, err := m.Bind(packet.Datagram, local, desc)
	if err != nil {
		return nil, err
	}
	udp := vudp.New(desc, local, m.cfg.MSS*64, m.cfg.MSS*64)
	s := vsocket.NewDatagram(desc, local, udp)
	m.sockets[desc] = s
	return s, nil
}

// Connect allocates an ephemeral local endpoint if needed and builds a
// connecting stream socket in SYN_SENT.
func (m *Manager) Connect(local, remote packet.Endpoint, iss uint32, topology oracle.Topology, resolver oracle.Resolver) (*vsocket.Socket, *packet.Packet, error) {
	desc := m.allocDesc()
	local, err := m.Bind(packet.Stream, local, desc)
	if err != nil {
		return nil, nil, err
	}
	loopback := remote.Addr.IsLoopback() || remote.Addr == m.ethernet
	tcp := vtcp.New(desc, local, remote, iss, loopback, m.cfg, m.router, m.timers, m.clock, topology, resolver)
	syn, err := tcp.Connect()
	if err != nil {
		return nil, nil, err
	}
	s := vsocket.NewStream(desc, sockid.Invalid, local, remote, loopback, tcp)
	m.sockets[desc] = s
	return s, syn, nil
}

// Listen binds local and creates a listener backed by a vtcp.Server.
func (m *Manager) Listen(local packet.Endpoint, backlog int) (*vsocket.Socket, error) {
	desc := m.allocDesc()
	local, err := m.Bind(packet.Stream, local, desc)
	if err != nil {
		return nil, err
	}
	nextISS := func() uint32 { return rand.Uint32() }
	srv := vtcp.NewServer(desc, local, backlog, nextISS, m.cfg, m.router, m.timers, m.clock)
	s := vsocket.NewListener(desc, local, srv)
	m.sockets[desc] = s
	return s, nil
}

// Get returns the socket registered under desc, for callers (the transport
// manager's ready-queue round robin) that already hold a descriptor.
func (m *Manager) Get(desc sockid.Descriptor) (*vsocket.Socket, bool) {
	s, ok := m.sockets[desc]
	return s, ok
}

// Lookup resolves a destination endpoint to the socket or listener bound to
// it on this host, per spec.md 4.7's "(protocol, local_port)" rule.
func (m *Manager) Lookup(proto packet.Protocol, local packet.Endpoint) (*vsocket.Socket, bool) {
	desc, ok := m.byPort[portKey{proto, local.Addr, local.Port}]
	if !ok {
		return nil, false
	}
	s, ok := m.sockets[desc]
	return s, ok
}

// Deliver routes an inbound packet to the right socket, demultiplexing
// through a listener's child tables when the destination is a server.
func (m *Manager) Deliver(now uint64, remote packet.Endpoint, local packet.Endpoint, pkt *packet.Packet, topology oracle.Topology, resolver oracle.Resolver) *packet.Packet {
	s, ok := m.Lookup(pkt.Protocol, local)
	if !ok {
		return nil
	}
	switch {
	case s.Server != nil:
		reset := s.Server.Deliver(now, remote, pkt, topology, resolver)
		return reset
	case s.TCP != nil:
		s.TCP.Deliver(now, pkt)
	case s.UDP != nil:
		s.UDP.Deliver(pkt)
	}
	return nil
}

// Accept pulls the next established child off a listener.
func (m *Manager) Accept(listener sockid.Descriptor) (*vsocket.Socket, error) {
	s, ok := m.sockets[listener]
	if !ok || s.Server == nil {
		return nil, xerror.ErrSocketMissing
	}
	child, ok := s.Server.Accept()
	if !ok {
		return nil, xerror.ErrOutOfWindow
	}
	desc := m.allocDesc()
	cs := vsocket.NewStream(desc, listener, child.Local, child.Remote, child.Loopback, child)
	m.sockets[desc] = cs
	return cs, nil
}

// Close marks desc for destruction once drained, or destroys it
// immediately if already drained, notifying the parent listener for
// garbage collection (spec.md 4.7).
func (m *Manager) Close(desc sockid.Descriptor) error {
	s, ok := m.sockets[desc]
	if !ok {
		return xerror.ErrSocketMissing
	}
	if s.Server != nil {
		s.Server.Close()
	}
	s.DeleteWhenDrained = true
	if s.ShouldDestroy() {
		m.destroy(desc, s)
	}
	return nil
}

// Reap scans for drained, close()d sockets and removes them. The worker
// calls it after dispatching every event to the host.
func (m *Manager) Reap() {
	for desc, s := range m.sockets {
		if s.Server != nil && s.Server.ShouldDestroy() {
			m.destroy(desc, s)
			continue
		}
		if s.ShouldDestroy() {
			m.destroy(desc, s)
		}
	}
}

// SocketInfo is a read-only view of one socket for the admin/inspect
// surface (internal/gateway); it never aliases mutable state.
type SocketInfo struct {
	Desc    sockid.Descriptor
	Kind    string
	Local   packet.Endpoint
	Remote  packet.Endpoint
	State   string
	Backlog int
}

// Snapshot dumps every socket currently registered on this host, for
// internal/gateway's /hosts/{addr}/sockets endpoint.
func (m *Manager) Snapshot() []SocketInfo {
	out := make([]SocketInfo, 0, len(m.sockets))
	for _, s := range m.sockets {
		info := SocketInfo{Desc: s.Desc, Local: s.Local, Remote: s.Remote}
		switch {
		case s.Server != nil:
			info.Kind = "listener"
			info.State = "LISTEN"
		case s.TCP != nil:
			info.Kind = "stream"
			info.State = s.TCP.State.String()
		case s.UDP != nil:
			info.Kind = "datagram"
			info.State = "-"
		}
		out = append(out, info)
	}
	return out
}

func (m *Manager) destroy(desc sockid.Descriptor, s *vsocket.Socket) {
	delete(m.sockets, desc)
	for key, d := range m.byPort {
		if d == desc {
			delete(m.byPort, key)
		}
	}
	if s.Parent != sockid.Invalid {
		if parent, ok := m.sockets[s.Parent]; ok && parent.Server != nil {
			parent.Server.RemoveChild(s.Remote)
		}
	}
}

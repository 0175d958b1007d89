package vtcp

import (
	"github.com/netsimio/vnet/internal/oracle"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/sockid"
)

// Server is a listening socket: it owns no send/receive buffers of its own
// and instead demultiplexes inbound SYNs into per-peer child Sockets
// tracked across three tables (spec.md 4.4, 4.7).
type Server struct {
	Desc  sockid.Descriptor
	Local packet.Endpoint

	backlog int

	incomplete  map[packet.Endpoint]*Socket // SYN_RCVD, not yet ACKed
	pending     map[packet.Endpoint]*Socket // ESTABLISHED, awaiting accept()
	acceptOrder []packet.Endpoint           // FIFO mirror of pending, arrival order
	accepted    map[packet.Endpoint]*Socket // handed to the guest via accept()

	destroyWhenEmpty bool

	nextISS func() uint32
	cfg     Config
	router  Router
	timers  Timers
	clock   oracle.Clock
}

// NewServer constructs a listener bound at local with the given accept
// backlog (spec.md 4.7; 0 means unlimited, per the spec's Open Question
// resolution for an unspecified default).
func NewServer(desc sockid.Descriptor, local packet.Endpoint, backlog int, nextISS func() uint32, cfg Config, router Router, timers Timers, clock oracle.Clock) *Server {
	return &Server{
		Desc:       desc,
		Local:      local,
		backlog:    backlog,
		incomplete: make(map[packet.Endpoint]*Socket),
		pending:    make(map[packet.Endpoint]*Socket),
		accepted:   make(map[packet.Endpoint]*Socket),
		nextISS:    nextISS,
		cfg:        cfg,
		router:     router,
		timers:     timers,
		clock:      clock,
	}
}

// pushAcceptOrder appends remote to the FIFO accept queue, mirroring its
// admission into pending.
func (srv *Server) pushAcceptOrder(remote packet.Endpoint) {
	srv.acceptOrder = append(srv.acceptOrder, remote)
}

// backlogFull reports whether the pending-accept queue is at capacity; 0
// means unlimited.
func (srv *Server) backlogFull() bool {
	return srv.backlog > 0 && len(srv.pending) >= srv.backlog
}

// Deliver implements the LISTEN-state rules of spec.md 4.4: a fresh SYN|CON
// demultiplexes into a new child in incomplete_children; anything else
// targeting an unrecognised peer gets RST and is demultiplexed away; a
// packet matching an existing child is routed to that child's own state
// machine.
func (srv *Server) Deliver(now uint64, remote packet.Endpoint, pkt *packet.Packet, topology oracle.Topology, resolver oracle.Resolver) *packet.Packet {
	if child, ok := srv.incomplete[remote]; ok {
		srv.deliverToIncomplete(now, remote, child, pkt)
		return nil
	}
	if child, ok := srv.pending[remote]; ok {
		child.Deliver(now, pkt)
		return nil
	}
	if child, ok := srv.accepted[remote]; ok {
		child.Deliver(now, pkt)
		return nil
	}

	hdr := pkt.TCP
	if hdr == nil || !hdr.Flags.Has(packet.SYN) || !hdr.Flags.Has(packet.CON) || srv.backlogFull() {
		return srv.buildReset(remote, pkt)
	}

	child := New(sockid.Invalid, srv.Local, remote, srv.nextISS(), false, srv.cfg, srv.router, srv.timers, srv.clock, topology, resolver)
	child.State = SynRcvd
	child.rcvNxt = hdr.Seq + 1
	synAck := child.buildControl(packet.SYN | packet.ACK | packet.CON)
	child.sndNxt++
	child.sndEnd++
	child.Buf.AddControl(synAck)
	srv.incomplete[remote] = child
	return nil
}

func (srv *Server) deliverToIncomplete(now uint64, remote packet.Endpoint, child *Socket, pkt *packet.Packet) {
	hdr := pkt.TCP
	if hdr != nil && hdr.Flags.Has(packet.RST) {
		delete(srv.incomplete, remote)
		return
	}
	if hdr == nil || !hdr.Flags.Has(packet.ACK) || !hdr.Flags.Has(packet.CON) {
		return
	}
	if hdr.Ack <= child.iss || hdr.Ack > child.sndNxt {
		return
	}
	child.sndUna = hdr.Ack
	child.State = Established
	child.afterEstablished(now)
	delete(srv.incomplete, remote)
	srv.pending[remote] = child
	srv.pushAcceptOrder(remote)
}

// buildReset constructs an RST for a packet that doesn't match any known
// child and isn't a fresh connection attempt (spec.md 4.4 "Non-SYN packets
// get RST").
func (srv *Server) buildReset(remote packet.Endpoint, pkt *packet.Packet) *packet.Packet {
	ack := uint32(0)
	if pkt.TCP != nil {
		ack = pkt.TCP.Seq + 1
	}
	hdr := &packet.TCPHeader{Ack: ack, Flags: packet.RST}
	return packet.New(packet.Stream, srv.Local, remote, hdr, nil)
}

// Accept pops the oldest established child off the FIFO accept queue into
// accepted, returning it to the guest in arrival order (spec.md 3's
// "pending_children" is accept-ordered, not map-ordered).
func (srv *Server) Accept() (*Socket, bool) {
	for len(srv.acceptOrder) > 0 {
		remote := srv.acceptOrder[0]
		srv.acceptOrder = srv.acceptOrder[1:]

		child, ok := srv.pending[remote]
		if !ok {
			// Child was pruned (e.g. RST'd and removed) before being accepted.
			continue
		}
		delete(srv.pending, remote)
		srv.accepted[remote] = child
		return child, true
	}
	return nil, false
}

// Close marks the listener for destruction once its children drain
// (spec.md 4.7 "destroy-when-empty flag").
func (srv *Server) Close() {
	srv.destroyWhenEmpty = true
}

// RemoveChild notifies the listener that one of its children was
// destroyed, for garbage collection (spec.md 4.7).
func (srv *Server) RemoveChild(remote packet.Endpoint) {
	delete(srv.incomplete, remote)
	delete(srv.pending, remote)
	delete(srv.accepted, remote)

	for i, r := range srv.acceptOrder {
		if r == remote {
			srv.acceptOrder = append(srv.acceptOrder[:i], srv.acceptOrder[i+1:]...)
			break
		}
	}
}

// Empty reports whether all three child tables are empty (spec.md 3
// "Servers are deleted only when all three child tables are empty").
func (srv *Server) Empty() bool {
	return len(srv.incomplete) == 0 && len(srv.pending) == 0 && len(srv.accepted) == 0
}

// ShouldDestroy reports whether Close was called and every child has since
// drained.
func (srv *Server) ShouldDestroy() bool {
	return srv.destroyWhenEmpty && srv.Empty()
}

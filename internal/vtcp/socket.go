package vtcp

import (
	"github.com/netsimio/vnet/internal/epoll"
	"github.com/netsimio/vnet/internal/oracle"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/sockid"
	"github.com/netsimio/vnet/internal/vbuffer"
	"github.com/netsimio/vnet/internal/xerror"
)

// Congestion holds the AIMD congestion-control state (spec.md 4.4.3).
type Congestion struct {
	Window    uint32
	Threshold uint32 // 0 means unset
	SlowStart bool
}

// Socket is one virtual TCP connection endpoint. It owns no goroutine and
// blocks nowhere: every method runs to completion under the caller's host
// lock and returns the packets/timers the caller (transport manager) must
// hand off to VCI or the local tracker.
type Socket struct {
	Desc  sockid.Descriptor
	State State

	Local, Remote packet.Endpoint
	Loopback      bool

	iss uint32 // initial send sequence

	sndUna uint32
	sndNxt uint32
	sndEnd uint32
	sndWnd uint32

	wl1, wl2 uint32
	lastAdv  uint32

	rcvNxt uint32
	rcvWnd uint32
	rcvEnd uint32 // peer's announced close boundary, valid once in CLOSE_WAIT

	Cong Congestion

	dack dackState

	connectionWasReset bool
	closeInitiated     bool

	Buf   *vbuffer.Buffer
	Epoll *epoll.Readiness

	cfg      Config
	router   Router
	timers   Timers
	clock    oracle.Clock
	topology oracle.Topology
	resolver oracle.Resolver
}

// New constructs a CLOSED socket with freshly seeded buffers. iss is the
// initial send sequence number (normally derived from a port/connection
// counter by the socket manager).
func New(
	desc sockid.Descriptor, local, remote packet.Endpoint, iss uint32, loopback bool,
	cfg Config, router Router, timers Timers, clock oracle.Clock,
	topology oracle.Topology, resolver oracle.Resolver,
) *Socket {
	ep := epoll.New()
	buf := vbuffer.New(true, ep, cfg.MSS*64, cfg.MSS*64)
	s := &Socket{
		Desc:     desc,
		State:    Closed,
		Local:    local,
		Remote:   remote,
		Loopback: loopback,
		iss:      iss,
		sndUna:   iss,
		sndNxt:   iss,
		sndEnd:   iss,
		sndWnd:   1,
		rcvWnd:   1,
		Buf:      buf,
		Epoll:    ep,
		cfg:      cfg,
		router:   router,
		timers:   timers,
		clock:    clock,
		topology: topology,
		resolver: resolver,
	}
	s.Cong = Congestion{Window: 1, SlowStart: true}
	s.RefreshReceiveWindow()
	return s
}

// Connect implements spec.md 4.4's CLOSED -> SYN_SENT transition: it builds
// the SYN|CON control packet and leaves it for the caller to hand to the
// wire-selection path (tcp_control FIFO).
func (s *Socket) Connect() (*packet.Packet, error) {
	if s.State != Closed {
		return nil, xerror.ErrBadState
	}
	pkt := s.buildControl(packet.SYN | packet.CON)
	s.sndNxt++
	s.sndEnd++
	s.Buf.AddControl(pkt)
	s.State = SynSent
	return pkt, nil
}

// GuestClose implements the guest_close() half of spec.md 4.4: transition
// to CLOSING and tell the Router to notify the peer of our final sequence
// number, so it knows exactly when it has drained everything we ever sent.
func (s *Socket) GuestClose(now uint64) error {
	switch s.State {
	case Closed, Closing:
		return xerror.ErrBadState
	case CloseWait:
		// Peer already signalled its own close; once our side also closes
		// there is nothing left to drain in either direction.
		s.State = Closed
		return nil
	}
	s.closeInitiated = true
	s.State = Closing
	s.router.SendClose(now, s.Remote, s.Local, s.sndEnd)
	return nil
}

// OnCloseEvent handles an incoming CLOSE wire event (spec.md 4.4 "Close
// event received").
func (s *Socket) OnCloseEvent(rcvEnd uint32) {
	if s.State == Closing {
		// We initiated; the peer's CLOSE is its acknowledgement that our
		// drain is complete.
		s.State = Closed
		return
	}
	s.State = CloseWait
	s.rcvEnd = rcvEnd
	s.Buf.SetMaxSend(0)
	s.Epoll.SetReadable(true)
}

// buildControl constructs a header-only outbound packet stamped with the
// socket's current sequence state.
func (s *Socket) buildControl(flags packet.Flags) *packet.Packet {
	hdr := &packet.TCPHeader{
		Seq:    s.sndNxt,
		Ack:    s.rcvNxt,
		AdvWnd: s.rcvWnd,
		Flags:  flags,
	}
	return packet.New(packet.Stream, s.Local, s.Remote, hdr, nil)
}

// onReset implements the RST handling shared by SynSent/Established paths
// (spec.md 4.4 "Any state receiving RST").
func (s *Socket) onReset() {
	switch s.State {
	case SynSent:
		s.State = Closed
	default:
		s.connectionWasReset = true
		// The socket is not destroyed here; ConnectionWasReset and
		// DrainedAfterReset report the reset, and no package in this
		// module calls either of them.
	}
}

// ConnectionWasReset reports whether a peer RST was observed.
func (s *Socket) ConnectionWasReset() bool { return s.connectionWasReset }

// DrainedAfterReset reports whether it is safe to destroy the socket after
// a reset: every send and receive queue of the buffer is empty.
func (s *Socket) DrainedAfterReset() bool {
	return s.connectionWasReset && s.Buf.NumPackets() == 0
}

// RequestPeerRetransmit asks the remote peer to resend from rcv_nxt. It is
// used by layers above the TCP state machine (the transport manager's NIC
// admission check, spec.md 4.6 "Failure") that must drop a packet before
// Deliver ever sees it.
func (s *Socket) RequestPeerRetransmit(now uint64) {
	s.router.RequestRetransmit(now, s.Local, s.Remote, s.rcvNxt)
}

// Read copies up to len(into) bytes from the head of the receive queue,
// starting from the per-packet read offset, popping the packet once fully
// consumed. It returns eof=true once the socket is in CLOSE_WAIT and the
// queue is empty, matching "leave Epoll readable until guest reads EOF"
// (spec.md 4.4).
func (s *Socket) Read(into []byte) (n int, eof bool) {
	pkt, offset := s.Buf.GetRead()
	if pkt == nil {
		return 0, s.State == CloseWait
	}
	data := pkt.Payload()[*offset:]
	n = copy(into, data)
	*offset += uint32(n)
	if int(*offset) >= len(pkt.Payload()) {
		if p, ok := s.Buf.RemoveRead(); ok {
			p.Release()
		}
	}
	s.RefreshReceiveWindow()
	return n, false
}

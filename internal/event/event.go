package event

import (
	"github.com/rs/xid"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/sockid"
)

// Kind tags which variant of EventKind an Event carries, driving a
// switch-on-variant dispatch in the worker rather than a virtual-table of
// handler function pointers (spec.md 9: "This spec adopts the switch-on-
// variant form and treats the vtable form as a refactor artefact").
type Kind uint8

const (
	OnPacket Kind = iota
	OnNotify
	OnPoll
	OnDack
	OnUploaded
	OnDownloaded
	OnRetransmit
	OnClose
)

func (k Kind) String() string {
	switch k {
	case OnPacket:
		return "on_packet"
	case OnNotify:
		return "on_notify"
	case OnPoll:
		return "on_poll"
	case OnDack:
		return "on_delayed_ack"
	case OnUploaded:
		return "on_uploaded"
	case OnDownloaded:
		return "on_downloaded"
	case OnRetransmit:
		return "on_retransmit"
	case OnClose:
		return "on_close"
	default:
		return "unknown"
	}
}

// RetransmitPayload is the OnRetransmit variant's fields: it names the
// socket to re-send from by its endpoints rather than its descriptor,
// since the scheduler raising the event (VCI, or the receiving peer's
// out-of-window check) only ever knows the connection by address, not by
// the sender's local descriptor (spec.md 4.8, 9 end-to-end scenario 2).
type RetransmitPayload struct {
	SrcAddr addr.Addr
	SrcPort uint16
	DstAddr addr.Addr
	DstPort uint16
	Seq     uint32
}

// ClosePayload is the OnClose variant's fields (spec.md 6, CLOSE wire code).
type ClosePayload struct {
	DstAddr addr.Addr
	DstPort uint16
	SrcAddr addr.Addr
	SrcPort uint16
	RcvEnd  uint32
}

// Event is the tagged payload delivered by a Tracker. Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Trace       xid.ID
	Kind        Kind
	DeliverTime uint64
	Dest        addr.Addr
	Owner       addr.Addr

	// CPUCursor is the host's accumulated CPU delay as of this event's last
	// (re)schedule; the worker compares it against the host's current
	// accumulated delay to decide whether to push the event out further
	// (spec.md 4.8 "CPU-delay interaction").
	CPUCursor uint64

	// Packet is set for OnPacket; releasing an Event that owns a packet
	// reference must call Packet.Release exactly once (spec.md 3, 4.2).
	Packet *packet.Packet

	// Socket is set for OnNotify, OnPoll, OnDack.
	Socket sockid.Descriptor

	Retransmit *RetransmitPayload // set for OnRetransmit
	Close      *ClosePayload      // set for OnClose
}

// NewPacketEvent builds an OnPacket event. The event takes ownership of the
// packet reference: Destroy (or a successful handoff into a buffer) must
// release it exactly once.
func NewPacketEvent(deliverTime uint64, owner, dest addr.Addr, pkt *packet.Packet) Event {
	return Event{
		Trace:       xid.New(),
		Kind:        OnPacket,
		DeliverTime: deliverTime,
		Owner:       owner,
		Dest:        dest,
		Packet:      pkt,
	}
}

// NewSocketEvent builds an OnNotify/OnPoll/OnDack event addressed at a
// single socket on the destination host.
func NewSocketEvent(kind Kind, deliverTime uint64, owner, dest addr.Addr, sock sockid.Descriptor) Event {
	return Event{
		Trace:       xid.New(),
		Kind:        kind,
		DeliverTime: deliverTime,
		Owner:       owner,
		Dest:        dest,
		Socket:      sock,
	}
}

// NewRetransmitEvent builds an OnRetransmit event addressed at the
// endpoint that must re-send: src is the owner of the data being
// retransmitted, dst its peer.
func NewRetransmitEvent(deliverTime uint64, owner, dest addr.Addr, src, dst packet.Endpoint, seq uint32) Event {
	return Event{
		Trace:       xid.New(),
		Kind:        OnRetransmit,
		DeliverTime: deliverTime,
		Owner:       owner,
		Dest:        dest,
		Retransmit: &RetransmitPayload{
			SrcAddr: src.Addr, SrcPort: src.Port,
			DstAddr: dst.Addr, DstPort: dst.Port,
			Seq: seq,
		},
	}
}

// NewCloseEvent builds an OnClose event, carrying the sender's highest
// written byte so the peer knows when it has drained everything it will
// ever receive (spec.md 4.4 "Close event received").
func NewCloseEvent(deliverTime uint64, owner, dest addr.Addr, p ClosePayload) Event {
	return Event{
		Trace:       xid.New(),
		Kind:        OnClose,
		DeliverTime: deliverTime,
		Owner:       owner,
		Dest:        dest,
		Close:       &p,
	}
}

// NewTimerEvent builds a bare OnUploaded/OnDownloaded/OnPoll-less timer
// event with no payload beyond its kind and destination.
func NewTimerEvent(kind Kind, deliverTime uint64, owner, dest addr.Addr) Event {
	return Event{
		Trace:       xid.New(),
		Kind:        kind,
		DeliverTime: deliverTime,
		Owner:       owner,
		Dest:        dest,
	}
}

// Destroy releases any packet reference this event owns. Every event must
// be destroyed exactly once: either by the worker after its handler runs,
// or by whatever decode path discards it early (spec.md 3 "Lifecycles",
// spec.md 8 "every reference is released exactly once").
func (e *Event) Destroy() {
	if e.Packet != nil {
		e.Packet.Release()
		e.Packet = nil
	}
}

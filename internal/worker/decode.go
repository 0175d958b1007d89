package worker

import (
	"fmt"

	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/shm"
	"github.com/netsimio/vnet/internal/wire"
)

// NewDecoder builds the frame-to-event translation a worker runs on
// every inbound mailbox frame, resolving PACKET_*_SHM frames through the
// local worker's own cabinet set rather than copying payload bytes
// (spec.md 4.8, 9 "Cabinet / slot").
func NewDecoder(cabinets map[uint32]*shm.Cabinet) func(*wire.Frame) (event.Event, error) {
	return func(f *wire.Frame) (event.Event, error) {
		switch f.Code {
		case wire.PacketPayload, wire.PacketNoPayload:
			return decodePacket(f, f.Payload), nil
		case wire.PacketPayloadSHM, wire.PacketNoPayloadSHM:
			return decodeSHMPacket(f, cabinets)
		case wire.Retransmit:
			return decodeRetransmit(f), nil
		case wire.Close:
			return decodeClose(f), nil
		default:
			return event.Event{}, fmt.Errorf("worker: unknown frame code %v", f.Code)
		}
	}
}

func decodePacket(f *wire.Frame, payload []byte) event.Event {
	src := packet.Endpoint{Addr: f.SrcAddr, Port: f.SrcPort}
	dst := packet.Endpoint{Addr: f.DstAddr, Port: f.DstPort}
	var hdr *packet.TCPHeader
	if f.Protocol == packet.Stream {
		hdr = &packet.TCPHeader{Seq: f.Seq, Ack: f.Ack, AdvWnd: f.AdvWnd, Flags: f.Flags}
	}
	pkt := packet.New(f.Protocol, src, dst, hdr, payload)
	return event.NewPacketEvent(f.DeliverTime, f.SrcAddr, f.DstAddr, pkt)
}

// decodeSHMPacket resolves the shared-memory slot the sending worker
// acquired and copies its bytes into a private payload: a Resolve-derived
// Handle observes the slot without owning its lifetime (internal/shm,
// Handle.Release doc), so the decoded packet cannot reference it directly
// and must hold its own copy like any other packet.
func decodeSHMPacket(f *wire.Frame, cabinets map[uint32]*shm.Cabinet) (event.Event, error) {
	if f.SHM == nil {
		return event.Event{}, fmt.Errorf("worker: SHM frame missing slot reference")
	}
	cab, ok := cabinets[f.SHM.CabinetID]
	if !ok {
		return event.Event{}, fmt.Errorf("worker: no local cabinet %d", f.SHM.CabinetID)
	}
	handle, ok := cab.Resolve(f.SHM.SlotID)
	if !ok {
		return event.Event{}, fmt.Errorf("worker: unresolved slot %d in cabinet %d", f.SHM.SlotID, f.SHM.CabinetID)
	}
	payload := append([]byte(nil), handle.Data()...)
	return decodePacket(f, payload), nil
}

// decodeRetransmit addresses the event at f.SrcAddr: wire.NewRetransmit
// puts the resending socket's own host in Frame.SrcAddr (the "to" argument
// at the send side, matching vci.requestRetransmit's local-path Dest), not
// Frame.DstAddr, which names the peer missing the data.
func decodeRetransmit(f *wire.Frame) event.Event {
	src := packet.Endpoint{Addr: f.SrcAddr, Port: f.SrcPort}
	dst := packet.Endpoint{Addr: f.DstAddr, Port: f.DstPort}
	return event.NewRetransmitEvent(f.DeliverTime, f.DstAddr, f.SrcAddr, src, dst, f.Seq)
}

func decodeClose(f *wire.Frame) event.Event {
	return event.NewCloseEvent(f.DeliverTime, f.SrcAddr, f.DstAddr, event.ClosePayload{
		DstAddr: f.DstAddr, DstPort: f.DstPort,
		SrcAddr: f.SrcAddr, SrcPort: f.SrcPort,
		RcvEnd: f.RcvEnd,
	})
}

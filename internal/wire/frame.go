// Package wire implements the cross-worker event frame: the serialised
// form an event takes when it crosses from one worker's goroutine to
// another's, carried over a Go channel rather than a real network link.
// Frames are CBOR-encoded (github.com/fxamacker/cbor/v2), chosen over a
// generated protobuf message because the retrieved control-plane
// protobuf package ships only its grpc service stubs and not the
// generated message types, so hand-maintaining wire-compatible protobuf
// structs by hand would be unverifiable without a protoc run.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/packet"
)

// Code identifies a frame's shape, per spec.md 6.
type Code uint8

const (
	PacketPayload Code = iota
	PacketNoPayload
	PacketPayloadSHM
	PacketNoPayloadSHM
	Retransmit
	Close
)

func (c Code) String() string {
	switch c {
	case PacketPayload:
		return "PACKET_PAYLOAD"
	case PacketNoPayload:
		return "PACKET_NOPAYLOAD"
	case PacketPayloadSHM:
		return "PACKET_PAYLOAD_SHM"
	case PacketNoPayloadSHM:
		return "PACKET_NOPAYLOAD_SHM"
	case Retransmit:
		return "RETRANSMIT"
	case Close:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// SHMRef locates a shared-memory-backed payload on the sending worker, so
// the receiving worker can resolve it via internal/shm.Cabinet.Resolve.
type SHMRef struct {
	ProcessID   uint32 `cbor:"pid"`
	CabinetID   uint32 `cbor:"cab"`
	CabinetSize uint64 `cbor:"cabsz"`
	SlotID      uint32 `cbor:"slot"`
}

// Frame is the on-wire representation of one event crossing worker
// boundaries. Only the fields relevant to Code are populated; the rest
// are the CBOR-encoded zero value, which omitempty drops from the wire.
type Frame struct {
	Code Code `cbor:"c"`

	DeliverTime uint64 `cbor:"t"`

	Protocol packet.Protocol `cbor:"proto,omitempty"`
	SrcAddr  addr.Addr       `cbor:"sa,omitempty"`
	SrcPort  uint16          `cbor:"sp,omitempty"`
	DstAddr  addr.Addr       `cbor:"da,omitempty"`
	DstPort  uint16          `cbor:"dp,omitempty"`

	Seq    uint32       `cbor:"seq,omitempty"`
	Ack    uint32       `cbor:"ack,omitempty"`
	AdvWnd uint32       `cbor:"wnd,omitempty"`
	Flags  packet.Flags `cbor:"flags,omitempty"`

	DataSize uint32 `cbor:"sz,omitempty"`
	Payload  []byte `cbor:"pl,omitempty"`

	SHM *SHMRef `cbor:"shm,omitempty"`

	RcvEnd uint32 `cbor:"rcvend,omitempty"`
}

// Encode serialises a frame to CBOR bytes.
func Encode(f *Frame) ([]byte, error) {
	b, err := cbor.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("wire: encode failed: %w", err)
	}
	return b, nil
}

// Decode parses a CBOR-encoded frame.
func Decode(b []byte) (*Frame, error) {
	f := &Frame{}
	if err := cbor.Unmarshal(b, f); err != nil {
		return nil, fmt.Errorf("wire: decode failed: %w", err)
	}
	return f, nil
}

// FromPacket builds a PACKET_* frame from a live packet and its TCP
// header (header may be nil for datagrams).
func FromPacket(deliverTime uint64, pkt *packet.Packet, withPayload bool) *Frame {
	f := &Frame{
		DeliverTime: deliverTime,
		Protocol:    pkt.Protocol,
		SrcAddr:     pkt.Src.Addr,
		SrcPort:     pkt.Src.Port,
		DstAddr:     pkt.Dst.Addr,
		DstPort:     pkt.Dst.Port,
		DataSize:    pkt.DataSize,
	}
	if pkt.TCP != nil {
		f.Seq = pkt.TCP.Seq
		f.Ack = pkt.TCP.Ack
		f.AdvWnd = pkt.TCP.AdvWnd
		f.Flags = pkt.TCP.Flags
	}
	if withPayload {
		f.Code = PacketPayload
		f.Payload = pkt.Payload()
	} else {
		f.Code = PacketNoPayload
	}
	return f
}

// FromSharedPacket builds a PACKET_*_SHM frame referencing a shared-memory
// slot instead of copying the payload. It carries the same addressing and
// header fields as FromPacket so the receiving worker's decode path never
// needs to special-case the SHM variant beyond resolving the slot.
func FromSharedPacket(deliverTime uint64, pkt *packet.Packet, ref SHMRef, withPayload bool) *Frame {
	f := &Frame{
		DeliverTime: deliverTime,
		Protocol:    pkt.Protocol,
		SrcAddr:     pkt.Src.Addr,
		SrcPort:     pkt.Src.Port,
		DstAddr:     pkt.Dst.Addr,
		DstPort:     pkt.Dst.Port,
		DataSize:    pkt.DataSize,
		SHM:         &ref,
	}
	if pkt.TCP != nil {
		f.Seq = pkt.TCP.Seq
		f.Ack = pkt.TCP.Ack
		f.AdvWnd = pkt.TCP.AdvWnd
		f.Flags = pkt.TCP.Flags
	}
	if withPayload {
		f.Code = PacketPayloadSHM
	} else {
		f.Code = PacketNoPayloadSHM
	}
	return f
}

// NewRetransmit builds a RETRANSMIT frame: src names the socket that must
// resend starting at seq (addressed by the arriving frame's destination
// host), dst its peer.
func NewRetransmit(deliverTime uint64, src, dst packet.Endpoint, seq uint32) *Frame {
	return &Frame{
		Code:        Retransmit,
		DeliverTime: deliverTime,
		SrcAddr:     src.Addr,
		SrcPort:     src.Port,
		DstAddr:     dst.Addr,
		DstPort:     dst.Port,
		Seq:         seq,
	}
}

// NewClose builds a CLOSE frame.
func NewClose(deliverTime uint64, dst, src packet.Endpoint, rcvEnd uint32) *Frame {
	return &Frame{
		Code:        Close,
		DeliverTime: deliverTime,
		DstAddr:     dst.Addr,
		DstPort:     dst.Port,
		SrcAddr:     src.Addr,
		SrcPort:     src.Port,
		RcvEnd:      rcvEnd,
	}
}

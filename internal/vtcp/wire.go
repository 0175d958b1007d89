package vtcp

import "github.com/netsimio/vnet/internal/packet"

// SelectForTransmit implements spec.md 4.4.2: control packets (SYN/ACK/FIN/
// RST) always transmit before data, and the chosen packet is stamped with
// the current receive window and (if it carries ACK) the current rcv_nxt,
// clearing any pending delayed-ACK request. The packet is then parked in
// tcp_retransmit until it is acknowledged.
func (s *Socket) SelectForTransmit() (*packet.Packet, bool) {
	if queued, ok := s.Buf.RemoveTCPControl(); ok {
		out := s.stampForWire(queued)
		queued.Release()
		s.Buf.AddRetransmit(out, out.TCP.Seq)
		out.Retain()
		return out, true
	}

	queued, key, ok := s.Buf.GetSend(s.sndUna + s.sndWnd)
	if !ok {
		return nil, false
	}
	if _, removed := s.Buf.RemoveSend(key); !removed {
		return nil, false
	}
	out := s.stampForWire(queued)
	queued.Release()
	s.Buf.AddRetransmit(out, out.TCP.Seq)
	out.Retain()
	return out, true
}

// stampForWire clones pkt and stamps the copy with the current receive
// window and (if it carries ACK) the current rcv_nxt, clearing any pending
// delayed-ACK request — packets are immutable after construction, so
// stamping always produces a fresh packet rather than editing pkt in place
// (spec.md 4.2, 4.4.2).
func (s *Socket) stampForWire(pkt *packet.Packet) *packet.Packet {
	out := pkt.Clone()
	out.TCP.AdvWnd = s.rcvWnd
	if out.TCP.Flags.Has(packet.ACK) {
		out.TCP.Ack = s.rcvNxt
		s.dack.requested = false
	}
	return out
}

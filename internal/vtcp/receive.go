package vtcp

import (
	"github.com/netsimio/vnet/internal/metrics"
	"github.com/netsimio/vnet/internal/packet"
)

// Deliver processes one inbound packet against this socket's state machine
// (spec.md 4.4). now is the current simulated time, used to arm the
// delayed-ACK timer if needed. The caller retains ownership of pkt; Deliver
// never releases it.
func (s *Socket) Deliver(now uint64, pkt *packet.Packet) {
	hdr := pkt.TCP
	if hdr == nil {
		return
	}

	if hdr.Flags.Has(packet.RST) {
		s.onReset()
		return
	}

	switch s.State {
	case SynSent:
		s.deliverSynSent(now, hdr)
		return
	case Closed, Listen:
		// A standalone CLOSED/LISTEN socket (not a listener's child) has
		// nothing to do with inbound segments; the socket manager routes
		// LISTEN-state SYNs to the server's demultiplexer instead.
		return
	}

	if !s.inReceiveWindow(hdr.Seq) {
		if hdr.Seq >= s.rcvNxt+s.rcvWnd || pkt.DataSize > 0 {
			s.router.RequestRetransmit(now, s.Local, s.Remote, s.rcvNxt)
		}
		return
	}

	if hdr.Flags.Has(packet.ACK) {
		s.processAck(hdr.Ack, hdr.Seq, hdr.AdvWnd)
	}

	if s.State == SynRcvd && hdr.Flags.Has(packet.ACK) && hdr.Flags.Has(packet.CON) {
		s.State = Established
		s.afterEstablished(now)
	}

	if pkt.DataSize > 0 {
		s.processData(now, pkt, hdr)
	}
}

// inReceiveWindow reports whether seq falls in [rcv_nxt, rcv_nxt+rcv_wnd).
func (s *Socket) inReceiveWindow(seq uint32) bool {
	return seq >= s.rcvNxt && seq < s.rcvNxt+s.rcvWnd
}

func (s *Socket) deliverSynSent(now uint64, hdr *packet.TCPHeader) {
	if !hdr.Flags.Has(packet.SYN) || !hdr.Flags.Has(packet.CON) {
		return
	}
	if hdr.Ack <= s.iss || hdr.Ack > s.sndNxt {
		return
	}
	s.sndUna = hdr.Ack
	s.rcvNxt = hdr.Seq + 1
	ack := s.buildControl(packet.ACK | packet.CON)
	s.Buf.AddControl(ack)
	s.State = Established
	s.afterEstablished(now)
}

// processAck implements the pure-ACK half of spec.md 4.4.3: advance
// snd_una, clear acknowledged retransmit entries, update the congestion
// window by the number of newly acked packets, and update the send window
// using the standard "newer window update" comparison.
func (s *Socket) processAck(ack, seq, advWnd uint32) {
	if ack <= s.sndUna || ack > s.sndNxt {
		return
	}
	n := ack - s.sndUna
	s.sndUna = ack
	s.Buf.ClearTCPRetransmit(true, ack)
	s.onAcked(n)

	if s.wl1 < seq || (s.wl1 == seq && s.wl2 <= ack) {
		s.wl1 = seq
		s.wl2 = ack
		s.lastAdv = advWnd
	}
	s.refreshSendWindow()
}

// processData implements spec.md 4.4.4: in-order segments go straight to
// vread and drain any now-contiguous gap fillers; out-of-order segments
// are parked in tcp_unprocessed (or trigger a retransmit request if there
// is no room to park them).
func (s *Socket) processData(now uint64, pkt *packet.Packet, hdr *packet.TCPHeader) {
	if hdr.Seq == s.rcvNxt {
		if s.State == Established || s.State == CloseWait {
			pkt.Retain()
			s.Buf.AddRead(pkt)
		}
		s.rcvNxt++
		for {
			next, ok := s.Buf.RemoveTCPUnprocessed(s.rcvNxt)
			if !ok {
				break
			}
			s.Buf.AddRead(next)
			s.rcvNxt++
		}
		s.RefreshReceiveWindow()
		s.onDataReceived(now)
		return
	}

	if err := s.Buf.AddReceive(pkt.Clone()); err != nil {
		s.router.RequestRetransmit(now, s.Local, s.Remote, s.rcvNxt)
		return
	}
	s.RefreshReceiveWindow()
}

// afterEstablished runs the side effects of entering ESTABLISHED: autotune
// (spec.md 4.4.7) and a handshake metric.
func (s *Socket) afterEstablished(now uint64) {
	metrics.HandshakesTotal.Inc()
	if s.cfg.AutotuneEnabled {
		s.autotune()
	}
}

package vtcp

import "github.com/netsimio/vnet/internal/metrics"

// OnRetransmitRequested implements spec.md 4.4.6's retransmit event,
// raised either by VCI's loss detection telling us the peer never saw a
// segment, or by the peer's own out-of-window check (spec.md 4.8, 9): shrink
// the congestion window, pull the packet back out of tcp_retransmit by
// seq, and re-insert it into the control or send path so it leaves again.
// If seq is no longer present (a later ACK already cleared it), this is a
// no-op.
func (s *Socket) OnRetransmitRequested(seq uint32) {
	pkt, ok := s.Buf.RemoveRetransmit(seq)
	if !ok {
		return
	}
	s.onRetransmitTrigger()
	metrics.RetransmitsTotal.Inc()

	if pkt.DataSize > 0 {
		if err := s.Buf.AddSend(pkt, seq); err != nil {
			// No room to re-queue right now; drop it. Only a later
			// retransmit request can bring it back: there is no
			// retransmission timer.
			pkt.Release()
		}
		return
	}
	s.Buf.AddControl(pkt)
}

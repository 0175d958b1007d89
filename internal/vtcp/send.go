package vtcp

import (
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/xerror"
)

// Send implements spec.md 4.4.1: chop bytes into MSS-sized segments and
// hand each to the buffer's send-side queue. Sequence numbers are
// packet-counted (spec.md 10 Open Question, resolved in favour of
// preserving the source's semantics): each accepted segment bumps snd_end
// and snd_nxt by exactly one, regardless of its byte length.
func (s *Socket) Send(data []byte) (accepted int, err error) {
	if s.State != Established {
		// CLOSE_WAIT means the peer already announced it will accept no
		// more data (spec.md 4.4 "Close event received").
		return 0, xerror.ErrBadState
	}
	for len(data) > 0 {
		n := len(data)
		if uint32(n) > s.cfg.MSS {
			n = int(s.cfg.MSS)
		}
		chunk := data[:n]

		hdr := &packet.TCPHeader{
			Seq:    s.sndNxt,
			Ack:    s.rcvNxt,
			AdvWnd: s.rcvWnd,
			Flags:  packet.ACK,
		}
		pkt := packet.New(packet.Stream, s.Local, s.Remote, hdr, append([]byte(nil), chunk...))
		if err := s.Buf.AddSend(pkt, s.sndNxt); err != nil {
			pkt.Release()
			break
		}
		s.sndNxt++
		s.sndEnd++
		accepted += n
		data = data[n:]
	}
	return accepted, nil
}

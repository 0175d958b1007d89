package vtcp

import (
	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/packet"
)

// dackState tracks the delayed-ACK timer fields of spec.md 4.4.5.
type dackState struct {
	requested bool
	scheduled bool
}

// onDataReceived implements the delayed-ACK half of spec.md 4.4.5: with
// delayed ACK enabled, mark an ACK as owed and arm a timer if one isn't
// already running; with it disabled, send a bare ACK immediately.
func (s *Socket) onDataReceived(now uint64) {
	if !s.cfg.DelayedACK {
		s.sendBareACK()
		return
	}
	s.dack.requested = true
	if !s.dack.scheduled {
		s.dack.scheduled = true
		ev := event.NewSocketEvent(event.OnDack, now+s.cfg.DelayedACKMs, s.Local.Addr, s.Local.Addr, s.Desc)
		s.timers.Schedule(ev)
	}
}

// OnDackTimer fires when a previously armed delayed-ACK timer expires
// (spec.md 4.4.5 "On timer fire").
func (s *Socket) OnDackTimer() {
	s.dack.scheduled = false
	if s.dack.requested {
		s.sendBareACK()
	}
}

func (s *Socket) sendBareACK() {
	s.dack.requested = false
	ack := s.buildControl(packet.ACK)
	s.Buf.AddControl(ack)
}

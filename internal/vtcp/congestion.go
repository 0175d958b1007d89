package vtcp

// onAcked updates the congestion window after n newly-acknowledged packets
// (spec.md 4.4.3). Slow start grows by n per ack until cng_threshold is
// crossed (or, before any retransmit has set a threshold, indefinitely);
// congestion avoidance grows by n*n/cng_wnd.
func (s *Socket) onAcked(n uint32) {
	if n == 0 {
		return
	}
	c := &s.Cong
	if c.SlowStart {
		c.Window += n
		if c.Threshold != 0 && c.Window >= c.Threshold {
			c.SlowStart = false
		}
		return
	}
	c.Window += (n * n) / max32(c.Window, 1)
}

// onRetransmitTrigger implements the AIMD multiplicative decrease: the
// window is halved (floor 1) and, the first time this fires, the current
// window becomes the slow-start threshold and slow start is turned off via
// fast retransmit (spec.md 4.4.3).
func (s *Socket) onRetransmitTrigger() {
	c := &s.Cong
	if c.Threshold == 0 {
		c.Threshold = c.Window
	}
	c.SlowStart = false
	c.Window = max32(1, c.Window/2)
}

// refreshSendWindow recomputes snd_wnd from the advertised window and the
// congestion window (spec.md 4.4.3: "snd_wnd := max(1, min(last_adv_wnd,
// cng_wnd))").
func (s *Socket) refreshSendWindow() {
	s.sndWnd = max32(1, min32(s.lastAdv, s.Cong.Window))
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

package vtcp

// RefreshReceiveWindow implements spec.md 4.4.8: rcv_wnd tracks available
// receive-buffer space, in MSS-sized units. Call after any change to the
// receive buffer's free space (new data admitted, guest read draining it).
func (s *Socket) RefreshReceiveWindow() {
	available := s.Buf.RecvSpaceAvailable()
	s.rcvWnd = max32(1, min32(^uint32(0), available/s.cfg.MSS))
}

package vtcp

import "github.com/netsimio/vnet/internal/addr"

// autotune implements spec.md 4.4.7: on entering ESTABLISHED, size the send
// and receive buffers to the bandwidth-delay product (with a 1.25x
// overhead factor), using the lower of local/peer bandwidth in each
// direction. Loopback connections skip the oracle lookups and use a fixed
// size in both directions.
func (s *Socket) autotune() {
	if s.Loopback {
		s.Buf.SetMaxSend(s.cfg.LoopbackBufSize)
		s.Buf.SetMaxRecv(s.cfg.LoopbackBufSize)
		return
	}

	srcNet := resolveNet(addr.DefaultScheme, s.Local.Addr)
	dstNet := resolveNet(addr.DefaultScheme, s.Remote.Addr)

	sendLatencyMs := s.topology.Latency(srcNet, dstNet)
	recvLatencyMs := s.topology.Latency(dstNet, srcNet)

	localUp := s.resolver.UpBW(s.Local.Addr)
	peerDown := s.resolver.DownBW(s.Remote.Addr)
	sendBWKBps := min64(localUp, peerDown)

	localDown := s.resolver.DownBW(s.Local.Addr)
	peerUp := s.resolver.UpBW(s.Remote.Addr)
	recvBWKBps := min64(localDown, peerUp)

	sendBytes := bandwidthDelayProduct(sendBWKBps, sendLatencyMs)
	recvBytes := bandwidthDelayProduct(recvBWKBps, recvLatencyMs)

	s.Buf.SetMaxSend(sendBytes)
	s.Buf.SetMaxRecv(recvBytes)
}

// bandwidthDelayProduct converts a kilobytes/second bandwidth and a
// one-way latency in milliseconds to a buffer size in bytes, padded by 25%
// for overhead (spec.md 4.4.7).
func bandwidthDelayProduct(bwKBps, latencyMs uint64) uint32 {
	bytes := bwKBps * 1000 * latencyMs / 1000 // kB/s * ms -> bytes
	bytes = bytes * 5 / 4
	if bytes == 0 {
		bytes = 1
	}
	if bytes > 1<<31 {
		bytes = 1 << 31
	}
	return uint32(bytes)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

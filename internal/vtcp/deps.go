package vtcp

import (
	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/packet"
)

// Router is the seam between a socket and its host's environment: routing
// a close notification or a retransmit request to the peer is VCI's job
// (the peer may be on another worker or host entirely), so a socket only
// describes the logical send and leaves delivery to its Router.
type Router interface {
	SendClose(now uint64, dst, src packet.Endpoint, rcvEnd uint32)
	RequestRetransmit(now uint64, src, dst packet.Endpoint, seq uint32)
}

// Timers is the local (same-host, same-worker) event tracker a socket uses
// to arm its own delayed-ACK and retransmission timers. Unlike Router,
// timers never cross a host boundary, so a socket can schedule directly.
type Timers interface {
	Schedule(ev event.Event)
}

// Config holds the sysconfig-backed knobs that affect the state machine,
// resolved once at socket construction (spec.md 4.4.5, 4.4.7).
type Config struct {
	MSS             uint32
	DelayedACK      bool
	DelayedACKMs    uint64
	AutotuneEnabled bool
	LoopbackBufSize uint32
}

// DefaultConfig mirrors the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MSS:             1460,
		DelayedACK:      true,
		DelayedACKMs:    10,
		AutotuneEnabled: true,
		LoopbackBufSize: 16 << 20,
	}
}

// resolveNet maps an address to the network-id space the latency/
// reliability oracles key on (spec.md glossary: "Network id" is the
// high-order bits identifying a host's network region; here it is the
// packed slave id, since that is the coarsest region a topology oracle can
// reasonably model).
func resolveNet(scheme addr.Scheme, a addr.Addr) int {
	return int(scheme.SlaveID(a))
}

// Package vci implements the Virtual Communications Interface (spec.md
// 4.8): it classifies an outbound packet's destination, samples loss and
// latency from the topology oracle, and either injects an event directly
// onto a same-worker destination or serialises a wire frame for another
// worker to pick up.
package vci

import (
	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/oracle"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/rng"
	"github.com/netsimio/vnet/internal/shm"
	"github.com/netsimio/vnet/internal/wire"
)

// Class is a destination classification (spec.md 4.8).
type Class int

const (
	SameWorker Class = iota
	SameHostDifferentWorker
	DifferentHost
)

// Dispatcher is the worker-layer boundary VCI schedules through. ScheduleLocal
// injects an event directly into dest's own tracker (same-worker case);
// SendFrame hands a serialised frame to the worker owning destWorker,
// whether that worker lives on this OS process (shared-memory path
// eligible) or must cross an actual host boundary.
type Dispatcher interface {
	ScheduleLocal(ev event.Event)
	SendFrame(destWorker uint32, frame *wire.Frame)
}

// Config configures one VCI instance, which runs embedded in one worker.
type Config struct {
	Scheme      addr.Scheme
	MyWorkerID  uint32
	ShmEnabled  bool
	ShmCabinets map[uint32]*shm.Cabinet // destWorkerID -> shared cabinet, when ShmEnabled
}

// VCI ties together the address scheme, the loss/latency oracle, a
// deterministic per-(src,dst)-network RNG, and the dispatcher that actually
// moves events/frames across worker or host boundaries.
type VCI struct {
	cfg      Config
	rngSrc   *rng.Source
	topology oracle.Topology
	dispatch Dispatcher
}

// New constructs a VCI for one worker.
func New(cfg Config, rngSrc *rng.Source, topology oracle.Topology, dispatch Dispatcher) *VCI {
	return &VCI{cfg: cfg, rngSrc: rngSrc, topology: topology, dispatch: dispatch}
}

func (v *VCI) nets(src, dst addr.Addr) (int, int) {
	return int(v.cfg.Scheme.SlaveID(src)), int(v.cfg.Scheme.SlaveID(dst))
}

// Classify implements spec.md 4.8's three-way destination split.
func (v *VCI) Classify(src, dst addr.Addr) Class {
	srcSlave, dstSlave := v.cfg.Scheme.SlaveID(src), v.cfg.Scheme.SlaveID(dst)
	if srcSlave != dstSlave {
		return DifferentHost
	}
	if v.cfg.Scheme.WorkerID(src) == v.cfg.Scheme.WorkerID(dst) {
		return SameWorker
	}
	return SameHostDifferentWorker
}

func (v *VCI) destWorker(dst addr.Addr) uint32 {
	return v.cfg.Scheme.WorkerID(dst)
}

// sampleLoss implements step 1 of spec.md 4.8: sample uniform u and compare
// against the topology's reliability for this network pair. A true return
// means the packet must be dropped.
func (v *VCI) sampleLoss(src, dst addr.Addr) bool {
	srcNet, dstNet := v.nets(src, dst)
	stream := v.rngSrc.ForPair(srcNet, dstNet)
	return stream.Unit() > v.topology.Reliability(srcNet, dstNet)
}

func (v *VCI) deliverTime(now uint64, src, dst addr.Addr) uint64 {
	srcNet, dstNet := v.nets(src, dst)
	return now + v.topology.Latency(srcNet, dstNet)
}

// TransmitPacket implements spec.md 4.8's main outbound path, called by the
// transport manager's upload_next once wire selection has chosen a packet.
// pkt is consumed: TransmitPacket always releases exactly one reference.
// It satisfies transport.Uplink.
func (v *VCI) TransmitPacket(now uint64, pkt *packet.Packet) {
	defer pkt.Release()
	owner := pkt.Src.Addr

	if v.sampleLoss(pkt.Src.Addr, pkt.Dst.Addr) {
		// The packet never reaches its destination; tell its own sender to
		// resend, matching spec.md 9 end-to-end scenario 2 ("a retransmit
		// event is scheduled back at sA").
		v.requestRetransmit(now, pkt.Src, pkt.Dst, firstSeq(pkt))
		return
	}

	dt := v.deliverTime(now, pkt.Src.Addr, pkt.Dst.Addr)
	switch v.Classify(pkt.Src.Addr, pkt.Dst.Addr) {
	case SameWorker:
		pkt.Retain()
		v.dispatch.ScheduleLocal(event.NewPacketEvent(dt, owner, pkt.Dst.Addr, pkt))
	case SameHostDifferentWorker:
		if v.cfg.ShmEnabled {
			if frame, ok := v.tryShareViaSHM(dt, pkt); ok {
				v.dispatch.SendFrame(v.destWorker(pkt.Dst.Addr), frame)
				return
			}
		}
		v.dispatch.SendFrame(v.destWorker(pkt.Dst.Addr), wire.FromPacket(dt, pkt, true))
	case DifferentHost:
		v.dispatch.SendFrame(v.destWorker(pkt.Dst.Addr), wire.FromPacket(dt, pkt, true))
	}
}

func (v *VCI) tryShareViaSHM(deliverTime uint64, pkt *packet.Packet) (*wire.Frame, bool) {
	cab, ok := v.cfg.ShmCabinets[v.destWorker(pkt.Dst.Addr)]
	if !ok {
		return nil, false
	}
	handle, err := cab.Acquire(pkt.Payload())
	if err != nil {
		return nil, false
	}
	ref := wire.SHMRef{CabinetID: handle.CabinetID(), SlotID: handle.SlotID()}
	return wire.FromSharedPacket(deliverTime, pkt, ref, true), true
}

func firstSeq(pkt *packet.Packet) uint32 {
	if pkt.TCP == nil {
		return 0
	}
	return pkt.TCP.Seq
}

// SendClose implements vtcp.Router: it routes a CLOSE notification to the
// peer, same-worker direct or cross-worker/host via a wire frame.
func (v *VCI) SendClose(now uint64, dst, src packet.Endpoint, rcvEnd uint32) {
	dt := v.deliverTime(now, src.Addr, dst.Addr)
	if v.Classify(src.Addr, dst.Addr) == SameWorker {
		v.dispatch.ScheduleLocal(event.NewCloseEvent(dt, src.Addr, dst.Addr, event.ClosePayload{
			DstAddr: dst.Addr, DstPort: dst.Port,
			SrcAddr: src.Addr, SrcPort: src.Port,
			RcvEnd: rcvEnd,
		}))
		return
	}
	v.dispatch.SendFrame(v.destWorker(dst.Addr), wire.NewClose(dt, dst, src, rcvEnd))
}

// RequestRetransmit implements vtcp.Router: it asks the peer (the original
// sender of the segment we're missing) to resend starting at seq.
func (v *VCI) RequestRetransmit(now uint64, src, dst packet.Endpoint, seq uint32) {
	v.requestRetransmit(now, dst, src, seq)
}

// requestRetransmit addresses the request at `to`, reporting `from` as the
// endpoint that is missing data, matching wire.NewRetransmit's (src, dst)
// ordering: src is the peer being asked to resend, dst is us.
func (v *VCI) requestRetransmit(now uint64, to, from packet.Endpoint, seq uint32) {
	dt := v.deliverTime(now, from.Addr, to.Addr)
	if v.Classify(from.Addr, to.Addr) == SameWorker {
		v.dispatch.ScheduleLocal(event.NewRetransmitEvent(dt, from.Addr, to.Addr, to, from, seq))
		return
	}
	v.dispatch.SendFrame(v.destWorker(to.Addr), wire.NewRetransmit(dt, to, from, seq))
}

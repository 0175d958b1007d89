// Package transport implements the per-host Virtual Transport Manager
// (spec.md 4.6): batched upload/download pipelines that round-robin ready
// sockets through wire selection and hand the result to VCI, and admit
// inbound packets into each socket's state machine through a NIC-queue
// byte budget.
package transport

import (
	"github.com/netsimio/vnet/internal/metrics"
	"github.com/netsimio/vnet/internal/oracle"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/sockid"
	"github.com/netsimio/vnet/internal/socketmgr"
	"github.com/netsimio/vnet/internal/vsocket"
)

// wireOverheadBytes approximates the link-layer/IP/TCP framing cost added
// to every packet's payload when sizing it against the batch's byte
// budget, so that header-only control packets still consume a sliver of
// bandwidth.
const wireOverheadBytes = 40

// Uplink is the VCI boundary the transport manager hands selected packets
// to for scheduling across the simulated wire.
type Uplink interface {
	TransmitPacket(now uint64, pkt *packet.Packet)
}

// Scheduler lets the transport manager arm its own uploaded/downloaded
// continuation timers on the host's local tracker.
type Scheduler interface {
	ScheduleUploaded(deliverTime uint64)
	ScheduleDownloaded(deliverTime uint64)
}

// Config holds the per-host bandwidth and batching constants of spec.md
// 4.6.
type Config struct {
	BytesPerMsDown uint64
	BytesPerMsUp   uint64
	BatchMs        uint64 // default 10
	InqMaxBytes    uint32 // NIC receive-queue budget
}

// DefaultConfig matches spec.md 4.6's T_batch = 10ms default, with
// generous default bandwidth standing in for "no device-level shaping
// configured".
func DefaultConfig() Config {
	return Config{
		BytesPerMsDown: 125_000, // 1 Gbps
		BytesPerMsUp:   125_000,
		BatchMs:        10,
		InqMaxBytes:    1 << 20,
	}
}

type inboundItem struct {
	remote packet.Endpoint
	local  packet.Endpoint
	pkt    *packet.Packet
}

// Manager drives one host's upload and download batch pipelines.
type Manager struct {
	cfg     Config
	sockets *socketmgr.Manager

	uplink    Uplink
	scheduler Scheduler
	topology  oracle.Topology
	resolver  oracle.Resolver

	sendReady    []sockid.Descriptor
	sendReadySet map[sockid.Descriptor]bool
	lastUploadAt uint64
	nextSendFire uint64

	inq          []inboundItem
	inqBytes     uint32
	lastDownloadAt uint64
	nextRecvFire   uint64
}

// New constructs a transport manager bound to one host's socket manager.
func New(cfg Config, sockets *socketmgr.Manager, uplink Uplink, scheduler Scheduler, topology oracle.Topology, resolver oracle.Resolver) *Manager {
	return &Manager{
		cfg:          cfg,
		sockets:      sockets,
		uplink:       uplink,
		scheduler:    scheduler,
		topology:     topology,
		resolver:     resolver,
		sendReadySet: make(map[sockid.Descriptor]bool),
	}
}

// ReadySend implements spec.md 4.6's ready_send: queue desc for the next
// upload batch, firing immediately if no batch is currently throttled.
func (m *Manager) ReadySend(now uint64, desc sockid.Descriptor) {
	if m.sendReadySet[desc] {
		return
	}
	m.sendReady = append(m.sendReady, desc)
	m.sendReadySet[desc] = true
	if now >= m.nextSendFire {
		m.UploadNext(now)
	}
}

// UploadNext implements spec.md 4.6's upload_next: drain the ready queue
// round robin, spending up to one batch window's byte budget, handing
// each selected packet to VCI.
func (m *Manager) UploadNext(now uint64) {
	budget := m.cfg.BatchMs * m.cfg.BytesPerMsUp
	var consumed uint64

	for consumed < budget && len(m.sendReady) > 0 {
		desc := m.sendReady[0]
		m.sendReady = m.sendReady[1:]
		delete(m.sendReadySet, desc)

		s, ok := m.sockets.Get(desc)
		if !ok {
			continue
		}
		pkt, hasMore, ok := selectForTransmit(s)
		if !ok {
			continue
		}
		m.uplink.TransmitPacket(now, pkt)
		consumed += wireBytes(pkt)
		metrics.BytesTransferredTotal.WithLabelValues("up").Add(float64(wireBytes(pkt)))

		if hasMore {
			m.sendReady = append(m.sendReady, desc)
			m.sendReadySet[desc] = true
		}
	}

	m.lastUploadAt = now
	consumedMs := consumed / max64(m.cfg.BytesPerMsUp, 1)
	if consumedMs >= 1 {
		m.nextSendFire = now + consumedMs
		m.scheduler.ScheduleUploaded(m.nextSendFire)
	} else {
		m.nextSendFire = now
	}
}

// OnUploaded re-arms the upload pipeline once the scheduled throttle
// window elapses.
func (m *Manager) OnUploaded(now uint64) {
	if len(m.sendReady) > 0 {
		m.UploadNext(now)
	}
}

// ReadyReceive implements spec.md 4.6's ready_receive: admit pkt into the
// NIC inbound queue if the byte budget allows, else request retransmission
// (stream) or silently drop (datagram).
func (m *Manager) ReadyReceive(now uint64, remote, local packet.Endpoint, pkt *packet.Packet) {
	size := wireBytes(pkt)
	if uint64(m.inqBytes)+size > uint64(m.cfg.InqMaxBytes) {
		if pkt.Protocol == packet.Stream {
			if s, ok := m.sockets.Lookup(packet.Stream, local); ok && s.TCP != nil {
				s.TCP.RequestPeerRetransmit(now)
			}
		}
		metrics.PacketsDroppedTotal.WithLabelValues("inq_full").Inc()
		pkt.Release()
		return
	}
	m.inqBytes += uint32(size)
	m.inq = append(m.inq, inboundItem{remote: remote, local: local, pkt: pkt})
	if now >= m.nextRecvFire {
		m.DownloadNext(now)
	}
}

// DownloadNext implements spec.md 4.6's download_next: process a batch of
// admitted inbound packets into their sockets' state machines.
func (m *Manager) DownloadNext(now uint64) {
	budget := m.cfg.BatchMs * m.cfg.BytesPerMsDown
	var consumed uint64

	for consumed < budget && len(m.inq) > 0 {
		item := m.inq[0]
		m.inq = m.inq[1:]
		size := wireBytes(item.pkt)
		m.inqBytes -= uint32(size)
		consumed += size

		reset := m.sockets.Deliver(now, item.remote, item.local, item.pkt, m.topology, m.resolver)
		metrics.BytesTransferredTotal.WithLabelValues("down").Add(float64(size))
		item.pkt.Release()
		if reset != nil {
			m.uplink.TransmitPacket(now, reset)
		}
	}

	m.lastDownloadAt = now
	consumedMs := consumed / max64(m.cfg.BytesPerMsDown, 1)
	if consumedMs >= 1 {
		m.nextRecvFire = now + consumedMs
		m.scheduler.ScheduleDownloaded(m.nextRecvFire)
	} else {
		m.nextRecvFire = now
	}
}

// OnDownloaded re-arms the download pipeline once the scheduled throttle
// window elapses.
func (m *Manager) OnDownloaded(now uint64) {
	if len(m.inq) > 0 {
		m.DownloadNext(now)
	}
}

func wireBytes(pkt *packet.Packet) uint64 {
	return uint64(pkt.DataSize) + wireOverheadBytes
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// selectForTransmit dispatches wire selection to whichever transport
// flavour the socket wraps, reporting whether it has further queued data
// after this pop.
func selectForTransmit(s *vsocket.Socket) (*packet.Packet, bool, bool) {
	switch {
	case s.TCP != nil:
		pkt, ok := s.TCP.SelectForTransmit()
		return pkt, ok && s.TCP.Buf.NumPackets() > 0, ok
	case s.UDP != nil:
		pkt, ok := s.UDP.SelectForTransmit()
		return pkt, ok && s.UDP.Buf.NumPackets() > 0, ok
	default:
		return nil, false, false
	}
}

// Package host implements one virtual host's execution context (spec.md
// 3 "VCI Mailbox"): its own socket manager, transport pipelines, and the
// mutex a worker holds for the duration of any event addressed to it.
package host

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/oracle"
	"github.com/netsimio/vnet/internal/pipe"
	"github.com/netsimio/vnet/internal/socketmgr"
	"github.com/netsimio/vnet/internal/transport"
	"github.com/netsimio/vnet/internal/vtcp"
)

// LocalTimers schedules an event back onto this host's owning worker,
// satisfying vtcp.Timers. Host implements transport.Scheduler on top of it
// (ScheduleUploaded, ScheduleDownloaded).
type LocalTimers interface {
	Schedule(ev event.Event)
}

// Host is one virtual machine: an address, its socket manager, its
// transport manager, and the lock a worker takes for the lifetime of any
// event execution against it (spec.md 5 "Host locks").
type Host struct {
	mu sync.Mutex

	Addr      addr.Addr
	NodeID    uint32
	Sockets   *socketmgr.Manager
	Transport *transport.Manager

	timers LocalTimers
	pipes  []*pipe.Pair

	// CPUDelayMs is the host's accumulated virtual-CPU busy time, consulted
	// by the worker's CPU-delay interaction (spec.md 4.8).
	CPUDelayMs uint64
}

// New constructs a host bound to addr with its own socket and transport
// managers. uplink is the worker's shared VCI; timers schedules events on
// this host's owning worker tracker.
func New(
	a addr.Addr, nodeID uint32,
	cfg vtcp.Config, router vtcp.Router, timers LocalTimers, clock oracle.Clock,
	tcfg transport.Config, uplink transport.Uplink, topology oracle.Topology, resolver oracle.Resolver,
) *Host {
	sockets := socketmgr.New(a, cfg, router, timers, clock)
	h := &Host{
		Addr:    a,
		NodeID:  nodeID,
		Sockets: sockets,
		timers:  timers,
	}
	h.Transport = transport.New(tcfg, sockets, uplink, h, topology, resolver)
	return h
}

// Lock acquires the host's exclusive execution lock. Every event handler
// must run inside Lock/Unlock (spec.md 5).
func (h *Host) Lock()   { h.mu.Lock() }
func (h *Host) Unlock() { h.mu.Unlock() }

// ScheduleUploaded and ScheduleDownloaded implement transport.Scheduler by
// arming a bare timer event on this host's own tracker.
func (h *Host) ScheduleUploaded(deliverTime uint64) {
	h.timers.Schedule(event.NewTimerEvent(event.OnUploaded, deliverTime, h.Addr, h.Addr))
}

func (h *Host) ScheduleDownloaded(deliverTime uint64) {
	h.timers.Schedule(event.NewTimerEvent(event.OnDownloaded, deliverTime, h.Addr, h.Addr))
}

// NewPipe creates a fresh AF_UNIX socketpair-backed pipe owned by this
// host (spec.md 4.10), tracked for lifecycle bookkeeping.
func (h *Host) NewPipe() *pipe.Pair {
	p := pipe.New()
	h.pipes = append(h.pipes, p)
	return p
}

// ReapPipes drops any fully-closed pipes (spec.md 4.10 "destroyed when
// both endpoints close").
func (h *Host) ReapPipes() {
	live := h.pipes[:0]
	for _, p := range h.pipes {
		if !p.Destroyed() {
			live = append(live, p)
		}
	}
	h.pipes = live
}

// AdvanceCPUDelay accumulates additional busy milliseconds onto the
// host's virtual CPU, consulted by the worker's event-rescheduling check
// (spec.md 4.8).
func (h *Host) AdvanceCPUDelay(ms uint64) {
	h.CPUDelayMs += ms
}

// Close tears down every socket and listener still open on this host, for
// orderly simulation shutdown (internal/worker.Pool.Close). It collects
// every per-socket close error rather than stopping at the first.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	for _, s := range h.Sockets.Snapshot() {
		if closeErr := h.Sockets.Close(s.Desc); closeErr != nil {
			err = multierr.Append(err, closeErr)
		}
	}
	return err
}

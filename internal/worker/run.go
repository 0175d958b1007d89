package worker

import (
	"context"
	"strconv"
	"time"

	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/host"
	"github.com/netsimio/vnet/internal/metrics"
	"github.com/netsimio/vnet/internal/packet"
)

// idlePoll bounds how long Run blocks waiting for a mailbox frame while
// its own tracker is empty, so it still periodically rechecks ctx
// cancellation and the barrier state even with no inbound traffic.
const idlePoll = 50 * time.Millisecond

// Barrier lets a worker coordinate its simulated-time cursor against its
// siblings (spec.md 4.9): Advance blocks until it is safe for the caller
// to process an event due at t — i.e. until t <= global_min_time +
// min_latency across every worker in the pool. Idle tells the barrier
// this worker has nothing pending, so it stops bounding its peers.
type Barrier interface {
	Advance(ctx context.Context, t uint64) error
	Idle()
}

// Run drives this worker's outer loop until ctx is cancelled: pop_next,
// wait on the barrier, identify the destination host, lock it, dispatch
// by event kind, unlock (spec.md 4.9).
func (w *Worker) Run(ctx context.Context, barrier Barrier) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		w.drainInbox()

		var t uint64
		if _, ok := w.tracker.PeekNext(&t); !ok {
			barrier.Idle()
			if err := w.waitForWork(ctx); err != nil {
				return err
			}
			continue
		}

		if err := barrier.Advance(ctx, t); err != nil {
			return err
		}

		ev, _ := w.tracker.PopNext(&t)
		w.now = t
		metrics.PendingEvents.WithLabelValues(strconv.FormatUint(uint64(w.ID), 10)).Set(float64(w.tracker.Count()))

		w.dispatch(ev)
	}
}

// waitForWork blocks until a mailbox frame arrives, ctx is cancelled, or
// idlePoll elapses, whichever comes first, without spinning the worker's
// goroutine while there is nothing to do.
func (w *Worker) waitForWork(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case f := <-w.inbox:
		ev, err := w.decode(f)
		if err != nil {
			w.log.Errorw("failed to decode inbound frame", "error", err)
			return nil
		}
		w.tracker.Insert(ev.DeliverTime, ev)
		return nil
	case <-time.After(idlePoll):
		return nil
	}
}

// dispatch identifies ev's destination host, takes its lock for the
// handler's duration, and switches on Kind (spec.md 9's exhaustive event
// set). A destination host this worker does not own drops the event
// after releasing any packet reference it carried.
func (w *Worker) dispatch(ev event.Event) {
	h, ok := w.hosts[ev.Dest]
	if !ok {
		ev.Destroy()
		return
	}

	h.Lock()
	defer h.Unlock()

	switch ev.Kind {
	case event.OnPacket:
		h.Transport.ReadyReceive(w.now, ev.Packet.Src, ev.Packet.Dst, ev.Packet)
		// ReadyReceive takes ownership of the one reference the event
		// carried (spec.md 3, 8); the event itself must not also release
		// it.
		ev.Packet = nil

	case event.OnNotify, event.OnPoll, event.OnDack:
		w.dispatchSocketEvent(h, ev)

	case event.OnUploaded:
		h.Transport.OnUploaded(w.now)

	case event.OnDownloaded:
		h.Transport.OnDownloaded(w.now)

	case event.OnRetransmit:
		w.dispatchRetransmit(h, ev)

	case event.OnClose:
		w.dispatchClose(h, ev)
	}

	h.ReapPipes()
	h.Sockets.Reap()
	ev.Destroy()
}

// dispatchSocketEvent handles OnNotify/OnPoll/OnDack: all three are
// addressed at a single socket descriptor on this host. Only OnDack has a
// tracker-driven handler today; OnNotify/OnPoll exist for guest wakeups
// the host's syscall layer drives directly rather than through the
// tracker, so they are no-ops here.
func (w *Worker) dispatchSocketEvent(h *host.Host, ev event.Event) {
	s, ok := h.Sockets.Get(ev.Socket)
	if !ok || s.TCP == nil {
		return
	}
	if ev.Kind == event.OnDack {
		s.TCP.OnDackTimer()
		h.Transport.ReadySend(w.now, s.Desc)
	}
}

// dispatchRetransmit resolves the socket named by the payload's Src
// endpoint (the resending socket's own address, per
// event.NewRetransmitEvent) and asks it to requeue from seq.
func (w *Worker) dispatchRetransmit(h *host.Host, ev event.Event) {
	p := ev.Retransmit
	if p == nil {
		return
	}
	local := packet.Endpoint{Addr: p.SrcAddr, Port: p.SrcPort}
	s, ok := h.Sockets.Lookup(packet.Stream, local)
	if !ok || s.TCP == nil {
		return
	}
	s.TCP.OnRetransmitRequested(p.Seq)
	h.Transport.ReadySend(w.now, s.Desc)
}

// dispatchClose resolves the socket named by the payload's Dst endpoint
// (this host's own address in the original SendClose call, per
// vci.VCI.SendClose) and feeds it the peer's final sequence number.
func (w *Worker) dispatchClose(h *host.Host, ev event.Event) {
	p := ev.Close
	if p == nil {
		return
	}
	local := packet.Endpoint{Addr: p.DstAddr, Port: p.DstPort}
	s, ok := h.Sockets.Lookup(packet.Stream, local)
	if !ok || s.TCP == nil {
		return
	}
	s.TCP.OnCloseEvent(p.RcvEnd)
}

// Package worker implements one OS-thread-backed simulation worker
// (spec.md 4.9, 5): it owns a disjoint set of virtual hosts and a
// private event.Tracker driving its own simulated clock, and it is the
// vci.Dispatcher that routes packets addressed to other workers'
// mailboxes. A Pool runs one goroutine per worker under errgroup, the
// way the reference coordinator runs its built-in modules
// (coordinator/coordinator.go).
package worker

import (
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/host"
	"github.com/netsimio/vnet/internal/metrics"
	"github.com/netsimio/vnet/internal/wire"
)

// Mailbox is the inbound side of a worker's cross-worker channel: frames
// another worker's VCI sent via SendFrame arrive here to be decoded and
// scheduled onto this worker's own tracker.
type Mailbox chan *wire.Frame

// Worker owns one disjoint shard of virtual hosts and the single
// goroutine that may touch them. It never locks more than one host at a
// time: each event is addressed at exactly one Dest host.
type Worker struct {
	ID      uint32
	log     *zap.SugaredLogger
	tracker *event.Tracker[event.Event]
	hosts   map[addr.Addr]*host.Host
	inbox   Mailbox

	// mailboxes is the pool-wide routing table, shared read-only after
	// Pool wiring completes; it lets SendFrame satisfy vci.Dispatcher's
	// two-argument shape without the worker needing to know the pool.
	mailboxes map[uint32]Mailbox

	// now is the worker's own simulated-time cursor, advanced only by
	// popping events off tracker; it implements oracle.Clock for every
	// host this worker owns.
	now uint64

	decode func(f *wire.Frame) (event.Event, error)
}

// New constructs a worker with its own tracker, granularity matching the
// simulation's time-coarsening window (spec.md 4.1).
func New(id uint32, log *zap.SugaredLogger, granularityMs uint64, decode func(f *wire.Frame) (event.Event, error)) *Worker {
	return &Worker{
		ID:      id,
		log:     log.With("worker", id),
		tracker: event.NewTracker[event.Event](granularityMs),
		hosts:   make(map[addr.Addr]*host.Host),
		inbox:   make(Mailbox, 1024),
		decode:  decode,
	}
}

// Now implements oracle.Clock.
func (w *Worker) Now() uint64 { return w.now }

// AddHost registers a virtual host as owned by this worker.
func (w *Worker) AddHost(h *host.Host) {
	w.hosts[h.Addr] = h
}

// Host returns the host owned by this worker at a, if any.
func (w *Worker) Host(a addr.Addr) (*host.Host, bool) {
	h, ok := w.hosts[a]
	return h, ok
}

// Addrs returns every address this worker owns, for internal/gateway's
// /hosts listing.
func (w *Worker) Addrs() []addr.Addr {
	out := make([]addr.Addr, 0, len(w.hosts))
	for a := range w.hosts {
		out = append(out, a)
	}
	return out
}

// Close tears down every host this worker owns, aggregating their close
// errors so one stuck host doesn't hide another's failure during shutdown.
func (w *Worker) Close() error {
	var err error
	for _, h := range w.hosts {
		err = multierr.Append(err, h.Close())
	}
	return err
}

// setMailboxes wires the pool-wide routing table; called once by the Pool
// after every worker has been constructed.
func (w *Worker) setMailboxes(m map[uint32]Mailbox) {
	w.mailboxes = m
}

// ScheduleLocal implements vci.Dispatcher: insert ev directly into this
// worker's own tracker, used when VCI classifies a destination as
// SameWorker.
func (w *Worker) ScheduleLocal(ev event.Event) {
	w.tracker.Insert(ev.DeliverTime, ev)
	metrics.PendingEvents.WithLabelValues(strconv.FormatUint(uint64(w.ID), 10)).Set(float64(w.tracker.Count()))
}

// Schedule implements vtcp.Timers/host.LocalTimers. A socket's own
// delayed-ACK timers always target their own worker's
// tracker, so Schedule is just ScheduleLocal under another name required
// by those interfaces.
func (w *Worker) Schedule(ev event.Event) {
	w.ScheduleLocal(ev)
}

// SendFrame implements vci.Dispatcher's cross-worker path: the frame is
// handed to the destination worker's mailbox channel, standing in for
// the wire transport an actual cross-host link would use (spec.md 4.8).
func (w *Worker) SendFrame(destWorker uint32, frame *wire.Frame) {
	mb, ok := w.mailboxes[destWorker]
	if !ok {
		w.log.Errorw("no mailbox for destination worker", "dest_worker", destWorker)
		return
	}
	mb <- frame
}

// drainInbox decodes every frame currently queued in the mailbox into a
// tracker insertion, without blocking: a worker only consults its inbox
// between pop_next calls, never mid-step.
func (w *Worker) drainInbox() {
	for {
		select {
		case f := <-w.inbox:
			ev, err := w.decode(f)
			if err != nil {
				w.log.Errorw("failed to decode inbound frame", "error", err)
				continue
			}
			w.tracker.Insert(ev.DeliverTime, ev)
		default:
			return
		}
	}
}

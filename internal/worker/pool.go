package worker

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/netsimio/vnet/internal/shm"
)

// Pool owns every worker in the simulation and runs one goroutine per
// worker under errgroup, the way the reference coordinator runs its
// built-in modules (coordinator/coordinator.go, Coordinator.Run).
type Pool struct {
	log     *zap.SugaredLogger
	Workers []*Worker
	barrier *SharedBarrier
}

// NewPool constructs n workers, each with its own tracker and mailbox,
// wires every worker's SendFrame against every other worker's mailbox,
// and builds the shared barrier with the given look-ahead window.
func NewPool(n int, log *zap.SugaredLogger, granularityMs, lookaheadMs uint64, cabinets map[uint32]*shm.Cabinet) *Pool {
	workers := make([]*Worker, n)
	mailboxes := make(map[uint32]Mailbox, n)

	decode := NewDecoder(cabinets)
	for i := 0; i < n; i++ {
		w := New(uint32(i), log, granularityMs, decode)
		workers[i] = w
		mailboxes[uint32(i)] = w.inbox
	}
	for _, w := range workers {
		w.setMailboxes(mailboxes)
	}

	return &Pool{
		log:     log,
		Workers: workers,
		barrier: NewSharedBarrier(n, lookaheadMs),
	}
}

// Run starts every worker's outer loop and blocks until one returns an
// error (including ctx cancellation) or all return nil.
func (p *Pool) Run(ctx context.Context) error {
	wg, ctx := errgroup.WithContext(ctx)
	for i, w := range p.Workers {
		w := w
		id := uint32(i)
		wg.Go(func() error {
			return w.Run(ctx, p.barrier.For(id))
		})
	}
	return wg.Wait()
}

// Close tears down every worker's hosts (closing their open sockets and
// listeners), aggregating every worker's close error via multierr so a
// failure on one worker doesn't mask another's during shutdown.
func (p *Pool) Close() error {
	var err error
	for _, w := range p.Workers {
		err = multierr.Append(err, w.Close())
	}
	return err
}

package oracle

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v5"

	"github.com/netsimio/vnet/internal/addr"
)

// Source fetches one host's current bandwidth figure, in KB/s, from
// whatever out-of-process source a real deployment plugs in (a topology
// service, a config-reload watcher); it fails transiently when that source
// hasn't published a value yet.
type Source func(ctx context.Context, host addr.Addr) (kbps uint64, err error)

// RetryingResolver implements Resolver over a pair of Sources, retrying a
// transiently-failing lookup with exponential backoff and caching the last
// good value per host so steady-state calls never block (spec.md 4.4.7's
// autotune runs as each connection enters ESTABLISHED and cannot wait on a
// slow oracle). Grounded on
// modules/route/bird-adapter's reconnect policy, which wraps an external
// dependency's flakiness in the same backoff.ExponentialBackOff shape
// rather than letting a caller see the raw failure.
type RetryingResolver struct {
	downSrc, upSrc Source
	maxTries       uint

	mu   sync.Mutex
	down map[addr.Addr]uint64
	up   map[addr.Addr]uint64
}

// NewRetryingResolver wraps down/up with up to maxTries attempts per miss.
func NewRetryingResolver(down, up Source, maxTries uint) *RetryingResolver {
	return &RetryingResolver{
		downSrc:  down,
		upSrc:    up,
		maxTries: maxTries,
		down:     make(map[addr.Addr]uint64),
		up:       make(map[addr.Addr]uint64),
	}
}

// DownBW implements Resolver.
func (r *RetryingResolver) DownBW(host addr.Addr) uint64 {
	return r.resolve(r.down, r.downSrc, host)
}

// UpBW implements Resolver.
func (r *RetryingResolver) UpBW(host addr.Addr) uint64 {
	return r.resolve(r.up, r.upSrc, host)
}

func (r *RetryingResolver) resolve(cache map[addr.Addr]uint64, src Source, host addr.Addr) uint64 {
	r.mu.Lock()
	if v, ok := cache[host]; ok {
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()

	v, err := backoff.Retry(context.Background(), func() (uint64, error) {
		return src(context.Background(), host)
	}, backoff.WithMaxTries(r.maxTries), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		// Source never recovered within maxTries: report no bandwidth
		// rather than blocking autotune forever on a dead oracle.
		return 0
	}

	r.mu.Lock()
	cache[host] = v
	r.mu.Unlock()
	return v
}

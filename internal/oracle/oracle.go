// Package oracle defines the environment-provided interfaces the
// simulation core calls but never implements the policy of (spec.md 6):
// latency/reliability between network regions, per-host bandwidth, a
// source of randomness, the current simulated time, and typed
// configuration lookups. The core treats all of these as opaque oracles.
package oracle

import "github.com/netsimio/vnet/internal/addr"

// Clock reports the current simulated time in milliseconds.
type Clock interface {
	Now() uint64
}

// Topology answers latency and reliability queries between two network
// regions, identified by an integer network id (spec.md glossary:
// "Network id").
type Topology interface {
	// Latency returns the one-way delay in milliseconds between two
	// network regions.
	Latency(srcNet, dstNet int) uint64
	// Reliability returns the probability, in [0,1], that a packet sent
	// from srcNet to dstNet is delivered rather than dropped.
	Reliability(srcNet, dstNet int) float64
}

// Resolver answers per-host bandwidth queries, in kilobytes per second,
// used by TCP autotune (spec.md 4.4.7).
type Resolver interface {
	DownBW(host addr.Addr) uint64
	UpBW(host addr.Addr) uint64
}

// Random is a source of simulation randomness, used for loss sampling
// (spec.md 4.8) and port allocation.
type Random interface {
	// Unit returns a uniform value in [0,1).
	Unit() float64
	// Range returns a uniform value in [0,max).
	Range(max uint32) uint32
}

// SysConfig is the typed configuration-lookup oracle (spec.md 6).
type SysConfig interface {
	GetInt(key string) (int64, bool)
	GetString(key string) (string, bool)
}

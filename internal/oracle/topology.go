package oracle

import "github.com/netsimio/vnet/internal/addr"

// StaticTopology is a small in-memory Topology/Resolver implementation
// suitable for tests and for seeding a simulation from a config file (the
// real topology/DNS resolver graph is the "opaque oracle" spec.md 1
// explicitly keeps external; this is a reference implementation of the
// interface the core calls, not a re-specification of the graph itself).
type StaticTopology struct {
	latency     map[[2]int]uint64
	reliability map[[2]int]float64
	downBW      map[addr.Addr]uint64
	upBW        map[addr.Addr]uint64

	defaultLatencyMs   uint64
	defaultReliability float64
	defaultDownBWKBps  uint64
	defaultUpBWKBps    uint64
}

// NewStaticTopology constructs an empty topology; callers set defaults and
// per-pair overrides via the With* methods. defaultDownUpBWKBps supplies
// both defaults symmetrically; use WithDefaultBandwidth for an asymmetric
// default.
func NewStaticTopology(defaultLatencyMs uint64, defaultReliability float64, defaultDownUpBWKBps uint64) *StaticTopology {
	return &StaticTopology{
		latency:            make(map[[2]int]uint64),
		reliability:        make(map[[2]int]float64),
		downBW:             make(map[addr.Addr]uint64),
		upBW:               make(map[addr.Addr]uint64),
		defaultLatencyMs:   defaultLatencyMs,
		defaultReliability: defaultReliability,
		defaultDownBWKBps:  defaultDownUpBWKBps,
		defaultUpBWKBps:    defaultDownUpBWKBps,
	}
}

// WithDefaultBandwidth overrides the default down/up bandwidth, in KB/s,
// used for hosts with no explicit override (asymmetric links included).
func (t *StaticTopology) WithDefaultBandwidth(downKBps, upKBps uint64) *StaticTopology {
	t.defaultDownBWKBps = downKBps
	t.defaultUpBWKBps = upKBps
	return t
}

// WithLatency overrides the latency between two network ids.
func (t *StaticTopology) WithLatency(srcNet, dstNet int, ms uint64) *StaticTopology {
	t.latency[[2]int{srcNet, dstNet}] = ms
	return t
}

// WithReliability overrides the reliability between two network ids.
func (t *StaticTopology) WithReliability(srcNet, dstNet int, p float64) *StaticTopology {
	t.reliability[[2]int{srcNet, dstNet}] = p
	return t
}

// WithBandwidth sets a host's down/up bandwidth in KB/s.
func (t *StaticTopology) WithBandwidth(host addr.Addr, downKBps, upKBps uint64) *StaticTopology {
	t.downBW[host] = downKBps
	t.upBW[host] = upKBps
	return t
}

// Latency implements Topology.
func (t *StaticTopology) Latency(srcNet, dstNet int) uint64 {
	if v, ok := t.latency[[2]int{srcNet, dstNet}]; ok {
		return v
	}
	return t.defaultLatencyMs
}

// Reliability implements Topology.
func (t *StaticTopology) Reliability(srcNet, dstNet int) float64 {
	if v, ok := t.reliability[[2]int{srcNet, dstNet}]; ok {
		return v
	}
	return t.defaultReliability
}

// DownBW implements Resolver.
func (t *StaticTopology) DownBW(host addr.Addr) uint64 {
	if v, ok := t.downBW[host]; ok {
		return v
	}
	return t.defaultDownBWKBps
}

// UpBW implements Resolver.
func (t *StaticTopology) UpBW(host addr.Addr) uint64 {
	if v, ok := t.upBW[host]; ok {
		return v
	}
	return t.defaultUpBWKBps
}

// Package rng implements the deterministic random_unit()/random_range()
// oracle of spec.md 6. A single simulation seed is split into independent,
// reproducible substreams per (src_net, dst_net) pair so that VCI's loss
// sampling (spec.md 4.8) is both deterministic across re-runs and free of
// cross-pair correlation or lock contention.
package rng

import (
	"encoding/binary"
	"math/rand/v2"

	"golang.org/x/crypto/blake2b"
)

// Source is the simulator's Random oracle implementation
// (internal/oracle.Random).
type Source struct {
	seed [32]byte
}

// NewSource derives a root key from a 64-bit simulation seed.
func NewSource(seed uint64) *Source {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	key := blake2b.Sum256(buf[:])
	return &Source{seed: key}
}

// ForPair derives an independent, reproducible substream for one
// (src_net, dst_net) pair by hashing the pair into the root key.
func (s *Source) ForPair(srcNet, dstNet int) *PairStream {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(int64(srcNet)))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(dstNet)))

	h, _ := blake2b.New256(s.seed[:])
	h.Write(buf[:])
	digest := h.Sum(nil)

	var k1, k2 uint64
	k1 = binary.LittleEndian.Uint64(digest[0:8])
	k2 = binary.LittleEndian.Uint64(digest[8:16])

	return &PairStream{rnd: rand.New(rand.NewChaCha8(seedFrom(k1, k2)))}
}

func seedFrom(k1, k2 uint64) [32]byte {
	var out [32]byte
	binary.LittleEndian.PutUint64(out[0:8], k1)
	binary.LittleEndian.PutUint64(out[8:16], k2)
	binary.LittleEndian.PutUint64(out[16:24], k1^k2)
	binary.LittleEndian.PutUint64(out[24:32], k1+k2)
	return out
}

// PairStream is a reproducible random stream scoped to one network pair; it
// implements internal/oracle.Random.
type PairStream struct {
	rnd *rand.Rand
}

// Unit returns a uniform value in [0,1).
func (p *PairStream) Unit() float64 {
	return p.rnd.Float64()
}

// Range returns a uniform value in [0,max).
func (p *PairStream) Range(max uint32) uint32 {
	if max == 0 {
		return 0
	}
	return uint32(p.rnd.Uint64N(uint64(max)))
}

package vbuffer

import "sort"

// seqMap is an ordered map keyed by sequence-window position. Stream
// buffers are small in practice (bounded by the receive/send window), so a
// map plus an on-demand sorted key scan is simpler and just as fast as a
// balanced tree at simulator scale.
type seqMap struct {
	m map[uint32]*entry
}

type entry struct {
	key   uint32
	value any
	size  uint32
}

func newSeqMap() *seqMap {
	return &seqMap{m: make(map[uint32]*entry)}
}

func (s *seqMap) insert(key uint32, value any, size uint32) {
	s.m[key] = &entry{key: key, value: value, size: size}
}

func (s *seqMap) get(key uint32) (*entry, bool) {
	e, ok := s.m[key]
	return e, ok
}

func (s *seqMap) delete(key uint32) (*entry, bool) {
	e, ok := s.m[key]
	if ok {
		delete(s.m, key)
	}
	return e, ok
}

func (s *seqMap) len() int { return len(s.m) }

// sortedKeys returns the map's keys in ascending order.
func (s *seqMap) sortedKeys() []uint32 {
	keys := make([]uint32, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// min returns the smallest-key entry, if any.
func (s *seqMap) min() (*entry, bool) {
	keys := s.sortedKeys()
	if len(keys) == 0 {
		return nil, false
	}
	return s.m[keys[0]], true
}

// minLessEqual returns the smallest-key entry whose key is <= maxKey.
func (s *seqMap) minLessEqual(maxKey uint32) (*entry, bool) {
	e, ok := s.min()
	if !ok || e.key > maxKey {
		return nil, false
	}
	return e, true
}

// deleteLessThan removes and returns every entry whose key is strictly
// less than beforeKey.
func (s *seqMap) deleteLessThan(beforeKey uint32) []*entry {
	var removed []*entry
	for _, k := range s.sortedKeys() {
		if k >= beforeKey {
			break
		}
		removed = append(removed, s.m[k])
		delete(s.m, k)
	}
	return removed
}

// deleteAll removes and returns every entry, in ascending key order.
func (s *seqMap) deleteAll() []*entry {
	keys := s.sortedKeys()
	removed := make([]*entry, 0, len(keys))
	for _, k := range keys {
		removed = append(removed, s.m[k])
		delete(s.m, k)
	}
	return removed
}

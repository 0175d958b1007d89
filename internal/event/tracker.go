// Package event implements the per-worker time-bucketed priority queue that
// drives the simulation forward (spec.md 4.1) and the tagged event payload
// exchanged between components (spec.md 9).
package event

import (
	"container/heap"
)

// bucket is an append-only list of payloads scheduled for the same rounded
// time, with a read cursor so FIFO order within the bucket survives pops
// without repeated slice compaction.
type bucket[T any] struct {
	time    uint64
	items   []T
	cursor  int
	heapIdx int
}

func (b *bucket[T]) empty() bool { return b.cursor >= len(b.items) }

// timeHeap is a min-heap of buckets ordered by time, used only to find the
// earliest non-empty bucket in O(log n).
type timeHeap[T any] []*bucket[T]

func (h timeHeap[T]) Len() int            { return len(h) }
func (h timeHeap[T]) Less(i, j int) bool  { return h[i].time < h[j].time }
func (h timeHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}
func (h *timeHeap[T]) Push(x any) {
	b := x.(*bucket[T])
	b.heapIdx = len(*h)
	*h = append(*h, b)
}
func (h *timeHeap[T]) Pop() any {
	old := *h
	n := len(old)
	b := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return b
}

// Tracker is the time-ordered event queue driving one worker's simulated
// time forward. Granularity coarsens insert times into windows, so bursts
// of nearby events collapse into one bucket (spec.md 4.1).
type Tracker[T any] struct {
	granularity uint64
	buckets     map[uint64]*bucket[T]
	heap        timeHeap[T]
	count       int
}

// NewTracker constructs a Tracker with the given granularity in simulated
// milliseconds. A granularity of 0 is treated as 1 (no coarsening).
func NewTracker[T any](granularity uint64) *Tracker[T] {
	if granularity == 0 {
		granularity = 1
	}
	return &Tracker[T]{
		granularity: granularity,
		buckets:     make(map[uint64]*bucket[T]),
	}
}

func (t *Tracker[T]) round(ts uint64) uint64 {
	g := t.granularity
	return (ts + g - 1) / g * g
}

// Insert rounds time up to the tracker's granularity and appends payload to
// that bucket, preserving insertion order for same-time events.
func (t *Tracker[T]) Insert(ts uint64, payload T) {
	rt := t.round(ts)

	b, ok := t.buckets[rt]
	if !ok {
		b = &bucket[T]{time: rt}
		t.buckets[rt] = b
		heap.Push(&t.heap, b)
	}
	b.items = append(b.items, payload)
	t.count++
}

// PeekNext returns the payload at the head of the earliest non-empty
// bucket without removing it, and writes that bucket's time to timeOut if
// non-nil. ok is false if the tracker is empty.
func (t *Tracker[T]) PeekNext(timeOut *uint64) (payload T, ok bool) {
	b := t.earliestNonEmpty()
	if b == nil {
		var zero T
		return zero, false
	}
	if timeOut != nil {
		*timeOut = b.time
	}
	return b.items[b.cursor], true
}

// PopNext removes and returns the head of the earliest non-empty bucket.
// When a bucket empties, it is removed from the heap and its storage
// reclaimed.
func (t *Tracker[T]) PopNext(timeOut *uint64) (payload T, ok bool) {
	b := t.earliestNonEmpty()
	if b == nil {
		var zero T
		return zero, false
	}

	if timeOut != nil {
		*timeOut = b.time
	}
	payload = b.items[b.cursor]
	b.items[b.cursor] = *new(T) // drop the reference for GC
	b.cursor++
	t.count--

	if b.empty() {
		delete(t.buckets, b.time)
		heap.Remove(&t.heap, b.heapIdx)
	}

	return payload, true
}

// earliestNonEmpty returns the head bucket, skipping (and reclaiming) any
// buckets that emptied out without a PopNext call removing them — the
// structure never actually leaves empty buckets behind in normal use, but
// this keeps the invariant robust regardless of call pattern.
func (t *Tracker[T]) earliestNonEmpty() *bucket[T] {
	for len(t.heap) > 0 {
		b := t.heap[0]
		if !b.empty() {
			return b
		}
		delete(t.buckets, b.time)
		heap.Remove(&t.heap, b.heapIdx)
	}
	return nil
}

// Count returns the number of pending events.
func (t *Tracker[T]) Count() int {
	return t.count
}

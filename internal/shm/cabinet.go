// Package shm simulates the zero-copy shared-memory path used for
// cross-worker packet delivery when two workers share a host machine
// (spec.md 4.8, 9: "Cabinet / slot").
//
// A real deployment would back this with an actual shared-memory mapping;
// here a Cabinet is an in-process fixed-size slot pool that stands in for
// one, giving the VCI the same "attach, get a handle, release returns the
// slot" discipline without needing a real mmap.
package shm

import (
	"fmt"
	"sync"

	"github.com/c2h5oh/datasize"
)

// Slot is one fixed-size object inside a Cabinet.
type Slot struct {
	ID   uint32
	data []byte
}

// Data returns the slot's backing bytes.
func (s *Slot) Data() []byte { return s.data }

// Cabinet is a shared-memory region holding many fixed-size slots. It is
// identified by a CabinetID so a remote worker can resolve the same region
// without the bytes themselves crossing a channel.
type Cabinet struct {
	ID       uint32
	SlotSize datasize.ByteSize

	mu    sync.Mutex
	slots map[uint32]*Slot
	free  []uint32
}

// NewCabinet allocates a cabinet with room for count slots of slotSize each.
func NewCabinet(id uint32, slotSize datasize.ByteSize, count int) *Cabinet {
	c := &Cabinet{
		ID:       id,
		SlotSize: slotSize,
		slots:    make(map[uint32]*Slot, count),
	}
	for i := 0; i < count; i++ {
		c.free = append(c.free, uint32(i))
	}
	return c
}

// Acquire reserves a slot and copies payload into it, returning a Handle the
// caller owns. Acquire fails if the cabinet has no free slots or payload
// exceeds the slot size.
func (c *Cabinet) Acquire(payload []byte) (*Handle, error) {
	if uint64(len(payload)) > uint64(c.SlotSize) {
		return nil, fmt.Errorf("shm: payload of %d bytes exceeds slot size %s", len(payload), c.SlotSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.free)
	if n == 0 {
		return nil, fmt.Errorf("shm: cabinet %d has no free slots", c.ID)
	}
	id := c.free[n-1]
	c.free = c.free[:n-1]

	buf := make([]byte, len(payload))
	copy(buf, payload)
	slot := &Slot{ID: id, data: buf}
	c.slots[id] = slot

	return &Handle{cabinet: c, slotID: id}, nil
}

// Resolve looks up a slot previously acquired on this cabinet by id, as a
// remote worker does when it receives a PACKET_*_SHM wire frame carrying
// only (cabinet id, slot id).
func (c *Cabinet) Resolve(slotID uint32) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.slots[slotID]; !ok {
		return nil, false
	}
	return &Handle{cabinet: c, slotID: slotID}, true
}

func (c *Cabinet) release(slotID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.slots, slotID)
	c.free = append(c.free, slotID)
}

func (c *Cabinet) data(slotID uint32) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.slots[slotID]
	if !ok {
		return nil, false
	}
	return slot.data, true
}

// Handle is a reference to a slot inside a Cabinet. Releasing the last
// handle returns the slot to the cabinet's free list.
type Handle struct {
	cabinet *Cabinet
	slotID  uint32
}

// CabinetID identifies which cabinet this handle's slot lives in.
func (h *Handle) CabinetID() uint32 { return h.cabinet.ID }

// SlotID identifies the slot within its cabinet.
func (h *Handle) SlotID() uint32 { return h.slotID }

// Data returns the bytes backing this handle's slot.
func (h *Handle) Data() []byte {
	data, ok := h.cabinet.data(h.slotID)
	if !ok {
		return nil
	}
	return data
}

// Release returns the slot to the cabinet's free list. It is safe to call
// only once per handle returned by Acquire; handles returned by Resolve
// observe the data without owning the slot's lifetime and should not call
// Release.
func (h *Handle) Release() {
	h.cabinet.release(h.slotID)
}

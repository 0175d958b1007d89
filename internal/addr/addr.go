// Package addr implements the simulator's bit-packed 32-bit address scheme.
package addr

import "fmt"

// Loopback is the well-known loopback address, 127.0.0.1.
const Loopback Addr = 127<<24 | 1

// Addr is a bit-packed 32-bit simulator address: slave_id | worker_id | node_id.
type Addr uint32

// Scheme describes how an Addr's 32 bits are split into slave, worker and
// node fields. The three field widths must sum to 32.
type Scheme struct {
	SlaveBits  uint
	WorkerBits uint
	NodeBits   uint
}

// DefaultScheme matches the classic shape: 8 bits of slave id, 8 bits of
// worker id, 16 bits of node id.
var DefaultScheme = Scheme{SlaveBits: 8, WorkerBits: 8, NodeBits: 16}

// NewScheme validates a custom field layout before it is used to pack or
// unpack addresses.
func NewScheme(slaveBits, workerBits, nodeBits uint) (Scheme, error) {
	s := Scheme{SlaveBits: slaveBits, WorkerBits: workerBits, NodeBits: nodeBits}
	if s.SlaveBits+s.WorkerBits+s.NodeBits != 32 {
		return Scheme{}, fmt.Errorf("addr: scheme field widths must sum to 32, got %d", s.SlaveBits+s.WorkerBits+s.NodeBits)
	}
	return s, nil
}

func (s Scheme) nodeMask() uint32  { return 1<<s.NodeBits - 1 }
func (s Scheme) workerMask() uint32 { return 1<<s.WorkerBits - 1 }
func (s Scheme) slaveMask() uint32  { return 1<<s.SlaveBits - 1 }

// Pack combines a slave, worker and node id into an Addr under this scheme.
// Values out of range for their field are truncated, matching the bit-packed
// nature of the source representation.
func (s Scheme) Pack(slaveID, workerID, nodeID uint32) Addr {
	v := (slaveID & s.slaveMask()) << (s.WorkerBits + s.NodeBits)
	v |= (workerID & s.workerMask()) << s.NodeBits
	v |= nodeID & s.nodeMask()
	return Addr(v)
}

// Unpack splits an Addr into its slave, worker and node id fields.
func (s Scheme) Unpack(a Addr) (slaveID, workerID, nodeID uint32) {
	v := uint32(a)
	nodeID = v & s.nodeMask()
	workerID = (v >> s.NodeBits) & s.workerMask()
	slaveID = (v >> (s.NodeBits + s.WorkerBits)) & s.slaveMask()
	return
}

// SlaveID returns the slave (host machine) field of a under this scheme.
func (s Scheme) SlaveID(a Addr) uint32 {
	slaveID, _, _ := s.Unpack(a)
	return slaveID
}

// WorkerID returns the worker-thread field of a under this scheme.
func (s Scheme) WorkerID(a Addr) uint32 {
	_, workerID, _ := s.Unpack(a)
	return workerID
}

// NodeID returns the node (virtual host) field of a under this scheme.
func (s Scheme) NodeID(a Addr) uint32 {
	_, _, nodeID := s.Unpack(a)
	return nodeID
}

// IsLoopback reports whether a is the loopback address.
func (a Addr) IsLoopback() bool {
	return a == Loopback
}

func (a Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(a>>24), byte(a>>16), byte(a>>8), byte(a))
}

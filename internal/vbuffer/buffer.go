// Package vbuffer implements the per-socket send/receive buffering of
// spec.md 3 and 4.3: an ordered vwrite map plus control queue and
// retransmit map on the send side, an in-order vread queue plus an
// out-of-order map on the receive side.
package vbuffer

import (
	"github.com/netsimio/vnet/internal/epoll"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/xerror"
)

// Counters tracks current byte size, packet count and the configured max
// byte size for one side of a Buffer.
type Counters struct {
	CurSize    uint32
	NumPackets int
	MaxSize    uint32
}

func (c *Counters) available() uint32 {
	if c.CurSize >= c.MaxSize {
		return 0
	}
	return c.MaxSize - c.CurSize
}

func (c *Counters) add(size uint32) {
	c.CurSize += size
	c.NumPackets++
}

func (c *Counters) remove(size uint32) {
	c.CurSize -= size
	c.NumPackets--
}

// Buffer is the per-socket send/receive buffer pair described in spec.md 3.
// Stream sockets use every field; datagram sockets use only the send and
// receive counters plus a FIFO vwrite and a FIFO vread (spec.md 4.3 "For datagram sockets,
// tcp_* maps are absent; vwrite is used in FIFO order").
type Buffer struct {
	stream bool
	ep     *epoll.Readiness

	// Send side.
	sendCounters Counters
	vwrite       *seqMap           // stream: keyed by sequence number
	vwriteFIFO   []*packet.Packet  // datagram: FIFO order
	tcpControl   []*packet.Packet  // stream only, header-only packets
	tcpRetransmit *seqMap          // stream only

	// Receive side.
	recvCounters   Counters
	vread          []*packet.Packet
	readOffset     uint32
	tcpUnprocessed *seqMap // stream only
}

// New constructs a Buffer. stream selects TCP-shaped vs UDP-shaped
// behaviour; maxSend/maxRecv are the initial send/receive space budgets
// (spec.md 4.4.7/4.4.8 adjust these at runtime via autotune).
func New(stream bool, ep *epoll.Readiness, maxSend, maxRecv uint32) *Buffer {
	b := &Buffer{
		stream:       stream,
		ep:           ep,
		sendCounters: Counters{MaxSize: maxSend},
		recvCounters: Counters{MaxSize: maxRecv},
	}
	if stream {
		b.vwrite = newSeqMap()
		b.tcpRetransmit = newSeqMap()
		b.tcpUnprocessed = newSeqMap()
	}
	b.refreshEpoll()
	return b
}

// SendSpaceAvailable returns the remaining send-side byte budget.
func (b *Buffer) SendSpaceAvailable() uint32 { return b.sendCounters.available() }

// RecvSpaceAvailable returns the remaining receive-side byte budget.
func (b *Buffer) RecvSpaceAvailable() uint32 { return b.recvCounters.available() }

// SetMaxSend updates the send-side budget (autotune, spec.md 4.4.7).
func (b *Buffer) SetMaxSend(max uint32) { b.sendCounters.MaxSize = max; b.refreshEpoll() }

// SetMaxRecv updates the receive-side budget (autotune, spec.md 4.4.7).
func (b *Buffer) SetMaxRecv(max uint32) { b.recvCounters.MaxSize = max }

// NumPackets returns the total packet count across every sub-queue,
// matching spec.md 8's invariant
// "num_packets = |vread| + |vwrite| + |tcp_retransmit| + |tcp_control| + |tcp_unprocessed|".
func (b *Buffer) NumPackets() int {
	n := b.recvCounters.NumPackets
	n += b.sendCounters.NumPackets
	return n
}

// CurrentSize returns combined send+receive byte usage.
func (b *Buffer) CurrentSize() uint32 { return b.sendCounters.CurSize + b.recvCounters.CurSize }

// MaxSize returns combined send+receive byte budget.
func (b *Buffer) MaxSize() uint32 { return b.sendCounters.MaxSize + b.recvCounters.MaxSize }

// AddSend inserts pkt into vwrite at the given sequence key (stream) or
// appends it to the FIFO (datagram). It rejects the packet if its data
// size exceeds the remaining send-side budget.
func (b *Buffer) AddSend(pkt *packet.Packet, key uint32) error {
	if pkt.DataSize > b.sendCounters.available() {
		return xerror.ErrOutOfBuffer
	}

	if b.stream {
		b.vwrite.insert(key, pkt, pkt.DataSize)
	} else {
		b.vwriteFIFO = append(b.vwriteFIFO, pkt)
	}
	b.sendCounters.add(pkt.DataSize)
	b.refreshEpoll()
	return nil
}

// AddControl pushes a header-only control packet (ACK, SYN, FIN...) onto
// the control FIFO. Control packets carry no payload so this never fails
// (spec.md 4.3).
func (b *Buffer) AddControl(pkt *packet.Packet) {
	b.tcpControl = append(b.tcpControl, pkt)
	b.sendCounters.NumPackets++
	b.refreshEpoll()
}

// AddRetransmit inserts pkt into the retransmit map at the given sequence
// key, to be held until acknowledged.
func (b *Buffer) AddRetransmit(pkt *packet.Packet, key uint32) {
	b.tcpRetransmit.insert(key, pkt, pkt.DataSize)
	b.sendCounters.NumPackets++
}

// GetSend returns the smallest-key vwrite entry whose key is <= maxKey
// (i.e. <= snd_una + snd_wnd) without removing it; for datagram sockets it
// returns the FIFO head regardless of maxKey.
func (b *Buffer) GetSend(maxKey uint32) (*packet.Packet, uint32, bool) {
	if !b.stream {
		if len(b.vwriteFIFO) == 0 {
			return nil, 0, false
		}
		return b.vwriteFIFO[0], 0, true
	}

	e, ok := b.vwrite.minLessEqual(maxKey)
	if !ok {
		return nil, 0, false
	}
	return e.value.(*packet.Packet), e.key, true
}

// RemoveSend pops the smallest-key vwrite entry if its key is <= maxKey
// (stream), or pops the FIFO head (datagram, maxKey ignored).
func (b *Buffer) RemoveSend(maxKey uint32) (*packet.Packet, bool) {
	if !b.stream {
		if len(b.vwriteFIFO) == 0 {
			return nil, false
		}
		pkt := b.vwriteFIFO[0]
		b.vwriteFIFO = b.vwriteFIFO[1:]
		b.sendCounters.remove(pkt.DataSize)
		b.refreshEpoll()
		return pkt, true
	}

	e, ok := b.vwrite.minLessEqual(maxKey)
	if !ok {
		return nil, false
	}
	b.vwrite.delete(e.key)
	b.sendCounters.remove(e.size)
	b.refreshEpoll()
	return e.value.(*packet.Packet), true
}

// RemoveTCPControl pops the control FIFO head.
func (b *Buffer) RemoveTCPControl() (*packet.Packet, bool) {
	if len(b.tcpControl) == 0 {
		return nil, false
	}
	pkt := b.tcpControl[0]
	b.tcpControl = b.tcpControl[1:]
	b.sendCounters.NumPackets--
	b.refreshEpoll()
	return pkt, true
}

// ClearTCPRetransmit removes every retransmit-map entry whose key is
// < ack (onlyAcked=true) or every entry unconditionally (onlyAcked=false),
// releasing each removed packet's reference and returning how many were
// removed. Calling it twice with the same ack is a no-op the second time
// (spec.md 8).
func (b *Buffer) ClearTCPRetransmit(onlyAcked bool, ack uint32) int {
	var removed []*entry
	if onlyAcked {
		removed = b.tcpRetransmit.deleteLessThan(ack)
	} else {
		removed = b.tcpRetransmit.deleteAll()
	}

	for _, e := range removed {
		pkt := e.value.(*packet.Packet)
		pkt.Release()
		b.sendCounters.NumPackets--
	}
	return len(removed)
}

// RetransmitEntry looks up a pending retransmit-map packet by key without
// removing it.
func (b *Buffer) RetransmitEntry(key uint32) (*packet.Packet, bool) {
	e, ok := b.tcpRetransmit.get(key)
	if !ok {
		return nil, false
	}
	return e.value.(*packet.Packet), true
}

// RemoveRetransmit removes a single retransmit-map entry by key, without
// releasing the packet (the caller is about to re-enqueue it for
// re-transmission, not destroy it).
func (b *Buffer) RemoveRetransmit(key uint32) (*packet.Packet, bool) {
	e, ok := b.tcpRetransmit.delete(key)
	if !ok {
		return nil, false
	}
	b.sendCounters.NumPackets--
	return e.value.(*packet.Packet), true
}

// AddReceive inserts pkt into tcp_unprocessed at its sequence number,
// rejecting it if there is no receive-side space.
func (b *Buffer) AddReceive(pkt *packet.Packet) error {
	if pkt.DataSize > b.recvCounters.available() {
		return xerror.ErrOutOfBuffer
	}
	b.tcpUnprocessed.insert(pkt.TCP.Seq, pkt, pkt.DataSize)
	b.recvCounters.add(pkt.DataSize)
	return nil
}

// GetTCPUnprocessed peeks the smallest-key tcp_unprocessed entry iff its
// key equals nextSeq.
func (b *Buffer) GetTCPUnprocessed(nextSeq uint32) (*packet.Packet, bool) {
	e, ok := b.tcpUnprocessed.min()
	if !ok || e.key != nextSeq {
		return nil, false
	}
	return e.value.(*packet.Packet), true
}

// RemoveTCPUnprocessed removes the smallest-key tcp_unprocessed entry iff
// its key equals nextSeq.
func (b *Buffer) RemoveTCPUnprocessed(nextSeq uint32) (*packet.Packet, bool) {
	e, ok := b.tcpUnprocessed.min()
	if !ok || e.key != nextSeq {
		return nil, false
	}
	b.tcpUnprocessed.delete(e.key)
	b.recvCounters.remove(e.size)
	return e.value.(*packet.Packet), true
}

// AddRead appends pkt to vread, making the socket readable.
func (b *Buffer) AddRead(pkt *packet.Packet) {
	b.vread = append(b.vread, pkt)
	b.recvCounters.add(pkt.DataSize)
	b.refreshEpoll()
}

// GetRead returns the vread head and a pointer to its byte-offset cursor,
// so the guest can perform a partial read that advances the offset without
// popping the packet (spec.md 3 "data_offset").
func (b *Buffer) GetRead() (*packet.Packet, *uint32) {
	if len(b.vread) == 0 {
		return nil, nil
	}
	return b.vread[0], &b.readOffset
}

// RemoveRead pops the vread head and resets the offset cursor.
func (b *Buffer) RemoveRead() (*packet.Packet, bool) {
	if len(b.vread) == 0 {
		return nil, false
	}
	pkt := b.vread[0]
	b.vread = b.vread[1:]
	b.readOffset = 0
	b.recvCounters.remove(pkt.DataSize)
	b.refreshEpoll()
	return pkt, true
}

// refreshEpoll recomputes the readable/writable flags from buffer state,
// per spec.md 4.3's invariant that every mutating call refreshes them.
func (b *Buffer) refreshEpoll() {
	if b.ep == nil {
		return
	}
	b.ep.SetReadable(len(b.vread) > 0)

	writable := b.sendCounters.available() > 0
	b.ep.SetWritable(writable)
}

package vbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/epoll"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/xerror"
)

func ep4(a addr.Addr, port uint16) packet.Endpoint { return packet.Endpoint{Addr: a, Port: port} }

func dataPacket(seq uint32, size int) *packet.Packet {
	return packet.New(packet.Stream, ep4(1, 1), ep4(2, 2), &packet.TCPHeader{Seq: seq, Flags: packet.ACK}, make([]byte, size))
}

func TestAddSendBoundary(t *testing.T) {
	e := epoll.New()
	b := New(true, e, 100, 100)

	ok := b.AddSend(dataPacket(0, 100), 0)
	require.NoError(t, ok)
	assert.EqualValues(t, 0, b.SendSpaceAvailable())

	b2 := New(true, epoll.New(), 100, 100)
	err := b2.AddSend(dataPacket(0, 101), 0)
	assert.ErrorIs(t, err, xerror.ErrOutOfBuffer)
}

func TestGetSendRespectsWindow(t *testing.T) {
	e := epoll.New()
	b := New(true, e, 1000, 1000)

	require.NoError(t, b.AddSend(dataPacket(0, 10), 0))
	require.NoError(t, b.AddSend(dataPacket(1, 10), 1))

	pkt, key, ok := b.GetSend(0)
	require.True(t, ok)
	assert.EqualValues(t, 0, key)
	assert.EqualValues(t, 0, pkt.TCP.Seq)

	_, _, ok = b.GetSend(0)
	assert.True(t, ok, "GetSend must not remove the entry")
}

func TestControlFIFOOrder(t *testing.T) {
	b := New(true, epoll.New(), 1000, 1000)

	a := dataPacket(0, 0)
	c := dataPacket(1, 0)
	b.AddControl(a)
	b.AddControl(c)

	got, ok := b.RemoveTCPControl()
	require.True(t, ok)
	assert.Same(t, a, got)

	got, ok = b.RemoveTCPControl()
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = b.RemoveTCPControl()
	assert.False(t, ok)
}

func TestClearTCPRetransmitIdempotent(t *testing.T) {
	b := New(true, epoll.New(), 1000, 1000)
	p0 := dataPacket(0, 10)
	p1 := dataPacket(1, 10)
	b.AddRetransmit(p0, 0)
	b.AddRetransmit(p1, 1)

	n := b.ClearTCPRetransmit(true, 1)
	assert.Equal(t, 1, n)

	n = b.ClearTCPRetransmit(true, 1)
	assert.Equal(t, 0, n, "repeating the same ack must be a no-op")

	_, ok := b.RetransmitEntry(0)
	assert.False(t, ok)
	_, ok = b.RetransmitEntry(1)
	assert.True(t, ok, "entry at or above ack must survive")
}

func TestOutOfOrderThenInOrderConvergesToSameState(t *testing.T) {
	direct := New(true, epoll.New(), 1000, 1000)
	for _, seq := range []uint32{0, 1, 2} {
		require.NoError(t, direct.AddReceive(dataPacket(seq, 4)))
	}
	for seq := uint32(0); seq < 3; seq++ {
		pkt, ok := direct.RemoveTCPUnprocessed(seq)
		require.True(t, ok)
		direct.AddRead(pkt)
	}

	reordered := New(true, epoll.New(), 1000, 1000)
	for _, seq := range []uint32{2, 1, 0} {
		require.NoError(t, reordered.AddReceive(dataPacket(seq, 4)))
	}
	for seq := uint32(0); seq < 3; seq++ {
		pkt, ok := reordered.RemoveTCPUnprocessed(seq)
		require.True(t, ok)
		reordered.AddRead(pkt)
	}

	require.Equal(t, len(direct.vread), len(reordered.vread))
	for i := range direct.vread {
		assert.Equal(t, direct.vread[i].TCP.Seq, reordered.vread[i].TCP.Seq)
	}
}

func TestReadOffsetCursorResetsOnPop(t *testing.T) {
	b := New(true, epoll.New(), 1000, 1000)
	b.AddRead(dataPacket(0, 10))

	_, offset := b.GetRead()
	require.NotNil(t, offset)
	*offset = 5

	_, ok := b.RemoveRead()
	require.True(t, ok)

	b.AddRead(dataPacket(1, 10))
	_, offset = b.GetRead()
	assert.EqualValues(t, 0, *offset)
}

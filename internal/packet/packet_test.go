package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/shm"
)

func ep(a addr.Addr, port uint16) Endpoint { return Endpoint{Addr: a, Port: port} }

func TestRetainReleaseLifecycle(t *testing.T) {
	p := New(Stream, ep(1, 100), ep(2, 200), &TCPHeader{Seq: 1, Flags: ACK}, []byte("hi"))
	assert.EqualValues(t, 1, p.RefCount())

	p.Retain()
	assert.EqualValues(t, 2, p.RefCount())

	p.Release()
	assert.EqualValues(t, 1, p.RefCount())

	p.Release()
	assert.EqualValues(t, 0, p.RefCount())
}

func TestScopedRetainBracketsBorrow(t *testing.T) {
	p := New(Datagram, ep(1, 100), ep(2, 200), nil, []byte("x"))

	func() {
		release := p.ScopedRetain()
		defer release()
		assert.EqualValues(t, 2, p.RefCount())
	}()

	assert.EqualValues(t, 1, p.RefCount())
}

func TestSharedPacketReleaseReturnsSlot(t *testing.T) {
	cab := shm.NewCabinet(1, 1500, 4)
	h, err := cab.Acquire([]byte("payload"))
	require.NoError(t, err)

	p := NewShared(Stream, ep(1, 1), ep(2, 2), nil, h)
	assert.True(t, p.IsShared())
	assert.Equal(t, []byte("payload"), p.Payload())

	p.Release()

	_, ok := cab.Resolve(h.SlotID())
	assert.False(t, ok, "slot should have returned to the cabinet's free list")
}

func TestCloneIsIndependentCopy(t *testing.T) {
	orig := New(Stream, ep(1, 1), ep(2, 2), &TCPHeader{Seq: 5}, []byte("abc"))
	clone := orig.Clone()

	clone.TCP.Seq = 9
	assert.EqualValues(t, 5, orig.TCP.Seq, "cloning must not alias the header")

	clone.Payload()[0] = 'z'
	assert.Equal(t, byte('a'), orig.Payload()[0], "cloning must not alias the payload")
}

func TestEthernetRoundTripPreservesTCPHeader(t *testing.T) {
	orig := New(Stream, ep(10<<24|1, 4001), ep(10<<24|2, 80), &TCPHeader{Seq: 42, Ack: 7, AdvWnd: 1024, Flags: SYN | ACK}, []byte("hello"))

	wire, err := ToEthernetLayers(orig)
	require.NoError(t, err)

	back, err := FromEthernetLayers(wire)
	require.NoError(t, err)

	assert.Equal(t, orig.Src, back.Src)
	assert.Equal(t, orig.Dst, back.Dst)
	assert.Equal(t, orig.TCP.Seq, back.TCP.Seq)
	assert.Equal(t, orig.TCP.Ack, back.TCP.Ack)
	assert.True(t, back.TCP.Flags.Has(SYN))
	assert.True(t, back.TCP.Flags.Has(ACK))
	assert.Equal(t, []byte("hello"), back.Payload())
}

func TestEthernetRoundTripDatagram(t *testing.T) {
	orig := New(Datagram, ep(10<<24|1, 5001), ep(10<<24|2, 53), nil, []byte("query"))

	wire, err := ToEthernetLayers(orig)
	require.NoError(t, err)

	back, err := FromEthernetLayers(wire)
	require.NoError(t, err)

	assert.Equal(t, orig.Src, back.Src)
	assert.Equal(t, orig.Dst, back.Dst)
	assert.Nil(t, back.TCP)
	assert.Equal(t, []byte("query"), back.Payload())
}

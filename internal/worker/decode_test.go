package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/shm"
	"github.com/netsimio/vnet/internal/wire"
)

func TestDecodePacketBuildsOnPacketEvent(t *testing.T) {
	f := &wire.Frame{
		Code:        wire.PacketPayload,
		DeliverTime: 100,
		Protocol:    packet.Stream,
		SrcAddr:     1,
		SrcPort:     10,
		DstAddr:     2,
		DstPort:     20,
		Seq:         5,
		Ack:         6,
		Payload:     []byte("hi"),
	}

	decode := NewDecoder(nil)
	ev, err := decode(f)
	require.NoError(t, err)

	assert.Equal(t, event.OnPacket, ev.Kind)
	assert.EqualValues(t, 2, ev.Dest, "dest host is the arriving frame's destination for a plain packet")
	assert.EqualValues(t, 1, ev.Owner)
	require.NotNil(t, ev.Packet)
	assert.Equal(t, []byte("hi"), ev.Packet.Payload())
	assert.EqualValues(t, 5, ev.Packet.TCP.Seq)
}

func TestDecodeSHMPacketResolvesAndCopiesSlot(t *testing.T) {
	cab := shm.NewCabinet(7, 1500, 4)
	h, err := cab.Acquire([]byte("payload"))
	require.NoError(t, err)

	f := &wire.Frame{
		Code:        wire.PacketPayloadSHM,
		DeliverTime: 1,
		Protocol:    packet.Datagram,
		SrcAddr:     1,
		DstAddr:     2,
		SHM:         &wire.SHMRef{CabinetID: 7, SlotID: h.SlotID()},
	}

	decode := NewDecoder(map[uint32]*shm.Cabinet{7: cab})
	ev, err := decode(f)
	require.NoError(t, err)
	require.NotNil(t, ev.Packet)
	assert.Equal(t, []byte("payload"), ev.Packet.Payload())
}

func TestDecodeSHMPacketMissingCabinetErrors(t *testing.T) {
	f := &wire.Frame{Code: wire.PacketPayloadSHM, SHM: &wire.SHMRef{CabinetID: 99, SlotID: 0}}
	decode := NewDecoder(map[uint32]*shm.Cabinet{})
	_, err := decode(f)
	assert.Error(t, err)
}

func TestDecodeRetransmitAddressesResendingHost(t *testing.T) {
	// wire.NewRetransmit(deliverTime, src, dst, seq) puts the resending
	// socket (src) in Frame.SrcAddr; decode must address the resulting
	// event at that same host so the worker can look the socket up there.
	frame := wire.NewRetransmit(50, packet.Endpoint{Addr: 10, Port: 100}, packet.Endpoint{Addr: 20, Port: 200}, 7)

	decode := NewDecoder(nil)
	ev, err := decode(frame)
	require.NoError(t, err)

	assert.Equal(t, event.OnRetransmit, ev.Kind)
	assert.EqualValues(t, 10, ev.Dest, "retransmit event must be addressed at the resending host")
	require.NotNil(t, ev.Retransmit)
	assert.EqualValues(t, 7, ev.Retransmit.Seq)
	assert.EqualValues(t, 10, ev.Retransmit.SrcAddr)
}

func TestDecodeCloseAddressesArrivingDestination(t *testing.T) {
	frame := wire.NewClose(50, packet.Endpoint{Addr: 10, Port: 100}, packet.Endpoint{Addr: 20, Port: 200}, 99)

	decode := NewDecoder(nil)
	ev, err := decode(frame)
	require.NoError(t, err)

	assert.Equal(t, event.OnClose, ev.Kind)
	assert.EqualValues(t, 10, ev.Dest)
	require.NotNil(t, ev.Close)
	assert.EqualValues(t, 99, ev.Close.RcvEnd)
}

func TestDecodeUnknownCodeErrors(t *testing.T) {
	decode := NewDecoder(nil)
	_, err := decode(&wire.Frame{Code: wire.Code(99)})
	assert.Error(t, err)
}

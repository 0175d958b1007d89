package vci

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/rng"
	"github.com/netsimio/vnet/internal/wire"
)

type fakeTopology struct {
	latencyMs   uint64
	reliability float64
}

func (f fakeTopology) Latency(_, _ int) uint64      { return f.latencyMs }
func (f fakeTopology) Reliability(_, _ int) float64 { return f.reliability }

type fakeDispatcher struct {
	local  []event.Event
	frames map[uint32][]*wire.Frame
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{frames: make(map[uint32][]*wire.Frame)}
}

func (d *fakeDispatcher) ScheduleLocal(ev event.Event) { d.local = append(d.local, ev) }
func (d *fakeDispatcher) SendFrame(destWorker uint32, f *wire.Frame) {
	d.frames[destWorker] = append(d.frames[destWorker], f)
}

func addrOf(slave, worker, node uint32) addr.Addr {
	return addr.DefaultScheme.Pack(slave, worker, node)
}

func newVCI(t *testing.T, reliability float64) (*VCI, *fakeDispatcher) {
	t.Helper()
	dispatch := newFakeDispatcher()
	v := New(Config{Scheme: addr.DefaultScheme, MyWorkerID: 0}, rng.NewSource(1), fakeTopology{latencyMs: 5, reliability: reliability}, dispatch)
	return v, dispatch
}

func TestClassifySameWorker(t *testing.T) {
	v, _ := newVCI(t, 1)
	src := addrOf(1, 1, 1)
	dst := addrOf(1, 1, 2)
	assert.Equal(t, SameWorker, v.Classify(src, dst))
}

func TestClassifySameHostDifferentWorker(t *testing.T) {
	v, _ := newVCI(t, 1)
	src := addrOf(1, 1, 1)
	dst := addrOf(1, 2, 1)
	assert.Equal(t, SameHostDifferentWorker, v.Classify(src, dst))
}

func TestClassifyDifferentHost(t *testing.T) {
	v, _ := newVCI(t, 1)
	src := addrOf(1, 1, 1)
	dst := addrOf(2, 1, 1)
	assert.Equal(t, DifferentHost, v.Classify(src, dst))
}

func TestTransmitPacketSameWorkerSchedulesLocalEvent(t *testing.T) {
	v, dispatch := newVCI(t, 1) // reliability 1: never dropped
	src := packet.Endpoint{Addr: addrOf(1, 1, 1), Port: 100}
	dst := packet.Endpoint{Addr: addrOf(1, 1, 2), Port: 200}
	pkt := packet.New(packet.Datagram, src, dst, nil, []byte("x"))

	v.TransmitPacket(0, pkt)

	require.Len(t, dispatch.local, 1)
	assert.Equal(t, event.OnPacket, dispatch.local[0].Kind)
	assert.EqualValues(t, 1, pkt.RefCount(), "TransmitPacket must release its own reference; the scheduled event holds the one left")
}

func TestTransmitPacketCrossWorkerSendsFrame(t *testing.T) {
	v, dispatch := newVCI(t, 1)
	src := packet.Endpoint{Addr: addrOf(1, 1, 1), Port: 100}
	dst := packet.Endpoint{Addr: addrOf(1, 2, 1), Port: 200}
	pkt := packet.New(packet.Datagram, src, dst, nil, []byte("x"))

	v.TransmitPacket(0, pkt)

	require.Contains(t, dispatch.frames, uint32(2))
	assert.Len(t, dispatch.frames[2], 1)
	assert.Empty(t, dispatch.local)
}

func TestTransmitPacketDroppedOnLossRequestsRetransmit(t *testing.T) {
	v, dispatch := newVCI(t, 0) // reliability 0: always dropped
	src := packet.Endpoint{Addr: addrOf(1, 1, 1), Port: 100}
	dst := packet.Endpoint{Addr: addrOf(1, 1, 2), Port: 200}
	pkt := packet.New(packet.Stream, src, dst, &packet.TCPHeader{Seq: 42}, []byte("x"))

	v.TransmitPacket(0, pkt)

	require.Len(t, dispatch.local, 1)
	ev := dispatch.local[0]
	assert.Equal(t, event.OnRetransmit, ev.Kind)
	require.NotNil(t, ev.Retransmit)
	assert.EqualValues(t, 42, ev.Retransmit.Seq)
}

func TestSendCloseSameWorkerSchedulesLocalCloseEvent(t *testing.T) {
	v, dispatch := newVCI(t, 1)
	src := packet.Endpoint{Addr: addrOf(1, 1, 1), Port: 100}
	dst := packet.Endpoint{Addr: addrOf(1, 1, 2), Port: 200}

	v.SendClose(0, dst, src, 99)

	require.Len(t, dispatch.local, 1)
	assert.Equal(t, event.OnClose, dispatch.local[0].Kind)
	assert.EqualValues(t, 99, dispatch.local[0].Close.RcvEnd)
}

func TestSendCloseCrossWorkerSendsFrame(t *testing.T) {
	v, dispatch := newVCI(t, 1)
	src := packet.Endpoint{Addr: addrOf(1, 1, 1), Port: 100}
	dst := packet.Endpoint{Addr: addrOf(1, 2, 1), Port: 200}

	v.SendClose(0, dst, src, 99)

	require.Contains(t, dispatch.frames, uint32(2))
	assert.Empty(t, dispatch.local)
}

func TestRequestRetransmitAddressesThePeerWithTheData(t *testing.T) {
	v, dispatch := newVCI(t, 1)
	// src is us, missing data from dst; the request must target dst.
	src := packet.Endpoint{Addr: addrOf(1, 1, 1), Port: 100}
	dst := packet.Endpoint{Addr: addrOf(1, 1, 2), Port: 200}

	v.RequestRetransmit(0, src, dst, 7)

	require.Len(t, dispatch.local, 1)
	ev := dispatch.local[0]
	assert.Equal(t, event.OnRetransmit, ev.Kind)
	assert.Equal(t, dst.Addr, ev.Dest, "the retransmit request must be addressed at the peer that holds the data")
}

package vsocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/sockid"
	"github.com/netsimio/vnet/internal/vtcp"
	"github.com/netsimio/vnet/internal/vudp"
)

type fakeClock struct{}

func (fakeClock) Now() uint64 { return 0 }

type fakeRouter struct{}

func (fakeRouter) SendClose(uint64, packet.Endpoint, packet.Endpoint, uint32)         {}
func (fakeRouter) RequestRetransmit(uint64, packet.Endpoint, packet.Endpoint, uint32) {}

type fakeTimers struct{}

func (fakeTimers) Schedule(event.Event) {}

func local() packet.Endpoint { return packet.Endpoint{Addr: 1, Port: 100} }
func remote() packet.Endpoint { return packet.Endpoint{Addr: 2, Port: 200} }

func newTCPSocket() *vtcp.Socket {
	return vtcp.New(sockid.Descriptor(1), local(), remote(), 1000, false,
		vtcp.DefaultConfig(), fakeRouter{}, fakeTimers{}, fakeClock{}, nil, nil)
}

func newUDPSocket() *vudp.Socket {
	return vudp.New(sockid.Descriptor(2), local(), 1500, 1500)
}

func newServer() *vtcp.Server {
	return vtcp.NewServer(sockid.Descriptor(3), local(), 0, func() uint32 { return 1 },
		vtcp.DefaultConfig(), fakeRouter{}, fakeTimers{}, fakeClock{})
}

func TestNewStreamWiresFieldsAndIsNotListener(t *testing.T) {
	tcp := newTCPSocket()
	s := NewStream(sockid.Descriptor(1), sockid.Invalid, local(), remote(), false, tcp)

	assert.Equal(t, Stream, s.Kind)
	assert.True(t, s.Active)
	assert.False(t, s.IsListener())
	assert.Same(t, tcp.Epoll, s.Epoll())
}

func TestNewListenerIsListener(t *testing.T) {
	srv := newServer()
	s := NewListener(sockid.Descriptor(3), local(), srv)

	assert.True(t, s.IsListener())
	assert.Nil(t, s.Epoll(), "a bare listener has no readiness object of its own")
}

func TestNewDatagramWiresUDPEpoll(t *testing.T) {
	udp := newUDPSocket()
	s := NewDatagram(sockid.Descriptor(2), local(), udp)

	assert.Equal(t, Datagram, s.Kind)
	assert.False(t, s.IsListener())
	assert.Same(t, udp.Epoll, s.Epoll())
}

func TestDrainedReportsBufferEmptiness(t *testing.T) {
	udp := newUDPSocket()
	s := NewDatagram(sockid.Descriptor(2), local(), udp)
	assert.True(t, s.Drained())

	require.NoError(t, udp.Send(remote(), []byte("x")))
	assert.False(t, s.Drained())
}

func TestDrainedOnListenerDelegatesToServerEmpty(t *testing.T) {
	srv := newServer()
	s := NewListener(sockid.Descriptor(3), local(), srv)
	assert.True(t, s.Drained())
}

func TestShouldDestroyRequiresBothFlags(t *testing.T) {
	udp := newUDPSocket()
	s := NewDatagram(sockid.Descriptor(2), local(), udp)

	assert.False(t, s.ShouldDestroy(), "drained but not marked for deletion")

	s.DeleteWhenDrained = true
	assert.True(t, s.ShouldDestroy())

	require.NoError(t, udp.Send(remote(), []byte("x")))
	assert.False(t, s.ShouldDestroy(), "marked for deletion but not yet drained")
}

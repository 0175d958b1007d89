package socketmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/vtcp"
)

type fakeClock struct{}

func (fakeClock) Now() uint64 { return 0 }

type fakeRouter struct{}

func (fakeRouter) SendClose(uint64, packet.Endpoint, packet.Endpoint, uint32)         {}
func (fakeRouter) RequestRetransmit(uint64, packet.Endpoint, packet.Endpoint, uint32) {}

type fakeTimers struct{}

func (fakeTimers) Schedule(event.Event) {}

const ethernet addr.Addr = 10<<24 | 1

func newMgr() *Manager {
	return New(ethernet, vtcp.DefaultConfig(), fakeRouter{}, fakeTimers{}, fakeClock{})
}

func TestSocketRejectsNonInetFamily(t *testing.T) {
	m := newMgr()
	_, err := m.Socket(unix.AF_INET6, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	assert.Error(t, err)
}

func TestSocketRejectsBlocking(t *testing.T) {
	m := newMgr()
	_, err := m.Socket(unix.AF_INET, unix.SOCK_DGRAM)
	assert.Error(t, err)
}

func TestSocketRejectsBareStream(t *testing.T) {
	m := newMgr()
	_, err := m.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK)
	assert.Error(t, err)
}

func TestSocketCreatesDatagramWithEphemeralPort(t *testing.T) {
	m := newMgr()
	s, err := m.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)
	assert.Equal(t, Any, s.Local.Addr)
	assert.NotZero(t, s.Local.Port)
}

func TestBindAnyReservesEthernetAndLoopback(t *testing.T) {
	m := newMgr()
	local, err := m.Bind(packet.Datagram, packet.Endpoint{Addr: Any, Port: 5000}, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, local.Port)

	_, err = m.Bind(packet.Datagram, packet.Endpoint{Addr: ethernet, Port: 5000}, 2)
	assert.Error(t, err, "port 5000 is already reserved on the ethernet address via Any")

	_, err = m.Bind(packet.Datagram, packet.Endpoint{Addr: addr.Loopback, Port: 5000}, 2)
	assert.Error(t, err, "port 5000 is already reserved on loopback via Any")
}

func TestBindRejectsDoubleReservation(t *testing.T) {
	m := newMgr()
	_, err := m.Bind(packet.Datagram, packet.Endpoint{Addr: ethernet, Port: 9000}, 1)
	require.NoError(t, err)

	_, err = m.Bind(packet.Datagram, packet.Endpoint{Addr: ethernet, Port: 9000}, 2)
	assert.Error(t, err)
}

func TestListenAndLookupResolveToListener(t *testing.T) {
	m := newMgr()
	s, err := m.Listen(packet.Endpoint{Addr: ethernet, Port: 80}, 0)
	require.NoError(t, err)
	assert.True(t, s.IsListener())

	found, ok := m.Lookup(packet.Stream, packet.Endpoint{Addr: ethernet, Port: 80})
	require.True(t, ok)
	assert.Same(t, s, found)
}

func TestConnectBuildsConnectingStreamSocket(t *testing.T) {
	m := newMgr()
	remote := packet.Endpoint{Addr: 20 << 24 | 1, Port: 443}
	s, syn, err := m.Connect(packet.Endpoint{Addr: ethernet, Port: 0}, remote, 1000, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, syn)
	assert.True(t, syn.TCP.Flags.Has(packet.SYN))
	assert.Equal(t, remote, s.Remote)
}

func TestCloseOnDrainedSocketDestroysImmediately(t *testing.T) {
	m := newMgr()
	s, err := m.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)

	require.NoError(t, m.Close(s.Desc))

	_, ok := m.Get(s.Desc)
	assert.False(t, ok, "a drained socket must be destroyed immediately on close")

	_, ok = m.Lookup(packet.Datagram, s.Local)
	assert.False(t, ok, "its port reservation must be released too")
}

func TestCloseOnUndrainedSocketMarksForDeletion(t *testing.T) {
	m := newMgr()
	s, err := m.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)
	require.NoError(t, s.UDP.Send(packet.Endpoint{Addr: 30 << 24, Port: 1}, []byte("x")))

	require.NoError(t, m.Close(s.Desc))

	_, ok := m.Get(s.Desc)
	assert.True(t, ok, "an undrained socket stays registered until Reap drains it")

	m.Reap()
	_, ok = m.Get(s.Desc)
	assert.True(t, ok, "Reap does not force-drain a socket still holding queued data")
}

func TestSnapshotListsEveryRegisteredSocket(t *testing.T) {
	m := newMgr()
	_, err := m.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)
	_, err = m.Listen(packet.Endpoint{Addr: ethernet, Port: 22}, 0)
	require.NoError(t, err)

	snap := m.Snapshot()
	require.Len(t, snap, 2)

	kinds := map[string]bool{}
	for _, s := range snap {
		kinds[s.Kind] = true
	}
	assert.True(t, kinds["datagram"])
	assert.True(t, kinds["listener"])
}

func TestCloseUnknownDescriptorErrors(t *testing.T) {
	m := newMgr()
	err := m.Close(999)
	assert.Error(t, err)
}

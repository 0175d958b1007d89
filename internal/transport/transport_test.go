package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/socketmgr"
	"github.com/netsimio/vnet/internal/vtcp"
)

type fakeClock struct{}

func (fakeClock) Now() uint64 { return 0 }

type fakeRouter struct{}

func (fakeRouter) SendClose(uint64, packet.Endpoint, packet.Endpoint, uint32)         {}
func (fakeRouter) RequestRetransmit(uint64, packet.Endpoint, packet.Endpoint, uint32) {}

type fakeTimers struct{}

func (fakeTimers) Schedule(event.Event) {}

type fakeUplink struct {
	sent []*packet.Packet
}

func (u *fakeUplink) TransmitPacket(_ uint64, pkt *packet.Packet) {
	u.sent = append(u.sent, pkt)
}

type fakeScheduler struct {
	uploadedAt, downloadedAt []uint64
}

func (s *fakeScheduler) ScheduleUploaded(t uint64)   { s.uploadedAt = append(s.uploadedAt, t) }
func (s *fakeScheduler) ScheduleDownloaded(t uint64) { s.downloadedAt = append(s.downloadedAt, t) }

const ethernet addr.Addr = 10<<24 | 1

func newHarness(t *testing.T) (*Manager, *socketmgr.Manager, *fakeUplink, *fakeScheduler) {
	t.Helper()
	sockets := socketmgr.New(ethernet, vtcp.DefaultConfig(), fakeRouter{}, fakeTimers{}, fakeClock{})
	uplink := &fakeUplink{}
	sched := &fakeScheduler{}
	cfg := DefaultConfig()
	m := New(cfg, sockets, uplink, sched, nil, nil)
	return m, sockets, uplink, sched
}

func TestReadySendTransmitsQueuedDatagramImmediately(t *testing.T) {
	m, sockets, uplink, _ := newHarness(t)
	s, err := sockets.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)
	require.NoError(t, s.UDP.Send(packet.Endpoint{Addr: 20 << 24, Port: 1}, []byte("hi")))

	m.ReadySend(0, s.Desc)

	require.Len(t, uplink.sent, 1)
	assert.Equal(t, []byte("hi"), uplink.sent[0].Payload())
}

func TestUploadNextRoundRobinsMultipleSockets(t *testing.T) {
	m, sockets, uplink, _ := newHarness(t)
	a, err := sockets.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)
	b, err := sockets.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)
	require.NoError(t, a.UDP.Send(packet.Endpoint{Addr: 20 << 24, Port: 1}, []byte("a")))
	require.NoError(t, b.UDP.Send(packet.Endpoint{Addr: 20 << 24, Port: 2}, []byte("b")))

	m.ReadySend(0, a.Desc)
	m.ReadySend(0, b.Desc)

	require.Len(t, uplink.sent, 2)
}

func TestReadyReceiveDropsWhenInqQueueFull(t *testing.T) {
	m, sockets, _, _ := newHarness(t)
	m.cfg.InqMaxBytes = 10
	s, err := sockets.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)

	remote := packet.Endpoint{Addr: 20 << 24, Port: 1}
	pkt := packet.New(packet.Datagram, remote, s.Local, nil, []byte("way too long for the budget"))

	m.ReadyReceive(0, remote, s.Local, pkt)

	assert.Empty(t, m.inq, "an oversized packet must be dropped, not queued")
}

func TestReadyReceiveDeliversToBoundSocket(t *testing.T) {
	m, sockets, _, _ := newHarness(t)
	s, err := sockets.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)

	remote := packet.Endpoint{Addr: 20 << 24, Port: 1}
	pkt := packet.New(packet.Datagram, remote, s.Local, nil, []byte("hi"))

	m.ReadyReceive(0, remote, s.Local, pkt)

	n, from, err := s.UDP.Recv(make([]byte, 16))
	require.NoError(t, err)
	assert.Equal(t, remote, from)
	assert.Equal(t, 2, n)
}

func TestDownloadNextArmsSchedulerWhenBudgetConsumed(t *testing.T) {
	m, sockets, _, sched := newHarness(t)
	m.cfg.BytesPerMsDown = 1
	m.cfg.BatchMs = 1

	s, err := sockets.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)

	remote := packet.Endpoint{Addr: 20 << 24, Port: 1}
	pkt := packet.New(packet.Datagram, remote, s.Local, nil, []byte("hello there"))
	m.ReadyReceive(0, remote, s.Local, pkt)

	require.NotEmpty(t, sched.downloadedAt, "a batch exceeding its byte budget must arm a continuation timer")
}

package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/event"
	"github.com/netsimio/vnet/internal/packet"
	"github.com/netsimio/vnet/internal/transport"
	"github.com/netsimio/vnet/internal/vtcp"
)

type fakeClock struct{}

func (fakeClock) Now() uint64 { return 0 }

type fakeRouter struct{}

func (fakeRouter) SendClose(uint64, packet.Endpoint, packet.Endpoint, uint32)         {}
func (fakeRouter) RequestRetransmit(uint64, packet.Endpoint, packet.Endpoint, uint32) {}

type fakeTimers struct {
	scheduled []event.Event
}

func (t *fakeTimers) Schedule(ev event.Event) { t.scheduled = append(t.scheduled, ev) }

type fakeUplink struct{}

func (fakeUplink) TransmitPacket(uint64, *packet.Packet) {}

const ethernet addr.Addr = 10<<24 | 1

func newHost(t *testing.T) (*Host, *fakeTimers) {
	t.Helper()
	timers := &fakeTimers{}
	h := New(ethernet, 1,
		vtcp.DefaultConfig(), fakeRouter{}, timers, fakeClock{},
		transport.DefaultConfig(), fakeUplink{}, nil, nil)
	return h, timers
}

func TestScheduleUploadedArmsOwnTimer(t *testing.T) {
	h, timers := newHost(t)
	h.ScheduleUploaded(100)

	require.Len(t, timers.scheduled, 1)
	assert.Equal(t, event.OnUploaded, timers.scheduled[0].Kind)
	assert.Equal(t, h.Addr, timers.scheduled[0].Dest)
}

func TestScheduleDownloadedArmsOwnTimer(t *testing.T) {
	h, timers := newHost(t)
	h.ScheduleDownloaded(200)

	require.Len(t, timers.scheduled, 1)
	assert.Equal(t, event.OnDownloaded, timers.scheduled[0].Kind)
}

func TestNewPipeIsTrackedAndReapedOnlyAfterBothEndsClose(t *testing.T) {
	h, _ := newHost(t)
	p := h.NewPipe()
	require.Len(t, h.pipes, 1)

	h.ReapPipes()
	assert.Len(t, h.pipes, 1, "a fresh pipe must not be reaped")

	p.A.Close()
	p.B.Close()
	h.ReapPipes()
	assert.Empty(t, h.pipes, "a pipe with both ends closed must be reaped")
}

func TestAdvanceCPUDelayAccumulates(t *testing.T) {
	h, _ := newHost(t)
	h.AdvanceCPUDelay(10)
	h.AdvanceCPUDelay(5)
	assert.EqualValues(t, 15, h.CPUDelayMs)
}

func TestCloseTearsDownOpenSockets(t *testing.T) {
	h, _ := newHost(t)
	s, err := h.Sockets.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK)
	require.NoError(t, err)

	require.NoError(t, h.Close())

	_, ok := h.Sockets.Get(s.Desc)
	assert.False(t, ok, "Close must tear down every open socket")
}

func TestCloseOnHostWithNoSocketsIsNoop(t *testing.T) {
	h, _ := newHost(t)
	assert.NoError(t, h.Close())
}

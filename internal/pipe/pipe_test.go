package pipe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOnAIsReadableOnB(t *testing.T) {
	p := New()

	require.NoError(t, p.A.Write([]byte("hello")))
	assert.True(t, p.B.Epoll().Readable)

	buf := make([]byte, 16)
	n, eof := p.B.Read(buf)
	assert.False(t, eof)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestReadIsPartialWhenBufferSmallerThanQueuedChunk(t *testing.T) {
	p := New()
	require.NoError(t, p.A.Write([]byte("hello world")))

	buf := make([]byte, 5)
	n, eof := p.B.Read(buf)
	assert.False(t, eof)
	assert.Equal(t, "hello", string(buf[:n]))

	n, eof = p.B.Read(buf)
	assert.False(t, eof)
	assert.Equal(t, " worl", string(buf[:n]))

	n, eof = p.B.Read(buf)
	assert.False(t, eof)
	assert.Equal(t, "d", string(buf[:n]))
}

func TestWriteAfterCloseReturnsPeerClosed(t *testing.T) {
	p := New()
	p.A.Close()

	err := p.A.Write([]byte("x"))
	assert.Error(t, err)
}

func TestCloseMarksPeerReadableWithEOF(t *testing.T) {
	p := New()
	p.A.Close()

	assert.True(t, p.B.Epoll().Readable, "a peer with nothing queued but a closed sender must still report readable so the reader observes EOF")

	n, eof := p.B.Read(make([]byte, 8))
	assert.Equal(t, 0, n)
	assert.True(t, eof)
}

func TestDestroyedOnlyAfterBothEndpointsClose(t *testing.T) {
	p := New()
	assert.False(t, p.Destroyed())

	p.A.Close()
	assert.False(t, p.Destroyed())

	p.B.Close()
	assert.True(t, p.Destroyed())
}

func TestWriteOverQueueCapacityErrors(t *testing.T) {
	p := New()
	big := strings.Repeat("x", maxQueueBytes+1)

	err := p.A.Write([]byte(big))
	assert.Error(t, err)
}

func TestWritableGoesFalseWhenQueueFull(t *testing.T) {
	p := New()
	require.NoError(t, p.A.Write(make([]byte, maxQueueBytes)))
	assert.False(t, p.A.Epoll().Writable)
}

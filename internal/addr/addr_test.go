package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemePackUnpackRoundTrip(t *testing.T) {
	s := DefaultScheme

	tests := []struct {
		name     string
		slave    uint32
		worker   uint32
		node     uint32
	}{
		{"zero", 0, 0, 0},
		{"small", 1, 2, 3},
		{"max fields", 0xff, 0xff, 0xffff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := s.Pack(tt.slave, tt.worker, tt.node)
			slave, worker, node := s.Unpack(a)
			assert.Equal(t, tt.slave, slave)
			assert.Equal(t, tt.worker, worker)
			assert.Equal(t, tt.node, node)
		})
	}
}

func TestNewSchemeValidatesWidths(t *testing.T) {
	_, err := NewScheme(8, 8, 8)
	require.Error(t, err)

	s, err := NewScheme(8, 8, 16)
	require.NoError(t, err)
	assert.Equal(t, DefaultScheme, s)
}

func TestLoopback(t *testing.T) {
	assert.True(t, Loopback.IsLoopback())
	assert.Equal(t, "127.0.0.1", Loopback.String())
}

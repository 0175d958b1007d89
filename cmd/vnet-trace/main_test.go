package main

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsimio/vnet/internal/addr"
	"github.com/netsimio/vnet/internal/event"
)

func TestToRowProjectsSharedFields(t *testing.T) {
	ev := event.NewTimerEvent(event.OnPoll, 42, addr.Addr(1), addr.Addr(2))

	r := toRow(ev)
	assert.Equal(t, "on_poll", r.Kind)
	assert.EqualValues(t, 42, r.DeliverTime)
	assert.Equal(t, ev.Owner.String(), r.Owner)
	assert.Equal(t, ev.Dest.String(), r.Dest)
	assert.NotEmpty(t, r.Trace)
}

func TestReadTraceParsesOneEventPerLine(t *testing.T) {
	a := event.NewTimerEvent(event.OnPoll, 1, addr.Addr(1), addr.Addr(1))
	b := event.NewTimerEvent(event.OnUploaded, 2, addr.Addr(1), addr.Addr(1))

	aJSON, err := json.Marshal(a)
	require.NoError(t, err)
	bJSON, err := json.Marshal(b)
	require.NoError(t, err)

	input := strings.NewReader(string(aJSON) + "\n" + string(bJSON) + "\n")
	rows, err := readTrace(input)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "on_poll", rows[0].Kind)
	assert.Equal(t, "on_uploaded", rows[1].Kind)
}

func TestReadTraceSkipsBlankLines(t *testing.T) {
	a := event.NewTimerEvent(event.OnPoll, 1, addr.Addr(1), addr.Addr(1))
	aJSON, err := json.Marshal(a)
	require.NoError(t, err)

	input := strings.NewReader("\n" + string(aJSON) + "\n\n")
	rows, err := readTrace(input)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestReadTraceRejectsMalformedLine(t *testing.T) {
	input := strings.NewReader("not json\n")
	_, err := readTrace(input)
	assert.Error(t, err)
}

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertPopFIFOAtSameTime(t *testing.T) {
	tr := NewTracker[string](1)

	tr.Insert(10, "a")
	tr.Insert(10, "b")
	tr.Insert(10, "c")

	require.Equal(t, 3, tr.Count())

	var ts uint64
	v, ok := tr.PopNext(&ts)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.EqualValues(t, 10, ts)

	v, _ = tr.PopNext(&ts)
	assert.Equal(t, "b", v)
	v, _ = tr.PopNext(&ts)
	assert.Equal(t, "c", v)

	assert.Equal(t, 0, tr.Count())
}

func TestPopOrdersByTimeAcrossBuckets(t *testing.T) {
	tr := NewTracker[int](1)

	tr.Insert(30, 3)
	tr.Insert(10, 1)
	tr.Insert(20, 2)

	var got []int
	var lastTs uint64
	for tr.Count() > 0 {
		var ts uint64
		v, ok := tr.PopNext(&ts)
		require.True(t, ok)
		assert.GreaterOrEqual(t, ts, lastTs)
		lastTs = ts
		got = append(got, v)
	}

	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestGranularityRoundsUp(t *testing.T) {
	tr := NewTracker[int](10)

	tr.Insert(1, 1)  // rounds to 10
	tr.Insert(11, 2) // rounds to 20
	tr.Insert(10, 3) // stays at 10, same bucket as the first insert

	var ts uint64
	v, _ := tr.PeekNext(&ts)
	assert.Equal(t, 1, v)
	assert.EqualValues(t, 10, ts)

	tr.PopNext(&ts)
	v, _ = tr.PopNext(&ts)
	assert.Equal(t, 3, v)
	assert.EqualValues(t, 10, ts)

	v, _ = tr.PopNext(&ts)
	assert.Equal(t, 2, v)
	assert.EqualValues(t, 20, ts)
}

func TestPeekDoesNotRemove(t *testing.T) {
	tr := NewTracker[int](1)
	tr.Insert(5, 42)

	v, ok := tr.PeekNext(nil)
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, tr.Count())

	v, ok = tr.PopNext(nil)
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.Equal(t, 0, tr.Count())
}

func TestEmptyTracker(t *testing.T) {
	tr := NewTracker[int](1)
	_, ok := tr.PopNext(nil)
	assert.False(t, ok)
	_, ok = tr.PeekNext(nil)
	assert.False(t, ok)
}

package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue[int](4, nil)
	require.True(t, q.Push(1))
	require.True(t, q.Push(2))
	require.True(t, q.Push(3))

	for want := 1; want <= 3; want++ {
		v, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestQueue_OverflowDropsNewest(t *testing.T) {
	q := NewQueue[int](2, nil)
	assert.True(t, q.Push(1))
	assert.True(t, q.Push(2))
	assert.False(t, q.Push(3), "full queue rejects the push")
	assert.Equal(t, uint64(1), q.Dropped())

	v, _ := q.Pop()
	assert.Equal(t, 1, v, "queued elements survive the overflow")
}

func TestQueue_WakeFiresOnPush(t *testing.T) {
	wakes := 0
	q := NewQueue[int](1, func() { wakes++ })
	q.Push(1)
	q.Push(2) // dropped, still wakes the consumer to drain
	assert.Equal(t, 2, wakes)
}

func TestQueue_WrapAround(t *testing.T) {
	q := NewQueue[int](2, nil)
	q.Push(1)
	q.Push(2)
	q.Pop()
	require.True(t, q.Push(3))
	v, _ := q.Pop()
	assert.Equal(t, 2, v)
	v, _ = q.Pop()
	assert.Equal(t, 3, v)
	assert.Equal(t, 0, q.Len())
}

package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	rq := NewRingQueue[int](4)
	assert.True(t, rq.IsEmpty())

	for i := 1; i <= 4; i++ {
		require.NoError(t, rq.Enqueue(i))
	}
	assert.True(t, rq.IsFull())
	assert.Equal(t, 4, rq.Len())

	err := rq.Enqueue(5)
	assert.ErrorIs(t, err, ErrQueueFull)

	for i := 1; i <= 4; i++ {
		v, err := rq.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.True(t, rq.IsEmpty())

	_, err = rq.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestRingQueueWrapsAround(t *testing.T) {
	rq := NewRingQueue[string](2)
	require.NoError(t, rq.Enqueue("a"))
	require.NoError(t, rq.Enqueue("b"))

	v, err := rq.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	require.NoError(t, rq.Enqueue("c"))

	front, err := rq.Peek()
	require.NoError(t, err)
	assert.Equal(t, "b", front)
	assert.Equal(t, 2, rq.Len())

	v, _ = rq.Dequeue()
	assert.Equal(t, "b", v)
	v, _ = rq.Dequeue()
	assert.Equal(t, "c", v)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(3, 5, 10))
	assert.Equal(t, 10, Clamp(42, 5, 10))
	assert.Equal(t, 7, Clamp(7, 5, 10))
}

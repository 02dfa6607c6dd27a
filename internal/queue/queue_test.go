package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushEvictsOldestOnOverflow(t *testing.T) {
	var dropped []int
	q := New[int](3, func(d int) { dropped = append(dropped, d) })

	q.Push(1)
	q.Push(2)
	q.Push(3)
	q.Push(4) // evicts 1

	require.Equal(t, []int{1}, dropped)
	require.Equal(t, int64(1), q.Dropped())
	require.Equal(t, 3, q.Len())

	item, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, 2, item)
}

func TestDrainReturnsAllInOrder(t *testing.T) {
	q := New[int](10, nil)
	q.Push(1)
	q.Push(2)
	q.Push(3)

	out := q.Drain(0)
	require.Equal(t, []int{1, 2, 3}, out)
	require.Equal(t, 0, q.Len())
}

func TestPopOnEmptyReturnsFalse(t *testing.T) {
	q := New[int](2, nil)
	_, ok := q.Pop()
	require.False(t, ok)
}

package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type input struct {
	kind string
	id   int64
}

func TestQueue_FIFO(t *testing.T) {
	q := New[input]()
	assert.True(t, q.Empty())

	q.Push(input{"focus", 1}, input{"click", 2})
	q.Push(input{"recognize", 3})
	assert.Equal(t, 3, q.Len())

	got, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, input{"focus", 1}, got)
	assert.Equal(t, []input{{"click", 2}, {"recognize", 3}}, q.Drain())
	assert.True(t, q.Empty())

	_, ok = q.TryPop()
	assert.False(t, ok)
	assert.Empty(t, q.Drain())
}

func TestQueue_Clear(t *testing.T) {
	q := New[string]()
	q.Push("a", "b")
	q.Clear()
	assert.Zero(t, q.Len())
	q.Push("c")
	assert.Equal(t, []string{"c"}, q.Drain())
}

func TestQueue_Bounded(t *testing.T) {
	q := NewBounded[int](3)
	assert.True(t, q.Push(1, 2))
	assert.False(t, q.Push(3, 4, 5))
	assert.False(t, q.Push(6))

	assert.Equal(t, []int{1, 2, 3}, q.Drain())
	assert.Equal(t, 3, q.Dropped())
	assert.True(t, q.Push(7))
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Push(i, i)
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for total < 100 {
			total += len(q.Drain())
		}
	}()
	wg.Wait()
	<-done
	assert.Equal(t, 100, total)
	assert.True(t, q.Empty())
}

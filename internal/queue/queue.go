// Package queue holds a mutex guarded FIFO used to hand work from producer
// goroutines to a single consumer.
package queue

import "sync"

// Queue is a FIFO safe for concurrent use.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
	// dropped counts items refused because the queue was full.
	dropped int
}

// New creates an unbounded queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// NewBounded creates a queue holding at most limit items. Pushes beyond the
// limit are dropped and counted.
func NewBounded[T any](limit int) *Queue[T] {
	return &Queue[T]{limit: limit}
}

// Push appends items. It reports false if any item was dropped.
func (q *Queue[T]) Push(items ...T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit <= 0 {
		q.items = append(q.items, items...)
		return true
	}
	room := q.limit - len(q.items)
	if room >= len(items) {
		q.items = append(q.items, items...)
		return true
	}
	room = max(room, 0)
	q.items = append(q.items, items[:room]...)
	q.dropped += len(items) - room
	return false
}

// TryPop removes the oldest item.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many pushes were refused by a bounded queue.
func (q *Queue[T]) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Clear discards all items.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.items)
	q.items = q.items[:0]
}

// Drain returns all items in order and leaves the queue empty.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

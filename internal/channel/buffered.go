package channel

// Buffered holds up to its capacity before Send blocks.
type Buffered[T any] struct {
	ch chan T
}

func NewBuffered[T any](size int) *Buffered[T] {
	return &Buffered[T]{ch: make(chan T, size)}
}

func (b *Buffered[T]) Send(v T) { b.ch <- v }

func (b *Buffered[T]) TrySend(v T) bool { return trySend(b.ch, v) }

func (b *Buffered[T]) Receive() <-chan T { return b.ch }

// Len returns the number of values waiting to be received.
func (b *Buffered[T]) Len() int { return len(b.ch) }

func (b *Buffered[T]) Close() { close(b.ch) }

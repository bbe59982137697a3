package channel

// Unbuffered hands each value directly to a waiting receiver.
type Unbuffered[T any] struct {
	ch chan T
}

func NewUnbuffered[T any]() *Unbuffered[T] {
	return &Unbuffered[T]{ch: make(chan T)}
}

func (u *Unbuffered[T]) Send(v T) { u.ch <- v }

// TrySend succeeds only if a receiver is already waiting.
func (u *Unbuffered[T]) TrySend(v T) bool { return trySend(u.ch, v) }

func (u *Unbuffered[T]) Receive() <-chan T { return u.ch }

func (u *Unbuffered[T]) Len() int { return 0 }

func (u *Unbuffered[T]) Close() { close(u.ch) }

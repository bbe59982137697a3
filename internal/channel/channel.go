// Package channel wraps Go channels behind small interfaces so that the
// event path of the sync loop can run unbuffered under the debug build tag.
package channel

// Receiver is the consuming side.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender is the producing side. TrySend never blocks and reports whether
// the value was accepted.
type Sender[T any] interface {
	Send(T)
	TrySend(T) bool
}

// Channel combines both sides. Only the producer may Close.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}

func trySend[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}

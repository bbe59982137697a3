package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuffered(t *testing.T) {
	c := NewBuffered[int](2)
	c.Send(1)
	assert.True(t, c.TrySend(2))
	assert.False(t, c.TrySend(3), "a full buffer refuses")
	assert.Equal(t, 2, c.Len())

	c.Close()
	var got []int
	for v := range c.Receive() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestUnbuffered(t *testing.T) {
	c := NewUnbuffered[string]()
	assert.False(t, c.TrySend("x"), "no receiver is waiting")
	assert.Zero(t, c.Len())

	go c.Send("hello")
	select {
	case v := <-c.Receive():
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("value not delivered")
	}

	received := make(chan string)
	go func() { received <- <-c.Receive() }()
	assert.Eventually(t, func() bool { return c.TrySend("world") }, time.Second, time.Millisecond)
	assert.Equal(t, "world", <-received)
	c.Close()
}

func TestNew(t *testing.T) {
	var c Channel[int] = New[int](4)
	go func() {
		c.Send(7)
		c.Close()
	}()
	assert.Equal(t, 7, <-c.Receive())
}

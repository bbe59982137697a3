package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) log(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv) }
func (l *testLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv) }
func (l *testLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv) }

func (l *testLogger) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.messages...)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, logger
}

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"status", Command{Name: "status", Args: []string{}}},
		{"  Refresh http://x/cgi Demo  ", Command{Name: "refresh", Args: []string{"http://x/cgi", "Demo"}}},
		{`refresh http://x/cgi "My Layer" 48.1 11.5`, Command{Name: "refresh", Args: []string{"http://x/cgi", "My Layer", "48.1", "11.5"}}},
		{`focus 3 ""`, Command{Name: "focus", Args: []string{"3", ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Name, got.Name)
			assert.Equal(t, tt.want.Args, got.Args)
			assert.False(t, got.Time.IsZero())
		})
	}

	_, err := Parse("   ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
	_, err = Parse(`refresh "open`)
	assert.ErrorContains(t, err, "unterminated quote")
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Command
	d.Register("Click", func(c Command) (any, error) {
		got = c
		return "clicked", nil
	})

	result, err := d.DispatchLine("CLICK 7")
	require.NoError(t, err)
	assert.Equal(t, "clicked", result)
	assert.Equal(t, []string{"7"}, got.Args)
	assert.True(t, d.HasHandler("click"))
	assert.Equal(t, []string{"click"}, d.Names())
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Command{Name: "teleport"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.ErrorContains(t, err, "teleport")
	assert.False(t, d.HasHandler("teleport"))
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register("recognize", func(Command) (any, error) {
		processed.Add(1)
		return nil, nil
	}, Buffered(10))

	for range 3 {
		result, err := d.Dispatch(Command{Name: "recognize"})
		require.NoError(t, err)
		assert.Equal(t, "queued", result)
	}
	assert.Eventually(t, func() bool { return processed.Load() == 3 }, time.Second, time.Millisecond)
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 3)
	block := make(chan struct{})
	d.Register("recognize", func(Command) (any, error) {
		started <- struct{}{}
		<-block
		return nil, nil
	}, Buffered(2))

	_, err := d.Dispatch(Command{Name: "recognize"})
	require.NoError(t, err)
	<-started
	_, err = d.Dispatch(Command{Name: "recognize"})
	require.NoError(t, err)
	_, err = d.Dispatch(Command{Name: "recognize"})
	require.NoError(t, err)

	_, err = d.Dispatch(Command{Name: "recognize"})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once
	d.Register("refresh", func(Command) (any, error) {
		once.Do(func() { close(started) })
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	_, _ = d.Dispatch(Command{Name: "refresh"})
	<-started
	_, _ = d.Dispatch(Command{Name: "refresh"})

	done := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(Command{Name: "refresh"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("dispatch should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not resume")
	}
}

func TestDispatcher_Logged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("status", func(Command) (any, error) { return "ok", nil }, Logged())
	d.Register("select", func(Command) (any, error) { return nil, errors.New("no layer items") }, Logged())

	_, err := d.Dispatch(Command{Name: "status"})
	require.NoError(t, err)
	_, err = d.Dispatch(Command{Name: "select", Args: []string{"4"}})
	require.Error(t, err)

	lines := logger.lines()
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "DEBUG: Handling command"))
	assert.True(t, strings.HasPrefix(lines[1], "DEBUG: Command complete"))
	assert.True(t, strings.HasPrefix(lines[3], "ERROR: Command failed"))
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)

	var processed atomic.Int32
	d.Register("focus", func(Command) (any, error) {
		time.Sleep(time.Millisecond)
		processed.Add(1)
		return nil, nil
	}, Buffered(10), Logged())

	for range 5 {
		_, err := d.Dispatch(Command{Name: "focus"})
		require.NoError(t, err)
	}
	d.Close()
	assert.Equal(t, int32(5), processed.Load())

	_, err = d.Dispatch(Command{Name: "focus"})
	assert.ErrorIs(t, err, ErrQueueFull)
	d.Close()
}

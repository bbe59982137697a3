// Package dispatcher routes collaborator commands (refresh, select, focus,
// click, recognize, status) to their handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrQueueFull      = errors.New("queue full")
	ErrEmptyCommand   = errors.New("empty command")
)

// Command is one request from a collaborator, such as a line typed on
// stdin or a message received from the scene link.
type Command struct {
	Name string
	Args []string
	Time time.Time
}

// Parse splits a command line into name and arguments. Arguments may be
// double quoted to contain spaces.
func Parse(line string) (Command, error) {
	var (
		fields []string
		cur    strings.Builder
		quoted bool
		inArg  bool
	)
	for _, r := range strings.TrimSpace(line) {
		switch {
		case r == '"':
			quoted = !quoted
			inArg = true
		case (r == ' ' || r == '\t') && !quoted:
			if inArg {
				fields = append(fields, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if inArg {
		fields = append(fields, cur.String())
	}
	if quoted {
		return Command{}, fmt.Errorf("unterminated quote in %q", line)
	}
	if len(fields) == 0 {
		return Command{}, ErrEmptyCommand
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:], Time: time.Now()}, nil
}

// HandlerFunc processes a command and returns a result for the caller.
type HandlerFunc func(Command) (any, error)

// Logger is the subset of *slog.Logger used here.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered runs the handler on its own goroutine behind a queue of size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler wait for room instead of failing with
// ErrQueueFull.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged logs start, completion and failure of each command.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher routes commands to registered handlers.
type Dispatcher struct {
	logger Logger

	queueSize metric.Int64ObservableGauge
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	buffers  map[string]chan Command
	workers  sync.WaitGroup
	closed   bool
}

// New creates a Dispatcher. Metrics go to the global OTel meter provider,
// which is a no-op until one is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan Command),
		logger:   logger,
	}

	m := meter()
	var err error

	d.queueSize, err = m.Int64ObservableGauge(
		"dispatcher.queue.size",
		metric.WithDescription("Commands waiting in a handler queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			d.mu.RLock()
			defer d.mu.RUnlock()
			for name, buf := range d.buffers {
				o.ObserveInt64(d.queueSize, int64(len(buf)),
					metric.WithAttributes(attribute.String("command", name)))
			}
			return nil
		},
		d.queueSize,
	)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.commands.processed",
		metric.WithDescription("Commands handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}

	d.dropped, err = m.Int64Counter(
		"dispatcher.commands.dropped",
		metric.WithDescription("Commands refused because the queue was full"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	d.failed, err = m.Int64Counter(
		"dispatcher.commands.failed",
		metric.WithDescription("Commands whose handler returned an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failed counter: %w", err)
	}

	return d, nil
}

// Register adds the handler for name. Names are case insensitive; a later
// registration replaces an earlier one.
func (d *Dispatcher) Register(name string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	name = strings.ToLower(name)

	handler := d.counted(name, h)
	if cfg.logged {
		handler = d.withLogging(name, handler)
	}
	if cfg.bufferSize > 0 {
		handler = d.withBuffer(name, cfg.bufferSize, cfg.blocking, handler)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = handler
}

// Dispatch runs the handler registered for c.Name.
func (d *Dispatcher) Dispatch(c Command) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[strings.ToLower(c.Name)]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, c.Name)
	}
	if c.Time.IsZero() {
		c.Time = time.Now()
	}
	return h(c)
}

// DispatchLine parses line and dispatches the command.
func (d *Dispatcher) DispatchLine(line string) (any, error) {
	c, err := Parse(line)
	if err != nil {
		return nil, err
	}
	return d.Dispatch(c)
}

// HasHandler reports whether a handler is registered for name.
func (d *Dispatcher) HasHandler(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[strings.ToLower(name)]
	return ok
}

// Names returns the registered command names in order.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Close stops accepting buffered commands and waits until the queued ones
// are handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()
	d.workers.Wait()
}

func (d *Dispatcher) counted(name string, h HandlerFunc) HandlerFunc {
	attrs := metric.WithAttributes(attribute.String("command", name))
	return func(c Command) (any, error) {
		result, err := h(c)
		d.processed.Add(context.Background(), 1, attrs)
		if err != nil {
			d.failed.Add(context.Background(), 1, attrs)
		}
		return result, err
	}
}

func (d *Dispatcher) withBuffer(name string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Command, size)

	d.mu.Lock()
	d.buffers[name] = buffer
	d.mu.Unlock()

	d.workers.Add(1)
	go func() {
		defer d.workers.Done()
		for c := range buffer {
			_, _ = h(c)
		}
	}()

	attrs := metric.WithAttributes(attribute.String("command", name))
	return func(c Command) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, fmt.Errorf("%w: %s: dispatcher closed", ErrQueueFull, name)
		}
		if blocking {
			buffer <- c
			return "queued", nil
		}
		select {
		case buffer <- c:
			return "queued", nil
		default:
			d.dropped.Add(context.Background(), 1, attrs)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, name)
		}
	}
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(c Command) (any, error) {
		start := time.Now()
		d.logger.Debug("Handling command", "command", name, "args", len(c.Args))

		result, err := h(c)

		if err != nil {
			d.logger.Error("Command failed", "command", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("Command complete", "command", name, "duration", time.Since(start))
		}
		return result, err
	}
}

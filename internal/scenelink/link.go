// Package scenelink streams loop events and object snapshots to an
// external renderer over WebSocket, and routes the renderer's commands to
// the command dispatcher.
package scenelink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/arpoise/arclient/internal/layersync"
	"github.com/arpoise/arclient/internal/state"
	"github.com/arpoise/arclient/pkg/streaming"
)

// Config holds the scene link settings.
type Config struct {
	URL    string
	Secret string
	Hello  streaming.HelloPayload
}

// Snapshotter supplies the placed objects.
type Snapshotter interface {
	Views() []state.View
}

// Commands executes a command line.
type Commands interface {
	DispatchLine(line string) (any, error)
}

// Link is a layersync.Sink that mirrors the client to a renderer.
type Link struct {
	conn     *connection
	cfg      Config
	state    Snapshotter
	commands Commands
	logger   *slog.Logger

	dialed atomic.Bool
	wg     sync.WaitGroup
}

// New creates a link. commands may be nil, in which case inbound commands
// are answered with an error.
func New(cfg Config, st Snapshotter, commands Commands, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		conn:     newConnection(logger),
		cfg:      cfg,
		state:    st,
		commands: commands,
		logger:   logger,
	}
}

// Start connects, sends the hello message and waits for its ack.
func (l *Link) Start() error {
	if err := l.conn.dial(l.cfg.URL, l.cfg.Secret); err != nil {
		return err
	}
	l.dialed.Store(true)
	hello, err := marshalEnvelope(streaming.TypeHello, l.cfg.Hello)
	if err != nil {
		return err
	}
	l.conn.mu.Lock()
	l.conn.cachedHello = hello
	l.conn.mu.Unlock()

	l.wg.Add(1)
	go l.serveCommands()

	return l.conn.sendAndWait(hello, streaming.TypeHello, ackTimeout)
}

// Close disconnects and waits for the command goroutine.
func (l *Link) Close() error {
	err := l.conn.close()
	l.wg.Wait()
	return err
}

func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (l *Link) sendEnvelope(msgType string, payload any) {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		l.logger.Error("Failed to encode scene link message", "type", msgType, "error", err)
		return
	}
	l.conn.send(data)
}

// Publish forwards e. A cycle event is followed by a snapshot of the
// placed objects. Events are discarded until Start has connected.
func (l *Link) Publish(e layersync.Event) {
	if !l.dialed.Load() {
		return
	}
	l.sendEnvelope(streaming.TypeEvent, e)
	if e.Kind == layersync.EventCycle && l.state != nil {
		l.sendEnvelope(streaming.TypeSnapshot, Snapshot(e.Cycle, e.Layer, l.state.Views()))
	}
}

// Snapshot builds the snapshot payload for views.
func Snapshot(cycle int64, layer string, views []state.View) streaming.SnapshotPayload {
	return streaming.SnapshotPayload{
		Cycle:   cycle,
		Layer:   layer,
		Objects: objectPayloads(views),
	}
}

func objectPayloads(views []state.View) []streaming.ObjectPayload {
	out := make([]streaming.ObjectPayload, 0, len(views))
	for _, v := range views {
		p := streaming.ObjectPayload{
			ID:        v.ID,
			Title:     v.Title,
			Template:  v.TemplateName,
			BaseURL:   v.BaseURL,
			Lat:       v.Latitude,
			Lon:       v.Longitude,
			Relative:  v.IsRelative,
			Target:    v.TargetPosition,
			Bleaching: v.Bleaching,
		}
		if len(v.Children) > 0 {
			p.Children = objectPayloads(v.Children)
		}
		out = append(out, p)
	}
	return out
}

func (l *Link) serveCommands() {
	defer l.wg.Done()
	for {
		select {
		case <-l.conn.done:
			return
		case env := <-l.conn.inCh:
			if env.Type != streaming.TypeCommand {
				l.logger.Debug("Ignoring scene link message", "type", env.Type)
				continue
			}
			var cmd streaming.CommandPayload
			if err := json.Unmarshal(env.Payload, &cmd); err != nil {
				l.logger.Warn("Malformed command", "error", err)
				continue
			}
			l.sendEnvelope(streaming.TypeCommandResult, l.run(cmd))
		}
	}
}

func (l *Link) run(cmd streaming.CommandPayload) streaming.CommandResultPayload {
	res := streaming.CommandResultPayload{ID: cmd.ID}
	if l.commands == nil {
		res.Error = "commands not accepted"
		return res
	}
	out, err := l.commands.DispatchLine(cmd.Line)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if out != nil {
		raw, err := json.Marshal(out)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		res.Result = raw
	}
	return res
}

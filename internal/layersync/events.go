package layersync

import (
	"time"

	"github.com/arpoise/arclient/pkg/core"
)

// EventKind names a loop event.
type EventKind string

const (
	EventCycle      EventKind = "cycle"
	EventError      EventKind = "error"
	EventLayerItems EventKind = "layer_items"
	EventHeader     EventKind = "header"
	EventInfo       EventKind = "info"
)

// Event is published to every Sink after the loop reaches a checkpoint.
type Event struct {
	Kind      EventKind        `json:"kind"`
	Time      time.Time        `json:"time"`
	Cycle     int64            `json:"cycle"`
	URL       string           `json:"url,omitempty"`
	Layer     string           `json:"layer,omitempty"`
	Message   string           `json:"message,omitempty"`
	ErrorKind string           `json:"errorKind,omitempty"`
	Pages     int              `json:"pages,omitempty"`
	Objects   int              `json:"objects,omitempty"`
	Created   int              `json:"created,omitempty"`
	Updated   int              `json:"updated,omitempty"`
	Deleted   int              `json:"deleted,omitempty"`
	Triggers  int              `json:"triggers,omitempty"`
	Duration  time.Duration    `json:"duration,omitempty"`
	Position  core.Position    `json:"position"`
	Items     []core.LayerItem `json:"items,omitempty"`
}

// Sink receives loop events. Publish is called from a single goroutine.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

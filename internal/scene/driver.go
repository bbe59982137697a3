package scene

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/arpoise/arclient/internal/animation"
	"github.com/arpoise/arclient/internal/geo"
	"github.com/arpoise/arclient/internal/queue"
	"github.com/arpoise/arclient/internal/state"
	"github.com/arpoise/arclient/pkg/core"
)

// Positioner supplies the filtered user position.
type Positioner interface {
	Filtered() core.Position
}

type inputKind int

const (
	focusGained inputKind = iota
	focusLost
	clicked
	recognized
)

type input struct {
	kind  inputKind
	id    int64
	index int
}

// Driver is the per-tick consumer of the object state. Tick must be called
// from one goroutine; Focus, Click and Recognize may be called from any.
type Driver struct {
	state  *state.ArObjectState
	mat    *Materializer
	pos    Positioner
	logger *slog.Logger

	inputs  *queue.Queue[input]
	start   atomic.Int64
	focused map[int64]bool
}

// NewDriver creates a driver for st.
func NewDriver(st *state.ArObjectState, mat *Materializer, pos Positioner, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		state:   st,
		mat:     mat,
		pos:     pos,
		logger:  logger,
		inputs:  queue.New[input](),
		focused: make(map[int64]bool),
	}
}

// Start sets the origin tick of all animations. Nothing is animated before.
func (d *Driver) Start(t time.Time) {
	d.start.Store(t.UnixNano())
}

// StartTick returns the origin tick, zero before Start.
func (d *Driver) StartTick() time.Time {
	n := d.start.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Focus reports that the object with id gained or lost focus.
func (d *Driver) Focus(id int64, on bool) {
	k := focusLost
	if on {
		k = focusGained
	}
	d.inputs.Push(input{kind: k, id: id})
}

// Click reports a click on the object with id.
func (d *Driver) Click(id int64) {
	d.inputs.Push(input{kind: clicked, id: id})
}

// Recognize reports that the tracking side found trigger image index.
func (d *Driver) Recognize(index int) {
	d.inputs.Push(input{kind: recognized, index: index})
}

// Tick applies pending merges and inputs, then advances every animation.
// A placement failure is returned; the remaining work of the tick is skipped.
func (d *Driver) Tick(now time.Time) error {
	origin := d.StartTick()
	if origin.IsZero() {
		return nil
	}
	if err := d.applyPending(); err != nil {
		return err
	}
	if err := d.applyInputs(origin, now); err != nil {
		return err
	}

	var stopped []*animation.Timeline
	for r := state.OnCreate; r <= state.OnFollow; r++ {
		for _, t := range d.state.Timelines(r) {
			t.Advance(origin, now)
			if t.JustStopped() && t.FollowedBy() != "" {
				stopped = append(stopped, t)
			}
		}
	}
	for _, t := range stopped {
		d.follow(t.FollowedBy(), origin, now)
	}

	for _, bb := range d.state.Billboards() {
		toUser := bb.Object.WorldTarget().Scale(-1)
		bb.Transform.Rotation = core.Vec3{Y: geo.Yaw(toUser)}
	}
	return nil
}

// applyPending places a merge at the position its cycle reconciled at,
// which differs from the device position while a fixed location is in use.
func (d *Driver) applyPending() error {
	p := d.state.Drain()
	user := d.pos.Filtered()
	if p.Origin != nil {
		user = *p.Origin
	}
	for _, o := range p.Deleted {
		d.logger.Debug("Object removed", "id", o.ID, "title", o.Title)
		for _, id := range o.IDs() {
			delete(d.focused, id)
		}
	}
	for _, o := range p.Moved {
		if o.IsRelative {
			continue
		}
		o.TargetPosition = AbsoluteTarget(user, o)
		if anchor, ok := o.Stack.Get("anchor"); ok {
			anchor.Position = o.TargetPosition
		}
	}
	if len(p.Pois) == 0 {
		return nil
	}
	b, err := d.mat.Materialize(p.Pois, user)
	if err != nil {
		return err
	}
	d.state.Commit(b)
	d.logger.Debug("Objects placed", "objects", len(b.Objects), "triggers", len(b.Triggers))
	return nil
}

func (d *Driver) applyInputs(origin, now time.Time) error {
	for _, in := range d.inputs.Drain() {
		switch in.kind {
		case focusGained:
			if d.focused[in.id] {
				continue
			}
			d.focused[in.id] = true
			d.activate(state.OnFocus, in.id, origin, now)
			d.activate(state.InFocus, in.id, origin, now)
		case focusLost:
			if !d.focused[in.id] {
				continue
			}
			delete(d.focused, in.id)
			for _, t := range d.state.Timelines(state.InFocus) {
				if t.PoiID == in.id && t.IsActive() {
					t.Stop(origin, now, false)
				}
			}
		case clicked:
			d.activate(state.OnClick, in.id, origin, now)
		case recognized:
			t, ok := d.state.MarkRecognized(in.index)
			if !ok {
				d.logger.Warn("Unknown trigger recognized", "index", in.index)
				continue
			}
			b, err := d.mat.MaterializeTrigger(t)
			if err != nil {
				return err
			}
			d.state.Commit(b)
		}
	}
	return nil
}

func (d *Driver) activate(r state.Registry, id int64, origin, now time.Time) {
	for _, t := range d.state.Timelines(r) {
		if t.PoiID == id {
			t.Activate(origin, now)
		}
	}
}

// follow starts the onFollow animations named name.
func (d *Driver) follow(name string, origin, now time.Time) {
	for _, t := range d.state.Timelines(state.OnFollow) {
		if t.Name() == name && !t.IsActive() {
			t.Activate(origin, now)
		}
	}
}

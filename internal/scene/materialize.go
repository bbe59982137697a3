// Package scene materializes Pois into transform stacks and drives their
// animations tick by tick.
package scene

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arpoise/arclient/internal/animation"
	"github.com/arpoise/arclient/internal/cache"
	"github.com/arpoise/arclient/internal/geo"
	"github.com/arpoise/arclient/internal/state"
	"github.com/arpoise/arclient/pkg/core"
)

// ErrPlacement classifies every materialization failure.
var ErrPlacement = errors.New("placement failed")

// PlacementError describes why a Poi could not be placed.
type PlacementError struct {
	PoiID  int64
	Reason string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("poi with id %d: %s", e.PoiID, e.Reason)
}

func (e *PlacementError) Is(target error) bool {
	return target == ErrPlacement
}

func placementErr(id int64, format string, args ...any) error {
	return &PlacementError{PoiID: id, Reason: fmt.Sprintf(format, args...)}
}

// Resources gives read access to cached bundles and trigger images.
type Resources interface {
	LookupBundle(url string) (*cache.Bundle, bool)
	LookupImage(url string) (*cache.Image, bool)
}

// InnerLayers resolves inner layers fetched by the sync loop.
type InnerLayers struct {
	mu     sync.RWMutex
	layers map[string][]*core.Layer
}

// NewInnerLayers creates an empty inner layer table.
func NewInnerLayers() *InnerLayers {
	return &InnerLayers{layers: make(map[string][]*core.Layer)}
}

// Get returns the pages of an inner layer.
func (l *InnerLayers) Get(name string) ([]*core.Layer, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pages, ok := l.layers[name]
	return pages, ok
}

// Set stores the pages of an inner layer.
func (l *InnerLayers) Set(name string, pages []*core.Layer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.layers[name] = pages
}

// Each calls fn for every stored inner layer.
func (l *InnerLayers) Each(fn func(name string, pages []*core.Layer)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for name, pages := range l.layers {
		fn(name, pages)
	}
}

// Len returns the number of stored inner layers.
func (l *InnerLayers) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.layers)
}

// Materializer turns Pois into placed objects with their transform stack
// and animation registrations.
type Materializer struct {
	res       Resources
	inner     *InnerLayers
	distance  func(a, b core.Position) float64
	bleaching atomic.Int64
}

// NewMaterializer creates a materializer reading from res. inner may be nil.
func NewMaterializer(res Resources, inner *InnerLayers) *Materializer {
	if inner == nil {
		inner = NewInnerLayers()
	}
	m := &Materializer{res: res, inner: inner, distance: geo.Distance}
	m.bleaching.Store(state.NoBleaching)
	return m
}

// SetBleaching sets the value applied to newly placed objects.
func (m *Materializer) SetBleaching(v int) {
	m.bleaching.Store(int64(v))
}

// Materialize places pois for a user at user. Trigger image Pois are
// registered as trigger objects instead. The first failure aborts.
func (m *Materializer) Materialize(pois []*core.Poi, user core.Position) (*state.Batch, error) {
	b := &state.Batch{}
	if err := m.createAll(b, nil, pois, user); err != nil {
		return nil, err
	}
	return b, nil
}

// MaterializeTrigger places the object of a recognized trigger at the
// local origin.
func (m *Materializer) MaterializeTrigger(t *state.TriggerObject) (*state.Batch, error) {
	b := &state.Batch{}
	poi := *t.Poi
	obj := &core.PoiObject{}
	if t.Poi.Object != nil {
		*obj = *t.Poi.Object
	}
	obj.TriggerImageURL = ""
	obj.RelativeLocation = "0,0,0"
	poi.Object = obj
	if err := m.create(b, nil, &poi, poi.ID, core.Position{}); err != nil {
		return nil, err
	}
	return b, nil
}

func (m *Materializer) createAll(b *state.Batch, parent *state.ArObject, pois []*core.Poi, user core.Position) error {
	for _, poi := range pois {
		if poi == nil || !poi.Placeable() {
			continue
		}
		id := poi.ID
		if parent != nil {
			id = state.NestedID(parent.ID, poi.ID)
		}

		url := poi.BaseURL()
		if url == "" {
			return placementErr(id, "empty bundle url")
		}
		bundle, ok := m.res.LookupBundle(url)
		if !ok {
			return placementErr(id, "missing bundle '%s'", url)
		}
		name := poi.TemplateName()
		if _, ok := bundle.Template(name); !ok {
			return placementErr(id, "unknown template '%s'", name)
		}

		if img := poi.TriggerImageURL(); img != "" {
			image, ok := m.res.LookupImage(img)
			if !ok {
				return placementErr(id, "missing trigger image '%s'", img)
			}
			b.Triggers = append(b.Triggers, &state.TriggerObject{
				ImageURL:     img,
				Image:        image,
				Width:        poi.Object.TriggerImageWidth,
				Poi:          poi,
				TemplateName: name,
			})
			continue
		}

		if err := m.create(b, parent, poi, id, user); err != nil {
			return err
		}
	}
	return nil
}

// create builds the stack anchor, scale, [billboard], [rotation], then one
// contribution per animation in registry order.
func (m *Materializer) create(b *state.Batch, parent *state.ArObject, poi *core.Poi, id int64, user core.Position) error {
	tr := poi.Transform
	if tr == nil || tr.Scale == 0 {
		if tr == nil {
			return placementErr(id, "could not set scale null")
		}
		return placementErr(id, "could not set scale %g", tr.Scale)
	}

	o := &state.ArObject{
		ID:           id,
		Title:        poi.Title,
		TemplateName: poi.TemplateName(),
		BaseURL:      poi.BaseURL(),
		Latitude:     poi.Latitude(),
		Longitude:    poi.Longitude(),
		Bleaching:    state.NoBleaching,
		Poi:          poi,
		Parent:       parent,
		Stack:        &animation.Stack{},
	}

	anchor := o.Stack.Push("anchor")
	o.Stack.Push("scale").Scale = core.Vec3{X: tr.Scale, Y: tr.Scale, Z: tr.Scale}

	var batch state.Batch
	if tr.Rel {
		batch.Billboards = append(batch.Billboards, state.Billboard{Object: o, Transform: o.Stack.Push("billboard")})
	}
	if tr.Angle != 0 {
		o.Stack.Push("rotation").Rotation = core.Vec3{Y: tr.Angle}
	}
	if a := poi.Animations; a != nil {
		for r, list := range [...][]*core.PoiAnimation{a.OnCreate, a.OnFocus, a.InFocus, a.OnClick, a.OnFollow} {
			reg := state.Registry(r)
			for _, d := range list {
				if d == nil {
					continue
				}
				spec := animation.SpecFrom(d)
				target := o.Stack.Push(reg.String() + ":" + spec.Name)
				batch.AddTimeline(reg, o, animation.NewTimeline(id, spec, target, reg == state.OnCreate))
			}
		}
	}

	if parent != nil || poi.RelativeLocation() != "" {
		off := geo.ParseRelativeLocation(poi.RelativeLocation())
		o.IsRelative = true
		o.RelativeAltitude = poi.RelativeAlt + off.Y
		o.TargetPosition = core.Vec3{X: off.X, Y: o.RelativeAltitude, Z: off.Z}
	} else {
		limit := float64(core.DefaultVisibilityRange)
		if poi.Layer != nil {
			limit = poi.Layer.VisibilityRange
		}
		if m.distance(poi.Position(), user) > limit {
			return nil
		}
		o.RelativeAltitude = poi.RelativeAlt
		o.TargetPosition = AbsoluteTarget(user, o)
	}
	anchor.Position = o.TargetPosition

	if v := int(m.bleaching.Load()); v >= 0 {
		o.Bleaching = v
	}

	b.Billboards = append(b.Billboards, batch.Billboards...)
	for r := range batch.Timelines {
		for _, t := range batch.Timelines[r] {
			b.AddTimeline(state.Registry(r), o, t)
		}
	}

	if parent != nil {
		parent.Children = append(parent.Children, o)
		return nil
	}
	b.Objects = append(b.Objects, o)

	if name := poi.InnerLayerName(); name != "" {
		if pages, ok := m.inner.Get(name); ok {
			for _, l := range pages {
				if err := m.createAll(b, o, l.Hotspots, user); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// AbsoluteTarget places a geo-anchored object relative to the user.
func AbsoluteTarget(user core.Position, o *state.ArObject) core.Vec3 {
	v := geo.LocalOffset(user, o.Position())
	v.Y = o.RelativeAltitude
	return v
}

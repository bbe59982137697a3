// Package reconcile turns freshly fetched layers into a diff against the
// placed objects.
package reconcile

import (
	"strings"

	"github.com/arpoise/arclient/internal/geo"
	"github.com/arpoise/arclient/internal/state"
	"github.com/arpoise/arclient/pkg/core"
)

// DistanceFunc returns the distance in meters between two positions.
type DistanceFunc func(a, b core.Position) float64

// Settings are the layer-wide values folded over all layers of a cycle.
type Settings struct {
	ApplyKalmanFilter  bool
	Bleaching          int
	AreaSize           int
	AreaWidth          int
	RefreshInterval    float64
	ShowInfo           bool
	InformationMessage string
	MenuEnabled        bool
	HeaderTitle        string
	NoPoisMessage      string
}

// Diff is the result of one reconciliation.
type Diff struct {
	state.Changes
	Settings Settings
	// BleachingChanged is set when the clamped bleaching value changed to a
	// non-negative value; every update then carries it.
	BleachingChanged bool
}

// Engine reconciles layers against placed objects. It remembers the
// bleaching value between cycles and is owned by the sync loop.
type Engine struct {
	distance  DistanceFunc
	bleaching int
}

// Option configures an Engine.
type Option func(*Engine)

// WithDistance replaces the geodesic distance function.
func WithDistance(f DistanceFunc) Option {
	return func(e *Engine) { e.distance = f }
}

// New creates an engine with bleaching disabled.
func New(opts ...Option) *Engine {
	e := &Engine{distance: geo.Distance, bleaching: state.NoBleaching}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Bleaching returns the current clamped bleaching value, -1 when disabled.
func (e *Engine) Bleaching() int {
	return e.bleaching
}

// Fold merges the settings of all layers.
func Fold(layers []*core.Layer) Settings {
	s := Settings{
		ApplyKalmanFilter: true,
		Bleaching:         -1,
		AreaSize:          -1,
		AreaWidth:         -1,
		MenuEnabled:       true,
	}
	for _, l := range layers {
		s.ApplyKalmanFilter = s.ApplyKalmanFilter && bool(l.ApplyKalmanFilter)
		s.MenuEnabled = s.MenuEnabled && bool(l.ShowMenuButton)
		s.Bleaching = max(s.Bleaching, l.BleachingValue)
		s.AreaSize = max(s.AreaSize, l.AreaSize)
		s.AreaWidth = max(s.AreaWidth, l.AreaWidth)
		if s.RefreshInterval < 1 && l.RefreshInterval >= 1 {
			s.RefreshInterval = l.RefreshInterval
		}
		for _, a := range l.Actions {
			s.ShowInfo = s.ShowInfo || bool(a.ShowActivity)
			if s.InformationMessage == "" && strings.TrimSpace(a.ActivityMessage) != "" {
				s.InformationMessage = a.ActivityMessage
			}
		}
		if s.HeaderTitle == "" && strings.TrimSpace(l.LayerTitle) != "" {
			s.HeaderTitle = l.LayerTitle
		}
		if s.NoPoisMessage == "" && strings.TrimSpace(l.NoPoisMessage) != "" {
			s.NoPoisMessage = l.NoPoisMessage
		}
	}
	return s
}

// Visible flattens the Pois of all layers, tags each with its layer and
// keeps the placeable ones within the layer's visibility range of pos.
func (e *Engine) Visible(layers []*core.Layer, pos core.Position) []*core.Poi {
	var pois []*core.Poi
	for _, l := range layers {
		for _, p := range l.Hotspots {
			if p == nil {
				continue
			}
			p.Layer = l
			if !p.Placeable() {
				continue
			}
			if e.distance(p.Position(), pos) <= l.VisibilityRange {
				pois = append(pois, p)
			}
		}
	}
	return pois
}

// Reconcile diffs the placed objects against the fetched layers.
// Existing objects are not modified; position and bleaching changes are
// reported as updates.
func (e *Engine) Reconcile(existing []*state.ArObject, layers []*core.Layer, pos core.Position) Diff {
	d := Diff{Settings: Fold(layers)}
	d.BleachingChanged = e.foldBleaching(d.Settings.Bleaching)
	d.Settings.Bleaching = e.bleaching

	pois := e.Visible(layers, pos)

	for _, o := range existing {
		poi := survivor(o, pois)
		if poi == nil {
			d.Delete = append(d.Delete, o)
			continue
		}
		u := state.Update{Object: o, Lat: poi.Latitude(), Lon: poi.Longitude(), Bleaching: -1}
		if d.BleachingChanged {
			u.Bleaching = e.bleaching
		}
		d.Update = append(d.Update, u)
	}

	for _, p := range pois {
		if !placed(p, existing) {
			d.Create = append(d.Create, p)
		}
	}
	return d
}

// foldBleaching stores the clamped value and reports a change to an
// enabled value.
func (e *Engine) foldBleaching(v int) bool {
	if v < 0 {
		e.bleaching = state.NoBleaching
		return false
	}
	v = min(v, 100)
	if v == e.bleaching {
		return false
	}
	e.bleaching = v
	return true
}

// survivor finds the Poi an existing object keeps living for. An empty Poi
// bundle URL matches any bundle.
func survivor(o *state.ArObject, pois []*core.Poi) *core.Poi {
	for _, p := range pois {
		if p.ID != o.ID || p.TemplateName() != o.TemplateName {
			continue
		}
		if u := p.BaseURL(); u == "" || u == o.BaseURL {
			return p
		}
	}
	return nil
}

func placed(p *core.Poi, existing []*state.ArObject) bool {
	name, url := p.TemplateName(), p.BaseURL()
	for _, o := range existing {
		if o.ID == p.ID && o.TemplateName == name && o.BaseURL == url {
			return true
		}
	}
	return false
}

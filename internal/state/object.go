// Package state holds the live object state shared by the sync loop and the
// per-tick scene driver.
package state

import (
	"github.com/arpoise/arclient/internal/animation"
	"github.com/arpoise/arclient/pkg/core"
)

// NoBleaching marks a disabled bleaching value.
const NoBleaching = -1

// ArObject is a placed instance of one Poi occurrence.
type ArObject struct {
	ID               int64
	Title            string
	TemplateName     string
	BaseURL          string
	Latitude         float64
	Longitude        float64
	RelativeAltitude float64
	IsRelative       bool
	TargetPosition   core.Vec3
	IsDirty          bool
	Bleaching        int

	Poi      *core.Poi
	Parent   *ArObject
	Children []*ArObject
	// Stack is the ordered transform composition of the object's node.
	Stack *animation.Stack
}

// NestedID derives the id of a Poi placed below parent.
func NestedID(parent, poi int64) int64 {
	return -1000000*parent - poi
}

// Position returns the geographic anchor.
func (o *ArObject) Position() core.Position {
	return core.Position{Lat: o.Latitude, Lon: o.Longitude}
}

// Walk visits the object and all its descendants, parents first.
func (o *ArObject) Walk(fn func(*ArObject)) {
	fn(o)
	for _, c := range o.Children {
		c.Walk(fn)
	}
}

// SetBleaching applies v to the object and its children.
func (o *ArObject) SetBleaching(v int) {
	o.Walk(func(a *ArObject) { a.Bleaching = v })
}

// WorldTarget sums the target positions up the parent chain.
func (o *ArObject) WorldTarget() core.Vec3 {
	v := o.TargetPosition
	for p := o.Parent; p != nil; p = p.Parent {
		v = v.Add(p.TargetPosition)
	}
	return v
}

// IDs returns the ids of the object and its descendants.
func (o *ArObject) IDs() []int64 {
	var ids []int64
	o.Walk(func(a *ArObject) { ids = append(ids, a.ID) })
	return ids
}

// Update moves a surviving object. A negative Bleaching leaves the
// object's bleaching untouched.
type Update struct {
	Object    *ArObject
	Lat       float64
	Lon       float64
	Bleaching int
}

// Changes is the part of a reconciliation result merged into the state.
type Changes struct {
	Create []*core.Poi
	Update []Update
	Delete []*ArObject
	// Origin is the position the cycle reconciled at. Nil means the
	// device position.
	Origin *core.Position
}

// Empty reports whether there is nothing to merge.
func (c Changes) Empty() bool {
	return len(c.Create) == 0 && len(c.Update) == 0 && len(c.Delete) == 0
}

// View is a copy of an object's placement fields, safe to hand to other
// goroutines.
type View struct {
	ID             int64
	Title          string
	TemplateName   string
	BaseURL        string
	Latitude       float64
	Longitude      float64
	IsRelative     bool
	TargetPosition core.Vec3
	Bleaching      int
	Children       []View
}

func (o *ArObject) view() View {
	v := View{
		ID:             o.ID,
		Title:          o.Title,
		TemplateName:   o.TemplateName,
		BaseURL:        o.BaseURL,
		Latitude:       o.Latitude,
		Longitude:      o.Longitude,
		IsRelative:     o.IsRelative,
		TargetPosition: o.TargetPosition,
		Bleaching:      o.Bleaching,
	}
	for _, c := range o.Children {
		v.Children = append(v.Children, c.view())
	}
	return v
}

package state

import (
	"slices"
	"sync"

	"github.com/arpoise/arclient/internal/animation"
	"github.com/arpoise/arclient/internal/cache"
	"github.com/arpoise/arclient/pkg/core"
)

// Registry selects one of the per-event animation lists.
type Registry int

const (
	OnCreate Registry = iota
	OnFocus
	InFocus
	OnClick
	OnFollow
	registryCount
)

var registryNames = [...]string{"onCreate", "onFocus", "inFocus", "onClick", "onFollow"}

func (r Registry) String() string {
	if r < 0 || r >= registryCount {
		return "unknown"
	}
	return registryNames[r]
}

// Billboard is a contribution turned towards the user every tick.
type Billboard struct {
	Object    *ArObject
	Transform *animation.Transform
}

// TriggerObject pairs a cached trigger image with the Poi it materializes
// once the tracking side recognizes it.
type TriggerObject struct {
	Index        int
	ImageURL     string
	Image        *cache.Image
	Width        float64
	Poi          *core.Poi
	TemplateName string
	Recognized   bool
}

// sameTrigger reports whether t registers the same Poi occurrence as o.
func (t *TriggerObject) sameTrigger(o *TriggerObject) bool {
	if t.ImageURL != o.ImageURL || t.TemplateName != o.TemplateName {
		return false
	}
	if t.Poi == nil || o.Poi == nil {
		return t.Poi == o.Poi
	}
	return t.Poi.ID == o.Poi.ID && t.Poi.BaseURL() == o.Poi.BaseURL()
}

// Batch collects newly materialized objects outside the state lock.
type Batch struct {
	Objects    []*ArObject
	Billboards []Billboard
	Timelines  [registryCount][]*animation.Timeline
	Triggers   []*TriggerObject

	owners map[*animation.Timeline]*ArObject
}

// AddTimeline registers t of object o in registry r.
func (b *Batch) AddTimeline(r Registry, o *ArObject, t *animation.Timeline) {
	b.Timelines[r] = append(b.Timelines[r], t)
	if b.owners == nil {
		b.owners = make(map[*animation.Timeline]*ArObject)
	}
	b.owners[t] = o
}

// Pending is what the tick driver takes over from a merge.
type Pending struct {
	Deleted []*ArObject
	Pois    []*core.Poi
	Moved   []*ArObject
	// Origin is the position of the merged cycle, nil for the device
	// position.
	Origin *core.Position
}

// Summary holds list sizes for status reporting.
type Summary struct {
	Objects    int `json:"objects"`
	ToDelete   int `json:"toDelete"`
	Pois       int `json:"pois"`
	Triggers   int `json:"triggers"`
	Animations int `json:"animations"`
	Dirty      bool `json:"dirty"`
}

// ArObjectState is the single live object snapshot. Every mutation happens
// under the exclusive lock; readers get copies.
type ArObjectState struct {
	mu sync.RWMutex

	objects    []*ArObject
	toDelete   []*ArObject
	pois       []*core.Poi
	billboards []Billboard
	timelines  [registryCount][]*animation.Timeline
	owners     map[*animation.Timeline]*ArObject
	triggers   map[int]*TriggerObject
	origin     *core.Position
	dirty      bool
}

// New creates an empty state.
func New() *ArObjectState {
	return &ArObjectState{
		owners:   make(map[*animation.Timeline]*ArObject),
		triggers: make(map[int]*TriggerObject),
	}
}

// Objects returns a copy of the placed objects.
func (s *ArObjectState) Objects() []*ArObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.objects)
}

// ToDelete returns a copy of the objects queued for removal.
func (s *ArObjectState) ToDelete() []*ArObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.toDelete)
}

// Pois returns a copy of the Pois waiting to be materialized.
func (s *ArObjectState) Pois() []*core.Poi {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.pois)
}

// IsDirty reports whether a merge is waiting for the tick driver.
func (s *ArObjectState) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Find returns the placed object or descendant with the given id.
func (s *ArObjectState) Find(id int64) (*ArObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *ArObject
	for _, o := range s.objects {
		o.Walk(func(a *ArObject) {
			if found == nil && a.ID == id {
				found = a
			}
		})
		if found != nil {
			return found, true
		}
	}
	return nil, false
}

// Timelines returns a copy of one animation registry.
func (s *ArObjectState) Timelines(r Registry) []*animation.Timeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.timelines[r])
}

// Billboards returns a copy of the billboard registry.
func (s *ArObjectState) Billboards() []Billboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.billboards)
}

// Trigger looks up a trigger object by index.
func (s *ArObjectState) Trigger(index int) (*TriggerObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.triggers[index]
	return t, ok
}

// TriggerCount returns the size of the trigger table.
func (s *ArObjectState) TriggerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.triggers)
}

// Triggers returns the trigger table ordered by index.
func (s *ArObjectState) Triggers() []*TriggerObject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*TriggerObject, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *TriggerObject) int { return a.Index - b.Index })
	return out
}

// MarkRecognized flags a trigger object as recognized. It reports false for
// unknown or already recognized indexes.
func (s *ArObjectState) MarkRecognized(index int) (*TriggerObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[index]
	if !ok || t.Recognized {
		return nil, false
	}
	t.Recognized = true
	return t, true
}

// Summary returns the list sizes.
func (s *ArObjectState) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.timelines {
		n += len(l)
	}
	return Summary{
		Objects:    len(s.objects),
		ToDelete:   len(s.toDelete),
		Pois:       len(s.pois),
		Triggers:   len(s.triggers),
		Animations: n,
		Dirty:      s.dirty,
	}
}

// Commit adds materialized objects and their registrations. Trigger
// objects get the next free index of the table; a trigger already in the
// table for the same Poi, template and image is kept as it is.
func (s *ArObjectState) Commit(b *Batch) {
	if b == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects = append(s.objects, b.Objects...)
	s.billboards = append(s.billboards, b.Billboards...)
	for r := range b.Timelines {
		s.timelines[r] = append(s.timelines[r], b.Timelines[r]...)
	}
	for t, o := range b.owners {
		s.owners[t] = o
	}
	for _, t := range b.Triggers {
		if s.hasTrigger(t) {
			continue
		}
		t.Index = len(s.triggers)
		s.triggers[t.Index] = t
	}
}

func (s *ArObjectState) hasTrigger(t *TriggerObject) bool {
	for _, e := range s.triggers {
		if e.sameTrigger(t) {
			return true
		}
	}
	return false
}

// Merge applies a later cycle's changes. Updates move survivors, deletes
// are queued for the tick driver and new Pois wait for materialization.
// Deletes for objects that are not placed, or already queued, are ignored.
func (s *ArObjectState) Merge(c Changes) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range c.Update {
		o := u.Object
		if o.Latitude != u.Lat {
			o.Latitude = u.Lat
			o.IsDirty = true
		}
		if o.Longitude != u.Lon {
			o.Longitude = u.Lon
			o.IsDirty = true
		}
		if u.Bleaching >= 0 {
			o.SetBleaching(u.Bleaching)
		}
	}
	for _, o := range c.Delete {
		if slices.Contains(s.objects, o) && !slices.Contains(s.toDelete, o) {
			s.toDelete = append(s.toDelete, o)
		}
	}
	s.pois = append(s.pois, c.Create...)
	if c.Origin != nil {
		origin := *c.Origin
		s.origin = &origin
	}
	s.dirty = true
}

// Drain hands a pending merge over to the tick driver. Queued deletes leave
// the placed list together with the registrations they own. New Pois and
// moved objects are returned for placement. Nothing is returned while clean.
func (s *ArObjectState) Drain() Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return Pending{}
	}
	p := Pending{Deleted: s.toDelete, Pois: s.pois, Origin: s.origin}

	gone := make(map[*ArObject]bool)
	for _, o := range s.toDelete {
		o.Walk(func(a *ArObject) { gone[a] = true })
	}
	s.objects = slices.DeleteFunc(s.objects, func(o *ArObject) bool {
		return gone[o]
	})
	s.billboards = slices.DeleteFunc(s.billboards, func(b Billboard) bool {
		return gone[b.Object]
	})
	for r := range s.timelines {
		s.timelines[r] = slices.DeleteFunc(s.timelines[r], func(t *animation.Timeline) bool {
			if !gone[s.owners[t]] {
				return false
			}
			delete(s.owners, t)
			return true
		})
	}
	for _, o := range s.objects {
		if o.IsDirty {
			o.IsDirty = false
			p.Moved = append(p.Moved, o)
		}
	}

	s.toDelete = nil
	s.pois = nil
	s.origin = nil
	s.dirty = false
	return p
}

// Views copies the placed objects under the read lock.
func (s *ArObjectState) Views() []View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]View, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o.view())
	}
	return out
}

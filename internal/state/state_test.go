package state

import (
	"sync"
	"testing"

	"github.com/arpoise/arclient/internal/animation"
	"github.com/arpoise/arclient/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func placed(id int64) *ArObject {
	return &ArObject{ID: id, TemplateName: "Cube", BaseURL: "www.example.com/ab", Bleaching: NoBleaching}
}

func committed(s *ArObjectState, objs ...*ArObject) {
	b := &Batch{Objects: objs}
	for _, o := range objs {
		b.AddTimeline(OnCreate, o, animation.NewTimeline(o.ID, animation.Spec{}, nil, true))
	}
	s.Commit(b)
}

func TestNestedID(t *testing.T) {
	assert.Equal(t, int64(-2000003), NestedID(2, 3))
}

func TestMerge_UpdatesMarkDirtyOnlyOnChange(t *testing.T) {
	s := New()
	a, b := placed(1), placed(2)
	a.Latitude, a.Longitude = 48, 11
	b.Latitude, b.Longitude = 48, 11
	committed(s, a, b)

	s.Merge(Changes{Update: []Update{
		{Object: a, Lat: 48, Lon: 11, Bleaching: -1},
		{Object: b, Lat: 48.001, Lon: 11, Bleaching: 40},
	}})

	assert.False(t, a.IsDirty)
	assert.True(t, b.IsDirty)
	assert.Equal(t, 48.001, b.Latitude)
	assert.Equal(t, NoBleaching, a.Bleaching)
	assert.Equal(t, 40, b.Bleaching)
	assert.True(t, s.IsDirty())
}

func TestMerge_IgnoresUnknownAndDuplicateDeletes(t *testing.T) {
	s := New()
	a := placed(1)
	committed(s, a)

	s.Merge(Changes{Delete: []*ArObject{a, placed(99)}})
	s.Merge(Changes{Delete: []*ArObject{a}})

	assert.Equal(t, []*ArObject{a}, s.ToDelete())
}

func TestDrain_RemovesDeletedObjectsAndRegistrations(t *testing.T) {
	s := New()
	a, b := placed(1), placed(2)
	child := placed(NestedID(1, 5))
	a.Children = []*ArObject{child}
	committed(s, a, b)
	extra := &Batch{Billboards: []Billboard{{Object: child, Transform: &animation.Transform{}}}}
	extra.AddTimeline(OnClick, child, animation.NewTimeline(child.ID, animation.Spec{}, nil, false))
	s.Commit(extra)
	b.IsDirty = true

	poi := &core.Poi{ID: 3}
	s.Merge(Changes{Create: []*core.Poi{poi}, Delete: []*ArObject{a}})
	p := s.Drain()

	assert.Equal(t, []*ArObject{a}, p.Deleted)
	assert.Equal(t, []*core.Poi{poi}, p.Pois)
	assert.Equal(t, []*ArObject{b}, p.Moved)
	assert.False(t, b.IsDirty)

	assert.Equal(t, []*ArObject{b}, s.Objects())
	assert.Empty(t, s.ToDelete())
	assert.Empty(t, s.Pois())
	assert.Empty(t, s.Billboards())
	assert.Empty(t, s.Timelines(OnClick))
	require.Len(t, s.Timelines(OnCreate), 1)
	assert.Equal(t, int64(2), s.Timelines(OnCreate)[0].PoiID)
	assert.False(t, s.IsDirty())
}

func TestDrain_KeepsRegistrationsOfObjectsSharingAnID(t *testing.T) {
	s := New()
	a := placed(1)
	b := placed(1)
	b.TemplateName = "Sphere"
	committed(s, a, b)
	extra := &Batch{Billboards: []Billboard{
		{Object: a, Transform: &animation.Transform{}},
		{Object: b, Transform: &animation.Transform{}},
	}}
	s.Commit(extra)

	s.Merge(Changes{Delete: []*ArObject{a}})
	s.Drain()

	assert.Equal(t, []*ArObject{b}, s.Objects())
	require.Len(t, s.Timelines(OnCreate), 1)
	require.Len(t, s.Billboards(), 1)
	assert.Same(t, b, s.Billboards()[0].Object)

	s.Merge(Changes{Delete: []*ArObject{b}})
	s.Drain()
	assert.Empty(t, s.Timelines(OnCreate))
	assert.Empty(t, s.Billboards())
}

func TestDrain_ReturnsMergeOrigin(t *testing.T) {
	s := New()
	paris := core.Position{Lat: 48.8566, Lon: 2.3522}
	s.Merge(Changes{Origin: &paris})
	paris.Lat = 0

	p := s.Drain()
	require.NotNil(t, p.Origin)
	assert.Equal(t, core.Position{Lat: 48.8566, Lon: 2.3522}, *p.Origin)

	s.Merge(Changes{})
	assert.Nil(t, s.Drain().Origin, "the origin belongs to one merge")
}

func TestDrain_CleanStateReturnsNothing(t *testing.T) {
	s := New()
	a := placed(1)
	a.IsDirty = true
	committed(s, a)

	p := s.Drain()
	assert.Empty(t, p.Moved)
	assert.True(t, a.IsDirty, "moves are only picked up after a merge")
}

func TestObjectNeverPlacedAndDeletedAfterDrain(t *testing.T) {
	s := New()
	objs := []*ArObject{placed(1), placed(2), placed(3)}
	committed(s, objs...)

	s.Merge(Changes{Delete: objs[:2]})
	s.Drain()

	for _, o := range s.Objects() {
		assert.NotContains(t, s.ToDelete(), o)
	}
	assert.Len(t, s.Objects(), 1)
}

func TestCommit_AssignsTriggerIndexes(t *testing.T) {
	s := New()
	s.Commit(&Batch{Triggers: []*TriggerObject{{ImageURL: "a"}, {ImageURL: "b"}}})
	s.Commit(&Batch{Triggers: []*TriggerObject{{ImageURL: "c"}}})

	trig := s.Triggers()
	require.Len(t, trig, 3)
	for i, tr := range trig {
		assert.Equal(t, i, tr.Index)
	}
	c, ok := s.Trigger(2)
	require.True(t, ok)
	assert.Equal(t, "c", c.ImageURL)

	_, ok = s.MarkRecognized(2)
	assert.True(t, ok)
	_, ok = s.MarkRecognized(2)
	assert.False(t, ok, "recognition is reported once")
	_, ok = s.MarkRecognized(7)
	assert.False(t, ok)
}

func TestCommit_SameTriggerRegisteredOnce(t *testing.T) {
	s := New()
	trigger := func(id int64, img string) *TriggerObject {
		poi := &core.Poi{ID: id, Object: &core.PoiObject{BaseURL: "www.example.com/ab", Full: "Cube", TriggerImageURL: img}}
		return &TriggerObject{ImageURL: img, Poi: poi, TemplateName: "Cube"}
	}

	for i := 0; i < 4; i++ {
		s.Commit(&Batch{Triggers: []*TriggerObject{trigger(3, "www.example.com/t.png")}})
	}
	assert.Equal(t, 1, s.TriggerCount())

	_, ok := s.MarkRecognized(0)
	require.True(t, ok)
	s.Commit(&Batch{Triggers: []*TriggerObject{trigger(3, "www.example.com/t.png")}})
	first, _ := s.Trigger(0)
	assert.True(t, first.Recognized, "a registered trigger keeps its recognition")

	s.Commit(&Batch{Triggers: []*TriggerObject{trigger(4, "www.example.com/t.png"), trigger(3, "www.example.com/u.png")}})
	assert.Equal(t, 3, s.TriggerCount())
}

func TestFind_SearchesChildren(t *testing.T) {
	s := New()
	a := placed(1)
	child := placed(NestedID(1, 2))
	a.Children = []*ArObject{child}
	committed(s, a)

	got, ok := s.Find(child.ID)
	require.True(t, ok)
	assert.Same(t, child, got)

	_, ok = s.Find(42)
	assert.False(t, ok)
}

func TestSummary(t *testing.T) {
	s := New()
	committed(s, placed(1), placed(2))
	s.Merge(Changes{Create: []*core.Poi{{ID: 3}}})

	sum := s.Summary()
	assert.Equal(t, Summary{Objects: 2, Pois: 1, Animations: 2, Dirty: true}, sum)
}

func TestConcurrentMergeAndRead(t *testing.T) {
	s := New()
	committed(s, placed(1))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Merge(Changes{Create: []*core.Poi{{ID: int64(i)}}})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = s.Objects()
			_ = s.Drain()
		}
	}()
	wg.Wait()

	s.Drain()
	assert.Empty(t, s.Pois())
}

func TestViews_CopiesTree(t *testing.T) {
	s := New()
	parent := placed(1)
	parent.Title = "parent"
	parent.TargetPosition = core.Vec3{Y: 2}
	child := placed(NestedID(1, 5))
	child.Parent = parent
	child.IsRelative = true
	parent.Children = []*ArObject{child}
	committed(s, parent)

	views := s.Views()
	require.Len(t, views, 1)
	assert.Equal(t, "parent", views[0].Title)
	assert.Equal(t, core.Vec3{Y: 2}, views[0].TargetPosition)
	require.Len(t, views[0].Children, 1)
	assert.Equal(t, int64(-1000005), views[0].Children[0].ID)
	assert.True(t, views[0].Children[0].IsRelative)

	parent.Title = "changed"
	assert.Equal(t, "parent", views[0].Title)
}

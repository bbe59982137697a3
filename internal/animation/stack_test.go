package animation

import (
	"testing"

	"github.com/arpoise/arclient/pkg/core"
	"github.com/stretchr/testify/assert"
)

func assertVec(t *testing.T, want, got core.Vec3) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-9, "y")
	assert.InDelta(t, want.Z, got.Z, 1e-9, "z")
}

func TestStack_EmptyIsIdentity(t *testing.T) {
	var s Stack
	p := core.Vec3{X: 1, Y: 2, Z: 3}
	assertVec(t, p, s.Apply(p))
}

func TestStack_ComposesOutermostFirst(t *testing.T) {
	var s Stack
	anchor := s.Push("anchor")
	anchor.Position = core.Vec3{X: 10}
	scale := s.Push("scale")
	scale.Scale = core.Vec3{X: 2, Y: 2, Z: 2}
	rot := s.Push("rotation")
	rot.Rotation = core.Vec3{Y: 90}

	assert.Equal(t, []string{"anchor", "scale", "rotation"}, s.Names())
	assert.Equal(t, 3, s.Len())

	// (0,0,1) rotated 90 deg about Y -> (1,0,0), scaled -> (2,0,0), moved -> (12,0,0)
	assertVec(t, core.Vec3{X: 12}, s.Apply(core.Vec3{Z: 1}))
	assertVec(t, core.Vec3{X: 10}, s.Origin())
}

func TestStack_GetReturnsLiveContribution(t *testing.T) {
	var s Stack
	s.Push("anchor")
	tr, ok := s.Get("anchor")
	assert.True(t, ok)
	tr.Position = core.Vec3{Y: 5}
	assertVec(t, core.Vec3{Y: 5}, s.Origin())

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStack_TimelineDrivesContribution(t *testing.T) {
	var s Stack
	s.Push("anchor")
	target := s.Push("onCreate")
	tl := NewTimeline(1, translateSpec(1e9, false), target, true)

	tl.Advance(t0, t0)
	tl.Advance(t0, t0.Add(500_000_000))

	assertVec(t, core.Vec3{X: 5}, s.Origin())
}

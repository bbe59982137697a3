package animation

import (
	"testing"
	"time"

	"github.com/arpoise/arclient/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func translateSpec(length time.Duration, repeat bool) Spec {
	return Spec{
		Name:   "move",
		Kind:   Translate,
		Length: length,
		Repeat: repeat,
		From:   0,
		To:     10,
		Axis:   core.Vec3{X: 1},
	}
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, Rotate, ParseKind("Rotate"))
	assert.Equal(t, Scale, ParseKind("scale"))
	assert.Equal(t, Translate, ParseKind("transform"))
	assert.Equal(t, Translate, ParseKind(""))
}

func TestParseInterpolation(t *testing.T) {
	tests := []struct {
		in     string
		interp Interp
		shape  Shape
	}{
		{"", Linear, ShapeNone},
		{"linear", Linear, ShapeNone},
		{"cyclic", Cyclic, ShapeNone},
		{"sine", Linear, Sine},
		{"halfsine", Linear, HalfSine},
		{"cyclic halfsine", Cyclic, HalfSine},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			interp, shape := ParseInterpolation(tt.in)
			assert.Equal(t, tt.interp, interp)
			assert.Equal(t, tt.shape, shape)
		})
	}
}

func TestSpecFrom(t *testing.T) {
	s := SpecFrom(&core.PoiAnimation{
		Name: "spin", Type: "rotate", Length: 1.5, Delay: 0.25,
		Interpolation: "cyclic sine", Persist: true, Repeat: true,
		From: 0, To: 360, Axis: &core.Vec3{Y: 1}, FollowedBy: "next",
	})
	assert.Equal(t, Rotate, s.Kind)
	assert.Equal(t, Cyclic, s.Interp)
	assert.Equal(t, Sine, s.Shape)
	assert.Equal(t, 1500*time.Millisecond, s.Length)
	assert.Equal(t, 250*time.Millisecond, s.Delay)
	assert.True(t, s.Persist)
	assert.True(t, s.Repeat)
	assert.Equal(t, core.Vec3{Y: 1}, s.Axis)
	assert.Equal(t, "next", s.FollowedBy)

	assert.Equal(t, Spec{}, SpecFrom(nil))
}

func TestFactor_Shapes(t *testing.T) {
	lin := Spec{From: 0, To: 10}
	assert.InDelta(t, 2.5, lin.Factor(.25), 1e-9)

	half := Spec{From: 0, To: 10, Shape: HalfSine}
	assert.InDelta(t, 10, half.Factor(.5), 1e-9)
	assert.InDelta(t, 0, half.Factor(0), 1e-9)

	sine := Spec{From: 0, To: 10, Shape: Sine}
	assert.InDelta(t, 10, sine.Factor(.5), 1e-9)
	assert.InDelta(t, 5, sine.Factor(.25), 1e-9)
}

func TestFactor_CyclicSymmetry(t *testing.T) {
	s := Spec{From: 2, To: 8, Interp: Cyclic}
	for _, p := range []float64{0, .1, .2, .3, .45} {
		assert.InDelta(t, s.From+s.To, s.Factor(p)+s.Factor(p+.5), 1e-9, "p=%v", p)
	}
}

func TestAdvance_FirstEvaluationStartsClock(t *testing.T) {
	target := Identity()
	tl := NewTimeline(1, translateSpec(time.Second, false), &target, true)

	tl.Advance(t0, t0.Add(300*time.Millisecond))

	assert.True(t, tl.JustActivated())
	assert.Equal(t, 0.0, tl.Factor())

	tl.Advance(t0, t0.Add(800*time.Millisecond))
	assert.False(t, tl.JustActivated())
	assert.InDelta(t, 5, tl.Factor(), 1e-9)
	assert.InDelta(t, 5, target.Position.X, 1e-9)
}

func TestAdvance_NoOpCases(t *testing.T) {
	tests := []struct {
		name   string
		spec   Spec
		origin time.Time
		active bool
	}{
		{"zero origin", translateSpec(time.Second, false), time.Time{}, true},
		{"inactive", translateSpec(time.Second, false), t0, false},
		{"zero length", translateSpec(0, false), t0, true},
		{"negative length", translateSpec(-time.Second, false), t0, true},
		{"negative delay", func() Spec { s := translateSpec(time.Second, false); s.Delay = -1; return s }(), t0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := Identity()
			tl := NewTimeline(1, tt.spec, &target, tt.active)
			tl.Advance(tt.origin, t0.Add(time.Second))
			assert.False(t, tl.JustActivated())
			assert.Equal(t, Identity(), target)
		})
	}
}

func TestAdvance_WaitsForDelay(t *testing.T) {
	spec := translateSpec(time.Second, false)
	spec.Delay = 2 * time.Second
	tl := NewTimeline(1, spec, &Transform{}, true)

	tl.Advance(t0, t0.Add(time.Second))
	assert.False(t, tl.JustActivated())

	tl.Advance(t0, t0.Add(2*time.Second))
	assert.True(t, tl.JustActivated())
}

func TestAdvance_NonRepeatingStops(t *testing.T) {
	target := Identity()
	tl := NewTimeline(1, translateSpec(time.Second, false), &target, true)

	tl.Advance(t0, t0)
	tl.Advance(t0, t0.Add(1500*time.Millisecond))

	assert.False(t, tl.IsActive())
	assert.True(t, tl.JustStopped())
	assert.InDelta(t, 10, tl.Factor(), 1e-9, "final pose evaluated")
	assert.Equal(t, core.Vec3{}, target.Position, "reset without persist")
}

func TestAdvance_PersistKeepsFinalPose(t *testing.T) {
	spec := translateSpec(time.Second, false)
	spec.Persist = true
	target := Identity()
	tl := NewTimeline(1, spec, &target, true)

	tl.Advance(t0, t0)
	tl.Advance(t0, t0.Add(1100*time.Millisecond))

	assert.True(t, tl.JustStopped())
	assert.InDelta(t, 10, target.Position.X, 1e-9)
}

func TestAdvance_RepeatRaisesJustActivatedEveryPeriod(t *testing.T) {
	tl := NewTimeline(1, translateSpec(time.Second, true), &Transform{}, true)
	tl.Advance(t0, t0)
	require.True(t, tl.JustActivated())

	for k := 1; k <= 5; k++ {
		activated := false
		for step := 0; step <= 10; step++ {
			now := t0.Add(time.Duration(k-1)*time.Second + time.Duration(step)*100*time.Millisecond + 50*time.Millisecond)
			tl.Advance(t0, now)
			activated = activated || tl.JustActivated()
		}
		assert.True(t, activated, "period %d", k)
		assert.True(t, tl.IsActive())
	}
}

func TestAdvance_CatchUpRule(t *testing.T) {
	tl := NewTimeline(1, translateSpec(time.Second, true), &Transform{}, true)
	tl.Advance(t0, t0)

	// Less than two periods late: clock advances by one period.
	tl.Advance(t0, t0.Add(1500*time.Millisecond))
	assert.True(t, tl.JustActivated())
	assert.InDelta(t, 5, tl.Factor(), 1e-9)

	// More than two periods late: clock restarts at now.
	tl.Advance(t0, t0.Add(10*time.Second))
	assert.True(t, tl.JustActivated())
	assert.Equal(t, 0.0, tl.Factor())
}

func TestStop_ResetsChannels(t *testing.T) {
	rot := Spec{Kind: Rotate, Length: time.Second, From: 0, To: 90, Axis: core.Vec3{Y: 1}}
	scl := Spec{Kind: Scale, Length: time.Second, From: 1, To: 3, Axis: core.Vec3{X: 1}}

	target := Identity()
	r := NewTimeline(1, rot, &target, true)
	s := NewTimeline(1, scl, &target, true)

	r.Activate(t0, t0)
	r.Advance(t0, t0.Add(500*time.Millisecond))
	s.Activate(t0, t0)
	s.Advance(t0, t0.Add(500*time.Millisecond))

	assert.InDelta(t, 45, target.Rotation.Y, 1e-9)
	assert.InDelta(t, 2, target.Scale.X, 1e-9)
	assert.Equal(t, 1.0, target.Scale.Y, "zero axis weight leaves scale at 1")

	r.Stop(t0, t0.Add(600*time.Millisecond), false)
	s.Stop(t0, t0.Add(600*time.Millisecond), true)

	assert.Equal(t, core.Vec3{}, target.Rotation)
	assert.Equal(t, core.Vec3{X: 1, Y: 1, Z: 1}, target.Scale)
	assert.True(t, r.JustStopped())
	assert.False(t, s.IsActive())
}

func TestActivate_RestartsClock(t *testing.T) {
	tl := NewTimeline(1, translateSpec(time.Second, false), &Transform{}, false)

	tl.Activate(t0, t0.Add(5*time.Second))
	assert.True(t, tl.IsActive())
	assert.True(t, tl.JustActivated())

	tl.Advance(t0, t0.Add(5500*time.Millisecond))
	assert.InDelta(t, 5, tl.Factor(), 1e-9)
}

package animation

import (
	"time"

	"github.com/arpoise/arclient/pkg/core"
)

// Timeline is the run state of one animation bound to one transform contribution.
// It is not safe for concurrent use; the tick driver owns it.
type Timeline struct {
	PoiID int64

	spec   Spec
	target *Transform

	active        bool
	justActivated bool
	justStopped   bool
	clockStart    time.Time
	factor        float64
}

// NewTimeline binds spec to target. Inactive timelines wait for Activate.
func NewTimeline(poiID int64, spec Spec, target *Transform, active bool) *Timeline {
	return &Timeline{
		PoiID:  poiID,
		spec:   spec,
		target: target,
		active: active,
	}
}

func (t *Timeline) Name() string        { return t.spec.Name }
func (t *Timeline) FollowedBy() string  { return t.spec.FollowedBy }
func (t *Timeline) Spec() Spec          { return t.spec }
func (t *Timeline) Target() *Transform  { return t.target }
func (t *Timeline) IsActive() bool      { return t.active }
func (t *Timeline) JustActivated() bool { return t.justActivated }
func (t *Timeline) JustStopped() bool   { return t.justStopped }

// Factor is the last interpolated value applied to the target.
func (t *Timeline) Factor() float64 { return t.factor }

// Activate restarts the animation clock and evaluates immediately.
func (t *Timeline) Activate(origin, now time.Time) {
	t.active = true
	t.clockStart = time.Time{}
	t.Advance(origin, now)
}

// Advance evaluates the curve for now and applies it to the target.
// origin is the instant the owning object became eligible; a zero origin
// means the scene has not started and nothing happens.
func (t *Timeline) Advance(origin, now time.Time) {
	t.justActivated = false
	t.justStopped = false

	if origin.IsZero() || !t.active || t.spec.Length <= 0 || t.spec.Delay < 0 {
		return
	}
	if t.spec.Delay > 0 && origin.Add(t.spec.Delay).After(now) {
		return
	}

	var p float64
	if t.clockStart.IsZero() {
		t.clockStart = now
		t.justActivated = true
	} else {
		end := t.clockStart.Add(t.spec.Length)
		if end.Before(now) {
			if !t.spec.Repeat {
				t.apply(t.spec.Factor(1))
				t.Stop(origin, now, false)
				return
			}
			// Catch up at most one period; after a long stall restart from now.
			if end.Add(t.spec.Length).Before(now) {
				t.clockStart = now
			} else {
				t.clockStart = end
			}
			t.justActivated = true
		}
		p = float64(now.Sub(t.clockStart)) / float64(t.spec.Length)
	}

	t.apply(t.spec.Factor(p))
}

// Stop deactivates the animation. With animateFirst it evaluates once more
// before stopping. Unless the animation persists, its channel is reset.
func (t *Timeline) Stop(origin, now time.Time, animateFirst bool) {
	if animateFirst {
		t.Advance(origin, now)
	}
	t.justStopped = true
	t.active = false

	if !t.spec.Persist && t.target != nil {
		t.target.reset(t.spec.Kind)
	}
}

func (t *Timeline) apply(f float64) {
	t.factor = f
	if t.target == nil {
		return
	}
	a := t.spec.Axis
	switch t.spec.Kind {
	case Rotate:
		t.target.Rotation = a.Scale(f)
	case Scale:
		t.target.Scale = core.Vec3{X: scaleAxis(a.X, f), Y: scaleAxis(a.Y, f), Z: scaleAxis(a.Z, f)}
	default:
		t.target.Position = a.Scale(f)
	}
}

// A zero weight leaves the axis unscaled.
func scaleAxis(w, f float64) float64 {
	if w == 0 {
		return 1
	}
	return w * f
}

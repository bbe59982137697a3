// Package animation drives per-object transform animations on a tick clock.
package animation

import (
	"math"
	"strings"
	"time"

	"github.com/arpoise/arclient/pkg/core"
)

// Kind selects the transform channel an animation drives.
type Kind int

const (
	Translate Kind = iota
	Rotate
	Scale
)

func (k Kind) String() string {
	switch k {
	case Rotate:
		return "rotate"
	case Scale:
		return "scale"
	default:
		return "transform"
	}
}

// Interp selects linear or ping-pong playback.
type Interp int

const (
	Linear Interp = iota
	Cyclic
)

// Shape is the easing curve applied to progress.
type Shape int

const (
	ShapeNone Shape = iota
	Sine
	HalfSine
)

// ParseKind maps a descriptor type string to a Kind. Unknown strings translate.
func ParseKind(s string) Kind {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "rotate"):
		return Rotate
	case strings.Contains(s, "scale"):
		return Scale
	default:
		return Translate
	}
}

// ParseInterpolation maps a descriptor interpolation string to playback mode and shape.
func ParseInterpolation(s string) (Interp, Shape) {
	s = strings.ToLower(s)
	interp := Linear
	if strings.Contains(s, "cyclic") {
		interp = Cyclic
	}
	// "halfsine" contains "sine"
	shape := ShapeNone
	switch {
	case strings.Contains(s, "halfsine"):
		shape = HalfSine
	case strings.Contains(s, "sine"):
		shape = Sine
	}
	return interp, shape
}

// Spec is the immutable part of an animation.
type Spec struct {
	Name       string
	Kind       Kind
	Interp     Interp
	Shape      Shape
	Length     time.Duration
	Delay      time.Duration
	Persist    bool
	Repeat     bool
	From       float64
	To         float64
	Axis       core.Vec3
	FollowedBy string
}

// SpecFrom converts a wire descriptor. A nil descriptor yields a disabled Spec.
func SpecFrom(d *core.PoiAnimation) Spec {
	if d == nil {
		return Spec{}
	}
	interp, shape := ParseInterpolation(d.Interpolation)
	s := Spec{
		Name:       d.Name,
		Kind:       ParseKind(d.Type),
		Interp:     interp,
		Shape:      shape,
		Length:     seconds(d.Length),
		Delay:      seconds(d.Delay),
		Persist:    bool(d.Persist),
		Repeat:     bool(d.Repeat),
		From:       d.From,
		To:         d.To,
		FollowedBy: d.FollowedBy,
	}
	if d.Axis != nil {
		s.Axis = *d.Axis
	}
	return s
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Factor maps progress p to the interpolated scalar between From and To.
func (s Spec) Factor(p float64) float64 {
	from, to := s.From, s.To
	if s.Interp == Cyclic {
		if p >= .5 {
			p -= .5
			from, to = to, from
		}
		p *= 2
	}
	switch s.Shape {
	case HalfSine:
		p = math.Sin(math.Pi * p)
	case Sine:
		p = (math.Cos(2*math.Pi*p) - 1) / -2
	}
	if p < 0 {
		p = -p
	}
	return from + (to-from)*p
}

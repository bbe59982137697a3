package animation

import (
	"math"

	"github.com/arpoise/arclient/pkg/core"
	"gonum.org/v1/gonum/mat"
)

// Transform is one local transform contribution. Rotation holds euler
// angles in degrees, applied Z, then X, then Y.
type Transform struct {
	Position core.Vec3
	Rotation core.Vec3
	Scale    core.Vec3
}

// Identity returns the neutral transform.
func Identity() Transform {
	return Transform{Scale: core.Vec3{X: 1, Y: 1, Z: 1}}
}

func (t *Transform) reset(k Kind) {
	switch k {
	case Rotate:
		t.Rotation = core.Vec3{}
	case Scale:
		t.Scale = core.Vec3{X: 1, Y: 1, Z: 1}
	default:
		t.Position = core.Vec3{}
	}
}

// Matrix returns the 4x4 local matrix T*R*S.
func (t *Transform) Matrix() *mat.Dense {
	s := mat.NewDense(4, 4, []float64{
		t.Scale.X, 0, 0, 0,
		0, t.Scale.Y, 0, 0,
		0, 0, t.Scale.Z, 0,
		0, 0, 0, 1,
	})
	r := rotation(t.Rotation)
	tr := mat.NewDense(4, 4, []float64{
		1, 0, 0, t.Position.X,
		0, 1, 0, t.Position.Y,
		0, 0, 1, t.Position.Z,
		0, 0, 0, 1,
	})
	var m mat.Dense
	m.Mul(tr, r)
	m.Mul(&m, s)
	return &m
}

func rotation(e core.Vec3) *mat.Dense {
	rad := func(d float64) (float64, float64) {
		r := d * math.Pi / 180
		return math.Sin(r), math.Cos(r)
	}
	sx, cx := rad(e.X)
	sy, cy := rad(e.Y)
	sz, cz := rad(e.Z)
	rx := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, cx, -sx, 0,
		0, sx, cx, 0,
		0, 0, 0, 1,
	})
	ry := mat.NewDense(4, 4, []float64{
		cy, 0, sy, 0,
		0, 1, 0, 0,
		-sy, 0, cy, 0,
		0, 0, 0, 1,
	})
	rz := mat.NewDense(4, 4, []float64{
		cz, -sz, 0, 0,
		sz, cz, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	var m mat.Dense
	m.Mul(ry, rx)
	m.Mul(&m, rz)
	return &m
}

// Contribution is a named entry of a Stack.
type Contribution struct {
	Name      string
	Transform *Transform
}

// Stack is an ordered list of transform contributions composed outermost
// first into one effective transform.
type Stack struct {
	items []Contribution
}

// Push appends a new identity contribution and returns it for mutation.
func (s *Stack) Push(name string) *Transform {
	t := Identity()
	s.items = append(s.items, Contribution{Name: name, Transform: &t})
	return &t
}

// Get returns the first contribution with the given name.
func (s *Stack) Get(name string) (*Transform, bool) {
	for _, c := range s.items {
		if c.Name == name {
			return c.Transform, true
		}
	}
	return nil, false
}

// Names lists contribution names in composition order.
func (s *Stack) Names() []string {
	names := make([]string, len(s.items))
	for i, c := range s.items {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of contributions.
func (s *Stack) Len() int { return len(s.items) }

// Matrix composes all contributions into one local matrix.
func (s *Stack) Matrix() *mat.Dense {
	m := mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	for _, c := range s.items {
		m.Mul(m, c.Transform.Matrix())
	}
	return m
}

// Apply maps a local point through the composed stack.
func (s *Stack) Apply(p core.Vec3) core.Vec3 {
	m := s.Matrix()
	v := mat.NewVecDense(4, []float64{p.X, p.Y, p.Z, 1})
	var out mat.VecDense
	out.MulVec(m, v)
	return core.Vec3{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Origin returns where the stack places the local origin.
func (s *Stack) Origin() core.Vec3 {
	return s.Apply(core.Vec3{})
}

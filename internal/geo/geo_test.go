package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/arpoise/arclient/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance_SamePoint(t *testing.T) {
	p := core.Position{Lat: 48.1, Lon: 11.5}
	assert.Equal(t, 0.0, Distance(p, p))
}

func TestDistance_OneDegreeLatitude(t *testing.T) {
	d := Distance(core.Position{Lat: 0, Lon: 0}, core.Position{Lat: 1, Lon: 0})
	assert.InDelta(t, 111195, d, 10)
}

func TestDistance_Symmetric(t *testing.T) {
	a := core.Position{Lat: 48.137154, Lon: 11.576124}
	b := core.Position{Lat: 48.139, Lon: 11.58}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
}

func TestPoint(t *testing.T) {
	pt, err := Point(core.Position{Lat: 48.5, Lon: 11.25})
	require.NoError(t, err)
	coords, ok := pt.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 11.25, coords.X)
	assert.Equal(t, 48.5, coords.Y)
}

func TestPoint_NotFinite(t *testing.T) {
	_, err := Point(core.Position{Lat: math.NaN(), Lon: 11.25})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	_, err = Point(core.Position{Lat: 48.5, Lon: math.Inf(1)})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestMercator_Origin(t *testing.T) {
	pt, err := Mercator(core.Position{})
	require.NoError(t, err)
	coords, ok := pt.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 0, coords.X, 1e-6)
	assert.InDelta(t, 0, coords.Y, 1e-6)
}

func TestLocalOffset_MatchesDistance(t *testing.T) {
	origin := core.Position{Lat: 48.137154, Lon: 11.576124}
	target := core.Position{Lat: 48.138154, Lon: 11.578124}

	off := LocalOffset(origin, target)

	assert.Greater(t, off.X, 0.0, "target is east")
	assert.Greater(t, off.Z, 0.0, "target is north")
	assert.Equal(t, 0.0, off.Y)
	assert.InDelta(t, Distance(origin, target), off.Length(), 1.0)
}

func TestParseRelativeLocation(t *testing.T) {
	tests := []struct {
		in   string
		want core.Vec3
	}{
		{"", core.Vec3{}},
		{"1,2,3", core.Vec3{X: 1, Y: 2, Z: 3}},
		{" 1.5 , -2 ", core.Vec3{X: 1.5, Y: -2}},
		{"x,2,y", core.Vec3{Y: 2}},
		{"4", core.Vec3{X: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRelativeLocation(tt.in))
		})
	}
}

func TestPositionFromString(t *testing.T) {
	p, err := PositionFromString("48.137154, 11.576124")
	require.NoError(t, err)
	assert.Equal(t, core.Position{Lat: 48.137154, Lon: 11.576124}, p)
}

func TestPositionFromString_Invalid(t *testing.T) {
	for _, in := range []string{"", "48.1", "a,b", "91,0", "0,181", "1,2,3"} {
		_, err := PositionFromString(in)
		assert.True(t, errors.Is(err, ErrInvalidCoordinates), "input %q", in)
	}
}

func TestYaw(t *testing.T) {
	assert.InDelta(t, 0, Yaw(core.Vec3{Z: 1}), 1e-9)
	assert.InDelta(t, 90, Yaw(core.Vec3{X: 1}), 1e-9)
	assert.InDelta(t, -90, Yaw(core.Vec3{X: -1}), 1e-9)
}

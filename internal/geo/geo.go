package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/arpoise/arclient/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// Positions are WGS84 degrees (EPSG:4326). Local scene offsets go through
// web mercator (EPSG:3857) and are corrected by the mercator scale factor,
// which is accurate to well under a meter inside a layer's visibility range.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

const earthRadius = 6371000.0

// Distance returns the great-circle distance in meters between a and b.
func Distance(a, b core.Position) float64 {
	phi1, phi2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dPhi, dLambda := (b.Lat-a.Lat)*math.Pi/180, (b.Lon-a.Lon)*math.Pi/180
	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) + math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadius * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Point returns p as a 4326 point with X=lon, Y=lat.
func Point(p core.Position) (geom.Point, error) {
	return newPoint(p.Lon, p.Lat)
}

// Mercator projects p to web mercator meters.
func Mercator(p core.Position) (geom.Point, error) {
	x, y := mercator(p)
	return newPoint(x, y)
}

func newPoint(x, y float64) (geom.Point, error) {
	pt, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	})
	if err != nil {
		return geom.Point{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return pt, nil
}

var toMercator = wgs84.EPSG().Transform(4326, 3857)

func mercator(p core.Position) (x, y float64) {
	x, y, _ = toMercator(p.Lon, p.Lat, 0)
	return x, y
}

// LocalOffset returns the position of target relative to origin in the local
// scene frame (X east, Z north, meters). Y is left at zero.
func LocalOffset(origin, target core.Position) core.Vec3 {
	ox, oy := mercator(origin)
	tx, ty := mercator(target)
	k := math.Cos(origin.Lat * math.Pi / 180)
	return core.Vec3{
		X: (tx - ox) * k,
		Z: (ty - oy) * k,
	}
}

// ParseRelativeLocation parses an "x,y,z" offset. Missing or unparsable
// components read as zero, so "" yields the origin.
func ParseRelativeLocation(s string) core.Vec3 {
	parts := strings.Split(s, ",")
	component := func(i int) float64 {
		if i >= len(parts) {
			return 0
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return 0
		}
		return v
	}
	return core.Vec3{X: component(0), Y: component(1), Z: component(2)}
}

// PositionFromString parses a "lat,lon" string into a core.Position.
func PositionFromString(coords string) (core.Position, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) != 2 {
		return core.Position{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return core.Position{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil || lon < -180 || lon > 180 {
		return core.Position{}, ErrInvalidCoordinates
	}
	return core.Position{Lat: lat, Lon: lon}, nil
}

// Yaw returns the heading in degrees, clockwise from north, of a vector in the local frame.
func Yaw(v core.Vec3) float64 {
	return math.Atan2(v.X, v.Z) * 180 / math.Pi
}

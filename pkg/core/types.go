// pkg/core/types.go
package core

import "math"

// Position is a geographic position in degrees. The zero value means unknown.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsZero reports whether the position is still unknown.
func (p Position) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// Vec3 is a vector in the local scene frame: X east, Y up, Z north.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Scale returns v*f.
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Length returns the euclidean norm.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// RefreshRequest asks the sync loop to switch to another layer.
// A nil Latitude or Longitude clears the fixed device position.
type RefreshRequest struct {
	URL       string   `json:"url"`
	LayerName string   `json:"layerName"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// LayerItem is one selectable entry of the layer directory.
type LayerItem struct {
	LayerName string `json:"layerName"`
	ItemName  string `json:"itemName"`
	Line2     string `json:"line2"`
	Line3     string `json:"line3"`
	URL       string `json:"url"`
	Distance  int    `json:"distance"`
	Icon      string `json:"icon"`
}

// LayerItemFromPoi converts a directory hotspot into a menu entry.
func LayerItemFromPoi(p *Poi) LayerItem {
	return LayerItem{
		LayerName: p.Title,
		ItemName:  p.Line1,
		Line2:     p.Line2,
		Line3:     p.Line3,
		URL:       p.BaseURL(),
		Distance:  int(p.Distance),
		Icon:      p.Line4,
	}
}

// pkg/core/poi.go
package core

import (
	"encoding/json"
	"strings"
)

// Poi is a point of interest: one placeable entity with a geographic anchor.
// Lat and Lon are micro-degrees on the wire.
type Poi struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Lat         int64          `json:"lat"`
	Lon         int64          `json:"lon"`
	RelativeAlt float64        `json:"relativeAlt"`
	Distance    float64        `json:"distance"`
	IsVisible   Flag           `json:"isVisible"`
	Line1       string         `json:"line1"`
	Line2       string         `json:"line2"`
	Line3       string         `json:"line3"`
	Line4       string         `json:"line4"`
	Object      *PoiObject     `json:"object"`
	Transform   *PoiTransform  `json:"transform"`
	Animations  *PoiAnimations `json:"animations"`
	Actions     []PoiAction    `json:"actions"`

	// Layer is the page this Poi was read from. Not part of the wire format.
	Layer *Layer `json:"-"`
}

// PoiObject references the content used to render a Poi.
type PoiObject struct {
	BaseURL           string  `json:"baseURL"`
	Full              string  `json:"full"`
	RelativeLocation  string  `json:"relativeLocation"`
	TriggerImageURL   string  `json:"triggerImageURL"`
	TriggerImageWidth float64 `json:"triggerImageWidth"`
	PoiLayerName      string  `json:"poiLayerName"`
}

// PoiTransform holds the static transform of a Poi.
// Rel marks a billboard that turns to face the viewer.
type PoiTransform struct {
	Rel   Flag    `json:"rel"`
	Angle float64 `json:"angle"`
	Scale float64 `json:"scale"`
}

// PoiAnimations groups animation descriptors by trigger.
type PoiAnimations struct {
	OnCreate []*PoiAnimation `json:"onCreate"`
	OnFocus  []*PoiAnimation `json:"onFocus"`
	InFocus  []*PoiAnimation `json:"inFocus"`
	OnClick  []*PoiAnimation `json:"onClick"`
	OnFollow []*PoiAnimation `json:"onFollow"`
}

// PoiAnimation is an immutable animation descriptor. Length and Delay are seconds.
type PoiAnimation struct {
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	Length        float64 `json:"length"`
	Delay         float64 `json:"delay"`
	Interpolation string  `json:"interpolation"`
	Persist       Flag    `json:"persist"`
	Repeat        Flag    `json:"repeat"`
	From          float64 `json:"from"`
	To            float64 `json:"to"`
	Axis          *Vec3   `json:"axis"`
	FollowedBy    string  `json:"followedBy"`
}

// PoiAction is an action attached to a layer or Poi.
type PoiAction struct {
	URI             string `json:"uri"`
	Label           string `json:"label"`
	ActivityMessage string `json:"activityMessage"`
	ShowActivity    Flag   `json:"showActivity"`
}

// UnmarshalJSON defaults IsVisible to true when the document omits it.
func (p *Poi) UnmarshalJSON(data []byte) error {
	type poiAlias Poi
	alias := poiAlias{IsVisible: true}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*p = Poi(alias)
	return nil
}

// Latitude returns the latitude in degrees.
func (p *Poi) Latitude() float64 {
	return float64(p.Lat) / 1e6
}

// Longitude returns the longitude in degrees.
func (p *Poi) Longitude() float64 {
	return float64(p.Lon) / 1e6
}

// Position returns the Poi anchor.
func (p *Poi) Position() Position {
	return Position{Lat: p.Latitude(), Lon: p.Longitude()}
}

// BaseURL returns the content bundle URL with stray backslashes removed.
func (p *Poi) BaseURL() string {
	if p.Object == nil {
		return ""
	}
	return FixURL(p.Object.BaseURL)
}

// TemplateName returns the name of the template inside the bundle.
func (p *Poi) TemplateName() string {
	if p.Object == nil {
		return ""
	}
	return p.Object.Full
}

// TriggerImageURL returns the trigger image URL, or "" for regular Pois.
func (p *Poi) TriggerImageURL() string {
	if p.Object == nil {
		return ""
	}
	return FixURL(p.Object.TriggerImageURL)
}

// InnerLayerName returns the name of the layer nested under this Poi, if any.
func (p *Poi) InnerLayerName() string {
	if p.Object == nil {
		return ""
	}
	return strings.TrimSpace(p.Object.PoiLayerName)
}

// RelativeLocation returns the "x,y,z" offset string, or "" for absolutely placed Pois.
func (p *Poi) RelativeLocation() string {
	if p.Object == nil {
		return ""
	}
	return p.Object.RelativeLocation
}

// Placeable reports whether the Poi is visible and names a template.
func (p *Poi) Placeable() bool {
	return bool(p.IsVisible) && p.TemplateName() != ""
}

// FixURL removes every backslash from a URL. Some layer services escape slashes.
func FixURL(u string) string {
	return strings.ReplaceAll(u, `\`, "")
}

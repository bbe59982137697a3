// pkg/core/layer.go
package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DefaultVisibilityRange is the placement radius in meters used when a layer does not set one.
const DefaultVisibilityRange = 1500

// ErrEmptyDocument is returned by ParseLayer for a blank body.
var ErrEmptyDocument = errors.New("empty layer document")

// Flag is a boolean that also accepts the strings "true" and "false" and the numbers 0 and 1.
// The directory service rewrites some flags as strings.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		*f = true
	case "false", "0", "no", "", "null":
		*f = false
	default:
		return fmt.Errorf("invalid boolean %q", s)
	}
	return nil
}

// Layer is one page of a layer document as served by the layer service.
type Layer struct {
	Layer             string      `json:"layer"`
	Hotspots          []*Poi      `json:"hotspots"`
	LayerTitle        string      `json:"layerTitle"`
	NoPoisMessage     string      `json:"noPoisMessage"`
	RedirectionURL    string      `json:"redirectionUrl"`
	RedirectionLayer  string      `json:"redirectionLayer"`
	MorePages         Flag        `json:"morePages"`
	NextPageKey       string      `json:"nextPageKey"`
	RefreshInterval   float64     `json:"refreshInterval"`
	VisibilityRange   float64     `json:"visibilityRange"`
	AreaSize          int         `json:"areaSize"`
	AreaWidth         int         `json:"areaWidth"`
	BleachingValue    int         `json:"bleachingValue"`
	ApplyKalmanFilter Flag        `json:"applyKalmanFilter"`
	ShowMenuButton    Flag        `json:"showMenuButton"`
	IsDefaultLayer    Flag        `json:"isDefaultLayer"`
	Actions           []PoiAction `json:"actions"`
	ErrorCode         int         `json:"errorCode"`
	ErrorString       string      `json:"errorString"`
}

// NewLayer returns a layer carrying the document defaults.
func NewLayer() *Layer {
	return &Layer{
		VisibilityRange:   DefaultVisibilityRange,
		AreaSize:          -1,
		AreaWidth:         -1,
		BleachingValue:    -1,
		ApplyKalmanFilter: true,
		ShowMenuButton:    true,
	}
}

// ParseLayer decodes a layer document. Fields missing from the document keep their defaults.
func ParseLayer(data []byte) (*Layer, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	layer := NewLayer()
	if err := json.Unmarshal(data, layer); err != nil {
		return nil, fmt.Errorf("decode layer: %w", err)
	}
	return layer, nil
}

// Redirected reports whether the page points the client at another service or layer.
func (l *Layer) Redirected() bool {
	return strings.TrimSpace(l.RedirectionURL) != "" || strings.TrimSpace(l.RedirectionLayer) != ""
}

// HasMorePages reports whether another page should be requested after this one.
func (l *Layer) HasMorePages() bool {
	return bool(l.MorePages) && l.NextPageKey != ""
}

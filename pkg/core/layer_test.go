package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayer_Defaults(t *testing.T) {
	layer, err := ParseLayer([]byte(`{"layer":"Demo","hotspots":[{"id":7,"lat":48137154,"lon":11576124}]}`))
	require.NoError(t, err)

	assert.Equal(t, "Demo", layer.Layer)
	assert.Equal(t, float64(DefaultVisibilityRange), layer.VisibilityRange)
	assert.Equal(t, -1, layer.BleachingValue)
	assert.Equal(t, -1, layer.AreaSize)
	assert.Equal(t, -1, layer.AreaWidth)
	assert.True(t, bool(layer.ApplyKalmanFilter))
	assert.True(t, bool(layer.ShowMenuButton))
	assert.False(t, bool(layer.MorePages))

	require.Len(t, layer.Hotspots, 1)
	poi := layer.Hotspots[0]
	assert.True(t, bool(poi.IsVisible), "isVisible defaults to true")
	assert.InDelta(t, 48.137154, poi.Latitude(), 1e-9)
	assert.InDelta(t, 11.576124, poi.Longitude(), 1e-9)
}

func TestParseLayer_Empty(t *testing.T) {
	_, err := ParseLayer([]byte("  \n"))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestParseLayer_Malformed(t *testing.T) {
	_, err := ParseLayer([]byte(`{"layer":`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyDocument)
}

func TestParseLayer_StringFlags(t *testing.T) {
	layer, err := ParseLayer([]byte(`{"showMenuButton":"false","morePages":"true","nextPageKey":"2","isDefaultLayer":1}`))
	require.NoError(t, err)

	assert.False(t, bool(layer.ShowMenuButton))
	assert.True(t, bool(layer.MorePages))
	assert.True(t, bool(layer.IsDefaultLayer))
	assert.True(t, layer.HasMorePages())
}

func TestFlag_Invalid(t *testing.T) {
	var f Flag
	assert.Error(t, json.Unmarshal([]byte(`"maybe"`), &f))
}

func TestLayer_Redirected(t *testing.T) {
	tests := []struct {
		name  string
		layer Layer
		want  bool
	}{
		{"none", Layer{}, false},
		{"blank url", Layer{RedirectionURL: "  "}, false},
		{"url", Layer{RedirectionURL: "http://other"}, true},
		{"layer", Layer{RedirectionLayer: "Other"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.layer.Redirected())
		})
	}
}

func TestHasMorePages_RequiresCursor(t *testing.T) {
	l := Layer{MorePages: true}
	assert.False(t, l.HasMorePages())
}

func TestPoi_Accessors(t *testing.T) {
	var poi Poi
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 3, "isVisible": false,
		"object": {"baseURL": "http:\\/\\/host\\/b.ace", "full": "Cube", "triggerImageURL": "http:\\/\\/host\\/t.png", "poiLayerName": " Inner "}
	}`), &poi))

	assert.False(t, bool(poi.IsVisible))
	assert.False(t, poi.Placeable())
	assert.Equal(t, "http://host/b.ace", poi.BaseURL())
	assert.Equal(t, "http://host/t.png", poi.TriggerImageURL())
	assert.Equal(t, "Cube", poi.TemplateName())
	assert.Equal(t, "Inner", poi.InnerLayerName())
}

func TestPoi_NilObject(t *testing.T) {
	poi := Poi{IsVisible: true}
	assert.Empty(t, poi.BaseURL())
	assert.Empty(t, poi.TemplateName())
	assert.Empty(t, poi.TriggerImageURL())
	assert.Empty(t, poi.InnerLayerName())
	assert.False(t, poi.Placeable())
}

func TestLayerItemFromPoi(t *testing.T) {
	poi := &Poi{
		Title: "Layer-A", Line1: "Item", Line2: "l2", Line3: "l3", Line4: "icon",
		Distance: 42.7, Object: &PoiObject{BaseURL: `http:\/\/svc`},
	}
	item := LayerItemFromPoi(poi)
	assert.Equal(t, LayerItem{
		LayerName: "Layer-A", ItemName: "Item", Line2: "l2", Line3: "l3",
		URL: "http://svc", Distance: 42, Icon: "icon",
	}, item)
}

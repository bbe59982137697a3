// internal/api/client_test.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arpoise/arclient/pkg/core"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.UserID = "device-1"
	cfg.PollInterval = time.Millisecond
	cfg.LayerMaxWait = 2000
	cfg.BundleMaxWait = 2000
	cfg.ImageMaxWait = 2000
	return cfg
}

func TestLayerURL_Primary(t *testing.T) {
	c := New(testConfig(), nil)
	u := c.LayerURL(Request{
		BaseURL:   "http://www.arpoise.com/cgi-bin/ArpoiseDirectory.cgi",
		LayerName: "Arpoise-Directory",
		Position:  core.Position{Lat: 48.137154, Lon: 11.576124},
		Device:    core.Position{Lat: 48.1372, Lon: 11.576124},
		Count:     3,
	}, "p2")

	g := goldie.New(t)
	g.Assert(t, "layer_url_primary", []byte(u))
}

func TestLayerURL_InnerLayerOnIOS(t *testing.T) {
	cfg := testConfig()
	cfg.Variant = Arvos
	cfg.Platform = IOS
	c := New(cfg, nil)
	u := c.LayerURL(Request{
		BaseURL:    `http:\/\/layers.example.com\/svc`,
		LayerName:  "Inner Layer",
		Device:     core.Position{Lat: 48.137154, Lon: 11.576124},
		Count:      9,
		InnerLayer: true,
	}, "")

	g := goldie.New(t)
	g.Assert(t, "layer_url_inner", []byte(u))
}

// layerServer serves pages keyed by layerName and pageKey.
func layerServer(t *testing.T, pages map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		key := r.URL.Path + "|" + r.URL.Query().Get("layerName") + "|" + r.URL.Query().Get("pageKey")
		body, ok := pages[key]
		if !ok {
			t.Logf("no page for %s", key)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchLayer_FollowsPagination(t *testing.T) {
	srv, hits := layerServer(t, map[string]string{
		"/l|Demo|":   `{"layer":"Demo","morePages":true,"nextPageKey":"2","hotspots":[{"id":1}]}`,
		"/l|Demo|2":  `{"layer":"Demo","morePages":true,"nextPageKey":"3","hotspots":[{"id":2}]}`,
		"/l|Demo|3":  `{"layer":"Demo","morePages":false,"nextPageKey":"4","hotspots":[{"id":3}]}`,
		"/l|Demo|4":  `{"layer":"Demo"}`,
	})
	c := New(testConfig(), nil)

	res, err := c.FetchLayer(context.Background(), Request{BaseURL: srv.URL + "/l", LayerName: "Demo", Count: 1})
	require.NoError(t, err)

	require.Len(t, res.Layers, 3)
	assert.Equal(t, int32(3), hits.Load(), "stops at morePages=false")
	assert.Equal(t, int64(3), res.Layers[2].Hotspots[0].ID)
	assert.Equal(t, 3, res.Requests)
}

func TestFetchLayer_StopsOnEmptyCursor(t *testing.T) {
	srv, hits := layerServer(t, map[string]string{
		"/l|Demo|": `{"morePages":true,"nextPageKey":""}`,
	})
	c := New(testConfig(), nil)

	res, err := c.FetchLayer(context.Background(), Request{BaseURL: srv.URL + "/l", LayerName: "Demo"})
	require.NoError(t, err)
	assert.Len(t, res.Layers, 1)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchLayer_RedirectionRestartsPagination(t *testing.T) {
	pages := map[string]string{
		"/a|Start|":  `{"morePages":true,"nextPageKey":"2","hotspots":[{"id":1}]}`,
		"/b|Target|": `{"layer":"Target","hotspots":[{"id":9}]}`,
	}
	srv, _ := layerServer(t, pages)
	pages["/a|Start|2"] = fmt.Sprintf(`{"redirectionUrl":" %s/b ","redirectionLayer":" Target "}`, srv.URL)
	c := New(testConfig(), nil)

	res, err := c.FetchLayer(context.Background(), Request{BaseURL: srv.URL + "/a", LayerName: "Start"})
	require.NoError(t, err)

	require.Len(t, res.Layers, 1, "pages before the redirect are discarded")
	assert.Equal(t, int64(9), res.Layers[0].Hotspots[0].ID)
	assert.Equal(t, srv.URL+"/b", res.BaseURL)
	assert.Equal(t, "Target", res.LayerName)
	assert.Equal(t, 3, res.Requests)
}

func TestFetchLayer_RedirectionLayerOnly(t *testing.T) {
	srv, _ := layerServer(t, map[string]string{
		"/a|Start|": `{"redirectionLayer":"Next"}`,
		"/a|Next|":  `{"layer":"Next"}`,
	})
	c := New(testConfig(), nil)

	res, err := c.FetchLayer(context.Background(), Request{BaseURL: srv.URL + "/a", LayerName: "Start"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/a", res.BaseURL)
	assert.Equal(t, "Next", res.LayerName)
}

func TestFetchLayer_InnerLayerIgnoresRedirection(t *testing.T) {
	srv, _ := layerServer(t, map[string]string{
		"/a|Inner|": `{"redirectionLayer":"Elsewhere","hotspots":[{"id":4}]}`,
	})
	c := New(testConfig(), nil)

	res, err := c.FetchLayer(context.Background(), Request{BaseURL: srv.URL + "/a", LayerName: "Inner", InnerLayer: true})
	require.NoError(t, err)
	require.Len(t, res.Layers, 1)
	assert.Equal(t, "Inner", res.LayerName)
}

func TestFetchLayer_RedirectLoop(t *testing.T) {
	srv, _ := layerServer(t, map[string]string{
		"/a|Loop|": `{"redirectionLayer":"Loop"}`,
	})
	c := New(testConfig(), nil)

	_, err := c.FetchLayer(context.Background(), Request{BaseURL: srv.URL + "/a", LayerName: "Loop"})
	assert.ErrorIs(t, err, ErrRedirectLoop)
}

func TestFetchLayer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }, ErrTransport},
		{"empty", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(" \n")) }, ErrEmptyResponse},
		{"parse", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("{not json")) }, ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := New(testConfig(), nil)

			_, err := c.FetchLayer(context.Background(), Request{BaseURL: srv.URL, LayerName: "Demo"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "layer Demo")
		})
	}
}

func TestFetchLayer_ServerDown(t *testing.T) {
	c := New(testConfig(), nil)
	_, err := c.FetchLayer(context.Background(), Request{BaseURL: "http://localhost:59999", LayerName: "Demo"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestFetchLayer_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig()
	cfg.LayerMaxWait = 20
	c := New(cfg, nil)

	start := time.Now()
	_, err := c.FetchLayer(context.Background(), Request{BaseURL: srv.URL, LayerName: "Slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, errors.Is(err, ErrTransport), "timeout is distinct from transport errors")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestFetchLayer_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	c := New(testConfig(), nil)
	_, err := c.FetchLayer(ctx, Request{BaseURL: srv.URL, LayerName: "Demo"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchBundle_IOSSuffix(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`{"templates":{}}`))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Platform = IOS
	c := New(cfg, nil)

	_, err := c.FetchBundle(context.Background(), srv.URL+"/ab/demo.ace")
	require.NoError(t, err)
	_, err = c.FetchBundle(context.Background(), srv.URL+"/ab/demo")
	require.NoError(t, err)

	assert.Equal(t, []string{"/ab/demoi.ace", "/ab/demoi"}, paths)
}

func TestFetchImage_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := New(testConfig(), nil)
	_, err := c.FetchImage(context.Background(), srv.URL+"/t.png")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.DirectoryURL = server.URL + "/"
	c := New(cfg, nil)
	assert.NoError(t, c.Healthcheck(context.Background()))
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.DirectoryURL = server.URL
	c := New(cfg, nil)
	err := c.Healthcheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprint(http.StatusServiceUnavailable))
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("ARVOS")
	require.NoError(t, err)
	assert.Equal(t, Arvos, v)
	assert.True(t, v.DirectoryBrowsing)

	v, err = ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, Arpoise, v)

	_, err = ParseVariant("other")
	assert.Error(t, err)
}

func TestPlatform(t *testing.T) {
	p, err := ParsePlatform("ios")
	require.NoError(t, err)
	assert.Equal(t, IOS, p)
	assert.Equal(t, "20191008", p.BundleVersion("191008"))
	assert.Equal(t, "191008", Android.BundleVersion("191008"))
	assert.Equal(t, "www.arpoise.com/AB/arpoiseiconsi.ace", p.BundleURL("www.arpoise.com/AB/arpoiseicons.ace"))
	assert.Equal(t, "x.ace", Android.BundleURL("x.ace"))
	assert.Equal(t, "http://cdn.ace.example/AB/demoi.ace", p.BundleURL("http://cdn.ace.example/AB/demo.ace"))
	assert.Equal(t, "http://host.ace/AB/demoi", p.BundleURL("http://host.ace/AB/demo"))

	_, err = ParsePlatform("windows")
	assert.Error(t, err)
}

// internal/api/layer.go
package api

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/arpoise/arclient/pkg/core"
)

const maxRedirects = 10

// Request describes one layer download.
type Request struct {
	BaseURL   string
	LayerName string
	// Position is the position the layer is requested for.
	Position core.Position
	// Device is the filtered device position. It is reported only where it
	// differs from Position.
	Device core.Position
	// Count is the cycle counter of the sync loop. Unused for inner layers.
	Count      int64
	InnerLayer bool
}

// Result holds all pages of a layer and the target that finally served them.
type Result struct {
	Layers    []*core.Layer
	BaseURL   string
	LayerName string
	// Requests counts every page request, redirected ones included.
	Requests int
}

// LayerURL builds the request URL for one page.
func (c *Client) LayerURL(req Request, pageKey string) string {
	var b strings.Builder
	b.WriteString(req.BaseURL)
	b.WriteString("?lang=en")
	b.WriteString("&lat=" + fixed6(req.Position.Lat))
	b.WriteString("&lon=" + fixed6(req.Position.Lon))
	if req.Device.Lat != req.Position.Lat {
		b.WriteString("&latOfDevice=" + fixed6(req.Device.Lat))
	}
	if req.Device.Lon != req.Position.Lon {
		b.WriteString("&lonOfDevice=" + fixed6(req.Device.Lon))
	}
	b.WriteString("&layerName=" + url.QueryEscape(req.LayerName))
	if pageKey != "" {
		b.WriteString("&pageKey=" + url.QueryEscape(pageKey))
	}
	b.WriteString("&userId=" + url.QueryEscape(c.cfg.UserID))
	b.WriteString("&client=" + c.cfg.Variant.Client)
	b.WriteString("&version=1&radius=1500&accuracy=100")
	b.WriteString("&bundle=" + c.cfg.Platform.BundleVersion(c.cfg.Bundle))
	b.WriteString("&os=" + string(c.cfg.Platform))
	if req.InnerLayer {
		b.WriteString("&innerLayer=true")
	} else {
		b.WriteString("&count=" + strconv.FormatInt(req.Count, 10))
	}
	b.WriteString("&build=" + c.cfg.Build)
	return core.FixURL(b.String())
}

func fixed6(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// FetchLayer downloads every page of a layer. A redirection discards the
// pages collected so far and restarts at the new target with an empty
// cursor. Inner layer requests ignore redirections.
func (c *Client) FetchLayer(ctx context.Context, req Request) (*Result, error) {
	res := &Result{BaseURL: req.BaseURL, LayerName: req.LayerName}
	cursor := ""
	redirects := 0

	for {
		cur := req
		cur.BaseURL, cur.LayerName = res.BaseURL, res.LayerName
		u := c.LayerURL(cur, cursor)

		res.Requests++
		body, err := c.await(ctx, u, c.cfg.LayerMaxWait, c.cfg.LayerTimeout)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", res.LayerName, err)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, fmt.Errorf("layer %s: %w", res.LayerName, ErrEmptyResponse)
		}
		layer, err := core.ParseLayer(body)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w: %v", res.LayerName, ErrParse, err)
		}

		if !req.InnerLayer && layer.Redirected() {
			redirects++
			if redirects > maxRedirects {
				return nil, fmt.Errorf("layer %s: %w", res.LayerName, ErrRedirectLoop)
			}
			if target := strings.TrimSpace(layer.RedirectionURL); target != "" {
				res.BaseURL = target
			}
			if name := strings.TrimSpace(layer.RedirectionLayer); name != "" {
				res.LayerName = name
			}
			c.logger.Debug("Layer redirected", "url", res.BaseURL, "layer", res.LayerName)
			res.Layers = nil
			cursor = ""
			continue
		}

		res.Layers = append(res.Layers, layer)
		if !layer.HasMorePages() {
			return res, nil
		}
		cursor = layer.NextPageKey
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/arpoise/arclient/internal/api"
	"github.com/arpoise/arclient/internal/config"
	"github.com/arpoise/arclient/pkg/core"
	"github.com/spf13/cobra"
)

type fetchOptions struct {
	*rootOptions
	Lat float64
	Lon float64
}

// fetchSummary is the output of the fetch command.
type fetchSummary struct {
	URL      string     `json:"url"`
	Layer    string     `json:"layer"`
	Title    string     `json:"title,omitempty"`
	Requests int        `json:"requests"`
	Pages    int        `json:"pages"`
	Pois     []fetchPoi `json:"pois"`
}

type fetchPoi struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

func newFetchCommand(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "fetch [url] [layer]",
		Short: "Fetch one layer with all its pages and print a summary",
		Long: `Fetch runs the layer fetch pipeline once, following pages and
redirections, and prints the served target and its points of interest as
JSON. Without arguments the configured directory is fetched.`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dc := config.GetDirectoryConfig()
			url, layer := dc.URL, dc.Layer
			if len(args) > 0 {
				url = args[0]
			}
			if len(args) > 1 {
				layer = args[1]
			}

			client, err := newAPIClient(config.GetClientConfig().UserID, slog.Default())
			if err != nil {
				return err
			}
			pos := core.Position{Lat: opts.Lat, Lon: opts.Lon}
			sum, err := fetchLayer(cmd.Context(), client, url, layer, pos)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}

	cmd.Flags().Float64Var(&opts.Lat, "lat", 0, "request latitude")
	cmd.Flags().Float64Var(&opts.Lon, "lon", 0, "request longitude")
	return cmd
}

func fetchLayer(ctx context.Context, client *api.Client, url, layer string, pos core.Position) (*fetchSummary, error) {
	res, err := client.FetchLayer(ctx, api.Request{
		BaseURL:   url,
		LayerName: layer,
		Position:  pos,
		Device:    pos,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	sum := &fetchSummary{
		URL:      res.BaseURL,
		Layer:    res.LayerName,
		Requests: res.Requests,
		Pages:    len(res.Layers),
		Pois:     []fetchPoi{},
	}
	for _, l := range res.Layers {
		if sum.Title == "" {
			sum.Title = l.LayerTitle
		}
		for _, p := range l.Hotspots {
			if p == nil {
				continue
			}
			pp := p.Position()
			sum.Pois = append(sum.Pois, fetchPoi{ID: p.ID, Title: p.Title, Lat: pp.Lat, Lon: pp.Lon})
		}
	}
	return sum, nil
}

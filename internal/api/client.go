// internal/api/client.go
package api

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arpoise/arclient/pkg/core"
)

var (
	// ErrTransport covers network failures and non-2xx responses.
	ErrTransport = errors.New("transport error")
	// ErrTimeout is returned when a request does not complete within its wait budget.
	ErrTimeout = errors.New("timeout")
	// ErrEmptyResponse is returned for a blank response body.
	ErrEmptyResponse = errors.New("empty response")
	// ErrParse is returned for a malformed layer document.
	ErrParse = errors.New("parse error")
	// ErrRedirectLoop is returned when a layer keeps redirecting.
	ErrRedirectLoop = errors.New("too many redirections")
)

// Config holds the client identity and the wait budgets.
type Config struct {
	Variant  Variant
	Platform Platform
	Bundle   string
	Build    string
	UserID   string

	DirectoryURL string

	// Completion is polled every PollInterval, at most MaxWait times.
	PollInterval  time.Duration
	LayerMaxWait  int
	BundleMaxWait int
	ImageMaxWait  int

	LayerTimeout  time.Duration
	BundleTimeout time.Duration

	InsecureSkipVerify bool
}

// DefaultConfig returns the stock Arpoise Android identity and wait budgets.
func DefaultConfig() Config {
	return Config{
		Variant:       Arpoise,
		Platform:      Android,
		Bundle:        "191008",
		Build:         "rel",
		DirectoryURL:  "http://www.arpoise.com/cgi-bin/ArpoiseDirectory.cgi",
		PollInterval:  10 * time.Millisecond,
		LayerMaxWait:  3000,
		BundleMaxWait: 6000,
		ImageMaxWait:  3000,
		LayerTimeout:  30 * time.Second,
		BundleTimeout: 60 * time.Second,
	}
}

// Client talks to the layer service and downloads bundles and images.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new API client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Healthcheck checks if the layer directory is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.DirectoryURL, "/"), nil)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// FetchBundle downloads the platform specific file of a content bundle.
func (c *Client) FetchBundle(ctx context.Context, url string) ([]byte, error) {
	u := core.FixURL(c.cfg.Platform.BundleURL(url))
	body, err := c.await(ctx, u, c.cfg.BundleMaxWait, c.cfg.BundleTimeout)
	if err != nil {
		return nil, fmt.Errorf("bundle '%s': %w", u, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("bundle '%s': %w", u, ErrEmptyResponse)
	}
	return body, nil
}

// FetchImage downloads a trigger image.
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, error) {
	u := core.FixURL(url)
	body, err := c.await(ctx, u, c.cfg.ImageMaxWait, c.cfg.LayerTimeout)
	if err != nil {
		return nil, fmt.Errorf("image %s: %w", u, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("image %s: %w", u, ErrEmptyResponse)
	}
	return body, nil
}

type response struct {
	body []byte
	err  error
}

// await runs one GET in the background and polls for its completion.
// Exceeding maxWait polls abandons the request with ErrTimeout.
func (c *Client) await(ctx context.Context, url string, maxWait int, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan response, 1)
	go func() {
		body, err := c.get(reqCtx, url)
		done <- response{body: body, err: err}
	}()

	poll := time.NewTicker(c.cfg.PollInterval)
	defer poll.Stop()

	for waited := 0; waited < maxWait; {
		select {
		case r := <-done:
			return r.body, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-poll.C:
			waited++
		}
	}

	select {
	case r := <-done:
		return r.body, r.err
	default:
	}
	c.logger.Warn("Request abandoned", "url", url, "maxWait", maxWait)
	return nil, ErrTimeout
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return body, nil
}

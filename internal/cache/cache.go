package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/arpoise/arclient/pkg/core"
	"golang.org/x/sync/singleflight"
)

// Fetcher downloads raw resource bytes.
type Fetcher interface {
	FetchBundle(ctx context.Context, url string) ([]byte, error)
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// Option configures Resources.
type Option func(*Resources)

// WithBundleDecoder replaces the default JSON manifest decoder.
func WithBundleDecoder(d BundleDecoder) Option {
	return func(r *Resources) {
		r.decode = d
	}
}

// Resources caches content bundles and trigger images for the session.
// Entries are keyed by URL with backslashes removed and never evicted.
// Concurrent misses on the same key share one fetch.
type Resources struct {
	fetcher Fetcher
	decode  BundleDecoder

	mu      sync.RWMutex
	bundles map[string]*Bundle
	images  map[string]*Image

	group singleflight.Group

	// Fetches counts completed downloads.
	Fetches SafeCounter
}

// New creates an empty cache backed by f.
func New(f Fetcher, opts ...Option) *Resources {
	r := &Resources{
		fetcher: f,
		decode:  DecodeManifest,
		bundles: make(map[string]*Bundle),
		images:  make(map[string]*Image),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key normalizes a resource URL.
func Key(url string) string {
	return core.FixURL(url)
}

// Bundle returns the bundle for url, fetching it on first use.
func (r *Resources) Bundle(ctx context.Context, url string) (*Bundle, error) {
	key := Key(url)
	if b, ok := r.LookupBundle(key); ok {
		return b, nil
	}
	v, err, _ := r.group.Do("bundle:"+key, func() (any, error) {
		if b, ok := r.LookupBundle(key); ok {
			return b, nil
		}
		data, err := r.fetcher.FetchBundle(ctx, key)
		if err != nil {
			return nil, err
		}
		r.Fetches.Inc()
		b, err := r.decode(key, data)
		if err != nil {
			return nil, fmt.Errorf("bundle '%s': %w", key, err)
		}
		r.mu.Lock()
		r.bundles[key] = b
		r.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Bundle), nil
}

// Image returns the decoded trigger image for url, fetching it on first use.
func (r *Resources) Image(ctx context.Context, url string) (*Image, error) {
	key := Key(url)
	if img, ok := r.LookupImage(key); ok {
		return img, nil
	}
	v, err, _ := r.group.Do("image:"+key, func() (any, error) {
		if img, ok := r.LookupImage(key); ok {
			return img, nil
		}
		data, err := r.fetcher.FetchImage(ctx, key)
		if err != nil {
			return nil, err
		}
		r.Fetches.Inc()
		img, err := DecodeImage(key, data)
		if err != nil {
			return nil, fmt.Errorf("image '%s': %w", key, err)
		}
		r.mu.Lock()
		r.images[key] = img
		r.mu.Unlock()
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Image), nil
}

// LookupBundle returns a cached bundle without fetching.
func (r *Resources) LookupBundle(url string) (*Bundle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bundles[Key(url)]
	return b, ok
}

// LookupImage returns a cached image without fetching.
func (r *Resources) LookupImage(url string) (*Image, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	img, ok := r.images[Key(url)]
	return img, ok
}

// Stats reports cache sizes.
type Stats struct {
	Bundles int `json:"bundles"`
	Images  int `json:"images"`
	Fetches int `json:"fetches"`
}

// Stats returns the current cache sizes.
func (r *Resources) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Bundles: len(r.bundles),
		Images:  len(r.images),
		Fetches: r.Fetches.Value(),
	}
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}

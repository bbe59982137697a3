package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sort"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrBundleFormat is returned when bundle bytes cannot be decoded.
var ErrBundleFormat = errors.New("unsupported bundle format")

// Template is a named object template inside a bundle.
type Template struct {
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Bundle is a content bundle exposing templates by name.
type Bundle struct {
	URL       string
	Name      string
	Size      int
	Templates map[string]Template
}

// Template looks up a template by name.
func (b *Bundle) Template(name string) (Template, bool) {
	t, ok := b.Templates[name]
	return t, ok
}

// TemplateNames returns the sorted template names.
func (b *Bundle) TemplateNames() []string {
	names := make([]string, 0, len(b.Templates))
	for n := range b.Templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// BundleDecoder turns raw bundle bytes into a Bundle.
type BundleDecoder func(url string, data []byte) (*Bundle, error)

type manifest struct {
	Name      string                    `json:"name"`
	Templates map[string]map[string]any `json:"templates"`
}

// DecodeManifest decodes a JSON bundle manifest of the form
// {"name": "...", "templates": {"<name>": {...attributes}}}.
func DecodeManifest(url string, data []byte) (*Bundle, error) {
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBundleFormat, err)
	}
	b := &Bundle{
		URL:       url,
		Name:      m.Name,
		Size:      len(data),
		Templates: make(map[string]Template, len(m.Templates)),
	}
	for name, attrs := range m.Templates {
		b.Templates[name] = Template{Name: name, Attributes: attrs}
	}
	return b, nil
}

// Image is a decoded trigger image.
type Image struct {
	URL    string
	Format string
	Width  int
	Height int
	Pixels image.Image
}

// DecodeImage decodes png, jpeg, gif, bmp or webp data.
func DecodeImage(url string, data []byte) (*Image, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	bounds := img.Bounds()
	return &Image{
		URL:    url,
		Format: format,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Pixels: img,
	}, nil
}

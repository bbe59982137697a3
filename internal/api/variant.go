// internal/api/variant.go
package api

import (
	"fmt"
	"strings"
)

// Variant identifies the client application towards the layer service.
type Variant struct {
	Name   string
	Client string
	// DirectoryBrowsing clients may show an empty scene instead of failing
	// with a no-content error.
	DirectoryBrowsing bool
}

var (
	Arpoise = Variant{Name: "arpoise", Client: "Arpoise"}
	Arvos   = Variant{Name: "arvos", Client: "Arvos", DirectoryBrowsing: true}
	Arslam  = Variant{Name: "arslam", Client: "Arslam"}
)

// ParseVariant resolves a configured variant name.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "arpoise":
		return Arpoise, nil
	case "arvos":
		return Arvos, nil
	case "arslam":
		return Arslam, nil
	default:
		return Variant{}, fmt.Errorf("unknown client variant %q", name)
	}
}

// Platform is the OS reported to the layer service. It also selects the
// bundle file variant.
type Platform string

const (
	Android Platform = "Android"
	IOS     Platform = "iOS"
)

// ParsePlatform resolves a configured OS name.
func ParsePlatform(name string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "android":
		return Android, nil
	case "ios":
		return IOS, nil
	default:
		return "", fmt.Errorf("unknown platform %q", name)
	}
}

// BundleURL returns the platform specific file for a bundle URL.
// iOS bundles are built separately and carry an "i" suffix.
func (p Platform) BundleURL(u string) string {
	if p != IOS {
		return u
	}
	if strings.HasSuffix(u, ".ace") {
		return strings.TrimSuffix(u, ".ace") + "i.ace"
	}
	return u + "i"
}

// BundleVersion prefixes the bundle version the way the platform's builds report it.
func (p Platform) BundleVersion(v string) string {
	if p == IOS {
		return "20" + v
	}
	return v
}

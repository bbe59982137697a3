// Command arclient runs the location-based AR layer client headless: it
// synchronizes layers for a device position, keeps the placed objects
// animated and mirrors them to an external renderer.
package main

import (
	"fmt"
	"os"
)

// Build metadata, set at build time via ldflags.
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

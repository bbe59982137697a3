package main

import (
	"sync/atomic"

	"github.com/arpoise/arclient/pkg/core"
)

// staticPositioner reports the last position it was given, unfiltered.
type staticPositioner struct {
	pos atomic.Pointer[core.Position]
}

func newStaticPositioner(p core.Position) *staticPositioner {
	s := &staticPositioner{}
	s.Set(p)
	return s
}

func (s *staticPositioner) Set(p core.Position) { s.pos.Store(&p) }

func (s *staticPositioner) Filtered() core.Position { return *s.pos.Load() }

func (s *staticPositioner) Raw() core.Position { return *s.pos.Load() }

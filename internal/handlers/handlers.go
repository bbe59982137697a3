// Package handlers implements the collaborator commands: refresh, select,
// focus, click, recognize and status.
package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/arpoise/arclient/internal/dispatcher"
	"github.com/arpoise/arclient/internal/layersync"
	"github.com/arpoise/arclient/pkg/core"
)

var (
	// ErrUsage is returned for missing or malformed arguments.
	ErrUsage = errors.New("usage")
	// ErrNotSelecting is returned by select outside the layer selection wait.
	ErrNotSelecting = errors.New("no layer selection pending")
)

// Loop is the part of the sync loop the commands drive.
type Loop interface {
	RequestRefresh(core.RefreshRequest)
	Outputs() layersync.Outputs
}

// Driver is the part of the scene driver the commands drive.
type Driver interface {
	Focus(id int64, on bool)
	Click(id int64)
	Recognize(index int)
}

// Dependencies holds all dependencies needed by handlers. Status is
// optional; without it status reports the loop outputs. The position
// command is registered only when SetPosition is set.
type Dependencies struct {
	Loop        Loop
	Driver      Driver
	Status      func() any
	SetPosition func(core.Position)
}

// Service provides the command handlers.
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service.
func NewService(deps Dependencies) *Service {
	return &Service{deps: deps}
}

// Register adds every command to d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register("refresh", s.Refresh, dispatcher.Logged())
	d.Register("select", s.Select, dispatcher.Logged())
	d.Register("focus", s.Focus)
	d.Register("click", s.Click, dispatcher.Logged())
	d.Register("recognize", s.Recognize, dispatcher.Logged())
	d.Register("status", s.Status)
	if s.deps.SetPosition != nil {
		d.Register("position", s.Position, dispatcher.Logged())
	}
}

func usage(format string) error {
	return fmt.Errorf("%w: %s", ErrUsage, format)
}

// Refresh handles "refresh <url> <layer> [lat lon]".
func (s *Service) Refresh(c dispatcher.Command) (any, error) {
	if len(c.Args) != 2 && len(c.Args) != 4 {
		return nil, usage("refresh <url> <layer> [lat lon]")
	}
	req := core.RefreshRequest{URL: c.Args[0], LayerName: c.Args[1]}
	if len(c.Args) == 4 {
		lat, err := strconv.ParseFloat(c.Args[2], 64)
		if err != nil {
			return nil, usage("refresh <url> <layer> [lat lon]")
		}
		lon, err := strconv.ParseFloat(c.Args[3], 64)
		if err != nil {
			return nil, usage("refresh <url> <layer> [lat lon]")
		}
		req.Latitude, req.Longitude = &lat, &lon
	}
	s.deps.Loop.RequestRefresh(req)
	return "ok", nil
}

// Select handles "select <n>", choosing the n-th (1-based) directory item.
func (s *Service) Select(c dispatcher.Command) (any, error) {
	if len(c.Args) != 1 {
		return nil, usage("select <n>")
	}
	n, err := strconv.Atoi(c.Args[0])
	if err != nil {
		return nil, usage("select <n>")
	}
	out := s.deps.Loop.Outputs()
	if !out.WaitingForLayerSelection {
		return nil, ErrNotSelecting
	}
	if n < 1 || n > len(out.LayerItems) {
		return nil, fmt.Errorf("%w: select 1..%d", ErrUsage, len(out.LayerItems))
	}
	item := out.LayerItems[n-1]
	s.deps.Loop.RequestRefresh(core.RefreshRequest{URL: item.URL, LayerName: item.LayerName})
	return item.LayerName, nil
}

// Focus handles "focus <poiId> <on|off>".
func (s *Service) Focus(c dispatcher.Command) (any, error) {
	if len(c.Args) != 2 {
		return nil, usage("focus <poiId> <on|off>")
	}
	id, err := strconv.ParseInt(c.Args[0], 10, 64)
	if err != nil {
		return nil, usage("focus <poiId> <on|off>")
	}
	var on bool
	switch strings.ToLower(c.Args[1]) {
	case "on":
		on = true
	case "off":
	default:
		return nil, usage("focus <poiId> <on|off>")
	}
	s.deps.Driver.Focus(id, on)
	return "ok", nil
}

// Click handles "click <poiId>".
func (s *Service) Click(c dispatcher.Command) (any, error) {
	if len(c.Args) != 1 {
		return nil, usage("click <poiId>")
	}
	id, err := strconv.ParseInt(c.Args[0], 10, 64)
	if err != nil {
		return nil, usage("click <poiId>")
	}
	s.deps.Driver.Click(id)
	return "ok", nil
}

// Recognize handles "recognize <triggerIndex>".
func (s *Service) Recognize(c dispatcher.Command) (any, error) {
	if len(c.Args) != 1 {
		return nil, usage("recognize <triggerIndex>")
	}
	index, err := strconv.Atoi(c.Args[0])
	if err != nil || index < 0 {
		return nil, usage("recognize <triggerIndex>")
	}
	s.deps.Driver.Recognize(index)
	return "ok", nil
}

// Position handles "position <lat> <lon>", moving the device.
func (s *Service) Position(c dispatcher.Command) (any, error) {
	if len(c.Args) != 2 {
		return nil, usage("position <lat> <lon>")
	}
	lat, err := strconv.ParseFloat(c.Args[0], 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, usage("position <lat> <lon>")
	}
	lon, err := strconv.ParseFloat(c.Args[1], 64)
	if err != nil || lon < -180 || lon > 180 {
		return nil, usage("position <lat> <lon>")
	}
	s.deps.SetPosition(core.Position{Lat: lat, Lon: lon})
	return "ok", nil
}

// Status returns the current status.
func (s *Service) Status(dispatcher.Command) (any, error) {
	if s.deps.Status != nil {
		return s.deps.Status(), nil
	}
	return s.deps.Loop.Outputs(), nil
}

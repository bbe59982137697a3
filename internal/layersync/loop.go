// Package layersync runs the layer synchronization loop: fetch, reconcile,
// apply, wait, repeat.
package layersync

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arpoise/arclient/internal/api"
	"github.com/arpoise/arclient/internal/cache"
	"github.com/arpoise/arclient/internal/channel"
	"github.com/arpoise/arclient/internal/reconcile"
	"github.com/arpoise/arclient/internal/scene"
	"github.com/arpoise/arclient/internal/state"
	"github.com/arpoise/arclient/pkg/core"
)

// ErrNoContent is returned when the first cycle places nothing.
var ErrNoContent = errors.New("no content")

// DefaultNoContentMessage is shown when no layer supplies a noPoisMessage.
const DefaultNoContentMessage = "Sorry, there are no augments at your location!"

// NoContentError carries the message displayed for an empty scene.
type NoContentError struct {
	Message string
}

func (e *NoContentError) Error() string { return e.Message }

func (e *NoContentError) Is(target error) bool { return target == ErrNoContent }

// State is the loop's position in its cycle.
type State int

const (
	AwaitingPosition State = iota
	Polling
	LayerSelectionWait
	Reconciling
	Idle
	Error
	Stopped
)

var stateNames = [...]string{"awaiting_position", "polling", "layer_selection_wait", "reconciling", "idle", "error", "stopped"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Positioner supplies the device position. Raw is unfiltered; the loop
// starts once it is known.
type Positioner interface {
	Filtered() core.Position
	Raw() core.Position
}

// LayerFetcher downloads all pages of a layer.
type LayerFetcher interface {
	FetchLayer(ctx context.Context, req api.Request) (*api.Result, error)
}

// ResourceCache fetches bundles and trigger images once per session.
type ResourceCache interface {
	Bundle(ctx context.Context, url string) (*cache.Bundle, error)
	Image(ctx context.Context, url string) (*cache.Image, error)
}

// Starter is told when the first objects have been placed.
type Starter interface {
	Start(t time.Time)
}

// Config holds the loop settings.
type Config struct {
	DirectoryURL   string
	DirectoryLayer string
	IconBundleURL  string
	Variant        api.Variant
	PositionPoll   time.Duration
	RefreshPoll    time.Duration
	EventBuffer    int
}

// DefaultConfig returns the stock directory and poll intervals.
func DefaultConfig() Config {
	return Config{
		DirectoryURL:   "http://www.arpoise.com/cgi-bin/ArpoiseDirectory.cgi",
		DirectoryLayer: "Arpoise-Directory",
		IconBundleURL:  "www.arpoise.com/AB/arpoiseicons.ace",
		Variant:        api.Arpoise,
		PositionPoll:   10 * time.Millisecond,
		RefreshPoll:    100 * time.Millisecond,
		EventBuffer:    64,
	}
}

// Deps are the collaborators of the loop. Driver, Inner and Logger are optional.
type Deps struct {
	Fetcher      LayerFetcher
	Cache        ResourceCache
	State        *state.ArObjectState
	Materializer *scene.Materializer
	Inner        *scene.InnerLayers
	Driver       Starter
	Positioner   Positioner
	Sinks        []Sink
	Logger       *slog.Logger
}

// Outputs are the values the loop exposes to collaborators.
type Outputs struct {
	State                    State            `json:"state"`
	Cycle                    int64            `json:"cycle"`
	URL                      string           `json:"url"`
	LayerName                string           `json:"layerName"`
	ErrorMessage             string           `json:"errorMessage,omitempty"`
	InformationMessage       string           `json:"informationMessage,omitempty"`
	ShowInfo                 bool             `json:"showInfo"`
	MenuEnabled              bool             `json:"menuEnabled"`
	HeaderTitle              string           `json:"headerTitle,omitempty"`
	LayerItems               []core.LayerItem `json:"layerItems,omitempty"`
	WaitingForLayerSelection bool             `json:"waitingForLayerSelection"`
	IsNewLayer               bool             `json:"isNewLayer"`
	ApplyKalmanFilter        bool             `json:"applyKalmanFilter"`
	AreaSize                 int              `json:"areaSize"`
	AreaWidth                int              `json:"areaWidth"`
	RefreshInterval          float64          `json:"refreshInterval"`
	StartTick                time.Time        `json:"startTick"`
}

// Loop is the synchronization loop. Run drives it; the other methods are
// safe for concurrent use.
type Loop struct {
	cfg    Config
	deps   Deps
	engine *reconcile.Engine
	logger *slog.Logger
	mt     *metrics

	refresh  atomic.Pointer[core.RefreshRequest]
	failures chan error

	mu  sync.RWMutex
	out Outputs

	events channel.Channel[Event]

	// owned by the Run goroutine
	url       string
	layerName string
	count     int64
	fixedLat  *float64
	fixedLon  *float64
	started   bool
}

// New creates a loop starting at the configured directory.
func New(cfg Config, deps Deps) (*Loop, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Inner == nil {
		deps.Inner = scene.NewInnerLayers()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	l := &Loop{
		cfg:       cfg,
		deps:      deps,
		engine:    reconcile.New(),
		logger:    deps.Logger,
		failures:  make(chan error, 1),
		url:       cfg.DirectoryURL,
		layerName: cfg.DirectoryLayer,
		out: Outputs{
			ApplyKalmanFilter: true,
			AreaSize:          -1,
			AreaWidth:         -1,
		},
	}
	mt, err := newMetrics(func() int { return deps.State.Summary().Objects })
	if err != nil {
		return nil, err
	}
	l.mt = mt
	return l, nil
}

// RequestRefresh asks the loop to query another layer. The last request
// before the loop checks wins.
func (l *Loop) RequestRefresh(req core.RefreshRequest) {
	l.refresh.Store(&req)
}

// Fail reports a failure found outside the loop, such as a placement error
// of the tick driver. It is handled like a failed cycle.
func (l *Loop) Fail(err error) {
	select {
	case l.failures <- err:
	default:
	}
}

// Outputs returns a copy of the collaborator outputs.
func (l *Loop) Outputs() Outputs {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o := l.out
	o.LayerItems = slices.Clone(l.out.LayerItems)
	return o
}

// TakeNewLayer reports and clears the new layer flag.
func (l *Loop) TakeNewLayer() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := l.out.IsNewLayer
	l.out.IsNewLayer = false
	return v
}

func (l *Loop) update(fn func(o *Outputs)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.out)
}

func (l *Loop) setState(s State) {
	l.update(func(o *Outputs) { o.State = s })
}

// Run executes cycles until ctx is done. A failed cycle stops
// synchronization until a refresh request arrives.
func (l *Loop) Run(ctx context.Context) error {
	l.events = channel.New[Event](l.cfg.EventBuffer)
	fanOut := make(chan struct{})
	go func() {
		defer close(fanOut)
		for e := range l.events.Receive() {
			for _, s := range l.deps.Sinks {
				s.Publish(e)
			}
		}
	}()
	defer func() {
		l.setState(Stopped)
		l.events.Close()
		<-fanOut
	}()

	l.setState(AwaitingPosition)
	if err := l.awaitPosition(ctx); err != nil {
		return err
	}

	for {
		wait, err := l.cycle(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if err := l.recover(ctx, err); err != nil {
				return err
			}
			continue
		}
		if wait < 0 {
			continue
		}

		l.setState(Idle)
		req, err := l.awaitRefresh(ctx, wait)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if err := l.recover(ctx, err); err != nil {
				return err
			}
			continue
		}
		if req != nil {
			l.apply(req)
		}
	}
}

// recover records a terminal error and blocks until a refresh request
// clears it.
func (l *Loop) recover(ctx context.Context, err error) error {
	l.fail(err)
	for {
		req, werr := l.awaitRefresh(ctx, 0)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if werr != nil {
			l.logger.Warn("Failure ignored while stopped", "error", werr)
			continue
		}
		l.update(func(o *Outputs) { o.ErrorMessage = "" })
		l.apply(req)
		return nil
	}
}

func (l *Loop) fail(err error) {
	msg := err.Error()
	l.update(func(o *Outputs) {
		o.State = Error
		o.ErrorMessage = msg
	})
	l.mt.failed(err)
	l.logger.Error("Synchronization stopped", "error", err, "layer", l.layerName, "cycle", l.count)
	l.publish(Event{Kind: EventError, Message: msg, ErrorKind: ErrorKind(err)})
}

func (l *Loop) apply(req *core.RefreshRequest) {
	l.count = 0
	l.layerName = req.LayerName
	l.url = req.URL
	l.fixedLat = req.Latitude
	l.fixedLon = req.Longitude
	l.logger.Info("Refresh requested", "url", l.url, "layer", l.layerName)
}

func (l *Loop) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.Cycle = l.count
	if e.URL == "" {
		e.URL = l.url
	}
	if e.Layer == "" {
		e.Layer = l.layerName
	}
	if !l.events.TrySend(e) {
		l.mt.dropped.Add(context.Background(), 1)
		l.logger.Warn("Event dropped, sinks are behind", "kind", e.Kind, "queued", l.events.Len())
	}
}

func (l *Loop) awaitPosition(ctx context.Context) error {
	t := time.NewTicker(l.cfg.PositionPoll)
	defer t.Stop()
	for l.deps.Positioner.Raw().IsZero() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// awaitRefresh waits up to d for a refresh request; d <= 0 waits forever.
// It returns nil without error when d elapses.
func (l *Loop) awaitRefresh(ctx context.Context, d time.Duration) (*core.RefreshRequest, error) {
	var deadline <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}
	poll := time.NewTicker(l.cfg.RefreshPoll)
	defer poll.Stop()

	for {
		if req := l.refresh.Swap(nil); req != nil {
			return req, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-l.failures:
			return nil, err
		case <-deadline:
			return nil, nil
		case <-poll.C:
		}
	}
}

// usedPosition is the filtered position with the fixed device position of
// the last refresh request applied.
func (l *Loop) usedPosition() core.Position {
	p := l.deps.Positioner.Filtered()
	if l.fixedLat != nil {
		p.Lat = *l.fixedLat
	}
	if l.fixedLon != nil {
		p.Lon = *l.fixedLon
	}
	return p
}

// cycle runs one fetch and reconcile pass. It returns how long to idle
// afterwards: zero waits for a refresh request, negative polls again at once.
func (l *Loop) cycle(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	l.count++
	l.setState(Polling)
	l.update(func(o *Outputs) { o.Cycle = l.count })

	filtered := l.deps.Positioner.Filtered()
	used := l.usedPosition()

	res, err := l.deps.Fetcher.FetchLayer(ctx, api.Request{
		BaseURL:   l.url,
		LayerName: l.layerName,
		Position:  used,
		Device:    filtered,
		Count:     l.count,
	})
	if err != nil {
		return 0, err
	}
	l.mt.pages.Add(ctx, int64(res.Requests))
	l.url, l.layerName = res.BaseURL, res.LayerName
	layers := res.Layers

	menu := true
	for _, layer := range layers {
		menu = menu && bool(layer.ShowMenuButton)
	}
	l.update(func(o *Outputs) {
		o.URL, o.LayerName = l.url, l.layerName
		o.MenuEnabled = menu
	})

	if _, err := l.deps.Cache.Bundle(ctx, l.cfg.IconBundleURL); err != nil {
		return 0, err
	}

	if items := l.directoryItems(layers); len(items) > 0 {
		return -1, l.selectLayer(ctx, items)
	}

	l.setState(Reconciling)
	if err := l.expandInnerLayers(ctx, layers, used, filtered); err != nil {
		return 0, err
	}
	if err := l.fetchResources(ctx, layers); err != nil {
		return 0, err
	}

	settings := reconcile.Fold(layers)
	if settings.HeaderTitle != "" {
		l.update(func(o *Outputs) { o.HeaderTitle = settings.HeaderTitle })
		l.publish(Event{Kind: EventHeader, Message: settings.HeaderTitle})
	}

	var existing []*state.ArObject
	if l.started {
		existing = l.deps.State.Objects()
	}
	diff := l.engine.Reconcile(existing, layers, used)
	l.deps.Materializer.SetBleaching(l.engine.Bleaching())
	l.applySettings(diff.Settings)

	ev := Event{
		Kind:     EventCycle,
		Pages:    res.Requests,
		Position: used,
		Updated:  len(diff.Update),
		Deleted:  len(diff.Delete),
	}

	if !l.started {
		batch, err := l.deps.Materializer.Materialize(diff.Create, used)
		if err != nil {
			return 0, err
		}
		if len(batch.Objects) == 0 && len(batch.Triggers) == 0 && !l.cfg.Variant.DirectoryBrowsing {
			msg := settings.NoPoisMessage
			if msg == "" {
				msg = DefaultNoContentMessage
			}
			return 0, &NoContentError{Message: msg}
		}
		l.deps.State.Commit(batch)
		l.started = true
		now := time.Now()
		if l.deps.Driver != nil {
			l.deps.Driver.Start(now)
		}
		l.update(func(o *Outputs) { o.StartTick = now })
		ev.Created = len(batch.Objects)
		ev.Triggers = len(batch.Triggers)
	} else {
		changes := diff.Changes
		changes.Origin = &used
		l.deps.State.Merge(changes)
		ev.Created = len(diff.Create)
	}
	l.update(func(o *Outputs) { o.IsNewLayer = true })

	ev.Objects = l.deps.State.Summary().Objects
	ev.Duration = time.Since(start)
	l.mt.cycles.Add(ctx, 1)
	l.publish(ev)
	l.logger.Debug("Cycle complete",
		"cycle", l.count, "layer", l.layerName, "pages", res.Requests,
		"created", ev.Created, "updated", ev.Updated, "deleted", ev.Deleted)

	interval := l.Outputs().RefreshInterval
	if interval < 1 {
		return 0, nil
	}
	return time.Duration(interval * float64(time.Second)), nil
}

func (l *Loop) applySettings(s reconcile.Settings) {
	var info bool
	l.update(func(o *Outputs) {
		o.ApplyKalmanFilter = s.ApplyKalmanFilter
		info = o.InformationMessage != s.InformationMessage || o.ShowInfo != s.ShowInfo
		o.InformationMessage = s.InformationMessage
		o.ShowInfo = s.ShowInfo
		o.AreaSize = s.AreaSize
		o.AreaWidth = s.AreaWidth
		if s.RefreshInterval >= 1 {
			o.RefreshInterval = s.RefreshInterval
		}
	})
	if info && s.InformationMessage != "" {
		l.publish(Event{Kind: EventInfo, Message: s.InformationMessage})
	}
}

func (l *Loop) directoryItems(layers []*core.Layer) []core.LayerItem {
	var items []core.LayerItem
	for _, layer := range layers {
		if layer.Layer != l.cfg.DirectoryLayer {
			continue
		}
		for _, p := range layer.Hotspots {
			if p != nil {
				items = append(items, core.LayerItemFromPoi(p))
			}
		}
	}
	return items
}

// selectLayer publishes the directory and waits for the user's choice.
func (l *Loop) selectLayer(ctx context.Context, items []core.LayerItem) error {
	l.update(func(o *Outputs) {
		o.State = LayerSelectionWait
		o.LayerItems = items
		o.WaitingForLayerSelection = true
	})
	defer l.update(func(o *Outputs) { o.WaitingForLayerSelection = false })
	l.publish(Event{Kind: EventLayerItems, Items: items})

	req, err := l.awaitRefresh(ctx, 0)
	if err != nil {
		return err
	}
	l.apply(req)
	return nil
}

// expandInnerLayers fetches every inner layer referenced by a Poi once per
// session. Layers referenced from a default layer are requested at (0,0).
func (l *Loop) expandInnerLayers(ctx context.Context, layers []*core.Layer, used, filtered core.Position) error {
	refs := make(map[string]bool)
	var order []string
	for _, layer := range layers {
		for _, p := range layer.Hotspots {
			if p == nil {
				continue
			}
			name := p.InnerLayerName()
			if name == "" {
				continue
			}
			if _, seen := refs[name]; !seen {
				order = append(order, name)
			}
			refs[name] = bool(layer.IsDefaultLayer)
		}
	}

	for _, name := range order {
		if _, ok := l.deps.Inner.Get(name); ok {
			continue
		}
		if name == l.layerName {
			l.deps.Inner.Set(name, layers)
			continue
		}
		pos := used
		if refs[name] {
			pos = core.Position{}
		}
		res, err := l.deps.Fetcher.FetchLayer(ctx, api.Request{
			BaseURL:    l.url,
			LayerName:  name,
			Position:   pos,
			Device:     filtered,
			InnerLayer: true,
		})
		if err != nil {
			return err
		}
		l.mt.pages.Add(ctx, int64(res.Requests))
		l.deps.Inner.Set(name, res.Layers)
	}
	return nil
}

// fetchResources loads the bundles and trigger images of the primary and
// all inner layers into the cache.
func (l *Loop) fetchResources(ctx context.Context, layers []*core.Layer) error {
	all := slices.Clone(layers)
	l.deps.Inner.Each(func(_ string, pages []*core.Layer) {
		all = append(all, pages...)
	})

	var bundles, images []string
	for _, layer := range all {
		for _, p := range layer.Hotspots {
			if p == nil {
				continue
			}
			if u := p.BaseURL(); u != "" && !slices.Contains(bundles, u) {
				bundles = append(bundles, u)
			}
			if u := p.TriggerImageURL(); u != "" && !slices.Contains(images, u) {
				images = append(images, u)
			}
		}
	}

	for _, u := range bundles {
		if _, err := l.deps.Cache.Bundle(ctx, u); err != nil {
			return err
		}
	}
	for _, u := range images {
		if _, err := l.deps.Cache.Image(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/arpoise/arclient/internal/api"
	"github.com/arpoise/arclient/internal/cache"
	"github.com/arpoise/arclient/internal/config"
	"github.com/arpoise/arclient/internal/dispatcher"
	"github.com/arpoise/arclient/internal/handlers"
	"github.com/arpoise/arclient/internal/influx"
	"github.com/arpoise/arclient/internal/journal"
	"github.com/arpoise/arclient/internal/layersync"
	"github.com/arpoise/arclient/internal/logging"
	"github.com/arpoise/arclient/internal/monitor"
	intOtel "github.com/arpoise/arclient/internal/otel"
	"github.com/arpoise/arclient/internal/scene"
	"github.com/arpoise/arclient/internal/scenelink"
	"github.com/arpoise/arclient/internal/state"
	"github.com/arpoise/arclient/pkg/core"
	"github.com/arpoise/arclient/pkg/streaming"
	"github.com/rs/zerolog"
)

// app holds every component of a running client.
type app struct {
	start    time.Time
	deviceID string

	logFile *os.File
	slogs   *logging.SlogManager
	logger  *slog.Logger
	otel    *intOtel.Provider

	client    *api.Client
	resources *cache.Resources
	state     *state.ArObjectState
	driver    *scene.Driver
	position  *staticPositioner
	loop      *layersync.Loop
	commands  *dispatcher.Dispatcher

	journal *journal.Manager
	influx  *influx.Manager
	link    *scenelink.Link
	monitor *monitor.Service
}

// newAPIClient builds the fetch pipeline client from the loaded config.
func newAPIClient(userID string, logger *slog.Logger) (*api.Client, error) {
	cc := config.GetClientConfig()
	hc := config.GetHTTPConfig()
	variant, err := api.ParseVariant(cc.Variant)
	if err != nil {
		return nil, err
	}
	platform, err := api.ParsePlatform(cc.OS)
	if err != nil {
		return nil, err
	}
	return api.New(api.Config{
		Variant:            variant,
		Platform:           platform,
		Bundle:             cc.Bundle,
		Build:              cc.Build,
		UserID:             userID,
		DirectoryURL:       config.GetDirectoryConfig().URL,
		PollInterval:       hc.PollInterval,
		LayerMaxWait:       hc.LayerMaxWait,
		BundleMaxWait:      hc.BundleMaxWait,
		ImageMaxWait:       hc.ImageMaxWait,
		LayerTimeout:       hc.LayerTimeout,
		BundleTimeout:      hc.BundleTimeout,
		InsecureSkipVerify: cc.InsecureSkipVerify,
	}, logger), nil
}

// setupLogging opens the session log file and builds the slog fan-out.
// Without a logs dir records go to stderr.
func (a *app) setupLogging() error {
	a.slogs = logging.NewSlogManager()
	level := config.GetString("logLevel")

	var out io.Writer = os.Stderr
	if dir := config.GetString("logsDir"); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
		path := logging.LogFilePath(dir, "arclient", a.start)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		out = f
	}

	otelCfg := config.GetOTelConfig()
	var exportTo io.Writer
	if a.logFile != nil {
		exportTo = a.logFile
	}
	p, err := intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		BatchTimeout:   otelCfg.BatchTimeout,
		LogWriter:      exportTo,
		MetricWriter:   exportTo,
		MetricInterval: time.Minute,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	a.otel = p

	opts := []logging.Option{
		logging.WithName("arclient"),
		logging.WithContext(a.logContext),
	}
	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := gelf.NewWriter(gl.Address)
		if err != nil {
			return fmt.Errorf("connect graylog: %w", err)
		}
		opts = append(opts, logging.WithGELF(w))
	}

	a.slogs.Setup(out, level, p.LoggerProvider(), opts...)
	a.logger = a.slogs.Logger()
	return nil
}

// logContext adds the loop state to every record once the loop exists.
func (a *app) logContext() []slog.Attr {
	if a.loop == nil {
		return nil
	}
	o := a.loop.Outputs()
	attrs := []slog.Attr{
		slog.String("state", o.State.String()),
		slog.Int64("cycle", o.Cycle),
	}
	if o.LayerName != "" {
		attrs = append(attrs, slog.String("layer", o.LayerName))
	}
	return attrs
}

// componentLogger returns a zerolog logger writing to the session log.
func (a *app) componentLogger(name string) zerolog.Logger {
	var w io.Writer = os.Stderr
	if a.logFile != nil {
		w = a.logFile
	}
	lvl, err := zerolog.ParseLevel(config.GetString("logLevel"))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("component", name).Logger()
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{start: time.Now()}
	if err := a.setupLogging(); err != nil {
		return nil, err
	}

	cc := config.GetClientConfig()
	id, err := deviceID(cc)
	if err != nil {
		return nil, err
	}
	a.deviceID = id

	a.client, err = newAPIClient(id, a.logger)
	if err != nil {
		return nil, err
	}

	sc := config.GetSyncConfig()
	a.position = newStaticPositioner(core.Position{Lat: sc.Latitude, Lon: sc.Longitude})
	a.resources = cache.New(a.client)
	inner := scene.NewInnerLayers()
	mat := scene.NewMaterializer(a.resources, inner)
	a.state = state.New()
	a.driver = scene.NewDriver(a.state, mat, a.position, a.logger)

	a.commands, err = dispatcher.New(a.logger)
	if err != nil {
		return nil, err
	}

	sinks := a.setupSinks(ctx)

	dc := config.GetDirectoryConfig()
	a.loop, err = layersync.New(layersync.Config{
		DirectoryURL:   dc.URL,
		DirectoryLayer: dc.Layer,
		IconBundleURL:  dc.IconBundleURL,
		Variant:        a.client.Config().Variant,
		PositionPoll:   sc.PositionPoll,
		RefreshPoll:    sc.RefreshPoll,
		EventBuffer:    sc.EventBuffer,
	}, layersync.Deps{
		Fetcher:      a.client,
		Cache:        a.resources,
		State:        a.state,
		Materializer: mat,
		Inner:        inner,
		Driver:       a.driver,
		Positioner:   a.position,
		Sinks:        sinks,
		Logger:       a.logger,
	})
	if err != nil {
		return nil, err
	}

	if mc := config.GetMonitorConfig(); mc.Enabled {
		var recorders monitor.Recorders
		if a.journal != nil {
			recorders = append(recorders, a.journal)
		}
		if a.influx != nil {
			recorders = append(recorders, a.influx)
		}
		deps := monitor.Dependencies{
			Loop:       a.loop,
			State:      a.state,
			Cache:      a.resources,
			Logger:     a.logger,
			StatusFile: mc.StatusFile,
			Interval:   mc.Interval,
		}
		if len(recorders) > 0 {
			deps.Recorder = recorders
		}
		a.monitor = monitor.NewService(deps)
	}

	handlers.NewService(handlers.Dependencies{
		Loop:        a.loop,
		Driver:      a.driver,
		Status:      a.status,
		SetPosition: a.position.Set,
	}).Register(a.commands)

	return a, nil
}

// setupSinks opens the optional journal, influx and scene link outputs.
// A sink that cannot be opened is logged and left out.
func (a *app) setupSinks(ctx context.Context) []layersync.Sink {
	var sinks []layersync.Sink
	cc := config.GetClientConfig()

	jm := journal.NewManager(a.componentLogger("journal"))
	jc := config.GetJournalConfig()
	switch err := jm.Open(jc, config.GetDBConfig()); {
	case errors.Is(err, journal.ErrDisabled):
	case err != nil:
		a.logger.Error("Failed to open journal", "error", err)
	default:
		if err := jm.Setup(journal.SessionInfo{DeviceID: a.deviceID, Variant: cc.Variant, Platform: cc.OS, Build: cc.Build}); err != nil {
			a.logger.Error("Failed to set up journal", "error", err)
			_ = jm.Close()
			break
		}
		jm.StartDumps(jc.DumpInterval)
		a.journal = jm
		sinks = append(sinks, jm)
	}

	ic := config.GetInfluxConfig()
	backup := filepath.Join(config.GetString("logsDir"), fmt.Sprintf("arclient_influx_%s.log.gz", a.start.Format("20060102_150405")))
	im := influx.NewManager(a.componentLogger("influx"), backup)
	switch err := im.Connect(ctx, ic); {
	case errors.Is(err, influx.ErrDisabled):
	case err != nil:
		a.logger.Error("Failed to set up influx", "error", err)
	default:
		a.influx = im
		sinks = append(sinks, im)
	}

	if lc := config.GetSceneLinkConfig(); lc.Enabled {
		a.link = scenelink.New(scenelink.Config{
			URL:    lc.URL,
			Secret: lc.Secret,
			Hello: streaming.HelloPayload{
				DeviceID: a.deviceID,
				Variant:  cc.Variant,
				Platform: cc.OS,
				Build:    cc.Build,
			},
		}, a.state, a.commands, a.logger)
		sinks = append(sinks, a.link)
	}
	return sinks
}

func (a *app) status() any {
	if a.monitor != nil {
		return a.monitor.GetStatus()
	}
	return struct {
		Loop    layersync.Outputs `json:"loop"`
		Objects state.Summary     `json:"objects"`
		Cache   cache.Stats       `json:"cache"`
	}{a.loop.Outputs(), a.state.Summary(), a.resources.Stats()}
}

// close releases every component in reverse start order.
func (a *app) close() error {
	var errs []error
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.link != nil {
		errs = append(errs, a.link.Close())
	}
	if a.commands != nil {
		a.commands.Close()
	}
	if a.influx != nil {
		errs = append(errs, a.influx.Close())
	}
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.otel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.otel.Shutdown(ctx))
		cancel()
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
	}
	return errors.Join(errs...)
}

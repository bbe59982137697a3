package layersync

import (
	"context"
	"errors"
	"fmt"

	"github.com/arpoise/arclient/internal/api"
	"github.com/arpoise/arclient/internal/scene"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/arpoise/arclient/internal/layersync"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	cycles  metric.Int64Counter
	errors  metric.Int64Counter
	pages   metric.Int64Counter
	dropped metric.Int64Counter
	objects metric.Int64ObservableGauge
}

func newMetrics(objects func() int) (*metrics, error) {
	m := meter()
	var (
		mt  metrics
		err error
	)

	mt.cycles, err = m.Int64Counter(
		"layersync.cycles",
		metric.WithDescription("Completed synchronization cycles"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cycles counter: %w", err)
	}

	mt.errors, err = m.Int64Counter(
		"layersync.errors",
		metric.WithDescription("Terminal synchronization errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating errors counter: %w", err)
	}

	mt.pages, err = m.Int64Counter(
		"layersync.fetch.pages",
		metric.WithDescription("Layer page requests, redirected ones included"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pages counter: %w", err)
	}

	mt.dropped, err = m.Int64Counter(
		"layersync.events.dropped",
		metric.WithDescription("Events not delivered because the sinks were behind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	mt.objects, err = m.Int64ObservableGauge(
		"layersync.objects",
		metric.WithDescription("Currently placed objects"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating objects gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mt.objects, int64(objects()))
			return nil
		},
		mt.objects,
	)
	if err != nil {
		return nil, fmt.Errorf("registering objects callback: %w", err)
	}

	return &mt, nil
}

func (m *metrics) failed(err error) {
	m.errors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", ErrorKind(err))))
}

// ErrorKind classifies a loop error for metrics and events.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, api.ErrTimeout):
		return "timeout"
	case errors.Is(err, api.ErrTransport):
		return "transport"
	case errors.Is(err, api.ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, api.ErrParse):
		return "parse"
	case errors.Is(err, api.ErrRedirectLoop):
		return "redirect_loop"
	case errors.Is(err, scene.ErrPlacement):
		return "placement"
	case errors.Is(err, ErrNoContent):
		return "no_content"
	default:
		return "other"
	}
}

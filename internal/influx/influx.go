// Package influx writes synchronization cycle metrics to InfluxDB. When the
// server is unreachable points are appended as line protocol to a gzip
// backup file instead.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/arpoise/arclient/internal/config"
	"github.com/arpoise/arclient/internal/layersync"
	"github.com/arpoise/arclient/internal/monitor"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
)

// Measurement names.
const (
	MeasurementCycle  = "layersync_cycle"
	MeasurementError  = "layersync_error"
	MeasurementStatus = "client_status"
)

// ErrDisabled is returned by Connect when influx is not enabled.
var ErrDisabled = errors.New("influx disabled")

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Org          string
	Bucket       string
	Logger       zerolog.Logger
	BackupPath   string

	mu         sync.Mutex
	backupFile *os.File
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Logger:     log,
		BackupPath: backupPath,
	}
}

// Connect establishes a connection to InfluxDB, or opens the backup file
// when the server does not answer.
func (m *Manager) Connect(ctx context.Context, cfg config.InfluxConfig) error {
	if !cfg.Enabled {
		return ErrDisabled
	}
	m.Org = cfg.Org
	m.Bucket = cfg.Bucket

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", cfg.Protocol, cfg.Host, cfg.Port),
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Warn().Err(err).Str("backupPath", m.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	m.createWriter()
	m.IsValid = true
	m.Logger.Info().Str("bucket", m.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return nil
	}
	if m.BackupPath == "" {
		return errors.New("influx backup path not set")
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.Client.OrganizationsAPI()
	org, err := orgs.FindOrganizationByName(ctx, m.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, m.Org)
		if err != nil {
			return fmt.Errorf("create organization %q: %w", m.Org, err)
		}
	}

	buckets := m.Client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.Bucket); err != nil {
		m.Logger.Info().Str("bucket", m.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = buckets.CreateBucketWithName(ctx, org, m.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 30,
		})
		if err != nil {
			return fmt.Errorf("create bucket %q: %w", m.Bucket, err)
		}
	}
	return nil
}

func (m *Manager) createWriter() {
	m.Writer = m.Client.WriteAPI(m.Org, m.Bucket)

	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	// PointToLineProtocol terminates the line itself.
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := m.BackupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Publish writes cycle and error events as points. It implements
// layersync.Sink.
func (m *Manager) Publish(e layersync.Event) {
	point, ok := PointFromEvent(e)
	if !ok {
		return
	}
	if err := m.WritePoint(point); err != nil {
		m.Logger.Error().Err(err).Str("kind", string(e.Kind)).Msg("Failed to write event point")
	}
}

// RecordStatus writes a monitor snapshot. It implements monitor.Recorder.
func (m *Manager) RecordStatus(st monitor.Status) error {
	point := influxdb2_write.NewPointWithMeasurement(MeasurementStatus).
		AddTag("state", st.Loop.State.String()).
		AddField("cycle", st.Loop.Cycle).
		AddField("objects", st.Objects.Objects).
		AddField("pois", st.Objects.Pois).
		AddField("triggers", st.Objects.Triggers).
		AddField("animations", st.Objects.Animations).
		AddField("bundles", st.Cache.Bundles).
		AddField("images", st.Cache.Images).
		SetTime(st.Time)
	return m.WritePoint(point)
}

// PointFromEvent converts a loop event to a point. Only cycle and error
// events produce one.
func PointFromEvent(e layersync.Event) (*influxdb2_write.Point, bool) {
	var point *influxdb2_write.Point
	switch e.Kind {
	case layersync.EventCycle:
		point = influxdb2_write.NewPointWithMeasurement(MeasurementCycle).
			AddField("cycle", e.Cycle).
			AddField("pages", e.Pages).
			AddField("objects", e.Objects).
			AddField("created", e.Created).
			AddField("updated", e.Updated).
			AddField("deleted", e.Deleted).
			AddField("triggers", e.Triggers).
			AddField("duration_ms", e.Duration.Milliseconds())
	case layersync.EventError:
		point = influxdb2_write.NewPointWithMeasurement(MeasurementError).
			AddTag("kind", e.ErrorKind).
			AddField("cycle", e.Cycle).
			AddField("message", e.Message)
	default:
		return nil, false
	}

	if e.Layer != "" {
		point.AddTag("layer", e.Layer)
	}
	if u, err := url.Parse(e.URL); err == nil && u.Host != "" {
		point.AddTag("host", u.Host)
	}
	point.SetTime(e.Time)
	return point, true
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

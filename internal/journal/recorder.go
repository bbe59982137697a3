package journal

import (
	"encoding/json"
	"fmt"

	"github.com/arpoise/arclient/internal/geo"
	"github.com/arpoise/arclient/internal/layersync"
	"github.com/arpoise/arclient/internal/monitor"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// Publish records a loop event. It implements layersync.Sink; write
// errors are logged.
func (m *Manager) Publish(e layersync.Event) {
	if err := m.Record(e); err != nil {
		m.Logger.Error().Err(err).Str("kind", string(e.Kind)).Msg("Failed to journal event")
	}
}

// Record writes one loop event to its table.
func (m *Manager) Record(e layersync.Event) error {
	if m.DB == nil {
		return ErrNotOpen
	}
	session := m.SessionID()

	switch e.Kind {
	case layersync.EventCycle:
		return m.DB.Create(&Cycle{
			SessionID:  session,
			Time:       e.Time.UTC(),
			Cycle:      e.Cycle,
			URL:        e.URL,
			Layer:      e.Layer,
			Position:   m.point(e),
			Pages:      e.Pages,
			Objects:    e.Objects,
			Created:    e.Created,
			Updated:    e.Updated,
			Deleted:    e.Deleted,
			Triggers:   e.Triggers,
			DurationMs: e.Duration.Milliseconds(),
		}).Error
	case layersync.EventError:
		return m.DB.Create(&Failure{
			SessionID: session,
			Time:      e.Time.UTC(),
			Cycle:     e.Cycle,
			URL:       e.URL,
			Layer:     e.Layer,
			Kind:      e.ErrorKind,
			Message:   e.Message,
			Position:  m.point(e),
		}).Error
	default:
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		return m.DB.Create(&Event{
			SessionID: session,
			Time:      e.Time.UTC(),
			Kind:      string(e.Kind),
			Cycle:     e.Cycle,
			Payload:   datatypes.JSON(payload),
		}).Error
	}
}

// point converts the event position. A position that cannot be encoded is
// stored as an empty point so that the row itself is kept.
func (m *Manager) point(e layersync.Event) geom.Point {
	pt, err := geo.Point(e.Position)
	if err != nil {
		m.Logger.Warn().Err(err).Int64("cycle", e.Cycle).Msg("Storing empty position")
		return geom.Point{}
	}
	return pt
}

// RecordStatus stores a monitor snapshot. It implements monitor.Recorder.
func (m *Manager) RecordStatus(st monitor.Status) error {
	if m.DB == nil {
		return ErrNotOpen
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	return m.DB.Create(&StatusSample{
		SessionID: m.SessionID(),
		Time:      st.Time.UTC(),
		State:     st.Loop.State.String(),
		Cycle:     st.Loop.Cycle,
		Objects:   st.Objects.Objects,
		Pois:      st.Objects.Pois,
		Bundles:   st.Cache.Bundles,
		Images:    st.Cache.Images,
		Payload:   datatypes.JSON(payload),
	}).Error
}

// Cycles returns the cycles of the current session, oldest first.
func (m *Manager) Cycles() ([]Cycle, error) {
	if m.DB == nil {
		return nil, ErrNotOpen
	}
	var out []Cycle
	err := m.DB.Where("session_id = ?", m.SessionID()).Order("id").Find(&out).Error
	return out, err
}

// Failures returns the errors of the current session, oldest first.
func (m *Manager) Failures() ([]Failure, error) {
	if m.DB == nil {
		return nil, ErrNotOpen
	}
	var out []Failure
	err := m.DB.Where("session_id = ?", m.SessionID()).Order("id").Find(&out).Error
	return out, err
}

// Package monitor periodically writes a status snapshot of the running
// client to a file and, optionally, to the journal.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arpoise/arclient/internal/cache"
	"github.com/arpoise/arclient/internal/layersync"
	"github.com/arpoise/arclient/internal/state"
)

// LoopSource exposes the sync loop outputs.
type LoopSource interface {
	Outputs() layersync.Outputs
}

// StateSource exposes the object snapshot counts.
type StateSource interface {
	Summary() state.Summary
}

// CacheSource exposes the resource cache counts.
type CacheSource interface {
	Stats() cache.Stats
}

// Recorder persists status samples.
type Recorder interface {
	RecordStatus(Status) error
}

// Dependencies holds all dependencies of the monitor service. Cache and
// Recorder are optional.
type Dependencies struct {
	Loop       LoopSource
	State      StateSource
	Cache      CacheSource
	Recorder   Recorder
	Logger     *slog.Logger
	StatusFile string
	Interval   time.Duration
}

// Status is one snapshot of the client.
type Status struct {
	Time    time.Time         `json:"time"`
	Uptime  string            `json:"uptime"`
	Loop    layersync.Outputs `json:"loop"`
	Objects state.Summary     `json:"objects"`
	Cache   cache.Stats       `json:"cache"`
}

// Service manages status monitoring.
type Service struct {
	deps    Dependencies
	started time.Time

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps, started: time.Now()}
}

// IsRunning returns whether the status monitor is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus collects a snapshot now.
func (s *Service) GetStatus() Status {
	st := Status{
		Time:    time.Now().UTC(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Loop:    s.deps.Loop.Outputs(),
		Objects: s.deps.State.Summary(),
	}
	if s.deps.Cache != nil {
		st.Cache = s.deps.Cache.Stats()
	}
	return st
}

// WriteStatus writes a snapshot to the status file, replacing it
// atomically.
func (s *Service) WriteStatus(st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	tmp := s.deps.StatusFile + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if err := os.Rename(tmp, s.deps.StatusFile); err != nil {
		return fmt.Errorf("replace status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return nil
	}
	if dir := filepath.Dir(s.deps.StatusFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create status dir: %w", err)
		}
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.stopChan, s.done)
	return nil
}

func (s *Service) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	logger := s.deps.Logger
	logger.Debug("Status monitor started", "file", s.deps.StatusFile, "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st := s.GetStatus()
			if err := s.WriteStatus(st); err != nil {
				logger.Error("Error writing status file", "error", err)
			}
			if s.deps.Recorder != nil {
				if err := s.deps.Recorder.RecordStatus(st); err != nil {
					logger.Error("Error recording status", "error", err)
				}
			}
		}
	}
}

// Stop stops the status monitor and waits for its goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}

// Recorders fans a status sample out to several recorders.
type Recorders []Recorder

// RecordStatus implements Recorder. Every recorder is called; errors are
// joined.
func (rs Recorders) RecordStatus(st Status) error {
	var errs []error
	for _, r := range rs {
		if err := r.RecordStatus(st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

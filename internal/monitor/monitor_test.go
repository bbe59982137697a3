package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/arpoise/arclient/internal/cache"
	"github.com/arpoise/arclient/internal/layersync"
	"github.com/arpoise/arclient/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoop struct{ out layersync.Outputs }

func (f fakeLoop) Outputs() layersync.Outputs { return f.out }

type fakeState struct{ sum state.Summary }

func (f fakeState) Summary() state.Summary { return f.sum }

type fakeCache struct{}

func (fakeCache) Stats() cache.Stats { return cache.Stats{Bundles: 2, Images: 1, Fetches: 3} }

type recorder struct {
	mu      sync.Mutex
	samples []Status
}

func (r *recorder) RecordStatus(s Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func newService(t *testing.T, rec Recorder) (*Service, string) {
	t.Helper()
	file := filepath.Join(t.TempDir(), "status", "arclient.status.json")
	s := NewService(Dependencies{
		Loop:       fakeLoop{out: layersync.Outputs{State: layersync.Idle, Cycle: 3, LayerName: "Demo"}},
		State:      fakeState{sum: state.Summary{Objects: 4, Animations: 2}},
		Cache:      fakeCache{},
		Recorder:   rec,
		StatusFile: file,
		Interval:   5 * time.Millisecond,
	})
	return s, file
}

func TestGetStatus(t *testing.T) {
	s, _ := newService(t, nil)

	st := s.GetStatus()
	assert.Equal(t, int64(3), st.Loop.Cycle)
	assert.Equal(t, 4, st.Objects.Objects)
	assert.Equal(t, 2, st.Cache.Bundles)
	assert.False(t, st.Time.IsZero())
}

func TestService_WritesStatusFile(t *testing.T) {
	rec := &recorder{}
	s, file := newService(t, rec)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "starting twice is a no-op")
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		_, err := os.Stat(file)
		return err == nil && rec.count() > 0
	}, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	loop := decoded["loop"].(map[string]any)
	assert.Equal(t, "idle", loop["state"])
	assert.Equal(t, "Demo", loop["layerName"])
	assert.Equal(t, float64(4), decoded["objects"].(map[string]any)["objects"])
}

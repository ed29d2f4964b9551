package topology

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorRoundTrip(t *testing.T) {
	m := NewMirror(filepath.Join(t.TempDir(), "data", "rooms_cache.json"), 24*time.Hour)

	require.NoError(t, m.Write(sampleTopology()))

	got, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(77), got.Seat("Study Room A", "Floor 3", "001"))
	assert.Equal(t, int64(5), got["Study Room A"]["Floor 3"].SpaceID)
}

func TestMirrorMissingFile(t *testing.T) {
	m := NewMirror(filepath.Join(t.TempDir(), "nope.json"), 24*time.Hour)
	_, err := m.Load()
	require.Error(t, err)
}

func TestMirrorRejectsStale(t *testing.T) {
	m := NewMirror(filepath.Join(t.TempDir(), "rooms_cache.json"), 24*time.Hour)
	require.NoError(t, m.Write(sampleTopology()))

	m.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	_, err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stale")
}

func TestMirrorRejectsMissingRooms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rooms_cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"metadata":{"generated_at":"2026-03-01T12:00:00Z"}}`), 0o644))

	m := NewMirror(path, 0)
	_, err := m.Load()
	require.Error(t, err)
}

func TestTopologySeatLookup(t *testing.T) {
	topo := sampleTopology()
	assert.Equal(t, int64(77), topo.Seat("Study Room A", "Floor 3", "001"))
	assert.Zero(t, topo.Seat("Study Room A", "Floor 3", "999"))
	assert.Zero(t, topo.Seat("Study Room A", "Floor 9", "001"))
	assert.Zero(t, topo.Seat("Nowhere", "Floor 3", "001"))
}

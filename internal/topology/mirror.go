package topology

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Mirror is the on-disk JSON copy of the topology. Its shape is fixed by the
// external contract: a metadata block with a generated_at timestamp and a
// rooms object matching Topology.
type Mirror struct {
	Path   string
	MaxAge time.Duration

	now func() time.Time
}

func NewMirror(path string, maxAge time.Duration) *Mirror {
	return &Mirror{Path: path, MaxAge: maxAge, now: time.Now}
}

type mirrorFile struct {
	Metadata mirrorMetadata `json:"metadata"`
	Rooms    Topology       `json:"rooms"`
}

type mirrorMetadata struct {
	GeneratedAt string `json:"generated_at"`
	TotalRooms  int    `json:"total_rooms"`
}

// Load reads the mirror, rejecting missing, malformed or stale files.
func (m *Mirror) Load() (Topology, error) {
	b, err := os.ReadFile(m.Path)
	if err != nil {
		return nil, err
	}

	var f mirrorFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse mirror %s: %w", m.Path, err)
	}
	if f.Rooms == nil {
		return nil, fmt.Errorf("mirror %s: missing rooms object", m.Path)
	}

	generated, err := time.Parse(time.RFC3339, f.Metadata.GeneratedAt)
	if err != nil {
		return nil, fmt.Errorf("mirror %s: bad generated_at: %w", m.Path, err)
	}
	if m.MaxAge > 0 && m.now().Sub(generated) > m.MaxAge {
		return nil, fmt.Errorf("mirror %s: stale (generated %s)", m.Path, f.Metadata.GeneratedAt)
	}

	return f.Rooms, nil
}

// Write replaces the mirror with a fresh snapshot.
func (m *Mirror) Write(t Topology) error {
	f := mirrorFile{
		Metadata: mirrorMetadata{
			GeneratedAt: m.now().Format(time.RFC3339),
			TotalRooms:  len(t),
		},
		Rooms: t,
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.Path), 0o755); err != nil {
		return err
	}
	tmp := m.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.Path)
}

package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/transmitter-sim/model"
)

// ErrNoSnapshot indicates that no snapshot has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Snapshot is the saved state of every antenna aboard one vessel.
type Snapshot struct {
	VesselID string                          `yaml:"vessel_id"`
	SavedAt  time.Time                       `yaml:"saved_at"`
	Antennas map[string]model.PersistedState `yaml:"antennas"`
}

// AntennaIDs returns the saved antenna IDs in sorted order.
func (s *Snapshot) AntennaIDs() []string {
	ids := make([]string, 0, len(s.Antennas))
	for id := range s.Antennas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup returns the saved state of an antenna, or nil.
func (s *Snapshot) Lookup(antennaID string) *model.PersistedState {
	if s == nil {
		return nil
	}
	st, ok := s.Antennas[antennaID]
	if !ok {
		return nil
	}
	return &st
}

// FileStore keeps one YAML snapshot on disk.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file location.
func (f *FileStore) Path() string { return f.path }

// Save writes snap atomically: a temporary file in the same directory is
// renamed over the target.
func (f *FileStore) Save(snap *Snapshot) error {
	raw, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. It returns ErrNoSnapshot when the file does not
// exist.
func (f *FileStore) Load() (*Snapshot, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snap.Antennas == nil {
		snap.Antennas = make(map[string]model.PersistedState)
	}
	return &snap, nil
}

package lookup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNoSnapshot is returned when no persisted snapshot exists yet.
var ErrNoSnapshot = errors.New("lookup: no snapshot available")

// Snapshot is the serializable state of a built index plus the schema it was
// built against, enough for a cold start without touching the sheet API.
type Snapshot struct {
	BuiltAt   time.Time      `json:"built_at"`
	KeyColumn int            `json:"key_column"`
	Headers   []string       `json:"headers"`
	Entries   map[string]int `json:"entries"`
}

// SnapshotStore persists and restores index snapshots.
type SnapshotStore interface {
	Save(snap Snapshot) error
	Load() (Snapshot, error)
}

// FileSnapshotStore keeps the snapshot as a JSON file. Writes go through a
// temp file and rename so readers never observe a partial snapshot, and a
// sibling process watching the path sees exactly one change event.
type FileSnapshotStore struct {
	path string
}

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

func (s *FileSnapshotStore) Path() string {
	return s.path
}

func (s *FileSnapshotStore) Save(snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "snapshot-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (s *FileSnapshotStore) Load() (Snapshot, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// MemorySnapshotStore holds the snapshot in memory for tests.
type MemorySnapshotStore struct {
	mu    sync.Mutex
	snap  Snapshot
	saved bool
}

func (s *MemorySnapshotStore) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.saved = true
	return nil
}

func (s *MemorySnapshotStore) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.saved {
		return Snapshot{}, ErrNoSnapshot
	}
	return s.snap, nil
}

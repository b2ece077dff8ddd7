// Package storage persists the append-only series of portfolio snapshots
// used for trend display. Snapshots are only ever appended, never
// rewritten.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Snapshot is one portfolio-level reading taken after a successful
// analysis run.
type Snapshot struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	NetLiquidity float64   `json:"net_liquidity"`
	NetDelta     float64   `json:"net_delta"`
	BetaWeighted float64   `json:"beta_weighted"`
	DailyTheta   float64   `json:"daily_theta"`
	Leverage     float64   `json:"leverage"`
}

// Interface defines the contract for snapshot persistence.
//
// Implementations must be safe for concurrent use: the analysis loop
// appends while the dashboard reads.
type Interface interface {
	Append(s Snapshot) error
	History() []Snapshot
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)

// JSONStorage keeps the snapshot series in a single JSON file, written
// atomically via a temp file and rename.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *historyFile
}

type historyFile struct {
	Snapshots   []Snapshot `json:"snapshots"`
	LastUpdated time.Time  `json:"last_updated"`
}

// NewJSONStorage opens (or creates) the snapshot history at path.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: path,
		data:     &historyFile{},
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("loading snapshot history: %w", err)
		}
	}

	return s, nil
}

func (s *JSONStorage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, s.data)
}

// Append adds one snapshot to the series and persists it.
func (s *JSONStorage) Append(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Snapshots = append(s.data.Snapshots, snap)
	s.data.LastUpdated = time.Now()

	return s.save()
}

// History returns a copy of every snapshot in append order.
func (s *JSONStorage) History() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, len(s.data.Snapshots))
	copy(out, s.data.Snapshots)
	return out
}

// save writes the history file atomically. Caller must hold the lock.
func (s *JSONStorage) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}

// Package seeds records the random seeds behind each backtest session
// with JSON persistence, so any run's instrument sample can be redrawn
// later from the same numbers.
package seeds

import (
	"encoding/json"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// RunSeed pairs a run with the seed that drew its instrument sample.
type RunSeed struct {
	RunID int   `json:"run_id"`
	Seed  int64 `json:"seed"`
}

// Record captures everything needed to replay a session's sampling.
type Record struct {
	SessionID   string    `json:"session_id"`
	Strategy    string    `json:"strategy"`
	BaseSeed    int64     `json:"base_seed"`
	SampleSize  int       `json:"sample_size"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Runs        []RunSeed `json:"runs"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store holds seed records in memory with JSON persistence.
type Store struct {
	mu       sync.RWMutex
	records  map[string]Record // session ID -> record
	filePath string
	log      *slog.Logger
}

// NewStore creates a Store, loading persisted state from filePath.
func NewStore(filePath string, log *slog.Logger) *Store {
	s := &Store{
		records:  make(map[string]Record),
		filePath: filePath,
		log:      log,
	}
	s.load()
	return s
}

// Put stores a session's record and persists to disk. A failed write is
// logged rather than returned; the seeds also live in the result store,
// so the JSON file is a convenience copy.
func (s *Store) Put(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.SessionID] = rec
	s.flush()
}

// Get returns the record for a session, if present.
func (s *Store) Get(sessionID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[sessionID]
	return rec, ok
}

// List returns all records, newest first.
func (s *Store) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

// load reads the JSON file into memory.
func (s *Store) load() {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return // File doesn't exist yet — start empty.
	}
	var loaded map[string]Record
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.log.Warn("loading seeds file", "error", err)
		return
	}
	s.records = loaded
	s.log.Info("loaded seed records", "sessions", len(loaded))
}

// flush writes the in-memory state to disk. Must be called with mu held.
func (s *Store) flush() {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		s.log.Error("marshalling seed records", "error", err)
		return
	}
	if err := os.WriteFile(s.filePath, data, 0644); err != nil {
		s.log.Error("writing seeds file", "error", err)
	}
}

// Package state implements the durable record of counters, the seen-cache,
// and per-author daily tallies (C1 in the curation engine design).
package state

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// State is the single durable document the engine persists after every
// successful publish. All fields use a stable, forward-compatible schema:
// arrays for sequences, objects for mappings, string keys for time buckets.
type State struct {
	Seen            *SeenCache     `json:"-"`
	SeenStatusIDs   []string       `json:"seen_status_ids"`
	AuthorsToday    map[string]int `json:"authors_boosted_today"`
	DayKey          string         `json:"day"`
	DayCount        int            `json:"day_count"`
	HourKey         string         `json:"hour"`
	HourCount       int            `json:"hour_count"`
	LastInstanceIdx int            `json:"last_instance_index"`
}

// New returns a fresh, empty State bounded at cacheSize entries.
func New(cacheSize int) *State {
	return &State{
		Seen:          NewSeenCache(cacheSize),
		SeenStatusIDs: nil,
		AuthorsToday:  map[string]int{},
	}
}

// Load reads the state document at path. A missing or malformed file is
// tolerated and yields a fresh State with empty collections — the store
// never fails a cycle over a corrupt or absent persistence file.
func Load(path string, cacheSize int) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("state load failed, starting fresh", "path", path, "err", err)
		}
		return New(cacheSize)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("state file malformed, starting fresh", "path", path, "err", err)
		return New(cacheSize)
	}
	if s.AuthorsToday == nil {
		s.AuthorsToday = map[string]int{}
	}
	s.Seen = NewSeenCacheFrom(s.SeenStatusIDs, cacheSize)
	return &s
}

// Save persists the state document atomically (write temp file + rename) so
// a crash mid-write never leaves a half-written file behind. Failure is
// logged at ERROR and otherwise ignored: the next successful save
// reconciles any lost updates.
func Save(path string, s *State) {
	s.SeenStatusIDs = s.Seen.Entries()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		slog.Error("state marshal failed", "err", err)
		return
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		slog.Error("state persist failed: create temp file", "path", path, "err", err)
		return
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		slog.Error("state persist failed: write", "path", path, "err", err)
		return
	}
	if err := tmp.Close(); err != nil {
		slog.Error("state persist failed: close", "path", path, "err", err)
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		slog.Error("state persist failed: rename", "path", path, "err", err)
		return
	}
}

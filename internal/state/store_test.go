package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsFreshState(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "does-not-exist.json"), 100)
	require.NotNil(t, s)
	assert.Empty(t, s.SeenStatusIDs)
	assert.Empty(t, s.AuthorsToday)
	assert.Equal(t, 0, s.Seen.Len())
}

func TestLoadMalformedFileYieldsFreshState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	s := Load(path, 100)
	require.NotNil(t, s)
	assert.Empty(t, s.AuthorsToday)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(100)
	s.Seen.Add("id-1")
	s.Seen.Add("uri-1")
	s.AuthorsToday["alice"] = 2
	s.DayKey = "2024-01-01"
	s.DayCount = 3
	s.HourKey = "2024-01-01T10"
	s.HourCount = 1

	Save(path, s)
	loaded := Load(path, 100)

	assert.Equal(t, s.AuthorsToday, loaded.AuthorsToday)
	assert.Equal(t, s.DayKey, loaded.DayKey)
	assert.Equal(t, s.DayCount, loaded.DayCount)
	assert.Equal(t, s.HourKey, loaded.HourKey)
	assert.Equal(t, s.HourCount, loaded.HourCount)
	assert.True(t, loaded.Seen.Contains("id-1"))
	assert.True(t, loaded.Seen.Contains("uri-1"))
}

func TestSaveIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(10)
	Save(path, s)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "no temp file should remain after a successful save")
	}
}

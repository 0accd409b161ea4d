package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()

	_, ok, err := s.Load("e1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save("e1", Identity{VolunteerID: "v1", Name: "Amy"}))

	id, ok, err := s.Load("e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Amy", id.Name)

	require.NoError(t, s.Clear("e1"))
	_, ok, _ = s.Load("e1")
	assert.False(t, ok)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "identity.json")
	s := NewFileStore(path)

	require.NoError(t, s.Save("e1", Identity{VolunteerID: "v1", Name: "Amy"}))
	require.NoError(t, s.Save("e2", Identity{VolunteerID: "v2", Name: "Ben"}))

	// A fresh store over the same file sees the persisted identities.
	s2 := NewFileStore(path)
	id, ok, err := s2.Load("e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", id.VolunteerID)

	require.NoError(t, s2.Clear("e1"))
	_, ok, _ = s2.Load("e1")
	assert.False(t, ok)

	// Clearing one event leaves the others untouched.
	id, ok, _ = s2.Load("e2")
	require.True(t, ok)
	assert.Equal(t, "Ben", id.Name)
}

func TestFileStore_ClearMissingIsNoop(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "identity.json"))
	assert.NoError(t, s.Clear("never-saved"))
}

func TestFileStore_CorruptFileStartsOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewFileStore(path)

	_, ok, err := s.Load("e1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Save("e1", Identity{VolunteerID: "v1", Name: "Amy"}))
	_, ok, _ = s.Load("e1")
	assert.True(t, ok)
}

// Package session keeps the volunteer's client-local identity. There is
// no server-side session: the (event id -> volunteer id, name) mapping
// persisted here is the entire continuity mechanism between visits, and
// it never leaves the device.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Identity is the stored volunteer identity for one event.
type Identity struct {
	VolunteerID string `json:"volunteer_id"`
	Name        string `json:"name"`
}

// Store persists identities keyed by event id. Implementations must
// tolerate concurrent use from one process.
type Store interface {
	Load(eventID string) (Identity, bool, error)
	Save(eventID string, id Identity) error
	Clear(eventID string) error
}

// MemoryStore is an in-process Store, used in tests and by callers that
// do not want persistence.
type MemoryStore struct {
	mu  sync.Mutex
	ids map[string]Identity
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]Identity)}
}

func (s *MemoryStore) Load(eventID string) (Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[eventID]
	return id, ok, nil
}

func (s *MemoryStore) Save(eventID string, id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[eventID] = id
	return nil
}

func (s *MemoryStore) Clear(eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, eventID)
	return nil
}

// FileStore persists identities as a JSON map in a single file. The
// whole file is rewritten on every save; the map is small (one entry
// per event the user has joined).
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore at the given path. The parent
// directory is created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultPath returns the conventional identity file location under the
// user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "openrota", "identity.json"), nil
}

func (s *FileStore) Load(eventID string) (Identity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.read()
	if err != nil {
		return Identity{}, false, err
	}
	id, ok := ids[eventID]
	return id, ok, nil
}

func (s *FileStore) Save(eventID string, id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.read()
	if err != nil {
		return err
	}
	ids[eventID] = id
	return s.write(ids)
}

func (s *FileStore) Clear(eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := ids[eventID]; !ok {
		return nil
	}
	delete(ids, eventID)
	return s.write(ids)
}

func (s *FileStore) read() (map[string]Identity, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]Identity), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}

	ids := make(map[string]Identity)
	if err := json.Unmarshal(data, &ids); err != nil {
		// A corrupt identity file should not lock the user out; start over.
		return make(map[string]Identity), nil
	}
	return ids, nil
}

func (s *FileStore) write(ids map[string]Identity) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create identity dir: %w", err)
	}
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode identities: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write identity file: %w", err)
	}
	return nil
}

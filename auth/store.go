package auth

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
)

// Store reads and writes a single credential record at a fixed path.
// The file is UTF-8 JSON containing exactly the Record fields. There is no
// cross-process locking: concurrent writers race and the last one wins.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStorePath returns the conventional credential location inside the
// user's configuration directory.
func DefaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "wingman", "credentials.json"), nil
}

// Path returns the file the store reads and writes.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted record. An absent file is an *Error telling the
// user to run the login flow, not a plain not-found.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Message: fmt.Sprintf("no credentials found at %s, run `wingman login` first", s.path)}
		}
		return nil, fmt.Errorf("failed to read credentials from %s: %w", s.path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse credentials at %s: %w", s.path, err)
	}
	return &rec, nil
}

// Save writes the full record, creating the parent directory on demand.
// Errors surface to the caller: a refreshed token that never hits disk
// causes redundant refreshes on the next process start.
func (s *Store) Save(rec *Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential dir: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials to %s: %w", s.path, err)
	}
	return nil
}

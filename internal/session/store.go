// Package session persists the authenticated browser state and coordinates
// which runner performs the interactive login.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harrison/gradewalker/internal/browser"
	"github.com/harrison/gradewalker/internal/filelock"
)

// ErrNoSession is returned by Load when no artifact has been saved.
var ErrNoSession = errors.New("no saved session")

// State is the saved storage state of a logged-in browser.
type State struct {
	URL     string           `json:"url"`
	SavedAt time.Time        `json:"saved_at"`
	Cookies []browser.Cookie `json:"cookies"`
}

// Store reads and writes the session artifact at a fixed path.
type Store struct {
	path string
}

// NewStore creates a Store for path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the artifact location.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a complete artifact is present. Writes go through
// a rename, so a present file is always complete.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Load reads the artifact.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", s.path, err)
	}
	return &st, nil
}

// Save writes the artifact atomically, creating parent directories.
func (s *Store) Save(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := filelock.AtomicWrite(s.path, data); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Remove deletes the artifact if present.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// lock returns the lock that guards the artifact while it is being produced.
func (s *Store) lock() *filelock.FileLock {
	return filelock.For(s.path)
}

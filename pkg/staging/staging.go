// Package staging manages the per-salon directories used to hold files
// exchanged over the in-band transfer protocol.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName indicates a salon or file name that cannot be used as a
// path element. Names arrive from untrusted network input, so anything
// that could escape the staging root is rejected outright.
var ErrInvalidName = errors.New("invalid name for staging path")

// Store manages salon staging directories under a single root
type Store struct {
	root string
}

// NewStore creates the staging root if needed and returns a Store for it
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the staging root directory
func (s *Store) Root() string {
	return s.root
}

// validateName rejects empty names and anything containing a path
// separator or dot-traversal component
func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, os.PathSeparator) {
		return ErrInvalidName
	}
	if strings.ContainsRune(name, 0) {
		return ErrInvalidName
	}
	return nil
}

// SalonDir returns the staging directory for a salon
func (s *Store) SalonDir(salon string) (string, error) {
	if err := validateName(salon); err != nil {
		return "", err
	}
	return filepath.Join(s.root, salon), nil
}

// FilePath returns the staging path for a file within a salon
func (s *Store) FilePath(salon, filename string) (string, error) {
	dir, err := s.SalonDir(salon)
	if err != nil {
		return "", err
	}
	if err := validateName(filename); err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}

// EnsureSalonDir creates the staging directory for a salon if missing
func (s *Store) EnsureSalonDir(salon string) error {
	dir, err := s.SalonDir(salon)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

// RemoveSalonDir deletes a salon's staging directory and its contents
func (s *Store) RemoveSalonDir(salon string) error {
	dir, err := s.SalonDir(salon)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// EnsureAll recreates staging directories for every known salon.
// Called at startup so directories survive a wiped staging root.
func (s *Store) EnsureAll(salons []string) error {
	for _, salon := range salons {
		if err := s.EnsureSalonDir(salon); err != nil {
			return fmt.Errorf("failed to create staging dir for %s: %w", salon, err)
		}
	}
	return nil
}

// Clear removes every staging directory under the root, leaving the root
// itself in place
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

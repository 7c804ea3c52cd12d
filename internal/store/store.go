// Package store keeps small versioned state documents, one JSON file per
// key, under a state directory.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const DirName = "pipeline-monitor"

var (
	ErrInvalidKey = errors.New("invalid state key")

	keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

type Store struct {
	Dir string
}

func New(dir string) Store {
	return Store{Dir: strings.TrimSpace(dir)}
}

// DefaultDir resolves the state directory: an explicit value wins, then
// the user config dir, then ~/.config.
func DefaultDir(explicit string) (string, error) {
	if v := strings.TrimSpace(explicit); v != "" {
		return v, nil
	}
	root, err := os.UserConfigDir()
	if err != nil || strings.TrimSpace(root) == "" {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("resolve state directory: %w", homeErr)
		}
		root = filepath.Join(home, ".config")
	}
	return filepath.Join(root, DirName), nil
}

func (s Store) Path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, key+".json"), nil
}

// Get returns the raw document for key. A missing document is not an
// error: ok is false and data is nil.
func (s Store) Get(key string) ([]byte, bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read state %s: %w", path, err)
	}
	return data, true, nil
}

func (s Store) Set(key string, data []byte) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	return WriteBytes(path, data)
}

func (s Store) SetJSON(key string, v any) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	return WriteJSON(path, v)
}

func (s Store) Delete(key string) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete state %s: %w", path, err)
	}
	return nil
}

// Update runs fn while holding the directory lock.
func (s Store) Update(fn func() error) error {
	if err := Mkdir(s.dirOrDot()); err != nil {
		return err
	}
	lock, err := AcquireLock(s.dirOrDot())
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()
	return fn()
}

func (s Store) dirOrDot() string {
	if s.Dir == "" {
		return "."
	}
	return s.Dir
}

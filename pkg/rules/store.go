package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Store errors.
var (
	ErrNotFound     = errors.New("rule set not found")
	ErrReservedName = errors.New(`cannot use "active" as a custom name`)
	ErrInvalidName  = errors.New("invalid rule set name")
)

// Store keeps named rule sets as <dir>/<name>.json.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// ActivePath returns the path of the active rule set file.
func (s *Store) ActivePath() string {
	return filepath.Join(s.dir, ActiveName+".json")
}

// Active loads the active rule set, or Default when none was saved.
func (s *Store) Active() (*RuleSet, error) {
	rs, err := s.load(ActiveName)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}
	return rs, err
}

// SaveActive validates and stores the active rule set.
func (s *Store) SaveActive(data []byte) (*RuleSet, error) {
	return s.save(ActiveName, data)
}

// Get loads a named rule set.
func (s *Store) Get(name string) (*RuleSet, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return s.load(name)
}

// Save validates and stores a named rule set. The active name is reserved.
func (s *Store) Save(name string, data []byte) (*RuleSet, error) {
	if name == ActiveName {
		return nil, ErrReservedName
	}
	if err := checkName(name); err != nil {
		return nil, err
	}
	return s.save(name, data)
}

// List returns the names of all stored sets, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list rule sets: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	slices.Sort(names)
	return names, nil
}

func (s *Store) load(name string) (*RuleSet, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rule set %s: %w", name, err)
	}
	return Parse(data)
}

func (s *Store) save(name string, data []byte) (*RuleSet, error) {
	rs, err := Parse(data)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rule set: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create rules directory: %w", err)
	}
	path := filepath.Join(s.dir, name+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(out, '\n'), 0644); err != nil {
		return nil, fmt.Errorf("failed to write rule set: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to write rule set: %w", err)
	}
	return rs, nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

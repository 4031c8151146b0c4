package config

import (
	"errors"
	"fmt"
	"sync"
)

// ErrConfigSetNotFound is returned when a config set id is unknown.
var ErrConfigSetNotFound = errors.New("config set not found")

// State holds the live configuration shared by the proxy and the
// management API. Every successful Update is written back to the file it
// was loaded from, when there is one.
type State struct {
	mu   sync.RWMutex
	cfg  *ProxyConfig
	path string
}

// NewState wraps cfg. An empty path keeps changes in memory only.
func NewState(cfg *ProxyConfig, path string) *State {
	if cfg == nil {
		cfg = Default()
	}
	return &State{cfg: cfg.Clone(), path: path}
}

// Path returns the backing file, if any.
func (s *State) Path() string {
	return s.path
}

// Snapshot returns a copy of the current configuration.
func (s *State) Snapshot() *ProxyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// ActiveSet returns the active config set.
func (s *State) ActiveSet() (ConfigSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ActiveSet()
}

// Update applies fn to a copy of the configuration, validates the result
// and commits it. The change is discarded when fn or validation fails.
func (s *State) Update(fn func(*ProxyConfig) error) (*ProxyConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if s.path != "" {
		if err := SaveToFile(s.path, next); err != nil {
			return nil, fmt.Errorf("failed to persist config: %w", err)
		}
	}
	s.cfg = next
	return next.Clone(), nil
}

// SetActiveConfigSet switches the upstream target by config set id.
func (s *State) SetActiveConfigSet(id string) (*ProxyConfig, error) {
	return s.Update(func(c *ProxyConfig) error {
		if _, ok := c.ConfigSet(id); !ok {
			return fmt.Errorf("%w: %s", ErrConfigSetNotFound, id)
		}
		c.ActiveConfigSet = id
		return nil
	})
}

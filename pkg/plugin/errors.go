package plugin

import (
	"errors"
	"fmt"
)

// Common errors for the plugin package.
var (
	// ErrPluginNotFound indicates no plugin is registered under the given name.
	ErrPluginNotFound = errors.New("plugin not found")
	// ErrMissingName indicates a registration without a name.
	ErrMissingName = errors.New("plugin must have a name")
	// ErrMissingHandler indicates a registration whose handler implements no stage.
	ErrMissingHandler = errors.New("plugin must have a handler for at least one stage")
	// ErrDuplicatePlugin indicates a second registration under an existing name.
	ErrDuplicatePlugin = errors.New("plugin already registered")
)

// ConfigError reports an invalid plugin registration.
type ConfigError struct {
	Plugin string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Plugin == "" {
		return "plugin config: " + e.Err.Error()
	}
	return fmt.Sprintf("plugin %q config: %v", e.Plugin, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// PluginError records a failure of a single plugin handler during a run.
// It is stored in Decision.Metadata["errors"] and never aborts the run.
type PluginError struct {
	Plugin  string `json:"plugin"`
	Stage   Stage  `json:"stage"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %q (%s): %s", e.Plugin, e.Stage, e.Message)
}

func (e *PluginError) Unwrap() error { return e.Err }

func newPluginError(name string, stage Stage, err error) *PluginError {
	return &PluginError{Plugin: name, Stage: stage, Message: err.Error(), Err: err}
}

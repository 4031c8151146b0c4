package plugin

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/getmockd/interceptd/pkg/logging"
)

// Registration describes a plugin at registration time.
type Registration struct {
	Name        string
	Description string
	// Enabled is the initial enabled state.
	Enabled bool
	Options map[string]Option
	// Handler implements one or more of RequestHandler, UpgradeHandler
	// and MessageHandler.
	Handler any
}

// Stages returns the stages the registration's handler participates in.
func (r Registration) Stages() []Stage {
	var out []Stage
	for _, s := range []Stage{StageRequest, StageUpgrade, StageMessage} {
		if handles(r.Handler, s) {
			out = append(out, s)
		}
	}
	return out
}

// Info is the management view of a registered plugin.
type Info struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Enabled     bool              `json:"enabled"`
	Order       int               `json:"order"`
	Stages      []Stage           `json:"stages"`
	Options     map[string]Option `json:"options,omitempty"`
	Config      Config            `json:"config"`
}

// step is one plugin bound for a single pipeline run.
type step struct {
	name    string
	handler any
	config  Config
}

// Registry holds registered plugins and their runtime state.
type Registry struct {
	mu      sync.RWMutex
	plugins []Registration // registration order
	enabled map[string]bool
	configs map[string]Config
	order   []string
	log     *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		enabled: make(map[string]bool),
		configs: make(map[string]Config),
		log:     logging.Nop(),
	}
}

// SetLogger sets the registry logger.
func (r *Registry) SetLogger(log *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = logging.OrNop(log)
}

// Register adds a plugin. The name must be unique and the handler must
// implement at least one stage.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" {
		return &ConfigError{Err: ErrMissingName}
	}
	if len(reg.Stages()) == 0 {
		return &ConfigError{Plugin: reg.Name, Err: ErrMissingHandler}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(reg.Name) >= 0 {
		return &ConfigError{Plugin: reg.Name, Err: ErrDuplicatePlugin}
	}
	r.plugins = append(r.plugins, reg)
	if _, ok := r.enabled[reg.Name]; !ok {
		r.enabled[reg.Name] = reg.Enabled
	}
	r.log.Debug("plugin registered", "plugin", reg.Name, "stages", reg.Stages())
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(reg Registration) {
	if err := r.Register(reg); err != nil {
		panic(err)
	}
}

// SetEnabled toggles a plugin. It does not affect runs already in flight.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(name) < 0 {
		return ErrPluginNotFound
	}
	r.enabled[name] = enabled
	r.log.Info("plugin toggled", "plugin", name, "enabled", enabled)
	return nil
}

// IsEnabled reports whether name is registered and enabled.
func (r *Registry) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(name) >= 0 && r.enabled[name]
}

// SetConfig replaces the configuration of a registered plugin.
func (r *Registry) SetConfig(name string, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(name) < 0 {
		return ErrPluginNotFound
	}
	r.configs[name] = cfg.Clone()
	r.log.Debug("plugin config updated", "plugin", name)
	return nil
}

// Config returns a copy of the configuration of name. Configuration may be
// read for plugins that are not registered yet.
func (r *Registry) Config(name string) Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[name].Clone()
}

// Preload stores enabled state and configuration ahead of registration, as
// read from the proxy configuration file. Unknown names are kept and apply
// once a plugin with that name registers.
func (r *Registry) Preload(enabled map[string]bool, configs map[string]Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, on := range enabled {
		r.enabled[name] = on
	}
	for name, cfg := range configs {
		r.configs[name] = cfg.Clone()
	}
}

// SetOrder replaces the order list. Names need not be registered.
func (r *Registry) SetOrder(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = slices.Clone(names)
	r.log.Info("plugin order updated", "order", names)
}

// Order returns the configured order list.
func (r *Registry) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// List returns all registered plugins in effective order. Order is 1-based.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sorted := r.sorted()
	out := make([]Info, 0, len(sorted))
	for i, reg := range sorted {
		out = append(out, Info{
			Name:        reg.Name,
			Description: reg.Description,
			Enabled:     r.enabled[reg.Name],
			Order:       i + 1,
			Stages:      reg.Stages(),
			Options:     reg.Options,
			Config:      r.configs[reg.Name].Clone(),
		})
	}
	return out
}

// Get returns the info of a single plugin.
func (r *Registry) Get(name string) (Info, error) {
	for _, info := range r.List() {
		if info.Name == name {
			return info, nil
		}
	}
	return Info{}, ErrPluginNotFound
}

// snapshot returns the enabled plugins participating in stage, in effective
// order, with their configuration captured at call time.
func (r *Registry) snapshot(stage Stage) []step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var steps []step
	for _, reg := range r.sorted() {
		if !r.enabled[reg.Name] || !handles(reg.Handler, stage) {
			continue
		}
		steps = append(steps, step{
			name:    reg.Name,
			handler: reg.Handler,
			config:  r.configs[reg.Name].Clone(),
		})
	}
	return steps
}

// sorted returns registrations in effective order. Caller holds mu.
func (r *Registry) sorted() []Registration {
	rank := make(map[string]int, len(r.order))
	for i, name := range r.order {
		if _, dup := rank[name]; !dup {
			rank[name] = i
		}
	}
	key := func(name string) int {
		if i, ok := rank[name]; ok {
			return i
		}
		return len(r.order)
	}

	out := slices.Clone(r.plugins)
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i].Name) < key(out[j].Name)
	})
	return out
}

func (r *Registry) indexOf(name string) int {
	return slices.IndexFunc(r.plugins, func(reg Registration) bool { return reg.Name == name })
}

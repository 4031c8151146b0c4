package config

import (
	"maps"
	"slices"
)

// Default values.
const (
	DefaultConfigFile     = "interceptd.json"
	DefaultProxyPort      = 8079
	DefaultAPIPrefix      = "/__api"
	DefaultTargetURL      = "http://localhost:8078"
	DefaultConfigSetID    = "default"
	DefaultRulesDir       = "rules"
	DefaultRecordingsDir  = "recordings"
	DefaultMaxBodySize    = 10 << 20
	DefaultMaxConnections = 100
	DefaultMaxMessageSize = 1 << 20
	DefaultMessageLogSize = 1000
)

// DefaultPluginOrder is the effective order of the built-in plugins when
// the configuration does not name one.
var DefaultPluginOrder = []string{"logger", "cors", "mock", "recorder"}

// ProxyConfig is the complete proxy configuration.
type ProxyConfig struct {
	ProxyPort       int                       `json:"proxyPort" yaml:"proxyPort"`
	APIPrefix       string                    `json:"apiPrefix" yaml:"apiPrefix"`
	DebugLogs       bool                      `json:"debugLogs" yaml:"debugLogs"`
	ConfigSets      []ConfigSet               `json:"configSets" yaml:"configSets"`
	ActiveConfigSet string                    `json:"activeConfigSet" yaml:"activeConfigSet"`
	Plugins         map[string]bool           `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	PluginOrder     []string                  `json:"pluginOrder" yaml:"pluginOrder"`
	PluginConfigs   map[string]map[string]any `json:"pluginConfigs,omitempty" yaml:"pluginConfigs,omitempty"`
	RulesDir        string                    `json:"rulesDir" yaml:"rulesDir"`
	RecordingsDir   string                    `json:"recordingsDir" yaml:"recordingsDir"`
	MaxBodySize     int64                     `json:"maxBodySize" yaml:"maxBodySize"`
	WebSocket       WebSocketConfig           `json:"websocket" yaml:"websocket"`
	Log             LogConfig                 `json:"log" yaml:"log"`
}

// ConfigSet is a named upstream target.
type ConfigSet struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	TargetURL string `json:"targetUrl" yaml:"targetUrl"`
	// RequestHeaders are added to every forwarded request and win over
	// both client and plugin headers.
	RequestHeaders map[string]string `json:"requestHeaders" yaml:"requestHeaders"`
}

// WebSocketConfig controls the WebSocket bridge.
type WebSocketConfig struct {
	Enabled        bool  `json:"enabled" yaml:"enabled"`
	LogMessages    bool  `json:"logMessages" yaml:"logMessages"`
	RecordMessages bool  `json:"recordMessages" yaml:"recordMessages"`
	MaxConnections int   `json:"maxConnections" yaml:"maxConnections"`
	MaxMessageSize int64 `json:"maxMessageSize" yaml:"maxMessageSize"`
	MessageLogSize int   `json:"messageLogSize" yaml:"messageLogSize"`
}

// LogConfig controls process logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Default returns a configuration populated with defaults.
func Default() *ProxyConfig {
	return &ProxyConfig{
		ProxyPort: DefaultProxyPort,
		APIPrefix: DefaultAPIPrefix,
		ConfigSets: []ConfigSet{{
			ID:             DefaultConfigSetID,
			Name:           "Default",
			TargetURL:      DefaultTargetURL,
			RequestHeaders: map[string]string{},
		}},
		ActiveConfigSet: DefaultConfigSetID,
		PluginOrder:     slices.Clone(DefaultPluginOrder),
		RulesDir:        DefaultRulesDir,
		RecordingsDir:   DefaultRecordingsDir,
		MaxBodySize:     DefaultMaxBodySize,
		WebSocket: WebSocketConfig{
			Enabled:        true,
			LogMessages:    true,
			MaxConnections: DefaultMaxConnections,
			MaxMessageSize: DefaultMaxMessageSize,
			MessageLogSize: DefaultMessageLogSize,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// ActiveSet returns the active config set. An unknown id falls back to the
// first set; ok is false only when no sets exist.
func (c *ProxyConfig) ActiveSet() (ConfigSet, bool) {
	if len(c.ConfigSets) == 0 {
		return ConfigSet{}, false
	}
	if set, found := c.ConfigSet(c.ActiveConfigSet); found {
		return set, true
	}
	return c.ConfigSets[0], true
}

// ConfigSet returns the set with the given id.
func (c *ProxyConfig) ConfigSet(id string) (ConfigSet, bool) {
	for _, set := range c.ConfigSets {
		if set.ID == id {
			return set, true
		}
	}
	return ConfigSet{}, false
}

// Clone returns a deep copy of c.
func (c *ProxyConfig) Clone() *ProxyConfig {
	out := *c
	out.ConfigSets = make([]ConfigSet, len(c.ConfigSets))
	for i, set := range c.ConfigSets {
		set.RequestHeaders = maps.Clone(set.RequestHeaders)
		out.ConfigSets[i] = set
	}
	out.Plugins = maps.Clone(c.Plugins)
	out.PluginOrder = slices.Clone(c.PluginOrder)
	if c.PluginConfigs != nil {
		out.PluginConfigs = make(map[string]map[string]any, len(c.PluginConfigs))
		for name, cfg := range c.PluginConfigs {
			out.PluginConfigs[name] = maps.Clone(cfg)
		}
	}
	return &out
}

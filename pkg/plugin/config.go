package plugin

import (
	"encoding/json"
	"maps"
	"strconv"
)

// Config is the free-form configuration of a single plugin, as loaded from
// JSON or YAML. The accessors tolerate the loose typing of both decoders.
type Config map[string]any

// Clone returns a shallow copy of c.
func (c Config) Clone() Config {
	if c == nil {
		return Config{}
	}
	return maps.Clone(c)
}

// String returns the string value at key or def.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return def
}

// Bool returns the boolean value at key or def.
func (c Config) Bool(key string, def bool) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Int returns the integer value at key or def.
func (c Config) Int(key string, def int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Strings returns the string list at key. A single string is returned as a
// one-element list.
func (c Config) Strings(key string) []string {
	switch v := c[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Decode converts c into a typed struct through its JSON representation.
func (c Config) Decode(v any) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Option describes a configuration key a plugin understands.
type Option struct {
	Type        string `json:"type"`
	Default     any    `json:"default,omitempty"`
	Label       string `json:"label,omitempty"`
	Description string `json:"description,omitempty"`
}

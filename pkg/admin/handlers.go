package admin

import (
	"fmt"
	"maps"
	"net/http"
	"slices"

	"github.com/getmockd/interceptd/internal/id"
	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/httputil"
	"github.com/getmockd/interceptd/pkg/plugin"
)

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Status          string  `json:"status"`
	Version         string  `json:"version"`
	Uptime          float64 `json:"uptime"`
	ActiveConfigSet string  `json:"activeConfigSet,omitempty"`
	TargetURL       string  `json:"targetUrl,omitempty"`
	Connections     int     `json:"websocketConnections"`
}

func (a *API) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status:  "ok",
		Version: a.version,
		Uptime:  a.Uptime().Seconds(),
	}
	if a.state != nil {
		if set, ok := a.state.ActiveSet(); ok {
			resp.ActiveConfigSet = set.ID
			resp.TargetURL = set.TargetURL
		}
	}
	if a.bridge != nil {
		resp.Connections = a.bridge.Connections().Len()
	}
	httputil.WriteOK(w, resp)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	a.metrics.Handler().ServeHTTP(w, r)
}

func (a *API) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, a.state.Snapshot())
}

// persist commits fn to the live configuration when one is attached.
// Handlers persist before touching the registry so a failed save leaves the
// running state unchanged.
func (a *API) persist(fn func(*config.ProxyConfig) error) error {
	if a.state == nil {
		return nil
	}
	_, err := a.state.Update(fn)
	return err
}

// Plugins

func (a *API) handleListPlugins(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, map[string]any{
		"plugins":     a.registry.List(),
		"pluginOrder": a.registry.Order(),
	})
}

// SetEnabledRequest is the body of PUT /plugins/{name}/enabled.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (a *API) handleSetPluginEnabled(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req SetEnabledRequest
	if !decodeJSON(w, r, a.log, &req) {
		return
	}
	if req.Enabled == nil {
		httputil.WriteBadRequest(w, "missing_field", "enabled is required")
		return
	}
	if _, err := a.registry.Get(name); err != nil {
		writeStoreError(w, a.log, "set plugin enabled", fmt.Errorf("%w: %s", err, name))
		return
	}
	err := a.persist(func(c *config.ProxyConfig) error {
		if c.Plugins == nil {
			c.Plugins = make(map[string]bool)
		}
		c.Plugins[name] = *req.Enabled
		return nil
	})
	if err != nil {
		writeStoreError(w, a.log, "persist plugin state", err)
		return
	}
	if err := a.registry.SetEnabled(name, *req.Enabled); err != nil {
		writeStoreError(w, a.log, "set plugin enabled", fmt.Errorf("%w: %s", err, name))
		return
	}
	info, _ := a.registry.Get(name)
	httputil.WriteOK(w, info)
}

func (a *API) handleSetPluginConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var cfg plugin.Config
	if !decodeJSON(w, r, a.log, &cfg) {
		return
	}
	if _, err := a.registry.Get(name); err != nil {
		writeStoreError(w, a.log, "set plugin config", fmt.Errorf("%w: %s", err, name))
		return
	}
	err := a.persist(func(c *config.ProxyConfig) error {
		if c.PluginConfigs == nil {
			c.PluginConfigs = make(map[string]map[string]any)
		}
		c.PluginConfigs[name] = maps.Clone(map[string]any(cfg))
		return nil
	})
	if err != nil {
		writeStoreError(w, a.log, "persist plugin config", err)
		return
	}
	if err := a.registry.SetConfig(name, cfg); err != nil {
		writeStoreError(w, a.log, "set plugin config", fmt.Errorf("%w: %s", err, name))
		return
	}
	info, _ := a.registry.Get(name)
	httputil.WriteOK(w, info)
}

// SetOrderRequest is the body of PUT /plugins/order.
type SetOrderRequest struct {
	PluginOrder []string `json:"pluginOrder"`
}

func (a *API) handleSetPluginOrder(w http.ResponseWriter, r *http.Request) {
	var req SetOrderRequest
	if !decodeJSON(w, r, a.log, &req) {
		return
	}
	if req.PluginOrder == nil {
		httputil.WriteBadRequest(w, "missing_field", "pluginOrder must be an array")
		return
	}
	err := a.persist(func(c *config.ProxyConfig) error {
		c.PluginOrder = slices.Clone(req.PluginOrder)
		return nil
	})
	if err != nil {
		writeStoreError(w, a.log, "persist plugin order", err)
		return
	}
	a.registry.SetOrder(req.PluginOrder)
	httputil.WriteOK(w, map[string]any{
		"pluginOrder": a.registry.Order(),
		"plugins":     a.registry.List(),
	})
}

// Config sets

func (a *API) handleListConfigSets(w http.ResponseWriter, _ *http.Request) {
	cfg := a.state.Snapshot()
	active := cfg.ActiveConfigSet
	if set, ok := cfg.ActiveSet(); ok {
		active = set.ID
	}
	httputil.WriteOK(w, map[string]any{
		"configSets":      cfg.ConfigSets,
		"activeConfigSet": active,
	})
}

// ConfigSetRequest is the body of POST /config-sets and PUT /config-sets/{id}.
type ConfigSetRequest struct {
	ID             string            `json:"id,omitempty"`
	Name           *string           `json:"name,omitempty"`
	TargetURL      *string           `json:"targetUrl,omitempty"`
	RequestHeaders map[string]string `json:"requestHeaders,omitempty"`
}

func (a *API) handleCreateConfigSet(w http.ResponseWriter, r *http.Request) {
	var req ConfigSetRequest
	if !decodeJSON(w, r, a.log, &req) {
		return
	}
	if req.Name == nil || req.TargetURL == nil {
		httputil.WriteBadRequest(w, "missing_field", "name and targetUrl are required")
		return
	}
	set := config.ConfigSet{
		ID:             req.ID,
		Name:           *req.Name,
		TargetURL:      *req.TargetURL,
		RequestHeaders: req.RequestHeaders,
	}
	if set.ID == "" {
		set.ID = "set-" + id.Short()
	}
	if set.RequestHeaders == nil {
		set.RequestHeaders = map[string]string{}
	}
	_, err := a.state.Update(func(c *config.ProxyConfig) error {
		if _, exists := c.ConfigSet(set.ID); exists {
			return fmt.Errorf("%w: config set %s already exists", errBadRequest, set.ID)
		}
		c.ConfigSets = append(c.ConfigSets, set)
		return nil
	})
	if err != nil {
		writeStoreError(w, a.log, "create config set", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, set)
}

func (a *API) handleUpdateConfigSet(w http.ResponseWriter, r *http.Request) {
	setID := r.PathValue("id")
	var req ConfigSetRequest
	if !decodeJSON(w, r, a.log, &req) {
		return
	}
	var updated config.ConfigSet
	_, err := a.state.Update(func(c *config.ProxyConfig) error {
		i := slices.IndexFunc(c.ConfigSets, func(s config.ConfigSet) bool { return s.ID == setID })
		if i < 0 {
			return fmt.Errorf("%w: %s", config.ErrConfigSetNotFound, setID)
		}
		set := &c.ConfigSets[i]
		if req.Name != nil {
			set.Name = *req.Name
		}
		if req.TargetURL != nil {
			set.TargetURL = *req.TargetURL
		}
		if req.RequestHeaders != nil {
			set.RequestHeaders = req.RequestHeaders
		}
		updated = *set
		return nil
	})
	if err != nil {
		writeStoreError(w, a.log, "update config set", err)
		return
	}
	httputil.WriteOK(w, updated)
}

func (a *API) handleDeleteConfigSet(w http.ResponseWriter, r *http.Request) {
	setID := r.PathValue("id")
	_, err := a.state.Update(func(c *config.ProxyConfig) error {
		i := slices.IndexFunc(c.ConfigSets, func(s config.ConfigSet) bool { return s.ID == setID })
		switch {
		case i < 0:
			return fmt.Errorf("%w: %s", config.ErrConfigSetNotFound, setID)
		case len(c.ConfigSets) == 1:
			return fmt.Errorf("%w: cannot delete the last config set", errBadRequest)
		}
		if active, _ := c.ActiveSet(); active.ID == setID {
			return fmt.Errorf("%w: cannot delete the active config set", errBadRequest)
		}
		c.ConfigSets = slices.Delete(c.ConfigSets, i, i+1)
		return nil
	})
	if err != nil {
		writeStoreError(w, a.log, "delete config set", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivateRequest is the body of PUT /config-sets/active.
type ActivateRequest struct {
	ID string `json:"id"`
}

func (a *API) handleActivateConfigSet(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if !decodeJSON(w, r, a.log, &req) {
		return
	}
	if req.ID == "" {
		httputil.WriteBadRequest(w, "missing_field", "id is required")
		return
	}
	cfg, err := a.state.SetActiveConfigSet(req.ID)
	if err != nil {
		writeStoreError(w, a.log, "activate config set", err)
		return
	}
	set, _ := cfg.ActiveSet()
	a.log.Info("active config set switched", "id", set.ID, "target", set.TargetURL)
	httputil.WriteOK(w, map[string]any{
		"activeConfigSet": set.ID,
		"configSet":       set,
	})
}

// Route registration for the management API.

package admin

import (
	"net/http"

	"github.com/getmockd/interceptd/pkg/httputil"
)

// registerRoutes sets up all API routes.
func (a *API) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", a.handleGetStatus)
	mux.HandleFunc("GET /config", a.requireState(a.handleGetConfig))
	mux.HandleFunc("GET /metrics", a.require(a.metrics != nil, "metrics", a.handleMetrics))

	// Plugins
	mux.HandleFunc("GET /plugins", a.requireRegistry(a.handleListPlugins))
	mux.HandleFunc("PUT /plugins/order", a.requireRegistry(a.handleSetPluginOrder))
	mux.HandleFunc("PUT /plugins/{name}/enabled", a.requireRegistry(a.handleSetPluginEnabled))
	mux.HandleFunc("PUT /plugins/{name}/config", a.requireRegistry(a.handleSetPluginConfig))

	// Upstream config sets
	mux.HandleFunc("GET /config-sets", a.requireState(a.handleListConfigSets))
	mux.HandleFunc("POST /config-sets", a.requireState(a.handleCreateConfigSet))
	mux.HandleFunc("PUT /config-sets/active", a.requireState(a.handleActivateConfigSet))
	mux.HandleFunc("PUT /config-sets/{id}", a.requireState(a.handleUpdateConfigSet))
	mux.HandleFunc("DELETE /config-sets/{id}", a.requireState(a.handleDeleteConfigSet))

	// Rule sets
	mux.HandleFunc("GET /rules/active", a.requireRules(a.handleGetActiveRules))
	mux.HandleFunc("PUT /rules/active", a.requireRules(a.handleSaveActiveRules))
	mux.HandleFunc("GET /rules/sets", a.requireRules(a.handleListRuleSets))
	mux.HandleFunc("GET /rules/sets/{name}", a.requireRules(a.handleGetRuleSet))
	mux.HandleFunc("PUT /rules/sets/{name}", a.requireRules(a.handleSaveRuleSet))

	// Recordings
	mux.HandleFunc("GET /recordings/folders", a.requireLibrary(a.handleListFolders))
	mux.HandleFunc("GET /recordings/files/{folder}", a.requireLibrary(a.handleListFiles))
	mux.HandleFunc("GET /recordings/content/{folder}/{path...}", a.requireLibrary(a.handleGetRecording))
	mux.HandleFunc("PUT /recordings/content/{folder}/{path...}", a.requireLibrary(a.handlePutRecording))
	mux.HandleFunc("DELETE /recordings/content/{folder}/{path...}", a.requireLibrary(a.handleDeleteRecording))

	// WebSocket bridge
	mux.HandleFunc("GET /websocket/connections", a.requireBridge(a.handleListConnections))
	mux.HandleFunc("DELETE /websocket/connections/{id}", a.requireBridge(a.handleCloseConnection))
	mux.HandleFunc("GET /websocket/messages", a.requireBridge(a.handleListMessages))
	mux.HandleFunc("POST /websocket/messages/clear", a.requireBridge(a.handleClearMessages))
	mux.HandleFunc("GET /websocket/config", a.requireBridge(a.handleGetWebSocketConfig))
	mux.HandleFunc("PUT /websocket/config", a.requireBridge(a.handleUpdateWebSocketConfig))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "not_found", "unknown management endpoint "+r.Method+" "+r.URL.Path)
	})
}

func (a *API) requireRegistry(next http.HandlerFunc) http.HandlerFunc {
	return a.require(a.registry != nil, "plugin registry", next)
}

func (a *API) requireState(next http.HandlerFunc) http.HandlerFunc {
	return a.require(a.state != nil, "configuration", next)
}

func (a *API) requireRules(next http.HandlerFunc) http.HandlerFunc {
	return a.require(a.rules != nil, "rule store", next)
}

func (a *API) requireLibrary(next http.HandlerFunc) http.HandlerFunc {
	return a.require(a.library != nil, "recordings library", next)
}

func (a *API) requireBridge(next http.HandlerFunc) http.HandlerFunc {
	return a.require(a.bridge != nil, "websocket bridge", next)
}

func (a *API) require(ok bool, what string, next http.HandlerFunc) http.HandlerFunc {
	if ok {
		return next
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, http.StatusNotImplemented, "not_implemented", what+" is not available")
	}
}

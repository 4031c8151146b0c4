package admin

import (
	"net/http"
	"strconv"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/httputil"
)

// defaultMessageLimit is the number of messages returned when no limit is given.
const defaultMessageLimit = 100

func (a *API) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, map[string]any{"connections": a.bridge.Connections().List()})
}

func (a *API) handleCloseConnection(w http.ResponseWriter, r *http.Request) {
	connID := r.PathValue("id")
	if err := a.bridge.Connections().Close(connID, "closed by proxy"); err != nil {
		writeStoreError(w, a.log, "close connection", err)
		return
	}
	a.log.Info("websocket connection closed via API", "id", connID)
	httputil.WriteOK(w, map[string]any{"success": true, "id": connID})
}

func (a *API) handleListMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteBadRequest(w, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	messages := a.bridge.Messages().List(limit, r.URL.Query().Get("connectionId"))
	httputil.WriteOK(w, map[string]any{"messages": messages})
}

func (a *API) handleClearMessages(w http.ResponseWriter, _ *http.Request) {
	a.bridge.Messages().Clear()
	httputil.WriteOK(w, map[string]any{"success": true})
}

func (a *API) handleGetWebSocketConfig(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteOK(w, a.bridge.Settings())
}

// handleUpdateWebSocketConfig merges the fields present in the body into
// the current settings.
func (a *API) handleUpdateWebSocketConfig(w http.ResponseWriter, r *http.Request) {
	settings := a.bridge.Settings()
	if !decodeJSON(w, r, a.log, &settings) {
		return
	}

	check := config.Default()
	check.WebSocket = settings
	if err := check.Validate(); err != nil {
		writeStoreError(w, a.log, "validate websocket config", err)
		return
	}
	err := a.persist(func(c *config.ProxyConfig) error {
		c.WebSocket = settings
		return nil
	})
	if err != nil {
		writeStoreError(w, a.log, "persist websocket config", err)
		return
	}
	a.bridge.SetSettings(settings)
	httputil.WriteOK(w, settings)
}

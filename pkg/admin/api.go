package admin

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
	"github.com/getmockd/interceptd/pkg/plugin"
	"github.com/getmockd/interceptd/pkg/recording"
	"github.com/getmockd/interceptd/pkg/rules"
	"github.com/getmockd/interceptd/pkg/websocket"
)

// API serves the management endpoints.
type API struct {
	prefix   string
	registry *plugin.Registry
	state    *config.State
	rules    *rules.Store
	library  *recording.Library
	bridge   *websocket.Bridge
	metrics  *metrics.Registry
	onRules  func(*rules.RuleSet)
	version  string
	started  time.Time
	log      *slog.Logger
	cors     CORSConfig
	handler  http.Handler
}

// New creates the management API mounted at prefix.
func New(prefix string, opts ...Option) *API {
	a := &API{
		prefix:  strings.TrimSuffix(prefix, "/"),
		started: time.Now(),
		log:     logging.Nop(),
		cors:    DefaultCORSConfig(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(a)
	}

	mux := http.NewServeMux()
	a.registerRoutes(mux)

	a.handler = chain(http.StripPrefix(a.prefix, mux),
		withLogging(a.log),
		withRecovery(a.log),
		withCORS(a.cors),
	)
	return a
}

// Prefix returns the path prefix the API is mounted at.
func (a *API) Prefix() string {
	return a.prefix
}

// Uptime returns the time since the API was created.
func (a *API) Uptime() time.Duration {
	return time.Since(a.started)
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

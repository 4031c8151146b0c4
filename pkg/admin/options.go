// Option functions for configuring API.

package admin

import (
	"log/slog"

	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
	"github.com/getmockd/interceptd/pkg/plugin"
	"github.com/getmockd/interceptd/pkg/recording"
	"github.com/getmockd/interceptd/pkg/rules"
	"github.com/getmockd/interceptd/pkg/websocket"
)

// Option configures an API.
type Option func(*API)

// WithRegistry exposes the plugin registry.
func WithRegistry(r *plugin.Registry) Option {
	return func(a *API) {
		a.registry = r
	}
}

// WithState exposes the live configuration. Changes made through the API
// are committed to it.
func WithState(s *config.State) Option {
	return func(a *API) {
		a.state = s
	}
}

// WithRules exposes the rule-set store. onActive, when set, is called with
// the new rule set whenever the active one is saved.
func WithRules(store *rules.Store, onActive func(*rules.RuleSet)) Option {
	return func(a *API) {
		a.rules = store
		a.onRules = onActive
	}
}

// WithLibrary exposes the recordings library.
func WithLibrary(l *recording.Library) Option {
	return func(a *API) {
		a.library = l
	}
}

// WithBridge exposes the WebSocket bridge.
func WithBridge(b *websocket.Bridge) Option {
	return func(a *API) {
		a.bridge = b
	}
}

// WithMetrics serves r under /metrics.
func WithMetrics(r *metrics.Registry) Option {
	return func(a *API) {
		a.metrics = r
	}
}

// WithCORS configures the CORS settings for the API.
func WithCORS(cfg CORSConfig) Option {
	return func(a *API) {
		a.cors = cfg
	}
}

// WithVersion sets the version reported by the status endpoint.
func WithVersion(v string) Option {
	return func(a *API) {
		if v != "" {
			a.version = v
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		a.log = logging.OrNop(log)
	}
}

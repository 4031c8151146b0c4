// Package proxy provides the HTTP relay of the intercepting proxy.
//
// Every inbound request is buffered and run through the plugin pipeline.
// The resulting decision either answers with a mock or forwards the
// request to the active upstream target, streaming the response back or,
// when a plugin installed a response transform, buffering it and applying
// the transform once before replying.
//
// Requests under the management prefix go to the API handler and
// WebSocket upgrades go to the bridge; both are optional.
package proxy

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
	"github.com/getmockd/interceptd/pkg/plugin"
)

// DefaultMaxBodySize is the default maximum request body size (10MB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// Target is the upstream a request is forwarded to.
type Target struct {
	ID  string
	URL *url.URL
	// Headers are set on every forwarded request, over client and plugin headers.
	Headers map[string]string
}

// TargetSource yields the currently active upstream target.
type TargetSource interface {
	Target() (Target, error)
}

// StaticTarget is a TargetSource that never changes.
type StaticTarget Target

// Target implements TargetSource.
func (s StaticTarget) Target() (Target, error) {
	if s.URL == nil {
		return Target{}, ErrNoTarget
	}
	return Target(s), nil
}

// Options configures the relay.
type Options struct {
	Executor *plugin.Executor
	Targets  TargetSource
	// MaxBodySize caps the buffered request body; larger requests get 413.
	MaxBodySize int64
	// APIPrefix routes matching paths to API.
	APIPrefix string
	API       http.Handler
	// WebSocket handles upgrade requests. Nil forwards them as plain HTTP.
	WebSocket http.Handler
	// Client overrides the upstream HTTP client.
	Client *http.Client
	// Metrics is optional.
	Metrics *metrics.Instruments
	Logger  *slog.Logger
}

// Proxy is the HTTP relay.
type Proxy struct {
	executor    *plugin.Executor
	targets     TargetSource
	maxBodySize int64
	apiPrefix   string
	client      *http.Client
	metrics     *metrics.Instruments
	log         *slog.Logger

	mu  sync.RWMutex
	api http.Handler
	ws  http.Handler
}

// New creates a relay with the given options.
func New(opts Options) *Proxy {
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	client := opts.Client
	if client == nil {
		client = NewUpstreamClient()
	}
	executor := opts.Executor
	if executor == nil {
		executor = plugin.NewExecutor(plugin.NewRegistry(), opts.Logger)
	}
	return &Proxy{
		executor:    executor,
		targets:     opts.Targets,
		maxBodySize: maxBody,
		apiPrefix:   strings.TrimSuffix(opts.APIPrefix, "/"),
		client:      client,
		metrics:     opts.Metrics,
		log:         logging.OrNop(opts.Logger),
		api:         opts.API,
		ws:          opts.WebSocket,
	}
}

// NewUpstreamClient returns the client used to reach upstream targets.
// Certificates are not verified and redirects are handed back to the
// client unchanged. There is no overall timeout.
func NewUpstreamClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // local development proxy
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// SetAPI replaces the management API handler.
func (p *Proxy) SetAPI(h http.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.api = h
}

// SetWebSocket replaces the WebSocket upgrade handler.
func (p *Proxy) SetWebSocket(h http.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ws = h
}

// ServeHTTP implements http.Handler for the proxy.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	api, ws := p.api, p.ws
	p.mu.RUnlock()

	switch {
	case api != nil && p.isAPI(r.URL.Path):
		api.ServeHTTP(w, r)
	case ws != nil && IsWebSocketUpgrade(r):
		ws.ServeHTTP(w, r)
	default:
		p.handleHTTP(w, r)
	}
}

func (p *Proxy) isAPI(path string) bool {
	if p.apiPrefix == "" {
		return false
	}
	return path == p.apiPrefix || strings.HasPrefix(path, p.apiPrefix+"/")
}

// IsWebSocketUpgrade reports whether r asks for a WebSocket upgrade.
func IsWebSocketUpgrade(r *http.Request) bool {
	return headerHasToken(r.Header, "Connection", "upgrade") &&
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

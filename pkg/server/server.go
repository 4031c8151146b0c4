// Package server assembles the proxy process: configuration state, plugin
// registry, rule and recording stores, the WebSocket bridge, the management
// API and the listening HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/getmockd/interceptd/pkg/admin"
	"github.com/getmockd/interceptd/pkg/config"
	"github.com/getmockd/interceptd/pkg/logging"
	"github.com/getmockd/interceptd/pkg/metrics"
	"github.com/getmockd/interceptd/pkg/plugin"
	"github.com/getmockd/interceptd/pkg/plugins"
	"github.com/getmockd/interceptd/pkg/proxy"
	"github.com/getmockd/interceptd/pkg/recording"
	"github.com/getmockd/interceptd/pkg/rules"
	"github.com/getmockd/interceptd/pkg/websocket"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("server is already running")

// Options configures a Server.
type Options struct {
	Config *config.ProxyConfig
	// ConfigPath is where runtime changes are persisted. Empty keeps them in memory.
	ConfigPath string
	// Addr overrides the listen address derived from Config.ProxyPort.
	Addr    string
	Version string
	Logger  *slog.Logger
}

// Server is a fully wired proxy instance.
type Server struct {
	state    *config.State
	registry *plugin.Registry
	rules    *rules.Store
	watcher  *rules.Watcher
	library  *recording.Library
	bridge   *websocket.Bridge
	api      *admin.API
	proxy    *proxy.Proxy
	addr     string
	log      *slog.Logger

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	running  bool
}

// New builds a Server from opts. Nothing listens until Start.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logging.OrNop(opts.Logger)

	s := &Server{
		state:    config.NewState(cfg, opts.ConfigPath),
		registry: plugin.NewRegistry(),
		rules:    rules.NewStore(cfg.RulesDir),
		library:  recording.NewLibrary(cfg.RecordingsDir, log.With("component", "recordings")),
		addr:     opts.Addr,
		log:      log,
	}
	if s.addr == "" {
		s.addr = fmt.Sprintf(":%d", cfg.ProxyPort)
	}

	s.registry.SetLogger(log.With("component", "plugins"))
	if err := plugins.RegisterAll(s.registry, plugins.Deps{Library: s.library, Logger: log}); err != nil {
		return nil, fmt.Errorf("failed to register plugins: %w", err)
	}
	s.registry.Preload(cfg.Plugins, pluginConfigs(cfg.PluginConfigs))
	s.registry.SetOrder(cfg.PluginOrder)

	if err := os.MkdirAll(cfg.RulesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rules directory: %w", err)
	}
	active, err := s.rules.Active()
	if err != nil {
		return nil, fmt.Errorf("failed to load active rule set: %w", err)
	}
	s.applyRules(active)
	s.watcher = rules.NewWatcher(s.rules, s.applyRules, log.With("component", "rules"))

	executor := plugin.NewExecutor(s.registry, log.With("component", "pipeline"))
	targets := stateTargets{state: s.state}
	instruments := metrics.NewInstruments(metrics.NewRegistry())

	s.bridge = websocket.NewBridge(websocket.Options{
		Executor: executor,
		Targets:  targets,
		Settings: cfg.WebSocket,
		Recorder: recording.NewMessageRecorder(
			filepath.Join(cfg.RecordingsDir, recording.MessageFolder),
			log.With("component", "ws-recorder"),
		),
		Metrics: instruments,
		Logger:  log.With("component", "websocket"),
	})

	s.api = admin.New(cfg.APIPrefix,
		admin.WithRegistry(s.registry),
		admin.WithState(s.state),
		admin.WithRules(s.rules, s.applyRules),
		admin.WithLibrary(s.library),
		admin.WithBridge(s.bridge),
		admin.WithMetrics(instruments.Registry()),
		admin.WithVersion(opts.Version),
		admin.WithLogger(log.With("component", "admin")),
	)

	s.proxy = proxy.New(proxy.Options{
		Executor:    executor,
		Targets:     targets,
		MaxBodySize: cfg.MaxBodySize,
		APIPrefix:   cfg.APIPrefix,
		API:         s.api,
		WebSocket:   s.bridge,
		Metrics:     instruments,
		Logger:      log.With("component", "proxy"),
	})
	return s, nil
}

// Handler returns the root handler serving proxy, API and upgrades.
func (s *Server) Handler() http.Handler { return s.proxy }

// State returns the live configuration.
func (s *Server) State() *config.State { return s.state }

// Registry returns the plugin registry.
func (s *Server) Registry() *plugin.Registry { return s.registry }

// Bridge returns the WebSocket bridge.
func (s *Server) Bridge() *websocket.Bridge { return s.bridge }

// Addr returns the bound address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	if err := s.watcher.Start(); err != nil {
		s.log.Warn("rules hot reload disabled", "dir", s.rules.Dir(), "error", err)
	}

	s.listener = ln
	s.http = &http.Server{
		Handler:           s.proxy,
		ReadHeaderTimeout: 30 * time.Second,
	}
	srv := s.http
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("proxy server error", "error", err)
		}
	}()

	s.running = true
	set, _ := s.state.ActiveSet()
	s.log.Info("proxy started", "addr", ln.Addr().String(), "target", set.TargetURL, "api", s.api.Prefix())
	return nil
}

// Stop gracefully shuts down the listener, open WebSocket sessions and
// the rules watcher.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	// The listener closes first so no upgrade starts after the bridge drains.
	// Hijacked WebSocket connections are not tracked by http.Server.
	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := s.bridge.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}
	s.watcher.Stop()

	s.running = false
	s.listener = nil
	s.log.Info("proxy stopped")
	return errors.Join(errs...)
}

// applyRules installs rs as the mock plugin configuration.
func (s *Server) applyRules(rs *rules.RuleSet) {
	if err := s.registry.SetConfig(plugins.NameMock, plugin.Config(rs.ToMap())); err != nil {
		s.log.Warn("failed to apply rule set", "error", err)
	}
}

func pluginConfigs(in map[string]map[string]any) map[string]plugin.Config {
	out := make(map[string]plugin.Config, len(in))
	for name, cfg := range in {
		out[name] = plugin.Config(cfg)
	}
	return out
}

// stateTargets resolves the upstream from the active config set on every call
// so switching sets at runtime takes effect immediately.
type stateTargets struct {
	state *config.State
}

func (t stateTargets) Target() (proxy.Target, error) {
	set, ok := t.state.ActiveSet()
	if !ok || set.TargetURL == "" {
		return proxy.Target{}, proxy.ErrNoTarget
	}
	u, err := url.Parse(set.TargetURL)
	if err != nil {
		return proxy.Target{}, fmt.Errorf("invalid target URL %q: %w", set.TargetURL, err)
	}
	return proxy.Target{ID: set.ID, URL: u, Headers: maps.Clone(set.RequestHeaders)}, nil
}

package metrics

import (
	"runtime"
	"strconv"
	"time"
)

// Request outcomes.
const (
	OutcomeMock    = "mock"
	OutcomeForward = "forward"
	OutcomeError   = "error"
)

// Message outcomes.
const (
	MessageRelayed  = "relayed"
	MessageModified = "modified"
	MessageBlocked  = "blocked"
)

// Instruments are the metrics updated by the relay and the bridge.
type Instruments struct {
	registry *Registry

	requests       *Counter
	duration       *Histogram
	upstreamErrors *Counter
	pluginErrors   *Counter
	wsConnections  *Gauge
	wsMessages     *Counter
}

// NewInstruments registers the proxy metrics and the runtime gauges on r.
// A nil r gets a fresh registry.
func NewInstruments(r *Registry) *Instruments {
	if r == nil {
		r = NewRegistry()
	}
	m := &Instruments{
		registry: r,
		requests: r.NewCounter("interceptd_requests_total",
			"HTTP requests handled by the proxy", "method", "outcome", "status"),
		duration: r.NewHistogram("interceptd_request_duration_seconds",
			"Time from request arrival to the end of the response", nil, "outcome"),
		upstreamErrors: r.NewCounter("interceptd_upstream_errors_total",
			"Requests that could not reach the upstream target"),
		pluginErrors: r.NewCounter("interceptd_plugin_errors_total",
			"Plugin failures recorded and skipped by the pipeline", "plugin", "stage"),
		wsConnections: r.NewGauge("interceptd_websocket_connections",
			"Open WebSocket sessions"),
		wsMessages: r.NewCounter("interceptd_websocket_messages_total",
			"WebSocket frames seen by the bridge", "direction", "outcome"),
	}
	registerRuntime(r, time.Now())
	return m
}

// Registry returns the registry the instruments live in.
func (m *Instruments) Registry() *Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one finished HTTP request.
func (m *Instruments) ObserveRequest(method, outcome string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	_ = m.requests.Inc(method, outcome, strconv.Itoa(status))
	_ = m.duration.Observe(elapsed.Seconds(), outcome)
}

// UpstreamError records a failed upstream round trip.
func (m *Instruments) UpstreamError() {
	if m == nil {
		return
	}
	_ = m.upstreamErrors.Inc()
}

// PluginError records a plugin failure at stage.
func (m *Instruments) PluginError(plugin, stage string) {
	if m == nil {
		return
	}
	_ = m.pluginErrors.Inc(plugin, stage)
}

// ConnectionOpened counts a new WebSocket session.
func (m *Instruments) ConnectionOpened() {
	if m == nil {
		return
	}
	_ = m.wsConnections.Add(1)
}

// ConnectionClosed counts a finished WebSocket session.
func (m *Instruments) ConnectionClosed() {
	if m == nil {
		return
	}
	_ = m.wsConnections.Add(-1)
}

// Message records one WebSocket frame.
func (m *Instruments) Message(direction, outcome string) {
	if m == nil {
		return
	}
	_ = m.wsMessages.Inc(direction, outcome)
}

// registerRuntime adds process gauges refreshed on every scrape.
func registerRuntime(r *Registry, started time.Time) {
	goroutines := r.NewGauge("go_goroutines", "Number of goroutines that currently exist")
	heapAlloc := r.NewGauge("go_memstats_heap_alloc_bytes", "Number of heap bytes allocated and still in use")
	numGC := r.NewGauge("go_gc_cycles_total", "Number of completed GC cycles")
	uptime := r.NewGauge("interceptd_uptime_seconds", "Seconds since the proxy started")
	info := r.NewGauge("go_info", "Information about the Go environment", "version")
	_ = info.Set(1, runtime.Version())

	r.OnCollect(func() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		_ = goroutines.Set(float64(runtime.NumGoroutine()))
		_ = heapAlloc.Set(float64(ms.HeapAlloc))
		_ = numGC.Set(float64(ms.NumGC))
		_ = uptime.Set(time.Since(started).Seconds())
	})
}

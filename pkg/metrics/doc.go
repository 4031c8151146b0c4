// Package metrics collects proxy activity in the Prometheus text exposition
// format (text/plain; version=0.0.4).
//
// A Registry owns counters, gauges and histograms; Instruments bundles the
// ones the relay and the WebSocket bridge update:
//
//   - interceptd_requests_total (method, outcome, status)
//   - interceptd_request_duration_seconds (outcome)
//   - interceptd_upstream_errors_total
//   - interceptd_plugin_errors_total (plugin, stage)
//   - interceptd_websocket_connections
//   - interceptd_websocket_messages_total (direction, outcome)
//
// Every Instruments method accepts a nil receiver, so components built
// without metrics need no checks. The management API serves the registry
// under /metrics.
package metrics

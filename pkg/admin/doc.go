// Package admin provides the management API of the intercepting proxy.
//
// The API is mounted under a reserved path prefix on the proxy port and
// exposes the plugin registry, upstream config sets, rule sets, stored
// recordings and the WebSocket bridge state as JSON endpoints.
package admin

// Package websocket bridges intercepted WebSocket sessions to the upstream
// target.
//
// A Bridge accepts the client upgrade, dials the upstream with the same
// path and query, and relays frames in both directions through the plugin
// pipeline's message stage. Live sessions are tracked in a Table and a
// bounded MessageLog keeps a summary of recent traffic for the management
// API.
package websocket

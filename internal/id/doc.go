// Package id generates identifiers for bridged WebSocket sessions
// (Connection, "ws-" plus a hex UUID v4) and short hex tokens (Short).
package id

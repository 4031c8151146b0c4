package websocket

import "errors"

var (
	// ErrConnectionNotFound indicates the connection was not found.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrMaxConnectionsReached indicates the maximum connections limit was reached.
	ErrMaxConnectionsReached = errors.New("maximum connections reached")
	// ErrUpgradeBlocked indicates a plugin rejected the upgrade.
	ErrUpgradeBlocked = errors.New("upgrade blocked")
	// ErrDisabled indicates WebSocket bridging is switched off.
	ErrDisabled = errors.New("websocket proxying is disabled")
	// ErrShuttingDown indicates the bridge no longer accepts upgrades.
	ErrShuttingDown = errors.New("websocket bridge is shutting down")
)
